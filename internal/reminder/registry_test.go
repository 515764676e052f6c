package reminder

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/ProfileNudge/internal/models"
)

func TestRegistryRequireField(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	reg := NewRegistry(f.store, f.directory)

	field, created, err := reg.RequireField(ctx, testTeamID, "  Team ", "Helps people find you")
	if err != nil || !created {
		t.Fatalf("expected creation, got created=%v err=%v", created, err)
	}
	if field.FieldName != "Team" || field.Rationale != "Helps people find you" {
		t.Errorf("unexpected field: %+v", field)
	}

	if _, created, err := reg.RequireField(ctx, testTeamID, "Team", ""); err != nil || created {
		t.Errorf("expected duplicate to be reported, got created=%v err=%v", created, err)
	}

	if _, _, err := reg.RequireField(ctx, testTeamID, "Favourite Colour", ""); !errors.Is(err, models.ErrFieldNotInCatalog) {
		t.Errorf("expected ErrFieldNotInCatalog, got %v", err)
	}
	if _, _, err := reg.RequireField(ctx, "T-missing", "Team", ""); !errors.Is(err, models.ErrTeamNotFound) {
		t.Errorf("expected ErrTeamNotFound, got %v", err)
	}
	if _, _, err := reg.RequireField(ctx, testTeamID, " ", ""); !errors.Is(err, models.ErrEmptyFieldName) {
		t.Errorf("expected ErrEmptyFieldName, got %v", err)
	}

	fields, err := reg.ListFields(testTeamID)
	if err != nil {
		t.Fatalf("ListFields failed: %v", err)
	}
	if len(fields) != 1 || fields[0].FieldName != "Team" {
		t.Errorf("unexpected fields: %+v", fields)
	}
}

func TestRegistryCatalogFailure(t *testing.T) {
	f := newFixture(t)
	f.directory.FieldsErr = models.NewUpstreamError("team.profile.get", errors.New("invalid_auth"))
	reg := NewRegistry(f.store, f.directory)

	_, _, err := reg.RequireField(context.Background(), testTeamID, "Team", "")
	var upstream *models.UpstreamError
	if !errors.As(err, &upstream) {
		t.Errorf("expected UpstreamError, got %v", err)
	}
}

func TestRegistryRemoveField(t *testing.T) {
	f := newFixture(t, "Team", "Role")
	reg := NewRegistry(f.store, f.directory)

	removed, err := reg.RemoveField(testTeamID, "Team")
	if err != nil || !removed {
		t.Fatalf("expected removal, got removed=%v err=%v", removed, err)
	}
	removed, err = reg.RemoveField(testTeamID, "Team")
	if err != nil || removed {
		t.Errorf("second removal should report false, got removed=%v err=%v", removed, err)
	}
	if _, err := reg.RemoveField("T-missing", "Team"); !errors.Is(err, models.ErrTeamNotFound) {
		t.Errorf("expected ErrTeamNotFound, got %v", err)
	}
	fields, _ := reg.ListFields(testTeamID)
	if len(fields) != 1 || fields[0].FieldName != "Role" {
		t.Errorf("unexpected remaining fields: %+v", fields)
	}
}
