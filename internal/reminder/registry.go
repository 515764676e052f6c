package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ProfileNudge/internal/models"
	"github.com/BTreeMap/ProfileNudge/internal/store"
)

// Registry manages a team's required fields, checking new ones against the
// team's profile field catalog.
type Registry struct {
	store     store.Store
	directory Directory
}

// NewRegistry creates a Registry.
func NewRegistry(st store.Store, directory Directory) *Registry {
	return &Registry{store: st, directory: directory}
}

func (r *Registry) team(teamID string) (*models.Team, error) {
	team, err := r.store.GetTeam(teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load team %s: %w", teamID, err)
	}
	if team == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrTeamNotFound, teamID)
	}
	return team, nil
}

// RequireField marks the catalog field labelled fieldName as required for teamID.
// It returns created=false when the field was already required.
func (r *Registry) RequireField(ctx context.Context, teamID, fieldName, rationale string) (models.RequiredField, bool, error) {
	field := models.RequiredField{
		FieldName: strings.TrimSpace(fieldName),
		Rationale: strings.TrimSpace(rationale),
		CreatedAt: time.Now(),
	}
	if err := field.Validate(); err != nil {
		return field, false, err
	}

	team, err := r.team(teamID)
	if err != nil {
		return field, false, err
	}

	catalog, err := r.directory.ListCustomProfileFields(ctx, team.UserAccessToken)
	if err != nil {
		return field, false, fmt.Errorf("failed to load profile field catalog for team %s: %w", teamID, err)
	}
	found := false
	for _, f := range catalog {
		if f.Label == field.FieldName {
			found = true
			break
		}
	}
	if !found {
		slog.Info("Registry RequireField field not in catalog", "team_id", teamID, "field_name", field.FieldName)
		return field, false, fmt.Errorf("%w: %q", models.ErrFieldNotInCatalog, field.FieldName)
	}

	created, err := r.store.AddRequiredField(teamID, field)
	if err != nil {
		return field, false, fmt.Errorf("failed to store required field: %w", err)
	}
	if created {
		slog.Info("Registry RequireField created", "team_id", teamID, "field_name", field.FieldName)
	} else {
		slog.Info("Registry RequireField already required", "team_id", teamID, "field_name", field.FieldName)
	}
	return field, created, nil
}

// ListFields returns the team's required fields ordered by name.
func (r *Registry) ListFields(teamID string) ([]models.RequiredField, error) {
	if _, err := r.team(teamID); err != nil {
		return nil, err
	}
	fields, err := r.store.ListRequiredFields(teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list required fields for team %s: %w", teamID, err)
	}
	return fields, nil
}

// RemoveField stops requiring fieldName. It returns false when it was not required.
func (r *Registry) RemoveField(teamID, fieldName string) (bool, error) {
	if _, err := r.team(teamID); err != nil {
		return false, err
	}
	removed, err := r.store.RemoveRequiredField(teamID, strings.TrimSpace(fieldName))
	if err != nil {
		return false, fmt.Errorf("failed to remove required field: %w", err)
	}
	slog.Debug("Registry RemoveField", "team_id", teamID, "field_name", fieldName, "removed", removed)
	return removed, nil
}
