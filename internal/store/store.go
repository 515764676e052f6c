// Package store provides storage backends for ProfileNudge.
//
// It holds the team registry (installation credentials) and each team's
// required-field definitions. An in-memory store serves tests and ephemeral
// runs; SQLite and PostgreSQL back real deployments.
package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ProfileNudge/internal/models"
)

// Store is the persistence contract for teams and required fields.
type Store interface {
	// SaveTeam inserts or updates a team's credentials.
	SaveTeam(t models.Team) error
	// GetTeam returns the team or nil if it is not registered.
	GetTeam(teamID string) (*models.Team, error)
	// ListTeams returns all registered teams.
	ListTeams() ([]models.Team, error)

	// AddRequiredField stores a required field for a team. It returns false
	// when the team already requires a field with that name.
	AddRequiredField(teamID string, f models.RequiredField) (bool, error)
	// ListRequiredFields returns a team's required fields ordered by name.
	ListRequiredFields(teamID string) ([]models.RequiredField, error)
	// RemoveRequiredField deletes a required field. It returns false when
	// there was nothing to delete.
	RemoveRequiredField(teamID, fieldName string) (bool, error)

	// Ping checks that the backend is reachable.
	Ping() error
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for the SQL-backed stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports whether dsn addresses PostgreSQL ("postgres") or a
// SQLite file ("sqlite").
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") || strings.Contains(lower, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a simple in-memory Store.
type InMemoryStore struct {
	mu             sync.RWMutex
	teams          map[string]models.Team
	requiredFields map[string]map[string]models.RequiredField
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		teams:          make(map[string]models.Team),
		requiredFields: make(map[string]map[string]models.RequiredField),
	}
}

func (s *InMemoryStore) SaveTeam(t models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.teams[t.TeamID]; ok {
		t.CreatedAt = existing.CreatedAt
	} else if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.teams[t.TeamID] = t
	slog.Debug("InMemoryStore SaveTeam succeeded", "teamID", t.TeamID)
	return nil
}

func (s *InMemoryStore) GetTeam(teamID string) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[teamID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *InMemoryStore) ListTeams() ([]models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teams := make([]models.Team, 0, len(s.teams))
	for _, t := range s.teams {
		teams = append(teams, t)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].TeamID < teams[j].TeamID })
	return teams, nil
}

func (s *InMemoryStore) AddRequiredField(teamID string, f models.RequiredField) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.requiredFields[teamID]
	if !ok {
		fields = make(map[string]models.RequiredField)
		s.requiredFields[teamID] = fields
	}
	if _, exists := fields[f.FieldName]; exists {
		return false, nil
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	fields[f.FieldName] = f
	slog.Debug("InMemoryStore AddRequiredField succeeded", "teamID", teamID, "fieldName", f.FieldName)
	return true, nil
}

func (s *InMemoryStore) ListRequiredFields(teamID string) ([]models.RequiredField, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields := make([]models.RequiredField, 0, len(s.requiredFields[teamID]))
	for _, f := range s.requiredFields[teamID] {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].FieldName < fields[j].FieldName })
	return fields, nil
}

func (s *InMemoryStore) RemoveRequiredField(teamID, fieldName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requiredFields[teamID][fieldName]; !ok {
		return false, nil
	}
	delete(s.requiredFields[teamID], fieldName)
	return true, nil
}

func (s *InMemoryStore) Ping() error  { return nil }
func (s *InMemoryStore) Close() error { return nil }

// Open builds the Store selected by dsn: PostgreSQL for connection URLs,
// SQLite for file paths, in-memory when dsn is empty.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		pg, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	lite, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	if err != nil {
		return nil, err
	}
	return lite, nil
}

// New opens the store described by opts. See Open for how the DSN is interpreted.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return Open(cfg.DSN)
}
