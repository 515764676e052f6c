// Package store provides storage backends for ProfileNudge.
//
// This file implements a PostgreSQL-backed store for teams and required fields.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/ProfileNudge/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Postgres ping successful")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveTeam(t models.Team) error {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO teams (team_id, team_name, user_id, user_access_token, bot_access_token, bot_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (team_id) DO UPDATE SET
			team_name = EXCLUDED.team_name,
			user_id = EXCLUDED.user_id,
			user_access_token = EXCLUDED.user_access_token,
			bot_access_token = EXCLUDED.bot_access_token,
			bot_user_id = EXCLUDED.bot_user_id,
			updated_at = EXCLUDED.updated_at`,
		t.TeamID, nilIfEmpty(t.TeamName), nilIfEmpty(t.UserID), t.UserAccessToken, t.BotAccessToken, nilIfEmpty(t.BotUserID), now)
	if err != nil {
		slog.Error("PostgresStore SaveTeam failed", "error", err, "teamID", t.TeamID)
		return fmt.Errorf("failed to save team %s: %w", t.TeamID, err)
	}
	slog.Debug("PostgresStore SaveTeam succeeded", "teamID", t.TeamID)
	return nil
}

func (s *PostgresStore) GetTeam(teamID string) (*models.Team, error) {
	row := s.db.QueryRow(`
		SELECT team_id, team_name, user_id, user_access_token, bot_access_token, bot_user_id, created_at, updated_at
		FROM teams WHERE team_id = $1`, teamID)
	t, err := scanTeamRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetTeam not found", "teamID", teamID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetTeam failed", "error", err, "teamID", teamID)
		return nil, fmt.Errorf("failed to get team %s: %w", teamID, err)
	}
	return &t, nil
}

func (s *PostgresStore) ListTeams() ([]models.Team, error) {
	rows, err := s.db.Query(`
		SELECT team_id, team_name, user_id, user_access_token, bot_access_token, bot_user_id, created_at, updated_at
		FROM teams ORDER BY team_id`)
	if err != nil {
		slog.Error("PostgresStore ListTeams query failed", "error", err)
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	teams, err := scanTeams(rows)
	if err != nil {
		slog.Error("PostgresStore ListTeams scan failed", "error", err)
		return nil, err
	}
	slog.Debug("PostgresStore ListTeams succeeded", "count", len(teams))
	return teams, nil
}

func (s *PostgresStore) AddRequiredField(teamID string, f models.RequiredField) (bool, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	result, err := s.db.Exec(
		`INSERT INTO required_fields (team_id, field_name, rationale, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (team_id, field_name) DO NOTHING`,
		teamID, f.FieldName, nilIfEmpty(f.Rationale), f.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddRequiredField failed", "error", err, "teamID", teamID, "fieldName", f.FieldName)
		return false, fmt.Errorf("failed to add required field %q: %w", f.FieldName, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("required field rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) ListRequiredFields(teamID string) ([]models.RequiredField, error) {
	rows, err := s.db.Query(
		`SELECT field_name, rationale, created_at FROM required_fields WHERE team_id = $1 ORDER BY field_name`, teamID)
	if err != nil {
		slog.Error("PostgresStore ListRequiredFields query failed", "error", err, "teamID", teamID)
		return nil, fmt.Errorf("failed to query required fields: %w", err)
	}
	return scanRequiredFields(rows)
}

func (s *PostgresStore) RemoveRequiredField(teamID, fieldName string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM required_fields WHERE team_id = $1 AND field_name = $2`, teamID, fieldName)
	if err != nil {
		slog.Error("PostgresStore RemoveRequiredField failed", "error", err, "teamID", teamID, "fieldName", fieldName)
		return false, fmt.Errorf("failed to remove required field %q: %w", fieldName, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("required field rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) Ping() error {
	return s.db.Ping()
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
