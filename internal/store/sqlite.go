// Package store provides storage backends for ProfileNudge.
//
// This file implements an SQLite-backed store for teams and required fields.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/ProfileNudge/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY under concurrent webhook traffic.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveTeam(t models.Team) error {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO teams (team_id, team_name, user_id, user_access_token, bot_access_token, bot_user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(team_id) DO UPDATE SET
			team_name = excluded.team_name,
			user_id = excluded.user_id,
			user_access_token = excluded.user_access_token,
			bot_access_token = excluded.bot_access_token,
			bot_user_id = excluded.bot_user_id,
			updated_at = excluded.updated_at`,
		t.TeamID, nilIfEmpty(t.TeamName), nilIfEmpty(t.UserID), t.UserAccessToken, t.BotAccessToken, nilIfEmpty(t.BotUserID), now, now)
	if err != nil {
		slog.Error("SQLiteStore SaveTeam failed", "error", err, "teamID", t.TeamID)
		return fmt.Errorf("failed to save team %s: %w", t.TeamID, err)
	}
	slog.Debug("SQLiteStore SaveTeam succeeded", "teamID", t.TeamID)
	return nil
}

func (s *SQLiteStore) GetTeam(teamID string) (*models.Team, error) {
	row := s.db.QueryRow(`
		SELECT team_id, team_name, user_id, user_access_token, bot_access_token, bot_user_id, created_at, updated_at
		FROM teams WHERE team_id = ?`, teamID)
	t, err := scanTeamRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetTeam not found", "teamID", teamID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetTeam failed", "error", err, "teamID", teamID)
		return nil, fmt.Errorf("failed to get team %s: %w", teamID, err)
	}
	return &t, nil
}

func (s *SQLiteStore) ListTeams() ([]models.Team, error) {
	rows, err := s.db.Query(`
		SELECT team_id, team_name, user_id, user_access_token, bot_access_token, bot_user_id, created_at, updated_at
		FROM teams ORDER BY team_id`)
	if err != nil {
		slog.Error("SQLiteStore ListTeams query failed", "error", err)
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	teams, err := scanTeams(rows)
	if err != nil {
		slog.Error("SQLiteStore ListTeams scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore ListTeams succeeded", "count", len(teams))
	return teams, nil
}

func (s *SQLiteStore) AddRequiredField(teamID string, f models.RequiredField) (bool, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO required_fields (team_id, field_name, rationale, created_at) VALUES (?, ?, ?, ?)`,
		teamID, f.FieldName, nilIfEmpty(f.Rationale), f.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddRequiredField failed", "error", err, "teamID", teamID, "fieldName", f.FieldName)
		return false, fmt.Errorf("failed to add required field %q: %w", f.FieldName, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("required field rows affected check failed: %w", err)
	}
	slog.Debug("SQLiteStore AddRequiredField done", "teamID", teamID, "fieldName", f.FieldName, "inserted", n > 0)
	return n > 0, nil
}

func (s *SQLiteStore) ListRequiredFields(teamID string) ([]models.RequiredField, error) {
	rows, err := s.db.Query(
		`SELECT field_name, rationale, created_at FROM required_fields WHERE team_id = ? ORDER BY field_name`, teamID)
	if err != nil {
		slog.Error("SQLiteStore ListRequiredFields query failed", "error", err, "teamID", teamID)
		return nil, fmt.Errorf("failed to query required fields: %w", err)
	}
	return scanRequiredFields(rows)
}

func (s *SQLiteStore) RemoveRequiredField(teamID, fieldName string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM required_fields WHERE team_id = ? AND field_name = ?`, teamID, fieldName)
	if err != nil {
		slog.Error("SQLiteStore RemoveRequiredField failed", "error", err, "teamID", teamID, "fieldName", fieldName)
		return false, fmt.Errorf("failed to remove required field %q: %w", fieldName, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("required field rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
