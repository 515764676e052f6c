package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/ProfileNudge/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanTeamRow scans a Team from a single sql.Row.
func scanTeamRow(row *sql.Row) (models.Team, error) {
	var t models.Team
	var teamName, userID, botUserID sql.NullString
	err := row.Scan(
		&t.TeamID, &teamName, &userID, &t.UserAccessToken, &t.BotAccessToken, &botUserID,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}
	t.TeamName = teamName.String
	t.UserID = userID.String
	t.BotUserID = botUserID.String
	return t, nil
}

// scanTeams scans all Teams from sql.Rows.
func scanTeams(rows *sql.Rows) ([]models.Team, error) {
	defer rows.Close()
	var teams []models.Team
	for rows.Next() {
		var t models.Team
		var teamName, userID, botUserID sql.NullString
		if err := rows.Scan(
			&t.TeamID, &teamName, &userID, &t.UserAccessToken, &t.BotAccessToken, &botUserID,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan team failed: %w", err)
		}
		t.TeamName = teamName.String
		t.UserID = userID.String
		t.BotUserID = botUserID.String
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate team rows: %w", err)
	}
	return teams, nil
}

// scanRequiredFields scans all RequiredFields from sql.Rows.
func scanRequiredFields(rows *sql.Rows) ([]models.RequiredField, error) {
	defer rows.Close()
	var fields []models.RequiredField
	for rows.Next() {
		var f models.RequiredField
		var rationale sql.NullString
		if err := rows.Scan(&f.FieldName, &rationale, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan required field failed: %w", err)
		}
		f.Rationale = rationale.String
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate required field rows: %w", err)
	}
	return fields, nil
}
