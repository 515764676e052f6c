package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/BTreeMap/ProfileNudge/internal/models"
	"github.com/go-chi/chi/v5"
)

// teamResponse is the public view of a stored team. Tokens are never returned.
type teamResponse struct {
	TeamID    string    `json:"team_id"`
	TeamName  string    `json:"team_name,omitempty"`
	BotUserID string    `json:"bot_user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// requiredFieldRequest is the body accepted by addRequiredFieldHandler.
type requiredFieldRequest struct {
	FieldName string `json:"field_name"`
	Rationale string `json:"rationale,omitempty"`
}

// saveTeamHandler registers or refreshes a team's installation tokens.
func (s *Server) saveTeamHandler(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	var t models.Team
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		slog.Warn("Server.saveTeamHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	t.TeamID = teamID
	if err := t.Validate(); err != nil {
		slog.Warn("Server.saveTeamHandler: validation failed", "error", err, "team_id", teamID)
		writeError(w, err)
		return
	}
	if err := s.st.SaveTeam(t); err != nil {
		slog.Error("Server.saveTeamHandler: failed to save team", "error", err, "team_id", teamID)
		writeError(w, err)
		return
	}
	saved, err := s.st.GetTeam(teamID)
	if err != nil || saved == nil {
		slog.Error("Server.saveTeamHandler: failed to reload team", "error", err, "team_id", teamID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
		return
	}
	slog.Info("Server.saveTeamHandler: team saved", "team_id", teamID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Team saved", teamResponse{
		TeamID:    saved.TeamID,
		TeamName:  saved.TeamName,
		BotUserID: saved.BotUserID,
		CreatedAt: saved.CreatedAt,
		UpdatedAt: saved.UpdatedAt,
	}))
}

// remindTeamHandler runs reminders for a team synchronously and returns the report.
func (s *Server) remindTeamHandler(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	report, err := s.dispatcher.RemindTeam(r.Context(), teamID)
	if err != nil {
		slog.Error("Server.remindTeamHandler: run failed", "error", err, "team_id", teamID)
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}

func (s *Server) listRequiredFieldsHandler(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	fields, err := s.registry.ListFields(teamID)
	if err != nil {
		slog.Warn("Server.listRequiredFieldsHandler: failed", "error", err, "team_id", teamID)
		writeError(w, err)
		return
	}
	if fields == nil {
		fields = []models.RequiredField{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(fields))
}

// addRequiredFieldHandler requires a catalog field. It answers 201 when the
// field is newly required and 200 when it already was.
func (s *Server) addRequiredFieldHandler(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	var req requiredFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.addRequiredFieldHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	field, created, err := s.registry.RequireField(r.Context(), teamID, req.FieldName, req.Rationale)
	if err != nil {
		slog.Warn("Server.addRequiredFieldHandler: failed", "error", err, "team_id", teamID)
		writeError(w, err)
		return
	}
	if !created {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Field already required", field))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Field required", field))
}

func (s *Server) removeRequiredFieldHandler(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	fieldName := chi.URLParam(r, "fieldName")
	// chi matches on RawPath when the request carries escapes such as %2F.
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(fieldName)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid field name"))
			return
		}
		fieldName = unescaped
	}
	removed, err := s.registry.RemoveField(teamID, fieldName)
	if err != nil {
		slog.Warn("Server.removeRequiredFieldHandler: failed", "error", err, "team_id", teamID)
		writeError(w, err)
		return
	}
	if !removed {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Field is not required"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Field no longer required", nil))
}
