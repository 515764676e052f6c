package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/ProfileNudge/internal/models"
	"github.com/BTreeMap/ProfileNudge/internal/slackapi"
	"github.com/slack-go/slack"
)

// Slash command replies.
const (
	ReinstallText       = "Your team's authentication is invalid, please reinstall the app"
	FieldNotFoundText   = "🤔I couldn't find that field in your team's profile"
	AlreadyRequiredText = "You already made that field required 🙂"
	RemindStartedText   = "On it! Reminding everyone with missing profile fields 📬"
	RequireUsageText    = "Usage: /addRequiredField <field label> | <why it matters (optional)>"
	CommandFailedText   = "Something went wrong, please try again later"
)

// requiredText is the reply after a field becomes required.
func requiredText(fieldName string) string {
	return fmt.Sprintf("The Slack profile field %q is now marked as required 🎉", fieldName)
}

// remindSummaryText reports a finished run back to whoever started it.
func remindSummaryText(report models.RemindReport) string {
	text := fmt.Sprintf("Sent %d reminder(s); %d member(s) already up to date.", report.Reminded, report.UpToDate)
	if report.Failed > 0 {
		text += fmt.Sprintf(" %d member(s) could not be reached.", report.Failed)
	}
	return text
}

// interactionsHandler receives button clicks and dialog callbacks. Slack only
// needs an empty 200; outcomes are reported to the user via response_url.
func (s *Server) interactionsHandler(w http.ResponseWriter, r *http.Request) {
	in, err := slackapi.ParseInteractionRequest(r)
	if err != nil {
		slog.Warn("Server.interactionsHandler: invalid payload", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid interaction payload"))
		return
	}
	slog.Debug("Server.interactionsHandler: received", "type", in.Type, "team_id", in.TeamID, "user_id", in.UserID)

	handled, err := s.interactions.Handle(r.Context(), in)
	switch {
	case errors.Is(err, models.ErrInteractionExpired):
		slog.Info("Server.interactionsHandler: expired interaction", "type", in.Type, "user_id", in.UserID)
	case err != nil:
		slog.Error("Server.interactionsHandler: interaction failed", "error", err, "type", in.Type, "user_id", in.UserID)
	case !handled:
		slog.Debug("Server.interactionsHandler: ignored interaction", "type", in.Type, "ref", in.CorrelationRef)
	}
	w.WriteHeader(http.StatusOK)
}

// remindCommandHandler starts a reminder run for the caller's team and replies at once.
// The summary is posted to the command's response_url when the run completes.
func (s *Server) remindCommandHandler(w http.ResponseWriter, r *http.Request) {
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		slog.Warn("Server.remindCommandHandler: invalid command", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid slash command"))
		return
	}
	team, err := s.st.GetTeam(cmd.TeamID)
	if err != nil {
		slog.Error("Server.remindCommandHandler: failed to load team", "error", err, "team_id", cmd.TeamID)
		writeSlackText(w, CommandFailedText)
		return
	}
	if team == nil {
		slog.Warn("Server.remindCommandHandler: unknown team", "team_id", cmd.TeamID, "user_id", cmd.UserID)
		writeSlackText(w, ReinstallText)
		return
	}

	teamID, responseURL := cmd.TeamID, cmd.ResponseURL
	s.goBackground(func(ctx context.Context) {
		report, err := s.dispatcher.RemindTeam(ctx, teamID)
		text := remindSummaryText(report)
		if err != nil {
			slog.Error("Server.remindCommandHandler: run failed", "error", err, "team_id", teamID)
			text = CommandFailedText
			if errors.Is(err, models.ErrTeamNotFound) {
				text = ReinstallText
			}
		}
		if responseURL == "" {
			return
		}
		if err := s.directory.PostResponse(ctx, responseURL, text); err != nil {
			slog.Warn("Server.remindCommandHandler: failed to post summary", "error", err, "team_id", teamID)
		}
	})

	slog.Info("Server.remindCommandHandler: run started", "team_id", cmd.TeamID, "user_id", cmd.UserID)
	writeSlackText(w, RemindStartedText)
}

// parseRequireText splits "label | rationale" command text.
func parseRequireText(text string) (fieldName, rationale string) {
	fieldName, rationale, _ = strings.Cut(text, "|")
	return strings.TrimSpace(fieldName), strings.TrimSpace(rationale)
}

// requireCommandHandler marks the named profile field as required for the caller's team.
func (s *Server) requireCommandHandler(w http.ResponseWriter, r *http.Request) {
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		slog.Warn("Server.requireCommandHandler: invalid command", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid slash command"))
		return
	}
	fieldName, rationale := parseRequireText(cmd.Text)
	if fieldName == "" {
		writeSlackText(w, RequireUsageText)
		return
	}

	field, created, err := s.registry.RequireField(r.Context(), cmd.TeamID, fieldName, rationale)
	switch {
	case errors.Is(err, models.ErrTeamNotFound):
		writeSlackText(w, ReinstallText)
	case errors.Is(err, models.ErrFieldNotInCatalog):
		writeSlackText(w, FieldNotFoundText)
	case errors.Is(err, models.ErrEmptyFieldName), errors.Is(err, models.ErrFieldNameTooLong):
		writeSlackText(w, RequireUsageText)
	case err != nil:
		slog.Error("Server.requireCommandHandler: failed to require field", "error", err, "team_id", cmd.TeamID)
		writeSlackText(w, CommandFailedText)
	case !created:
		writeSlackText(w, AlreadyRequiredText)
	default:
		slog.Info("Server.requireCommandHandler: field required", "team_id", cmd.TeamID, "field_name", field.FieldName, "user_id", cmd.UserID)
		writeSlackText(w, requiredText(field.FieldName))
	}
}
