package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ProfileNudge/internal/contextstore"
	"github.com/BTreeMap/ProfileNudge/internal/models"
)

// InteractionHandler drives the reminder conversation after the reminder is sent:
// the button click opens a dialog and the dialog submission updates the profile.
type InteractionHandler struct {
	directory Directory
	contexts  contextstore.Store
}

// NewInteractionHandler creates an InteractionHandler.
func NewInteractionHandler(directory Directory, contexts contextstore.Store) *InteractionHandler {
	return &InteractionHandler{directory: directory, contexts: contexts}
}

// Handle processes one interaction callback. It reports handled=false for
// callbacks that do not belong to the reminder conversation. A token that
// cannot be redeemed yields ErrInteractionExpired.
func (h *InteractionHandler) Handle(ctx context.Context, in models.Interaction) (bool, error) {
	kind := models.InteractionKind(contextstore.KindOf(in.CorrelationRef))
	switch {
	case in.Type == models.InteractionTypeBlockActions && kind == models.InteractionKindReminderButton:
		return true, h.handleReminderButton(ctx, in)
	case in.Type == models.InteractionTypeDialogSubmission && kind == models.InteractionKindMissingFieldsDialog:
		return true, h.handleSubmission(ctx, in)
	case in.Type == models.InteractionTypeDialogCancellation && kind == models.InteractionKindMissingFieldsDialog:
		slog.Info("InteractionHandler dialog cancelled", "team_id", in.TeamID, "user_id", in.UserID)
		return true, nil
	default:
		slog.Debug("InteractionHandler ignoring interaction", "type", in.Type, "kind", kind)
		return false, nil
	}
}

// redeem takes the context stored under token. A missing context is reported
// to the user as expired, best effort, before ErrInteractionExpired is returned.
func (h *InteractionHandler) redeem(ctx context.Context, in models.Interaction) (models.InteractionContext, error) {
	var ictx models.InteractionContext
	payload, err := h.contexts.Take(ctx, in.CorrelationRef)
	if err != nil {
		if errors.Is(err, contextstore.ErrNotFound) {
			slog.Warn("InteractionHandler interaction expired", "type", in.Type, "team_id", in.TeamID, "user_id", in.UserID)
			h.respond(ctx, in.ResponseURL, ExpiredInteractionText)
			return ictx, models.ErrInteractionExpired
		}
		return ictx, fmt.Errorf("failed to load interaction context: %w", err)
	}
	if err := json.Unmarshal(payload, &ictx); err != nil {
		return ictx, fmt.Errorf("failed to decode interaction context: %w", err)
	}
	return ictx, nil
}

func (h *InteractionHandler) handleReminderButton(ctx context.Context, in models.Interaction) error {
	ictx, err := h.redeem(ctx, in)
	if err != nil {
		return err
	}

	form := BuildForm(ictx.MissingFields)
	payload, err := json.Marshal(ictx)
	if err != nil {
		return fmt.Errorf("failed to encode dialog context: %w", err)
	}
	token, err := h.contexts.Put(ctx, string(models.InteractionKindMissingFieldsDialog), payload)
	if err != nil {
		return fmt.Errorf("failed to store dialog context: %w", err)
	}

	if err := h.directory.OpenForm(ctx, in.TriggerID, ictx.BotToken, form, token); err != nil {
		h.respond(ctx, in.ResponseURL, FormFailedText)
		return fmt.Errorf("failed to open dialog for %s: %w", ictx.User.ID, err)
	}
	slog.Info("InteractionHandler dialog opened", "user_id", ictx.User.ID, "inputs", len(form.Inputs), "missing", len(ictx.MissingFields))
	return nil
}

func (h *InteractionHandler) handleSubmission(ctx context.Context, in models.Interaction) error {
	ictx, err := h.redeem(ctx, in)
	if err != nil {
		return err
	}

	values := make(map[string]string, len(ictx.MissingFields))
	for _, f := range ictx.MissingFields {
		answer, ok := in.Submission[f.Label]
		// A blank answer would clear the field, so it counts as unanswered.
		if !ok || strings.TrimSpace(answer) == "" {
			slog.Warn("InteractionHandler no answer for missing field, skipping", "user_id", ictx.User.ID, "field_id", f.ID, "label", f.Label)
			continue
		}
		values[f.ID] = answer
	}

	if len(values) == 0 {
		slog.Info("InteractionHandler submission matched no missing field", "user_id", ictx.User.ID)
		h.respond(ctx, in.ResponseURL, NothingToUpdateText)
		return nil
	}

	if err := h.directory.SetUserProfile(ctx, ictx.User.ID, ictx.UserToken, values); err != nil {
		h.respond(ctx, in.ResponseURL, SetProfileFailedPrefix+err.Error())
		return fmt.Errorf("failed to set user profile for %s: %w", ictx.User.ID, err)
	}
	slog.Info("InteractionHandler profile updated", "user_id", ictx.User.ID, "fields", len(values))

	h.respond(ctx, in.ResponseURL, acknowledgment(ictx.MissingFields, in.Submission))
	return nil
}

func (h *InteractionHandler) respond(ctx context.Context, responseURL, text string) {
	if responseURL == "" {
		slog.Debug("InteractionHandler no response_url, skipping follow-up")
		return
	}
	if err := h.directory.PostResponse(ctx, responseURL, text); err != nil {
		slog.Error("InteractionHandler failed to post follow-up", "error", err)
	}
}
