package reminder

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ProfileNudge/internal/models"
)

const (
	// ReminderFallbackText is the notification text for clients that cannot render blocks.
	ReminderFallbackText = "Your profile's incomplete! 😱"
	// ReminderText is the default reminder body.
	ReminderText = "Your Slack profile is incomplete! 😱 \n But don't worry, I can help you fill out the missing data, just click that button 👉"
	// ReminderButtonLabel labels the button that opens the dialog.
	ReminderButtonLabel = "Fill out missing info"

	// UpdatedProfileText acknowledges a successful submission.
	UpdatedProfileText = "Updated your profile! 🎉"
	// CrocFlourish is appended to UpdatedProfileText when "Is Croc?" is answered "true".
	CrocFlourish = "...🐊 Croc' On!🤙🏾  🐊"
	// NothingToUpdateText is sent when a submission matched no missing field.
	NothingToUpdateText = "There was nothing to update on your profile."
	// ExpiredInteractionText is sent when a reminder or dialog can no longer be redeemed.
	ExpiredInteractionText = "This reminder has expired. Please try again from a newer reminder."
	// FormFailedText is sent when the dialog could not be opened.
	FormFailedText = "Sorry, I couldn't open the form. Please try again."
	// SetProfileFailedPrefix prefixes the remote error echoed back on a failed update.
	SetProfileFailedPrefix = "Failed to set user profile: "

	crocFieldLabel  = "Is Croc?"
	crocFieldAnswer = "true"
)

// Composer writes the body of a reminder for one user. rationales maps a field
// label to why the team requires it and may be empty.
type Composer interface {
	Compose(ctx context.Context, user models.User, missing []models.ProfileField, rationales map[string]string) (string, error)
}

// reminderText returns the composed reminder body, or ReminderText when no
// composer is configured or it fails.
func reminderText(ctx context.Context, composer Composer, user models.User, missing []models.ProfileField, rationales map[string]string) string {
	if composer == nil {
		return ReminderText
	}
	text, err := composer.Compose(ctx, user, missing, rationales)
	if err != nil {
		slog.Warn("Dispatcher composer failed, using static reminder text", "error", err, "user_id", user.ID)
		return ReminderText
	}
	if strings.TrimSpace(text) == "" {
		return ReminderText
	}
	return text
}

// acknowledgment builds the success message for a submission. The flourish
// only changes the text, never which values are written.
func acknowledgment(missing []models.ProfileField, submission map[string]string) string {
	for _, f := range missing {
		if f.Label == crocFieldLabel && submission[f.Label] == crocFieldAnswer {
			return UpdatedProfileText + CrocFlourish
		}
	}
	return UpdatedProfileText
}
