package slackapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/BTreeMap/ProfileNudge/internal/models"
	"github.com/slack-go/slack"
)

// ErrMissingPayload is returned when an interaction request has no payload form value.
var ErrMissingPayload = errors.New("interaction payload is missing")

// ParseInteractionRequest reads the url-encoded "payload" field Slack posts to the
// interactivity endpoint and reduces it to a models.Interaction.
func ParseInteractionRequest(r *http.Request) (models.Interaction, error) {
	if err := r.ParseForm(); err != nil {
		return models.Interaction{}, fmt.Errorf("failed to parse interaction form: %w", err)
	}
	payload := r.PostFormValue("payload")
	if payload == "" {
		return models.Interaction{}, ErrMissingPayload
	}
	return ParseInteraction([]byte(payload))
}

// ParseInteraction decodes a raw interaction payload. For block actions the
// correlation reference is the block_id of the first action (falling back to the
// action's value); for dialogs it is the callback_id.
func ParseInteraction(payload []byte) (models.Interaction, error) {
	var cb slack.InteractionCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return models.Interaction{}, fmt.Errorf("failed to decode interaction payload: %w", err)
	}

	in := models.Interaction{
		Type:        models.InteractionType(cb.Type),
		TeamID:      cb.Team.ID,
		UserID:      cb.User.ID,
		TriggerID:   cb.TriggerID,
		ResponseURL: cb.ResponseURL,
	}
	switch cb.Type {
	case slack.InteractionTypeBlockActions:
		if len(cb.ActionCallback.BlockActions) > 0 {
			action := cb.ActionCallback.BlockActions[0]
			in.CorrelationRef = action.BlockID
			if in.CorrelationRef == "" {
				in.CorrelationRef = action.Value
			}
		}
	case slack.InteractionTypeDialogSubmission, slack.InteractionTypeDialogCancellation:
		in.CorrelationRef = cb.CallbackID
		in.Submission = cb.Submission
	}
	return in, nil
}
