package models

// InteractionKind names a step of the reminder conversation. It prefixes every
// correlation token minted for that step so callbacks can be routed by token alone.
type InteractionKind string

const (
	// InteractionKindReminderButton is the "fill out missing info" button on a reminder.
	InteractionKindReminderButton InteractionKind = "fill-out-missing-fields"
	// InteractionKindMissingFieldsDialog is the dialog opened from that button.
	InteractionKindMissingFieldsDialog InteractionKind = "missing-fields-dialog"
)

// InteractionContext is the state handed from one step of a reminder conversation
// to the next. It is stored once and redeemed at most once.
//
// The same shape serves the reminder button (MissingFieldsContext) and the dialog
// (DialogContext); the token's kind tells them apart.
type InteractionContext struct {
	UserToken     string          `json:"user_token"`
	BotToken      string          `json:"bot_token"`
	User          User            `json:"user"`
	Profile       ProfileSnapshot `json:"profile"`
	MissingFields []ProfileField  `json:"missing_fields"`
}

// InteractionType is the callback type reported by the directory service.
type InteractionType string

const (
	InteractionTypeBlockActions       InteractionType = "block_actions"
	InteractionTypeDialogSubmission   InteractionType = "dialog_submission"
	InteractionTypeDialogCancellation InteractionType = "dialog_cancellation"
)

// Interaction is an inbound interactive callback reduced to what the reminder
// conversation needs.
type Interaction struct {
	Type           InteractionType   `json:"type"`
	TeamID         string            `json:"team_id,omitempty"`
	UserID         string            `json:"user_id,omitempty"`
	CorrelationRef string            `json:"correlation_ref"` // block_id for actions, callback_id for dialogs
	TriggerID      string            `json:"trigger_id,omitempty"`
	ResponseURL    string            `json:"response_url,omitempty"`
	Submission     map[string]string `json:"submission,omitempty"`
}

// Form describes a dialog to collect missing field values.
type Form struct {
	Title          string
	SubmitLabel    string
	NotifyOnCancel bool
	Inputs         []FieldInput
}

// FieldInput is one input of a Form. It is either a TextInput or a SelectInput.
type FieldInput interface {
	InputName() string
	InputLabel() string
	isFieldInput()
}

// TextInput is a free-text input for a field with no enumerated choices.
type TextInput struct {
	Name  string
	Label string
}

func (t TextInput) InputName() string  { return t.Name }
func (t TextInput) InputLabel() string { return t.Label }
func (TextInput) isFieldInput()        {}

// SelectInput is a single-select input over a field's possible values.
type SelectInput struct {
	Name    string
	Label   string
	Options []string
}

func (s SelectInput) InputName() string  { return s.Name }
func (s SelectInput) InputLabel() string { return s.Label }
func (SelectInput) isFieldInput()        {}

// ReminderMessage is the interactive reminder sent to a user's direct messages.
// CorrelationRef is attached to the actionable element so the click can be
// joined back to the stored context.
type ReminderMessage struct {
	Fallback       string
	Text           string
	ButtonLabel    string
	CorrelationRef string
}
