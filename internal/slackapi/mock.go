package slackapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/BTreeMap/ProfileNudge/internal/models"
)

// MockClient is an in-memory stand-in for Client (for tests and dry runs).
// Set the exported data fields before use; every call is recorded.
type MockClient struct {
	mu sync.Mutex

	Fields   []models.ProfileField
	Users    []models.User
	Profiles map[string]models.ProfileSnapshot // by user id; missing users have never set a field

	// Errors injected per operation. Per-user maps are keyed by user id.
	FieldsErr       error
	UsersErr        error
	ProfileErrs     map[string]error
	OpenDMErrs      map[string]error
	PostErrs        map[string]error // keyed by channel id
	OpenFormErr     error
	SetProfileErr   error
	PostResponseErr error

	Reminders []SentReminder
	Forms     []OpenedForm
	Updates   []ProfileUpdate
	Responses []PostedResponse
}

// SentReminder records a PostReminder call.
type SentReminder struct {
	ChannelID string
	Token     string
	Message   models.ReminderMessage
}

// OpenedForm records an OpenForm call.
type OpenedForm struct {
	TriggerID      string
	Token          string
	Form           models.Form
	CorrelationRef string
}

// ProfileUpdate records a SetUserProfile call.
type ProfileUpdate struct {
	UserID string
	Token  string
	Values map[string]string
}

// PostedResponse records a PostResponse call.
type PostedResponse struct {
	URL  string
	Text string
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		Profiles:    make(map[string]models.ProfileSnapshot),
		ProfileErrs: make(map[string]error),
		OpenDMErrs:  make(map[string]error),
		PostErrs:    make(map[string]error),
	}
}

// DMChannelFor is the channel id the mock assigns to a user's direct messages.
func DMChannelFor(userID string) string {
	return "D-" + userID
}

func (m *MockClient) ListCustomProfileFields(ctx context.Context, token string) ([]models.ProfileField, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FieldsErr != nil {
		return nil, m.FieldsErr
	}
	return append([]models.ProfileField(nil), m.Fields...), nil
}

func (m *MockClient) ListTeamUsers(ctx context.Context, token string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UsersErr != nil {
		return nil, m.UsersErr
	}
	return append([]models.User(nil), m.Users...), nil
}

func (m *MockClient) GetUserProfile(ctx context.Context, userID, token string) (models.ProfileSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ProfileErrs[userID]; err != nil {
		return models.ProfileSnapshot{}, err
	}
	snap, ok := m.Profiles[userID]
	if !ok {
		return models.ProfileSnapshot{UserID: userID}, nil
	}
	snap.UserID = userID
	return snap, nil
}

func (m *MockClient) OpenDirectMessage(ctx context.Context, userID, botToken string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.OpenDMErrs[userID]; err != nil {
		return "", err
	}
	return DMChannelFor(userID), nil
}

func (m *MockClient) PostReminder(ctx context.Context, channelID, botToken string, msg models.ReminderMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.PostErrs[channelID]; err != nil {
		return err
	}
	m.Reminders = append(m.Reminders, SentReminder{ChannelID: channelID, Token: botToken, Message: msg})
	return nil
}

func (m *MockClient) OpenForm(ctx context.Context, triggerID, token string, form models.Form, correlationRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenFormErr != nil {
		return m.OpenFormErr
	}
	m.Forms = append(m.Forms, OpenedForm{TriggerID: triggerID, Token: token, Form: form, CorrelationRef: correlationRef})
	return nil
}

func (m *MockClient) SetUserProfile(ctx context.Context, userID, token string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetProfileErr != nil {
		return m.SetProfileErr
	}
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	m.Updates = append(m.Updates, ProfileUpdate{UserID: userID, Token: token, Values: copied})
	return nil
}

func (m *MockClient) PostResponse(ctx context.Context, responseURL, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PostResponseErr != nil {
		return m.PostResponseErr
	}
	if responseURL == "" {
		return fmt.Errorf("response url is empty")
	}
	m.Responses = append(m.Responses, PostedResponse{URL: responseURL, Text: text})
	return nil
}

// SentReminders returns a copy of the recorded reminders.
func (m *MockClient) SentReminders() []SentReminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentReminder(nil), m.Reminders...)
}
