// Package models defines the core data structures for ProfileNudge.
//
// It includes the team and required-field records, the directory service's view of
// users and their profiles, and the API response envelope shared across modules.
package models

import (
	"strings"
	"time"
)

// Team holds the credentials stored for an installed workspace.
type Team struct {
	TeamID          string    `json:"team_id"`
	TeamName        string    `json:"team_name"`
	UserID          string    `json:"user_id"`           // installing user
	UserAccessToken string    `json:"user_access_token"` // reads profiles and writes them on the user's behalf
	BotAccessToken  string    `json:"bot_access_token"`  // sends direct messages and opens dialogs
	BotUserID       string    `json:"bot_user_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks that a Team carries everything needed to run reminders.
func (t *Team) Validate() error {
	if strings.TrimSpace(t.TeamID) == "" {
		return ErrEmptyTeamID
	}
	if t.UserAccessToken == "" || t.BotAccessToken == "" {
		return ErrMissingTeamTokens
	}
	return nil
}

// RequiredField is a profile attribute a team has marked mandatory.
// FieldName is matched against ProfileField.Label.
type RequiredField struct {
	FieldName string    `json:"field_name"`
	Rationale string    `json:"rationale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks a RequiredField before it is stored.
func (f *RequiredField) Validate() error {
	name := strings.TrimSpace(f.FieldName)
	if name == "" {
		return ErrEmptyFieldName
	}
	if len(name) > MaxFieldNameLength {
		return ErrFieldNameTooLong
	}
	return nil
}

// MaxFieldNameLength bounds required field names; the directory's own labels are shorter.
const MaxFieldNameLength = 256

// ProfileField is a custom profile field as the directory service defines it.
// ID is opaque and only meaningful to the directory; Label is the join key
// against RequiredField.FieldName.
type ProfileField struct {
	ID             string   `json:"id"`
	Label          string   `json:"label"`
	PossibleValues []string `json:"possible_values,omitempty"`
}

// User is a member of a team as listed by the directory service.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name,omitempty"`
	IsBot    bool   `json:"is_bot,omitempty"`
	Deleted  bool   `json:"deleted,omitempty"`
}

// SlackbotUserID is the built-in bot present in every workspace's user list.
const SlackbotUserID = "USLACKBOT"

// IsActiveHuman reports whether u is a real, non-deleted member.
func (u User) IsActiveHuman() bool {
	return !u.Deleted && !u.IsBot && u.ID != SlackbotUserID
}

// FieldValue is the value a user holds for one custom field.
type FieldValue struct {
	Value string `json:"value"`
	Alt   string `json:"alt,omitempty"`
}

// ProfileSnapshot is a user's custom field values at the time of a reminder run.
// A nil Fields map means the user has never set any field.
type ProfileSnapshot struct {
	UserID string                `json:"user_id"`
	Fields map[string]FieldValue `json:"fields"`
}

// RemindReport summarizes one team's reminder run.
type RemindReport struct {
	TeamID   string `json:"team_id"`
	Users    int    `json:"users"`
	Reminded int    `json:"reminded"`
	UpToDate int    `json:"up_to_date"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
