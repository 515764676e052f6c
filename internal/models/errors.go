package models

import (
	"errors"
	"fmt"
)

// Error variables for better error handling and testability
var (
	ErrTeamNotFound       = errors.New("team not found")
	ErrInteractionExpired = errors.New("interaction expired")
	ErrContextNotFound    = errors.New("interaction context not found")
	ErrFieldNotInCatalog  = errors.New("field not found in team profile catalog")
	ErrEmptyTeamID        = errors.New("team_id cannot be empty")
	ErrMissingTeamTokens  = errors.New("user_access_token and bot_access_token are required")
	ErrEmptyFieldName     = errors.New("field_name cannot be empty")
	ErrFieldNameTooLong   = errors.New("field_name exceeds maximum length")
)

// UpstreamError wraps a failed call to the remote directory service.
type UpstreamError struct {
	Op  string
	Err error
}

// NewUpstreamError wraps err as a failure of the named directory operation.
func NewUpstreamError(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Err: err}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
