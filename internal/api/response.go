package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/ProfileNudge/internal/models"
	"github.com/slack-go/slack"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal the response to JSON first to catch encoding errors before writing headers
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeSlackText answers a slash command with a message only the caller sees.
func writeSlackText(w http.ResponseWriter, text string) {
	writeJSONResponse(w, http.StatusOK, slack.Msg{ResponseType: slack.ResponseTypeEphemeral, Text: text})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	var upstream *models.UpstreamError
	switch {
	case errors.Is(err, models.ErrTeamNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrFieldNotInCatalog):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrEmptyTeamID),
		errors.Is(err, models.ErrMissingTeamTokens),
		errors.Is(err, models.ErrEmptyFieldName),
		errors.Is(err, models.ErrFieldNameTooLong):
		return http.StatusBadRequest
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error response. Internal errors are not echoed.
func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	writeJSONResponse(w, status, models.Error(message))
}
