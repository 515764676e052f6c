package api

import (
	"bytes"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/ProfileNudge/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/slack-go/slack"
)

// maxSlackBody bounds Slack request bodies read for signature verification.
const maxSlackBody = 1 << 20

// Handler returns the HTTP handler with every route registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)

	r.Route("/slack", func(sr chi.Router) {
		sr.Use(s.verifySlackSignature)
		sr.Post("/interactions", s.interactionsHandler)
		sr.Post("/commands/remind", s.remindCommandHandler)
		sr.Post("/commands/require", s.requireCommandHandler)
	})

	r.Route("/teams/{teamID}", func(tr chi.Router) {
		tr.Use(s.requireAdminToken)
		tr.Put("/", s.saveTeamHandler)
		tr.Post("/remind", s.remindTeamHandler)
		tr.Get("/required-fields", s.listRequiredFieldsHandler)
		tr.Post("/required-fields", s.addRequiredFieldHandler)
		tr.Delete("/required-fields/{fieldName}", s.removeRequiredFieldHandler)
	})
	return r
}

// verifySlackSignature rejects requests whose X-Slack-Signature does not match
// the signing secret. It is a no-op when no secret is configured.
func (s *Server) verifySlackSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.signingSecret == "" {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxSlackBody))
		if err != nil {
			slog.Warn("Server.verifySlackSignature: failed to read body", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read request body"))
			return
		}
		verifier, err := slack.NewSecretsVerifier(r.Header, s.signingSecret)
		if err != nil {
			slog.Warn("Server.verifySlackSignature: missing or stale signature headers", "error", err, "path", r.URL.Path)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid request signature"))
			return
		}
		if _, err := verifier.Write(body); err != nil {
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
			return
		}
		if err := verifier.Ensure(); err != nil {
			slog.Warn("Server.verifySlackSignature: signature mismatch", "path", r.URL.Path)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid request signature"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

// requireAdminToken guards the admin endpoints with a bearer token when one is configured.
func (s *Server) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			slog.Warn("Server.requireAdminToken: unauthorized request", "path", r.URL.Path)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.st.Ping(); err != nil {
		slog.Error("Server.healthHandler: store unreachable", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("store unreachable"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}
