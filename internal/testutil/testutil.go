// Package testutil provides common test utilities and helpers for ProfileNudge tests.
package testutil

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/ProfileNudge/internal/api"
	"github.com/BTreeMap/ProfileNudge/internal/contextstore"
	"github.com/BTreeMap/ProfileNudge/internal/models"
	"github.com/BTreeMap/ProfileNudge/internal/slackapi"
	"github.com/BTreeMap/ProfileNudge/internal/store"
)

// Fixture values shared by API-level tests.
const (
	TeamID    = "T100"
	UserToken = "xoxp-user"
	BotToken  = "xoxb-bot"
)

// TestServer bundles an API server with the in-memory dependencies behind it.
type TestServer struct {
	Server   *api.Server
	Handler  http.Handler
	Store    *store.InMemoryStore
	Slack    *slackapi.MockClient
	Contexts *contextstore.MemoryStore
}

// NewTestServer creates a test API server with in-memory dependencies.
// This centralizes the test server creation logic used across multiple test files.
func NewTestServer(t *testing.T, opts ...api.Option) *TestServer {
	t.Helper()
	st := store.NewInMemoryStore()
	mock := slackapi.NewMockClient()
	contexts := contextstore.NewMemoryStore()
	s := api.NewServer(st, mock, contexts, nil, opts...)
	t.Cleanup(s.Wait)
	return &TestServer{Server: s, Handler: s.Handler(), Store: st, Slack: mock, Contexts: contexts}
}

// SeedTeam stores a fully installed team under TeamID.
func SeedTeam(t *testing.T, st store.Store) {
	t.Helper()
	team := models.Team{
		TeamID:          TeamID,
		TeamName:        "Acme",
		UserID:          "UADMIN",
		UserAccessToken: UserToken,
		BotAccessToken:  BotToken,
		BotUserID:       "UBOT",
	}
	if err := st.SaveTeam(team); err != nil {
		t.Fatalf("failed to seed team: %v", err)
	}
}

// Serve runs req through h and returns the recorded response.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// CreateFormRequest creates a url-encoded POST, the way Slack delivers commands and interactions.
func CreateFormRequest(t *testing.T, target string, form url.Values) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("failed to create form request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// CreateInteractionRequest wraps an interaction payload the way Slack posts it.
func CreateInteractionRequest(t *testing.T, target string, payload interface{}) *http.Request {
	t.Helper()
	return CreateFormRequest(t, target, url.Values{"payload": {string(MustMarshalJSON(t, payload))}})
}

// SignSlackRequest adds Slack's v0 request signature headers for body, signed with secret at ts.
func SignSlackRequest(t *testing.T, req *http.Request, secret string, body []byte, ts time.Time) {
	t.Helper()
	stamp := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + stamp + ":"))
	mac.Write(body)
	req.Header.Set("X-Slack-Request-Timestamp", stamp)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
