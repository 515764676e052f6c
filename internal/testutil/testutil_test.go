package testutil

import (
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/slack-go/slack"
)

func TestNewTestServer(t *testing.T) {
	ts := NewTestServer(t)
	if ts.Server == nil || ts.Handler == nil {
		t.Fatal("NewTestServer returned an incomplete server")
	}
	rr := Serve(ts.Handler, CreateHTTPRequest(t, http.MethodGet, "/health", nil))
	AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	AssertJSONResponse(t, rr, "ok")
}

func TestSeedTeam(t *testing.T) {
	ts := NewTestServer(t)
	SeedTeam(t, ts.Store)
	team, err := ts.Store.GetTeam(TeamID)
	if err != nil {
		t.Fatalf("GetTeam: %v", err)
	}
	if team == nil || team.BotAccessToken != BotToken || team.UserAccessToken != UserToken {
		t.Errorf("unexpected seeded team: %+v", team)
	}
}

func TestSignSlackRequestVerifies(t *testing.T) {
	body := []byte("team_id=T100&text=hello")
	req := CreateFormRequest(t, "/slack/commands/remind", url.Values{"team_id": {"T100"}, "text": {"hello"}})
	SignSlackRequest(t, req, "shh", body, time.Now())

	verifier, err := slack.NewSecretsVerifier(req.Header, "shh")
	if err != nil {
		t.Fatalf("NewSecretsVerifier: %v", err)
	}
	if _, err := verifier.Write(body); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := verifier.Ensure(); err != nil {
		t.Errorf("expected signature to verify, got %v", err)
	}

	wrong, err := slack.NewSecretsVerifier(req.Header, "other")
	if err != nil {
		t.Fatalf("NewSecretsVerifier: %v", err)
	}
	wrong.Write(body)
	if err := wrong.Ensure(); err == nil {
		t.Error("expected signature with a different secret to fail")
	}
}

func TestCreateInteractionRequest(t *testing.T) {
	req := CreateInteractionRequest(t, "/slack/interactions", map[string]string{"type": "block_actions"})
	if req.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", req.Method)
	}
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if got := form.Get("payload"); got != `{"type":"block_actions"}` {
		t.Errorf("unexpected payload %q", got)
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		body   interface{}
	}{
		{name: "GET request with no body", method: "GET", url: "/test", body: nil},
		{name: "POST request with JSON body", method: "POST", url: "/test", body: map[string]string{"key": "value"}},
		{name: "PUT request with struct body", method: "PUT", url: "/teams/T1", body: struct {
			Name string `json:"name"`
		}{Name: "Acme"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateHTTPRequest(t, tt.method, tt.url, tt.body)
			if req.Method != tt.method {
				t.Errorf("Expected method %s, got %s", tt.method, req.Method)
			}
			if req.URL.Path != tt.url {
				t.Errorf("Expected URL %s, got %s", tt.url, req.URL.Path)
			}
			if tt.body != nil && req.Header.Get("Content-Type") != "application/json" {
				t.Error("Expected JSON content type")
			}
		})
	}
}

func TestMustJSONRoundTrip(t *testing.T) {
	in := map[string]int{"reminded": 2}
	var out map[string]int
	MustUnmarshalJSON(t, MustMarshalJSON(t, in), &out)
	if out["reminded"] != 2 {
		t.Errorf("unexpected value %v", out)
	}
}
