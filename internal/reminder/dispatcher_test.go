package reminder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/ProfileNudge/internal/contextstore"
	"github.com/BTreeMap/ProfileNudge/internal/models"
	"github.com/BTreeMap/ProfileNudge/internal/slackapi"
	"github.com/BTreeMap/ProfileNudge/internal/store"
)

const testTeamID = "T100"

type fixture struct {
	store     *store.InMemoryStore
	directory *slackapi.MockClient
	contexts  *contextstore.MemoryStore
}

func newFixture(t *testing.T, requiredNames ...string) *fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.SaveTeam(models.Team{TeamID: testTeamID, UserAccessToken: "xoxp-user", BotAccessToken: "xoxb-bot"}); err != nil {
		t.Fatalf("SaveTeam failed: %v", err)
	}
	for _, name := range requiredNames {
		if _, err := st.AddRequiredField(testTeamID, models.RequiredField{FieldName: name}); err != nil {
			t.Fatalf("AddRequiredField failed: %v", err)
		}
	}
	dir := slackapi.NewMockClient()
	dir.Fields = []models.ProfileField{teamField, roleField, deskField}
	return &fixture{store: st, directory: dir, contexts: contextstore.NewMemoryStore()}
}

func (f *fixture) dispatcher(opts ...DispatcherOption) *Dispatcher {
	return NewDispatcher(f.store, f.directory, f.contexts, opts...)
}

type stubComposer struct {
	text string
	err  error
}

func (s stubComposer) Compose(ctx context.Context, user models.User, missing []models.ProfileField, rationales map[string]string) (string, error) {
	return s.text, s.err
}

func TestRemindTeamNoReminderWhenComplete(t *testing.T) {
	f := newFixture(t, "Team", "Role")
	f.directory.Users = []models.User{{ID: "U1", Name: "alice"}}
	f.directory.Profiles["U1"] = models.ProfileSnapshot{Fields: map[string]models.FieldValue{
		"Xf01": {Value: "Platform"}, "Xf02": {Value: "IC"},
	}}

	report, err := f.dispatcher().RemindTeam(context.Background(), testTeamID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(f.directory.SentReminders()); n != 0 {
		t.Errorf("expected no reminders, got %d", n)
	}
	if report.UpToDate != 1 || report.Reminded != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if f.contexts.Len() != 0 {
		t.Errorf("expected no stored contexts, got %d", f.contexts.Len())
	}
}

func TestRemindTeamSendsReminderWithToken(t *testing.T) {
	f := newFixture(t, "Team", "Role")
	f.directory.Users = []models.User{{ID: "U1", Name: "alice"}}

	report, err := f.dispatcher().RemindTeam(context.Background(), testTeamID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Reminded != 1 {
		t.Fatalf("expected one reminder, got %+v", report)
	}
	sent := f.directory.SentReminders()[0]
	if sent.ChannelID != slackapi.DMChannelFor("U1") || sent.Token != "xoxb-bot" {
		t.Errorf("reminder sent to wrong channel or with wrong token: %+v", sent)
	}
	if !contextstore.HasKind(sent.Message.CorrelationRef, string(models.InteractionKindReminderButton)) {
		t.Errorf("unexpected correlation ref %q", sent.Message.CorrelationRef)
	}
	if sent.Message.Text != ReminderText || sent.Message.ButtonLabel != ReminderButtonLabel {
		t.Errorf("unexpected reminder message: %+v", sent.Message)
	}
	if f.contexts.Len() != 1 {
		t.Errorf("expected one stored context, got %d", f.contexts.Len())
	}
}

func TestRemindTeamIsolatesUserFailures(t *testing.T) {
	f := newFixture(t, "Team")
	f.directory.Users = []models.User{{ID: "U1"}, {ID: "U2"}, {ID: "U3"}, {ID: "U4"}}
	f.directory.OpenDMErrs["U1"] = errors.New("cannot_dm_bot")
	f.directory.PostErrs[slackapi.DMChannelFor("U2")] = errors.New("channel_not_found")
	f.directory.ProfileErrs["U3"] = errors.New("user_not_found")

	report, err := f.dispatcher(WithConcurrency(2)).RemindTeam(context.Background(), testTeamID)
	if err != nil {
		t.Fatalf("per-user failures must not fail the batch: %v", err)
	}
	sent := f.directory.SentReminders()
	if len(sent) != 1 || sent[0].ChannelID != slackapi.DMChannelFor("U4") {
		t.Errorf("expected only U4 to be reminded, got %+v", sent)
	}
	if report.Failed != 3 || report.Reminded != 1 || report.Users != 4 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestRemindTeamNotFound(t *testing.T) {
	f := newFixture(t, "Team")
	_, err := f.dispatcher().RemindTeam(context.Background(), "T-missing")
	if !errors.Is(err, models.ErrTeamNotFound) {
		t.Errorf("expected ErrTeamNotFound, got %v", err)
	}
}

func TestRemindTeamSetupFailuresAbort(t *testing.T) {
	cause := models.NewUpstreamError("users.list", errors.New("ratelimited"))

	f := newFixture(t, "Team")
	f.directory.UsersErr = cause
	_, err := f.dispatcher().RemindTeam(context.Background(), testTeamID)
	var upstream *models.UpstreamError
	if !errors.As(err, &upstream) || upstream.Op != "users.list" {
		t.Errorf("expected users.list UpstreamError, got %v", err)
	}

	f = newFixture(t, "Team")
	f.directory.FieldsErr = models.NewUpstreamError("team.profile.get", errors.New("invalid_auth"))
	f.directory.Users = []models.User{{ID: "U1"}}
	if _, err := f.dispatcher().RemindTeam(context.Background(), testTeamID); err == nil {
		t.Error("expected catalog failure to abort the run")
	}
	if len(f.directory.SentReminders()) != 0 {
		t.Error("no reminder may be sent when the catalog cannot be loaded")
	}
}

func TestRemindTeamWithoutRequiredFieldsIsNoop(t *testing.T) {
	f := newFixture(t)
	f.directory.Users = []models.User{{ID: "U1"}}
	report, err := f.dispatcher().RemindTeam(context.Background(), testTeamID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Users != 0 || len(f.directory.SentReminders()) != 0 {
		t.Errorf("expected no work, got %+v", report)
	}
}

func TestRemindTeamSkipInactive(t *testing.T) {
	users := []models.User{
		{ID: "U1"},
		{ID: "B1", IsBot: true},
		{ID: "U2", Deleted: true},
		{ID: models.SlackbotUserID},
	}

	f := newFixture(t, "Team")
	f.directory.Users = users
	report, err := f.dispatcher(WithSkipInactive(true)).RemindTeam(context.Background(), testTeamID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Skipped != 3 || report.Reminded != 1 {
		t.Errorf("unexpected report with skipping: %+v", report)
	}

	f = newFixture(t, "Team")
	f.directory.Users = users
	report, err = f.dispatcher().RemindTeam(context.Background(), testTeamID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Skipped != 0 || report.Reminded != 4 {
		t.Errorf("unexpected report without skipping: %+v", report)
	}
}

func TestRemindTeamComposer(t *testing.T) {
	f := newFixture(t, "Team")
	f.directory.Users = []models.User{{ID: "U1"}}
	if _, err := f.dispatcher(WithComposer(stubComposer{text: "Hi Alice, please add your Team"})).RemindTeam(context.Background(), testTeamID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.directory.SentReminders()[0].Message.Text; got != "Hi Alice, please add your Team" {
		t.Errorf("expected composed text, got %q", got)
	}

	f = newFixture(t, "Team")
	f.directory.Users = []models.User{{ID: "U1"}}
	if _, err := f.dispatcher(WithComposer(stubComposer{err: errors.New("quota")})).RemindTeam(context.Background(), testTeamID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.directory.SentReminders()[0].Message.Text; got != ReminderText {
		t.Errorf("expected static fallback text, got %q", got)
	}
}

func TestRemindAllTeams(t *testing.T) {
	f := newFixture(t, "Team")
	f.directory.Users = []models.User{{ID: "U1"}}
	if err := f.store.SaveTeam(models.Team{TeamID: "T200", UserAccessToken: "xoxp-2", BotAccessToken: "xoxb-2"}); err != nil {
		t.Fatalf("SaveTeam failed: %v", err)
	}
	if _, err := f.store.AddRequiredField("T200", models.RequiredField{FieldName: "Role"}); err != nil {
		t.Fatalf("AddRequiredField failed: %v", err)
	}

	reports, err := f.dispatcher().RemindAllTeams(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	tokens := map[string]bool{}
	for _, r := range f.directory.SentReminders() {
		tokens[r.Token] = true
	}
	if !tokens["xoxb-bot"] || !tokens["xoxb-2"] {
		t.Errorf("expected reminders from both teams' bots, got %v", tokens)
	}
}

func TestRemindAllTeamsContinuesAfterFailure(t *testing.T) {
	f := newFixture(t, "Team")
	f.directory.UsersErr = errors.New("boom")
	if err := f.store.SaveTeam(models.Team{TeamID: "T200", UserAccessToken: "xoxp-2", BotAccessToken: "xoxb-2"}); err != nil {
		t.Fatalf("SaveTeam failed: %v", err)
	}

	reports, err := f.dispatcher().RemindAllTeams(context.Background())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected first team error to be returned, got %v", err)
	}
	if len(reports) != 1 || reports[0].TeamID != "T200" {
		t.Errorf("expected T200 to still run, got %+v", reports)
	}
}
