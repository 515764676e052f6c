// Package slackapi wraps the Slack Web API for ProfileNudge.
//
// It reads the workspace's custom profile catalog, lists users and their profiles,
// delivers reminders and dialogs, and writes profile values back. Every call
// takes the token it should run as, since reads and writes use the installing
// user's token while messages and dialogs use the bot token.
package slackapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BTreeMap/ProfileNudge/internal/models"
	"github.com/slack-go/slack"
)

// DefaultHTTPTimeout bounds every Slack Web API call.
const DefaultHTTPTimeout = 15 * time.Second

// Opts holds configuration options for the Slack client.
type Opts struct {
	APIURL     string
	HTTPClient *http.Client
	Debug      bool
}

// Option defines a configuration option for the Slack client.
type Option func(*Opts)

// WithAPIURL points the client at a different Web API base URL (tests, proxies).
func WithAPIURL(apiURL string) Option {
	return func(o *Opts) { o.APIURL = apiURL }
}

// WithHTTPClient overrides the HTTP client used for API and webhook calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithDebug enables slack-go's request logging.
func WithDebug(debug bool) Option {
	return func(o *Opts) { o.Debug = debug }
}

// Client talks to the Slack Web API.
type Client struct {
	apiURL     string
	httpClient *http.Client
	debug      bool
}

// NewClient creates a Slack client. SLACK_API_URL is used when no URL option is given.
func NewClient(opts ...Option) *Client {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = os.Getenv("SLACK_API_URL")
	}
	if cfg.APIURL != "" && !strings.HasSuffix(cfg.APIURL, "/") {
		cfg.APIURL += "/"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	slog.Debug("Slack client config loaded", "APIURL_set", cfg.APIURL != "", "debug", cfg.Debug)
	return &Client{apiURL: cfg.APIURL, httpClient: cfg.HTTPClient, debug: cfg.Debug}
}

func (c *Client) api(token string) *slack.Client {
	opts := []slack.Option{slack.OptionHTTPClient(c.httpClient), slack.OptionDebug(c.debug)}
	if c.apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(c.apiURL))
	}
	return slack.New(token, opts...)
}

// ListCustomProfileFields returns the team's custom profile field catalog.
func (c *Client) ListCustomProfileFields(ctx context.Context, token string) ([]models.ProfileField, error) {
	profile, err := c.api(token).GetTeamProfileContext(ctx)
	if err != nil {
		slog.Error("Slack team.profile.get failed", "error", err)
		return nil, models.NewUpstreamError("team.profile.get", err)
	}
	fields := make([]models.ProfileField, 0, len(profile.Fields))
	for _, f := range profile.Fields {
		fields = append(fields, models.ProfileField{
			ID:             f.ID,
			Label:          f.Label,
			PossibleValues: f.PossibleValues,
		})
	}
	slog.Debug("Slack team profile loaded", "fields", len(fields))
	return fields, nil
}

// ListTeamUsers returns every member of the team, following pagination.
func (c *Client) ListTeamUsers(ctx context.Context, token string) ([]models.User, error) {
	members, err := c.api(token).GetUsersContext(ctx)
	if err != nil {
		slog.Error("Slack users.list failed", "error", err)
		return nil, models.NewUpstreamError("users.list", err)
	}
	users := make([]models.User, 0, len(members))
	for _, m := range members {
		users = append(users, models.User{
			ID:       m.ID,
			Name:     m.Name,
			RealName: m.RealName,
			IsBot:    m.IsBot,
			Deleted:  m.Deleted,
		})
	}
	slog.Debug("Slack users listed", "count", len(users))
	return users, nil
}

// GetUserProfile returns the user's custom field values. Fields is nil when
// the user has never set any custom field.
func (c *Client) GetUserProfile(ctx context.Context, userID, token string) (models.ProfileSnapshot, error) {
	profile, err := c.api(token).GetUserProfileContext(ctx, &slack.GetUserProfileParameters{UserID: userID})
	if err != nil {
		slog.Error("Slack users.profile.get failed", "error", err, "user_id", userID)
		return models.ProfileSnapshot{}, models.NewUpstreamError("users.profile.get", err)
	}
	snapshot := models.ProfileSnapshot{UserID: userID}
	if raw := profile.Fields.ToMap(); raw != nil {
		snapshot.Fields = make(map[string]models.FieldValue, len(raw))
		for id, f := range raw {
			snapshot.Fields[id] = models.FieldValue{Value: f.Value, Alt: f.Alt}
		}
	}
	return snapshot, nil
}

// OpenDirectMessage opens (or reuses) the bot's direct message channel with a user.
func (c *Client) OpenDirectMessage(ctx context.Context, userID, botToken string) (string, error) {
	channel, _, _, err := c.api(botToken).OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users:    []string{userID},
		ReturnIM: true,
	})
	if err != nil {
		slog.Error("Slack conversations.open failed", "error", err, "user_id", userID)
		return "", models.NewUpstreamError("conversations.open", err)
	}
	return channel.ID, nil
}

// PostReminder posts the reminder with a single button. The section's block_id and
// the button's action_id and value all carry the correlation reference.
func (c *Client) PostReminder(ctx context.Context, channelID, botToken string, msg models.ReminderMessage) error {
	text := slack.NewTextBlockObject(slack.MarkdownType, msg.Text, false, false)
	label := slack.NewTextBlockObject(slack.PlainTextType, msg.ButtonLabel, true, false)
	button := slack.NewButtonBlockElement(msg.CorrelationRef, msg.CorrelationRef, label)
	section := slack.NewSectionBlock(text, nil, slack.NewAccessory(button), slack.SectionBlockOptionBlockID(msg.CorrelationRef))

	_, _, err := c.api(botToken).PostMessageContext(ctx, channelID,
		slack.MsgOptionText(msg.Fallback, false),
		slack.MsgOptionBlocks(section),
	)
	if err != nil {
		slog.Error("Slack chat.postMessage failed", "error", err, "channel", channelID)
		return models.NewUpstreamError("chat.postMessage", err)
	}
	slog.Debug("Slack reminder posted", "channel", channelID)
	return nil
}

// OpenForm opens a dialog built from form, tagged with correlationRef as its callback_id.
func (c *Client) OpenForm(ctx context.Context, triggerID, token string, form models.Form, correlationRef string) error {
	dialog := slack.Dialog{
		TriggerID:      triggerID,
		CallbackID:     correlationRef,
		Title:          form.Title,
		SubmitLabel:    form.SubmitLabel,
		NotifyOnCancel: form.NotifyOnCancel,
		Elements:       dialogElements(form.Inputs),
	}
	if err := c.api(token).OpenDialogContext(ctx, triggerID, dialog); err != nil {
		slog.Error("Slack dialog.open failed", "error", err)
		return models.NewUpstreamError("dialog.open", err)
	}
	return nil
}

func dialogElements(inputs []models.FieldInput) []slack.DialogElement {
	elements := make([]slack.DialogElement, 0, len(inputs))
	for _, input := range inputs {
		switch in := input.(type) {
		case models.TextInput:
			elements = append(elements, slack.NewTextInput(in.Name, in.Label, ""))
		case models.SelectInput:
			options := make([]slack.DialogSelectOption, 0, len(in.Options))
			for _, o := range in.Options {
				options = append(options, slack.DialogSelectOption{Label: o, Value: o})
			}
			elements = append(elements, slack.NewStaticSelectDialogInput(in.Name, in.Label, options))
		default:
			slog.Warn("Slack dialog: unsupported input type", "type", fmt.Sprintf("%T", input))
		}
	}
	return elements
}

// SetUserProfile writes custom field values (field id -> value) in one call.
func (c *Client) SetUserProfile(ctx context.Context, userID, token string, values map[string]string) error {
	fields := make(map[string]slack.UserProfileCustomField, len(values))
	for id, v := range values {
		fields[id] = slack.UserProfileCustomField{Value: v}
	}
	profile, err := json.Marshal(struct {
		Fields map[string]slack.UserProfileCustomField `json:"fields"`
	}{fields})
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	form := url.Values{"token": {token}, "user": {userID}, "profile": {string(profile)}}
	if err := c.postForm(ctx, "users.profile.set", form); err != nil {
		slog.Error("Slack users.profile.set failed", "error", err, "user_id", userID)
		return models.NewUpstreamError("users.profile.set", err)
	}
	slog.Debug("Slack profile updated", "user_id", userID, "fields", len(fields))
	return nil
}

// postForm calls a Web API method against the configured base URL. slack-go
// builds the users.profile.set URL from its package-level APIURL, so that call
// is made here instead.
func (c *Client) postForm(ctx context.Context, method string, form url.Values) error {
	base := c.apiURL
	if base == "" {
		base = slack.APIURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+method, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack server error: %s", resp.Status)
	}
	var result slack.SlackResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !result.Ok {
		return fmt.Errorf("%s", result.Error)
	}
	return nil
}

// PostResponse sends a follow-up message to an interaction's response_url.
func (c *Client) PostResponse(ctx context.Context, responseURL, text string) error {
	if responseURL == "" {
		return fmt.Errorf("response url is empty")
	}
	err := slack.PostWebhookCustomHTTPContext(ctx, responseURL, c.httpClient, &slack.WebhookMessage{Text: text})
	if err != nil {
		slog.Error("Slack response_url post failed", "error", err)
		return models.NewUpstreamError("response_url", err)
	}
	return nil
}
