package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/ProfileNudge/internal/contextstore"
	"github.com/BTreeMap/ProfileNudge/internal/models"
	"github.com/BTreeMap/ProfileNudge/internal/store"
	"golang.org/x/sync/errgroup"
)

// Directory is the remote directory service the reminder workflow talks to.
// Each call takes the token it runs as.
type Directory interface {
	ListCustomProfileFields(ctx context.Context, token string) ([]models.ProfileField, error)
	ListTeamUsers(ctx context.Context, token string) ([]models.User, error)
	GetUserProfile(ctx context.Context, userID, token string) (models.ProfileSnapshot, error)
	OpenDirectMessage(ctx context.Context, userID, botToken string) (string, error)
	PostReminder(ctx context.Context, channelID, botToken string, msg models.ReminderMessage) error
	OpenForm(ctx context.Context, triggerID, token string, form models.Form, correlationRef string) error
	SetUserProfile(ctx context.Context, userID, token string, values map[string]string) error
	PostResponse(ctx context.Context, responseURL, text string) error
}

// DefaultConcurrency bounds how many users of one team are processed at once.
const DefaultConcurrency = 8

// DispatcherOpts holds configuration options for the Dispatcher.
type DispatcherOpts struct {
	Concurrency  int
	SkipInactive bool
	Composer     Composer
}

// DispatcherOption defines a configuration option for the Dispatcher.
type DispatcherOption func(*DispatcherOpts)

// WithConcurrency sets how many users are processed in parallel.
func WithConcurrency(n int) DispatcherOption {
	return func(o *DispatcherOpts) { o.Concurrency = n }
}

// WithSkipInactive skips bots, deleted accounts and Slackbot before any per-user call.
func WithSkipInactive(skip bool) DispatcherOption {
	return func(o *DispatcherOpts) { o.SkipInactive = skip }
}

// WithComposer sets the reminder text composer.
func WithComposer(c Composer) DispatcherOption {
	return func(o *DispatcherOpts) { o.Composer = c }
}

// Dispatcher sends reminders to team members with missing required fields.
type Dispatcher struct {
	store        store.Store
	directory    Directory
	contexts     contextstore.Store
	concurrency  int
	skipInactive bool
	composer     Composer
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(st store.Store, directory Directory, contexts contextstore.Store, opts ...DispatcherOption) *Dispatcher {
	cfg := DispatcherOpts{Concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	slog.Debug("Dispatcher created", "concurrency", cfg.Concurrency, "skip_inactive", cfg.SkipInactive, "composer", cfg.Composer != nil)
	return &Dispatcher{
		store:        st,
		directory:    directory,
		contexts:     contexts,
		concurrency:  cfg.Concurrency,
		skipInactive: cfg.SkipInactive,
		composer:     cfg.Composer,
	}
}

type userOutcome int

const (
	outcomeUpToDate userOutcome = iota
	outcomeReminded
)

// RemindTeam reminds every member of teamID who is missing a required field.
//
// Failures while loading the team, its required fields, the field catalog or
// the user list abort the run. Failures for a single user are logged and
// counted in the report without affecting anyone else.
func (d *Dispatcher) RemindTeam(ctx context.Context, teamID string) (models.RemindReport, error) {
	report := models.RemindReport{TeamID: teamID}

	team, err := d.store.GetTeam(teamID)
	if err != nil {
		slog.Error("Dispatcher RemindTeam failed to load team", "error", err, "team_id", teamID)
		return report, fmt.Errorf("failed to load team %s: %w", teamID, err)
	}
	if team == nil {
		slog.Warn("Dispatcher RemindTeam team not found", "team_id", teamID)
		return report, fmt.Errorf("%w: %s", models.ErrTeamNotFound, teamID)
	}

	required, err := d.store.ListRequiredFields(teamID)
	if err != nil {
		slog.Error("Dispatcher RemindTeam failed to list required fields", "error", err, "team_id", teamID)
		return report, fmt.Errorf("failed to list required fields for team %s: %w", teamID, err)
	}
	if len(required) == 0 {
		slog.Info("Dispatcher RemindTeam no required fields configured", "team_id", teamID)
		return report, nil
	}

	catalog, err := d.directory.ListCustomProfileFields(ctx, team.UserAccessToken)
	if err != nil {
		return report, fmt.Errorf("failed to load profile field catalog for team %s: %w", teamID, err)
	}
	if len(RequiredRemoteFields(required, catalog)) == 0 {
		slog.Warn("Dispatcher RemindTeam no required field matches the catalog", "team_id", teamID, "required", len(required))
		return report, nil
	}

	users, err := d.directory.ListTeamUsers(ctx, team.UserAccessToken)
	if err != nil {
		return report, fmt.Errorf("failed to list users for team %s: %w", teamID, err)
	}

	rationales := make(map[string]string, len(required))
	for _, r := range required {
		if r.Rationale != "" {
			rationales[r.FieldName] = r.Rationale
		}
	}

	var (
		mu      sync.Mutex
		g       errgroup.Group
		scanned int
		skipped int
	)
	g.SetLimit(d.concurrency)
	for _, user := range users {
		if d.skipInactive && !user.IsActiveHuman() {
			skipped++
			continue
		}
		scanned++
		user := user
		g.Go(func() error {
			outcome, err := d.remindUser(ctx, team, required, catalog, rationales, user)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				slog.Error("Dispatcher RemindTeam user reminder failed", "error", err, "team_id", teamID, "user_id", user.ID)
				report.Failed++
			case outcome == outcomeReminded:
				report.Reminded++
			default:
				report.UpToDate++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("Dispatcher RemindTeam fan-out failed", "error", err, "team_id", teamID)
	}
	report.Users = scanned
	report.Skipped = skipped

	slog.Info("Dispatcher RemindTeam finished", "team_id", teamID, "users", report.Users,
		"reminded", report.Reminded, "up_to_date", report.UpToDate, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

// RemindAllTeams runs RemindTeam for every stored team, one team at a time.
// A failing team is logged and does not stop the others; the first error is returned.
func (d *Dispatcher) RemindAllTeams(ctx context.Context) ([]models.RemindReport, error) {
	teams, err := d.store.ListTeams()
	if err != nil {
		slog.Error("Dispatcher RemindAllTeams failed to list teams", "error", err)
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	reports := make([]models.RemindReport, 0, len(teams))
	var firstErr error
	for _, team := range teams {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := d.RemindTeam(ctx, team.TeamID)
		if err != nil {
			slog.Error("Dispatcher RemindAllTeams team run failed", "error", err, "team_id", team.TeamID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		reports = append(reports, report)
	}
	return reports, firstErr
}

func (d *Dispatcher) remindUser(ctx context.Context, team *models.Team, required []models.RequiredField,
	catalog []models.ProfileField, rationales map[string]string, user models.User) (userOutcome, error) {
	profile, err := d.directory.GetUserProfile(ctx, user.ID, team.UserAccessToken)
	if err != nil {
		return outcomeUpToDate, fmt.Errorf("failed to load profile: %w", err)
	}

	missing := MissingFields(required, catalog, profile)
	if len(missing) == 0 {
		slog.Debug("Dispatcher user profile complete", "team_id", team.TeamID, "user_id", user.ID)
		return outcomeUpToDate, nil
	}
	slog.Debug("Dispatcher user missing fields", "team_id", team.TeamID, "user_id", user.ID, "missing", len(missing))

	channelID, err := d.directory.OpenDirectMessage(ctx, user.ID, team.BotAccessToken)
	if err != nil {
		return outcomeUpToDate, fmt.Errorf("unable to open conversation with %s: %w", user.Name, err)
	}

	payload, err := json.Marshal(models.InteractionContext{
		UserToken:     team.UserAccessToken,
		BotToken:      team.BotAccessToken,
		User:          user,
		Profile:       profile,
		MissingFields: missing,
	})
	if err != nil {
		return outcomeUpToDate, fmt.Errorf("failed to encode interaction context: %w", err)
	}
	token, err := d.contexts.Put(ctx, string(models.InteractionKindReminderButton), payload)
	if err != nil {
		return outcomeUpToDate, fmt.Errorf("failed to store interaction context: %w", err)
	}

	msg := models.ReminderMessage{
		Fallback:       ReminderFallbackText,
		Text:           reminderText(ctx, d.composer, user, missing, rationales),
		ButtonLabel:    ReminderButtonLabel,
		CorrelationRef: token,
	}
	if err := d.directory.PostReminder(ctx, channelID, team.BotAccessToken, msg); err != nil {
		return outcomeUpToDate, fmt.Errorf("failed to post reminder: %w", err)
	}
	slog.Info("Dispatcher reminder sent", "team_id", team.TeamID, "user_id", user.ID, "missing", len(missing))
	return outcomeReminded, nil
}
