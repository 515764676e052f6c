// Package api provides the HTTP server for ProfileNudge.
//
// It receives Slack interactivity callbacks and slash commands, exposes JSON
// endpoints to register teams and manage their required fields, and runs the
// reminder schedule. The API wires together the store, slackapi, contextstore,
// genai, reminder and scheduler modules.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BTreeMap/ProfileNudge/internal/contextstore"
	"github.com/BTreeMap/ProfileNudge/internal/genai"
	"github.com/BTreeMap/ProfileNudge/internal/reminder"
	"github.com/BTreeMap/ProfileNudge/internal/scheduler"
	"github.com/BTreeMap/ProfileNudge/internal/slackapi"
	"github.com/BTreeMap/ProfileNudge/internal/store"
)

// Defaults for the API server.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 15 * time.Second
	// DefaultRemindRunTimeout bounds a reminder batch started from Slack or the schedule.
	DefaultRemindRunTimeout = 10 * time.Minute
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	SigningSecret  string
	AdminToken     string
	RemindSchedule string
	RedisURL       string
	InteractionTTL time.Duration
	Concurrency    int
	SkipInactive   bool
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSigningSecret enables Slack request signature verification.
func WithSigningSecret(secret string) Option {
	return func(o *Opts) { o.SigningSecret = secret }
}

// WithAdminToken requires a bearer token on the /teams endpoints.
func WithAdminToken(token string) Option {
	return func(o *Opts) { o.AdminToken = token }
}

// WithRemindSchedule runs reminders for every team on a cron expression.
func WithRemindSchedule(expr string) Option {
	return func(o *Opts) { o.RemindSchedule = expr }
}

// WithRedisURL stores interaction contexts in Redis instead of process memory.
func WithRedisURL(url string) Option {
	return func(o *Opts) { o.RedisURL = url }
}

// WithInteractionTTL sets how long a reminder or dialog stays redeemable.
func WithInteractionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.InteractionTTL = ttl }
}

// WithConcurrency sets how many users of a team are processed in parallel.
func WithConcurrency(n int) Option {
	return func(o *Opts) { o.Concurrency = n }
}

// WithSkipInactive skips bots and deleted users when reminding.
func WithSkipInactive(skip bool) Option {
	return func(o *Opts) { o.SkipInactive = skip }
}

// Server holds the dependencies for the API server.
type Server struct {
	addr           string
	signingSecret  string
	adminToken     string
	remindSchedule string

	st           store.Store
	directory    reminder.Directory
	contexts     contextstore.Store
	dispatcher   *reminder.Dispatcher
	interactions *reminder.InteractionHandler
	registry     *reminder.Registry
	sched        *scheduler.Scheduler

	httpServer *http.Server
	errCh      chan error

	// background runs started from slash commands
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// NewServer creates a Server from its dependencies. composer may be nil.
func NewServer(st store.Store, directory reminder.Directory, contexts contextstore.Store, composer reminder.Composer, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	dispatcherOpts := []reminder.DispatcherOption{
		reminder.WithConcurrency(cfg.Concurrency),
		reminder.WithSkipInactive(cfg.SkipInactive),
	}
	if composer != nil {
		dispatcherOpts = append(dispatcherOpts, reminder.WithComposer(composer))
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	s := &Server{
		addr:           cfg.Addr,
		signingSecret:  cfg.SigningSecret,
		adminToken:     cfg.AdminToken,
		remindSchedule: cfg.RemindSchedule,
		st:             st,
		directory:      directory,
		contexts:       contexts,
		dispatcher:     reminder.NewDispatcher(st, directory, contexts, dispatcherOpts...),
		interactions:   reminder.NewInteractionHandler(directory, contexts),
		registry:       reminder.NewRegistry(st, directory),
		bgCtx:          bgCtx,
		bgCancel:       bgCancel,
	}
	slog.Debug("Server created", "addr", s.addr, "signature_verification", s.signingSecret != "",
		"admin_token", s.adminToken != "", "schedule", s.remindSchedule)
	return s
}

// Run builds all dependencies from module options, starts the server and
// blocks until SIGINT or SIGTERM.
func Run(storeOpts []store.Option, slackOpts []slackapi.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	cfg := Opts{}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	st, err := store.New(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	contexts, closeContexts, err := openContextStore(cfg)
	if err != nil {
		return err
	}
	defer closeContexts()

	var composer reminder.Composer
	if len(genaiOpts) > 0 {
		gaClient, err := genai.NewClient(genaiOpts...)
		if err != nil {
			slog.Warn("Run: GenAI disabled, using static reminder text", "error", err)
		} else {
			composer = gaClient
		}
	}

	s := NewServer(st, slackapi.NewClient(slackOpts...), contexts, composer, apiOpts...)
	if err := s.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case got := <-sig:
		slog.Info("Run: received signal, shutting down", "signal", got.String())
	case err := <-s.serveErr():
		if err != nil {
			slog.Error("Run: HTTP server failed", "error", err)
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

func openContextStore(cfg Opts) (contextstore.Store, func(), error) {
	var ctxOpts []contextstore.Option
	if cfg.InteractionTTL > 0 {
		ctxOpts = append(ctxOpts, contextstore.WithTTL(cfg.InteractionTTL))
	}
	if cfg.RedisURL == "" {
		slog.Info("Run: using in-memory interaction context store")
		return contextstore.NewMemoryStore(ctxOpts...), func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rs, err := contextstore.NewRedisStoreFromURL(ctx, cfg.RedisURL, ctxOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect interaction context store: %w", err)
	}
	slog.Info("Run: using Redis interaction context store")
	return rs, func() {
		if err := rs.Close(); err != nil {
			slog.Warn("Run: failed to close Redis context store", "error", err)
		}
	}, nil
}

// Start schedules periodic reminders, if configured, and starts listening.
func (s *Server) Start() error {
	if s.remindSchedule != "" {
		s.sched = scheduler.NewScheduler()
		if err := s.sched.AddJob("remind-all-teams", s.remindSchedule, s.runScheduledReminders); err != nil {
			s.sched.Stop()
			return fmt.Errorf("failed to schedule reminders: %w", err)
		}
	}

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	s.errCh = errCh
	go func() {
		slog.Info("Server.Start: listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return nil
}

func (s *Server) serveErr() <-chan error {
	return s.errCh
}

// Shutdown stops the schedule, the HTTP server and background runs.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.sched != nil {
		s.sched.Stop()
	}
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.bgCancel()
	done := make(chan struct{})
	go func() {
		s.bgWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Server.Shutdown: background runs did not finish in time")
	}
	slog.Info("Server.Shutdown: stopped")
	return err
}

func (s *Server) runScheduledReminders(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, DefaultRemindRunTimeout)
	defer cancel()
	reports, err := s.dispatcher.RemindAllTeams(ctx)
	if err != nil {
		slog.Error("Server.runScheduledReminders: run finished with errors", "error", err, "teams", len(reports))
		return
	}
	slog.Info("Server.runScheduledReminders: run finished", "teams", len(reports))
}

// goBackground runs fn detached from the request, bounded by the server's lifetime.
func (s *Server) goBackground(fn func(ctx context.Context)) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ctx, cancel := context.WithTimeout(s.bgCtx, DefaultRemindRunTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until all background runs have finished.
func (s *Server) Wait() {
	s.bgWG.Wait()
}
