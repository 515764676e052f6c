package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/ProfileNudge/internal/api"
	"github.com/BTreeMap/ProfileNudge/internal/contextstore"
	"github.com/BTreeMap/ProfileNudge/internal/genai"
	"github.com/BTreeMap/ProfileNudge/internal/lockfile"
	"github.com/BTreeMap/ProfileNudge/internal/reminder"
	"github.com/BTreeMap/ProfileNudge/internal/scheduler"
	"github.com/BTreeMap/ProfileNudge/internal/slackapi"
	"github.com/BTreeMap/ProfileNudge/internal/store"
	"github.com/BTreeMap/ProfileNudge/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ProfileNudge state data
	DefaultStateDir = "/var/lib/profilenudge"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "profilenudge.db"
)

func main() {
	// Load environment configuration
	config := loadEnvironmentConfig()

	// Initialize structured logger
	initializeLogger(config.LogLevel)

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	if err := validateFlags(flags); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// A SQLite database and the schedule must not be shared by two processes.
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		lock, err := lockfile.AcquireLock(*flags.stateDir)
		if err != nil {
			slog.Error("Failed to lock state directory", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	// Build module options
	storeOpts := buildStoreOptions(flags)
	slackOpts := buildSlackOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	// Start the service
	slog.Info("Bootstrapping ProfileNudge with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "slack", len(slackOpts), "genai", len(genaiOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(storeOpts, slackOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("ProfileNudge failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ProfileNudge exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir          string
	DatabaseURL       string
	APIAddr           string
	AdminToken        string
	SlackSigningSec   string
	SlackAPIURL       string
	SlackDebug        bool
	RedisURL          string
	InteractionTTL    time.Duration
	RemindSchedule    string
	RemindConcurrency int
	RemindSkipBots    bool
	OpenAIKey         string
	OpenAIBaseURL     string
	OpenAIModel       string
	GenAIDebug        bool
	LogLevel          string
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	apiAddr        *string
	adminToken     *string
	signingSecret  *string
	slackAPIURL    *string
	slackDebug     *bool
	redisURL       *string
	interactionTTL *time.Duration
	remindSchedule *string
	concurrency    *int
	skipBots       *bool
	openaiKey      *string
	openaiBaseURL  *string
	openaiModel    *string
	genaiDebug     *bool
}

// parseLogLevel maps LOG_LEVEL to a slog level, defaulting to debug.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// initializeLogger sets up structured logging at the configured level
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:          os.Getenv("PROFILENUDGE_STATE_DIR"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		APIAddr:           os.Getenv("API_ADDR"),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		SlackSigningSec:   os.Getenv("SLACK_SIGNING_SECRET"),
		SlackAPIURL:       os.Getenv("SLACK_API_URL"),
		SlackDebug:        util.ParseBoolEnv("SLACK_DEBUG", false),
		RedisURL:          os.Getenv("REDIS_URL"),
		InteractionTTL:    util.ParseDurationEnv("INTERACTION_TTL", contextstore.DefaultTTL),
		RemindSchedule:    os.Getenv("REMIND_SCHEDULE"),
		RemindConcurrency: util.ParseIntEnv("REMIND_CONCURRENCY", reminder.DefaultConcurrency),
		RemindSkipBots:    util.ParseBoolEnv("REMIND_SKIP_BOTS", true),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		GenAIDebug:        util.ParseBoolEnv("GENAI_DEBUG", false),
		LogLevel:          os.Getenv("LOG_LEVEL"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PROFILENUDGE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"PROFILENUDGE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"ADMIN_TOKEN_SET", config.AdminToken != "",
		"SLACK_SIGNING_SECRET_SET", config.SlackSigningSec != "",
		"SLACK_API_URL", config.SlackAPIURL,
		"REDIS_URL_SET", config.RedisURL != "",
		"INTERACTION_TTL", config.InteractionTTL,
		"REMIND_SCHEDULE", config.RemindSchedule,
		"REMIND_CONCURRENCY", config.RemindConcurrency,
		"REMIND_SKIP_BOTS", config.RemindSkipBots,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for ProfileNudge data (overrides $PROFILENUDGE_STATE_DIR)"),
		dbDSN:          flag.String("db-dsn", config.DatabaseURL, "database DSN, a SQLite path or PostgreSQL URL (overrides $DATABASE_URL)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		adminToken:     flag.String("admin-token", config.AdminToken, "bearer token required on /teams endpoints (overrides $ADMIN_TOKEN)"),
		signingSecret:  flag.String("slack-signing-secret", config.SlackSigningSec, "Slack signing secret (overrides $SLACK_SIGNING_SECRET)"),
		slackAPIURL:    flag.String("slack-api-url", config.SlackAPIURL, "Slack Web API base URL (overrides $SLACK_API_URL)"),
		slackDebug:     flag.Bool("slack-debug", config.SlackDebug, "log Slack API traffic (overrides $SLACK_DEBUG)"),
		redisURL:       flag.String("redis-url", config.RedisURL, "Redis URL for interaction contexts (overrides $REDIS_URL)"),
		interactionTTL: flag.Duration("interaction-ttl", config.InteractionTTL, "how long reminders and dialogs stay redeemable (overrides $INTERACTION_TTL)"),
		remindSchedule: flag.String("remind-schedule", config.RemindSchedule, "cron schedule for reminding every team (overrides $REMIND_SCHEDULE)"),
		concurrency:    flag.Int("remind-concurrency", config.RemindConcurrency, "users processed in parallel per team (overrides $REMIND_CONCURRENCY)"),
		skipBots:       flag.Bool("remind-skip-bots", config.RemindSkipBots, "skip bots and deleted users (overrides $REMIND_SKIP_BOTS)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiBaseURL:  flag.String("openai-base-url", config.OpenAIBaseURL, "OpenAI-compatible API base URL (overrides $OPENAI_BASE_URL)"),
		openaiModel:    flag.String("openai-model", config.OpenAIModel, "model used for reminder text (overrides $OPENAI_MODEL)"),
		genaiDebug:     flag.Bool("genai-debug", config.GenAIDebug, "write GenAI requests to the state directory (overrides $GENAI_DEBUG)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"remindSchedule", *flags.remindSchedule,
		"concurrency", *flags.concurrency,
		"skipBots", *flags.skipBots,
		"openaiKeySet", *flags.openaiKey != "")

	// Move the default SQLite database along with an overridden state directory
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// validateFlags rejects settings that would only fail later at runtime.
func validateFlags(flags Flags) error {
	if *flags.remindSchedule != "" {
		if err := scheduler.ValidateExpression(*flags.remindSchedule); err != nil {
			return err
		}
	}
	if *flags.concurrency <= 0 {
		return errors.New("remind-concurrency must be positive")
	}
	if *flags.signingSecret == "" {
		slog.Warn("No Slack signing secret configured, Slack requests will not be verified")
	}
	return nil
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", *flags.stateDir)
		return err
	}
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		dbDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating directory for SQLite database", "db_dir", dbDir)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			slog.Error("Failed to create database directory", "error", err, "db_dir", dbDir)
			return err
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		// Check if it's a PostgreSQL DSN using the shared detection function
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildSlackOptions constructs Slack Web API client options
func buildSlackOptions(flags Flags) []slackapi.Option {
	var slackOpts []slackapi.Option
	if *flags.slackAPIURL != "" {
		slackOpts = append(slackOpts, slackapi.WithAPIURL(*flags.slackAPIURL))
	}
	if *flags.slackDebug {
		slackOpts = append(slackOpts, slackapi.WithDebug(true))
	}
	return slackOpts
}

// buildGenAIOptions constructs GenAI configuration options. No options means
// reminders use the static text.
func buildGenAIOptions(flags Flags) []genai.Option {
	if *flags.openaiKey == "" {
		return nil
	}
	genaiOpts := []genai.Option{genai.WithAPIKey(*flags.openaiKey)}
	if *flags.openaiBaseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.openaiBaseURL))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	if *flags.genaiDebug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true), genai.WithStateDir(*flags.stateDir))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithConcurrency(*flags.concurrency),
		api.WithSkipInactive(*flags.skipBots),
		api.WithInteractionTTL(*flags.interactionTTL),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.adminToken != "" {
		apiOpts = append(apiOpts, api.WithAdminToken(*flags.adminToken))
	}
	if *flags.signingSecret != "" {
		apiOpts = append(apiOpts, api.WithSigningSecret(*flags.signingSecret))
	}
	if *flags.redisURL != "" {
		apiOpts = append(apiOpts, api.WithRedisURL(*flags.redisURL))
	}
	if *flags.remindSchedule != "" {
		apiOpts = append(apiOpts, api.WithRemindSchedule(*flags.remindSchedule))
	}
	return apiOpts
}
