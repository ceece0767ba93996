package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/studypal/studypal/internal/api"
	"github.com/studypal/studypal/internal/calendar"
	"github.com/studypal/studypal/internal/genai"
	"github.com/studypal/studypal/internal/lockfile"
	"github.com/studypal/studypal/internal/store"
	"github.com/studypal/studypal/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for StudyPal state data
	DefaultStateDir = "/var/lib/studypal"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "studypal.db"
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.Debug)

	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	serverOpts := buildServerOptions(flags, st)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping StudyPal", "addr", *flags.apiAddr, "dsn_set", *flags.dbDSN != "")
	if err := api.NewServer(serverOpts...).Run(ctx); err != nil {
		slog.Error("StudyPal failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("StudyPal exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	CalendarURL string
	TimeZone    string
	Debug       bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	openaiKey   *string
	apiAddr     *string
	calendarURL *string
	timeZone    *string
}

// initializeLogger sets up structured logging
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("STUDYPAL_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		CalendarURL: os.Getenv("CALENDAR_BASE_URL"),
		TimeZone:    os.Getenv("STUDYPAL_TIMEZONE"),
		Debug:       util.ParseBoolEnv("STUDYPAL_DEBUG", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No STUDYPAL_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Without a database URL, persist to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"STUDYPAL_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"CALENDAR_BASE_URL_SET", config.CalendarURL != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for StudyPal data (overrides $STUDYPAL_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN, PostgreSQL URL or SQLite file path (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		calendarURL: flag.String("calendar-url", config.CalendarURL, "calendar bridge base URL (overrides $CALENDAR_BASE_URL)"),
		timeZone:    flag.String("timezone", config.TimeZone, "IANA timezone for calendar events (overrides $STUDYPAL_TIMEZONE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"calendarURL_set", *flags.calendarURL != "")

	// Follow a changed state directory when the DSN was defaulted from it
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, store.DefaultDirPermissions); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", *flags.stateDir)
		return err
	}
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		dbDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating directory for file-based database", "db_dir", dbDir)
		if err := os.MkdirAll(dbDir, store.DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "db_dir", dbDir)
			return err
		}
	}
	return nil
}

// buildStore selects the storage backend from the DSN
func buildStore(flags Flags) (store.Store, error) {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildServerOptions constructs API server configuration options
func buildServerOptions(flags Flags, st store.Store) []api.Option {
	opts := []api.Option{api.WithStore(st)}

	if *flags.apiAddr != "" {
		opts = append(opts, api.WithAddr(*flags.apiAddr))
	}

	if *flags.openaiKey != "" {
		gen, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			slog.Warn("Failed to initialize generation client, continuing with heuristics only", "error", err)
		} else {
			opts = append(opts, api.WithGenerator(gen))
		}
	} else {
		slog.Info("No OpenAI API key configured, running with heuristic fallbacks only")
	}

	if *flags.calendarURL != "" {
		calOpts := []calendar.Option{calendar.WithBaseURL(*flags.calendarURL)}
		if *flags.timeZone != "" {
			calOpts = append(calOpts, calendar.WithTimeZone(*flags.timeZone))
		}
		connector, err := calendar.NewHTTPConnector(calOpts...)
		if err != nil {
			slog.Warn("Failed to initialize calendar connector, sync disabled", "error", err)
		} else {
			opts = append(opts, api.WithCalendar(connector))
		}
	}

	return opts
}
