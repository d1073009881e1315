package di

import (
	"flag"
	"fmt"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/clip-relay/internal/adapters/notify"
	"github.com/mikey/clip-relay/internal/adapters/webhook"
	"github.com/mikey/clip-relay/internal/config"
	"github.com/mikey/clip-relay/internal/core"
	"github.com/mikey/clip-relay/internal/factory"
	"github.com/mikey/clip-relay/internal/logging"
	"github.com/mikey/clip-relay/internal/metrics"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Delivery flags
	Endpoint   string
	Timeout    string
	MaxRetries int
	BaseDelay  string

	// Injection flags
	ClipID        string
	AudioTemplate string

	// State flags
	StateBackend string
	SQLitePath   string
	BadgerDir    string
	MySQLDSN     string

	// Input flags
	InputFile  string
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// Delivery flags
	flag.StringVar(&flags.Endpoint, "endpoint", "", "Webhook endpoint URL")
	flag.StringVar(&flags.Timeout, "timeout", "30s", "Webhook request timeout")
	flag.IntVar(&flags.MaxRetries, "max-retries", 3, "Maximum delivery attempts per clip")
	flag.StringVar(&flags.BaseDelay, "base-delay", "1s", "Base delay between delivery attempts")

	// Injection flags
	flag.StringVar(&flags.ClipID, "id", "", "Clip ID to inject")
	flag.StringVar(&flags.AudioTemplate, "audio-template", "https://cdn1.suno.ai/{id}.mp3", "Audio URL template for injected clips")

	// State flags
	flag.StringVar(&flags.StateBackend, "state-backend", "memory", "State backend (memory, sqlite, mysql, badger)")
	flag.StringVar(&flags.SQLitePath, "sqlite-path", "/data/clip-relay.db", "Path to SQLite state database")
	flag.StringVar(&flags.BadgerDir, "badger-dir", "/data/clip-relay-badger", "Path to Badger state directory")
	flag.StringVar(&flags.MySQLDSN, "mysql-dsn", "", "MySQL DSN for the state database")

	// Input flags
	flag.StringVar(&flags.InputFile, "file", "", "Captured response body file (use stdin if not specified)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.New()
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}

		// Create config from command line flags
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(metrics.New); err != nil {
		return nil, err
	}

	// Register state store factory
	if err := container.Provide(factory.NewStateStoreFactory); err != nil {
		return nil, err
	}

	// Register state store
	if err := container.Provide(func(f *factory.StateStoreFactory) (core.StateStore, error) {
		return f.CreateStateStore()
	}); err != nil {
		return nil, err
	}

	// Register relay state
	if err := container.Provide(func(store core.StateStore, cfg *config.Config, logger *zap.Logger) *core.State {
		return core.NewState(
			store,
			cfg.GetInt("failed_queue.capacity"),
			cfg.GetInt("failed_queue.trim_to"),
			cfg.GetInt("sent_cache.max_entries"),
			logger,
		)
	}); err != nil {
		return nil, err
	}

	// Register webhook sender
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (core.Sender, error) {
		endpoint := cfg.GetString("webhook.endpoint")
		if endpoint == "" {
			return nil, fmt.Errorf("webhook endpoint is required (use -endpoint or a config file)")
		}
		timeout, err := cfg.GetDuration("webhook.timeout")
		if err != nil {
			return nil, fmt.Errorf("invalid webhook timeout: %w", err)
		}
		return webhook.NewClient(endpoint, timeout, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register no-op notifier, the CLI prints its own outcome
	if err := container.Provide(func() core.Notifier {
		return notify.NewNoopNotifier()
	}); err != nil {
		return nil, err
	}

	// Register delivery engine
	if err := container.Provide(func(
		sender core.Sender,
		state *core.State,
		notifier core.Notifier,
		logger *zap.Logger,
		m *metrics.Metrics,
		cfg *config.Config,
	) (*core.Engine, error) {
		baseDelay, err := cfg.GetDuration("delivery.base_delay")
		if err != nil {
			return nil, fmt.Errorf("invalid delivery base delay: %w", err)
		}
		return core.NewEngine(
			sender,
			state,
			notifier,
			logger,
			m,
			cfg.GetInt("delivery.max_retries"),
			baseDelay,
		), nil
	}); err != nil {
		return nil, err
	}

	// Register capture pipeline
	if err := container.Provide(func(
		engine *core.Engine,
		state *core.State,
		logger *zap.Logger,
		m *metrics.Metrics,
		cfg *config.Config,
	) *core.Pipeline {
		return core.NewPipeline(engine, state, logger, m, cfg.GetString("inject.audio_url_template"))
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	// Set webhook configuration
	v.Set("webhook.endpoint", flags.Endpoint)
	v.Set("webhook.timeout", flags.Timeout)

	// Set delivery configuration
	v.Set("delivery.max_retries", flags.MaxRetries)
	v.Set("delivery.base_delay", flags.BaseDelay)

	// Set state backend configuration
	v.Set("state.backend", flags.StateBackend)
	switch flags.StateBackend {
	case "sqlite":
		v.Set("state.sqlite_path", flags.SQLitePath)
	case "mysql":
		v.Set("state.mysql_dsn", flags.MySQLDSN)
	case "badger":
		v.Set("state.badger_dir", flags.BadgerDir)
	}

	// Set injection configuration
	v.Set("inject.audio_url_template", flags.AudioTemplate)

	return config.NewFromViper(v)
}
