package di

import (
	"fmt"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/clip-relay/internal/adapters/webhook"
	"github.com/mikey/clip-relay/internal/config"
	"github.com/mikey/clip-relay/internal/control"
	"github.com/mikey/clip-relay/internal/core"
	"github.com/mikey/clip-relay/internal/factory"
	"github.com/mikey/clip-relay/internal/health"
	"github.com/mikey/clip-relay/internal/logging"
	"github.com/mikey/clip-relay/internal/metrics"
	"github.com/mikey/clip-relay/internal/ports"
	"github.com/mikey/clip-relay/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(metrics.New); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStateStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTapFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewNotifierFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
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
			return nil, fmt.Errorf("webhook.endpoint is required")
		}
		timeout, err := cfg.GetDuration("webhook.timeout")
		if err != nil {
			return nil, fmt.Errorf("invalid webhook timeout: %w", err)
		}
		return webhook.NewClient(endpoint, timeout, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register notifier
	if err := container.Provide(func(f *factory.NotifierFactory, textProcessor *utils.TextProcessor) (core.Notifier, error) {
		return f.CreateNotifier(textProcessor)
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

	// Register traffic tap
	if err := container.Provide(func(f *factory.TapFactory, pipeline *core.Pipeline, m *metrics.Metrics) (ports.Tap, error) {
		return f.CreateTap(pipeline, m)
	}); err != nil {
		return nil, err
	}

	// Register replayer
	if err := container.Provide(func(
		engine *core.Engine,
		state *core.State,
		notifier core.Notifier,
		logger *zap.Logger,
		cfg *config.Config,
	) (*core.Replayer, error) {
		itemDelay, err := cfg.GetDuration("replay.item_delay")
		if err != nil {
			return nil, fmt.Errorf("invalid replay item delay: %w", err)
		}
		interval, err := cfg.GetDuration("replay.interval")
		if err != nil {
			return nil, fmt.Errorf("invalid replay interval: %w", err)
		}
		return core.NewReplayer(engine, state, notifier, logger, itemDelay, interval), nil
	}); err != nil {
		return nil, err
	}

	// Register health monitor
	if err := container.Provide(func(
		sender core.Sender,
		logger *zap.Logger,
		m *metrics.Metrics,
		cfg *config.Config,
	) (*health.Monitor, error) {
		interval, err := cfg.GetDuration("health.interval")
		if err != nil {
			return nil, fmt.Errorf("invalid health interval: %w", err)
		}
		startupDelay, err := cfg.GetDuration("health.startup_delay")
		if err != nil {
			return nil, fmt.Errorf("invalid health startup delay: %w", err)
		}
		return health.NewMonitor(sender, logger, m, interval, startupDelay), nil
	}); err != nil {
		return nil, err
	}

	// Register control server
	if err := container.Provide(func(
		pipeline *core.Pipeline,
		replayer *core.Replayer,
		state *core.State,
		monitor *health.Monitor,
		tapPort ports.Tap,
		m *metrics.Metrics,
		logger *zap.Logger,
		logLevel zap.AtomicLevel,
		cfg *config.Config,
	) *control.Server {
		return control.NewServer(
			cfg.GetString("control.listen_address"),
			pipeline,
			replayer,
			state,
			monitor,
			tapPort,
			m,
			logger,
			logLevel,
			cfg.GetString("rescan.feed_url"),
		)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
