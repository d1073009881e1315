package factory

import (
	"fmt"

	"github.com/mikey/clip-relay/internal/adapters/tap"
	"github.com/mikey/clip-relay/internal/config"
	"github.com/mikey/clip-relay/internal/metrics"
	"github.com/mikey/clip-relay/internal/ports"
	"go.uber.org/zap"
)

// TapFactory creates traffic taps based on configuration
type TapFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewTapFactory creates a new tap factory
func NewTapFactory(cfg *config.Config, logger *zap.Logger) *TapFactory {
	return &TapFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTap creates a traffic tap based on the configuration
func (f *TapFactory) CreateTap(sink tap.Sink, m *metrics.Metrics) (ports.Tap, error) {
	tapCfg := f.cfg.GetTap()

	matcher, err := tap.NewMatcher(tapCfg.BlockedDomains, tapCfg.CapturePatterns, f.logger)
	if err != nil {
		return nil, err
	}
	transport := tap.NewTransport(nil, matcher, sink, f.logger, m, tapCfg.MaxCaptureBytes)

	switch tapCfg.Mode {
	case "proxy":
		if tapCfg.Upstream == "" {
			return nil, fmt.Errorf("tap.upstream is required in proxy mode")
		}
		return tap.NewProxy(tapCfg.ListenAddress, tapCfg.Upstream, transport, f.logger)
	case "client":
		return tap.NewClientTap(transport, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported tap mode: %s", tapCfg.Mode)
	}
}
