package factory

import (
	"fmt"

	"github.com/mikey/clip-relay/internal/adapters/notify"
	"github.com/mikey/clip-relay/internal/config"
	"github.com/mikey/clip-relay/internal/core"
	"github.com/mikey/clip-relay/internal/utils"
	"go.uber.org/zap"
)

// NotifierFactory creates delivery notifiers based on configuration
type NotifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewNotifierFactory creates a new notifier factory
func NewNotifierFactory(cfg *config.Config, logger *zap.Logger) *NotifierFactory {
	return &NotifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateNotifier creates a notifier based on the configuration
func (f *NotifierFactory) CreateNotifier(textProcessor *utils.TextProcessor) (core.Notifier, error) {
	notifyCfg := f.cfg.GetNotify()

	switch notifyCfg.Backend {
	case "log":
		return notify.NewLogNotifier(f.logger), nil
	case "smtp":
		if notifyCfg.SMTP.To == "" {
			return nil, fmt.Errorf("notify.smtp.to is required for the smtp backend")
		}
		return notify.NewSMTPNotifier(
			notifyCfg.SMTP.Address,
			notifyCfg.SMTP.From,
			notifyCfg.SMTP.To,
			notifyCfg.SMTP.OnSuccess,
			notifyCfg.SMTP.SubjectPrefix,
			textProcessor,
			f.logger,
		), nil
	case "none":
		return notify.NewNoopNotifier(), nil
	default:
		return nil, fmt.Errorf("unsupported notifier backend: %s", notifyCfg.Backend)
	}
}
