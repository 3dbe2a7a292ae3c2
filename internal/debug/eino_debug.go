package debug

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/devops"
	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/config"
	"github.com/dyike/CortexQuant/internal/logger"
)

// EinoDebugger starts the eino devops server when EinoDebugEnabled is set.
type EinoDebugger struct {
	config *config.Config
	logger *zap.Logger
	start  func(context.Context) error
}

func NewEinoDebugger(cfg *config.Config, l *zap.Logger) *EinoDebugger {
	return &EinoDebugger{
		config: cfg,
		logger: logger.OrNop(l),
		start: func(ctx context.Context) error {
			return devops.Init(ctx)
		},
	}
}

func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.IsEnabled() {
		return nil
	}

	d.logger.Info("initializing eino debug plugin", zap.Int("port", d.config.EinoDebugPort))
	if err := d.start(ctx); err != nil {
		return fmt.Errorf("failed to initialize Eino debug plugin: %w", err)
	}
	d.logger.Info("eino debug server ready", zap.String("url", d.GetDebugURL()))
	return nil
}

func (d *EinoDebugger) IsEnabled() bool {
	return d.config != nil && d.config.EinoDebugEnabled
}

func (d *EinoDebugger) GetDebugURL() string {
	if !d.IsEnabled() {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", d.config.EinoDebugPort)
}
