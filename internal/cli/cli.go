// Package cli provides the command-line interface for CortexQuant
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/config"
	"github.com/dyike/CortexQuant/internal/debug"
	"github.com/dyike/CortexQuant/internal/display"
	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/internal/metrics"
	"github.com/dyike/CortexQuant/pkg/app"
)

// Run starts the CLI application
func Run() {
	rootCmd := NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// session holds what one command invocation shares: the logger, the
// metrics recorder and a lazily built runtime.
type session struct {
	configPath string
	debug      bool
	out        io.Writer

	logger  *zap.Logger
	metrics *metrics.Recorder
	runtime *app.Runtime

	newRuntime func(*session) (*app.Runtime, error)
}

func newSession(out io.Writer) *session {
	return &session{
		out:        out,
		logger:     zap.NewNop(),
		newRuntime: buildRuntime,
	}
}

func (s *session) init() error {
	l, err := logger.New(s.debug)
	if err != nil {
		return err
	}
	s.logger = l
	s.metrics = metrics.New()
	return nil
}

func buildRuntime(s *session) (*app.Runtime, error) {
	opts := []config.ManagerOption{config.WithLogger(s.logger.Named("config"))}
	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}
	mgr, err := config.NewManager(opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg := mgr.Get()
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if err := debug.NewEinoDebugger(&cfg, s.logger.Named("debug")).Initialize(context.Background()); err != nil {
		s.logger.Warn("eino debug server unavailable", zap.Error(err))
	}

	return app.NewRuntime(mgr,
		app.WithBuilder(app.NewEngineBuilder(s.logger, s.metrics)),
		app.WithLogger(s.logger.Named("runtime")),
	)
}

// engine builds the runtime on first use.
func (s *session) engine() (*app.Engine, error) {
	if s.runtime == nil {
		rt, err := s.newRuntime(s)
		if err != nil {
			return nil, err
		}
		s.runtime = rt
	}
	return s.runtime.Engine(), nil
}

func (s *session) display() *display.ResultsDisplay {
	return display.NewResultsDisplay(s.out)
}

func (s *session) close() {
	if s.runtime != nil {
		s.runtime.Close()
	}
	_ = s.logger.Sync()
}
