package service

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/pkg/app"
	"github.com/dyike/CortexQuant/pkg/bridge"
)

const Version = "0.3.0"

// ErrNoEngine is returned while no engine has been built yet.
var ErrNoEngine = errors.New("engine is not initialized")

// EngineSource yields the current engine. *app.Runtime satisfies it.
type EngineSource interface {
	Engine() *app.Engine
}

// Service is the JSON-in, JSON-out surface the host app calls through the
// bridge. Long runs are started in the background and report via
// bridge.Notify; their results are kept under historyDir.
type Service struct {
	engines    EngineSource
	historyDir string
	notify     bridge.NotifyFunc
	logger     *zap.Logger
	now        func() time.Time

	wg sync.WaitGroup
}

type Option func(*Service)

func WithNotifier(fn bridge.NotifyFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.notify = fn
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logger.OrNop(l) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(engines EngineSource, historyDir string, opts ...Option) *Service {
	s := &Service{
		engines:    engines,
		historyDir: historyDir,
		notify:     bridge.Notify,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) engine() (*app.Engine, error) {
	if s.engines == nil {
		return nil, ErrNoEngine
	}
	e := s.engines.Engine()
	if e == nil {
		return nil, ErrNoEngine
	}
	return e, nil
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) SystemInfo() any {
	info := map[string]any{
		"version": Version,
	}
	if e, err := s.engine(); err == nil {
		info["engine_version"] = e.Version
		info["engine_built_at"] = e.BuiltAt.UTC().Format(time.RFC3339)
		info["agents"] = len(e.Coordinator.Agents())
		info["llm_provider"] = e.Config.LLMProvider
	}
	return info
}
