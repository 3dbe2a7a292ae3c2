package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/config"
	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/pkg/bridge"
)

// EngineBuilder assembles a complete engine. Runtime calls it at start and
// whenever a change reaches the LLM or market sections.
type EngineBuilder func(config.Config) (*Engine, error)

// Changes in rebuildSections take a fresh engine from the builder. Other changes are
// applied to the live engine through Reconfigure.
const rebuildSections = config.SectionLLM | config.SectionMarket

type Option func(*Runtime)

func WithBuilder(builder EngineBuilder) Option {
	return func(r *Runtime) {
		if builder != nil {
			r.builder = builder
		}
	}
}

func WithNotifier(fn func(topic, payload string)) Option {
	return func(r *Runtime) {
		r.notify = fn
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger.OrNop(l)
	}
}

// Runtime keeps the current engine in step with the config manager.
type Runtime struct {
	cfgMgr *config.Manager
	engine atomic.Pointer[Engine]
	mu     sync.Mutex

	builder EngineBuilder
	notify  func(string, string)
	logger  *zap.Logger
	cancel  context.CancelFunc
}

func NewRuntime(cfgMgr *config.Manager, opts ...Option) (*Runtime, error) {
	if cfgMgr == nil {
		return nil, fmt.Errorf("config manager is required")
	}

	rt := &Runtime{
		cfgMgr:  cfgMgr,
		builder: BuildEngine,
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(rt)
	}

	if err := rt.apply(config.Change{New: cfgMgr.Get(), Sections: config.SectionAll}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	if err := cfgMgr.Watch(ctx, func(ch config.Change) {
		if err := rt.apply(ch); err != nil {
			rt.logger.Warn("engine reload failed, keeping previous engine",
				zap.Stringer("sections", ch.Sections), zap.Error(err))
		}
	}); err != nil {
		cancel()
		return nil, err
	}

	return rt, nil
}

func (r *Runtime) Engine() *Engine {
	return r.engine.Load()
}

func (r *Runtime) Close() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runtime) UpdateConfigJSON(jsonStr string) error {
	return r.cfgMgr.UpdateFromJSON(jsonStr)
}

// apply moves the runtime to ch.New. Changes confined to agents, selection
// or runtime keys reuse the live LLM client and market cache, so pacing state
// and cached quotes survive the swap.
func (r *Runtime) apply(ch config.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.engine.Load()
	full := prev == nil || ch.Sections.Has(rebuildSections)
	var (
		engine *Engine
		err    error
	)
	if full {
		engine, err = r.builder(ch.New)
	} else {
		engine, err = prev.Reconfigure(context.Background(), ch.New, ch.Sections)
	}
	if err != nil {
		r.publish(bridge.TopicEngineReloadFailed, map[string]any{
			"error":    err.Error(),
			"sections": ch.Sections.String(),
		})
		return err
	}

	r.engine.Store(engine)
	r.logger.Info("engine built",
		zap.Uint64("version", engine.Version),
		zap.Stringer("sections", ch.Sections),
		zap.Bool("full", full))
	r.publish(bridge.TopicEngineReloaded, map[string]any{
		"version":  engine.Version,
		"built_at": engine.BuiltAt.UTC().Format(time.RFC3339),
		"sections": ch.Sections.String(),
		"full":     full,
	})
	return nil
}

func (r *Runtime) publish(topic string, payload map[string]any) {
	if r.notify == nil {
		return
	}
	data, _ := json.Marshal(payload)
	r.notify(topic, string(data))
}
