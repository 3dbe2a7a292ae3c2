package selection

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/internal/metrics"
	"github.com/dyike/CortexQuant/models"
)

const DefaultGateTTL = 180 * time.Second

// Selector is anything that can run a selection. *Pipeline implements it.
type Selector interface {
	Select(ctx context.Context, held []string) (*models.PipelineResult, error)
}

type gateEntry struct {
	at     time.Time
	key    string
	result *models.PipelineResult
}

type GateOption func(*Gate)

func WithGateTTL(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.ttl = d
		}
	}
}

func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

func WithGateLogger(l *zap.Logger) GateOption {
	return func(g *Gate) { g.logger = logger.OrNop(l) }
}

func WithGateMetrics(r *metrics.Recorder) GateOption {
	return func(g *Gate) { g.metrics = r }
}

// Gate collapses concurrent selections onto one pipeline run and serves the
// result from a single slot until it expires. The slot is keyed by the held
// set, so a different portfolio never sees a stale pick.
type Gate struct {
	sel     Selector
	ttl     time.Duration
	now     func() time.Time
	lock    *semaphore.Weighted
	slot    atomic.Pointer[gateEntry]
	runs    atomic.Int64
	logger  *zap.Logger
	metrics *metrics.Recorder
}

func NewGate(sel Selector, opts ...GateOption) *Gate {
	g := &Gate{
		sel:    sel,
		ttl:    DefaultGateTTL,
		now:    time.Now,
		lock:   semaphore.NewWeighted(1),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Select returns the cached result when it is fresh for held, otherwise
// runs the pipeline under the gate lock. Failures are not cached.
func (g *Gate) Select(ctx context.Context, held []string) (*models.PipelineResult, error) {
	key := holdingsKey(held)
	if res, ok := g.fresh(key); ok {
		g.metrics.RecordSelection("cache_hit")
		return res, nil
	}

	if err := g.lock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.lock.Release(1)

	// Whoever held the lock before us may have just filled the slot.
	if res, ok := g.fresh(key); ok {
		g.metrics.RecordSelection("cache_hit")
		return res, nil
	}

	start := g.now()
	g.runs.Add(1)
	res, err := g.sel.Select(ctx, held)
	if err != nil {
		g.metrics.RecordSelection("error")
		g.logger.Warn("selection failed", zap.Error(err))
		return nil, err
	}
	g.slot.Store(&gateEntry{at: g.now(), key: key, result: res})
	g.metrics.RecordSelection("executed")
	g.logger.Info("selection executed",
		zap.Int("candidates", len(res.Candidates)),
		zap.Duration("elapsed", g.now().Sub(start)))
	return res, nil
}

func (g *Gate) fresh(key string) (*models.PipelineResult, bool) {
	e := g.slot.Load()
	if e == nil || e.key != key || g.now().Sub(e.at) >= g.ttl {
		return nil, false
	}
	return e.result, true
}

// Invalidate drops the cached result.
func (g *Gate) Invalidate() {
	g.slot.Store(nil)
}

// Runs is the number of pipeline executions so far.
func (g *Gate) Runs() int64 {
	return g.runs.Load()
}

func holdingsKey(held []string) string {
	codes := append([]string(nil), held...)
	sort.Strings(codes)
	return strings.Join(codes, ",")
}
