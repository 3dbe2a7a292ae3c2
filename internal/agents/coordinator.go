package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/internal/metrics"
	"github.com/dyike/CortexQuant/models"
)

const (
	DefaultConcurrency  = 8
	DefaultAgentTimeout = 180 * time.Second
)

var ErrDuplicateAgent = errors.New("agent already registered")

// AgentStatus is the bookkeeping kept for each registered agent.
type AgentStatus struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Running     bool          `json:"running"`
	Runs        int           `json:"runs"`
	LastRun     time.Time     `json:"last_run"`
	LastElapsed time.Duration `json:"last_elapsed"`
	Instruments int           `json:"instruments"`
	LastError   string        `json:"last_error,omitempty"`
}

type CoordinatorOption func(*Coordinator)

func WithConcurrency(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithAgentTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithCoordinatorLogger(l *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger.OrNop(l) }
}

func WithCoordinatorMetrics(r *metrics.Recorder) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = r }
}

// Coordinator fans a shared Input out to every registered agent and waits for
// all of them. A failing, panicking or hung agent contributes an empty map.
type Coordinator struct {
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
	metrics     *metrics.Recorder

	mu     sync.RWMutex
	agents []Agent
	status map[string]*AgentStatus
}

func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		concurrency: DefaultConcurrency,
		timeout:     DefaultAgentTimeout,
		logger:      zap.NewNop(),
		status:      make(map[string]*AgentStatus),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Register(agents ...Agent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range agents {
		name := a.Name()
		if _, ok := c.status[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateAgent, name)
		}
		c.agents = append(c.agents, a)
		c.status[name] = &AgentStatus{Name: name, Description: a.Description()}
	}
	return nil
}

func (c *Coordinator) Agents() []Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Agent(nil), c.agents...)
}

// Status returns a snapshot sorted by agent name.
func (c *Coordinator) Status() []AgentStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AgentStatus, 0, len(c.status))
	for _, s := range c.status {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type agentOutput struct {
	signals map[string]models.AgentSignal
	limits  map[string]models.RiskLimit
	err     error
}

// RunAll runs every registered agent over in. It returns once all agents
// have finished or been abandoned; every agent has an entry in the result.
func (c *Coordinator) RunAll(ctx context.Context, in Input) RunResult {
	agents := c.Agents()
	result := RunResult{
		Signals:    make(models.SignalMap, len(agents)),
		RiskLimits: make(map[string]models.RiskLimit),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, a := range agents {
		g.Go(func() error {
			out := c.runOne(gctx, a, in)

			mu.Lock()
			defer mu.Unlock()
			if out.err != nil {
				result.Signals[a.Name()] = map[string]models.AgentSignal{}
				return nil
			}
			result.Signals[a.Name()] = out.signals
			for code, limit := range out.limits {
				result.RiskLimits[code] = limit
			}
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func (c *Coordinator) runOne(ctx context.Context, a Agent, in Input) agentOutput {
	name := a.Name()
	start := time.Now()
	c.markRunning(name, len(in.Instruments))

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan agentOutput, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- agentOutput{err: fmt.Errorf("agent panic: %v", r)}
			}
		}()
		var out agentOutput
		if ra, ok := a.(RiskAssessor); ok {
			out.signals, out.limits, out.err = ra.Assess(runCtx, in)
		} else {
			out.signals, out.err = a.Analyze(runCtx, in)
		}
		done <- out
	}()

	var out agentOutput
	select {
	case out = <-done:
	case <-runCtx.Done():
		out.err = fmt.Errorf("agent abandoned: %w", runCtx.Err())
	}
	if out.err == nil && out.signals == nil {
		out.signals = map[string]models.AgentSignal{}
	}

	elapsed := time.Since(start)
	status := "ok"
	if out.err != nil {
		status = "error"
		c.logger.Warn("agent failed",
			zap.String("agent", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(out.err))
	} else {
		c.logger.Debug("agent finished",
			zap.String("agent", name),
			zap.Int("signals", len(out.signals)),
			zap.Duration("elapsed", elapsed))
	}
	c.metrics.RecordAgentRun(name, status, elapsed)
	c.markDone(name, start, elapsed, out.err)
	return out
}

func (c *Coordinator) markRunning(name string, instruments int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.status[name]; ok {
		s.Running = true
		s.Instruments = instruments
	}
}

func (c *Coordinator) markDone(name string, start time.Time, elapsed time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.status[name]
	if !ok {
		return
	}
	s.Running = false
	s.Runs++
	s.LastRun = start
	s.LastElapsed = elapsed
	s.LastError = ""
	if err != nil {
		s.LastError = err.Error()
	}
}
