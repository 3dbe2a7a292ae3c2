package agents

import (
	"context"

	"github.com/dyike/CortexQuant/models"
)

// Input is shared read-only by every agent in one run.
type Input struct {
	Instruments []string
	Holdings    models.Holdings
}

// Agent turns a set of instruments into one signal per instrument.
type Agent interface {
	Name() string
	Description() string
	Analyze(ctx context.Context, in Input) (map[string]models.AgentSignal, error)
}

// RiskAssessor is an Agent that also reports per-instrument position limits.
// The coordinator calls Assess instead of Analyze for such agents.
type RiskAssessor interface {
	Agent
	Assess(ctx context.Context, in Input) (map[string]models.AgentSignal, map[string]models.RiskLimit, error)
}

// RunResult is the merged output of one coordinator run.
type RunResult struct {
	Signals    models.SignalMap            `json:"signals"`
	RiskLimits map[string]models.RiskLimit `json:"risk_limits"`
}
