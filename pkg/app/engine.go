package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/config"
	"github.com/dyike/CortexQuant/internal/agents"
	"github.com/dyike/CortexQuant/internal/cache"
	"github.com/dyike/CortexQuant/internal/dataflows"
	"github.com/dyike/CortexQuant/internal/decision"
	"github.com/dyike/CortexQuant/internal/llm"
	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/internal/metrics"
	"github.com/dyike/CortexQuant/internal/selection"
	"github.com/dyike/CortexQuant/models"
)

// Engine is one immutable wiring of the orchestration core for a config.
// Runtime swaps whole engines on reload; Reconfigure lets the swap share the
// components a change did not touch.
type Engine struct {
	Config  config.Config
	BuiltAt time.Time
	Version uint64

	LLM         *llm.Client
	Market      dataflows.MarketData
	Coordinator *agents.Coordinator
	Aggregator  *decision.Aggregator
	Pipeline    *selection.Pipeline
	Gate        *selection.Gate

	deps Deps
}

var engineSeq atomic.Uint64

// Deps are the collaborators an engine is assembled from. Zero values are
// filled from the config.
type Deps struct {
	ChatModel model.ToolCallingChatModel
	Market    dataflows.MarketData
	Logger    *zap.Logger
	Metrics   *metrics.Recorder
}

func BuildEngine(cfg config.Config) (*Engine, error) {
	return Assemble(context.Background(), cfg, Deps{})
}

// NewEngineBuilder returns a builder that shares l and rec across rebuilds.
func NewEngineBuilder(l *zap.Logger, rec *metrics.Recorder) EngineBuilder {
	return func(cfg config.Config) (*Engine, error) {
		return Assemble(context.Background(), cfg, Deps{Logger: l, Metrics: rec})
	}
}

func Assemble(ctx context.Context, cfg config.Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{Config: cfg, deps: deps}
	if err := e.buildLLM(ctx); err != nil {
		return nil, err
	}
	e.buildMarket()
	if err := e.buildAgents(); err != nil {
		return nil, err
	}
	e.buildSelection()
	return e.stamp(), nil
}

// Reconfigure returns an engine for cfg that reuses every component of e
// outside the changed sections. Agents and selection are rebuilt in place;
// an LLM or market change rebuilds the whole chain on top of it. A new gate
// starts with an empty slot, so a selection change never serves a result
// computed under the old limits.
func (e *Engine) Reconfigure(ctx context.Context, cfg config.Config, changed config.Section) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	next := *e
	next.Config = cfg

	if changed.Has(config.SectionLLM) {
		if err := next.buildLLM(ctx); err != nil {
			return nil, err
		}
	}
	if changed.Has(config.SectionMarket) {
		next.buildMarket()
	}
	if changed.Has(config.SectionLLM | config.SectionMarket | config.SectionAgents) {
		if err := next.buildAgents(); err != nil {
			return nil, err
		}
	}
	if changed.Has(config.SectionLLM | config.SectionMarket | config.SectionAgents | config.SectionSelection) {
		next.buildSelection()
	}
	return next.stamp(), nil
}

func (e *Engine) log() *zap.Logger { return logger.OrNop(e.deps.Logger) }

func (e *Engine) buildLLM(ctx context.Context) error {
	cm := e.deps.ChatModel
	if cm == nil {
		var err error
		if cm, err = llm.NewChatModel(ctx, &e.Config); err != nil {
			return err
		}
	}
	e.LLM = llm.NewClient(cm, llm.OptionsFromConfig(&e.Config),
		llm.WithLogger(e.log().Named("llm")),
		llm.WithMetrics(e.deps.Metrics))

	agg, err := decision.NewAggregator(e.LLM, decision.WithLogger(e.log().Named("decision")))
	if err != nil {
		return err
	}
	e.Aggregator = agg
	return nil
}

func (e *Engine) buildMarket() {
	md := e.deps.Market
	if md == nil {
		md = newMarketData(&e.Config, e.log())
	}
	e.Market = cache.NewMarketDataCache(md, e.Config.MarketCacheTTL, e.Config.SectorCacheTTL, e.deps.Metrics)
}

func (e *Engine) buildAgents() error {
	coord := agents.NewCoordinator(
		agents.WithConcurrency(e.Config.AgentConcurrency),
		agents.WithAgentTimeout(e.Config.AgentTimeout),
		agents.WithCoordinatorLogger(e.log().Named("agents")),
		agents.WithCoordinatorMetrics(e.deps.Metrics),
	)
	roster, err := agents.DefaultRoster(e.Market, e.LLM, e.log().Named("agents"))
	if err != nil {
		return err
	}
	if err := coord.Register(roster...); err != nil {
		return err
	}
	e.Coordinator = coord
	return nil
}

func (e *Engine) buildSelection() {
	e.Pipeline = selection.NewPipeline(e.Market, e.Coordinator,
		selection.WithLimits(selection.Limits{
			SectorFetch:     e.Config.SectorFetch,
			MarketWideFetch: e.Config.MarketWideFetch,
			SectorTopN:      e.Config.SectorTopN,
			MarketWideTopN:  e.Config.MarketWideTopN,
		}),
		selection.WithPipelineLogger(e.log().Named("selection")),
	)
	e.Gate = selection.NewGate(e.Pipeline,
		selection.WithGateTTL(e.Config.SelectionCacheTTL),
		selection.WithGateLogger(e.log().Named("selection")),
		selection.WithGateMetrics(e.deps.Metrics),
	)
}

func (e *Engine) stamp() *Engine {
	e.BuiltAt = time.Now()
	e.Version = engineSeq.Add(1)
	return e
}

// newMarketData routes A-shares to Eastmoney, HK to Longport when
// credentials exist, and US tickers to Yahoo.
func newMarketData(cfg *config.Config, log *zap.Logger) dataflows.MarketData {
	opts := []dataflows.RouterOption{dataflows.WithUSSource(dataflows.NewYahooClient())}
	if cfg.HasLongport() {
		lp, err := dataflows.NewLongportClient(cfg)
		if err != nil {
			log.Warn("longport unavailable, HK quotes disabled", zap.Error(err))
		} else {
			opts = append(opts, dataflows.WithHKSource(lp))
		}
	}
	em := dataflows.NewEastmoneyClient(
		dataflows.WithEastmoneyTimeout(cfg.EastmoneyTimeout),
		dataflows.WithEastmoneyLogger(log.Named("eastmoney")),
	)
	return dataflows.NewRouter(em, opts...)
}

// RunAllAgents runs every agent over codes.
func (e *Engine) RunAllAgents(ctx context.Context, codes []string, holdings models.Holdings) agents.RunResult {
	return e.Coordinator.RunAll(ctx, agents.Input{Instruments: codes, Holdings: holdings})
}

// SelectCandidates goes through the deduplication gate.
func (e *Engine) SelectCandidates(ctx context.Context, held []string) (*models.PipelineResult, error) {
	return e.Gate.Select(ctx, held)
}

func (e *Engine) Decide(ctx context.Context, signals models.SignalMap, holdings models.Holdings, limits map[string]models.RiskLimit) (map[string]models.Decision, error) {
	return e.Aggregator.Decide(ctx, signals, holdings, limits)
}

// Analysis is one full cycle: agent signals, risk limits, decisions.
type Analysis struct {
	agents.RunResult
	Decisions map[string]models.Decision `json:"decisions"`
}

// Analyze runs the agents over codes and feeds the result to the aggregator.
func (e *Engine) Analyze(ctx context.Context, codes []string, holdings models.Holdings) (*Analysis, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("no instruments to analyze")
	}
	run := e.RunAllAgents(ctx, codes, holdings)
	decisions, err := e.Decide(ctx, run.Signals, holdings, run.RiskLimits)
	if err != nil {
		return nil, err
	}
	return &Analysis{RunResult: run, Decisions: decisions}, nil
}
