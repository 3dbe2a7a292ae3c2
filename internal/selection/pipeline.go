package selection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dyike/CortexQuant/consts"
	"github.com/dyike/CortexQuant/internal/agents"
	"github.com/dyike/CortexQuant/internal/dataflows"
	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/models"
)

var ErrNoEligibleCandidates = errors.New("no eligible candidates")

// Runner is the agent pass. *agents.Coordinator implements it.
type Runner interface {
	RunAll(ctx context.Context, in agents.Input) agents.RunResult
}

type Limits struct {
	SectorFetch     int
	MarketWideFetch int
	SectorTopN      int
	MarketWideTopN  int
}

func DefaultLimits() Limits {
	return Limits{SectorFetch: 8, MarketWideFetch: 30, SectorTopN: 3, MarketWideTopN: 5}
}

type PipelineOption func(*Pipeline)

func WithLimits(l Limits) PipelineOption {
	return func(p *Pipeline) {
		def := DefaultLimits()
		if l.SectorFetch <= 0 {
			l.SectorFetch = def.SectorFetch
		}
		if l.MarketWideFetch <= 0 {
			l.MarketWideFetch = def.MarketWideFetch
		}
		if l.SectorTopN <= 0 {
			l.SectorTopN = def.SectorTopN
		}
		if l.MarketWideTopN <= 0 {
			l.MarketWideTopN = def.MarketWideTopN
		}
		p.limits = l
	}
}

func WithPipelineLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger.OrNop(l) }
}

// Pipeline sources candidates from the sector and market-wide strategies,
// pre-filters them, runs the agents once over the survivors and picks a
// winner per strategy.
type Pipeline struct {
	market dataflows.MarketData
	runner Runner
	limits Limits
	now    func() time.Time
	logger *zap.Logger
}

func NewPipeline(md dataflows.MarketData, runner Runner, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		market: md,
		runner: runner,
		limits: DefaultLimits(),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type sourced struct {
	sectorName string
	features   []models.CandidateFeatures
}

func (p *Pipeline) Select(ctx context.Context, held []string) (*models.PipelineResult, error) {
	exclude := make(map[string]struct{}, len(held))
	for _, code := range held {
		exclude[code] = struct{}{}
	}

	// Phase 1: both strategies in parallel; one failing leaves the other.
	var sector, wide sourced
	var g errgroup.Group
	g.Go(func() error {
		s, err := p.sourceSector(ctx, exclude)
		if err != nil {
			p.logger.Warn("sector sourcing failed", zap.String("strategy", consts.StrategySector), zap.Error(err))
			return nil
		}
		sector = s
		return nil
	})
	g.Go(func() error {
		s, err := p.sourceMarketWide(ctx, exclude)
		if err != nil {
			p.logger.Warn("market-wide sourcing failed", zap.String("strategy", consts.StrategyMarketWide), zap.Error(err))
			return nil
		}
		wide = s
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 2: pre-score, truncate, merge.
	candidates := merge(
		rankByPreScore(sector.features, consts.StrategySector, p.limits.SectorTopN),
		rankByPreScore(wide.features, consts.StrategyMarketWide, p.limits.MarketWideTopN),
	)
	p.logger.Info("candidates pre-filtered",
		zap.String("sector", sector.sectorName),
		zap.Int("sector_sourced", len(sector.features)),
		zap.Int("market_wide_sourced", len(wide.features)),
		zap.Int("kept", len(candidates)))
	if len(candidates) == 0 {
		return nil, ErrNoEligibleCandidates
	}

	// Phase 3: a single agent pass over every survivor.
	codes := make([]string, len(candidates))
	for i, c := range candidates {
		codes[i] = c.Code
	}
	run := p.runner.RunAll(ctx, agents.Input{Instruments: codes})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 4: score and pick.
	for i := range candidates {
		tally(&candidates[i], run.Signals)
	}
	bestSector := pickSector(candidates)
	bestWide := scoreMarketWide(candidates)

	result := &models.PipelineResult{
		SectorName:  sector.sectorName,
		Candidates:  candidates,
		GeneratedAt: p.now(),
	}
	if bestSector != nil {
		c := *bestSector
		result.BestSector = &c
	}
	if bestWide != nil {
		c := *bestWide
		result.BestMarketWide = &c
	}
	return result, nil
}

func (p *Pipeline) sourceSector(ctx context.Context, exclude map[string]struct{}) (sourced, error) {
	ranking, err := p.market.GetSectorRanking(ctx)
	if err != nil {
		return sourced{}, fmt.Errorf("sector ranking: %w", err)
	}
	if len(ranking) == 0 {
		return sourced{}, nil
	}
	top := ranking[0]
	for _, s := range ranking[1:] {
		if s.NetInflow > top.NetInflow {
			top = s
		}
	}

	members, err := p.market.GetSectorConstituents(ctx, top.Code, p.limits.SectorFetch)
	if err != nil {
		return sourced{}, fmt.Errorf("constituents of %s: %w", top.Name, err)
	}
	features := eligible(members, exclude)
	for i := range features {
		if features[i].Sector == "" {
			features[i].Sector = top.Name
		}
	}
	return sourced{sectorName: top.Name, features: features}, nil
}

func (p *Pipeline) sourceMarketWide(ctx context.Context, exclude map[string]struct{}) (sourced, error) {
	ranking, err := p.market.GetMarketWideRanking(ctx, p.limits.MarketWideFetch)
	if err != nil {
		return sourced{}, fmt.Errorf("market-wide ranking: %w", err)
	}
	features := eligible(ranking, exclude)
	sort.SliceStable(features, func(i, j int) bool {
		return features[i].NetInflow > features[j].NetInflow
	})
	return sourced{features: features}, nil
}

func eligible(in []models.CandidateFeatures, exclude map[string]struct{}) []models.CandidateFeatures {
	out := make([]models.CandidateFeatures, 0, len(in))
	for _, f := range in {
		if f.Code == "" {
			continue
		}
		if _, held := exclude[f.Code]; held {
			continue
		}
		out = append(out, f)
	}
	return out
}
