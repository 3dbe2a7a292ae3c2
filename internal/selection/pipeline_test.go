package selection

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexQuant/consts"
	"github.com/dyike/CortexQuant/internal/agents"
	"github.com/dyike/CortexQuant/internal/dataflows/datatest"
	"github.com/dyike/CortexQuant/models"
)

// scriptedRunner returns fixed signals and records every call.
type scriptedRunner struct {
	mu      sync.Mutex
	calls   [][]string
	signals func(codes []string) models.SignalMap
}

func (r *scriptedRunner) RunAll(_ context.Context, in agents.Input) agents.RunResult {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), in.Instruments...))
	r.mu.Unlock()
	return agents.RunResult{Signals: r.signals(in.Instruments)}
}

func allBullish(codes []string) models.SignalMap {
	m := map[string]models.AgentSignal{}
	for _, c := range codes {
		m[c] = models.NewAgentSignal(models.SignalBullish, 60, "")
	}
	return models.SignalMap{"a": m}
}

func pipelineMarket() *datatest.Market {
	md := datatest.NewMarket()
	md.Sectors = []models.SectorRank{
		{Code: "BK1", Name: "银行", NetInflow: 1e8},
		{Code: "BK2", Name: "半导体", NetInflow: 3e9},
	}
	md.Constituents["BK2"] = []models.CandidateFeatures{
		{Code: "S1", ChangePct: 2, NetInflow: 5e8, PETTM: 40},
		{Code: "S2", ChangePct: 4, NetInflow: 2e9, PETTM: 20},
		{Code: "S3", ChangePct: 1},
		{Code: "S4", ChangePct: 12},
		{Code: "HELD", ChangePct: 2, NetInflow: 5e9, PETTM: 10},
	}
	md.MarketWide = []models.CandidateFeatures{
		{Code: "M1", NetInflow: 1e8},
		{Code: "M2", NetInflow: 4e9, ChangePct: 3},
		{Code: "S2", Name: "S2 full", ChangePct: 4, NetInflow: 2e9, PETTM: 20, PB: 2},
		{Code: "M3", NetInflow: 3e8},
		{Code: "M4", NetInflow: 2e8},
		{Code: "M5", NetInflow: 6e8},
		{Code: "HELD", NetInflow: 9e9},
	}
	return md
}

func TestPipelineSelect(t *testing.T) {
	runner := &scriptedRunner{signals: allBullish}
	p := NewPipeline(pipelineMarket(), runner)

	res, err := p.Select(context.Background(), []string{"HELD"})
	require.NoError(t, err)

	require.Len(t, runner.calls, 1, "one agent pass for both strategies")
	assert.NotContains(t, runner.calls[0], "HELD")
	assert.Equal(t, "半导体", res.SectorName)

	byCode := map[string]models.Candidate{}
	for _, c := range res.Candidates {
		byCode[c.Code] = c
	}
	// Sector keeps 3, market-wide keeps 5, S2 is shared.
	assert.Len(t, res.Candidates, 7)
	s2 := byCode["S2"]
	assert.True(t, s2.HasSource(consts.StrategySector))
	assert.True(t, s2.HasSource(consts.StrategyMarketWide))
	assert.Equal(t, "S2 full", s2.Name)
	assert.NotContains(t, byCode, "S4")

	require.NotNil(t, res.BestSector)
	require.NotNil(t, res.BestMarketWide)
	assert.True(t, res.BestSector.HasSource(consts.StrategySector))
	assert.True(t, res.BestMarketWide.HasSource(consts.StrategyMarketWide))
	assert.Equal(t, "S2", res.BestSector.Code)
	assert.Equal(t, "半导体", byCode["S1"].Sector)
}

func TestPipelineSurvivesOneStrategyFailing(t *testing.T) {
	md := pipelineMarket()
	md.Fail = func(method, _ string) error {
		if method == "sectors" {
			return errors.New("upstream down")
		}
		return nil
	}
	res, err := NewPipeline(md, &scriptedRunner{signals: allBullish}).Select(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, res.BestSector)
	require.NotNil(t, res.BestMarketWide)
	for _, c := range res.Candidates {
		assert.Equal(t, []string{consts.StrategyMarketWide}, c.Sources)
	}
}

func TestPipelineNoEligibleCandidates(t *testing.T) {
	md := datatest.NewMarket()
	md.MarketWide = []models.CandidateFeatures{{Code: "HELD"}}
	runner := &scriptedRunner{signals: allBullish}

	_, err := NewPipeline(md, runner).Select(context.Background(), []string{"HELD"})
	assert.ErrorIs(t, err, ErrNoEligibleCandidates)
	assert.Empty(t, runner.calls)
}

func TestPipelineHonoursLimits(t *testing.T) {
	runner := &scriptedRunner{signals: allBullish}
	p := NewPipeline(pipelineMarket(), runner, WithLimits(Limits{SectorTopN: 1, MarketWideTopN: 1}))
	res, err := p.Select(context.Background(), nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Candidates), 2)
}
