package selection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexQuant/consts"
	"github.com/dyike/CortexQuant/models"
)

// votes builds a SignalMap of total agents where each code gets the given
// bullish/bearish/neutral split at a fixed confidence.
func votes(total int, split map[string][3]int, conf map[string]int) models.SignalMap {
	signals := make(models.SignalMap, total)
	for i := 0; i < total; i++ {
		signals[fmt.Sprintf("agent_%d", i)] = map[string]models.AgentSignal{}
	}
	for code, s := range split {
		i := 0
		for kind, n := range s {
			sig := []models.Signal{models.SignalBullish, models.SignalBearish, models.SignalNeutral}[kind]
			for j := 0; j < n; j++ {
				signals[fmt.Sprintf("agent_%d", i)][code] = models.NewAgentSignal(sig, conf[code], "")
				i++
			}
		}
	}
	return signals
}

func sectorCandidate(code string, pre float64) models.Candidate {
	return models.Candidate{
		CandidateFeatures: models.CandidateFeatures{Code: code},
		Sources:           []string{consts.StrategySector},
		PreScore:          pre,
	}
}

func TestSectorPickScenario(t *testing.T) {
	cands := []models.Candidate{sectorCandidate("A", 50), sectorCandidate("B", 50), sectorCandidate("C", 10)}
	signals := votes(8,
		map[string][3]int{"A": {5, 1, 2}, "B": {3, 3, 2}, "C": {6, 0, 2}},
		map[string]int{"A": 70, "B": 80, "C": 65},
	)
	for i := range cands {
		tally(&cands[i], signals)
	}

	assert.InDelta(t, 43.75, cands[0].AgentScore, 1e-9)
	assert.InDelta(t, 30.0, cands[1].AgentScore, 1e-9)
	assert.InDelta(t, 48.75, cands[2].AgentScore, 1e-9)

	best := pickSector(cands)
	require.NotNil(t, best)
	assert.Equal(t, "C", best.Code)
	assert.Equal(t, 6, best.Bullish)
	assert.Equal(t, 2, best.Neutral)
}

func TestTallyCountsFailedAgents(t *testing.T) {
	c := sectorCandidate("A", 0)
	signals := models.SignalMap{
		"ok":     {"A": models.NewAgentSignal(models.SignalBullish, 80, "")},
		"failed": {},
	}
	tally(&c, signals)
	assert.Equal(t, 1, c.Bullish)
	assert.InDelta(t, 80, c.AvgConfidence, 1e-9)
	assert.InDelta(t, 40, c.AgentScore, 1e-9)
}

func TestPickSectorTieBreaks(t *testing.T) {
	cands := []models.Candidate{sectorCandidate("B", 30), sectorCandidate("A", 30), sectorCandidate("C", 40)}
	for i := range cands {
		cands[i].AgentScore = 20
	}
	assert.Equal(t, "C", pickSector(cands).Code)
	cands[2].PreScore = 30
	assert.Equal(t, "A", pickSector(cands).Code)
	assert.Nil(t, pickSector(nil))
}

func wideCandidate(code string, agentScore, inflow float64) models.Candidate {
	f := models.CandidateFeatures{Code: code, NetInflow: inflow, ChangePct: 2, PETTM: 20}
	return models.Candidate{
		CandidateFeatures: f,
		Sources:           []string{consts.StrategyMarketWide},
		PreScore:          PreScore(f),
		AgentScore:        agentScore,
	}
}

func TestCompositeMonotonicInInflow(t *testing.T) {
	base := []models.Candidate{
		wideCandidate("A", 30, 2e8),
		wideCandidate("B", 40, 5e8),
		wideCandidate("C", 20, 1.2e9),
	}
	composite := func(inflow float64) float64 {
		cands := append([]models.Candidate(nil), base...)
		cands[0] = wideCandidate("A", 30, inflow)
		scoreMarketWide(cands)
		return cands[0].Composite
	}

	prev := composite(-1e9)
	for inflow := -1e9; inflow <= 3e9; inflow += 5e7 {
		got := composite(inflow)
		assert.GreaterOrEqual(t, got, prev-1e-9, "inflow %.0f", inflow)
		prev = got
	}
}

func TestScoreMarketWide(t *testing.T) {
	cands := []models.Candidate{
		wideCandidate("A", 30, 1e8),
		wideCandidate("B", 30, 9e8),
		sectorCandidate("S", 90),
	}
	best := scoreMarketWide(cands)
	require.NotNil(t, best)
	assert.Equal(t, "B", best.Code)
	assert.Zero(t, cands[2].Composite)

	// A single candidate has no spread and scales to the top of the range.
	solo := []models.Candidate{wideCandidate("A", 10, 1e8)}
	scoreMarketWide(solo)
	assert.InDelta(t, Composite(10, 100, 100), solo[0].Composite, 1e-9)

	assert.Nil(t, scoreMarketWide([]models.Candidate{sectorCandidate("S", 1)}))
}

func TestAgentScoreZeroAgents(t *testing.T) {
	assert.Zero(t, AgentScore(3, 0, 70))
}
