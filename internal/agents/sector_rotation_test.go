package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexQuant/internal/dataflows/datatest"
	"github.com/dyike/CortexQuant/models"
)

func rotationMarket() *datatest.Market {
	md := datatest.NewMarket()
	md.Sectors = []models.SectorRank{
		{Code: "BK1", Name: "半导体"},
		{Code: "BK2", Name: "银行"},
		{Code: "BK3", Name: "电力"},
		{Code: "BK4", Name: "地产"},
	}
	md.Constituents["BK1"] = []models.CandidateFeatures{
		{Code: "A1", ChangePct: 3, NetInflow: 1e8},
		{Code: "A2", ChangePct: 4, NetInflow: 2e8},
	}
	md.Constituents["BK2"] = []models.CandidateFeatures{
		{Code: "B1", ChangePct: 1, NetInflow: 1e7},
		{Code: "B2", ChangePct: -1, NetInflow: -1e7},
	}
	md.Constituents["BK3"] = []models.CandidateFeatures{
		{Code: "C1", ChangePct: 1, NetInflow: 1e7},
		{Code: "C2", ChangePct: -1, NetInflow: -1e7},
	}
	md.Constituents["BK4"] = []models.CandidateFeatures{
		{Code: "D1", ChangePct: -3, NetInflow: -1e8},
		{Code: "D2", ChangePct: -4, NetInflow: -2e8},
	}
	return md
}

func TestSectorRotationSignals(t *testing.T) {
	a := NewSectorRotationAgent(rotationMarket(), nil)
	out, err := a.Analyze(context.Background(), Input{Instruments: []string{"A1", "D1", "B1", "Z9"}})
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, models.SignalBullish, out["A1"].Signal)
	assert.Equal(t, 90, out["A1"].Confidence)
	assert.Contains(t, out["A1"].Reasoning, "半导体")

	assert.Equal(t, models.SignalBearish, out["D1"].Signal)
	assert.Equal(t, 90, out["D1"].Confidence)
	assert.Contains(t, out["D1"].Reasoning, "地产")

	for _, code := range []string{"B1", "Z9"} {
		assert.Equal(t, models.SignalNeutral, out[code].Signal, code)
		assert.Equal(t, strategyHoldConfidence, out[code].Confidence, code)
	}
}

func TestSectorRotationRankingError(t *testing.T) {
	md := rotationMarket()
	md.Fail = func(method, _ string) error {
		if method == "sectors" {
			return errors.New("upstream down")
		}
		return nil
	}
	_, err := NewSectorRotationAgent(md, nil).Analyze(context.Background(), Input{Instruments: []string{"A1"}})
	assert.ErrorContains(t, err, "sector ranking")
}

func TestSectorRotationSkipsBrokenSectors(t *testing.T) {
	md := rotationMarket()
	md.Fail = func(method, key string) error {
		if method == "constituents" && key != "BK1" {
			return errors.New("no data")
		}
		return nil
	}
	out, err := NewSectorRotationAgent(md, nil).Analyze(context.Background(), Input{Instruments: []string{"A1"}})
	require.NoError(t, err)
	// One rated sector is too few to rotate between.
	assert.Equal(t, models.SignalNeutral, out["A1"].Signal)
}

func TestSectorRotationEmptyInput(t *testing.T) {
	md := rotationMarket()
	out, err := NewSectorRotationAgent(md, nil).Analyze(context.Background(), Input{})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, md.SectorCalls.Load())
}

func TestScanSectors(t *testing.T) {
	ranks := make([]models.SectorRank, 25)
	for i := range ranks {
		ranks[i].Code = string(rune('a' + i))
	}
	got := scanSectors(ranks, 10)
	require.Len(t, got, 20)
	assert.Equal(t, "a", got[0].Code)
	assert.Equal(t, "j", got[9].Code)
	assert.Equal(t, "p", got[10].Code)
	assert.Equal(t, "y", got[19].Code)

	assert.Len(t, scanSectors(ranks[:15], 10), 15)
}

func TestRateSectorBounds(t *testing.T) {
	hot := rateSector(models.SectorRank{}, []models.CandidateFeatures{{ChangePct: 9.9, NetInflow: 1}})
	assert.InDelta(t, 100, hot.score, 1e-9)
	cold := rateSector(models.SectorRank{}, []models.CandidateFeatures{{ChangePct: -9.9, NetInflow: -1}})
	assert.InDelta(t, 0, cold.score, 1e-9)
	even := rateSector(models.SectorRank{}, []models.CandidateFeatures{
		{Code: "x", ChangePct: 1, NetInflow: 1},
		{Code: "y", ChangePct: -1, NetInflow: -1},
	})
	assert.InDelta(t, 50, even.score, 1e-9)
	assert.Len(t, even.members, 2)
}
