package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexQuant/internal/dataflows/datatest"
	"github.com/dyike/CortexQuant/models"
)

// zigzag alternates +5% and back, roughly 77% annualised.
func zigzag(n int) []models.Candle {
	out := make([]models.Candle, n)
	price := 10.0
	for i := range out {
		if i%2 == 1 {
			price *= 1.05
		} else if i > 0 {
			price /= 1.05
		}
		out[i] = models.Candle{Open: price, High: price, Low: price, Close: price, Volume: 1}
	}
	return out
}

func TestRiskAgentBands(t *testing.T) {
	md := datatest.NewMarket()
	md.SetCandles("calm", datatest.Trend(60, 10, 1.0))
	md.SetCandles("wild", zigzag(60))
	md.SetCandles("short", datatest.Trend(5, 10, 1.01))

	signals, limits, err := NewRiskAgent(md, nil).Assess(context.Background(), Input{
		Instruments: []string{"calm", "wild", "short", "missing"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.SignalBullish, signals["calm"].Signal)
	assert.Equal(t, 90, signals["calm"].Confidence)
	assert.InDelta(t, 0.25, limits["calm"].PositionLimitPct, 1e-9)

	assert.Equal(t, models.SignalBearish, signals["wild"].Signal)
	assert.Greater(t, limits["wild"].AnnualizedVolatility, 0.5)
	assert.InDelta(t, 0.05, limits["wild"].PositionLimitPct, 1e-9)
	assert.LessOrEqual(t, signals["wild"].Confidence, 90)

	// Too few candles falls back to 3% daily, about 48% annualised.
	assert.InDelta(t, 0.03, limits["short"].DailyVolatility, 1e-9)
	assert.Equal(t, models.SignalBearish, signals["short"].Signal)

	assert.Equal(t, models.SignalBearish, signals["missing"].Signal)
	assert.Equal(t, 50, signals["missing"].Confidence)
	assert.InDelta(t, 0.10, limits["missing"].PositionLimitPct, 1e-9)
}

func TestPositionLimit(t *testing.T) {
	cases := []struct {
		vol  float64
		want float64
	}{
		{0.10, 0.25},
		{0.15, 0.20},
		{0.25, 0.19},
		{0.30, 0.15},
		{0.40, 0.14},
		{0.60, 0.05},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, positionLimit(tc.vol), 1e-9, "vol %.2f", tc.vol)
	}
}

func TestRiskSignalConfidenceIsBounded(t *testing.T) {
	for vol := 0.0; vol < 3; vol += 0.01 {
		sig := riskSignal(vol, positionLimit(vol))
		assert.GreaterOrEqual(t, sig.Confidence, 0)
		assert.LessOrEqual(t, sig.Confidence, 95)
	}
}
