package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexQuant/internal/dataflows/datatest"
	"github.com/dyike/CortexQuant/models"
)

// bars builds daily candles from closes; a nil vols gives volume 1 throughout.
func bars(cl []float64, vols []float64) []models.Candle {
	out := make([]models.Candle, len(cl))
	for i, c := range cl {
		prev := c
		if i > 0 {
			prev = cl[i-1]
		}
		v := 1.0
		if vols != nil {
			v = vols[i]
		}
		out[i] = models.Candle{Open: prev, High: max(prev, c), Low: min(prev, c), Close: c, Volume: v}
	}
	return out
}

func flat(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

// breakout drifts slightly lower for 40 bars, then jumps 5% on triple volume.
func breakout() []models.Candle {
	cl := make([]float64, 41)
	vols := flat(41, 1)
	price := 10.0
	for i := 0; i < 40; i++ {
		price *= 0.999
		cl[i] = price
	}
	cl[40] = price * 1.05
	vols[40] = 3
	return bars(cl, vols)
}

// selloff is flat at 10, then falls three days in a row.
func selloff() []models.Candle {
	cl := append(flat(40, 10), 9.7, 9.3, 8.9)
	return bars(cl, nil)
}

func TestMomentumVotes(t *testing.T) {
	cases := []struct {
		name      string
		in        momentumInputs
		buy, sell int
	}{
		{"oversold and rising", momentumInputs{rsi: 25, momentum: 0.05, volumeRatio: 1, bandPos: 0.5}, 5, 0},
		{"overbought and falling", momentumInputs{rsi: 80, momentum: -0.05, volumeRatio: 1, bandPos: 0.9}, 0, 6},
		{"volume sides with buyers", momentumInputs{rsi: 40, momentum: 0.01, goldenCross: true, volumeRatio: 2, bandPos: 0.1}, 7, 0},
		{"flat momentum lets volume back sellers", momentumInputs{rsi: 50, momentum: 0, volumeRatio: 2, bandPos: 0.5}, 0, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buy, sell := momentumVotes(tc.in)
			assert.Equal(t, tc.buy, buy)
			assert.Equal(t, tc.sell, sell)
		})
	}
}

func TestVoteSignal(t *testing.T) {
	hold := voteSignal(3, 3, 4, 50, 10, 90, nil, "综合判断")
	assert.Equal(t, models.SignalNeutral, hold.Signal)
	assert.Equal(t, strategyHoldConfidence, hold.Confidence)
	assert.Equal(t, "综合判断", hold.Reasoning)

	buy := voteSignal(6, 1, 4, 50, 10, 90, []string{"a", "b"}, "")
	assert.Equal(t, models.SignalBullish, buy.Signal)
	assert.Equal(t, 70, buy.Confidence)
	assert.Equal(t, "a，b", buy.Reasoning)

	capped := voteSignal(0, 12, 4, 50, 10, 90, nil, "")
	assert.Equal(t, models.SignalBearish, capped.Signal)
	assert.Equal(t, 90, capped.Confidence)

	tie := voteSignal(5, 5, 4, 50, 10, 90, nil, "")
	assert.Equal(t, models.SignalBearish, tie.Signal)
}

func TestMomentumSignalOnBreakout(t *testing.T) {
	sig := momentumSignal(breakout())
	assert.Equal(t, models.SignalBullish, sig.Signal)
	assert.Equal(t, 80, sig.Confidence)
	assert.Contains(t, sig.Reasoning, "MACD金叉")
	assert.Contains(t, sig.Reasoning, "成交量放大")
}

func TestMeanReversionVotes(t *testing.T) {
	buy, sell := meanReversionVotes(reversionInputs{zScore: -2.5, bandPos: 0.05, rsi: 25, trend: -0.05, volumeRatio: 1.5})
	assert.Equal(t, 11, buy)
	assert.Equal(t, 0, sell)

	buy, sell = meanReversionVotes(reversionInputs{zScore: 1.5, bandPos: 0.75, rsi: 65, trend: 0.05, volumeRatio: 1})
	assert.Equal(t, 0, buy)
	assert.Equal(t, 5, sell)

	// The trend bonus only backs a side that already has points.
	buy, sell = meanReversionVotes(reversionInputs{bandPos: 0.5, rsi: 50, trend: -0.05, volumeRatio: 1})
	assert.Zero(t, buy)
	assert.Zero(t, sell)
}

func TestMeanReversionSignalOnSelloff(t *testing.T) {
	sig := meanReversionSignal(selloff())
	assert.Equal(t, models.SignalBullish, sig.Signal)
	assert.Equal(t, 95, sig.Confidence)
	assert.Contains(t, sig.Reasoning, "低于均值")
}

func TestMultiFactorSignalBands(t *testing.T) {
	cases := []struct {
		name   string
		total  float64
		risk   float64
		signal models.Signal
		conf   int
	}{
		{"strong buy", 85, 0, models.SignalBullish, 85},
		{"buy discounted for risk", 65, 0.5, models.SignalBullish, 59},
		{"sell", 15, 0, models.SignalBearish, 80},
		{"hold", 50, 0, models.SignalNeutral, strategyHoldConfidence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := multiFactorSignal(tc.total, tc.risk, "r")
			assert.Equal(t, tc.signal, sig.Signal)
			assert.Equal(t, tc.conf, sig.Confidence)
		})
	}
}

func TestValueFactor(t *testing.T) {
	assert.InDelta(t, 50, valueFactor(nil), 1e-9)
	assert.InDelta(t, 25, valueFactor(&models.Quote{PETTM: 25, PB: 8}), 1e-9)
	assert.InDelta(t, 70, valueFactor(&models.Quote{PE: 10, PB: 2}), 1e-9)
	assert.InDelta(t, 50, valueFactor(&models.Quote{PETTM: -5}), 1e-9)
}

func TestFactorsStayInRange(t *testing.T) {
	for name, candles := range map[string][]models.Candle{
		"breakout": breakout(),
		"selloff":  selloff(),
		"uptrend":  datatest.Trend(100, 10, 1.02),
		"zigzag":   zigzag(80),
	} {
		cl, vols := closes(candles), volumes(candles)
		for factor, v := range map[string]float64{
			"technical": technicalFactor(candles),
			"momentum":  momentumFactor(cl, vols),
			"quality":   qualityFactor(cl, vols),
			"relative":  relativeStrength(cl),
		} {
			assert.GreaterOrEqual(t, v, 0.0, "%s %s", name, factor)
			assert.LessOrEqual(t, v, 100.0, "%s %s", name, factor)
		}
		r := riskScore(cl, vols)
		assert.GreaterOrEqual(t, r, 0.0, name)
		assert.LessOrEqual(t, r, 1.0, name)
	}
}

func TestStrategyAgentsCoverEveryInstrument(t *testing.T) {
	md := datatest.NewMarket()
	md.SetQuote(&models.Quote{Code: "600519", PETTM: 25, PB: 8})
	md.SetCandles("600519", breakout())
	md.SetCandles("000001", selloff())
	md.SetCandles("short", datatest.Trend(10, 10, 1.01))

	in := Input{Instruments: []string{"600519", "000001", "short", "missing"}}
	for _, a := range []*StrategyAgent{
		NewMomentumAgent(md, nil),
		NewMeanReversionAgent(md, nil),
		NewMultiFactorAgent(md, nil),
	} {
		t.Run(a.Name(), func(t *testing.T) {
			out, err := a.Analyze(context.Background(), in)
			require.NoError(t, err)
			require.Len(t, out, 4)
			for _, code := range []string{"short", "missing"} {
				assert.Equal(t, models.SignalNeutral, out[code].Signal, code)
				assert.Equal(t, strategyHoldConfidence, out[code].Confidence, code)
			}
			for code, sig := range out {
				assert.GreaterOrEqual(t, sig.Confidence, 0, code)
				assert.LessOrEqual(t, sig.Confidence, 100, code)
				assert.NotEmpty(t, sig.Reasoning, code)
			}
		})
	}
}

func TestStrategyAgentStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMomentumAgent(datatest.NewMarket(), nil).Analyze(ctx, Input{Instruments: []string{"600519"}})
	assert.ErrorIs(t, err, context.Canceled)
}
