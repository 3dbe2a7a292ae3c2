package models

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentSignalUnmarshalNormalises(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want AgentSignal
	}{
		{"plain", `{"signal":"bullish","confidence":72,"reasoning":"trend up"}`, AgentSignal{SignalBullish, 72, "trend up"}},
		{"string confidence", `{"signal":"Bearish","confidence":"65"}`, AgentSignal{SignalBearish, 65, ""}},
		{"percent string", `{"signal":"sell","confidence":"80%"}`, AgentSignal{SignalBearish, 80, ""}},
		{"over range", `{"signal":"bullish","confidence":250}`, AgentSignal{SignalBullish, 100, ""}},
		{"negative", `{"signal":"bullish","confidence":-4}`, AgentSignal{SignalBullish, 0, ""}},
		{"unknown signal", `{"signal":"moon","confidence":50}`, AgentSignal{SignalNeutral, 50, ""}},
		{"missing signal", `{"confidence":50}`, AgentSignal{SignalNeutral, 50, ""}},
		{"fractional", `{"signal":"neutral","confidence":49.6}`, AgentSignal{SignalNeutral, 50, ""}},
		{"structured reasoning", `{"signal":"neutral","confidence":1,"reasoning":{"a":1}}`, AgentSignal{SignalNeutral, 1, `{"a":1}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got AgentSignal
			require.NoError(t, json.Unmarshal([]byte(tc.in), &got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAgentSignalRejectsNonNumericConfidence(t *testing.T) {
	var got AgentSignal
	require.Error(t, json.Unmarshal([]byte(`{"signal":"bullish","confidence":"high"}`), &got))
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 2000; i++ {
		raw := (rng.Float64() - 0.5) * 1e6
		payload := fmt.Sprintf(`{"signal":"bullish","confidence":%f}`, raw)

		var s AgentSignal
		require.NoError(t, json.Unmarshal([]byte(payload), &s))
		require.GreaterOrEqual(t, s.Confidence, 0)
		require.LessOrEqual(t, s.Confidence, 100)
		require.Contains(t, []Signal{SignalBullish, SignalBearish, SignalNeutral}, s.Signal)
	}
}

func TestDecisionHoldHasZeroQuantity(t *testing.T) {
	var d Decision
	require.NoError(t, json.Unmarshal([]byte(`{"action":"HOLD","quantity":300,"confidence":"55"}`), &d))
	assert.Equal(t, ActionHold, d.Action)
	assert.Zero(t, d.Quantity)
	assert.Equal(t, 55, d.Confidence)

	require.NoError(t, json.Unmarshal([]byte(`{"action":"buy","quantity":-10}`), &d))
	assert.Equal(t, ActionBuy, d.Action)
	assert.Zero(t, d.Quantity)
}

func TestDecisionQuantityStaysNonNegative(t *testing.T) {
	cases := map[string]int{
		`1e30`:    math.MaxInt32,
		`"1e30"`:  math.MaxInt32,
		`"Inf"`:   math.MaxInt32,
		`"-Inf"`:  0,
		`"NaN"`:   0,
		`"250.9"`: 250,
		`0.4`:     0,
		`-1e300`:  0,
	}
	for qty, want := range cases {
		t.Run(qty, func(t *testing.T) {
			var d Decision
			require.NoError(t, json.Unmarshal([]byte(`{"action":"buy","quantity":`+qty+`}`), &d))
			assert.Equal(t, want, d.Quantity)
		})
	}
}

func TestCandidateFeaturesRichness(t *testing.T) {
	sparse := CandidateFeatures{Code: "600000", NetInflow: 1}
	rich := CandidateFeatures{Code: "600000", Name: "浦发银行", NetInflow: 1, PETTM: 5, PB: 0.5}
	assert.Greater(t, rich.Richness(), sparse.Richness())
}
