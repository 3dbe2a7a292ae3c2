package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Signal string

const (
	SignalBullish Signal = "bullish"
	SignalBearish Signal = "bearish"
	SignalNeutral Signal = "neutral"
)

// ParseSignal maps free-form model output onto the three signal values.
// Anything unrecognised becomes neutral.
func ParseSignal(s string) Signal {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bullish", "bull", "buy", "positive", "long":
		return SignalBullish
	case "bearish", "bear", "sell", "negative", "short":
		return SignalBearish
	default:
		return SignalNeutral
	}
}

// AgentSignal is one agent's view on one instrument.
type AgentSignal struct {
	Signal     Signal `json:"signal"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// SignalMap is keyed by agent name, then instrument code.
type SignalMap map[string]map[string]AgentSignal

func NewAgentSignal(signal Signal, confidence int, reasoning string) AgentSignal {
	return AgentSignal{
		Signal:     ParseSignal(string(signal)),
		Confidence: ClampConfidence(float64(confidence)),
		Reasoning:  reasoning,
	}
}

// ClampConfidence rounds v and bounds it to [0, 100].
func ClampConfidence(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}

func (s *AgentSignal) UnmarshalJSON(data []byte) error {
	var raw struct {
		Signal     string `json:"signal"`
		Confidence any    `json:"confidence"`
		Reasoning  any    `json:"reasoning"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	conf, err := ParseNumber(raw.Confidence)
	if err != nil {
		return fmt.Errorf("confidence: %w", err)
	}
	s.Signal = ParseSignal(raw.Signal)
	s.Confidence = ClampConfidence(conf)
	s.Reasoning = stringify(raw.Reasoning)
	return nil
}

// ParseNumber accepts JSON numbers, numeric strings ("72", "72%") and null.
func ParseNumber(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(n), "%")
		if trimmed == "" {
			return 0, nil
		}
		return strconv.ParseFloat(trimmed, 64)
	case bool:
		return 0, fmt.Errorf("unexpected boolean")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func stringify(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Sprint(r)
		}
		return string(b)
	}
}
