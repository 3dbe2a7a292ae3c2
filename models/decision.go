package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

func ParseAction(s string) Action {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long", "add":
		return ActionBuy
	case "sell", "short", "reduce", "exit":
		return ActionSell
	default:
		return ActionHold
	}
}

// Decision is the final per-instrument trade instruction.
type Decision struct {
	Action     Action `json:"action"`
	Quantity   int    `json:"quantity"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// HoldDecision is the safe default when no decision could be inferred.
func HoldDecision(reason string) Decision {
	return Decision{Action: ActionHold, Reasoning: reason}
}

func (d *Decision) UnmarshalJSON(data []byte) error {
	var raw struct {
		Action     string `json:"action"`
		Quantity   any    `json:"quantity"`
		Confidence any    `json:"confidence"`
		Reasoning  any    `json:"reasoning"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	qty, err := ParseNumber(raw.Quantity)
	if err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	conf, err := ParseNumber(raw.Confidence)
	if err != nil {
		return fmt.Errorf("confidence: %w", err)
	}
	d.Action = ParseAction(raw.Action)
	d.Quantity = clampQuantity(qty)
	d.Confidence = ClampConfidence(conf)
	d.Reasoning = stringify(raw.Reasoning)
	if d.Action == ActionHold {
		d.Quantity = 0
	}
	return nil
}

// clampQuantity floors v into [0, MaxInt32]; NaN is 0.
func clampQuantity(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Floor(v))
}

// Position is one held instrument.
type Position struct {
	Quantity int     `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

type Holdings struct {
	Cash      float64             `json:"cash"`
	Positions map[string]Position `json:"positions"`
}

// Codes returns the codes of all positions with a non-zero quantity.
func (h Holdings) Codes() []string {
	codes := make([]string, 0, len(h.Positions))
	for code, p := range h.Positions {
		if p.Quantity > 0 {
			codes = append(codes, code)
		}
	}
	return codes
}

// RiskLimit is the volatility-derived ceiling the risk agent reports for an
// instrument.
type RiskLimit struct {
	PositionLimitPct     float64 `json:"position_limit_pct"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	DailyVolatility      float64 `json:"daily_volatility"`
}
