package agents

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/dyike/CortexQuant/models"
)

// SignalsTool is the output schema every prompt agent binds.
var SignalsTool = &schema.ToolInfo{
	Name: "emit_signals",
	Desc: "Report one trading signal for every instrument code provided",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"signals": {
			Type:     schema.Array,
			Desc:     "one entry per instrument code",
			Required: true,
			ElemInfo: &schema.ParameterInfo{
				Type: schema.Object,
				SubParams: map[string]*schema.ParameterInfo{
					"code": {
						Type:     schema.String,
						Desc:     "instrument code exactly as given",
						Required: true,
					},
					"signal": {
						Type:     schema.String,
						Enum:     []string{string(models.SignalBullish), string(models.SignalBearish), string(models.SignalNeutral)},
						Required: true,
					},
					"confidence": {
						Type:     schema.Integer,
						Desc:     "0 to 100",
						Required: true,
					},
					"reasoning": {
						Type: schema.String,
						Desc: "at most 80 characters",
					},
				},
			},
		},
	}),
}

// SignalBatch decodes the emit_signals payload. Both the array form and a
// code-keyed object form are accepted.
type SignalBatch struct {
	Signals map[string]models.AgentSignal
}

var errEmptyBatch = errors.New("no signals in batch")

func (b *SignalBatch) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		signals, err := decodeSignals(trimmed)
		if err != nil {
			return err
		}
		if len(signals) == 0 {
			return errEmptyBatch
		}
		b.Signals = signals
		return nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}

	raw, ok := wrapper["signals"]
	if !ok {
		// Some models skip the wrapper and return the code-keyed object.
		raw = data
	}

	signals, err := decodeSignals(raw)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		return errEmptyBatch
	}
	b.Signals = signals
	return nil
}

func decodeSignals(raw json.RawMessage) (map[string]models.AgentSignal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errEmptyBatch
	}

	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		out := make(map[string]models.AgentSignal, len(items))
		for _, item := range items {
			var key struct {
				Code string `json:"code"`
			}
			if err := json.Unmarshal(item, &key); err != nil {
				return nil, err
			}
			if key.Code == "" {
				continue
			}
			var sig models.AgentSignal
			if err := json.Unmarshal(item, &sig); err != nil {
				return nil, fmt.Errorf("signal %s: %w", key.Code, err)
			}
			out[key.Code] = sig
		}
		return out, nil
	case '{':
		var out map[string]models.AgentSignal
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected signals payload %q", raw[:1])
	}
}

// For restricts the batch to codes, filling any missing code with fallback.
func (b SignalBatch) For(codes []string, fallback models.AgentSignal) map[string]models.AgentSignal {
	out := make(map[string]models.AgentSignal, len(codes))
	for _, code := range codes {
		if sig, ok := b.Signals[code]; ok {
			out[code] = sig
			continue
		}
		out[code] = fallback
	}
	return out
}
