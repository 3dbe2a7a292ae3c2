package decision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/dyike/CortexQuant/models"
)

// DecisionsTool is the output schema of the aggregator call.
var DecisionsTool = &schema.ToolInfo{
	Name: "emit_decisions",
	Desc: "Report one trading decision for every instrument code provided",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"decisions": {
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
					"action": {
						Type:     schema.String,
						Enum:     []string{string(models.ActionBuy), string(models.ActionSell), string(models.ActionHold)},
						Required: true,
					},
					"quantity": {
						Type:     schema.Integer,
						Desc:     "shares to trade, a multiple of 100 for A-shares, 0 for hold",
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

var errNoDecisions = errors.New("no decisions in reply")

// batch decodes emit_decisions. It accepts the array form, a code-keyed
// object, and either of them without the "decisions" wrapper.
type batch struct {
	Decisions map[string]models.Decision
}

func (b *batch) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) > 0 && raw[0] == '{' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return err
		}
		if inner, ok := wrapper["decisions"]; ok {
			raw = bytes.TrimSpace(inner)
		}
	}

	decisions, err := decodeDecisions(raw)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		return errNoDecisions
	}
	b.Decisions = decisions
	return nil
}

func decodeDecisions(raw []byte) (map[string]models.Decision, error) {
	if len(raw) == 0 {
		return nil, errNoDecisions
	}
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		out := make(map[string]models.Decision, len(items))
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
			var d models.Decision
			if err := json.Unmarshal(item, &d); err != nil {
				return nil, fmt.Errorf("decision %s: %w", key.Code, err)
			}
			out[key.Code] = d
		}
		return out, nil
	case '{':
		var out map[string]models.Decision
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected decisions payload %q", raw[:1])
	}
}
