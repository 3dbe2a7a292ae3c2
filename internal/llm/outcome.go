package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/schema"
)

type OutcomeKind int

const (
	// StructuredHit: the model answered through the bound tool.
	StructuredHit OutcomeKind = iota
	// TextFallback: JSON was recovered from free text.
	TextFallback
	// ParseFailure: nothing usable came back.
	ParseFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case StructuredHit:
		return "structured"
	case TextFallback:
		return "text"
	default:
		return "parse_failure"
	}
}

// Outcome is the normalised result of one raw model response.
type Outcome struct {
	Kind    OutcomeKind
	Payload json.RawMessage
	Err     error
}

// maxBraceRepairs bounds how many trailing '}' are stripped from text output.
const maxBraceRepairs = 5

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// Normalize turns a model response into an Outcome. toolName selects the tool
// call to read; an empty name accepts the first tool call.
func Normalize(msg *schema.Message, toolName string) Outcome {
	if msg == nil {
		return Outcome{Kind: ParseFailure, Err: ErrNoStructuredOutput}
	}

	for _, call := range msg.ToolCalls {
		if toolName != "" && call.Function.Name != toolName {
			continue
		}
		payload, ok := RepairJSON(call.Function.Arguments)
		if !ok {
			return Outcome{Kind: ParseFailure, Err: fmt.Errorf("%w: malformed tool arguments", ErrNoStructuredOutput)}
		}
		return Outcome{Kind: StructuredHit, Payload: unwrapNested(payload)}
	}

	if text := strings.TrimSpace(msg.Content); text != "" {
		if payload, ok := RepairJSON(ExtractJSON(text)); ok {
			return Outcome{Kind: TextFallback, Payload: unwrapNested(payload)}
		}
	}
	return Outcome{Kind: ParseFailure, Err: ErrNoStructuredOutput}
}

// ExtractJSON pulls the JSON candidate out of free text: a fenced block if
// present, otherwise the span from the first '{' to the last '}'.
func ExtractJSON(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if inner := strings.TrimSpace(m[1]); inner != "" {
			text = inner
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}

// RepairJSON returns s when it is valid JSON. Otherwise it strips trailing
// '}' characters one at a time, up to maxBraceRepairs, while the braces stay
// unbalanced.
func RepairJSON(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), true
	}
	for i := 0; i < maxBraceRepairs; i++ {
		if strings.Count(s, "{") >= strings.Count(s, "}") || !strings.HasSuffix(s, "}") {
			break
		}
		s = strings.TrimSpace(s[:len(s)-1])
		if json.Valid([]byte(s)) {
			return json.RawMessage(s), true
		}
	}
	return nil, false
}

// unwrapNested replaces string values that themselves hold a JSON object or
// array with the parsed value, one level into objects and arrays.
func unwrapNested(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return raw
	}
	switch trimmed[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return raw
		}
		changed := false
		for k, v := range obj {
			if parsed, ok := parseEmbedded(v); ok {
				obj[k] = parsed
				changed = true
			}
		}
		if !changed {
			return raw
		}
		out, err := json.Marshal(obj)
		if err != nil {
			return raw
		}
		return out
	case '"':
		if parsed, ok := parseEmbedded(trimmed); ok {
			return parsed
		}
	}
	return raw
}

func parseEmbedded(v json.RawMessage) (json.RawMessage, bool) {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, false
	}
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	return RepairJSON(s)
}
