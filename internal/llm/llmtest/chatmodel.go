// Package llmtest provides a scripted chat model for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// GenerateFunc produces the reply for one call. call is 1-based.
type GenerateFunc func(ctx context.Context, call int, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error)

// ChatModel is a model.ToolCallingChatModel driven by a GenerateFunc.
type ChatModel struct {
	fn       GenerateFunc
	tools    []*schema.ToolInfo
	calls    *atomic.Int64
	inFlight *atomic.Int64
	peak     *atomic.Int64

	mu      *sync.Mutex
	prompts *[][]*schema.Message
}

func New(fn GenerateFunc) *ChatModel {
	return &ChatModel{
		fn:       fn,
		calls:    &atomic.Int64{},
		inFlight: &atomic.Int64{},
		peak:     &atomic.Int64{},
		mu:       &sync.Mutex{},
		prompts:  &[][]*schema.Message{},
	}
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	n := m.calls.Add(1)
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if cur <= p || m.peak.CompareAndSwap(p, cur) {
			break
		}
	}

	m.mu.Lock()
	*m.prompts = append(*m.prompts, input)
	m.mu.Unlock()

	return m.fn(ctx, int(n), input, m.tools)
}

func (m *ChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("llmtest: streaming not supported")
}

// WithTools returns a copy bound to tools that shares counters with m.
func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	cp := *m
	cp.tools = tools
	return &cp, nil
}

func (m *ChatModel) Calls() int { return int(m.calls.Load()) }

// PeakInFlight is the highest number of concurrent Generate calls observed.
func (m *ChatModel) PeakInFlight() int { return int(m.peak.Load()) }

// Prompts returns every message list received, in call order.
func (m *ChatModel) Prompts() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*schema.Message, len(*m.prompts))
	copy(out, *m.prompts)
	return out
}

// ToolReply answers through the first bound tool with args.
func ToolReply(tools []*schema.ToolInfo, args string) *schema.Message {
	name := ""
	if len(tools) > 0 {
		name = tools[0].Name
	}
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID:       "call_1",
			Function: schema.FunctionCall{Name: name, Arguments: args},
		}},
	}
}

// TextReply answers with plain content.
func TextReply(content string) *schema.Message {
	return &schema.Message{Role: schema.Assistant, Content: content}
}

// Status is an error carrying an HTTP status code.
type Status struct {
	Code int
	Msg  string
}

func (e *Status) Error() string   { return e.Msg }
func (e *Status) StatusCode() int { return e.Code }
