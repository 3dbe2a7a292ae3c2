package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/internal/dataflows"
	"github.com/dyike/CortexQuant/internal/llm"
	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/models"
)

const systemTpl = `{persona}

对每只股票给出 bullish/bearish/neutral 信号、0 到 100 的置信度，以及不超过 80 字的中文推理。
必须为每一个给定的股票代码返回信号，并通过 emit_signals 工具输出。

当前日期：{current_date}`

const userTpl = `{task}

股票代码：{codes}
{context}
各股票数据：
{instruments}`

// PromptSpec describes one prompt-driven agent.
type PromptSpec struct {
	Name        string
	Description string
	// Persona is the system prompt body.
	Persona string
	// Task opens the user prompt.
	Task    string
	Extract Extractor
	// Fallback is used for every instrument the model does not answer.
	Fallback  models.AgentSignal
	MaxTokens int
}

// PromptAgent makes one batched inference call per run covering every
// instrument. Personas and quant analysts differ only in their spec.
type PromptAgent struct {
	spec   PromptSpec
	market dataflows.MarketData
	client *llm.Client
	tpl    prompt.ChatTemplate
	now    func() time.Time
	logger *zap.Logger
}

func NewPromptAgent(spec PromptSpec, md dataflows.MarketData, client *llm.Client, l *zap.Logger) *PromptAgent {
	if spec.Extract == nil {
		spec.Extract = QuoteFundamentals
	}
	return &PromptAgent{
		spec:   spec,
		market: md,
		client: client,
		tpl: prompt.FromMessages(schema.FString,
			schema.SystemMessage(systemTpl),
			schema.UserMessage(userTpl),
		),
		now:    time.Now,
		logger: logger.OrNop(l).With(zap.String("agent", spec.Name)),
	}
}

func (a *PromptAgent) Name() string        { return a.spec.Name }
func (a *PromptAgent) Description() string { return a.spec.Description }

func (a *PromptAgent) Analyze(ctx context.Context, in Input) (map[string]models.AgentSignal, error) {
	codes := in.Instruments
	if len(codes) == 0 {
		return map[string]models.AgentSignal{}, nil
	}

	features := a.spec.Extract(ctx, a.market, codes)
	system, user, err := a.render(ctx, codes, features)
	if err != nil {
		return nil, err
	}

	batch, err := llm.Infer(ctx, a.client, llm.Request{
		System:    system,
		Prompt:    user,
		Schema:    SignalsTool,
		MaxTokens: a.spec.MaxTokens,
	}, func() SignalBatch {
		return SignalBatch{}
	})
	if err != nil {
		return nil, err
	}
	if missing := len(codes) - countAnswered(batch, codes); missing > 0 {
		a.logger.Debug("model skipped instruments", zap.Int("missing", missing))
	}
	return batch.For(codes, a.spec.Fallback), nil
}

func (a *PromptAgent) render(ctx context.Context, codes []string, f Features) (string, string, error) {
	instruments, err := json.MarshalIndent(f.Instruments, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encode features: %w", err)
	}
	codeList, _ := json.Marshal(codes)

	var shared string
	if f.Context != nil {
		b, err := json.MarshalIndent(f.Context, "", "  ")
		if err != nil {
			return "", "", fmt.Errorf("encode context: %w", err)
		}
		shared = "\n市场上下文：\n" + string(b) + "\n"
	}

	msgs, err := a.tpl.Format(ctx, map[string]any{
		"persona":      a.spec.Persona,
		"current_date": a.now().Format("2006-01-02"),
		"task":         a.spec.Task,
		"codes":        string(codeList),
		"context":      shared,
		"instruments":  string(instruments),
	})
	if err != nil {
		return "", "", fmt.Errorf("render prompt: %w", err)
	}
	if len(msgs) != 2 {
		return "", "", fmt.Errorf("render prompt: got %d messages", len(msgs))
	}
	return msgs[0].Content, msgs[1].Content, nil
}

func countAnswered(b SignalBatch, codes []string) int {
	n := 0
	for _, code := range codes {
		if _, ok := b.Signals[code]; ok {
			n++
		}
	}
	return n
}
