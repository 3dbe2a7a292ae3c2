package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexQuant/consts"
	"github.com/dyike/CortexQuant/internal/dataflows/datatest"
	"github.com/dyike/CortexQuant/internal/llm"
	"github.com/dyike/CortexQuant/internal/llm/llmtest"
	"github.com/dyike/CortexQuant/models"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func testClient(cm *llmtest.ChatModel) *llm.Client {
	return llm.NewClient(cm, llm.Options{
		MaxConcurrency: 2,
		MaxRetries:     2,
		RequestTimeout: time.Second,
	}, llm.WithSleep(noSleep))
}

func testMarket() *datatest.Market {
	md := datatest.NewMarket()
	md.SetQuote(&models.Quote{Code: "600519", Name: "贵州茅台", Price: 1500, PETTM: 25, PB: 8, MarketCapB: 18000})
	md.SetQuote(&models.Quote{Code: "000001", Name: "平安银行", Price: 11, PETTM: 5, PB: 0.6, MarketCapB: 2100})
	return md
}

func testSpec() PromptSpec {
	return PromptSpec{
		Name:     consts.BenGraham,
		Persona:  "价值投资",
		Task:     "批量分析",
		Extract:  QuoteFundamentals,
		Fallback: models.NewAgentSignal(models.SignalNeutral, 30, "分析暂时不可用"),
	}
}

func TestPromptAgentBatchesAllInstruments(t *testing.T) {
	cm := llmtest.New(func(_ context.Context, _ int, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
		return llmtest.ToolReply(tools, `{"signals":[
			{"code":"600519","signal":"bearish","confidence":80,"reasoning":"PB 过高"},
			{"code":"000001","signal":"bullish","confidence":"72","reasoning":"低估"}
		]}`), nil
	})
	agent := NewPromptAgent(testSpec(), testMarket(), testClient(cm), nil)

	out, err := agent.Analyze(context.Background(), Input{Instruments: []string{"600519", "000001"}})
	require.NoError(t, err)
	assert.Equal(t, 1, cm.Calls())
	assert.Equal(t, models.SignalBearish, out["600519"].Signal)
	assert.Equal(t, 72, out["000001"].Confidence)

	prompts := cm.Prompts()
	require.Len(t, prompts, 1)
	require.Len(t, prompts[0], 2)
	assert.Contains(t, prompts[0][0].Content, "价值投资")
	user := prompts[0][1].Content
	assert.Contains(t, user, "贵州茅台")
	assert.Contains(t, user, `"pe_ttm": 5`)
}

func TestPromptAgentFillsMissingInstruments(t *testing.T) {
	cm := llmtest.New(func(_ context.Context, _ int, _ []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
		return llmtest.ToolReply(tools, `{"signals":{"600519":{"signal":"bullish","confidence":150}}}`), nil
	})
	agent := NewPromptAgent(testSpec(), testMarket(), testClient(cm), nil)

	out, err := agent.Analyze(context.Background(), Input{Instruments: []string{"600519", "000001"}})
	require.NoError(t, err)
	assert.Equal(t, 100, out["600519"].Confidence)
	assert.Equal(t, models.SignalNeutral, out["000001"].Signal)
	assert.Equal(t, 30, out["000001"].Confidence)
}

func TestPromptAgentFallsBackWhenInferenceFails(t *testing.T) {
	cm := llmtest.New(func(context.Context, int, []*schema.Message, []*schema.ToolInfo) (*schema.Message, error) {
		return nil, errors.New("connection reset")
	})
	agent := NewPromptAgent(testSpec(), testMarket(), testClient(cm), nil)

	out, err := agent.Analyze(context.Background(), Input{Instruments: []string{"600519", "000001"}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, sig := range out {
		assert.Equal(t, models.SignalNeutral, sig.Signal)
		assert.Equal(t, 30, sig.Confidence)
	}
	assert.Equal(t, 2, cm.Calls())
}

func TestPromptAgentMarksUnavailableData(t *testing.T) {
	cm := llmtest.New(func(_ context.Context, _ int, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
		return llmtest.ToolReply(tools, `{"signals":[{"code":"999999","signal":"neutral","confidence":20}]}`), nil
	})
	agent := NewPromptAgent(testSpec(), testMarket(), testClient(cm), nil)

	_, err := agent.Analyze(context.Background(), Input{Instruments: []string{"999999"}})
	require.NoError(t, err)
	user := cm.Prompts()[0][1].Content
	assert.True(t, strings.Contains(user, `"error"`), user)
}

func TestPromptAgentNoInstruments(t *testing.T) {
	cm := llmtest.New(func(context.Context, int, []*schema.Message, []*schema.ToolInfo) (*schema.Message, error) {
		t.Fatal("model must not be called")
		return nil, nil
	})
	out, err := NewPromptAgent(testSpec(), testMarket(), testClient(cm), nil).Analyze(context.Background(), Input{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDefaultRoster(t *testing.T) {
	cm := llmtest.New(func(context.Context, int, []*schema.Message, []*schema.ToolInfo) (*schema.Message, error) {
		return nil, errors.New("unused")
	})
	agents, err := DefaultRoster(testMarket(), testClient(cm), nil)
	require.NoError(t, err)
	assert.Len(t, agents, 21)

	names := map[string]bool{}
	for _, a := range agents {
		names[a.Name()] = true
		assert.NotEmpty(t, a.Description())
	}
	assert.Len(t, names, 21)
	assert.True(t, names[consts.RiskManager])
	assert.True(t, names[consts.MomentumStrategy])
	assert.True(t, names[consts.SectorRotationStrategy])

	_, isRisk := agents[len(agents)-1].(RiskAssessor)
	assert.True(t, isRisk)
}
