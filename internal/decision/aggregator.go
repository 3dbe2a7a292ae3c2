package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/consts"
	"github.com/dyike/CortexQuant/internal/dataflows"
	"github.com/dyike/CortexQuant/internal/llm"
	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/internal/utils"
	"github.com/dyike/CortexQuant/models"
)

const boardLot = 100

// DefaultWeights is how much each agent's view should count. It is passed to
// the model as context and not applied numerically.
var DefaultWeights = map[string]float64{
	consts.TechnicalAnalyst:   0.06,
	consts.FundamentalAnalyst: 0.06,
	consts.SentimentAnalyst:   0.05,
	consts.MarketAnalyst:      0.05,
	consts.RiskManager:        0.07,

	consts.WarrenBuffett: 0.08,
	consts.CharlieMunger: 0.07,
	consts.BenGraham:     0.07,
	consts.MichaelBurry:  0.06,
	consts.MohnishPabrai: 0.06,

	consts.PeterLynch:         0.07,
	consts.CathieWood:         0.06,
	consts.PhilFisher:         0.06,
	consts.RakeshJhunjhunwala: 0.06,

	consts.AswathDamodaran:      0.07,
	consts.StanleyDruckenmiller: 0.07,
	consts.BillAckman:           0.07,

	consts.MomentumStrategy:       0.04,
	consts.MeanReversionStrategy:  0.03,
	consts.SectorRotationStrategy: 0.04,
	consts.MultiFactorStrategy:    0.05,
}

const userTpl = `当前持仓：
{holdings}

分析师权重：
{weights}

各分析师对每只股票的信号汇总：
{summaries}

请为以下每只股票给出最终决策，并通过 emit_decisions 工具输出：{codes}`

type Option func(*Aggregator)

func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = logger.OrNop(l) }
}

func WithWeights(w map[string]float64) Option {
	return func(a *Aggregator) {
		if len(w) > 0 {
			a.weights = w
		}
	}
}

// Aggregator turns a SignalMap into one Decision per instrument with a
// single inference call.
type Aggregator struct {
	client  *llm.Client
	system  string
	tpl     prompt.ChatTemplate
	weights map[string]float64
	logger  *zap.Logger
}

func NewAggregator(client *llm.Client, opts ...Option) (*Aggregator, error) {
	system, err := utils.LoadPrompt("decision/" + consts.PortfolioManager)
	if err != nil {
		return nil, err
	}
	a := &Aggregator{
		client: client,
		system: system,
		tpl: prompt.FromMessages(schema.FString,
			schema.SystemMessage(system),
			schema.UserMessage(userTpl),
		),
		weights: DefaultWeights,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Decide returns a decision for every instrument that appears in any agent's
// signals. Risk limits are forwarded to the model, not enforced here.
func (a *Aggregator) Decide(ctx context.Context, signals models.SignalMap, holdings models.Holdings, limits map[string]models.RiskLimit) (map[string]models.Decision, error) {
	codes := instrumentCodes(signals)
	if len(codes) == 0 {
		return map[string]models.Decision{}, nil
	}

	system, user, err := a.render(ctx, codes, Summaries(signals, limits), holdings)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := llm.Infer(ctx, a.client, llm.Request{
		System: system,
		Prompt: user,
		Schema: DecisionsTool,
	}, func() batch {
		return batch{}
	})
	if err != nil {
		return nil, fmt.Errorf("decide: %w", err)
	}

	decisions := make(map[string]models.Decision, len(codes))
	for _, code := range codes {
		d, ok := out.Decisions[code]
		if !ok {
			d = models.HoldDecision("决策暂时不可用，默认持有")
		}
		decisions[code] = normalize(code, d)
	}
	a.logger.Info("decisions ready",
		zap.Int("instruments", len(codes)),
		zap.Int("answered", len(out.Decisions)),
		zap.Duration("elapsed", time.Since(start)))
	return decisions, nil
}

func (a *Aggregator) render(ctx context.Context, codes []string, summaries map[string]map[string]any, holdings models.Holdings) (string, string, error) {
	vars := map[string]any{"codes": mustJSON(codes)}
	for key, v := range map[string]any{
		"holdings":  holdings,
		"weights":   a.weights,
		"summaries": summaries,
	} {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", "", fmt.Errorf("encode %s: %w", key, err)
		}
		vars[key] = string(b)
	}

	msgs, err := a.tpl.Format(ctx, vars)
	if err != nil {
		return "", "", fmt.Errorf("render decision prompt: %w", err)
	}
	if len(msgs) != 2 {
		return "", "", fmt.Errorf("render decision prompt: got %d messages", len(msgs))
	}
	return msgs[0].Content, msgs[1].Content, nil
}

// Summaries groups every agent's view by instrument and attaches the risk
// limit when one is known.
func Summaries(signals models.SignalMap, limits map[string]models.RiskLimit) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for agent, byCode := range signals {
		for code, sig := range byCode {
			s, ok := out[code]
			if !ok {
				s = make(map[string]any)
				out[code] = s
			}
			s[agent] = sig
		}
	}
	for code, s := range out {
		if limit, ok := limits[code]; ok {
			s["risk_limits"] = limit
		}
	}
	return out
}

func instrumentCodes(signals models.SignalMap) []string {
	seen := make(map[string]struct{})
	for _, byCode := range signals {
		for code := range byCode {
			seen[code] = struct{}{}
		}
	}
	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// normalize forces hold to zero quantity and rounds A-share quantities down
// to whole board lots.
func normalize(code string, d models.Decision) models.Decision {
	if d.Action == models.ActionHold || d.Quantity < 0 {
		d.Quantity = 0
		return d
	}
	if dataflows.IsAShare(code) {
		lots := decimal.NewFromInt(int64(d.Quantity)).Div(decimal.NewFromInt(boardLot)).Floor()
		d.Quantity = int(lots.Mul(decimal.NewFromInt(boardLot)).IntPart())
	}
	return d
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
