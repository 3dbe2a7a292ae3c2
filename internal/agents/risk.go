package agents

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/consts"
	"github.com/dyike/CortexQuant/internal/dataflows"
	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/models"
)

const (
	riskLookback        = 60
	riskMinCandles      = 10
	riskDefaultDailyVol = 0.03
	riskBaseLimit       = 0.20
	riskFailureLimit    = 0.10
	tradingDaysPerYear  = 252
)

// RiskAgent is rule based. Besides signals it reports a volatility-adjusted
// position limit per instrument.
type RiskAgent struct {
	market dataflows.MarketData
	logger *zap.Logger
}

func NewRiskAgent(md dataflows.MarketData, l *zap.Logger) *RiskAgent {
	return &RiskAgent{market: md, logger: logger.OrNop(l).With(zap.String("agent", consts.RiskManager))}
}

func (r *RiskAgent) Name() string        { return consts.RiskManager }
func (r *RiskAgent) Description() string { return "波动率风控：给出信号与单票仓位上限" }

func (r *RiskAgent) Analyze(ctx context.Context, in Input) (map[string]models.AgentSignal, error) {
	signals, _, err := r.Assess(ctx, in)
	return signals, err
}

func (r *RiskAgent) Assess(ctx context.Context, in Input) (map[string]models.AgentSignal, map[string]models.RiskLimit, error) {
	signals := make(map[string]models.AgentSignal, len(in.Instruments))
	limits := make(map[string]models.RiskLimit, len(in.Instruments))

	for _, code := range in.Instruments {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		daily, err := r.dailyVolatility(ctx, code)
		if err != nil {
			r.logger.Warn("volatility unavailable", zap.String("instrument", code), zap.Error(err))
			limits[code] = models.RiskLimit{PositionLimitPct: riskFailureLimit}
			signals[code] = models.NewAgentSignal(models.SignalBearish, 50,
				fmt.Sprintf("风险数据获取失败，保守限仓%.0f%%", riskFailureLimit*100))
			continue
		}

		annual := daily * math.Sqrt(tradingDaysPerYear)
		limit := positionLimit(annual)
		limits[code] = models.RiskLimit{
			PositionLimitPct:     limit,
			AnnualizedVolatility: annual,
			DailyVolatility:      daily,
		}
		signals[code] = riskSignal(annual, limit)
	}
	return signals, limits, nil
}

func (r *RiskAgent) dailyVolatility(ctx context.Context, code string) (float64, error) {
	candles, err := r.market.GetCandles(ctx, code, models.IntervalDaily, riskLookback)
	if err != nil {
		return 0, err
	}
	if len(candles) < riskMinCandles {
		return riskDefaultDailyVol, nil
	}
	return stddev(dailyReturns(closes(candles))), nil
}

// positionLimit scales the 20% base limit down as volatility rises: 25% for
// calm names, a linear taper through the middle bands, 5% above 50%.
func positionLimit(annual float64) float64 {
	switch {
	case annual < 0.15:
		return riskBaseLimit * 1.25
	case annual < 0.30:
		return riskBaseLimit * math.Max(1-(annual-0.15)*0.5, 0.5)
	case annual < 0.50:
		return riskBaseLimit * math.Max(0.75-(annual-0.30)*0.5, 0.25)
	default:
		return riskBaseLimit * 0.25
	}
}

func riskSignal(annual, limit float64) models.AgentSignal {
	var (
		signal     models.Signal
		confidence int
		reasoning  string
	)
	switch {
	case annual > 0.50:
		signal = models.SignalBearish
		confidence = min(int(annual*100), 90)
		reasoning = fmt.Sprintf("波动率极高(%.1f%%)，建议大幅降低仓位，上限%.1f%%", annual*100, limit*100)
	case annual > 0.30:
		signal = models.SignalBearish
		confidence = int(50 + (annual-0.30)*200)
		reasoning = fmt.Sprintf("波动率偏高(%.1f%%)，建议控制仓位，上限%.1f%%", annual*100, limit*100)
	case annual > 0.15:
		signal = models.SignalNeutral
		confidence = 50
		reasoning = fmt.Sprintf("波动率适中(%.1f%%)，仓位上限%.1f%%", annual*100, limit*100)
	default:
		signal = models.SignalBullish
		confidence = int(60 + (0.15-annual)*200)
		reasoning = fmt.Sprintf("波动率较低(%.1f%%)，风险可控，仓位上限%.1f%%", annual*100, limit*100)
	}
	return models.NewAgentSignal(signal, min(confidence, 95), reasoning)
}
