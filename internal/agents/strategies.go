package agents

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/consts"
	"github.com/dyike/CortexQuant/internal/dataflows"
	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/models"
)

const (
	strategyLookback       = 120
	strategyHoldConfidence = 30
)

type evaluateFunc func(ctx context.Context, code string, candles []models.Candle) models.AgentSignal

// StrategyAgent is a rule-based agent that scores every instrument from its
// own daily candles. Instruments without enough history get a neutral hold.
type StrategyAgent struct {
	name        string
	description string
	minCandles  int
	evaluate    evaluateFunc

	market dataflows.MarketData
	logger *zap.Logger
}

func newStrategyAgent(name, description string, minCandles int, md dataflows.MarketData, l *zap.Logger) *StrategyAgent {
	return &StrategyAgent{
		name:        name,
		description: description,
		minCandles:  minCandles,
		market:      md,
		logger:      logger.OrNop(l).With(zap.String("agent", name)),
	}
}

// NewMomentumAgent follows price momentum confirmed by volume and MACD.
func NewMomentumAgent(md dataflows.MarketData, l *zap.Logger) *StrategyAgent {
	a := newStrategyAgent(consts.MomentumStrategy, "动量策略：价格动量与放量突破", 26, md, l)
	a.evaluate = func(_ context.Context, _ string, candles []models.Candle) models.AgentSignal {
		return momentumSignal(candles)
	}
	return a
}

// NewMeanReversionAgent bets on prices returning to their 20-day mean.
func NewMeanReversionAgent(md dataflows.MarketData, l *zap.Logger) *StrategyAgent {
	a := newStrategyAgent(consts.MeanReversionStrategy, "均值回归策略：偏离均值后的回归", 30, md, l)
	a.evaluate = func(_ context.Context, _ string, candles []models.Candle) models.AgentSignal {
		return meanReversionSignal(candles)
	}
	return a
}

// NewMultiFactorAgent blends technical, momentum, value, quality and
// relative-strength factors and discounts the result by a risk score.
func NewMultiFactorAgent(md dataflows.MarketData, l *zap.Logger) *StrategyAgent {
	a := newStrategyAgent(consts.MultiFactorStrategy, "多因子策略：技术、动量、价值、质量与情绪综合评分", 30, md, l)
	a.evaluate = a.multiFactor
	return a
}

func (s *StrategyAgent) Name() string        { return s.name }
func (s *StrategyAgent) Description() string { return s.description }

func (s *StrategyAgent) Analyze(ctx context.Context, in Input) (map[string]models.AgentSignal, error) {
	out := make(map[string]models.AgentSignal, len(in.Instruments))
	for _, code := range in.Instruments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candles, err := s.market.GetCandles(ctx, code, models.IntervalDaily, strategyLookback)
		if err != nil {
			s.logger.Warn("candles unavailable", zap.String("instrument", code), zap.Error(err))
			out[code] = holdSignal("行情数据获取失败")
			continue
		}
		if len(candles) < s.minCandles {
			out[code] = holdSignal(fmt.Sprintf("K线不足%d根", s.minCandles))
			continue
		}
		out[code] = s.evaluate(ctx, code, candles)
	}
	return out, nil
}

func holdSignal(reason string) models.AgentSignal {
	return models.NewAgentSignal(models.SignalNeutral, strategyHoldConfidence, reason)
}

// voteSignal holds until the stronger side reaches threshold. Above it the
// confidence grows by step per extra point, up to ceiling. Ties go bearish.
func voteSignal(buy, sell, threshold, base, step, ceiling int, reasons []string, fallback string) models.AgentSignal {
	reason := fallback
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "，")
	}
	top := max(buy, sell)
	if top < threshold {
		return holdSignal(reason)
	}
	confidence := min(ceiling, base+(top-threshold)*step)
	if buy > sell {
		return models.NewAgentSignal(models.SignalBullish, confidence, reason)
	}
	return models.NewAgentSignal(models.SignalBearish, confidence, reason)
}

type momentumInputs struct {
	rsi         float64
	goldenCross bool
	momentum    float64
	volumeRatio float64
	bandPos     float64
}

// momentumVotes scores RSI, 20-day momentum, a MACD golden cross, volume
// confirmation and Bollinger position into buy and sell points.
func momentumVotes(in momentumInputs) (buy, sell int) {
	switch r := in.rsi; {
	case r < 30:
		buy += 2
	case r > 70:
		sell += 2
	case r > 30 && r < 50:
		buy++
	case r > 50 && r < 70:
		sell++
	}

	switch m := in.momentum; {
	case m > 0.02:
		buy += 3
	case m < -0.02:
		sell += 3
	case m > 0:
		buy++
	default:
		sell++
	}

	if in.goldenCross {
		buy += 2
	}
	if in.volumeRatio > 1.5 {
		if buy > sell {
			buy += 2
		} else {
			sell += 2
		}
	}

	switch {
	case in.bandPos < 0.2:
		buy++
	case in.bandPos > 0.8:
		sell++
	}
	return buy, sell
}

func momentumSignal(candles []models.Candle) models.AgentSignal {
	cl, vols := closes(candles), volumes(candles)
	in := momentumInputs{
		rsi:         rsi(cl, 14),
		goldenCross: macdGoldenCross(cl),
		volumeRatio: 1,
		bandPos:     bandPosition(cl, 20, 2),
	}
	in.momentum, _ = pctChange(cl, 19)
	if avg := sma(vols, 20); avg > 0 {
		in.volumeRatio = vols[len(vols)-1] / avg
	}

	var reasons []string
	switch {
	case in.momentum > 0.02:
		reasons = append(reasons, fmt.Sprintf("价格动量强劲(%.2f%%)", in.momentum*100))
	case in.momentum < -0.02:
		reasons = append(reasons, fmt.Sprintf("价格动量疲弱(%.2f%%)", in.momentum*100))
	}
	switch {
	case in.rsi < 30:
		reasons = append(reasons, fmt.Sprintf("RSI超卖(%.1f)", in.rsi))
	case in.rsi > 70:
		reasons = append(reasons, fmt.Sprintf("RSI超买(%.1f)", in.rsi))
	}
	if in.goldenCross {
		reasons = append(reasons, "MACD金叉")
	}
	if in.volumeRatio > 1.5 {
		reasons = append(reasons, fmt.Sprintf("成交量放大(%.1f倍)", in.volumeRatio))
	}

	buy, sell := momentumVotes(in)
	return voteSignal(buy, sell, 4, 50, 10, 90, reasons, "技术指标综合判断")
}

type reversionInputs struct {
	zScore      float64
	bandPos     float64
	rsi         float64
	trend       float64
	volumeRatio float64
}

// meanReversionVotes weighs how far price sits from its mean. A move already
// heading the same way as the vote adds one point.
func meanReversionVotes(in reversionInputs) (buy, sell int) {
	switch z := in.zScore; {
	case z < -2:
		buy += 4
	case z > 2:
		sell += 4
	case z < -1:
		buy += 2
	case z > 1:
		sell += 2
	}

	switch p := in.bandPos; {
	case p < 0.1:
		buy += 3
	case p > 0.9:
		sell += 3
	case p < 0.3:
		buy++
	case p > 0.7:
		sell++
	}

	switch r := in.rsi; {
	case r < 30:
		buy += 2
	case r > 70:
		sell += 2
	case r < 40:
		buy++
	case r > 60:
		sell++
	}

	switch {
	case in.trend < -0.02 && buy > 0:
		buy++
	case in.trend > 0.02 && sell > 0:
		sell++
	}

	if in.volumeRatio > 1.2 {
		if buy > sell {
			buy++
		} else {
			sell++
		}
	}
	return buy, sell
}

func meanReversionSignal(candles []models.Candle) models.AgentSignal {
	cl, vols := closes(candles), volumes(candles)
	last := cl[len(cl)-1]

	in := reversionInputs{
		bandPos:     bandPosition(cl, 20, 2),
		rsi:         rsi(cl, 14),
		volumeRatio: 1,
	}
	mid := sma(cl, 20)
	if sd := sampleStddev(cl[len(cl)-20:]); sd > 0 {
		in.zScore = (last - mid) / sd
	}
	in.trend, _ = pctChange(cl, 4)
	if avg := sma(vols, 20); avg > 0 {
		in.volumeRatio = sma(vols, 3) / avg
	}
	annual := stddev(dailyReturns(cl)) * math.Sqrt(tradingDaysPerYear)

	var reasons []string
	if math.Abs(in.zScore) > 2 {
		direction := "高于"
		if in.zScore < 0 {
			direction = "低于"
		}
		reasons = append(reasons, fmt.Sprintf("价格显著%s均值(Z=%.2f)", direction, in.zScore))
	}
	switch {
	case in.bandPos < 0.2:
		reasons = append(reasons, "接近布林带下轨")
	case in.bandPos > 0.8:
		reasons = append(reasons, "接近布林带上轨")
	}
	switch {
	case in.rsi < 30:
		reasons = append(reasons, fmt.Sprintf("RSI超卖(%.1f)", in.rsi))
	case in.rsi > 70:
		reasons = append(reasons, fmt.Sprintf("RSI超买(%.1f)", in.rsi))
	}

	// Volatile names need one more point before a reversal counts.
	threshold := 5
	if annual > 0.3 {
		threshold = 6
	}
	buy, sell := meanReversionVotes(in)
	return voteSignal(buy, sell, threshold, 60, 10, 95, reasons, "均值回归信号")
}

type factorWeight struct {
	name   string
	label  string
	weight float64
}

var multiFactorWeights = []factorWeight{
	{"technical", "技术", 0.40},
	{"momentum", "动量", 0.25},
	{"value", "价值", 0.15},
	{"quality", "质量", 0.10},
	{"sentiment", "情绪", 0.10},
}

// neutralMarketSentiment stands in for a market-wide sentiment reading.
const neutralMarketSentiment = 50

func (s *StrategyAgent) multiFactor(ctx context.Context, code string, candles []models.Candle) models.AgentSignal {
	cl, vols := closes(candles), volumes(candles)

	var quote *models.Quote
	if q, err := s.market.GetQuote(ctx, code); err == nil {
		quote = q
	} else {
		s.logger.Debug("quote unavailable, value factor neutral", zap.String("instrument", code), zap.Error(err))
	}

	scores := map[string]float64{
		"technical": technicalFactor(candles),
		"momentum":  momentumFactor(cl, vols),
		"value":     valueFactor(quote),
		"quality":   qualityFactor(cl, vols),
		"sentiment": 0.3*neutralMarketSentiment + 0.7*relativeStrength(cl),
	}
	var total float64
	var notes []string
	for _, f := range multiFactorWeights {
		v := scores[f.name]
		total += v * f.weight
		switch {
		case v > 70:
			notes = append(notes, fmt.Sprintf("%s因子强(%.0f)", f.label, v))
		case v < 30:
			notes = append(notes, fmt.Sprintf("%s因子弱(%.0f)", f.label, v))
		}
	}
	risk := riskScore(cl, vols)
	total *= 1 - risk*0.3

	if len(notes) > 3 {
		notes = notes[:3]
	}
	reason := fmt.Sprintf("综合评分%.0f分", total)
	if len(notes) > 0 {
		reason += "，" + strings.Join(notes, "，")
	}
	return multiFactorSignal(total, risk, reason)
}

// multiFactorSignal maps a 0..100 total to a signal. Scores between the sell
// and buy bands hold. Confidence is discounted by up to 20% for risk.
func multiFactorSignal(total, risk float64, reason string) models.AgentSignal {
	var (
		signal     models.Signal
		confidence float64
	)
	switch {
	case total >= 80:
		signal, confidence = models.SignalBullish, math.Min(0.95, 0.8+(total-80)/100)
	case total >= 60:
		signal, confidence = models.SignalBullish, math.Min(0.8, 0.6+(total-60)/100)
	case total <= 20:
		signal, confidence = models.SignalBearish, math.Min(0.8, 0.6+(40-total)/100)
	default:
		return holdSignal(reason)
	}
	confidence *= 1 - risk*0.2
	return models.NewAgentSignal(signal, int(math.Round(confidence*100)), reason)
}

func technicalFactor(candles []models.Candle) float64 {
	cl := closes(candles)
	var scores []float64

	if r := rsi(cl, 14); r >= 30 && r <= 70 {
		scores = append(scores, 70+(50-math.Abs(r-50))*0.6)
	} else {
		scores = append(scores, math.Max(0, 100-math.Abs(r-50)*2))
	}

	if len(macdHistogram(cl)) > 1 {
		if macdGoldenCross(cl) {
			scores = append(scores, 80)
		} else {
			scores = append(scores, 50)
		}
	}

	if upper, _, lower := bollinger(cl, 20, 2); upper > lower {
		pos := bandPosition(cl, 20, 2)
		scores = append(scores, clamp(50+(0.5-math.Abs(pos-0.5))*100, 0, 100))
	}

	if long := sma(cl, 20); long > 0 {
		trend := (sma(cl, 10) - long) / long
		scores = append(scores, clamp(50+trend*1000, 0, 100))
	}

	if atr := atrSeries(candles, 14); len(atr) > 1 {
		if avg := mean(atr); avg > 0 {
			scores = append(scores, clamp(50+(1-atr[len(atr)-1]/avg)*30, 0, 100))
		}
	}
	return meanOr(scores, 50)
}

func momentumFactor(cl, vols []float64) float64 {
	var scores []float64
	for _, p := range []struct {
		bars  int
		scale float64
	}{{5, 2000}, {20, 1000}, {60, 500}} {
		if m, ok := pctChange(cl, p.bars); ok {
			scores = append(scores, clamp(50+m*p.scale, 0, 100))
		}
	}
	if avg := sma(vols, 20); avg > 0 {
		scores = append(scores, clamp(50+(vols[len(vols)-1]-avg)/avg*50, 0, 100))
	}
	return meanOr(scores, 50)
}

// valueFactor rewards low PE and PB. Unknown or negative ratios score 50.
func valueFactor(q *models.Quote) float64 {
	if q == nil {
		return 50
	}
	pe := q.PETTM
	if pe == 0 {
		pe = q.PE
	}
	peScore, pbScore := 50.0, 50.0
	if pe > 0 {
		peScore = math.Max(0, 100-pe*2)
	}
	if q.PB > 0 {
		pbScore = math.Max(0, 100-q.PB*20)
	}
	return (peScore + pbScore) / 2
}

func qualityFactor(cl, vols []float64) float64 {
	var scores []float64
	if rets := dailyReturns(cl); len(rets) > 10 {
		scores = append(scores, math.Max(0, 100-sampleStddev(rets)*1000))
	}
	if len(vols) > 20 {
		if avg := mean(vols); avg > 0 {
			scores = append(scores, clamp((1-sampleStddev(vols)/avg)*100, 0, 100))
		}
	}
	if len(cl) > 20 {
		if long := sma(cl, 20); long > 0 {
			consistency := 1 - math.Abs((sma(cl, 5)-long)/long)
			scores = append(scores, clamp(consistency*100, 0, 100))
		}
	}
	return meanOr(scores, 50)
}

// relativeStrength scores the last four bars' return around 50.
func relativeStrength(cl []float64) float64 {
	if len(cl) <= 5 {
		return 50
	}
	r, ok := pctChange(cl, 4)
	if !ok {
		return 50
	}
	return clamp(50+r*500, 0, 100)
}

// riskScore is 0..1 from annualised volatility, volume dispersion and
// downside deviation.
func riskScore(cl, vols []float64) float64 {
	rets := dailyReturns(cl)
	if len(rets) < 10 {
		return 0.5
	}
	volRisk := math.Min(1, sampleStddev(rets)*math.Sqrt(tradingDaysPerYear)/0.5)

	liquidityRisk := 1.0
	if avg := mean(vols); avg > 0 {
		liquidityRisk = math.Min(1, sampleStddev(vols)/avg)
	}

	var down []float64
	for _, r := range rets {
		if r < 0 {
			down = append(down, r)
		}
	}
	downsideRisk := math.Min(1, sampleStddev(down)*10)

	return volRisk*0.4 + liquidityRisk*0.3 + downsideRisk*0.3
}

func meanOr(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	return mean(values)
}
