package dataflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"

	"github.com/dyike/CortexQuant/config"
	"github.com/dyike/CortexQuant/models"
)

// LongportClient serves Hong Kong instruments ("700.HK") through the
// Longport quote API.
type LongportClient struct {
	quoteCtx *quote.QuoteContext
}

func NewLongportClient(cfg *config.Config) (*LongportClient, error) {
	if !cfg.HasLongport() {
		return nil, errors.New("longport API credentials not configured")
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(cfg.LongportAppKey, cfg.LongportAppSecret, cfg.LongportAccessToken))
	if err != nil {
		return nil, err
	}

	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, err
	}

	return &LongportClient{quoteCtx: quoteContext}, nil
}

func longportPeriod(interval models.Interval) quote.Period {
	switch interval {
	case models.IntervalWeekly:
		return quote.PeriodWeek
	case models.IntervalMonthly:
		return quote.PeriodMonth
	default:
		return quote.PeriodDay
	}
}

func (lpc *LongportClient) GetCandles(ctx context.Context, code string, interval models.Interval, count int) ([]models.Candle, error) {
	if lpc.quoteCtx == nil {
		return nil, errors.New("quote context is nil")
	}
	symbol := strings.ToUpper(code)
	sticks, err := lpc.quoteCtx.Candlesticks(ctx, symbol, longportPeriod(interval), int32(count), quote.AdjustTypeNo)
	if err != nil {
		return nil, fmt.Errorf("longport candles %s: %w", symbol, err)
	}
	if len(sticks) == 0 {
		return nil, fmt.Errorf("longport candles %s: %w", symbol, ErrUnavailable)
	}

	candles := make([]models.Candle, 0, len(sticks))
	var prevClose float64
	for _, stick := range sticks {
		open, _ := stick.Open.Float64()
		high, _ := stick.High.Float64()
		low, _ := stick.Low.Float64()
		close, _ := stick.Close.Float64()
		c := models.Candle{
			Date:   time.Unix(stick.Timestamp, 0).Format("2006-01-02"),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: float64(stick.Volume),
		}
		if prevClose > 0 {
			c.ChangePct = (close - prevClose) / prevClose * 100
		}
		prevClose = close
		candles = append(candles, c)
	}
	return candles, nil
}

// GetQuote derives the snapshot from the last two daily candles plus the
// static name; valuation fields are not reported by this source.
func (lpc *LongportClient) GetQuote(ctx context.Context, code string) (*models.Quote, error) {
	candles, err := lpc.GetCandles(ctx, code, models.IntervalDaily, 2)
	if err != nil {
		return nil, err
	}
	last := candles[len(candles)-1]
	q := &models.Quote{
		Code:      strings.ToUpper(code),
		Price:     last.Close,
		Open:      last.Open,
		High:      last.High,
		Low:       last.Low,
		Volume:    last.Volume,
		ChangePct: last.ChangePct,
		Source:    "longport",
		FetchedAt: time.Now(),
	}
	if len(candles) > 1 {
		q.PrevClose = candles[len(candles)-2].Close
		q.Change = last.Close - q.PrevClose
	}

	infos, err := lpc.quoteCtx.StaticInfo(ctx, []string{q.Code})
	if err == nil && len(infos) > 0 {
		q.Name = infos[0].NameEn
		if infos[0].NameCn != "" {
			q.Name = infos[0].NameCn
		}
	}
	return q, nil
}
