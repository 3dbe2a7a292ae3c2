package dataflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	fquote "github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"github.com/dyike/CortexQuant/models"
)

// YahooClient serves US tickers through Yahoo Finance. Only daily bars are
// fetched; other intervals fall back to daily.
type YahooClient struct{}

func NewYahooClient() *YahooClient {
	return &YahooClient{}
}

func yahooSymbol(code string) string {
	return strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(code)), ".US")
}

func (yc *YahooClient) GetQuote(ctx context.Context, code string) (*models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol := yahooSymbol(code)
	q, err := fquote.Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if q == nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, ErrUnavailable)
	}

	return &models.Quote{
		Code:      symbol,
		Name:      q.ShortName,
		Price:     q.RegularMarketPrice,
		ChangePct: q.RegularMarketChangePercent,
		Open:      q.RegularMarketOpen,
		High:      q.RegularMarketDayHigh,
		Low:       q.RegularMarketDayLow,
		PrevClose: q.RegularMarketPreviousClose,
		Volume:    float64(q.RegularMarketVolume),
		Source:    "yahoo",
		FetchedAt: time.Now(),
	}, nil
}

func (yc *YahooClient) GetCandles(ctx context.Context, code string, interval models.Interval, count int) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol := yahooSymbol(code)

	end := time.Now()
	// Calendar span with room for weekends and holidays.
	start := end.AddDate(0, 0, -(count*3/2 + 10))

	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})

	candles := make([]models.Candle, 0, count)
	var prevClose float64
	for iter.Next() {
		bar := iter.Bar()
		closePrice := decimalFloat(bar.Close)
		c := models.Candle{
			Date:   time.Unix(int64(bar.Timestamp), 0).Format("2006-01-02"),
			Open:   decimalFloat(bar.Open),
			High:   decimalFloat(bar.High),
			Low:    decimalFloat(bar.Low),
			Close:  closePrice,
			Volume: float64(bar.Volume),
		}
		if prevClose > 0 {
			c.ChangePct = (closePrice - prevClose) / prevClose * 100
		}
		prevClose = closePrice
		candles = append(candles, c)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("candles %s: %w", symbol, ErrUnavailable)
	}
	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles, nil
}

func decimalFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
