// Package datatest provides an in-memory MarketData for tests.
package datatest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyike/CortexQuant/internal/dataflows"
	"github.com/dyike/CortexQuant/models"
)

// Market serves canned data and counts calls per method.
type Market struct {
	mu           sync.RWMutex
	Quotes       map[string]*models.Quote
	Candles      map[string][]models.Candle
	Sectors      []models.SectorRank
	Constituents map[string][]models.CandidateFeatures
	MarketWide   []models.CandidateFeatures

	// Delay is applied to every call before answering.
	Delay time.Duration
	// Fail, when set, is consulted first; a non-nil error is returned as is.
	Fail func(method, key string) error

	QuoteCalls       atomic.Int64
	CandleCalls      atomic.Int64
	SectorCalls      atomic.Int64
	ConstituentCalls atomic.Int64
	MarketWideCalls  atomic.Int64
}

func NewMarket() *Market {
	return &Market{
		Quotes:       map[string]*models.Quote{},
		Candles:      map[string][]models.Candle{},
		Constituents: map[string][]models.CandidateFeatures{},
	}
}

func (m *Market) wait(ctx context.Context, method, key string) error {
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.Fail != nil {
		return m.Fail(method, key)
	}
	return nil
}

func (m *Market) SetQuote(q *models.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Quotes[q.Code] = q
}

func (m *Market) SetCandles(code string, candles []models.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Candles[code] = candles
}

func (m *Market) GetQuote(ctx context.Context, code string) (*models.Quote, error) {
	m.QuoteCalls.Add(1)
	if err := m.wait(ctx, "quote", code); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.Quotes[code]
	if !ok {
		return nil, fmt.Errorf("quote %s: %w", code, dataflows.ErrUnavailable)
	}
	cp := *q
	return &cp, nil
}

func (m *Market) GetCandles(ctx context.Context, code string, _ models.Interval, count int) ([]models.Candle, error) {
	m.CandleCalls.Add(1)
	if err := m.wait(ctx, "candles", code); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.Candles[code]
	if !ok {
		return nil, fmt.Errorf("candles %s: %w", code, dataflows.ErrUnavailable)
	}
	if count > 0 && len(c) > count {
		c = c[len(c)-count:]
	}
	return append([]models.Candle(nil), c...), nil
}

func (m *Market) GetSectorRanking(ctx context.Context) ([]models.SectorRank, error) {
	m.SectorCalls.Add(1)
	if err := m.wait(ctx, "sectors", ""); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.SectorRank(nil), m.Sectors...), nil
}

func (m *Market) GetSectorConstituents(ctx context.Context, sectorCode string, limit int) ([]models.CandidateFeatures, error) {
	m.ConstituentCalls.Add(1)
	if err := m.wait(ctx, "constituents", sectorCode); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.Constituents[sectorCode]
	if limit > 0 && len(c) > limit {
		c = c[:limit]
	}
	return append([]models.CandidateFeatures(nil), c...), nil
}

func (m *Market) GetMarketWideRanking(ctx context.Context, limit int) ([]models.CandidateFeatures, error) {
	m.MarketWideCalls.Add(1)
	if err := m.wait(ctx, "market_wide", ""); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.MarketWide
	if limit > 0 && len(c) > limit {
		c = c[:limit]
	}
	return append([]models.CandidateFeatures(nil), c...), nil
}

// Trend builds n daily candles starting at start, multiplying by step each day.
func Trend(n int, start, step float64) []models.Candle {
	out := make([]models.Candle, 0, n)
	price := start
	for i := 0; i < n; i++ {
		next := price * step
		out = append(out, models.Candle{
			Date:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02"),
			Open:   price,
			High:   max(price, next) * 1.01,
			Low:    min(price, next) * 0.99,
			Close:  next,
			Volume: 1_000_000,
		})
		price = next
	}
	return out
}

var _ dataflows.MarketData = (*Market)(nil)
