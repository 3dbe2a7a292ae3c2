package dataflows

import (
	"context"
	"fmt"

	"github.com/dyike/CortexQuant/models"
)

// QuoteSource is the per-instrument half of MarketData.
type QuoteSource interface {
	GetQuote(ctx context.Context, code string) (*models.Quote, error)
	GetCandles(ctx context.Context, code string, interval models.Interval, count int) ([]models.Candle, error)
}

// Router sends each instrument to the source for its market. Rankings and
// sector data always come from the A-share source.
type Router struct {
	ashare *EastmoneyClient
	hk     QuoteSource
	us     QuoteSource
}

type RouterOption func(*Router)

func WithHKSource(s QuoteSource) RouterOption {
	return func(r *Router) { r.hk = s }
}

func WithUSSource(s QuoteSource) RouterOption {
	return func(r *Router) { r.us = s }
}

func NewRouter(ashare *EastmoneyClient, opts ...RouterOption) *Router {
	r := &Router{ashare: ashare}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) sourceFor(code string) (QuoteSource, error) {
	switch MarketOf(code) {
	case MarketHK:
		if r.hk == nil {
			return nil, fmt.Errorf("no source for %s: %w", code, ErrUnavailable)
		}
		return r.hk, nil
	case MarketUS:
		if r.us == nil {
			return nil, fmt.Errorf("no source for %s: %w", code, ErrUnavailable)
		}
		return r.us, nil
	default:
		return r.ashare, nil
	}
}

func (r *Router) GetQuote(ctx context.Context, code string) (*models.Quote, error) {
	src, err := r.sourceFor(code)
	if err != nil {
		return nil, err
	}
	return src.GetQuote(ctx, code)
}

func (r *Router) GetCandles(ctx context.Context, code string, interval models.Interval, count int) ([]models.Candle, error) {
	src, err := r.sourceFor(code)
	if err != nil {
		return nil, err
	}
	return src.GetCandles(ctx, code, interval, count)
}

func (r *Router) GetSectorRanking(ctx context.Context) ([]models.SectorRank, error) {
	return r.ashare.GetSectorRanking(ctx)
}

func (r *Router) GetSectorConstituents(ctx context.Context, sectorCode string, limit int) ([]models.CandidateFeatures, error) {
	return r.ashare.GetSectorConstituents(ctx, sectorCode, limit)
}

func (r *Router) GetMarketWideRanking(ctx context.Context, limit int) ([]models.CandidateFeatures, error) {
	return r.ashare.GetMarketWideRanking(ctx, limit)
}

var (
	_ MarketData  = (*Router)(nil)
	_ MarketData  = (*EastmoneyClient)(nil)
	_ QuoteSource = (*LongportClient)(nil)
	_ QuoteSource = (*YahooClient)(nil)
)
