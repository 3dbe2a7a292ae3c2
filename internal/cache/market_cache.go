package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dyike/CortexQuant/internal/dataflows"
	"github.com/dyike/CortexQuant/internal/metrics"
	"github.com/dyike/CortexQuant/models"
)

// MarketDataCache decorates a MarketData source with per-kind read-through
// caches. Instrument data and sector data have separate TTLs.
type MarketDataCache struct {
	src dataflows.MarketData

	quotes       *ReadThrough[*models.Quote]
	candles      *ReadThrough[[]models.Candle]
	sectors      *ReadThrough[[]models.SectorRank]
	constituents *ReadThrough[[]models.CandidateFeatures]
	marketWide   *ReadThrough[[]models.CandidateFeatures]
}

func NewMarketDataCache(src dataflows.MarketData, quoteTTL, sectorTTL time.Duration, rec *metrics.Recorder) *MarketDataCache {
	return &MarketDataCache{
		src:          src,
		quotes:       NewReadThrough[*models.Quote]("quote", quoteTTL, rec),
		candles:      NewReadThrough[[]models.Candle]("candles", quoteTTL, rec),
		sectors:      NewReadThrough[[]models.SectorRank]("sectors", sectorTTL, rec),
		constituents: NewReadThrough[[]models.CandidateFeatures]("sector_constituents", sectorTTL, rec),
		marketWide:   NewReadThrough[[]models.CandidateFeatures]("market_wide", sectorTTL, rec),
	}
}

func (c *MarketDataCache) GetQuote(ctx context.Context, code string) (*models.Quote, error) {
	return c.quotes.Get(ctx, code, func(ctx context.Context) (*models.Quote, error) {
		return c.src.GetQuote(ctx, code)
	})
}

func (c *MarketDataCache) GetCandles(ctx context.Context, code string, interval models.Interval, count int) ([]models.Candle, error) {
	key := fmt.Sprintf("%s-%s-%d", code, interval, count)
	return c.candles.Get(ctx, key, func(ctx context.Context) ([]models.Candle, error) {
		return c.src.GetCandles(ctx, code, interval, count)
	})
}

func (c *MarketDataCache) GetSectorRanking(ctx context.Context) ([]models.SectorRank, error) {
	return c.sectors.Get(ctx, "industry", c.src.GetSectorRanking)
}

func (c *MarketDataCache) GetSectorConstituents(ctx context.Context, sectorCode string, limit int) ([]models.CandidateFeatures, error) {
	key := fmt.Sprintf("%s-%d", sectorCode, limit)
	return c.constituents.Get(ctx, key, func(ctx context.Context) ([]models.CandidateFeatures, error) {
		return c.src.GetSectorConstituents(ctx, sectorCode, limit)
	})
}

func (c *MarketDataCache) GetMarketWideRanking(ctx context.Context, limit int) ([]models.CandidateFeatures, error) {
	key := fmt.Sprintf("%d", limit)
	return c.marketWide.Get(ctx, key, func(ctx context.Context) ([]models.CandidateFeatures, error) {
		return c.src.GetMarketWideRanking(ctx, limit)
	})
}

var _ dataflows.MarketData = (*MarketDataCache)(nil)
