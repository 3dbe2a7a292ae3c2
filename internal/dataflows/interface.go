package dataflows

import (
	"context"
	"errors"
	"strings"

	"github.com/dyike/CortexQuant/models"
)

// ErrUnavailable is returned when a source has no data for a request.
var ErrUnavailable = errors.New("market data unavailable")

// MarketData is everything agents and selection read from the market.
type MarketData interface {
	GetQuote(ctx context.Context, code string) (*models.Quote, error)
	GetCandles(ctx context.Context, code string, interval models.Interval, count int) ([]models.Candle, error)
	GetSectorRanking(ctx context.Context) ([]models.SectorRank, error)
	GetSectorConstituents(ctx context.Context, sectorCode string, limit int) ([]models.CandidateFeatures, error)
	GetMarketWideRanking(ctx context.Context, limit int) ([]models.CandidateFeatures, error)
}

// Market classifies an instrument code.
type Market int

const (
	MarketCN Market = iota
	MarketHK
	MarketUS
)

// MarketOf maps "700.HK" to HK, six-digit codes (optionally exchange
// qualified, "sh000001" or "600519.SH") to CN and bare tickers to US.
func MarketOf(code string) Market {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch {
	case strings.HasSuffix(code, ".HK"):
		return MarketHK
	case strings.HasSuffix(code, ".US"):
		return MarketUS
	case isDigits(code), isDigits(strings.TrimSuffix(strings.TrimSuffix(code, ".SH"), ".SZ")):
		return MarketCN
	case len(code) == 8 && (strings.HasPrefix(code, "SH") || strings.HasPrefix(code, "SZ")) && isDigits(code[2:]):
		return MarketCN
	default:
		return MarketUS
	}
}

// IsAShare reports whether code is a six-digit mainland code.
func IsAShare(code string) bool {
	return len(code) == 6 && isDigits(code)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
