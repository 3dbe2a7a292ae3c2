package agents

import (
	"context"
	"fmt"

	"github.com/dyike/CortexQuant/internal/dataflows"
	"github.com/dyike/CortexQuant/models"
)

// Features is what an extractor hands to the prompt: optional shared market
// context plus one record per instrument. A record that could not be built
// holds {"error": "..."} so the model still sees the code.
type Features struct {
	Context     any            `json:"context,omitempty"`
	Instruments map[string]any `json:"instruments"`
}

// Extractor gathers features for a batch of instruments. It never fails as a
// whole; per-instrument problems become error records.
type Extractor func(ctx context.Context, md dataflows.MarketData, codes []string) Features

func errorRecord(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

func perInstrument(ctx context.Context, codes []string, fn func(ctx context.Context, code string) (any, error)) map[string]any {
	out := make(map[string]any, len(codes))
	for _, code := range codes {
		rec, err := fn(ctx, code)
		if err != nil {
			out[code] = errorRecord(err)
			continue
		}
		out[code] = rec
	}
	return out
}

// QuoteFundamentals feeds valuation fields from the latest quote.
func QuoteFundamentals(ctx context.Context, md dataflows.MarketData, codes []string) Features {
	return Features{Instruments: perInstrument(ctx, codes, func(ctx context.Context, code string) (any, error) {
		q, err := md.GetQuote(ctx, code)
		if err != nil {
			return nil, err
		}
		pe := q.PETTM
		if pe == 0 {
			pe = q.PE
		}
		return map[string]any{
			"name":         q.Name,
			"price":        q.Price,
			"change_pct":   q.ChangePct,
			"pe_ttm":       pe,
			"pb":           q.PB,
			"market_cap_b": q.MarketCapB,
			"turnover":     q.Turnover,
		}, nil
	})}
}

const technicalLookback = 100

// TechnicalSnapshot computes indicator values from the last 100 daily candles.
func TechnicalSnapshot(ctx context.Context, md dataflows.MarketData, codes []string) Features {
	return Features{Instruments: perInstrument(ctx, codes, func(ctx context.Context, code string) (any, error) {
		candles, err := md.GetCandles(ctx, code, models.IntervalDaily, technicalLookback)
		if err != nil {
			return nil, err
		}
		if len(candles) < 20 {
			return nil, fmt.Errorf("insufficient candles: %d", len(candles))
		}
		return technicalRecord(candles), nil
	})}
}

func technicalRecord(candles []models.Candle) map[string]any {
	cl := closes(candles)
	vols := make([]float64, len(candles))
	for i, c := range candles {
		vols[i] = c.Volume
	}

	last := cl[len(cl)-1]
	line, signal, hist := macd(cl)
	upper, mid, lower := bollinger(cl, 20, 2)
	k, d, j := kdj(candles, 9)

	volRatio := 1.0
	if avg := sma(vols, 5); avg > 0 {
		volRatio = vols[len(vols)-1] / avg
	}
	var chg5d float64
	if len(cl) >= 6 && cl[len(cl)-6] != 0 {
		chg5d = (last/cl[len(cl)-6] - 1) * 100
	}

	return map[string]any{
		"price":       round(last, 2),
		"ma5":         round(sma(cl, 5), 4),
		"ma20":        round(sma(cl, 20), 4),
		"rsi14":       round(rsi(cl, 14), 2),
		"macd":        round(line, 4),
		"macd_signal": round(signal, 4),
		"macd_hist":   round(hist, 4),
		"kdj_k":       round(k, 2),
		"kdj_d":       round(d, 2),
		"kdj_j":       round(j, 2),
		"bb_upper":    round(upper, 4),
		"bb_mid":      round(mid, 4),
		"bb_lower":    round(lower, 4),
		"vol_ratio":   round(volRatio, 2),
		"chg5d":       round(chg5d, 2),
	}
}

// benchmarkIndices are read for market context: SSE Composite, SZSE
// Component, ChiNext.
var benchmarkIndices = []string{"sh000001", "sz399001", "sz399006"}

// MarketContext shares index levels and the leading sectors across all
// instruments; each instrument only carries its own day change.
func MarketContext(ctx context.Context, md dataflows.MarketData, codes []string) Features {
	indices := make(map[string]any, len(benchmarkIndices))
	for _, code := range benchmarkIndices {
		q, err := md.GetQuote(ctx, code)
		if err != nil {
			continue
		}
		indices[code] = map[string]any{"name": q.Name, "price": q.Price, "change_pct": q.ChangePct}
	}

	shared := map[string]any{"indices": indices}
	if sectors, err := md.GetSectorRanking(ctx); err == nil {
		shared["top_sectors"] = topSectors(sectors, 5)
	} else {
		shared["top_sectors"] = errorRecord(err)
	}

	return Features{
		Context: shared,
		Instruments: perInstrument(ctx, codes, func(ctx context.Context, code string) (any, error) {
			q, err := md.GetQuote(ctx, code)
			if err != nil {
				return nil, err
			}
			return map[string]any{"name": q.Name, "change_pct": q.ChangePct}, nil
		}),
	}
}

// SentimentContext shares the hottest sectors by fund flow.
func SentimentContext(ctx context.Context, md dataflows.MarketData, codes []string) Features {
	shared := map[string]any{}
	if sectors, err := md.GetSectorRanking(ctx); err == nil {
		shared["hot_sectors"] = topSectors(sectors, 5)
		var up, down int
		for _, s := range sectors {
			switch {
			case s.ChangePct > 0:
				up++
			case s.ChangePct < 0:
				down++
			}
		}
		shared["sectors_up"] = up
		shared["sectors_down"] = down
	} else {
		shared["hot_sectors"] = errorRecord(err)
	}

	instruments := make(map[string]any, len(codes))
	for _, code := range codes {
		instruments[code] = map[string]any{}
	}
	return Features{Context: shared, Instruments: instruments}
}

func topSectors(sectors []models.SectorRank, n int) []map[string]any {
	if len(sectors) > n {
		sectors = sectors[:n]
	}
	out := make([]map[string]any, 0, len(sectors))
	for _, s := range sectors {
		out = append(out, map[string]any{
			"name":       s.Name,
			"change_pct": s.ChangePct,
			"net_inflow": s.NetInflow,
		})
	}
	return out
}
