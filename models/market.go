package models

import "time"

type Interval string

const (
	IntervalDaily   Interval = "1d"
	IntervalWeekly  Interval = "1w"
	IntervalMonthly Interval = "1M"
)

// Quote is a point-in-time snapshot. Fields a source does not report stay zero.
type Quote struct {
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	ChangePct  float64   `json:"change_pct"`
	Change     float64   `json:"change"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	PrevClose  float64   `json:"prev_close"`
	Volume     float64   `json:"volume"`
	Amount     float64   `json:"amount"`
	Turnover   float64   `json:"turnover"`
	PE         float64   `json:"pe"`
	PETTM      float64   `json:"pe_ttm"`
	PB         float64   `json:"pb"`
	MarketCapB float64   `json:"market_cap_b"`
	FloatCapB  float64   `json:"float_cap_b"`
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetched_at"`
}

type Candle struct {
	Date      string  `json:"date"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Amount    float64 `json:"amount"`
	ChangePct float64 `json:"change_pct"`
}

type SectorRank struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	ChangePct  float64 `json:"change_pct"`
	NetInflow  float64 `json:"net_inflow"`
	InflowRate float64 `json:"inflow_rate"`
}

// CandidateFeatures is the raw per-instrument record a selection strategy
// starts from. MarketCapB is in units of 100M CNY, as reported upstream.
type CandidateFeatures struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	ChangePct  float64 `json:"change_pct"`
	NetInflow  float64 `json:"net_inflow"`
	InflowRate float64 `json:"inflow_rate"`
	PETTM      float64 `json:"pe_ttm"`
	PB         float64 `json:"pb"`
	MarketCapB float64 `json:"market_cap_b"`
	Sector     string  `json:"sector,omitempty"`
}

// Richness counts populated optional fields, used to pick between duplicate
// records of the same instrument.
func (f CandidateFeatures) Richness() int {
	n := 0
	for _, v := range []float64{f.Price, f.ChangePct, f.NetInflow, f.InflowRate, f.PETTM, f.PB, f.MarketCapB} {
		if v != 0 {
			n++
		}
	}
	if f.Name != "" {
		n++
	}
	if f.Sector != "" {
		n++
	}
	return n
}
