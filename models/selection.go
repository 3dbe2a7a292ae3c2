package models

import "time"

// Candidate is a scored instrument flowing through the selection pipeline.
type Candidate struct {
	CandidateFeatures
	Sources       []string `json:"sources"`
	PreScore      float64  `json:"pre_score"`
	Bullish       int      `json:"bullish"`
	Bearish       int      `json:"bearish"`
	Neutral       int      `json:"neutral"`
	AvgConfidence float64  `json:"avg_confidence"`
	AgentScore    float64  `json:"agent_score"`
	Composite     float64  `json:"composite,omitempty"`
}

func (c Candidate) HasSource(strategy string) bool {
	for _, s := range c.Sources {
		if s == strategy {
			return true
		}
	}
	return false
}

type PipelineResult struct {
	BestSector     *Candidate  `json:"best_sector"`
	BestMarketWide *Candidate  `json:"best_market_wide"`
	SectorName     string      `json:"sector_name"`
	Candidates     []Candidate `json:"candidates"`
	GeneratedAt    time.Time   `json:"generated_at"`
}
