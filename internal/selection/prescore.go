package selection

import (
	"sort"

	"github.com/dyike/CortexQuant/models"
)

// PreScore ranks a candidate from features the sourcing step already has.
// A flat or missing change earns nothing. The bands, on a 0..95 scale:
//
//	change %      (0,5] +20   (5,9) +10   [-3,0) +5
//	net inflow    >=1e9 +30   >=3e8 +20   >=1e8 +10   >0 +5
//	PE TTM        (0,30] +20  (30,60] +10
//	PB            (0,3] +10   (3,6] +5
//	market cap    [50,200) +10  [200,1000) +15  >=1000 +10   (100M CNY)
func PreScore(f models.CandidateFeatures) float64 {
	var score float64

	switch chg := f.ChangePct; {
	case chg > 0 && chg <= 5:
		score += 20
	case chg > 5 && chg < 9:
		score += 10
	case chg >= -3 && chg < 0:
		score += 5
	}

	switch in := f.NetInflow; {
	case in >= 1e9:
		score += 30
	case in >= 3e8:
		score += 20
	case in >= 1e8:
		score += 10
	case in > 0:
		score += 5
	}

	switch pe := f.PETTM; {
	case pe > 0 && pe <= 30:
		score += 20
	case pe > 30 && pe <= 60:
		score += 10
	}

	switch pb := f.PB; {
	case pb > 0 && pb <= 3:
		score += 10
	case pb > 3 && pb <= 6:
		score += 5
	}

	switch mc := f.MarketCapB; {
	case mc >= 1000:
		score += 10
	case mc >= 200:
		score += 15
	case mc >= 50:
		score += 10
	}

	return score
}

// rankByPreScore scores features, sorts them by pre-score then code, and
// keeps the first n.
func rankByPreScore(features []models.CandidateFeatures, strategy string, n int) []models.Candidate {
	out := make([]models.Candidate, 0, len(features))
	for _, f := range features {
		out = append(out, models.Candidate{
			CandidateFeatures: f,
			Sources:           []string{strategy},
			PreScore:          PreScore(f),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PreScore != out[j].PreScore {
			return out[i].PreScore > out[j].PreScore
		}
		return out[i].Code < out[j].Code
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// merge joins the strategy lists by code. A duplicate keeps the richer
// feature record and the union of sources. Order follows first appearance.
func merge(lists ...[]models.Candidate) []models.Candidate {
	index := make(map[string]int)
	var out []models.Candidate
	for _, list := range lists {
		for _, c := range list {
			i, ok := index[c.Code]
			if !ok {
				index[c.Code] = len(out)
				c.Sources = append([]string(nil), c.Sources...)
				out = append(out, c)
				continue
			}
			existing := &out[i]
			if c.Richness() > existing.Richness() {
				existing.CandidateFeatures = c.CandidateFeatures
				existing.PreScore = PreScore(c.CandidateFeatures)
			}
			for _, s := range c.Sources {
				if !existing.HasSource(s) {
					existing.Sources = append(existing.Sources, s)
				}
			}
		}
	}
	return out
}
