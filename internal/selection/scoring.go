package selection

import (
	"github.com/dyike/CortexQuant/consts"
	"github.com/dyike/CortexQuant/models"
)

// Composite weights for the market-wide pick.
const (
	agentWeight   = 0.6
	preWeight     = 0.2
	inflowWeight  = 0.2
	normalizedMax = 100
)

// tally fills the vote counts and agent score of c from signals. The agent
// score divides by every agent in the run, failed ones included.
func tally(c *models.Candidate, signals models.SignalMap) {
	c.Bullish, c.Bearish, c.Neutral = 0, 0, 0
	var sum, n int
	for _, byCode := range signals {
		sig, ok := byCode[c.Code]
		if !ok {
			continue
		}
		switch sig.Signal {
		case models.SignalBullish:
			c.Bullish++
		case models.SignalBearish:
			c.Bearish++
		default:
			c.Neutral++
		}
		sum += sig.Confidence
		n++
	}
	c.AvgConfidence = 0
	if n > 0 {
		c.AvgConfidence = float64(sum) / float64(n)
	}
	c.AgentScore = AgentScore(c.Bullish, len(signals), c.AvgConfidence)
}

// AgentScore is bullish/total * average confidence.
func AgentScore(bullish, totalAgents int, avgConfidence float64) float64 {
	if totalAgents <= 0 {
		return 0
	}
	return float64(bullish) / float64(totalAgents) * avgConfidence
}

// pickSector returns the sector candidate with the highest agent score,
// breaking ties by pre-score and then code.
func pickSector(cands []models.Candidate) *models.Candidate {
	var best *models.Candidate
	for i := range cands {
		c := &cands[i]
		if !c.HasSource(consts.StrategySector) {
			continue
		}
		if best == nil || better(c.AgentScore, c.PreScore, c.Code, best.AgentScore, best.PreScore, best.Code) {
			best = c
		}
	}
	return best
}

// scoreMarketWide sets Composite on every market-wide candidate and returns
// the highest. Pre-score and inflow are min-max scaled to 0..100 over the
// market-wide subset so they share the agent score's range; a subset with no
// spread scales to 100.
func scoreMarketWide(cands []models.Candidate) *models.Candidate {
	var subset []*models.Candidate
	for i := range cands {
		if cands[i].HasSource(consts.StrategyMarketWide) {
			subset = append(subset, &cands[i])
		}
	}
	if len(subset) == 0 {
		return nil
	}

	pre := make([]float64, len(subset))
	inflow := make([]float64, len(subset))
	for i, c := range subset {
		pre[i] = c.PreScore
		inflow[i] = c.NetInflow
	}
	pre = minMax(pre)
	inflow = minMax(inflow)

	var best *models.Candidate
	for i, c := range subset {
		c.Composite = Composite(c.AgentScore, pre[i], inflow[i])
		if best == nil || better(c.Composite, c.AgentScore, c.Code, best.Composite, best.AgentScore, best.Code) {
			best = c
		}
	}
	return best
}

// Composite blends the agent score with normalised pre-score and inflow.
func Composite(agentScore, normPre, normInflow float64) float64 {
	return agentScore*agentWeight + normPre*preWeight + normInflow*inflowWeight
}

func minMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	for i, v := range values {
		if hi == lo {
			out[i] = normalizedMax
			continue
		}
		out[i] = (v - lo) / (hi - lo) * normalizedMax
	}
	return out
}

func better(score, tie float64, code string, bestScore, bestTie float64, bestCode string) bool {
	if score != bestScore {
		return score > bestScore
	}
	if tie != bestTie {
		return tie > bestTie
	}
	return code < bestCode
}
