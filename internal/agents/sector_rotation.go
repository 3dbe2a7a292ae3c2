package agents

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/consts"
	"github.com/dyike/CortexQuant/internal/dataflows"
	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/models"
)

const (
	rotationScanSectors    = 10
	rotationConstituents   = 50
	rotationStrongFraction = 0.3
	rotationStrongScore    = 60
	rotationWeakScore      = 40
)

// SectorRotationAgent rates the sectors at both ends of the money-flow
// ranking. Instruments in a leading sector turn bullish, those in a lagging
// sector bearish, and everything else holds.
type SectorRotationAgent struct {
	market dataflows.MarketData
	logger *zap.Logger
}

func NewSectorRotationAgent(md dataflows.MarketData, l *zap.Logger) *SectorRotationAgent {
	return &SectorRotationAgent{
		market: md,
		logger: logger.OrNop(l).With(zap.String("agent", consts.SectorRotationStrategy)),
	}
}

func (s *SectorRotationAgent) Name() string        { return consts.SectorRotationStrategy }
func (s *SectorRotationAgent) Description() string { return "板块轮动策略：强势板块做多、弱势板块回避" }

type sectorStrength struct {
	rank    models.SectorRank
	score   float64
	avgChg  float64
	members map[string]bool
}

func (s *SectorRotationAgent) Analyze(ctx context.Context, in Input) (map[string]models.AgentSignal, error) {
	out := make(map[string]models.AgentSignal, len(in.Instruments))
	if len(in.Instruments) == 0 {
		return out, nil
	}

	ranks, err := s.market.GetSectorRanking(ctx)
	if err != nil {
		return nil, fmt.Errorf("sector ranking: %w", err)
	}

	var rated []sectorStrength
	for _, r := range scanSectors(ranks, rotationScanSectors) {
		members, err := s.market.GetSectorConstituents(ctx, r.Code, rotationConstituents)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("constituents unavailable", zap.String("sector", r.Code), zap.Error(err))
			continue
		}
		if len(members) == 0 {
			continue
		}
		rated = append(rated, rateSector(r, members))
	}

	verdicts := rotationVerdicts(rated)
	for _, code := range in.Instruments {
		sig, ok := verdicts[code]
		if !ok {
			sig = holdSignal("未处于轮动强弱板块")
		}
		out[code] = sig
	}
	return out, nil
}

// scanSectors takes n sectors from each end of the ranking without repeats.
func scanSectors(ranks []models.SectorRank, n int) []models.SectorRank {
	if len(ranks) <= 2*n {
		return ranks
	}
	out := append([]models.SectorRank(nil), ranks[:n]...)
	return append(out, ranks[len(ranks)-n:]...)
}

// rateSector scores a sector on 0..100 around 50 from its members' average
// change, the share of risers and the share with net inflow.
func rateSector(r models.SectorRank, members []models.CandidateFeatures) sectorStrength {
	st := sectorStrength{rank: r, members: make(map[string]bool, len(members))}
	var up, inflow int
	var chg float64
	for _, m := range members {
		st.members[m.Code] = true
		chg += m.ChangePct / 100
		if m.ChangePct > 0 {
			up++
		}
		if m.NetInflow > 0 {
			inflow++
		}
	}
	n := float64(len(members))
	st.avgChg = chg / n

	score := 50.0
	score += clamp(st.avgChg*1000, -40, 40)
	score += (float64(up)/n - 0.5) * 60
	score += (float64(inflow)/n - 0.5) * 40
	st.score = clamp(score, 0, 100)
	return st
}

// rotationVerdicts keeps the top 30% of sectors scoring above 60 and the
// bottom 30% scoring below 40, and signals their members. An instrument
// listed in several sectors takes the first verdict in strength order.
func rotationVerdicts(rated []sectorStrength) map[string]models.AgentSignal {
	out := map[string]models.AgentSignal{}
	if len(rated) < 2 {
		return out
	}
	sort.SliceStable(rated, func(i, j int) bool {
		if rated[i].score != rated[j].score {
			return rated[i].score > rated[j].score
		}
		return rated[i].rank.Code < rated[j].rank.Code
	})

	n := float64(len(rated))
	for i, st := range rated {
		var sig models.AgentSignal
		switch {
		case float64(i) < n*rotationStrongFraction && st.score > rotationStrongScore && st.avgChg > 0:
			sig = models.NewAgentSignal(models.SignalBullish, min(90, int(st.score)),
				fmt.Sprintf("所属强势板块%s，强度%.0f，平均涨幅%.2f%%", st.rank.Name, st.score, st.avgChg*100))
		case float64(i) >= n*(1-rotationStrongFraction) && st.score < rotationWeakScore && st.avgChg < 0:
			sig = models.NewAgentSignal(models.SignalBearish, min(90, int(100-st.score)),
				fmt.Sprintf("所属弱势板块%s，强度%.0f，平均涨幅%.2f%%", st.rank.Name, st.score, st.avgChg*100))
		default:
			continue
		}
		for code := range st.members {
			if _, seen := out[code]; !seen {
				out[code] = sig
			}
		}
	}
	return out
}
