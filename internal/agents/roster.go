package agents

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/consts"
	"github.com/dyike/CortexQuant/internal/dataflows"
	"github.com/dyike/CortexQuant/internal/llm"
	"github.com/dyike/CortexQuant/internal/utils"
	"github.com/dyike/CortexQuant/models"
)

type rosterEntry struct {
	name        string
	description string
	task        string
	extract     Extractor
	confidence  int
	maxTokens   int
}

var roster = []rosterEntry{
	// 分析师
	{consts.TechnicalAnalyst, "技术指标分析：均线、MACD、RSI、KDJ、布林带", "请解读以下股票的技术指标并批量返回信号。", TechnicalSnapshot, 30, 1500},
	{consts.FundamentalAnalyst, "基本面分析：估值、市值、涨跌幅", "请对以下股票的基本面数据批量分析并返回信号。", QuoteFundamentals, 30, 1200},
	{consts.SentimentAnalyst, "市场情绪分析：热门板块与涨跌家数", "请基于市场情绪对以下股票批量给出信号。", SentimentContext, 35, 1200},
	{consts.MarketAnalyst, "大盘环境分析：主要指数与领涨板块", "请基于大盘环境对以下股票各自给出市场环境信号。", MarketContext, 40, 1200},

	// 投资人格
	{consts.WarrenBuffett, "巴菲特：护城河与安全边际", "以巴菲特的视角批量分析以下股票。", QuoteFundamentals, 30, 1200},
	{consts.CharlieMunger, "芒格：合理价格买入优秀企业", "以芒格的视角批量分析以下股票。", QuoteFundamentals, 30, 1200},
	{consts.BenGraham, "格雷厄姆：深度价值与量化安全边际", "以格雷厄姆的标准批量分析以下股票。", QuoteFundamentals, 30, 1200},
	{consts.MichaelBurry, "伯里：逆向深度价值", "以伯里的逆向视角批量分析以下股票。", QuoteFundamentals, 30, 1200},
	{consts.MohnishPabrai, "帕伯莱：Dhandho 下行保护", "以帕伯莱的 Dhandho 框架批量分析以下股票。", QuoteFundamentals, 30, 1200},
	{consts.PeterLynch, "林奇：合理价格成长", "以林奇的 GARP 视角批量分析以下股票。", QuoteFundamentals, 30, 1200},
	{consts.CathieWood, "伍德：颠覆性创新成长", "以伍德的颠覆性创新视角批量分析以下股票。", QuoteFundamentals, 30, 1200},
	{consts.PhilFisher, "费雪：高质量成长股", "以费雪的成长股标准批量分析以下股票。", QuoteFundamentals, 30, 1200},
	{consts.RakeshJhunjhunwala, "焦恩焦恩瓦拉：时代主线与高 ROE", "以焦恩焦恩瓦拉的视角批量分析以下股票。", QuoteFundamentals, 30, 1200},
	{consts.AswathDamodaran, "达摩达兰：内在价值估值", "以达摩达兰的估值框架批量分析以下股票。", QuoteFundamentals, 30, 1200},
	{consts.StanleyDruckenmiller, "德鲁肯米勒：宏观与非对称机会", "以德鲁肯米勒的宏观视角批量分析以下股票。", QuoteFundamentals, 30, 1200},
	{consts.BillAckman, "阿克曼：集中持仓与价值催化", "以阿克曼的激进投资视角批量分析以下股票。", QuoteFundamentals, 30, 1200},
}

// DefaultRoster builds the sixteen prompt agents, the four rule-based
// strategies and the risk agent, which comes last.
func DefaultRoster(md dataflows.MarketData, client *llm.Client, l *zap.Logger) ([]Agent, error) {
	out := make([]Agent, 0, len(roster)+5)
	for _, e := range roster {
		persona, err := utils.LoadAgentPrompt(e.name)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", e.name, err)
		}
		out = append(out, NewPromptAgent(PromptSpec{
			Name:        e.name,
			Description: e.description,
			Persona:     persona,
			Task:        e.task,
			Extract:     e.extract,
			Fallback:    models.NewAgentSignal(models.SignalNeutral, e.confidence, "分析暂时不可用"),
			MaxTokens:   e.maxTokens,
		}, md, client, l))
	}
	out = append(out,
		NewMomentumAgent(md, l),
		NewMeanReversionAgent(md, l),
		NewSectorRotationAgent(md, l),
		NewMultiFactorAgent(md, l),
		NewRiskAgent(md, l),
	)
	return out, nil
}
