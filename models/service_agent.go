package models

// AnalysisParams 描述一次完整分析（智能体 + 决策）的参数
type AnalysisParams struct {
	Codes    []string `json:"codes"`
	Holdings Holdings `json:"holdings"`
}

// SelectionParams 描述候选股筛选的参数
type SelectionParams struct {
	Held []string `json:"held"` // 已持仓代码，筛选时排除
}
