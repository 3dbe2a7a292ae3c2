package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/models"
	"github.com/dyike/CortexQuant/pkg/bridge"
)

// StartAnalysis 启动一次完整分析（全部智能体 + 决策），结果通过回调推送并写入历史
func (s *Service) StartAnalysis(paramsJson string) (any, error) {
	var params models.AnalysisParams
	if err := json.Unmarshal([]byte(paramsJson), &params); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	params.Codes = cleanCodes(params.Codes)
	if len(params.Codes) == 0 {
		params.Codes = cleanCodes(params.Holdings.Codes())
	}
	if len(params.Codes) == 0 {
		return nil, fmt.Errorf("codes are required")
	}

	engine, err := s.engine()
	if err != nil {
		return nil, err
	}

	runID := strconv.FormatInt(s.now().UnixNano(), 10)
	started, _ := json.Marshal(map[string]any{"run_id": runID, "codes": params.Codes})
	s.notify(bridge.TopicAnalysisStarted, string(started))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := context.Background()

		analysis, err := engine.Analyze(ctx, params.Codes, params.Holdings)
		if err != nil {
			s.logger.Warn("analysis failed", zap.String("run_id", runID), zap.Error(err))
			errPayload, _ := json.Marshal(map[string]string{"run_id": runID, "error": err.Error()})
			s.notify(bridge.TopicAnalysisError, string(errPayload))
			return
		}

		path, err := s.saveHistory(kindAnalysis, runID, analysis)
		if err != nil {
			s.logger.Warn("persist analysis failed", zap.String("run_id", runID), zap.Error(err))
		}
		payload, _ := json.Marshal(map[string]any{
			"run_id":    runID,
			"path":      path,
			"decisions": analysis.Decisions,
		})
		s.notify(bridge.TopicAnalysisFinished, string(payload))
	}()

	return map[string]string{"status": "started", "run_id": runID}, nil
}

// SelectCandidates 同步执行候选股筛选，同一持仓在缓存期内共享结果
func (s *Service) SelectCandidates(paramsJson string) (any, error) {
	var params models.SelectionParams
	if strings.TrimSpace(paramsJson) != "" {
		if err := json.Unmarshal([]byte(paramsJson), &params); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	engine, err := s.engine()
	if err != nil {
		return nil, err
	}
	result, err := engine.SelectCandidates(context.Background(), cleanCodes(params.Held))
	if err != nil {
		return nil, err
	}

	runID := strconv.FormatInt(s.now().UnixNano(), 10)
	if _, err := s.saveHistory(kindSelection, runID, result); err != nil {
		s.logger.Warn("persist selection failed", zap.Error(err))
	}
	payload, _ := json.Marshal(map[string]any{"run_id": runID, "candidates": len(result.Candidates)})
	s.notify(bridge.TopicSelectionFinished, string(payload))
	return result, nil
}

// AgentStatus 返回每个智能体最近一次运行的状态
func (s *Service) AgentStatus() (any, error) {
	engine, err := s.engine()
	if err != nil {
		return nil, err
	}
	return engine.Coordinator.Status(), nil
}

func cleanCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
