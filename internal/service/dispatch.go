package service

import "encoding/json"

type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// Dispatch routes a host call to the matching service method and encodes
// the reply.
func (s *Service) Dispatch(method string, paramsJson string) string {
	var result any
	var err error

	switch method {
	case "system.info":
		result = s.SystemInfo()
	case "analysis.start":
		result, err = s.StartAnalysis(paramsJson)
	case "selection.run":
		result, err = s.SelectCandidates(paramsJson)
	case "agents.status":
		result, err = s.AgentStatus()
	case "history.list":
		result, err = s.GetHistory(paramsJson)
	case "history.info":
		result, err = s.GetHistoryInfo(paramsJson)
	default:
		return jsonResp(404, "Method not found", nil)
	}
	if err != nil {
		return jsonResp(500, err.Error(), nil)
	}
	return jsonResp(200, "Ok", result)
}

func jsonResp(code int, msg string, data any) string {
	resp := Response{Code: code, Msg: msg, Data: data}
	b, _ := json.Marshal(resp)
	return string(b)
}
