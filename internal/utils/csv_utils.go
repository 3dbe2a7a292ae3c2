package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/dyike/CortexQuant/models"
)

type CSVManager struct {
	basePath string
	now      func() time.Time
}

func NewCSVManager(basePath string) *CSVManager {
	return &CSVManager{
		basePath: basePath,
		now:      time.Now,
	}
}

// WriteSignalsToCSV 将一次运行的全部智能体信号写入 CSV，返回文件路径
func (c *CSVManager) WriteSignalsToCSV(signals models.SignalMap) (string, error) {
	headers := []string{"Agent", "Code", "Signal", "Confidence", "Reasoning"}
	var rows [][]string
	for _, agent := range sortedKeys(signals) {
		perCode := signals[agent]
		for _, code := range sortedKeys(perCode) {
			s := perCode[code]
			rows = append(rows, []string{agent, code, string(s.Signal), strconv.Itoa(s.Confidence), s.Reasoning})
		}
	}
	return c.write("signals", len(rows), headers, rows)
}

// WriteDecisionsToCSV 将决策结果与风控上限写入 CSV
func (c *CSVManager) WriteDecisionsToCSV(decisions map[string]models.Decision, limits map[string]models.RiskLimit) (string, error) {
	headers := []string{"Code", "Action", "Quantity", "Confidence", "PositionLimitPct", "Reasoning"}
	rows := make([][]string, 0, len(decisions))
	for _, code := range sortedKeys(decisions) {
		d := decisions[code]
		limit := ""
		if l, ok := limits[code]; ok {
			limit = strconv.FormatFloat(l.PositionLimitPct, 'f', 4, 64)
		}
		rows = append(rows, []string{code, string(d.Action), strconv.Itoa(d.Quantity), strconv.Itoa(d.Confidence), limit, d.Reasoning})
	}
	return c.write("decisions", len(rows), headers, rows)
}

// WriteCandidatesToCSV 将候选股评分写入 CSV
func (c *CSVManager) WriteCandidatesToCSV(result *models.PipelineResult) (string, error) {
	headers := []string{"Code", "Name", "Sector", "PreScore", "Bullish", "Bearish", "Neutral", "AgentScore", "Composite"}
	var rows [][]string
	if result != nil {
		for _, cand := range result.Candidates {
			rows = append(rows, []string{
				cand.Code,
				cand.Name,
				cand.Sector,
				strconv.FormatFloat(cand.PreScore, 'f', 2, 64),
				strconv.Itoa(cand.Bullish),
				strconv.Itoa(cand.Bearish),
				strconv.Itoa(cand.Neutral),
				strconv.FormatFloat(cand.AgentScore, 'f', 2, 64),
				strconv.FormatFloat(cand.Composite, 'f', 2, 64),
			})
		}
	}
	return c.write("candidates", len(rows), headers, rows)
}

// write 创建目录结构: {base}/csv/{kind}/，文件名包含记录数和时间戳
func (c *CSVManager) write(kind string, count int, headers []string, rows [][]string) (string, error) {
	dirPath := filepath.Join(c.basePath, "csv", kind)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%d_records_%s.csv", kind, count, c.now().Format("20060102_150405"))
	filePath := filepath.Join(dirPath, filename)

	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(headers); err != nil {
		return "", fmt.Errorf("failed to write headers: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return "", fmt.Errorf("failed to write rows: %w", err)
	}
	return filePath, nil
}

// ReadCSV 读取 CSV 文件，跳过标题行
func ReadCSV(filePath string) ([][]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no header in CSV file")
	}
	return records[1:], nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
