package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dyike/CortexQuant/models"
)

const (
	kindAnalysis  = "analysis"
	kindSelection = "selection"
)

// saveHistory 将结果写入 {historyDir}/{kind}/{runID}.json，返回相对路径
func (s *Service) saveHistory(kind, runID string, v any) (string, error) {
	if strings.TrimSpace(s.historyDir) == "" {
		return "", errors.New("history dir is not configured")
	}
	dir := filepath.Join(s.historyDir, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create history dir: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	name := runID + ".json"
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write history: %w", err)
	}
	return kind + "/" + name, nil
}

// GetHistory 列出历史目录下所有结果（仅目录信息，不包含内容），支持书签分页
func (s *Service) GetHistory(paramsJson string) (any, error) {
	var params models.HistoryParams
	if strings.TrimSpace(paramsJson) != "" {
		if err := json.Unmarshal([]byte(paramsJson), &params); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}
	return listAllHistory(s.historyDir, params.Cursor, params.Limit)
}

// listAllHistory 遍历 history 目录，列出所有 json 结果，支持简单书签分页
func listAllHistory(historyDir string, cursor string, limit int) (any, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rootAbs, err := filepath.Abs(historyDir)
	if err != nil {
		return nil, fmt.Errorf("resolve history dir: %w", err)
	}

	items := []models.HistoryListItem{}
	if err := filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".json") {
			return nil
		}
		rel, err := filepath.Rel(rootAbs, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		items = append(items, models.HistoryListItem{
			Name: d.Name(),
			Kind: strings.SplitN(rel, "/", 2)[0],
			Path: rel,
		})
		return nil
	}); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("walk history dir: %w", err)
	}

	// 固定排序，便于书签定位
	sort.Slice(items, func(i, j int) bool {
		return items[i].Path < items[j].Path
	})

	start := 0
	if cursor != "" {
		for i, f := range items {
			if f.Path == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if len(items) < end {
		end = len(items)
	}

	page := items[start:end]
	nextCursor := ""
	if end < len(items) {
		nextCursor = items[end-1].Path
	}

	return map[string]any{
		"items":       page,
		"next_cursor": nextCursor,
		"has_more":    nextCursor != "",
	}, nil
}

// GetHistoryInfo 根据相对路径读取单条历史结果
func (s *Service) GetHistoryInfo(paramsJson string) (any, error) {
	var params models.HistoryInfoParams
	if err := json.Unmarshal([]byte(paramsJson), &params); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	relPath := strings.TrimSpace(params.Path)
	if relPath == "" {
		return nil, errors.New("path is required")
	}

	rootAbs, err := filepath.Abs(s.historyDir)
	if err != nil {
		return nil, errors.New("history dir is not configured")
	}
	target := filepath.Join(rootAbs, filepath.FromSlash(relPath))
	relToRoot, err := filepath.Rel(rootAbs, target)
	if err != nil || relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(filepath.Separator)) {
		return nil, errors.New("path is outside history dir")
	}
	if !strings.EqualFold(filepath.Ext(target), ".json") {
		return nil, errors.New("path is not a json file")
	}

	content, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("path not found: %s", relPath)
		}
		return nil, fmt.Errorf("read file %s: %w", relPath, err)
	}

	return models.HistoryFile{
		Name:    filepath.Base(target),
		Path:    filepath.ToSlash(relToRoot),
		Content: json.RawMessage(content),
	}, nil
}
