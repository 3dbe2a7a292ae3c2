package display

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dyike/CortexQuant/internal/agents"
	"github.com/dyike/CortexQuant/models"
)

const reasoningWidth = 48

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			MarginTop(1)

	headerCellStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	bullishStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	bearishStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	neutralStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// ResultsDisplay renders engine results as terminal tables.
type ResultsDisplay struct {
	out io.Writer
	now func() time.Time
}

func NewResultsDisplay(out io.Writer) *ResultsDisplay {
	if out == nil {
		out = os.Stdout
	}
	return &ResultsDisplay{out: out, now: time.Now}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCellStyle
			}
			return cellStyle
		})
}

func (d *ResultsDisplay) title(s string) {
	fmt.Fprintln(d.out, titleStyle.Render(s))
}

// ShowSignals prints one row per (agent, instrument), agents in name order.
func (d *ResultsDisplay) ShowSignals(run agents.RunResult) {
	d.title("📊 AGENT SIGNALS")
	names := make([]string, 0, len(run.Signals))
	for name := range run.Signals {
		names = append(names, name)
	}
	sort.Strings(names)

	t := newTable("Agent", "Code", "Signal", "Conf", "Reasoning")
	rows := 0
	for _, name := range names {
		perCode := run.Signals[name]
		if len(perCode) == 0 {
			t.Row(name, "-", mutedStyle.Render("no output"), "-", "")
			rows++
			continue
		}
		for _, code := range sortedKeys(perCode) {
			s := perCode[code]
			t.Row(name, code, signalLabel(s.Signal), strconv.Itoa(s.Confidence), truncate(s.Reasoning, reasoningWidth))
			rows++
		}
	}
	if rows == 0 {
		fmt.Fprintln(d.out, mutedStyle.Render("   (no agent output)"))
		return
	}
	fmt.Fprintln(d.out, t.String())

	if len(run.RiskLimits) > 0 {
		d.ShowRiskLimits(run.RiskLimits)
	}
}

func (d *ResultsDisplay) ShowRiskLimits(limits map[string]models.RiskLimit) {
	d.title("⚠️  RISK LIMITS")
	t := newTable("Code", "Position Limit", "Annual Vol", "Daily Vol")
	for _, code := range sortedKeys(limits) {
		l := limits[code]
		t.Row(code, percent(l.PositionLimitPct), percent(l.AnnualizedVolatility), percent(l.DailyVolatility))
	}
	fmt.Fprintln(d.out, t.String())
}

func (d *ResultsDisplay) ShowDecisions(decisions map[string]models.Decision) {
	d.title("🎯 DECISIONS")
	if len(decisions) == 0 {
		fmt.Fprintln(d.out, mutedStyle.Render("   (no decisions)"))
		return
	}
	t := newTable("Code", "Action", "Qty", "Conf", "Reasoning")
	for _, code := range sortedKeys(decisions) {
		dec := decisions[code]
		t.Row(code, actionLabel(dec.Action), strconv.Itoa(dec.Quantity), strconv.Itoa(dec.Confidence), truncate(dec.Reasoning, reasoningWidth))
	}
	fmt.Fprintln(d.out, t.String())
}

func (d *ResultsDisplay) ShowPipeline(res *models.PipelineResult) {
	d.title("🔎 CANDIDATE SELECTION")
	if res == nil {
		fmt.Fprintln(d.out, mutedStyle.Render("   (no result)"))
		return
	}
	t := newTable("Code", "Name", "Sources", "Pre", "Bull/Bear/Neu", "Agent", "Composite")
	for _, c := range res.Candidates {
		t.Row(
			c.Code,
			c.Name,
			strings.Join(c.Sources, ","),
			fmt.Sprintf("%.0f", c.PreScore),
			fmt.Sprintf("%d/%d/%d", c.Bullish, c.Bearish, c.Neutral),
			fmt.Sprintf("%.2f", c.AgentScore),
			fmt.Sprintf("%.2f", c.Composite),
		)
	}
	fmt.Fprintln(d.out, t.String())

	if res.BestSector != nil {
		fmt.Fprintf(d.out, "🏆 Best in sector %s: %s %s (agent score %.2f)\n",
			res.SectorName, res.BestSector.Code, res.BestSector.Name, res.BestSector.AgentScore)
	}
	if res.BestMarketWide != nil {
		fmt.Fprintf(d.out, "🌐 Best market-wide: %s %s (composite %.2f)\n",
			res.BestMarketWide.Code, res.BestMarketWide.Name, res.BestMarketWide.Composite)
	}
	fmt.Fprintf(d.out, "🕐 Generated at %s\n", res.GeneratedAt.Format("2006-01-02 15:04:05"))
}

func (d *ResultsDisplay) ShowAgentStatus(statuses []agents.AgentStatus) {
	d.title("🤖 AGENTS")
	t := newTable("Agent", "Description", "Runs", "Last Run", "Elapsed", "Last Error")
	for _, s := range statuses {
		last := "-"
		if !s.LastRun.IsZero() {
			last = s.LastRun.Format("15:04:05")
		}
		t.Row(s.Name, s.Description, strconv.Itoa(s.Runs), last, s.LastElapsed.Round(time.Millisecond).String(), truncate(s.LastError, 32))
	}
	fmt.Fprintln(d.out, t.String())
}

// ShowFooter prints the completion time and disclaimer.
func (d *ResultsDisplay) ShowFooter() {
	fmt.Fprintln(d.out, mutedStyle.Render(fmt.Sprintf("🕐 Completed at %s", d.now().Format("2006-01-02 15:04:05"))))
	fmt.Fprintln(d.out, mutedStyle.Render("⚠️  For research only, not financial advice."))
}

// SaveResultsToFile writes v as indented JSON to path, creating its directory.
func SaveResultsToFile(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results to JSON: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create results dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

func signalLabel(s models.Signal) string {
	switch s {
	case models.SignalBullish:
		return bullishStyle.Render("🟢 bullish")
	case models.SignalBearish:
		return bearishStyle.Render("🔴 bearish")
	default:
		return neutralStyle.Render("🟡 neutral")
	}
}

func actionLabel(a models.Action) string {
	switch a {
	case models.ActionBuy:
		return bullishStyle.Render("BUY")
	case models.ActionSell:
		return bearishStyle.Render("SELL")
	default:
		return neutralStyle.Render("HOLD")
	}
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// truncate cuts s to n runes.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
