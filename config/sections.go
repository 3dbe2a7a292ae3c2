package config

import (
	"reflect"
	"strings"
)

// Section groups config keys by the engine component they feed, so a reload
// can rebuild only what a change touches.
type Section uint8

const (
	// SectionLLM covers the provider, credentials and inference client limits.
	SectionLLM Section = 1 << iota
	// SectionMarket covers the data sources and the market data cache.
	SectionMarket
	// SectionAgents covers the coordinator fan-out.
	SectionAgents
	// SectionSelection covers the candidate pipeline and its gate.
	SectionSelection
	// SectionRuntime covers keys the engine never reads.
	SectionRuntime

	SectionAll = SectionLLM | SectionMarket | SectionAgents | SectionSelection | SectionRuntime
)

var sectionNames = []struct {
	s    Section
	name string
}{
	{SectionLLM, "llm"},
	{SectionMarket, "market"},
	{SectionAgents, "agents"},
	{SectionSelection, "selection"},
	{SectionRuntime, "runtime"},
}

// fieldSections maps each json key of Config to its section. Keys missing
// here count as SectionAll.
var fieldSections = map[string]Section{
	"project_dir": SectionRuntime,
	"data_dir":    SectionRuntime,

	"llm_provider":            SectionLLM,
	"llm_model":               SectionLLM,
	"backend_url":             SectionLLM,
	"deepseek_api_key":        SectionLLM,
	"openai_api_key":          SectionLLM,
	"llm_max_concurrency":     SectionLLM,
	"llm_min_interval":        SectionLLM,
	"llm_max_retries":         SectionLLM,
	"llm_throttle_base_delay": SectionLLM,
	"llm_throttle_max_delay":  SectionLLM,
	"llm_transient_delay":     SectionLLM,
	"llm_request_timeout":     SectionLLM,
	"llm_max_tokens":          SectionLLM,

	"agent_concurrency": SectionAgents,
	"agent_timeout":     SectionAgents,

	"market_cache_ttl":      SectionMarket,
	"sector_cache_ttl":      SectionMarket,
	"eastmoney_timeout":     SectionMarket,
	"longport_app_key":      SectionMarket,
	"longport_app_secret":   SectionMarket,
	"longport_access_token": SectionMarket,

	"selection_cache_ttl": SectionSelection,
	"sector_top_n":        SectionSelection,
	"market_wide_top_n":   SectionSelection,
	"sector_fetch":        SectionSelection,
	"market_wide_fetch":   SectionSelection,

	"eino_debug_enabled": SectionRuntime,
	"eino_debug_port":    SectionRuntime,
	"debug":              SectionRuntime,
	"metrics_addr":       SectionRuntime,
}

// Has reports whether s shares any bit with other.
func (s Section) Has(other Section) bool { return s&other != 0 }

func (s Section) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	for _, n := range sectionNames {
		if s.Has(n.s) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Diff returns the sections whose keys differ between a and b.
func Diff(a, b Config) Section {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	t := va.Type()
	var changed Section
	for i := 0; i < t.NumField(); i++ {
		if va.Field(i).Interface() == vb.Field(i).Interface() {
			continue
		}
		changed |= sectionOf(t.Field(i))
	}
	return changed
}

func sectionOf(f reflect.StructField) Section {
	key, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if s, ok := fieldSections[key]; ok {
		return s
	}
	return SectionAll
}

// Change is what a listener receives when the config moves.
type Change struct {
	Old, New Config
	Sections Section
}
