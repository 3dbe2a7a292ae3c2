package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEveryKeyHasASection(t *testing.T) {
	typ := reflect.TypeOf(Config{})
	for i := 0; i < typ.NumField(); i++ {
		key, _, _ := strings.Cut(typ.Field(i).Tag.Get("json"), ",")
		_, ok := fieldSections[key]
		assert.True(t, ok, "config key %q has no section", key)
	}
}

func TestDiff(t *testing.T) {
	base := *DefaultConfigWithRoot(t.TempDir())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   Section
	}{
		{"unchanged", func(*Config) {}, 0},
		{"model", func(c *Config) { c.LLMModel = "gpt-4o" }, SectionLLM},
		{"credentials", func(c *Config) { c.LongportAccessToken = "tok" }, SectionMarket},
		{"cache ttl", func(c *Config) { c.MarketCacheTTL = time.Second }, SectionMarket},
		{"fan-out", func(c *Config) { c.AgentTimeout = time.Minute }, SectionAgents},
		{"gate ttl", func(c *Config) { c.SelectionCacheTTL = time.Minute }, SectionSelection},
		{"metrics", func(c *Config) { c.MetricsAddr = ":0" }, SectionRuntime},
		{"mixed", func(c *Config) {
			c.LLMMaxTokens = 10
			c.SectorTopN = 9
		}, SectionLLM | SectionSelection},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next := base
			tc.mutate(&next)
			assert.Equal(t, tc.want, Diff(base, next))
		})
	}
}

func TestSectionString(t *testing.T) {
	assert.Equal(t, "none", Section(0).String())
	assert.Equal(t, "llm|selection", (SectionSelection | SectionLLM).String())
	assert.Equal(t, "llm|market|agents|selection|runtime", SectionAll.String())
	assert.True(t, SectionAll.Has(SectionAgents))
	assert.False(t, SectionRuntime.Has(SectionLLM|SectionMarket))
}
