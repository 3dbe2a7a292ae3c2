package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexQuant/consts"
)

func TestAgentPromptsExist(t *testing.T) {
	names := []string{
		consts.TechnicalAnalyst, consts.FundamentalAnalyst, consts.SentimentAnalyst, consts.MarketAnalyst,
		consts.WarrenBuffett, consts.CharlieMunger, consts.BenGraham, consts.MichaelBurry,
		consts.MohnishPabrai, consts.PeterLynch, consts.CathieWood, consts.PhilFisher,
		consts.RakeshJhunjhunwala, consts.AswathDamodaran, consts.StanleyDruckenmiller, consts.BillAckman,
	}
	for _, name := range names {
		content, err := LoadAgentPrompt(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, content, name)
		// Prompts are rendered as FString templates.
		assert.False(t, strings.ContainsAny(content, "{}"), name)
	}
}

func TestLoadPromptMissing(t *testing.T) {
	_, err := LoadPrompt("agents/nobody")
	assert.Error(t, err)
	assert.Panics(t, func() { MustLoadPrompt("agents/nobody") })
}

func TestDecisionPrompt(t *testing.T) {
	content, err := LoadPrompt("decision/" + consts.PortfolioManager)
	require.NoError(t, err)
	assert.Contains(t, content, "position_limit_pct")
}
