package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostKnownModel(t *testing.T) {
	table, err := NewPricingTable(map[string]Price{"m": {InputPerMillion: 0.10, OutputPerMillion: 0.40}})
	require.NoError(t, err)

	usd, known := table.Cost("m", 1000, 500)
	assert.True(t, known)
	assert.InDelta(t, 0.0003, usd, 1e-12)
}

func TestCostUnknownModelIsZero(t *testing.T) {
	usd, known := DefaultPricingTable().Cost("no-such-model", 1_000_000, 1_000_000)
	assert.False(t, known)
	assert.Zero(t, usd)
}

func TestCostZeroTokens(t *testing.T) {
	usd, known := DefaultPricingTable().Cost("gpt-4.1-nano", 0, 0)
	assert.True(t, known)
	assert.Zero(t, usd)
}

func TestDefaultTableAnthropic(t *testing.T) {
	usd, known := DefaultPricingTable().Cost("claude-sonnet-4-20250514", 1_000_000, 1_000_000)
	assert.True(t, known)
	assert.InDelta(t, 18.0, usd, 1e-9)
}

func TestWithOverrides(t *testing.T) {
	base := DefaultPricingTable()
	table, err := base.With(map[string]Price{"gpt-4.1-nano": {1, 1}, "local": {0, 0}})
	require.NoError(t, err)

	p, ok := table.Lookup("gpt-4.1-nano")
	require.True(t, ok)
	assert.Equal(t, Price{1, 1}, p)
	assert.Contains(t, table.Models(), "local")

	orig, _ := base.Lookup("gpt-4.1-nano")
	assert.Equal(t, 0.10, orig.InputPerMillion, "base table must be untouched")
}

func TestRejectsNegativePrice(t *testing.T) {
	_, err := NewPricingTable(map[string]Price{"m": {-1, 0}})
	assert.Error(t, err)
}
