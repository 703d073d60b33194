package billing

import (
	"fmt"
	"sort"
)

// Price is USD per million tokens.
type Price struct {
	InputPerMillion  float64 `json:"input" yaml:"input"`
	OutputPerMillion float64 `json:"output" yaml:"output"`
}

// PricingTable maps exact model names to prices. It is read-only after
// construction and safe for concurrent use.
type PricingTable struct {
	prices map[string]Price
}

var defaultPrices = map[string]Price{
	// OpenAI
	"gpt-5.2":      {1.75, 14.0},
	"gpt-4.1-mini": {0.40, 1.60},
	"gpt-4.1-nano": {0.10, 0.40},
	// Google
	"gemini-3.0-flash-preview": {0.50, 3.0},
	"gemini-2.5-flash":         {0.30, 2.50},
	"gemini-2.0-flash":         {0.10, 0.40},
	// Anthropic
	"claude-opus-4-6":            {5.0, 25.0},
	"claude-opus-4-5-20251101":   {15.0, 75.0},
	"claude-opus-4-1-20250805":   {15.0, 75.0},
	"claude-sonnet-4-5-20250929": {3.0, 15.0},
	"claude-sonnet-4-20250514":   {3.0, 15.0},
	"claude-haiku-4-5-20251001":  {1.0, 5.0},
	"claude-3-5-haiku-20241022":  {0.80, 4.0},
}

// NewPricingTable validates prices and copies them into a table.
func NewPricingTable(prices map[string]Price) (*PricingTable, error) {
	t := &PricingTable{prices: make(map[string]Price, len(prices))}
	for model, p := range prices {
		if model == "" {
			return nil, fmt.Errorf("pricing entry with empty model name")
		}
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			return nil, fmt.Errorf("negative price is invalid for model %q", model)
		}
		t.prices[model] = p
	}
	return t, nil
}

// DefaultPricingTable returns the built-in vendor price list.
func DefaultPricingTable() *PricingTable {
	t, _ := NewPricingTable(defaultPrices)
	return t
}

// With returns a new table with overrides layered over t.
func (t *PricingTable) With(overrides map[string]Price) (*PricingTable, error) {
	merged := make(map[string]Price, len(t.prices)+len(overrides))
	for k, v := range t.prices {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return NewPricingTable(merged)
}

func (t *PricingTable) Lookup(model string) (Price, bool) {
	if t == nil {
		return Price{}, false
	}
	p, ok := t.prices[model]
	return p, ok
}

// Cost prices a call. Models missing from the table cost 0 and report
// known=false so callers can tell "free" from "unpriced".
func (t *PricingTable) Cost(model string, inputTokens, outputTokens int) (usd float64, known bool) {
	p, ok := t.Lookup(model)
	if !ok {
		return 0, false
	}
	return (float64(inputTokens)*p.InputPerMillion + float64(outputTokens)*p.OutputPerMillion) / 1_000_000, true
}

// Models lists priced models in sorted order.
func (t *PricingTable) Models() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.prices))
	for m := range t.prices {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
