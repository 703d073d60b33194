package genai

import "github.com/your-org/fluxgen/pkg/adapters"

// Call is one logical generation request. The zero value of every optional
// field means "use the client default".
type Call struct {
	Prompt string
	System string
	// Turns continue the conversation after Prompt.
	Turns []adapters.Message

	// Provider and Model override the configured primary.
	Provider    string
	Model       string
	Temperature *float64
	MaxTokens   int
	JSONMode    bool

	// DisableFallback keeps the call on a single provider.
	DisableFallback bool

	// Attribution copied onto spans and cost metrics.
	AgentName   string
	CampaignID  string
	Endpoint    string
	ContentType string
}

// Temperature returns a pointer for Call.Temperature.
func Temperature(v float64) *float64 { return &v }
