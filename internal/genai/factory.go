package genai

import (
	"fmt"
	"net/http"

	"github.com/your-org/fluxgen/internal/config"
	"github.com/your-org/fluxgen/pkg/adapters"
	"github.com/your-org/fluxgen/pkg/adapters/anthropic"
	"github.com/your-org/fluxgen/pkg/adapters/gemini"
	"github.com/your-org/fluxgen/pkg/adapters/openai"
)

// Factory builds the adapter for a provider name.
type Factory func(name string, settings config.ProviderSettings, httpClient *http.Client) (adapters.Provider, error)

var defaultModels = map[string]string{
	config.ProviderOpenAI:    "gpt-4.1-nano",
	config.ProviderAnthropic: "claude-haiku-4-5-20251001",
	config.ProviderGoogle:    "gemini-2.0-flash",
}

// DefaultModel is the model used for a provider when none is configured.
func DefaultModel(provider string) string {
	return defaultModels[provider]
}

// DefaultFactory builds the raw-HTTP vendor adapters.
func DefaultFactory(name string, s config.ProviderSettings, httpClient *http.Client) (adapters.Provider, error) {
	switch name {
	case config.ProviderOpenAI:
		return openai.NewClient(s.APIKey, httpClient, s.BaseURL), nil
	case config.ProviderAnthropic:
		return anthropic.NewClient(s.APIKey, httpClient, s.BaseURL), nil
	case config.ProviderGoogle:
		return gemini.NewClient(s.APIKey, httpClient, s.BaseURL), nil
	default:
		return nil, unknownProvider("provider", name)
	}
}

func unknownProvider(field, name string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown provider %q; choose from openai, google, anthropic", name)}
}
