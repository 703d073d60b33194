package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/your-org/fluxgen/internal/billing"
	"gopkg.in/yaml.v3"
)

var ErrManifestNoProvider = errors.New("manifest: defaults.provider is empty")

// Manifest is the YAML file that pins providers, pricing and defaults.
type Manifest struct {
	Defaults       DefaultsSpec             `yaml:"defaults"`
	Retry          RetrySpec                `yaml:"retry"`
	CircuitBreaker CircuitBreakerSpec       `yaml:"circuit_breaker"`
	Providers      map[string]ProviderSpec  `yaml:"providers"`
	Pricing        map[string]billing.Price `yaml:"pricing"`
	Prompts        PromptVersions           `yaml:"prompts"`
}

type DefaultsSpec struct {
	Provider         string   `yaml:"provider"`
	Model            string   `yaml:"model"`
	FallbackProvider string   `yaml:"fallback_provider"`
	FallbackModel    string   `yaml:"fallback_model"`
	Temperature      *float64 `yaml:"temperature"`
	MaxTokens        int      `yaml:"max_tokens"`
	Timeout          string   `yaml:"timeout"`
}

type RetrySpec struct {
	MaxAttempts  int     `yaml:"max_attempts"`
	InitialDelay string  `yaml:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay"`
	Jitter       float64 `yaml:"jitter"`
}

type CircuitBreakerSpec struct {
	FailureThreshold int    `yaml:"failure_threshold"`
	ResetTimeout     string `yaml:"reset_timeout"`
}

// ProviderSpec configures one vendor. Keys are read from APIKeyEnv so the
// manifest itself never carries secrets.
type ProviderSpec struct {
	BaseURL   string  `yaml:"base_url"`
	APIKeyEnv string  `yaml:"api_key_env"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type PromptVersions struct {
	Review  string `yaml:"review"`
	Improve string `yaml:"improve"`
	Score   string `yaml:"score"`
}

// LoadManifest parses and validates a YAML manifest.
func LoadManifest(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: read %q: %w", path, err)
	}
	return ParseManifest(b)
}

// ParseManifest decodes and validates manifest bytes.
func ParseManifest(b []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: unmarshal: %w", err)
	}
	if err := ValidateManifest(m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// ValidateManifest enforces structural correctness before runtime.
func ValidateManifest(m Manifest) error {
	d := m.Defaults
	if d.Provider == "" {
		return ErrManifestNoProvider
	}
	if !IsKnownProvider(d.Provider) {
		return fmt.Errorf("manifest: unknown defaults.provider %q", d.Provider)
	}
	if d.FallbackProvider != "" {
		if !IsKnownProvider(d.FallbackProvider) {
			return fmt.Errorf("manifest: unknown defaults.fallback_provider %q", d.FallbackProvider)
		}
		if d.FallbackProvider == d.Provider {
			return fmt.Errorf("manifest: fallback_provider must differ from provider %q", d.Provider)
		}
	}
	if d.Temperature != nil && (*d.Temperature < 0 || *d.Temperature > 2) {
		return fmt.Errorf("manifest: defaults.temperature %v outside [0,2]", *d.Temperature)
	}
	if d.MaxTokens < 0 {
		return errors.New("manifest: defaults.max_tokens is negative")
	}

	for field, v := range map[string]string{
		"defaults.timeout":              d.Timeout,
		"retry.initial_delay":           m.Retry.InitialDelay,
		"retry.max_delay":               m.Retry.MaxDelay,
		"circuit_breaker.reset_timeout": m.CircuitBreaker.ResetTimeout,
	} {
		if v == "" {
			continue
		}
		if dur, err := time.ParseDuration(v); err != nil || dur <= 0 {
			return fmt.Errorf("manifest: invalid %s %q", field, v)
		}
	}
	if m.Retry.MaxAttempts < 0 {
		return errors.New("manifest: retry.max_attempts is negative")
	}
	if m.Retry.Jitter < 0 || m.Retry.Jitter >= 1 {
		return fmt.Errorf("manifest: retry.jitter %v outside [0,1)", m.Retry.Jitter)
	}
	if m.CircuitBreaker.FailureThreshold < 0 {
		return errors.New("manifest: circuit_breaker.failure_threshold is negative")
	}

	for name, p := range m.Providers {
		if !IsKnownProvider(name) {
			return fmt.Errorf("manifest: unknown provider %q", name)
		}
		if p.RateLimit < 0 || p.RateBurst < 0 {
			return fmt.Errorf("manifest: provider %q has negative rate limit", name)
		}
	}
	if _, err := billing.NewPricingTable(m.Pricing); err != nil {
		return fmt.Errorf("manifest: pricing: %w", err)
	}
	return nil
}

// Apply overlays non-empty manifest fields onto cfg.
func (m Manifest) Apply(cfg Config) Config {
	d := m.Defaults
	cfg.Provider = d.Provider
	if d.Model != "" {
		cfg.Model = d.Model
	}
	if d.FallbackProvider != "" {
		cfg.FallbackProvider = d.FallbackProvider
		cfg.FallbackModel = d.FallbackModel
	}
	if d.Temperature != nil {
		cfg.Temperature = *d.Temperature
	}
	if d.MaxTokens > 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	overlayDuration(&cfg.Timeout, d.Timeout)

	if m.Retry.MaxAttempts > 0 {
		cfg.MaxAttempts = m.Retry.MaxAttempts
	}
	overlayDuration(&cfg.InitialDelay, m.Retry.InitialDelay)
	overlayDuration(&cfg.MaxDelay, m.Retry.MaxDelay)
	if m.Retry.Jitter > 0 {
		cfg.Jitter = m.Retry.Jitter
	}
	if m.CircuitBreaker.FailureThreshold > 0 {
		cfg.CircuitFailureThreshold = m.CircuitBreaker.FailureThreshold
	}
	overlayDuration(&cfg.CircuitResetTimeout, m.CircuitBreaker.ResetTimeout)

	providers := make(map[string]ProviderSettings, len(cfg.Providers))
	for k, v := range cfg.Providers {
		providers[k] = v
	}
	for name, spec := range m.Providers {
		ps := providers[name]
		if spec.BaseURL != "" {
			ps.BaseURL = spec.BaseURL
		}
		if spec.APIKeyEnv != "" {
			if key := os.Getenv(spec.APIKeyEnv); key != "" {
				ps.APIKey = key
			}
		}
		if spec.RateLimit > 0 {
			ps.RateLimit = spec.RateLimit
			ps.RateBurst = spec.RateBurst
		}
		providers[name] = ps
	}
	cfg.Providers = providers

	if m.Prompts.Review != "" {
		cfg.ReviewPromptVersion = m.Prompts.Review
	}
	if m.Prompts.Improve != "" {
		cfg.ImprovePromptVersion = m.Prompts.Improve
	}
	if m.Prompts.Score != "" {
		cfg.ScorePromptVersion = m.Prompts.Score
	}
	return cfg
}

// PricingTable layers manifest pricing over the built-in table.
func (m Manifest) PricingTable() (*billing.PricingTable, error) {
	return billing.DefaultPricingTable().With(m.Pricing)
}

func overlayDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}
