package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted everywhere a provider is selected.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// KnownProviders is the closed set of provider names.
var KnownProviders = []string{ProviderOpenAI, ProviderAnthropic, ProviderGoogle}

func IsKnownProvider(name string) bool {
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}

// ProviderSettings holds per-vendor connection options.
type ProviderSettings struct {
	APIKey  string
	BaseURL string
	// RateLimit is requests per second; zero disables client-side limiting.
	RateLimit float64
	RateBurst int
}

// Config is the runtime configuration of the generation core.
type Config struct {
	Provider         string
	Model            string
	FallbackProvider string
	FallbackModel    string
	Temperature      float64
	MaxTokens        int
	// Timeout bounds a single provider attempt.
	Timeout time.Duration

	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       float64

	CircuitFailureThreshold int
	CircuitResetTimeout     time.Duration

	// CaptureContent attaches scrubbed prompts and completions to spans.
	CaptureContent bool

	Providers map[string]ProviderSettings

	ReviewPromptVersion  string
	ImprovePromptVersion string
	ScorePromptVersion   string

	Concurrency int
	// RedisURL selects redis run leases; otherwise LeaseDir selects file
	// leases on this host.
	RedisURL     string
	LeaseDir     string
	MetricsAddr  string
	// MetricsBackend is "prometheus" for native collectors or "otel" for the
	// OTel meter bridged into the same registry.
	MetricsBackend string
	LogLevel       string
	AuditLogPath   string
}

// Default returns the baseline configuration before env and manifest overlays.
func Default() Config {
	return Config{
		Provider:             ProviderOpenAI,
		Model:                "gpt-4.1-nano",
		Temperature:          0.3,
		MaxTokens:            1024,
		Timeout:              30 * time.Second,
		MaxAttempts:          3,
		InitialDelay:         time.Second,
		MaxDelay:             10 * time.Second,
		CircuitResetTimeout:  60 * time.Second,
		Providers:            map[string]ProviderSettings{},
		ReviewPromptVersion:  "v1",
		ImprovePromptVersion: "v1",
		ScorePromptVersion:   "v1",
		Concurrency:          1,
		MetricsBackend:       "prometheus",
		LogLevel:             "info",
	}
}

// FromEnv loads runtime config from environment with safe defaults.
func FromEnv() Config {
	cfg := Default()

	setString(&cfg.Provider, "LLM_PROVIDER")
	setString(&cfg.Model, "LLM_MODEL")
	setString(&cfg.FallbackProvider, "FALLBACK_PROVIDER")
	setString(&cfg.FallbackModel, "FALLBACK_MODEL")
	cfg.Provider = strings.ToLower(cfg.Provider)
	cfg.FallbackProvider = strings.ToLower(cfg.FallbackProvider)

	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 2 {
			cfg.Temperature = f
		}
	}
	setPositiveInt(&cfg.MaxTokens, "LLM_MAX_TOKENS")
	setDuration(&cfg.Timeout, "LLM_TIMEOUT")
	setPositiveInt(&cfg.MaxAttempts, "LLM_MAX_ATTEMPTS")
	setDuration(&cfg.InitialDelay, "LLM_RETRY_INITIAL_DELAY")
	setDuration(&cfg.MaxDelay, "LLM_RETRY_MAX_DELAY")
	if v := os.Getenv("LLM_RETRY_JITTER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f < 1 {
			cfg.Jitter = f
		}
	}
	setPositiveInt(&cfg.CircuitFailureThreshold, "CIRCUIT_FAILURE_THRESHOLD")
	setDuration(&cfg.CircuitResetTimeout, "CIRCUIT_RESET_TIMEOUT")

	cfg.CaptureContent = strings.EqualFold(strings.TrimSpace(os.Getenv("OTEL_INSTRUMENTATION_GENAI_CAPTURE_MESSAGE_CONTENT")), "true")

	for _, name := range KnownProviders {
		prefix := strings.ToUpper(name)
		ps := ProviderSettings{
			APIKey:  os.Getenv(prefix + "_API_KEY"),
			BaseURL: os.Getenv(prefix + "_BASE_URL"),
		}
		if v := os.Getenv(prefix + "_RATE_LIMIT"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				ps.RateLimit = f
			}
		}
		if v := os.Getenv(prefix + "_RATE_BURST"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				ps.RateBurst = n
			}
		}
		cfg.Providers[name] = ps
	}

	setString(&cfg.ReviewPromptVersion, "REVIEW_PROMPT_VERSION")
	setString(&cfg.ImprovePromptVersion, "IMPROVE_PROMPT_VERSION")
	setString(&cfg.ScorePromptVersion, "SCORE_PROMPT_VERSION")
	setPositiveInt(&cfg.Concurrency, "PIPELINE_CONCURRENCY")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.LeaseDir, "LEASE_DIR")
	setString(&cfg.AuditLogPath, "AUDIT_LOG_PATH")
	setString(&cfg.MetricsAddr, "METRICS_ADDR")
	setString(&cfg.MetricsBackend, "METRICS_BACKEND")
	cfg.MetricsBackend = strings.ToLower(cfg.MetricsBackend)
	setString(&cfg.LogLevel, "LOG_LEVEL")

	return cfg
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setPositiveInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}
