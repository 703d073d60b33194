package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.Provider != ProviderOpenAI || cfg.Model != "gpt-4.1-nano" {
		t.Fatalf("unexpected default provider/model: %s/%s", cfg.Provider, cfg.Model)
	}
	if cfg.MaxAttempts != 3 || cfg.InitialDelay != time.Second || cfg.MaxDelay != 10*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg)
	}
	if cfg.CaptureContent {
		t.Fatal("content capture must be off by default")
	}
	if cfg.CircuitFailureThreshold != 0 {
		t.Fatal("circuit breaker must be disabled by default")
	}
	if cfg.MetricsBackend != "prometheus" {
		t.Fatalf("unexpected metrics backend: %q", cfg.MetricsBackend)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Anthropic")
	t.Setenv("LLM_MODEL", "claude-haiku-4-5-20251001")
	t.Setenv("FALLBACK_PROVIDER", "google")
	t.Setenv("FALLBACK_MODEL", "gemini-2.0-flash")
	t.Setenv("LLM_TEMPERATURE", "0.9")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("GOOGLE_RATE_LIMIT", "2.5")
	t.Setenv("GOOGLE_RATE_BURST", "4")
	t.Setenv("OTEL_INSTRUMENTATION_GENAI_CAPTURE_MESSAGE_CONTENT", "TRUE")
	t.Setenv("PIPELINE_CONCURRENCY", "4")
	t.Setenv("METRICS_BACKEND", "OTel")
	t.Setenv("LEASE_DIR", "/var/run/fluxgen")
	t.Setenv("AUDIT_LOG_PATH", "audit.jsonl")

	cfg := FromEnv()
	if cfg.Provider != ProviderAnthropic || cfg.FallbackProvider != ProviderGoogle {
		t.Fatalf("unexpected providers: %s -> %s", cfg.Provider, cfg.FallbackProvider)
	}
	if cfg.Temperature != 0.9 || cfg.Timeout != 5*time.Second {
		t.Fatalf("unexpected temperature/timeout: %v %v", cfg.Temperature, cfg.Timeout)
	}
	if cfg.Providers[ProviderAnthropic].APIKey != "sk-ant" {
		t.Fatal("api key not loaded")
	}
	if g := cfg.Providers[ProviderGoogle]; g.RateLimit != 2.5 || g.RateBurst != 4 {
		t.Fatalf("unexpected google rate limit: %+v", g)
	}
	if !cfg.CaptureContent {
		t.Fatal("content capture flag not honored")
	}
	if cfg.Concurrency != 4 {
		t.Fatalf("unexpected concurrency: %d", cfg.Concurrency)
	}
	if cfg.MetricsBackend != "otel" || cfg.LeaseDir != "/var/run/fluxgen" || cfg.AuditLogPath != "audit.jsonl" {
		t.Fatalf("unexpected metrics/lease/audit settings: %q %q %q", cfg.MetricsBackend, cfg.LeaseDir, cfg.AuditLogPath)
	}
}

func TestFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("LLM_TEMPERATURE", "7")
	t.Setenv("LLM_MAX_ATTEMPTS", "-1")
	t.Setenv("LLM_TIMEOUT", "soon")

	cfg := FromEnv()
	if cfg.Temperature != 0.3 || cfg.MaxAttempts != 3 || cfg.Timeout != 30*time.Second {
		t.Fatalf("invalid env values should be ignored: %+v", cfg)
	}
}
