// Package genai is the resilient generation client: it wraps provider
// adapters with retry, a single fallback hop and per-attempt telemetry.
package genai

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/your-org/fluxgen/internal/billing"
	"github.com/your-org/fluxgen/internal/config"
	"github.com/your-org/fluxgen/internal/metrics"
	"github.com/your-org/fluxgen/internal/retry"
	"github.com/your-org/fluxgen/pkg/adapters"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/your-org/fluxgen/internal/genai"

// Client is safe for concurrent use; every Generate owns its retry state.
type Client struct {
	cfg            config.Config
	factory        Factory
	httpClient     *http.Client
	logger         *slog.Logger
	tracer         trace.Tracer
	recorder       metrics.Recorder
	pricing        *billing.PricingTable
	policy         retry.Policy
	policySet      bool
	breaker        *retry.CircuitBreaker
	limiters       map[string]*rate.Limiter
	captureContent bool
	now            func() time.Time

	mu        sync.Mutex
	providers map[string]adapters.Provider
}

// New validates cfg and builds the primary and fallback adapters. Unknown
// provider names and a fallback equal to the primary fail here with a
// *ConfigurationError.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	c := &Client{
		factory:        DefaultFactory,
		httpClient:     &http.Client{},
		logger:         slog.Default(),
		tracer:         otel.Tracer(instrumentationName),
		recorder:       metrics.NoopRecorder{},
		pricing:        billing.DefaultPricingTable(),
		captureContent: cfg.CaptureContent,
		now:            time.Now,
		providers:      make(map[string]adapters.Provider),
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg, err := normalize(cfg)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	if !c.policySet {
		c.policy = retry.ExponentialPolicy(cfg.MaxAttempts, cfg.InitialDelay, cfg.MaxDelay, cfg.Jitter)
	}
	c.breaker = retry.NewCircuitBreaker(retry.CircuitPolicy{
		FailureThreshold: cfg.CircuitFailureThreshold,
		ResetTimeout:     cfg.CircuitResetTimeout,
	})
	c.limiters = make(map[string]*rate.Limiter)
	for name, ps := range cfg.Providers {
		if ps.RateLimit <= 0 {
			continue
		}
		burst := ps.RateBurst
		if burst <= 0 {
			burst = int(math.Max(1, math.Ceil(ps.RateLimit)))
		}
		c.limiters[name] = rate.NewLimiter(rate.Limit(ps.RateLimit), burst)
	}

	if _, err := c.provider(cfg.Provider); err != nil {
		return nil, err
	}
	if cfg.FallbackProvider != "" {
		if _, err := c.provider(cfg.FallbackProvider); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func normalize(cfg config.Config) (config.Config, error) {
	if cfg.Provider == "" {
		return cfg, &ConfigurationError{Field: "provider", Reason: "primary provider is required"}
	}
	if !config.IsKnownProvider(cfg.Provider) {
		return cfg, unknownProvider("provider", cfg.Provider)
	}
	if cfg.FallbackProvider != "" {
		if !config.IsKnownProvider(cfg.FallbackProvider) {
			return cfg, unknownProvider("fallback_provider", cfg.FallbackProvider)
		}
		if cfg.FallbackProvider == cfg.Provider {
			return cfg, &ConfigurationError{Field: "fallback_provider", Reason: "must differ from the primary provider"}
		}
		if cfg.FallbackModel == "" {
			cfg.FallbackModel = DefaultModel(cfg.FallbackProvider)
		}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = retry.DefaultMaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = retry.DefaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = retry.DefaultMaxDelay
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = config.Default().MaxTokens
	}
	return cfg, nil
}

// Config returns the normalized configuration.
func (c *Client) Config() config.Config { return c.cfg }

// Identity returns the telemetry identity of the named provider. A provider
// that cannot be built reports its name as the system.
func (c *Client) Identity(name string) adapters.Identity {
	p, err := c.provider(name)
	if err != nil {
		return adapters.Identity{Name: name, System: name}
	}
	return p.Identity()
}

func (c *Client) provider(name string) (adapters.Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.providers[name]; ok {
		return p, nil
	}
	p, err := c.factory(name, c.cfg.Providers[name], c.httpClient)
	if err != nil {
		return nil, err
	}
	c.providers[name] = p
	return p, nil
}

// Generate runs the primary provider with retries and, when it fails and a
// distinct fallback is configured, one fallback hop. The terminal error is
// returned unchanged.
func (c *Client) Generate(ctx context.Context, call Call) (adapters.GenerateResult, error) {
	res, last, err := c.generate(ctx, call)
	if err != nil {
		kind := errorType(err)
		c.recorder.ObserveError(ctx, last, kind)
		c.logger.ErrorContext(ctx, "generation failed",
			"provider", last.Provider, "model", last.RequestModel, "error_type", kind, "error", err)
	}
	return res, err
}

func (c *Client) generate(ctx context.Context, call Call) (adapters.GenerateResult, metrics.Call, error) {
	name := call.Provider
	if name == "" {
		name = c.cfg.Provider
	}
	labels := metrics.Call{Provider: name, RequestModel: call.Model}
	if !config.IsKnownProvider(name) {
		return adapters.GenerateResult{}, labels, unknownProvider("call.provider", name)
	}
	p, err := c.provider(name)
	if err != nil {
		return adapters.GenerateResult{}, labels, err
	}
	req := c.request(name, call)
	labels = c.labels(p.Identity(), req.Model, call)
	if err := req.Validate(); err != nil {
		// no provider can serve an invalid request
		return adapters.GenerateResult{}, labels, adapters.Permanent(err)
	}

	res, err := c.attemptProvider(ctx, p, req, call, labels)
	if err == nil {
		return res, labels, nil
	}

	fallback := c.cfg.FallbackProvider
	if call.DisableFallback || fallback == "" || fallback == name {
		return res, labels, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, labels, ctxErr
	}
	fp, ferr := c.provider(fallback)
	if ferr != nil {
		return res, labels, err
	}

	kind := errorType(err)
	c.recorder.ObserveFallback(ctx, labels, fp.Identity().System, kind)
	c.logger.WarnContext(ctx, "primary provider failed, falling back",
		"provider", name, "fallback_provider", fallback, "error_type", kind, "error", err)

	next := call
	next.Provider = fallback
	next.Model = c.cfg.FallbackModel
	next.DisableFallback = true
	return c.generate(ctx, next)
}

func (c *Client) request(provider string, call Call) adapters.GenerateRequest {
	model := call.Model
	if model == "" {
		switch provider {
		case c.cfg.Provider:
			model = c.cfg.Model
		case c.cfg.FallbackProvider:
			model = c.cfg.FallbackModel
		default:
			model = DefaultModel(provider)
		}
	}
	temperature := c.cfg.Temperature
	if call.Temperature != nil {
		temperature = *call.Temperature
	}
	maxTokens := c.cfg.MaxTokens
	if call.MaxTokens > 0 {
		maxTokens = call.MaxTokens
	}
	return adapters.GenerateRequest{
		Model:        model,
		SystemPrompt: call.System,
		UserPrompt:   call.Prompt,
		Turns:        call.Turns,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		JSONMode:     call.JSONMode,
	}
}

func (c *Client) labels(id adapters.Identity, model string, call Call) metrics.Call {
	return metrics.Call{
		Provider:      id.System,
		RequestModel:  model,
		ServerAddress: id.ServerAddress,
		ServerPort:    id.ServerPort,
		Endpoint:      call.Endpoint,
		ContentType:   call.ContentType,
		AgentName:     call.AgentName,
		CampaignID:    call.CampaignID,
	}
}

func (c *Client) attemptProvider(ctx context.Context, p adapters.Provider, req adapters.GenerateRequest, call Call, labels metrics.Call) (adapters.GenerateResult, error) {
	id := p.Identity()
	res, _, err := retry.Do(ctx, c.policy, retry.Hooks{
		Retryable: adapters.IsTransient,
		MinDelay:  retryAfter,
		OnRetry: func(st retry.State, delay time.Duration) {
			kind := errorType(st.LastErr)
			c.recorder.ObserveRetry(ctx, labels, kind, st.Attempt)
			c.logger.WarnContext(ctx, "provider call failed, retrying",
				"provider", id.Name, "model", req.Model, "attempt", st.Attempt,
				"error_type", kind, "delay", delay, "error", st.LastErr)
		},
	}, func(ctx context.Context, attempt int) (adapters.GenerateResult, error) {
		return c.attempt(ctx, p, req, call, labels, attempt)
	})
	return res, err
}

// errorType extends adapters.ErrorType with client-side rejections.
func errorType(err error) string {
	if errors.Is(err, retry.ErrCircuitOpen) {
		return "circuit_open"
	}
	return adapters.ErrorType(err)
}

func retryAfter(err error) time.Duration {
	var te *adapters.TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}
