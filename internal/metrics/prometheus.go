package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder reports GenAI client metrics using Prometheus primitives.
type PrometheusRecorder struct {
	tokens      *prometheus.HistogramVec
	durations   *prometheus.HistogramVec
	cost        *prometheus.CounterVec
	retries     *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	errors      *prometheus.CounterVec
	circuitOpen *prometheus.CounterVec
	evaluations *prometheus.HistogramVec
}

func NewPrometheusRecorder(registry *prometheus.Registry) (*PrometheusRecorder, error) {
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is nil")
	}

	r := &PrometheusRecorder{
		tokens: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gen_ai_client_token_usage",
			Help:    "Tokens used per call by token type",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"provider", "model", "token_type"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gen_ai_client_operation_duration_seconds",
			Help:    "Provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "model"}),
		cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gen_ai_client_cost_usd_total",
			Help: "Cumulative cost of provider calls in USD",
		}, []string{"provider", "model", "endpoint", "content_type"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gen_ai_client_retries_total",
			Help: "Retry attempts by provider and error type",
		}, []string{"provider", "model", "error_type"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gen_ai_client_fallbacks_total",
			Help: "Fallback hops from a primary to a fallback provider",
		}, []string{"provider", "fallback_provider", "error_type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gen_ai_client_errors_total",
			Help: "Terminal call failures by error type",
		}, []string{"provider", "model", "error_type"}),
		circuitOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gen_ai_client_circuit_breaks_total",
			Help: "Calls rejected by an open circuit breaker",
		}, []string{"provider"}),
		evaluations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gen_ai_evaluation_score",
			Help:    "Content evaluation scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}, []string{"evaluation", "label", "content_type"}),
	}

	for _, collector := range []prometheus.Collector{
		r.tokens, r.durations, r.cost, r.retries, r.fallbacks, r.errors, r.circuitOpen, r.evaluations,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) ObserveSuccess(_ context.Context, c Call, o Outcome) {
	r.durations.WithLabelValues(c.Provider, c.RequestModel).Observe(o.Duration.Seconds())
	if !o.HasUsage {
		return
	}
	r.tokens.WithLabelValues(c.Provider, c.RequestModel, "input").Observe(float64(o.InputTokens))
	r.tokens.WithLabelValues(c.Provider, c.RequestModel, "output").Observe(float64(o.OutputTokens))
	r.cost.WithLabelValues(c.Provider, c.RequestModel, c.Endpoint, c.ContentType).Add(o.CostUSD)
}

func (r *PrometheusRecorder) ObserveRetry(_ context.Context, c Call, errorType string, _ int) {
	r.retries.WithLabelValues(c.Provider, c.RequestModel, errorType).Inc()
}

func (r *PrometheusRecorder) ObserveFallback(_ context.Context, c Call, fallbackProvider string, errorType string) {
	r.fallbacks.WithLabelValues(c.Provider, fallbackProvider, errorType).Inc()
}

func (r *PrometheusRecorder) ObserveError(_ context.Context, c Call, errorType string) {
	r.errors.WithLabelValues(c.Provider, c.RequestModel, errorType).Inc()
}

func (r *PrometheusRecorder) ObserveCircuitOpen(_ context.Context, provider string) {
	r.circuitOpen.WithLabelValues(provider).Inc()
}

func (r *PrometheusRecorder) ObserveEvaluation(_ context.Context, e Evaluation) {
	r.evaluations.WithLabelValues(e.Name, e.Label, e.ContentType).Observe(e.Score)
}

// StartPrometheusServer serves registry on addr/metrics in the background.
func StartPrometheusServer(addr string, registry *prometheus.Registry) (*http.Server, error) {
	if addr == "" {
		addr = ":2112"
	}
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is nil")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics endpoint %q: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:    ln.Addr().String(),
		Handler: mux,
	}
	go func() {
		_ = srv.Serve(ln)
	}()
	return srv, nil
}

func StopServer(ctx context.Context, srv *http.Server) error {
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
