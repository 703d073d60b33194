package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	ctx := context.Background()
	r.ObserveSuccess(ctx, testCall, Outcome{Duration: time.Second, HasUsage: true, InputTokens: 10, OutputTokens: 2, CostUSD: 0.5})
	r.ObserveSuccess(ctx, testCall, Outcome{Duration: time.Second})
	r.ObserveRetry(ctx, testCall, "timeout", 1)
	r.ObserveFallback(ctx, testCall, "anthropic", "timeout")
	r.ObserveError(ctx, testCall, "timeout")

	assert.Equal(t, 0.5, testutil.ToFloat64(r.cost.WithLabelValues("openai", "gpt-4.1-nano", "review", "blog")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.retries.WithLabelValues("openai", "gpt-4.1-nano", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fallbacks.WithLabelValues("openai", "anthropic", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errors.WithLabelValues("openai", "gpt-4.1-nano", "timeout")))
	// only the metered call produced token samples
	assert.Equal(t, 2, testutil.CollectAndCount(r.tokens))
}

func TestPrometheusRecorderRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err)

	_, err = NewPrometheusRecorder(nil)
	assert.Error(t, err)
}

func TestStartPrometheusServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	r.ObserveCircuitOpen(context.Background(), "gemini")

	srv, err := StartPrometheusServer("127.0.0.1:0", reg)
	require.NoError(t, err)
	defer func() { _ = StopServer(context.Background(), srv) }()

	resp, err := http.Get("http://" + srv.Addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `gen_ai_client_circuit_breaks_total{provider="gemini"} 1`)
}
