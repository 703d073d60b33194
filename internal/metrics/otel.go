package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelRecorder records GenAI semantic-convention instruments on a meter.
type OTelRecorder struct {
	tokenUsage        metric.Float64Histogram
	operationDuration metric.Float64Histogram
	cost              metric.Float64Counter
	retryCount        metric.Int64Counter
	fallbackCount     metric.Int64Counter
	errorCount        metric.Int64Counter
	circuitOpenCount  metric.Int64Counter
	evaluationScore   metric.Float64Histogram
}

func NewOTelRecorder(m metric.Meter) (*OTelRecorder, error) {
	tokenUsage, err := m.Float64Histogram("gen_ai.client.token.usage",
		metric.WithUnit("{token}"),
		metric.WithDescription("Number of tokens used per LLM call"),
	)
	if err != nil {
		return nil, err
	}

	operationDuration, err := m.Float64Histogram("gen_ai.client.operation.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall-clock duration of LLM API call"),
	)
	if err != nil {
		return nil, err
	}

	cost, err := m.Float64Counter("gen_ai.client.cost",
		metric.WithUnit("usd"),
		metric.WithDescription("Cumulative cost of LLM calls in USD"),
	)
	if err != nil {
		return nil, err
	}

	retryCount, err := m.Int64Counter("gen_ai.client.retry.count",
		metric.WithUnit("{retry}"),
		metric.WithDescription("Number of retry attempts"),
	)
	if err != nil {
		return nil, err
	}

	fallbackCount, err := m.Int64Counter("gen_ai.client.fallback.count",
		metric.WithUnit("{fallback}"),
		metric.WithDescription("Number of fallback provider triggers"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := m.Int64Counter("gen_ai.client.error.count",
		metric.WithUnit("{error}"),
		metric.WithDescription("Number of LLM call errors"),
	)
	if err != nil {
		return nil, err
	}

	circuitOpenCount, err := m.Int64Counter("gen_ai.client.circuit_open.count",
		metric.WithUnit("{call}"),
		metric.WithDescription("Calls rejected by an open circuit breaker"),
	)
	if err != nil {
		return nil, err
	}

	evaluationScore, err := m.Float64Histogram("gen_ai.evaluation.score",
		metric.WithUnit("1"),
		metric.WithDescription("Content evaluation score"),
	)
	if err != nil {
		return nil, err
	}

	return &OTelRecorder{
		tokenUsage:        tokenUsage,
		operationDuration: operationDuration,
		cost:              cost,
		retryCount:        retryCount,
		fallbackCount:     fallbackCount,
		errorCount:        errorCount,
		circuitOpenCount:  circuitOpenCount,
		evaluationScore:   evaluationScore,
	}, nil
}

func commonAttrs(c Call) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("gen_ai.operation.name", "chat"),
		attribute.String("gen_ai.provider.name", c.Provider),
		attribute.String("gen_ai.request.model", c.RequestModel),
	}
	if c.ResponseModel != "" {
		attrs = append(attrs, attribute.String("gen_ai.response.model", c.ResponseModel))
	}
	if c.ServerAddress != "" {
		attrs = append(attrs,
			attribute.String("server.address", c.ServerAddress),
			attribute.Int("server.port", c.ServerPort),
		)
	}
	return attrs
}

func (r *OTelRecorder) ObserveSuccess(ctx context.Context, c Call, o Outcome) {
	base := commonAttrs(c)
	r.operationDuration.Record(ctx, o.Duration.Seconds(), metric.WithAttributes(base...))
	if !o.HasUsage {
		return
	}
	r.tokenUsage.Record(ctx, float64(o.InputTokens),
		metric.WithAttributes(base...),
		metric.WithAttributes(attribute.String("gen_ai.token.type", "input")),
	)
	r.tokenUsage.Record(ctx, float64(o.OutputTokens),
		metric.WithAttributes(base...),
		metric.WithAttributes(attribute.String("gen_ai.token.type", "output")),
	)

	costAttrs := append(base,
		attribute.String("content.type", c.ContentType),
		attribute.String("endpoint", c.Endpoint),
	)
	if c.AgentName != "" {
		costAttrs = append(costAttrs, attribute.String("gen_ai.agent.name", c.AgentName))
	}
	if c.CampaignID != "" {
		costAttrs = append(costAttrs, attribute.String("campaign.id", c.CampaignID))
	}
	r.cost.Add(ctx, o.CostUSD, metric.WithAttributes(costAttrs...))
}

func (r *OTelRecorder) ObserveRetry(ctx context.Context, c Call, errorType string, attempt int) {
	r.retryCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gen_ai.provider.name", c.Provider),
		attribute.String("gen_ai.request.model", c.RequestModel),
		attribute.String("error.type", errorType),
		attribute.Int("retry.attempt", attempt),
	))
}

func (r *OTelRecorder) ObserveFallback(ctx context.Context, c Call, fallbackProvider string, errorType string) {
	r.fallbackCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gen_ai.provider.name", c.Provider),
		attribute.String("gen_ai.fallback.provider.name", fallbackProvider),
		attribute.String("error.type", errorType),
	))
}

func (r *OTelRecorder) ObserveError(ctx context.Context, c Call, errorType string) {
	r.errorCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gen_ai.provider.name", c.Provider),
		attribute.String("gen_ai.request.model", c.RequestModel),
		attribute.String("error.type", errorType),
	))
}

func (r *OTelRecorder) ObserveCircuitOpen(ctx context.Context, provider string) {
	r.circuitOpenCount.Add(ctx, 1, metric.WithAttributes(attribute.String("gen_ai.provider.name", provider)))
}

func (r *OTelRecorder) ObserveEvaluation(ctx context.Context, e Evaluation) {
	r.evaluationScore.Record(ctx, e.Score, metric.WithAttributes(
		attribute.String("gen_ai.evaluation.name", e.Name),
		attribute.String("gen_ai.evaluation.score.label", e.Label),
		attribute.String("gen_ai.request.model", e.Model),
		attribute.String("content.type", e.ContentType),
	))
}
