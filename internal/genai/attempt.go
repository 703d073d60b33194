package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/your-org/fluxgen/internal/metrics"
	"github.com/your-org/fluxgen/internal/pii"
	"github.com/your-org/fluxgen/internal/retry"
	"github.com/your-org/fluxgen/pkg/adapters"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// attempt is one adapter call inside its own "chat <model>" span.
func (c *Client) attempt(ctx context.Context, p adapters.Provider, req adapters.GenerateRequest, call Call, labels metrics.Call, n int) (adapters.GenerateResult, error) {
	id := p.Identity()
	allowed, trial := c.breaker.Allow(id.Name, c.now())
	if !allowed {
		c.recorder.ObserveCircuitOpen(ctx, id.System)
		return adapters.GenerateResult{}, fmt.Errorf("%s: %w", id.Name, retry.ErrCircuitOpen)
	}
	if trial {
		c.logger.InfoContext(ctx, "circuit half-open, sending trial call", "provider", id.Name)
	}
	if lim := c.limiters[id.Name]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			c.breaker.Release(id.Name)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return adapters.GenerateResult{}, ctxErr
			}
			return adapters.GenerateResult{}, fmt.Errorf("%w: rate limiter: %v", context.DeadlineExceeded, err)
		}
	}

	ctx, span := c.tracer.Start(ctx, "chat "+req.Model,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(requestAttrs(id, req, call, n)...),
	)
	defer span.End()

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.cfg.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	}
	defer cancel()

	start := time.Now()
	res, err := p.Generate(callCtx, req)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !adapters.IsTransient(err) {
			err = &adapters.TransientError{Cause: fmt.Errorf("attempt timed out after %s: %w", c.cfg.Timeout, err)}
		}
		if adapters.IsTransient(err) {
			c.breaker.RecordFailure(id.Name, c.now())
		} else {
			c.breaker.Release(id.Name)
		}
		kind := errorType(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String("error.type", kind),
			attribute.Float64("gen_ai.client.operation.duration", duration.Seconds()),
		)
		return adapters.GenerateResult{}, err
	}

	c.breaker.RecordSuccess(id.Name)
	if res.Model == "" {
		res.Model = req.Model
	}
	c.observeSuccess(ctx, span, id, req, res, labels, duration)
	return res, nil
}

func requestAttrs(id adapters.Identity, req adapters.GenerateRequest, call Call, n int) []attribute.KeyValue {
	outputType := "text"
	if req.JSONMode {
		outputType = "json"
	}
	attrs := []attribute.KeyValue{
		attribute.String("gen_ai.operation.name", "chat"),
		attribute.String("gen_ai.provider.name", id.System),
		attribute.String("gen_ai.request.model", req.Model),
		attribute.Float64("gen_ai.request.temperature", req.Temperature),
		attribute.Int("gen_ai.request.max_tokens", req.MaxTokens),
		attribute.String("gen_ai.output.type", outputType),
		attribute.Int("retry.attempt", n),
		attribute.Int("content.length", len(req.UserPrompt)),
	}
	if id.ServerAddress != "" {
		attrs = append(attrs,
			attribute.String("server.address", id.ServerAddress),
			attribute.Int("server.port", id.ServerPort),
		)
	}
	if call.ContentType != "" {
		attrs = append(attrs, attribute.String("content.type", call.ContentType))
	}
	if call.Endpoint != "" {
		attrs = append(attrs, attribute.String("endpoint", call.Endpoint))
	}
	if call.AgentName != "" {
		attrs = append(attrs, attribute.String("gen_ai.agent.name", call.AgentName))
	}
	if call.CampaignID != "" {
		attrs = append(attrs, attribute.String("campaign.id", call.CampaignID))
	}
	return attrs
}

func (c *Client) observeSuccess(ctx context.Context, span trace.Span, id adapters.Identity, req adapters.GenerateRequest, res adapters.GenerateResult, labels metrics.Call, duration time.Duration) {
	span.SetAttributes(
		attribute.String("gen_ai.response.model", res.Model),
		attribute.Float64("gen_ai.client.operation.duration", duration.Seconds()),
	)
	if res.ResponseID != "" {
		span.SetAttributes(attribute.String("gen_ai.response.id", res.ResponseID))
	}
	if res.FinishReason != "" {
		span.SetAttributes(attribute.StringSlice("gen_ai.response.finish_reasons", []string{res.FinishReason}))
	}

	labels.ResponseModel = res.Model
	outcome := metrics.Outcome{Duration: duration}
	if u := res.Usage; u != nil {
		cost, known := c.cost(req.Model, res.Model, *u)
		outcome.HasUsage = true
		outcome.InputTokens = u.InputTokens
		outcome.OutputTokens = u.OutputTokens
		outcome.CostUSD = cost
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", u.InputTokens),
			attribute.Int("gen_ai.usage.output_tokens", u.OutputTokens),
			attribute.Float64("gen_ai.usage.cost_usd", cost),
		)
		if !known {
			c.logger.DebugContext(ctx, "model missing from pricing table, cost recorded as 0", "model", req.Model)
		}
	} else {
		c.logger.WarnContext(ctx, "token usage unavailable, token and cost metrics will not be recorded for this call",
			"provider", id.Name, "model", req.Model)
	}
	c.recorder.ObserveSuccess(ctx, labels, outcome)

	if c.captureContent {
		recordContent(span, id, req, res)
	}
}

// cost prices by the requested model, then by the serving model when the
// request used an unpriced alias.
func (c *Client) cost(requested, served string, u adapters.TokenUsage) (float64, bool) {
	if usd, ok := c.pricing.Cost(requested, u.InputTokens, u.OutputTokens); ok {
		return usd, true
	}
	if served != requested {
		return c.pricing.Cost(served, u.InputTokens, u.OutputTokens)
	}
	return 0, false
}

type messagePart struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type chatMessage struct {
	Role         string        `json:"role"`
	Parts        []messagePart `json:"parts"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// recordContent attaches scrubbed, truncated message content to the span.
func recordContent(span trace.Span, id adapters.Identity, req adapters.GenerateRequest, res adapters.GenerateResult) {
	attrs := []attribute.KeyValue{
		attribute.String("gen_ai.operation.name", "chat"),
		attribute.String("gen_ai.request.model", req.Model),
		attribute.String("gen_ai.response.model", res.Model),
		attribute.Int("server.port", id.ServerPort),
	}
	if id.ServerAddress != "" {
		attrs = append(attrs, attribute.String("server.address", id.ServerAddress))
	}
	if res.ResponseID != "" {
		attrs = append(attrs, attribute.String("gen_ai.response.id", res.ResponseID))
	}
	if res.FinishReason != "" {
		attrs = append(attrs, attribute.StringSlice("gen_ai.response.finish_reasons", []string{res.FinishReason}))
	}
	if res.Usage != nil {
		attrs = append(attrs,
			attribute.Int("gen_ai.usage.input_tokens", res.Usage.InputTokens),
			attribute.Int("gen_ai.usage.output_tokens", res.Usage.OutputTokens),
		)
	}

	if req.SystemPrompt != "" {
		attrs = append(attrs, attribute.String("gen_ai.system_instructions",
			mustJSON([]messagePart{{Type: "text", Content: pii.ScrubPrompt(req.SystemPrompt)}})))
	}
	conv := req.Conversation()
	input := make([]chatMessage, 0, len(conv))
	for _, m := range conv {
		input = append(input, chatMessage{
			Role:  string(m.Role),
			Parts: []messagePart{{Type: "text", Content: pii.ScrubPrompt(m.Content)}},
		})
	}
	attrs = append(attrs,
		attribute.String("gen_ai.input.messages", mustJSON(input)),
		attribute.String("gen_ai.output.messages", mustJSON([]chatMessage{{
			Role:         string(adapters.RoleAssistant),
			Parts:        []messagePart{{Type: "text", Content: pii.ScrubCompletion(res.Content)}},
			FinishReason: res.FinishReason,
		}})),
	)
	span.AddEvent("gen_ai.client.inference.operation.details", trace.WithAttributes(attrs...))
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
