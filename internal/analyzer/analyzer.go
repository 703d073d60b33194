// Package analyzer reviews, improves and scores written content through the
// structured extractor and reports each evaluation as telemetry.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/your-org/fluxgen/internal/genai"
	"github.com/your-org/fluxgen/internal/metrics"
	"github.com/your-org/fluxgen/internal/pii"
	"github.com/your-org/fluxgen/internal/structured"
)

const (
	EndpointReview  = "/review"
	EndpointImprove = "/improve"
	EndpointScore   = "/score"

	// PassingScore is the lowest score labelled "passed".
	PassingScore = 60
)

var issueWeights = map[string]int{"high": 3, "medium": 2, "low": 1}

// ErrInvalidContent is returned for empty or oversized content and unknown
// content types.
var ErrInvalidContent = errors.New("invalid content")

// PromptVersions selects which prompt file backs each operation, e.g. "v1"
// loads review_v1.yaml.
type PromptVersions struct {
	Review  string
	Improve string
	Score   string
}

type Analyzer struct {
	extractor *structured.Extractor
	recorder  metrics.Recorder
	tracer    trace.Tracer
	logger    *slog.Logger

	// captureContent gates the model-written explanation on evaluation events.
	captureContent bool

	review  Prompt
	improve Prompt
	score   Prompt
}

type Option func(*Analyzer)

func WithRecorder(r metrics.Recorder) Option {
	return func(a *Analyzer) {
		if r != nil {
			a.recorder = r
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(a *Analyzer) {
		if t != nil {
			a.tracer = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithCaptureContent attaches the scrubbed evaluation summary to telemetry.
// It is off by default, matching genai.WithCaptureContent.
func WithCaptureContent(on bool) Option {
	return func(a *Analyzer) { a.captureContent = on }
}

// New loads the prompts for versions; empty versions default to v1.
func New(extractor *structured.Extractor, versions PromptVersions, opts ...Option) (*Analyzer, error) {
	a := &Analyzer{
		extractor: extractor,
		recorder:  metrics.NoopRecorder{},
		tracer:    otel.Tracer("github.com/your-org/fluxgen/internal/analyzer"),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	var err error
	if a.review, err = LoadPrompt("review_" + orV1(versions.Review)); err != nil {
		return nil, err
	}
	if a.improve, err = LoadPrompt("improve_" + orV1(versions.Improve)); err != nil {
		return nil, err
	}
	if a.score, err = LoadPrompt("score_" + orV1(versions.Score)); err != nil {
		return nil, err
	}
	return a, nil
}

func orV1(v string) string {
	if v == "" {
		return "v1"
	}
	return v
}

// Review lists quality issues and derives a 0-100 score from their severity.
func (a *Analyzer) Review(ctx context.Context, content, contentType string) (ReviewResult, error) {
	var out ReviewResult
	ctx, span, meta, err := a.run(ctx, EndpointReview, a.review, content, contentType, &out)
	defer span.End()
	if err != nil {
		return ReviewResult{}, err
	}
	a.evaluate(ctx, span, "content_review", meta, ReviewScore(out.Issues), out.Summary)
	return out, nil
}

// Improve suggests rewrites.
func (a *Analyzer) Improve(ctx context.Context, content, contentType string) (ImproveResult, error) {
	var out ImproveResult
	_, span, _, err := a.run(ctx, EndpointImprove, a.improve, content, contentType, &out)
	defer span.End()
	if err != nil {
		return ImproveResult{}, err
	}
	return out, nil
}

// Score grades content overall and per dimension.
func (a *Analyzer) Score(ctx context.Context, content, contentType string) (ScoreResult, error) {
	var out ScoreResult
	ctx, span, meta, err := a.run(ctx, EndpointScore, a.score, content, contentType, &out)
	defer span.End()
	if err != nil {
		return ScoreResult{}, err
	}
	a.evaluate(ctx, span, "content_quality", meta, out.Score, out.Summary)
	return out, nil
}

// ReviewScore is 100 minus ten points per issue weighted by severity
// (high 3, medium 2, low 1, unknown 1), floored at zero.
func ReviewScore(issues []ContentIssue) int {
	penalty := 0
	for _, issue := range issues {
		w, ok := issueWeights[issue.Severity]
		if !ok {
			w = 1
		}
		penalty += w * 10
	}
	return max(0, 100-penalty)
}

// Label maps a score to "passed" or "failed".
func Label(score int) string {
	if score >= PassingScore {
		return "passed"
	}
	return "failed"
}

// ValidateContent checks content length and normalizes the content type.
func ValidateContent(content, contentType string) (string, error) {
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return "", fmt.Errorf("%w: content is empty", ErrInvalidContent)
	}
	if n > MaxContentLength {
		return "", fmt.Errorf("%w: content is %d characters, limit is %d", ErrInvalidContent, n, MaxContentLength)
	}
	switch contentType {
	case "":
		return ContentGeneral, nil
	case ContentMarketing, ContentTechnical, ContentBlog, ContentGeneral:
		return contentType, nil
	}
	return "", fmt.Errorf("%w: unknown content type %q", ErrInvalidContent, contentType)
}

type runMeta struct {
	contentType string
	model       string
}

// run validates content and extracts into out inside an "analyze <endpoint>"
// span. The caller ends the span.
func (a *Analyzer) run(ctx context.Context, endpoint string, p Prompt, content, contentType string, out any) (context.Context, trace.Span, runMeta, error) {
	ctx, span := a.tracer.Start(ctx, "analyze "+endpoint)
	ct, err := ValidateContent(content, contentType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ctx, span, runMeta{}, err
	}
	span.SetAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("content.type", ct),
		attribute.Int("content.length", len(content)),
	)

	outcome, err := a.extractor.Generate(ctx, structured.Request{Call: genai.Call{
		Prompt:      p.Render(content),
		System:      p.System,
		Endpoint:    endpoint,
		ContentType: ct,
	}}, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.ErrorContext(ctx, "content analysis failed", "endpoint", endpoint, "content_type", ct, "error", err)
		return ctx, span, runMeta{}, err
	}
	return ctx, span, runMeta{contentType: ct, model: outcome.Result.Model}, nil
}

func (a *Analyzer) evaluate(ctx context.Context, span trace.Span, name string, meta runMeta, score int, summary string) {
	label := Label(score)
	attrs := []attribute.KeyValue{
		attribute.String("gen_ai.evaluation.name", name),
		attribute.Int("gen_ai.evaluation.score.value", score),
		attribute.String("gen_ai.evaluation.score.label", label),
	}
	if a.captureContent && summary != "" {
		// the summary quotes the reviewed content, so it gets the same scrub as completions
		attrs = append(attrs, attribute.String("gen_ai.evaluation.explanation", pii.ScrubCompletion(summary)))
	}
	span.AddEvent("gen_ai.evaluation.result", trace.WithAttributes(attrs...))
	a.recorder.ObserveEvaluation(ctx, metrics.Evaluation{
		Name:        name,
		Model:       meta.model,
		ContentType: meta.contentType,
		Score:       float64(score),
		Label:       label,
	})
	a.logger.InfoContext(ctx, "content evaluated", "evaluation", name, "score", score, "label", label, "content_type", meta.contentType)
}
