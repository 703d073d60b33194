package analyzer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/your-org/fluxgen/internal/genai"
	"github.com/your-org/fluxgen/internal/metrics"
	"github.com/your-org/fluxgen/internal/structured"
	"github.com/your-org/fluxgen/pkg/adapters"
)

type cannedGenerator struct {
	mu    sync.Mutex
	reply string
	calls []genai.Call
}

func (g *cannedGenerator) Generate(_ context.Context, call genai.Call) (adapters.GenerateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	return adapters.GenerateResult{Content: g.reply, Model: "gpt-4.1-nano"}, nil
}

func newAnalyzer(t *testing.T, reply string, opts ...Option) (*Analyzer, *cannedGenerator, *metrics.InMemoryRecorder, *tracetest.SpanRecorder) {
	t.Helper()
	gen := &cannedGenerator{reply: reply}
	rec := metrics.NewInMemoryRecorder()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	opts = append([]Option{WithRecorder(rec), WithTracer(tp.Tracer("test"))}, opts...)
	a, err := New(structured.New(gen), PromptVersions{}, opts...)
	require.NoError(t, err)
	return a, gen, rec, sr
}

func TestReviewScore(t *testing.T) {
	assert.Equal(t, 100, ReviewScore(nil))
	assert.Equal(t, 40, ReviewScore([]ContentIssue{{Severity: "high"}, {Severity: "medium"}, {Severity: "low"}}))
	assert.Equal(t, 90, ReviewScore([]ContentIssue{{Severity: "critical"}}))

	many := make([]ContentIssue, 5)
	for i := range many {
		many[i].Severity = "high"
	}
	assert.Equal(t, 0, ReviewScore(many))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "passed", Label(60))
	assert.Equal(t, "failed", Label(59))
}

func TestValidateContent(t *testing.T) {
	ct, err := ValidateContent("hello", "")
	require.NoError(t, err)
	assert.Equal(t, ContentGeneral, ct)

	_, err = ValidateContent("", "blog")
	assert.ErrorIs(t, err, ErrInvalidContent)
	_, err = ValidateContent(strings.Repeat("é", MaxContentLength+1), "blog")
	assert.ErrorIs(t, err, ErrInvalidContent)
	_, err = ValidateContent("hi", "poetry")
	assert.ErrorIs(t, err, ErrInvalidContent)
	_, err = ValidateContent(strings.Repeat("é", MaxContentLength), "technical")
	assert.NoError(t, err)
}

func TestBuiltInPromptsLoad(t *testing.T) {
	for _, name := range []string{"review_v1", "review_v2", "improve_v1", "score_v1"} {
		p, err := LoadPrompt(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, p.System, name)
		assert.Contains(t, p.User, "{content}", name)
		assert.NotContains(t, p.User, "{{content}}", name)
	}
	_, err := LoadPrompt("nonexistent_prompt")
	assert.ErrorIs(t, err, ErrPromptNotFound)
}

func TestLoadPromptFSUnescapesBraces(t *testing.T) {
	fsys := fstest.MapFS{"custom.yaml": {Data: []byte(`
- role: system
  content: "Return {{\"ok\": true}}"
- role: user
  content: "Check {{content}}"
`)}}
	p, err := LoadPromptFS(fsys, "custom")
	require.NoError(t, err)
	assert.Equal(t, `Return {"ok": true}`, p.System)
	assert.Equal(t, "Check draft", p.Render("draft"))
}

func TestNewRejectsUnknownVersion(t *testing.T) {
	_, err := New(structured.New(&cannedGenerator{}), PromptVersions{Review: "v9"})
	assert.ErrorIs(t, err, ErrPromptNotFound)
}

func TestReviewRecordsEvaluation(t *testing.T) {
	reply := `{"issues":[{"type":"hyperbole","description":"overclaims","location":"best ever","severity":"high"},{"type":"grammar","description":"typo","location":null,"severity":"low"}],"summary":"Needs work","overall_quality":"fair"}`
	a, gen, rec, sr := newAnalyzer(t, reply, WithCaptureContent(true))

	res, err := a.Review(context.Background(), "The best product ever.", "marketing")
	require.NoError(t, err)
	require.Len(t, res.Issues, 2)
	assert.Equal(t, "fair", res.OverallQuality)
	require.NotNil(t, res.Issues[0].Location)
	assert.Nil(t, res.Issues[1].Location)

	require.Len(t, gen.calls, 1)
	call := gen.calls[0]
	assert.Equal(t, EndpointReview, call.Endpoint)
	assert.Equal(t, "marketing", call.ContentType)
	assert.Contains(t, call.Prompt, "The best product ever.")
	assert.True(t, strings.HasPrefix(call.System, a.review.System))

	evals := rec.Snapshot().Evaluations
	require.Len(t, evals, 1)
	assert.Equal(t, metrics.Evaluation{Name: "content_review", Model: "gpt-4.1-nano", ContentType: "marketing", Score: 60, Label: "passed"}, evals[0])

	var analyzeSpan sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Name() == "analyze /review" {
			analyzeSpan = s
		}
	}
	require.NotNil(t, analyzeSpan)
	require.Len(t, analyzeSpan.Events(), 1)
	ev := analyzeSpan.Events()[0]
	assert.Equal(t, "gen_ai.evaluation.result", ev.Name)
	attrs := map[string]string{}
	for _, kv := range ev.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "content_review", attrs["gen_ai.evaluation.name"])
	assert.Equal(t, "60", attrs["gen_ai.evaluation.score.value"])
	assert.Equal(t, "passed", attrs["gen_ai.evaluation.score.label"])
	assert.Equal(t, "Needs work", attrs["gen_ai.evaluation.explanation"])
}

func evaluationAttrs(t *testing.T, sr *tracetest.SpanRecorder) map[string]string {
	t.Helper()
	attrs := map[string]string{}
	for _, s := range sr.Ended() {
		for _, ev := range s.Events() {
			if ev.Name != "gen_ai.evaluation.result" {
				continue
			}
			for _, kv := range ev.Attributes {
				attrs[string(kv.Key)] = kv.Value.Emit()
			}
		}
	}
	require.NotEmpty(t, attrs, "no evaluation event recorded")
	return attrs
}

func TestEvaluationExplanationIsScrubbedAndGated(t *testing.T) {
	reply := `{"score":55,"breakdown":{"clarity":50,"accuracy":60,"engagement":50,"originality":60},"summary":"Author jane.doe@example.com (555-123-4567) overclaims"}`

	a, _, _, sr := newAnalyzer(t, reply)
	_, err := a.Score(context.Background(), "Some text", "")
	require.NoError(t, err)
	attrs := evaluationAttrs(t, sr)
	assert.NotContains(t, attrs, "gen_ai.evaluation.explanation")
	assert.Equal(t, "55", attrs["gen_ai.evaluation.score.value"])

	a, _, _, sr = newAnalyzer(t, reply, WithCaptureContent(true))
	_, err = a.Score(context.Background(), "Some text", "")
	require.NoError(t, err)
	explanation := evaluationAttrs(t, sr)["gen_ai.evaluation.explanation"]
	assert.Contains(t, explanation, "[EMAIL]")
	assert.Contains(t, explanation, "[PHONE]")
	assert.NotContains(t, explanation, "jane.doe@example.com")
	assert.NotContains(t, explanation, "555-123-4567")
}

func TestScoreRecordsEvaluation(t *testing.T) {
	reply := `{"score":42,"breakdown":{"clarity":50,"accuracy":40,"engagement":30,"originality":48},"summary":"Thin"}`
	a, _, rec, _ := newAnalyzer(t, reply)

	res, err := a.Score(context.Background(), "Some text", "")
	require.NoError(t, err)
	assert.Equal(t, 42, res.Score)
	assert.Equal(t, 40, res.Breakdown.Accuracy)

	evals := rec.Snapshot().Evaluations
	require.Len(t, evals, 1)
	assert.Equal(t, "content_quality", evals[0].Name)
	assert.Equal(t, "failed", evals[0].Label)
	assert.Equal(t, ContentGeneral, evals[0].ContentType)
}

func TestImproveDoesNotEvaluate(t *testing.T) {
	reply := `{"suggestions":[{"original":"bad","improved":"good","reason":"clarity"}],"summary":"One fix"}`
	a, gen, rec, _ := newAnalyzer(t, reply)

	res, err := a.Improve(context.Background(), "bad", "blog")
	require.NoError(t, err)
	require.Len(t, res.Suggestions, 1)
	assert.Equal(t, "good", res.Suggestions[0].Improved)
	assert.Equal(t, EndpointImprove, gen.calls[0].Endpoint)
	assert.Empty(t, rec.Snapshot().Evaluations)
}

func TestInvalidContentSkipsGeneration(t *testing.T) {
	a, gen, _, _ := newAnalyzer(t, "{}")
	_, err := a.Review(context.Background(), "", "general")
	assert.ErrorIs(t, err, ErrInvalidContent)
	assert.Empty(t, gen.calls)
}
