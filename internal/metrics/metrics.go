package metrics

import (
	"context"
	"time"
)

// Call identifies one provider call for labelling.
type Call struct {
	Provider      string
	RequestModel  string
	ResponseModel string
	ServerAddress string
	ServerPort    int
	Endpoint      string
	ContentType   string
	AgentName     string
	CampaignID    string
}

// Outcome is what a successful call produced. HasUsage is false when the
// vendor reported no token counts; token and cost signals are skipped then.
type Outcome struct {
	Duration     time.Duration
	HasUsage     bool
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Evaluation is one scored content evaluation.
type Evaluation struct {
	Name        string
	Model       string
	ContentType string
	Score       float64
	Label       string
}

// Recorder receives GenAI client signals. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveSuccess(ctx context.Context, c Call, o Outcome)
	ObserveRetry(ctx context.Context, c Call, errorType string, attempt int)
	ObserveFallback(ctx context.Context, c Call, fallbackProvider string, errorType string)
	ObserveError(ctx context.Context, c Call, errorType string)
	ObserveCircuitOpen(ctx context.Context, provider string)
	ObserveEvaluation(ctx context.Context, e Evaluation)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveSuccess(context.Context, Call, Outcome)         {}
func (NoopRecorder) ObserveRetry(context.Context, Call, string, int)       {}
func (NoopRecorder) ObserveFallback(context.Context, Call, string, string) {}
func (NoopRecorder) ObserveError(context.Context, Call, string)            {}
func (NoopRecorder) ObserveCircuitOpen(context.Context, string)            {}
func (NoopRecorder) ObserveEvaluation(context.Context, Evaluation)         {}
