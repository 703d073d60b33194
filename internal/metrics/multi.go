package metrics

import "context"

// MultiRecorder fans out metrics to multiple recorders.
type MultiRecorder struct {
	recorders []Recorder
}

func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	nonNil := make([]Recorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			nonNil = append(nonNil, r)
		}
	}
	return &MultiRecorder{recorders: nonNil}
}

func (m *MultiRecorder) ObserveSuccess(ctx context.Context, c Call, o Outcome) {
	for _, r := range m.recorders {
		r.ObserveSuccess(ctx, c, o)
	}
}

func (m *MultiRecorder) ObserveRetry(ctx context.Context, c Call, errorType string, attempt int) {
	for _, r := range m.recorders {
		r.ObserveRetry(ctx, c, errorType, attempt)
	}
}

func (m *MultiRecorder) ObserveFallback(ctx context.Context, c Call, fallbackProvider string, errorType string) {
	for _, r := range m.recorders {
		r.ObserveFallback(ctx, c, fallbackProvider, errorType)
	}
}

func (m *MultiRecorder) ObserveError(ctx context.Context, c Call, errorType string) {
	for _, r := range m.recorders {
		r.ObserveError(ctx, c, errorType)
	}
}

func (m *MultiRecorder) ObserveCircuitOpen(ctx context.Context, provider string) {
	for _, r := range m.recorders {
		r.ObserveCircuitOpen(ctx, provider)
	}
}

func (m *MultiRecorder) ObserveEvaluation(ctx context.Context, e Evaluation) {
	for _, r := range m.recorders {
		r.ObserveEvaluation(ctx, e)
	}
}
