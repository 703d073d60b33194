package metrics

import (
	"context"
	"sync"
	"time"
)

// ProviderStats aggregates signals for one provider.
type ProviderStats struct {
	Successes    int64
	Errors       int64
	Retries      int64
	Fallbacks    int64
	CircuitOpens int64
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	TotalLatency time.Duration
}

// Snapshot is a point-in-time copy of an InMemoryRecorder.
type Snapshot struct {
	Successes    int64
	Errors       int64
	Retries      int64
	Fallbacks    int64
	CircuitOpens int64
	// UnmeteredCalls counts successes without usage.
	UnmeteredCalls int64
	CostUSD        float64
	ByProvider     map[string]ProviderStats
	ErrorTypes     map[string]int64
	Evaluations    []Evaluation
}

// InMemoryRecorder keeps counters in process. The CLI prints it after a
// batch and tests assert against it.
type InMemoryRecorder struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{snap: Snapshot{
		ByProvider: make(map[string]ProviderStats),
		ErrorTypes: make(map[string]int64),
	}}
}

func (r *InMemoryRecorder) ObserveSuccess(_ context.Context, c Call, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snap.ByProvider[c.Provider]
	s.Successes++
	s.TotalLatency += o.Duration
	r.snap.Successes++
	if o.HasUsage {
		s.InputTokens += int64(o.InputTokens)
		s.OutputTokens += int64(o.OutputTokens)
		s.CostUSD += o.CostUSD
		r.snap.CostUSD += o.CostUSD
	} else {
		r.snap.UnmeteredCalls++
	}
	r.snap.ByProvider[c.Provider] = s
}

func (r *InMemoryRecorder) ObserveRetry(_ context.Context, c Call, _ string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snap.ByProvider[c.Provider]
	s.Retries++
	r.snap.ByProvider[c.Provider] = s
	r.snap.Retries++
}

func (r *InMemoryRecorder) ObserveFallback(_ context.Context, c Call, _ string, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snap.ByProvider[c.Provider]
	s.Fallbacks++
	r.snap.ByProvider[c.Provider] = s
	r.snap.Fallbacks++
}

func (r *InMemoryRecorder) ObserveError(_ context.Context, c Call, errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snap.ByProvider[c.Provider]
	s.Errors++
	r.snap.ByProvider[c.Provider] = s
	r.snap.Errors++
	r.snap.ErrorTypes[errorType]++
}

func (r *InMemoryRecorder) ObserveCircuitOpen(_ context.Context, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snap.ByProvider[provider]
	s.CircuitOpens++
	r.snap.ByProvider[provider] = s
	r.snap.CircuitOpens++
}

func (r *InMemoryRecorder) ObserveEvaluation(_ context.Context, e Evaluation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Evaluations = append(r.snap.Evaluations, e)
}

// Snapshot returns a deep copy of current counters.
func (r *InMemoryRecorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.snap
	out.ByProvider = make(map[string]ProviderStats, len(r.snap.ByProvider))
	for k, v := range r.snap.ByProvider {
		out.ByProvider[k] = v
	}
	out.ErrorTypes = make(map[string]int64, len(r.snap.ErrorTypes))
	for k, v := range r.snap.ErrorTypes {
		out.ErrorTypes[k] = v
	}
	out.Evaluations = append([]Evaluation(nil), r.snap.Evaluations...)
	return out
}
