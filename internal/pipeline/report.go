package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Report is the record of one run. Results are ordered by item index
// regardless of completion order.
type Report struct {
	RunID        string        `json:"run_id"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	TotalLatency time.Duration `json:"total_latency"`
	Results      []Result      `json:"results"`
	// Errors holds "<item id>: <error>" for every failed item.
	Errors []string `json:"errors"`
}

type Result struct {
	Index    int           `json:"index"`
	ItemID   string        `json:"item_id"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (r Result) Failed() bool { return r.Error != "" }

// Succeeded counts results without an error.
func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if !res.Failed() {
			n++
		}
	}
	return n
}

type recorder struct {
	mu      sync.Mutex
	runID   string
	start   time.Time
	results []Result
}

func newRecorder(runID string, start time.Time) *recorder {
	return &recorder{runID: runID, start: start}
}

func (r *recorder) add(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) finalize(end time.Time) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Report{
		RunID:        r.runID,
		StartTime:    r.start,
		EndTime:      end,
		TotalLatency: end.Sub(r.start),
		Results:      append([]Result(nil), r.results...),
		Errors:       []string{},
	}
	sort.Slice(out.Results, func(i, j int) bool { return out.Results[i].Index < out.Results[j].Index })
	for _, res := range out.Results {
		if res.Failed() {
			out.Errors = append(out.Errors, res.ItemID+": "+res.Error)
		}
	}
	return out
}

func SaveReport(path string, rep Report) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("report: write %q: %w", path, err)
	}
	return nil
}

func LoadReport(path string) (Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("report: read %q: %w", path, err)
	}
	var rep Report
	if err := json.Unmarshal(b, &rep); err != nil {
		return Report{}, fmt.Errorf("report: unmarshal %q: %w", path, err)
	}
	return rep, nil
}
