// Package audit appends one JSON line per CLI invocation so spend and
// failures can be reviewed after the fact.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one audit-log record.
type Event struct {
	Timestamp string  `json:"ts"`
	RunID     string  `json:"run_id,omitempty"`
	Command   string  `json:"command"`
	Provider  string  `json:"provider,omitempty"`
	Model     string  `json:"model,omitempty"`
	Items     int     `json:"items,omitempty"`
	Failed    int     `json:"failed,omitempty"`
	CostUSD   float64 `json:"cost_usd"`
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
}

// Logger writes JSONL audit records. A Logger with no path discards them.
type Logger struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewLogger(path string) *Logger {
	return &Logger{path: path, now: time.Now}
}

func (l *Logger) Enabled() bool {
	return l != nil && l.path != ""
}

// Write stamps ev, derives Status from err and appends it.
func (l *Logger) Write(ev Event, err error) error {
	if !l.Enabled() {
		return nil
	}

	ev.Timestamp = l.now().UTC().Format(time.RFC3339Nano)
	ev.Status = "success"
	if err != nil {
		ev.Status = "error"
		ev.Error = err.Error()
	}
	b, mErr := json.Marshal(ev)
	if mErr != nil {
		return fmt.Errorf("audit marshal: %w", mErr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if mkErr := os.MkdirAll(filepath.Dir(l.path), 0o755); mkErr != nil {
		return fmt.Errorf("audit mkdir: %w", mkErr)
	}
	f, openErr := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if openErr != nil {
		return fmt.Errorf("audit open: %w", openErr)
	}
	defer func() { _ = f.Close() }()

	if _, wErr := f.Write(append(b, '\n')); wErr != nil {
		return fmt.Errorf("audit write: %w", wErr)
	}
	return nil
}
