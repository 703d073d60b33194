package audit

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerDisabledWithoutPath(t *testing.T) {
	l := NewLogger("")
	if l.Enabled() {
		t.Fatal("logger without path should be disabled")
	}
	if err := l.Write(Event{Command: "generate"}, nil); err != nil {
		t.Fatalf("disabled write: %v", err)
	}
}

func TestLoggerAppendsAndExports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	l := NewLogger(path)
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	if err := l.Write(Event{Command: "generate", Provider: "openai", Model: "gpt-4.1-nano", CostUSD: 0.0003}, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Write(Event{Command: "batch", RunID: "r1", Items: 3, Failed: 1}, errors.New("lease lost")); err != nil {
		t.Fatalf("write: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if n := strings.Count(string(raw), "\n"); n != 2 {
		t.Fatalf("expected 2 lines, got %d", n)
	}

	var out bytes.Buffer
	if err := ExportCSV(bytes.NewReader(raw), &out); err != nil {
		t.Fatalf("export: %v", err)
	}
	rows, err := csv.NewReader(&out).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "2026-01-02T03:04:05Z" || rows[1][7] != "0.0003" || rows[1][8] != "success" {
		t.Fatalf("unexpected first row: %v", rows[1])
	}
	if rows[2][1] != "r1" || rows[2][6] != "1" || rows[2][8] != "error" || rows[2][9] != "lease lost" {
		t.Fatalf("unexpected second row: %v", rows[2])
	}
}

func TestExportFileRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "audit.jsonl")
	if err := os.WriteFile(in, []byte("{oops\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ExportFile(in, filepath.Join(dir, "out.csv")); err == nil {
		t.Fatal("expected parse error")
	}
}
