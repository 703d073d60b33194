package audit

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

var csvHeader = []string{"ts", "run_id", "command", "provider", "model", "items", "failed", "cost_usd", "status", "error"}

// ExportCSV converts a JSONL audit log into CSV.
func ExportCSV(in io.Reader, out io.Writer) error {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	s := bufio.NewScanner(in)
	line := 0
	for s.Scan() {
		line++
		b := s.Bytes()
		if len(b) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return fmt.Errorf("parse audit line %d: %w", line, err)
		}
		row := []string{
			ev.Timestamp, ev.RunID, ev.Command, ev.Provider, ev.Model,
			strconv.Itoa(ev.Items), strconv.Itoa(ev.Failed),
			strconv.FormatFloat(ev.CostUSD, 'f', -1, 64),
			ev.Status, ev.Error,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("scan audit log: %w", err)
	}
	w.Flush()
	return w.Error()
}

// ExportFile converts the log at inputPath into a CSV at outputPath.
func ExportFile(inputPath, outputPath string) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input audit log: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output csv: %w", err)
	}
	if err := ExportCSV(in, out); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
