package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadItems reads a worklist from path. Files ending in .yaml or .yml hold a
// YAML list; anything else is read as JSON Lines.
func LoadItems(path string) ([]Item, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var items []Item
		if err := yaml.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("parse items %q: %w", path, err)
		}
		return items, nil
	}
	return ParseJSONLines(raw)
}

// ParseJSONLines decodes one Item per non-blank line.
func ParseJSONLines(raw []byte) ([]Item, error) {
	var items []Item
	s := bufio.NewScanner(bytes.NewReader(raw))
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for s.Scan() {
		line++
		b := bytes.TrimSpace(s.Bytes())
		if len(b) == 0 {
			continue
		}
		var it Item
		if err := json.Unmarshal(b, &it); err != nil {
			return nil, fmt.Errorf("items line %d: %w", line, err)
		}
		items = append(items, it)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}
	return items, nil
}
