package adapters

import "encoding/json"

var (
	inputKeys  = []string{"prompt_tokens", "input_tokens", "promptTokenCount"}
	outputKeys = []string{"completion_tokens", "output_tokens", "candidatesTokenCount"}
	usageKeys  = []string{"usage", "usageMetadata", "usage_metadata"}
)

// ExtractUsage finds token counts in a raw vendor body. Counts may be flat on
// the top-level object or nested under a usage object; both input and output
// must be present, otherwise nil is returned so cost is reported as unknown.
func ExtractUsage(body []byte) *TokenUsage {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	return UsageFromMap(raw)
}

// UsageFromMap is ExtractUsage for an already decoded object.
func UsageFromMap(raw map[string]any) *TokenUsage {
	if raw == nil {
		return nil
	}
	for _, k := range usageKeys {
		if nested, ok := raw[k].(map[string]any); ok {
			if u := flatUsage(nested); u != nil {
				return u
			}
		}
	}
	return flatUsage(raw)
}

func flatUsage(m map[string]any) *TokenUsage {
	in, okIn := firstCount(m, inputKeys)
	out, okOut := firstCount(m, outputKeys)
	if !okIn || !okOut {
		return nil
	}
	return &TokenUsage{InputTokens: in, OutputTokens: out}
}

func firstCount(m map[string]any, keys []string) (int, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			if n >= 0 {
				return int(n), true
			}
		case json.Number:
			if i, err := n.Int64(); err == nil && i >= 0 {
				return int(i), true
			}
		}
	}
	return 0, false
}
