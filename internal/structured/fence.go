package structured

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?\\s*```$")

// StripMarkdownFence removes a single surrounding ``` or ```json fence.
// Text without a fence is returned trimmed; applying it twice is a no-op.
func StripMarkdownFence(text string) string {
	text = strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}
