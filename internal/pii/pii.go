// Package pii redacts personal data from text before it is attached to
// telemetry. Scrubbing is lossy and only meant for observability payloads;
// prompts sent to providers are never rewritten.
package pii

import (
	"regexp"
	"unicode/utf8"
)

const (
	// PromptBudget bounds scrubbed system and user prompts on spans.
	PromptBudget = 500
	// CompletionBudget bounds scrubbed completions on spans.
	CompletionBudget = 2000
)

// Pattern pairs a detector with the placeholder that replaces its matches.
type Pattern struct {
	Name        string
	Re          *regexp.Regexp
	Replacement string
}

// Order matters: URLs and card numbers go first so phone and SSN detectors
// never see fragments of them. Digit detectors are anchored so they never
// match inside a longer number such as an order id.
var defaultPatterns = []Pattern{
	{
		Name:        "social_url",
		Re:          regexp.MustCompile(`https?://(?:www\.)?(?:linkedin\.com/in|twitter\.com|x\.com|github\.com|facebook\.com)/[A-Za-z0-9_.-]+/?`),
		Replacement: "[SOCIAL_URL]",
	},
	{
		Name:        "email",
		Re:          regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		Replacement: "[EMAIL]",
	},
	{
		Name:        "credit_card",
		Re:          regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
		Replacement: "[CREDIT_CARD]",
	},
	{
		Name:        "ssn",
		Re:          regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		Replacement: "[SSN]",
	},
	{
		Name:        "phone",
		Re:          regexp.MustCompile(`(?:(?:\+1|\b1)[-.\s]?(?:\([0-9]{3}\)|[0-9]{3})|\([0-9]{3}\)|\b[0-9]{3})[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`),
		Replacement: "[PHONE]",
	},
}

// DefaultPatterns returns a copy of the built-in detectors.
func DefaultPatterns() []Pattern {
	out := make([]Pattern, len(defaultPatterns))
	copy(out, defaultPatterns)
	return out
}

// Scrub applies the default detectors.
func Scrub(text string) string {
	return ScrubWith(text, defaultPatterns)
}

// ScrubWith applies patterns in order.
func ScrubWith(text string, patterns []Pattern) string {
	if text == "" {
		return text
	}
	for _, p := range patterns {
		text = p.Re.ReplaceAllLiteralString(text, p.Replacement)
	}
	return text
}

// ScrubPrompt scrubs then truncates to PromptBudget characters.
func ScrubPrompt(text string) string {
	return Truncate(Scrub(text), PromptBudget)
}

// ScrubCompletion scrubs then truncates to CompletionBudget characters.
func ScrubCompletion(text string) string {
	return Truncate(Scrub(text), CompletionBudget)
}

// Truncate keeps at most max runes of text.
func Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}
