package pii

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrubEmailAndPhone(t *testing.T) {
	got := Scrub("Contact john@example.com at 555-123-4567")
	assert.NotContains(t, got, "john@example.com")
	assert.NotContains(t, got, "555-123-4567")
	assert.Equal(t, "Contact [EMAIL] at [PHONE]", got)
}

func TestScrubCategories(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"ssn":          {"ssn 123-45-6789 on file", "ssn [SSN] on file"},
		"card spaces":  {"card 4111 1111 1111 1111 ok", "card [CREDIT_CARD] ok"},
		"card dashes":  {"4111-1111-1111-1111", "[CREDIT_CARD]"},
		"linkedin":     {"see https://www.linkedin.com/in/jane-doe/ now", "see [SOCIAL_URL] now"},
		"github":       {"https://github.com/octocat", "[SOCIAL_URL]"},
		"parens phone": {"call (555) 123-4567", "call [PHONE]"},
		"intl phone":   {"call +1 555.123.4567", "call [PHONE]"},
		"us 11 digits": {"call 15551234567", "call [PHONE]"},
		"order id":     {"order 123456789 shipped", "order 123456789 shipped"},
		"long number":  {"ref 12345678901234", "ref 12345678901234"},
		"ssn no dash":  {"id 987654321", "id 987654321"},
		"clean":        {"nothing to see here", "nothing to see here"},
		"empty":        {"", ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, Scrub(tc.in))
		})
	}
}

func TestScrubWithCustomPatterns(t *testing.T) {
	only := DefaultPatterns()[1:2]
	assert.Equal(t, "[EMAIL] 555-123-4567", ScrubWith("a@b.io 555-123-4567", only))
}

func TestTruncateIsRuneSafe(t *testing.T) {
	assert.Equal(t, "hé", Truncate("héllo", 2))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "", Truncate("abc", 0))
}

func TestBudgets(t *testing.T) {
	long := strings.Repeat("x", 5000)
	assert.Len(t, ScrubPrompt(long), PromptBudget)
	assert.Len(t, ScrubCompletion(long), CompletionBudget)
	assert.Equal(t, "mail [EMAIL]", ScrubPrompt("mail a@b.io"))
}
