package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestExtractUsageShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want *TokenUsage
	}{
		{"openai nested", `{"usage":{"prompt_tokens":10,"completion_tokens":4}}`, &TokenUsage{10, 4}},
		{"anthropic nested", `{"usage":{"input_tokens":3,"output_tokens":9}}`, &TokenUsage{3, 9}},
		{"gemini metadata", `{"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":6}}`, &TokenUsage{5, 6}},
		{"flat fields", `{"input_tokens":1,"output_tokens":2}`, &TokenUsage{1, 2}},
		{"missing", `{"choices":[]}`, nil},
		{"partial", `{"usage":{"prompt_tokens":10}}`, nil},
		{"null", `{"usage":{"input_tokens":null,"output_tokens":null}}`, nil},
		{"negative", `{"usage":{"input_tokens":-1,"output_tokens":2}}`, nil},
		{"not json", `oops`, nil},
	}
	for _, tc := range cases {
		got := ExtractUsage([]byte(tc.body))
		switch {
		case tc.want == nil && got != nil:
			t.Fatalf("%s: expected nil usage, got %+v", tc.name, got)
		case tc.want != nil && (got == nil || *got != *tc.want):
			t.Fatalf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestErrorType(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{StatusError(http.StatusTooManyRequests, 0, errors.New("slow down")), "rate_limit"},
		{StatusError(http.StatusBadGateway, 0, errors.New("bad gateway")), "server_error"},
		{StatusError(http.StatusUnauthorized, 0, errors.New("no")), "auth_error"},
		{StatusError(http.StatusUnprocessableEntity, 0, errors.New("bad")), "invalid_request"},
		{Transient(errors.New("connection reset")), "network_error"},
		{Permanent(ErrMissingAPIKey), "auth_error"},
		{Permanent(fmt.Errorf("%w: no choices", ErrEmptyResponse)), "empty_response"},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "timeout"},
		{context.Canceled, "canceled"},
		{errors.New("mystery"), "unknown_error"},
	}
	for _, tc := range cases {
		if got := ErrorType(tc.err); got != tc.want {
			t.Fatalf("ErrorType(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	ok := GenerateRequest{Model: "m", UserPrompt: "p", Temperature: 2, MaxTokens: 1}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid request: %v", err)
	}

	bad := []GenerateRequest{
		{UserPrompt: "p", MaxTokens: 1},
		{Model: "m", UserPrompt: "  ", MaxTokens: 1},
		{Model: "m", UserPrompt: "p", MaxTokens: 0},
		{Model: "m", UserPrompt: "p", MaxTokens: 1, Temperature: -0.1},
		{Model: "m", UserPrompt: "p", MaxTokens: 1, Turns: []Message{{Role: "system", Content: "x"}}},
	}
	for i, r := range bad {
		if err := r.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestServerFromBaseURL(t *testing.T) {
	cases := []struct {
		base string
		host string
		port int
	}{
		{"https://api.openai.com", "api.openai.com", 443},
		{"http://127.0.0.1:8080/v1", "127.0.0.1", 8080},
		{"http://localhost", "localhost", 80},
		{"https://gateway.internal:8443", "gateway.internal", 8443},
		{"not a url", "", 0},
	}
	for _, tc := range cases {
		host, port := ServerFromBaseURL(tc.base)
		if host != tc.host || port != tc.port {
			t.Fatalf("ServerFromBaseURL(%q) = %q, %d; want %q, %d", tc.base, host, port, tc.host, tc.port)
		}
	}
}
