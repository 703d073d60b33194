package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/your-org/fluxgen/pkg/adapters"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			ResponseFormat map[string]string `json:"response_format"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(payload.Messages) != 2 || payload.Messages[0].Role != "system" || payload.Messages[1].Content != "hello" {
			t.Errorf("unexpected messages: %+v", payload.Messages)
		}
		if payload.ResponseFormat != nil {
			t.Errorf("json mode should be off: %s", string(body))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","model":"gpt-4.1-nano-2025-04-14","choices":[{"message":{"role":"assistant","content":"world"},"finish_reason":"stop"}],"usage":{"prompt_tokens":11,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.Client(), srv.URL)
	resp, err := c.Generate(context.Background(), adapters.GenerateRequest{
		Model:        "gpt-4.1-nano",
		SystemPrompt: "sys",
		UserPrompt:   "hello",
		Temperature:  0.3,
		MaxTokens:    100,
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if resp.Content != "world" || resp.Usage == nil || resp.Usage.InputTokens != 11 || resp.Usage.OutputTokens != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ResponseID != "chatcmpl-1" || resp.FinishReason != "stop" || resp.Model != "gpt-4.1-nano-2025-04-14" {
		t.Fatalf("unexpected metadata: %+v", resp)
	}
}

func TestGenerateServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.Client(), srv.URL)
	_, err := c.Generate(context.Background(), adapters.GenerateRequest{Model: "gpt-4.1-nano", UserPrompt: "hi", MaxTokens: 5})
	var te *adapters.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if te.StatusCode != http.StatusServiceUnavailable || te.RetryAfter.Seconds() != 2 {
		t.Fatalf("unexpected transient error fields: %+v", te)
	}
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	c := NewClient("test-key", nil, "http://127.0.0.1:1")
	_, err := c.Generate(context.Background(), adapters.GenerateRequest{Model: "gpt-4.1-nano", UserPrompt: "hi", MaxTokens: 5, Temperature: 3})
	if !errors.Is(err, adapters.ErrInvalidRequest) || !adapters.IsPermanent(err) {
		t.Fatalf("expected permanent invalid request, got %v", err)
	}
}

func TestGenerateCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient("test-key", srv.Client(), srv.URL)
	_, err := c.Generate(ctx, adapters.GenerateRequest{Model: "gpt-4.1-nano", UserPrompt: "hi", MaxTokens: 5})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if adapters.IsTransient(err) {
		t.Fatal("cancellation must not be classified as transient")
	}
}

func TestGenerateEmptyChoicesIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"chatcmpl-2","model":"gpt-4.1-nano","choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.Client(), srv.URL)
	_, err := c.Generate(context.Background(), adapters.GenerateRequest{Model: "gpt-4.1-nano", UserPrompt: "hi", MaxTokens: 5})
	if !errors.Is(err, adapters.ErrEmptyResponse) || !adapters.IsPermanent(err) {
		t.Fatalf("expected permanent empty response, got %v", err)
	}
	if got := adapters.ErrorType(err); got != "empty_response" {
		t.Fatalf("unexpected error type %q", got)
	}
}

func TestIdentityFollowsBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	wantPort, _ := strconv.Atoi(u.Port())
	id := NewClient("test-key", srv.Client(), srv.URL+"/").Identity()
	if id.ServerAddress != u.Hostname() || id.ServerPort != wantPort {
		t.Fatalf("identity %+v does not match %s", id, srv.URL)
	}

	def := NewClient("test-key", nil, "").Identity()
	if def.ServerAddress != "api.openai.com" || def.ServerPort != 443 {
		t.Fatalf("unexpected default identity %+v", def)
	}
}
