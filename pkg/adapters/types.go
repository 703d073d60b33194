package adapters

import (
	"context"
	"fmt"
	"strings"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn after the system prompt.
type Message struct {
	Role    Role
	Content string
}

// GenerateRequest is a provider-agnostic chat generation request.
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	// Turns continue the conversation after UserPrompt, oldest first.
	Turns       []Message
	Temperature float64
	MaxTokens   int
	// JSONMode asks vendors that support it to constrain output to JSON.
	JSONMode bool
}

// Validate checks the request ranges before anything is sent on the wire.
func (r GenerateRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Model) == "":
		return fmt.Errorf("%w: model is empty", ErrInvalidRequest)
	case strings.TrimSpace(r.UserPrompt) == "":
		return ErrEmptyPrompt
	case r.Temperature < 0 || r.Temperature > 2:
		return fmt.Errorf("%w: temperature %.2f outside [0,2]", ErrInvalidRequest, r.Temperature)
	case r.MaxTokens <= 0:
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidRequest, r.MaxTokens)
	}
	for i, t := range r.Turns {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return fmt.Errorf("%w: turn %d has unsupported role %q", ErrInvalidRequest, i, t.Role)
		}
	}
	return nil
}

// Conversation returns the user prompt followed by the additional turns.
func (r GenerateRequest) Conversation() []Message {
	msgs := make([]Message, 0, len(r.Turns)+1)
	msgs = append(msgs, Message{Role: RoleUser, Content: r.UserPrompt})
	return append(msgs, r.Turns...)
}

// TokenUsage is the token accounting reported by a vendor.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// GenerateResult is the normalized response of a single vendor call.
type GenerateResult struct {
	Content string
	// Usage is nil when the vendor did not report token counts.
	Usage *TokenUsage
	// Model is the serving model, which may differ from the requested one.
	Model        string
	ResponseID   string
	FinishReason string
}

// Identity describes a vendor for telemetry.
type Identity struct {
	// Name is the configuration name (openai, anthropic, google).
	Name string
	// System is the gen_ai.provider.name value.
	System        string
	ServerAddress string
	ServerPort    int
}

// Provider is the common interface all LLM adapters must satisfy.
type Provider interface {
	Identity() Identity
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}
