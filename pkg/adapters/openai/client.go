package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/your-org/fluxgen/pkg/adapters"
)

const defaultBaseURL = "https://api.openai.com"

// Client implements adapters.Provider for the OpenAI-compatible Chat Completions API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey string, httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{apiKey: apiKey, httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Client) Identity() adapters.Identity {
	host, port := adapters.ServerFromBaseURL(c.baseURL)
	return adapters.Identity{Name: "openai", System: "openai", ServerAddress: host, ServerPort: port}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Client) Generate(ctx context.Context, req adapters.GenerateRequest) (adapters.GenerateResult, error) {
	if err := adapters.CheckRequest(req); err != nil {
		return adapters.GenerateResult{}, err
	}

	hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", nil)
	if err != nil {
		return adapters.GenerateResult{}, adapters.Permanent(fmt.Errorf("build request: %w", err))
	}
	if err := adapters.BearerAuth(hReq, c.apiKey); err != nil {
		return adapters.GenerateResult{}, err
	}

	messages := make([]chatMessage, 0, len(req.Turns)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Conversation() {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	payload := map[string]any{
		"model":       req.Model,
		"messages":    messages,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
	}
	if req.JSONMode {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	body, err := adapters.DoJSON(ctx, c.httpClient, hReq, payload)
	if err != nil {
		return adapters.GenerateResult{}, err
	}

	var parsed struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content *string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := adapters.DecodeJSON(body, &parsed); err != nil {
		return adapters.GenerateResult{}, err
	}

	res := adapters.GenerateResult{
		Model:      parsed.Model,
		ResponseID: parsed.ID,
		Usage:      adapters.ExtractUsage(body),
	}
	if res.Model == "" {
		res.Model = req.Model
	}
	if len(parsed.Choices) == 0 {
		return adapters.GenerateResult{}, adapters.Permanent(fmt.Errorf("%w: response has no choices", adapters.ErrEmptyResponse))
	}
	choice := parsed.Choices[0]
	if choice.Message.Content != nil {
		res.Content = *choice.Message.Content
	}
	res.FinishReason = choice.FinishReason
	return res, nil
}
