package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/your-org/fluxgen/pkg/adapters"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// Client implements adapters.Provider for the Anthropic Messages API.
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
	return adapters.Identity{Name: "anthropic", System: "anthropic", ServerAddress: host, ServerPort: port}
}

func (c *Client) Generate(ctx context.Context, req adapters.GenerateRequest) (adapters.GenerateResult, error) {
	if err := adapters.CheckRequest(req); err != nil {
		return adapters.GenerateResult{}, err
	}
	if strings.TrimSpace(c.apiKey) == "" {
		return adapters.GenerateResult{}, adapters.Permanent(adapters.ErrMissingAPIKey)
	}

	hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", nil)
	if err != nil {
		return adapters.GenerateResult{}, adapters.Permanent(fmt.Errorf("build request: %w", err))
	}
	hReq.Header.Set("x-api-key", c.apiKey)
	hReq.Header.Set("anthropic-version", apiVersion)

	conv := req.Conversation()
	messages := make([]map[string]any, 0, len(conv))
	for _, m := range conv {
		messages = append(messages, map[string]any{"role": string(m.Role), "content": m.Content})
	}
	payload := map[string]any{
		"model":       req.Model,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"messages":    messages,
	}
	if req.SystemPrompt != "" {
		payload["system"] = req.SystemPrompt
	}

	body, err := adapters.DoJSON(ctx, c.httpClient, hReq, payload)
	if err != nil {
		return adapters.GenerateResult{}, err
	}

	var parsed struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
	}
	if err := adapters.DecodeJSON(body, &parsed); err != nil {
		return adapters.GenerateResult{}, err
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" || block.Text != "" {
			text.WriteString(block.Text)
		}
	}

	res := adapters.GenerateResult{
		Content:      text.String(),
		Usage:        adapters.ExtractUsage(body),
		Model:        parsed.Model,
		ResponseID:   parsed.ID,
		FinishReason: parsed.StopReason,
	}
	if res.Model == "" {
		res.Model = req.Model
	}
	return res, nil
}
