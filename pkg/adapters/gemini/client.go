package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/your-org/fluxgen/pkg/adapters"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Client implements adapters.Provider for the Gemini generateContent API.
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
	return adapters.Identity{Name: "google", System: "gcp.gemini", ServerAddress: host, ServerPort: port}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

func (c *Client) Generate(ctx context.Context, req adapters.GenerateRequest) (adapters.GenerateResult, error) {
	if err := adapters.CheckRequest(req); err != nil {
		return adapters.GenerateResult{}, err
	}
	if strings.TrimSpace(c.apiKey) == "" {
		return adapters.GenerateResult{}, adapters.Permanent(adapters.ErrMissingAPIKey)
	}

	urlStr := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(req.Model))
	hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, nil)
	if err != nil {
		return adapters.GenerateResult{}, adapters.Permanent(fmt.Errorf("build request: %w", err))
	}
	hReq.Header.Set("x-goog-api-key", c.apiKey)

	conv := req.Conversation()
	contents := make([]content, 0, len(conv))
	for _, m := range conv {
		role := "user"
		if m.Role == adapters.RoleAssistant {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	genCfg := map[string]any{
		"temperature":     req.Temperature,
		"maxOutputTokens": req.MaxTokens,
	}
	if req.JSONMode {
		genCfg["responseMimeType"] = "application/json"
	}
	payload := map[string]any{
		"contents":         contents,
		"generationConfig": genCfg,
	}
	if req.SystemPrompt != "" {
		payload["systemInstruction"] = content{Parts: []part{{Text: req.SystemPrompt}}}
	}

	body, err := adapters.DoJSON(ctx, c.httpClient, hReq, payload)
	if err != nil {
		return adapters.GenerateResult{}, err
	}

	var parsed struct {
		ResponseID   string `json:"responseId"`
		ModelVersion string `json:"modelVersion"`
		Candidates   []struct {
			Content struct {
				Parts []part `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
	}
	if err := adapters.DecodeJSON(body, &parsed); err != nil {
		return adapters.GenerateResult{}, err
	}

	res := adapters.GenerateResult{
		Usage:      adapters.ExtractUsage(body),
		Model:      parsed.ModelVersion,
		ResponseID: parsed.ResponseID,
	}
	if res.Model == "" {
		res.Model = req.Model
	}
	if len(parsed.Candidates) == 0 {
		// a blocked prompt comes back with promptFeedback and no candidates
		return adapters.GenerateResult{}, adapters.Permanent(fmt.Errorf("%w: response has no candidates", adapters.ErrEmptyResponse))
	}
	var text strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	res.Content = text.String()
	res.FinishReason = parsed.Candidates[0].FinishReason
	return res, nil
}
