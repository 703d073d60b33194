package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/fluxgen/internal/version"
)

const maxErrorBody = 512

// DoJSON sends a JSON request payload and returns the response body.
//
// Failures are classified: transport errors and retryable statuses become
// *TransientError, other non-2xx statuses and unmarshalable payloads become
// *PermanentError. Context cancellation is returned as-is so callers can stop.
func DoJSON(ctx context.Context, client *http.Client, req *http.Request, payload any) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, Permanent(fmt.Errorf("marshal request: %w", err))
		}
		req.Body = io.NopCloser(bytes.NewReader(b))
		req.ContentLength = int64(len(b))
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("http request abandoned: %w", ctxErr)
		}
		return nil, Transient(fmt.Errorf("http request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("read response abandoned: %w", ctxErr)
		}
		return nil, Transient(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode >= 300 {
		cause := fmt.Errorf("provider returned status %d: %s", resp.StatusCode, snippet(body))
		return nil, StatusError(resp.StatusCode, retryAfter(resp.Header), cause)
	}
	return body, nil
}

// DecodeJSON unmarshals a provider body. A body that does not decode is
// treated like a 5xx-equivalent: the next attempt may well succeed.
func DecodeJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return Transient(fmt.Errorf("parse response: %w", err))
	}
	return nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// BearerAuth validates key and sets the Authorization header.
func BearerAuth(req *http.Request, key string) error {
	if strings.TrimSpace(key) == "" {
		return Permanent(ErrMissingAPIKey)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	return nil
}

// CheckRequest validates req and wraps any problem as permanent.
func CheckRequest(req GenerateRequest) error {
	if err := req.Validate(); err != nil {
		return Permanent(err)
	}
	return nil
}

// ServerFromBaseURL splits a base URL into the server.address and
// server.port telemetry values. The scheme decides the default port.
func ServerFromBaseURL(baseURL string) (string, int) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return "", 0
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			return u.Hostname(), n
		}
	}
	if u.Scheme == "http" {
		return u.Hostname(), 80
	}
	return u.Hostname(), 443
}
