package genai

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/your-org/fluxgen/internal/billing"
	"github.com/your-org/fluxgen/internal/metrics"
	"github.com/your-org/fluxgen/internal/retry"
	"github.com/your-org/fluxgen/pkg/adapters"
	"go.opentelemetry.io/otel/trace"
)

// Option customizes a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

func WithPricing(p *billing.PricingTable) Option {
	return func(c *Client) {
		if p != nil {
			c.pricing = p
		}
	}
}

// WithRetryPolicy replaces the policy derived from the config.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) {
		c.policy = p
		c.policySet = true
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithFactory(f Factory) Option {
	return func(c *Client) {
		if f != nil {
			c.factory = f
		}
	}
}

// WithProvider pre-registers an adapter under its Identity().Name, bypassing
// the factory for that name.
func WithProvider(p adapters.Provider) Option {
	return func(c *Client) {
		if p != nil {
			c.providers[p.Identity().Name] = p
		}
	}
}

// WithCaptureContent overrides the content-capture flag from the config.
func WithCaptureContent(on bool) Option {
	return func(c *Client) {
		c.captureContent = on
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}
