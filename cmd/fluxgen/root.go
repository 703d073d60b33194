package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/your-org/fluxgen/internal/analyzer"
	"github.com/your-org/fluxgen/internal/audit"
	"github.com/your-org/fluxgen/internal/billing"
	"github.com/your-org/fluxgen/internal/config"
	"github.com/your-org/fluxgen/internal/genai"
	"github.com/your-org/fluxgen/internal/logging"
	"github.com/your-org/fluxgen/internal/metrics"
	"github.com/your-org/fluxgen/internal/structured"
	telemetry "github.com/your-org/fluxgen/internal/trace"
	"github.com/your-org/fluxgen/internal/version"
)

type globalOptions struct {
	manifest string
	logLevel string
	stats    bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	g := &globalOptions{stdin: stdin, stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "fluxgen",
		Short: "Resilient, observable LLM generation",
		Long: `fluxgen calls OpenAI, Anthropic or Gemini with retries, a single fallback
hop and GenAI telemetry.

Examples:
  fluxgen generate "Summarize the release notes"
  fluxgen extract --schema person.json "Ada Lovelace, born 1815"
  fluxgen analyze review --content-type blog --file post.md
  fluxgen batch items.jsonl --op score --concurrency 4 --report run.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&g.manifest, "manifest", "", "YAML manifest with providers, pricing and defaults")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error (default from LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&g.stats, "stats", false, "print token and cost totals to stderr")

	root.AddCommand(
		newGenerateCmd(g),
		newExtractCmd(g),
		newAnalyzeCmd(g),
		newBatchCmd(g),
		newConfigCmd(g),
		newAuditCmd(g),
		newVersionCmd(g),
	)
	return root
}

// loadConfig layers the manifest, when given, over the environment.
func loadConfig(manifestPath string) (config.Config, *billing.PricingTable, error) {
	cfg := config.FromEnv()
	if manifestPath == "" {
		return cfg, billing.DefaultPricingTable(), nil
	}
	m, err := config.LoadManifest(manifestPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	pricing, err := m.PricingTable()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("manifest pricing: %w", err)
	}
	return m.Apply(cfg), pricing, nil
}

// env is everything a command needs, built once per invocation.
type env struct {
	cfg       config.Config
	logger    *slog.Logger
	otel      *telemetry.Runtime
	stats     *metrics.InMemoryRecorder
	recorder  metrics.Recorder
	client    *genai.Client
	extractor *structured.Extractor
	audit     *audit.Logger

	metricsServer *http.Server
}

func (g *globalOptions) open(ctx context.Context) (*env, error) {
	cfg, pricing, err := loadConfig(g.manifest)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}

	tcfg := telemetry.ConfigFromEnv("fluxgen", version.Version)
	var registry *prometheus.Registry
	if cfg.MetricsAddr != "" {
		registry = prometheus.NewRegistry()
		if cfg.MetricsBackend == "otel" {
			tcfg.Registry = registry
		}
	}
	rt, err := telemetry.Setup(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}

	e := &env{
		cfg:    cfg,
		otel:   rt,
		stats:  metrics.NewInMemoryRecorder(),
		audit:  audit.NewLogger(cfg.AuditLogPath),
		logger: logging.New(logging.Options{Level: cfg.LogLevel, Writer: g.stderr, OTel: tcfg.LogsEnabled, ServiceName: tcfg.ServiceName}),
	}
	recorders := []metrics.Recorder{e.stats}
	if registry != nil && cfg.MetricsBackend != "otel" {
		prom, err := metrics.NewPrometheusRecorder(registry)
		if err != nil {
			_ = e.close(ctx)
			return nil, fmt.Errorf("setup prometheus recorder: %w", err)
		}
		recorders = append(recorders, prom)
	}
	if tcfg.Registry != nil || tcfg.MetricsOTLP {
		otelRec, err := metrics.NewOTelRecorder(rt.Meter)
		if err != nil {
			_ = e.close(ctx)
			return nil, fmt.Errorf("setup otel recorder: %w", err)
		}
		recorders = append(recorders, otelRec)
	}
	if registry != nil {
		srv, err := metrics.StartPrometheusServer(cfg.MetricsAddr, registry)
		if err != nil {
			_ = e.close(ctx)
			return nil, fmt.Errorf("start metrics endpoint: %w", err)
		}
		e.metricsServer = srv
	}
	e.recorder = metrics.NewMultiRecorder(recorders...)

	e.client, err = genai.New(cfg,
		genai.WithLogger(e.logger),
		genai.WithTracer(rt.Tracer),
		genai.WithRecorder(e.recorder),
		genai.WithPricing(pricing),
	)
	if err != nil {
		_ = e.close(ctx)
		return nil, err
	}
	e.extractor = structured.New(e.client,
		structured.WithLogger(e.logger),
		structured.WithTracer(rt.Tracer),
		structured.WithRecorder(e.recorder),
	)
	return e, nil
}

func (e *env) analyzer() (*analyzer.Analyzer, error) {
	return analyzer.New(e.extractor, analyzer.PromptVersions{
		Review:  e.cfg.ReviewPromptVersion,
		Improve: e.cfg.ImprovePromptVersion,
		Score:   e.cfg.ScorePromptVersion,
	},
		analyzer.WithLogger(e.logger),
		analyzer.WithRecorder(e.recorder),
		analyzer.WithTracer(e.otel.Tracer),
		analyzer.WithCaptureContent(e.cfg.CaptureContent),
	)
}

func (e *env) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	var errs []error
	if e.metricsServer != nil {
		errs = append(errs, metrics.StopServer(ctx, e.metricsServer))
	}
	if e.otel != nil {
		errs = append(errs, e.otel.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// run opens the environment, runs fn, writes the audit record and prints
// totals when --stats is set.
func (g *globalOptions) run(cmd *cobra.Command, fn func(ctx context.Context, e *env) (audit.Event, error)) error {
	ctx := cmd.Context()
	e, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.close(ctx); cerr != nil {
			e.logger.Warn("telemetry shutdown", "error", cerr)
		}
	}()

	ev, runErr := fn(ctx, e)
	snap := e.stats.Snapshot()
	ev.Command = cmd.CommandPath()
	ev.CostUSD = snap.CostUSD
	if ev.Provider == "" {
		ev.Provider = e.cfg.Provider
	}
	if aerr := e.audit.Write(ev, runErr); aerr != nil {
		e.logger.Warn("write audit record", "error", aerr)
	}
	if g.stats {
		printStats(g.stderr, snap)
	}
	return runErr
}

func printStats(w io.Writer, s metrics.Snapshot) {
	_, _ = fmt.Fprintf(w, "calls=%d errors=%d retries=%d fallbacks=%d circuit_opens=%d unmetered=%d cost_usd=%.6f\n",
		s.Successes, s.Errors, s.Retries, s.Fallbacks, s.CircuitOpens, s.UnmeteredCalls, s.CostUSD)
	for _, name := range slices.Sorted(maps.Keys(s.ByProvider)) {
		p := s.ByProvider[name]
		_, _ = fmt.Fprintf(w, "  %s: calls=%d input_tokens=%d output_tokens=%d cost_usd=%.6f\n",
			name, p.Successes, p.InputTokens, p.OutputTokens, p.CostUSD)
	}
}

// readInput joins args, or reads stdin when there are none or the only
// argument is "-".
func readInput(stdin io.Reader, args []string, file string) (string, error) {
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(b), nil
	}
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return strings.Join(args, " "), nil
}
