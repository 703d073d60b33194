// Package pipeline runs a task over a worklist. Items run one after another
// by default; a failed item is appended to the run's error list and the rest
// of the batch continues.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/fluxgen/internal/coordinator"
)

// Item is one unit of work.
type Item struct {
	ID          string `json:"id" yaml:"id"`
	Content     string `json:"content" yaml:"content"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
}

// Task processes one item. The output is stored in the report as-is.
type Task func(ctx context.Context, item Item) (any, error)

type Runner struct {
	concurrency int
	coord       coordinator.Coordinator
	leaseKey    string
	leaseTTL    time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

type Option func(*Runner)

// WithConcurrency bounds parallel items; values below 2 keep the run
// sequential.
func WithConcurrency(n int) Option {
	return func(r *Runner) { r.concurrency = n }
}

// WithLease holds key on coord for the whole run, renewing it every ttl/2.
func WithLease(coord coordinator.Coordinator, key string, ttl time.Duration) Option {
	return func(r *Runner) {
		r.coord = coord
		r.leaseKey = key
		r.leaseTTL = ttl
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		concurrency: 1,
		logger:      slog.Default(),
		tracer:      otel.Tracer("github.com/your-org/fluxgen/internal/pipeline"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.leaseTTL <= 0 {
		r.leaseTTL = coordinator.DefaultTTL
	}
	return r
}

// Run processes items and always returns the report of what ran. The error
// is non-nil only when the run itself could not continue: the lease could
// not be taken or was lost, or ctx ended.
func (r *Runner) Run(ctx context.Context, items []Item, task Task) (Report, error) {
	rec := newRecorder(uuid.NewString(), r.now())
	ctx, span := r.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("pipeline.run_id", rec.runID),
		attribute.Int("pipeline.items", len(items)),
		attribute.Int("pipeline.concurrency", max(1, r.concurrency)),
	))
	defer span.End()

	runErr := r.withLease(ctx, func(ctx context.Context) error {
		if r.concurrency > 1 {
			return r.runParallel(ctx, items, task, rec)
		}
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.runItem(ctx, i, item, task, rec)
		}
		return nil
	})

	report := rec.finalize(r.now())
	span.SetAttributes(attribute.Int("pipeline.failed", len(report.Errors)))
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		r.logger.ErrorContext(ctx, "pipeline run stopped", "run_id", report.RunID, "completed", len(report.Results), "error", runErr)
		return report, runErr
	}
	r.logger.InfoContext(ctx, "pipeline run finished",
		"run_id", report.RunID, "items", len(report.Results), "failed", len(report.Errors), "duration", report.TotalLatency)
	return report, nil
}

func (r *Runner) runParallel(ctx context.Context, items []Item, task Task, rec *recorder) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			r.runItem(gctx, i, item, task, rec)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (r *Runner) runItem(ctx context.Context, index int, item Item, task Task, rec *recorder) {
	id := item.ID
	if id == "" {
		id = fmt.Sprintf("item-%d", index+1)
	}
	ctx, span := r.tracer.Start(ctx, "pipeline.item", trace.WithAttributes(
		attribute.String("pipeline.item.id", id),
		attribute.Int("pipeline.item.index", index),
	))
	defer span.End()

	start := time.Now()
	out, err := safeCall(ctx, task, item)
	res := Result{Index: index, ItemID: id, Output: out, Duration: time.Since(start)}
	if err != nil {
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.WarnContext(ctx, "pipeline item failed", "item_id", id, "error", err)
	}
	rec.add(res)
}

func safeCall(ctx context.Context, task Task, item Item) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panic: %v", p)
		}
	}()
	return task(ctx, item)
}

func (r *Runner) withLease(ctx context.Context, fn func(context.Context) error) error {
	if r.coord == nil || r.leaseKey == "" {
		return fn(ctx)
	}
	lease, err := r.coord.Acquire(ctx, r.leaseKey, r.leaseTTL)
	if err != nil {
		return fmt.Errorf("acquire run lease %s: %w", r.leaseKey, err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			r.logger.WarnContext(ctx, "release run lease", "key", r.leaseKey, "error", err)
		}
	}()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(r.leaseTTL / 2)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := lease.Extend(ctx, r.leaseTTL); err != nil {
					if errors.Is(err, coordinator.ErrLeaseLost) {
						cancel(err)
						return
					}
					r.logger.WarnContext(ctx, "extend run lease", "key", r.leaseKey, "error", err)
				}
			}
		}
	}()

	err = fn(ctx)
	if cause := context.Cause(ctx); cause != nil && errors.Is(cause, coordinator.ErrLeaseLost) {
		return cause
	}
	return err
}
