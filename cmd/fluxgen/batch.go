package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/fluxgen/internal/audit"
	"github.com/your-org/fluxgen/internal/coordinator"
	"github.com/your-org/fluxgen/internal/pipeline"
)

// errItemsFailed makes --fail-on-error exit non-zero after the report is
// written.
var errItemsFailed = errors.New("one or more items failed")

func newBatchCmd(g *globalOptions) *cobra.Command {
	var (
		flags       callFlags
		op          string
		concurrency int
		leaseKey    string
		reportPath  string
		failOnError bool
	)
	cmd := &cobra.Command{
		Use:   "batch ITEMS",
		Short: "Run an operation over a JSONL or YAML worklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := pipeline.LoadItems(args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, e *env) (audit.Event, error) {
				ev := audit.Event{Items: len(items)}
				task, err := batchTask(cmd, e, op, &flags)
				if err != nil {
					return ev, err
				}

				if !cmd.Flags().Changed("concurrency") {
					concurrency = e.cfg.Concurrency
				}
				opts := []pipeline.Option{
					pipeline.WithConcurrency(concurrency),
					pipeline.WithLogger(e.logger),
					pipeline.WithTracer(e.otel.Tracer),
				}
				if leaseKey != "" {
					coord, closeCoord, err := openCoordinator(ctx, e)
					if err != nil {
						return ev, err
					}
					defer closeCoord()
					opts = append(opts, pipeline.WithLease(coord, leaseKey, coordinator.DefaultTTL))
				}

				rep, runErr := pipeline.NewRunner(opts...).Run(ctx, items, task)
				ev.RunID = rep.RunID
				ev.Failed = len(rep.Results) - rep.Succeeded()
				if reportPath != "" {
					if err := pipeline.SaveReport(reportPath, rep); err != nil {
						return ev, errors.Join(runErr, err)
					}
				} else if err := writeJSON(g.stdout, rep); err != nil {
					return ev, errors.Join(runErr, err)
				}
				if runErr != nil {
					return ev, runErr
				}
				if failOnError && ev.Failed > 0 {
					return ev, fmt.Errorf("%w: %d of %d", errItemsFailed, ev.Failed, len(items))
				}
				return ev, nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&op, "op", "review", "review, improve, score or generate")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 1, "items processed in parallel (default from PIPELINE_CONCURRENCY)")
	cmd.Flags().StringVar(&leaseKey, "lease", "", "hold this lease for the whole run so only one runner processes the list")
	cmd.Flags().StringVarP(&reportPath, "report", "o", "", "write the JSON report here instead of stdout")
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit non-zero when any item fails")
	return cmd
}

func batchTask(cmd *cobra.Command, e *env, op string, flags *callFlags) (pipeline.Task, error) {
	switch op {
	case "generate":
		return func(ctx context.Context, item pipeline.Item) (any, error) {
			call := flags.call(cmd, item.Content)
			call.Endpoint = "batch"
			call.ContentType = item.ContentType
			res, err := e.client.Generate(ctx, call)
			if err != nil {
				return nil, err
			}
			return res.Content, nil
		}, nil
	case "review", "improve", "score":
		a, err := e.analyzer()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, item pipeline.Item) (any, error) {
			return analyze(ctx, a, op, item.Content, item.ContentType)
		}, nil
	}
	return nil, fmt.Errorf("unknown --op %q: want review, improve, score or generate", op)
}

// openCoordinator picks redis when REDIS_URL is set, then a lock directory,
// then an in-process lease.
func openCoordinator(ctx context.Context, e *env) (coordinator.Coordinator, func(), error) {
	switch {
	case e.cfg.RedisURL != "":
		rc, err := coordinator.NewRedisCoordinator(ctx, e.cfg.RedisURL, "")
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { _ = rc.Close() }, nil
	case e.cfg.LeaseDir != "":
		return coordinator.NewFileCoordinator(e.cfg.LeaseDir), func() {}, nil
	}
	e.logger.Warn("no REDIS_URL or LEASE_DIR; lease only guards this process")
	return coordinator.NewMemoryCoordinator(), func() {}, nil
}
