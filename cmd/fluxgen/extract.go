package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/your-org/fluxgen/internal/audit"
	"github.com/your-org/fluxgen/internal/structured"
)

func newExtractCmd(g *globalOptions) *cobra.Command {
	var (
		flags      callFlags
		schemaPath string
		attempts   bool
	)
	cmd := &cobra.Command{
		Use:   "extract --schema FILE [PROMPT]",
		Short: "Extract a JSON value that validates against a schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := os.ReadFile(schemaPath)
			if err != nil {
				return fmt.Errorf("read schema: %w", err)
			}
			if !json.Valid(schema) {
				return fmt.Errorf("schema %s is not valid JSON", schemaPath)
			}
			prompt, err := readInput(g.stdin, args, "")
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, e *env) (audit.Event, error) {
				call := flags.call(cmd, prompt)
				call.Endpoint = "extract"
				var out any
				outcome, err := e.extractor.Generate(ctx, structured.Request{Call: call, Schema: schema}, &out)
				ev := audit.Event{Provider: call.Provider, Model: outcome.Result.Model, Items: 1}
				if attempts {
					for _, a := range outcome.Attempts {
						if a.ParseErr != nil {
							e.logger.Info("rejected reply", "attempt", a.Index, "error", a.ParseErr)
						}
					}
				}
				if err != nil {
					ev.Failed = 1
					return ev, err
				}
				return ev, writeJSON(g.stdout, out)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&schemaPath, "schema", "", "JSON schema file the reply must satisfy")
	cmd.Flags().BoolVar(&attempts, "log-attempts", false, "log every rejected reply")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}
