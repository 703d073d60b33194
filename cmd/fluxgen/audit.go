package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/fluxgen/internal/audit"
)

func newAuditCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Work with the JSONL audit log",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "export AUDIT_LOG OUT_CSV",
		Short: "Convert the audit log to CSV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := audit.ExportFile(args[0], args[1]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(g.stdout, "exported %s\n", args[1])
			return err
		},
	})
	return cmd
}
