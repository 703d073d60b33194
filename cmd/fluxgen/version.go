package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/fluxgen/internal/version"
)

func newVersionCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintln(g.stdout, version.String())
			return err
		},
	}
}
