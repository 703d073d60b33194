package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/your-org/fluxgen/internal/config"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate MANIFEST",
		Short: "Check a manifest without calling any provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := config.LoadManifest(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(g.stdout, "ok: provider=%s fallback=%s providers=%d priced_models=%d\n",
				m.Defaults.Provider, orNone(m.Defaults.FallbackProvider), len(m.Providers), len(m.Pricing))
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with API keys redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(g.manifest)
			if err != nil {
				return err
			}
			b, err := yaml.Marshal(redact(cfg))
			if err != nil {
				return err
			}
			_, err = g.stdout.Write(b)
			return err
		},
	})
	return cmd
}

func redact(cfg config.Config) config.Config {
	providers := make(map[string]config.ProviderSettings, len(cfg.Providers))
	for name, p := range cfg.Providers {
		if p.APIKey != "" {
			p.APIKey = "[REDACTED]"
		}
		providers[name] = p
	}
	cfg.Providers = providers
	return cfg
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
