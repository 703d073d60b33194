package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/your-org/fluxgen/internal/audit"
	"github.com/your-org/fluxgen/internal/genai"
	"github.com/your-org/fluxgen/pkg/adapters"
)

type callFlags struct {
	system     string
	provider   string
	model      string
	temp       float64
	maxTokens  int
	noFallback bool
	agent      string
	campaign   string
}

func (f *callFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.system, "system", "", "system prompt")
	fl.StringVar(&f.provider, "provider", "", "override the configured primary provider")
	fl.StringVar(&f.model, "model", "", "override the model")
	fl.Float64Var(&f.temp, "temperature", 0, "sampling temperature in [0,2]")
	fl.IntVar(&f.maxTokens, "max-tokens", 0, "completion token limit")
	fl.BoolVar(&f.noFallback, "no-fallback", false, "never switch to the fallback provider")
	fl.StringVar(&f.agent, "agent", "", "agent name recorded on spans and cost metrics")
	fl.StringVar(&f.campaign, "campaign", "", "campaign id recorded on spans and cost metrics")
}

func (f *callFlags) call(cmd *cobra.Command, prompt string) genai.Call {
	c := genai.Call{
		Prompt:          prompt,
		System:          f.system,
		Provider:        f.provider,
		Model:           f.model,
		MaxTokens:       f.maxTokens,
		DisableFallback: f.noFallback,
		AgentName:       f.agent,
		CampaignID:      f.campaign,
	}
	if cmd.Flags().Changed("temperature") {
		c.Temperature = genai.Temperature(f.temp)
	}
	return c
}

func newGenerateCmd(g *globalOptions) *cobra.Command {
	var (
		flags    callFlags
		jsonMode bool
		verbose  bool
	)
	cmd := &cobra.Command{
		Use:   "generate [PROMPT]",
		Short: "Generate a completion (reads stdin when PROMPT is omitted or -)",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readInput(g.stdin, args, "")
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, e *env) (audit.Event, error) {
				call := flags.call(cmd, prompt)
				call.JSONMode = jsonMode
				call.Endpoint = "generate"
				res, err := e.client.Generate(ctx, call)
				ev := audit.Event{Provider: call.Provider, Model: res.Model, Items: 1}
				if err != nil {
					ev.Failed = 1
					return ev, err
				}
				return ev, printGeneration(g.stdout, res, verbose)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonMode, "json", false, "ask the provider for a JSON object")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print model, finish reason and usage as JSON")
	return cmd
}

func printGeneration(w io.Writer, res adapters.GenerateResult, verbose bool) error {
	if !verbose {
		_, err := fmt.Fprintln(w, res.Content)
		return err
	}
	return writeJSON(w, struct {
		Content      string               `json:"content"`
		Model        string               `json:"model"`
		ResponseID   string               `json:"response_id,omitempty"`
		FinishReason string               `json:"finish_reason,omitempty"`
		Usage        *adapters.TokenUsage `json:"usage,omitempty"`
	}{res.Content, res.Model, res.ResponseID, res.FinishReason, res.Usage})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
