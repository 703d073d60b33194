package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/fluxgen/internal/analyzer"
	"github.com/your-org/fluxgen/internal/audit"
)

type reviewOutput struct {
	analyzer.ReviewResult
	Score   int    `json:"score"`
	Verdict string `json:"verdict"`
}

func newAnalyzeCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Review, improve or score content",
	}
	for _, op := range []struct {
		name  string
		short string
	}{
		{"review", "List quality issues and a passing verdict"},
		{"improve", "Suggest concrete rewrites"},
		{"score", "Score clarity, accuracy, engagement and originality"},
	} {
		cmd.AddCommand(newAnalyzeOpCmd(g, op.name, op.short))
	}
	return cmd
}

func newAnalyzeOpCmd(g *globalOptions, op, short string) *cobra.Command {
	var contentType, file string
	cmd := &cobra.Command{
		Use:   op + " [CONTENT]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(g.stdin, args, file)
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, e *env) (audit.Event, error) {
				ev := audit.Event{Items: 1}
				a, err := e.analyzer()
				if err != nil {
					return ev, err
				}
				out, err := analyze(ctx, a, op, content, contentType)
				if err != nil {
					ev.Failed = 1
					return ev, err
				}
				return ev, writeJSON(g.stdout, out)
			})
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", analyzer.ContentGeneral, "marketing, technical, blog or general")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read content from a file")
	return cmd
}

// analyze dispatches one analyzer operation; batch uses it per item.
func analyze(ctx context.Context, a *analyzer.Analyzer, op, content, contentType string) (any, error) {
	switch op {
	case "review":
		res, err := a.Review(ctx, content, contentType)
		if err != nil {
			return nil, err
		}
		score := analyzer.ReviewScore(res.Issues)
		return reviewOutput{ReviewResult: res, Score: score, Verdict: analyzer.Label(score)}, nil
	case "improve":
		return a.Improve(ctx, content, contentType)
	case "score":
		return a.Score(ctx, content, contentType)
	}
	return nil, fmt.Errorf("unknown operation %q", op)
}
