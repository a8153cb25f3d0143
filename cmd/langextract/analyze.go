package main

import (
	"fmt"
	"os"

	"github.com/hurttlocker/langextract/internal/orchestrator"
	"github.com/hurttlocker/langextract/internal/report"
	"github.com/hurttlocker/langextract/internal/store"
	"github.com/spf13/cobra"
)

func analyzeCmd() *cobra.Command {
	var (
		in       inputFlags
		out      outputFlags
		models   modelFlags
		language string
		domain   string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Extract with two models and reconcile them with a referee",
		Long: `Runs two independent extraction passes concurrently, reports where they
disagree and how much they agree, then asks a referee model for the final
analysis. If any of the three passes fails, nothing is returned.`,
		Example: `  langextract analyze --file statement.txt --domain police
  langextract analyze --text "..." --first ollama/gemma3:4b --second openai/gpt-4o-mini --referee anthropic/claude-3-5-haiku-latest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(models, out.save)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			text, err := readInput(ctx, in, a.ingest, cmd.InOrStdin())
			if err != nil {
				return err
			}
			resp, err := a.orch.Analyze(ctx, orchestrator.AnalyzeRequest{
				Text:     text,
				Language: orDefault(language, a.orch.Defaults().Language),
				Domain:   orDefault(domain, a.orch.Defaults().Domain),
			})
			if err != nil {
				return err
			}

			if out.save {
				run, err := store.NewAnalyzeRun(resp)
				if err != nil {
					return err
				}
				id, err := a.store.SaveRun(ctx, run)
				if err != nil {
					return fmt.Errorf("saving run: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Saved run %s\n", id)
			}
			if out.report != "" {
				if err := writeReportFile(out.report, func(f *os.File) error {
					return report.WriteArbitration(f, resp)
				}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", out.report)
			}
			if out.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			renderArbitration(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	addInputFlags(cmd, &in)
	addOutputFlags(cmd, &out)
	cmd.Flags().StringVar(&language, "language", "", "language code of the text (default fa)")
	cmd.Flags().StringVar(&domain, "domain", "", "analysis domain: general, police or legal")
	cmd.Flags().StringVar(&models.first, "first", "", "first-pass model")
	cmd.Flags().StringVar(&models.second, "second", "", "second-pass model")
	cmd.Flags().StringVar(&models.referee, "referee", "", "referee model")
	return cmd
}
