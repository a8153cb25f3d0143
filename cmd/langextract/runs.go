package main

import (
	"fmt"
	"os"
	"time"

	"github.com/hurttlocker/langextract/internal/report"
	"github.com/hurttlocker/langextract/internal/store"
	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List and inspect stored runs",
	}
	cmd.AddCommand(runsListCmd(), runsShowCmd())
	return cmd
}

// runSummary is a stored run without its payload.
type runSummary struct {
	ID             string   `json:"id"`
	Kind           string   `json:"kind"`
	Language       string   `json:"language"`
	Domain         string   `json:"domain"`
	Models         []string `json:"models"`
	AgreementScore *float64 `json:"agreement_score,omitempty"`
	CreatedAt      string   `json:"created_at"`
	Preview        string   `json:"preview"`
}

func summarizeRun(r *store.Run) runSummary {
	return runSummary{
		ID:             r.ID,
		Kind:           string(r.Kind),
		Language:       r.Language,
		Domain:         r.Domain,
		Models:         r.Models,
		AgreementScore: r.AgreementScore,
		CreatedAt:      r.CreatedAt.UTC().Format(time.RFC3339),
		Preview:        snippet(r.Text, 100),
	}
}

func runsListCmd() *cobra.Command {
	var (
		kind    string
		limit   int
		offset  int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch store.RunKind(kind) {
			case "", store.RunExtract, store.RunAnalyze:
			default:
				return fmt.Errorf("invalid --kind %q: want extract or analyze", kind)
			}
			a, err := newApp(modelFlags{}, true)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.store.ListRuns(cmd.Context(), store.RunFilter{
				Kind:   store.RunKind(kind),
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				out := make([]runSummary, 0, len(runs))
				for _, r := range runs {
					out = append(out, summarizeRun(r))
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only extract or analyze runs")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print as JSON")
	return cmd
}

func runsShowCmd() *cobra.Command {
	var (
		jsonOut bool
		out     string
	)
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(modelFlags{}, true)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			w := cmd.OutOrStdout()

			switch run.Kind {
			case store.RunAnalyze:
				resp, err := run.Response()
				if err != nil {
					return err
				}
				if out != "" {
					if err := writeReportFile(out, func(f *os.File) error { return report.WriteArbitration(f, resp) }); err != nil {
						return err
					}
				}
				if jsonOut {
					return printJSON(w, resp)
				}
				renderArbitration(w, resp)
			default:
				res, err := run.Analysis()
				if err != nil {
					return err
				}
				if out != "" {
					if err := writeReportFile(out, func(f *os.File) error { return report.WriteExtraction(f, run.Text, run.Language, res) }); err != nil {
						return err
					}
				}
				if jsonOut {
					return printJSON(w, res)
				}
				renderAnalysis(w, "Extraction", res)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print as JSON")
	cmd.Flags().StringVar(&out, "report", "", "also write an HTML report to this path")
	return cmd
}
