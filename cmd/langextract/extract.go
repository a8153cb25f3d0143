package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/hurttlocker/langextract/internal/extract"
	"github.com/hurttlocker/langextract/internal/ingest"
	"github.com/hurttlocker/langextract/internal/orchestrator"
	"github.com/hurttlocker/langextract/internal/report"
	"github.com/hurttlocker/langextract/internal/store"
	"github.com/spf13/cobra"
)

// outputFlags control how a result is shown and kept.
type outputFlags struct {
	json   bool
	report string
	save   bool
}

func extractCmd() *cobra.Command {
	var (
		in       inputFlags
		out      outputFlags
		language string
		domain   string
		schema   string
		model    string
		examples string
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract entities and relationships with a single model",
		Example: `  langextract extract --text "Ali went to the shop." --language en
  langextract extract --file statement.docx --domain police --report out.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(modelFlags{}, out.save)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			text, err := readInput(ctx, in, a.ingest, cmd.InOrStdin())
			if err != nil {
				return err
			}
			shots, err := loadExamples(examples)
			if err != nil {
				return err
			}
			lang := analysis.NormalizeLanguage(orDefault(language, a.orch.Defaults().Language))
			dom := orDefault(domain, a.orch.Defaults().Domain)

			res, err := a.orch.Extract(ctx, orchestrator.ExtractRequest{
				Text:     text,
				Language: lang,
				Domain:   dom,
				Schema:   schema,
				Model:    model,
				Examples: shots,
			})
			if err != nil {
				return err
			}

			if out.save {
				if err := saveExtract(ctx, a.store, text, lang, analysis.NormalizeDomain(dom), res, cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			if out.report != "" {
				if err := writeReportFile(out.report, func(f *os.File) error {
					return report.WriteExtraction(f, text, lang, res)
				}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", out.report)
			}
			if out.json {
				return printJSON(cmd.OutOrStdout(), res)
			}
			renderAnalysis(cmd.OutOrStdout(), "Extraction", res)
			return nil
		},
	}
	addInputFlags(cmd, &in)
	addOutputFlags(cmd, &out)
	cmd.Flags().StringVar(&language, "language", "", "language code of the text (default fa)")
	cmd.Flags().StringVar(&domain, "domain", "", "analysis domain: general, police or legal")
	cmd.Flags().StringVar(&schema, "schema", "", "extraction schema name")
	cmd.Flags().StringVar(&model, "model", "", "extraction model (default llm.default_model)")
	cmd.Flags().StringVar(&examples, "examples", "", "JSON file of few-shot examples")
	return cmd
}

func addInputFlags(cmd *cobra.Command, in *inputFlags) {
	cmd.Flags().StringVar(&in.text, "text", "", "text to analyze")
	cmd.Flags().StringVarP(&in.file, "file", "f", "", "document to analyze ("+strings.Join(ingest.Extensions(), ", ")+")")
}

func addOutputFlags(cmd *cobra.Command, out *outputFlags) {
	cmd.Flags().BoolVar(&out.json, "json", false, "print the result as JSON")
	cmd.Flags().StringVar(&out.report, "report", "", "write an HTML report to this path")
	cmd.Flags().BoolVar(&out.save, "save", false, "store the run in the database")
}

// loadExamples reads a JSON array of few-shot examples. An empty path means
// the built-in demonstration.
func loadExamples(path string) ([]extract.Example, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading examples: %w", err)
	}
	var out []extract.Example
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing examples %s: %w", path, err)
	}
	return out, nil
}

func saveExtract(ctx context.Context, st store.Store, text, lang, domain string, res *analysis.ModelAnalysis, w io.Writer) error {
	run, err := store.NewExtractRun(text, lang, domain, res)
	if err != nil {
		return err
	}
	id, err := st.SaveRun(ctx, run)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	fmt.Fprintf(w, "Saved run %s\n", id)
	return nil
}

func writeReportFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	return f.Close()
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
