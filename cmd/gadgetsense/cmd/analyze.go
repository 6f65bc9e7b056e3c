package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gadget-sense/gadget-sense/internal/analysis"
	"github.com/gadget-sense/gadget-sense/internal/config"
	"github.com/gadget-sense/gadget-sense/internal/validate"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// findingSections are the report lists worth printing, in display order.
var findingSections = []struct {
	key   string
	title string
}{
	{"redFlags", "Red flags"},
	{"warnings", "Warnings"},
	{"goodIndicators", "Good signs"},
}

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var (
		purpose string
		asJSON  bool
	)

	c := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Asks the analysis service whether a laptop suits a purpose.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := validate.Default()
			if err := v.Validate(args[0]).Err(); err != nil {
				return err
			}
			if !v.IsValidPurpose(purpose) {
				return fmt.Errorf("unknown purpose %q, run 'gadgetsense purposes' for the list", purpose)
			}

			clientOpts, err := clientOptions(cmd, opts)
			if err != nil {
				return err
			}
			client := analysis.New(clientOpts...)

			report, err := client.AnalyzeWithRetry(cmd.Context(), v.Normalize(args[0]), purpose)
			if err != nil {
				var aerr *analysis.Error
				if errors.As(err, &aerr) && aerr.Kind == analysis.KindUnsupportedRetailer {
					renderUnsupported(cmd.OutOrStdout(), aerr)
				}
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			renderReport(cmd.OutOrStdout(), report, v.PurposeLabel(purpose))
			return nil
		},
	}

	c.Flags().StringVarP(&purpose, "purpose", "p", "", "primary use case, see 'gadgetsense purposes'")
	c.Flags().BoolVar(&asJSON, "json", false, "print the raw report as JSON")
	_ = c.MarkFlagRequired("purpose")
	return c
}

// clientOptions layers explicitly set flags over the environment configuration.
func clientOptions(cmd *cobra.Command, opts *globalOptions) ([]analysis.Option, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("api") {
		cfg.AnalysisURL = opts.apiURL
	}
	if flags.Changed("timeout") {
		cfg.AnalysisTimeout = opts.timeout
	}
	if flags.Changed("retries") {
		cfg.MaxRetries = opts.retries
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg.ClientOptions(), nil
}

func renderReport(w io.Writer, report analysis.Report, purposeLabel string) {
	t := newTable(w)
	t.SetTitle(report.Verdict().Label())

	if title := report.ProductTitle(); title != "" {
		t.AppendRow(table.Row{"Product", title})
	}
	if marketplace := report.Marketplace(); marketplace != "" {
		t.AppendRow(table.Row{"Marketplace", marketplace})
	}
	t.AppendRow(table.Row{"Purpose", purposeLabel})
	if confidence, ok := report.Confidence(); ok {
		t.AppendRow(table.Row{"Confidence", fmt.Sprintf("%.0f%%", confidence)})
	}

	for _, section := range findingSections {
		findings := report.Findings(section.key)
		if len(findings) == 0 {
			continue
		}
		t.AppendSeparator()
		t.AppendRow(table.Row{section.title, strings.Join(findings, "\n")})
	}
	t.Render()
}

func renderUnsupported(w io.Writer, err *analysis.Error) {
	fmt.Fprintln(w, err.Message)
	if len(err.SupportedRetailers) == 0 {
		return
	}

	t := newTable(w)
	t.SetTitle("Try one of these retailers instead")
	t.AppendHeader(table.Row{"Retailer", "URL"})
	for _, r := range err.SupportedRetailers {
		t.AppendRow(table.Row{r.Name, r.URL})
	}
	t.Render()
}
