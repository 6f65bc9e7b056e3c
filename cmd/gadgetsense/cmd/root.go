// Package cmd implements the gadgetsense command line tool.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gadget-sense/gadget-sense/internal/logging"
	"github.com/gadget-sense/gadget-sense/internal/validate"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	apiURL  string
	timeout time.Duration
	retries int
	verbose bool
}

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "gadgetsense",
		Short:         "gadgetsense checks laptop product URLs and asks the analysis service for a verdict.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			logging.Setup(logging.Options{
				Level:  level,
				Env:    "development",
				Stdout: cmd.ErrOrStderr(),
			})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api", "", "analysis service base URL (default $ANALYSIS_API_URL)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "overall timeout including retries (default $ANALYSIS_TIMEOUT)")
	flags.IntVar(&opts.retries, "retries", 0, "retries after the first attempt (default $ANALYSIS_MAX_RETRIES)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log retries and requests to stderr")

	root.AddCommand(
		newValidateCmd(),
		newAnalyzeCmd(opts),
		newPurposesCmd(),
		newRetailersCmd(),
	)
	return root
}

// ExecuteContext runs the CLI and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func newPurposesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purposes",
		Short: "Lists the purpose tags accepted by analyze.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Purpose", "Label", "Description"})
			for _, p := range validate.Default().Purposes() {
				t.AppendRow(table.Row{p.Value, p.Label, p.Description})
			}
			t.Render()
		},
	}
}

func newRetailersCmd() *cobra.Command {
	var marketplace string

	c := &cobra.Command{
		Use:   "retailers",
		Short: "Lists the retailer domains product URLs may point at.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"#", "Domain"})
			for i, domain := range validate.Default().Domains() {
				t.AppendRow(table.Row{i + 1, domain})
			}
			t.Render()

			fmt.Fprintf(cmd.OutOrStdout(), "Example: %s\n", validate.ExampleURL(marketplace))
		},
	}
	c.Flags().StringVar(&marketplace, "marketplace", "amazon", "marketplace to show an example URL for")
	return c
}
