package cmd

import (
	"fmt"

	"github.com/gadget-sense/gadget-sense/internal/validate"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <url>...",
		Short: "Checks product URLs locally without contacting the analysis service.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := validate.Default()

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"URL", "Valid", "Reason", "Message"})

			rejected := 0
			for _, raw := range args {
				outcome := v.Validate(raw)
				valid := "yes"
				if !outcome.Valid() {
					valid = "no"
					rejected++
				}
				t.AppendRow(table.Row{
					validate.DisplayURL(v.Normalize(raw)),
					valid,
					outcome.Reason.String(),
					outcome.Message,
				})
			}
			t.Render()

			if rejected > 0 {
				return fmt.Errorf("%d of %d URLs rejected", rejected, len(args))
			}
			return nil
		},
	}
}
