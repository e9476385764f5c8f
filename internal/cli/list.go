package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/app"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tests",
	Long:  `List the configured A/B tests with their variants and traffic so far.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app.App) error {
		out := cmd.OutOrStdout()

		tests := a.Catalog.Tests()
		if len(tests) == 0 {
			fmt.Fprintln(out, "No tests configured.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tVARIANTS\tSPLIT\tUSERS\tEVENTS\tCONVERSIONS")

		ctx := cmd.Context()
		for _, test := range tests {
			events, err := a.Store.ListEvents(ctx, test.ID)
			if err != nil {
				return fmt.Errorf("failed to read events for %s: %w", test.ID, err)
			}
			summaries, err := a.Aggregator.SummarizeContext(ctx, test.ID)
			if err != nil {
				return err
			}

			users, conversions := 0, 0
			for _, s := range summaries {
				users += s.TotalUsers
				conversions += s.Conversions
			}

			split := fmt.Sprintf("%g%%", test.TotalSplit())
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
				test.ID,
				test.Name,
				len(test.Variants),
				split,
				formatNumber(users),
				formatNumber(len(events)),
				formatNumber(conversions),
			)
		}

		return w.Flush()
	})
}
