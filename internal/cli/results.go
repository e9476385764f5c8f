package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/app"
	"github.com/headline-goat/variant-goat/internal/experiment"
)

// confidenceThreshold is the z-test confidence at which a leader is called.
const confidenceThreshold = 0.95

var errAborted = errors.New("aborted")

var resultsCmd = &cobra.Command{
	Use:   "results [test]",
	Short: "Show detailed results for a test",
	Long: `Show per-variant users, conversions, revenue and significance.

Without an argument, pick the test interactively.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app.App) error {
		var testID string
		if len(args) == 1 {
			testID = args[0]
		} else {
			var err error
			testID, err = promptTest(a.Catalog)
			if errors.Is(err, errAborted) {
				return nil
			}
			if err != nil {
				return err
			}
		}

		test, ok := a.Catalog.Get(testID)
		if !ok {
			return fmt.Errorf("test '%s' not found", testID)
		}

		summaries, err := a.Aggregator.SummarizeContext(cmd.Context(), testID)
		if err != nil {
			return err
		}
		printResults(cmd.OutOrStdout(), test, summaries)
		return nil
	})
}

func promptTest(catalog *experiment.Catalog) (string, error) {
	tests := catalog.Tests()
	if len(tests) == 0 {
		return "", fmt.Errorf("no tests configured")
	}

	prompt := promptui.Select{
		Label: "Test",
		Items: tests,
		Size:  10,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}",
			Active:   "> {{ .ID | cyan }} {{ .Name | faint }}",
			Inactive: "  {{ .ID }} {{ .Name | faint }}",
			Selected: "{{ .ID }}",
		},
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return "", errAborted
		}
		return "", fmt.Errorf("failed to select test: %w", err)
	}
	return tests[idx].ID, nil
}

func printResults(out io.Writer, test *experiment.Test, summaries []experiment.ResultSummary) {
	fmt.Fprintf(out, "TEST: %s\n", test.ID)
	if test.Name != "" {
		fmt.Fprintf(out, "NAME: %s\n", test.Name)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "VARIANT           USERS    CONVERSIONS  RATE      REVENUE     AOV        SIG  95% CI")
	fmt.Fprintln(out, strings.Repeat("─", 96))

	for i, s := range summaries {
		indicator := ""
		if i == 0 && len(summaries) > 1 && s.Conversions > 0 {
			indicator = " ← LEADING"
		}

		ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", s.CILower*100, s.CIUpper*100)
		if s.TotalUsers == 0 {
			ciStr = "N/A"
		}

		// Truncate name if too long
		name := s.VariantID
		if len(name) > 16 {
			name = name[:13] + "..."
		}

		fmt.Fprintf(out, "%-16s  %-7s  %-11s  %-8s  %-10.2f  %-9.2f  %-3.0f  %s%s\n",
			name,
			formatNumber(s.TotalUsers),
			formatNumber(s.Conversions),
			formatPercent(s.ConversionRate),
			s.Revenue,
			s.AverageOrderValue,
			s.StatisticalSignificance,
			ciStr,
			indicator,
		)
	}

	fmt.Fprintln(out)

	if len(summaries) < 2 {
		return
	}
	leader := summaries[0]
	confPct := leader.Confidence * 100
	switch {
	case leader.VariantID == experiment.ControlVariantID || leader.Conversions == 0:
		fmt.Fprintln(out, "Statistical significance: Not enough data to determine a winner")
	case leader.Confidence >= confidenceThreshold:
		fmt.Fprintf(out, "Statistical significance: %.1f%% confident \"%s\" beats control\n", confPct, leader.VariantID)
	case confPct >= 90:
		fmt.Fprintf(out, "Statistical significance: %.1f%% confident \"%s\" beats control (not yet significant)\n", confPct, leader.VariantID)
	default:
		fmt.Fprintln(out, "Statistical significance: Not enough data to determine a winner")
	}
}
