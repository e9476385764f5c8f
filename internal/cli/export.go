package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/app"
	"github.com/headline-goat/variant-goat/internal/experiment"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <test>",
	Short: "Export raw event data",
	Long: `Export raw event data in CSV or JSON format.

Examples:
  variant-goat export hero_headline --format csv > hero-data.csv
  variant-goat export hero_headline --format json > hero-data.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	testID := args[0]

	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withApp(cmd, func(a *app.App) error {
		if _, ok := a.Catalog.Get(testID); !ok {
			return fmt.Errorf("test '%s' not found", testID)
		}

		events, err := a.Store.ListEvents(cmd.Context(), testID)
		if err != nil {
			return fmt.Errorf("failed to read events: %w", err)
		}
		if exportFormat == "csv" {
			return exportCSV(cmd.OutOrStdout(), events)
		}
		return exportJSON(cmd.OutOrStdout(), testID, events)
	})
}

func exportCSV(out io.Writer, events []experiment.Event) error {
	w := csv.NewWriter(out)

	header := []string{"timestamp", "event_id", "variant_id", "user_id", "session_id", "event_type", "event_value", "metadata"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, e := range events {
		value := ""
		if e.Value != nil {
			value = strconv.FormatFloat(*e.Value, 'f', -1, 64)
		}
		metadata := ""
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata: %w", err)
			}
			metadata = string(b)
		}

		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.ID,
			e.VariantID,
			e.UserID,
			e.SessionID,
			string(e.Type),
			value,
			metadata,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	TestID string             `json:"test_id"`
	Events []experiment.Event `json:"events"`
}

func exportJSON(out io.Writer, testID string, events []experiment.Event) error {
	export := jsonExport{TestID: testID, Events: events}
	if export.Events == nil {
		export.Events = []experiment.Event{}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
