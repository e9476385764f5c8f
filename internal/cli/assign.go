package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/app"
)

var assignSession string

var assignCmd = &cobra.Command{
	Use:   "assign <test> <user>",
	Short: "Assign a user to a variant",
	Long: `Return the user's variant for a test, drawing and recording a new
assignment when the user has none.

Example:
  variant-goat assign hero_headline user-123`,
	Args: cobra.ExactArgs(2),
	RunE: runAssign,
}

func init() {
	assignCmd.Flags().StringVarP(&assignSession, "session", "s", "", "session ID recorded on the assignment event")
	rootCmd.AddCommand(assignCmd)
}

func runAssign(cmd *cobra.Command, args []string) error {
	testID, userID := args[0], args[1]

	return withApp(cmd, func(a *app.App) error {
		variant := a.Assigner.AssignSession(cmd.Context(), testID, userID, assignSession)
		fmt.Fprintln(cmd.OutOrStdout(), variant)
		return nil
	})
}
