package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show results URL with access token",
	Long: `Show the results URL with the running server's access token.

Use this when you've scrolled past the startup message or need to
share a results link.

Example:
  variant-goat token`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(tokenFilePath(cfg.DBPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no server running. Start with: variant-goat")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: variant-goat")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Results: http://localhost:%d/api/results/<test>?token=%s\n", cfg.Port, token)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Tip: run 'variant-goat token' anytime.")
	return nil
}
