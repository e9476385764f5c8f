package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/app"
	"github.com/headline-goat/variant-goat/internal/config"
	"github.com/headline-goat/variant-goat/internal/logging"
)

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	return config.Load(v, configFile)
}

// withApp builds the service graph, executes the function, and handles cleanup.
func withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

// tokenFilePath keeps the token alongside the database.
func tokenFilePath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), ".vg-token")
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

// formatPercent formats a value that is already a percentage.
func formatPercent(p float64) string {
	if p == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", p)
}
