package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/config"
)

var (
	configFile string
	v          = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "variant-goat",
	Short: "variant-goat - self-hosted A/B variant assignment and results",
	Long: `variant-goat assigns visitors to A/B test variants, records
assignment, conversion and engagement events, and summarizes results
per variant.

Running without a subcommand starts the server (same as 'variant-goat serve').`,
	SilenceUsage: true,
	RunE:         runServe, // Default action is to start server
}

// Execute runs the root command, cancelling its context on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml)")
	flags.String("db", "./vg.db", "database path (sqlite file or badger directory)")
	flags.String("driver", "sqlite", "store driver: memory, sqlite, redis or badger")
	flags.String("tests", "", "tests catalog (yaml); built-in tests when empty")
	flags.IntP("port", "p", 8080, "port to listen on")
	flags.String("log-level", "info", "log level")

	for key, flag := range map[string]string{
		"db":        "db",
		"driver":    "driver",
		"tests":     "tests",
		"port":      "port",
		"log_level": "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
