package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/headline-goat/variant-goat/internal/app"
	"github.com/headline-goat/variant-goat/internal/report"
	"github.com/headline-goat/variant-goat/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the variant-goat HTTP server.

The server provides:
  - Assignment endpoint (POST /api/assign)
  - Beacon endpoint for conversions and engagement (POST /b)
  - Results per test, protected by a token (GET /api/results/<test>)
  - Health check and Prometheus metrics

Example:
  variant-goat serve --port 8080 --tests tests.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app.App) error {
		srv := server.New(a, a.Config.Port,
			server.WithToken(a.Config.Token),
			server.WithTokenFile(tokenFilePath(a.Config.DBPath)),
		)
		rep := report.New(a.Catalog, a.Aggregator, a.Config.ReportInterval, a.Logger)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out)
		fmt.Fprintf(out, "variant-goat running on http://localhost:%d\n", a.Config.Port)
		fmt.Fprintf(out, "Results: http://localhost:%d/api/results/<test>?token=%s\n", a.Config.Port, srv.Token())
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Press Ctrl+C to stop")

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return srv.Run(ctx)
		})
		g.Go(func() error {
			return rep.Run(ctx)
		})
		return g.Wait()
	})
}
