package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/coinwatch/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve market data as a local JSON API",
	Long: `Run an HTTP server exposing the same cached market queries as the CLI.

Routes:
  GET  /api/health                  liveness, uptime and version
  GET  /api/coins?limit=N           top N by market cap
  GET  /api/search?q=QUERY          name/symbol search over the top 100
  GET  /api/coins/{id}              full coin detail
  GET  /api/coins/{id}/chart?days=N daily history
  POST /api/refresh?limit=N         force-refetch the top listing
  GET  /api/cache                   cache entries and their state

Each data response carries {data, is_loading, is_fetching, error, updated_at}.
When the provider fails but cached data exists, the status is 200 and the
error is reported alongside the data. Without data the status follows the
error: 429 rate limited, 404 not found, 504 timeout, 502 otherwise.

Concurrent requests for the same data share one upstream call.`,
	Example: `  coinwatch serve
  coinwatch serve --addr :9000
  curl -s localhost:8080/api/coins?limit=5 | jq '.data[].id'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		addr := serveAddr
		if addr == "" {
			addr = deps.Config.ListenAddr
		}
		srv := server.New(deps.Market, server.Options{
			Addr:        addr,
			Limit:       deps.Config.Limit,
			Logger:      deps.Logger,
			Version:     Version,
			Environment: os.Getenv("COINWATCH_ENV"),
		})
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Serving on http://%s (Ctrl-C to stop)\n", addr)
		}
		return srv.ListenAndServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: config listen_addr, 127.0.0.1:8080)")
}
