// Package cmd implements the coinwatch CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/coinwatch/internal/app"
	"github.com/derickschaefer/coinwatch/internal/config"
	"github.com/derickschaefer/coinwatch/internal/logger"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	APIKey    string
	Format    string
	Out       string
	NoCache   bool
	Refresh   bool
	Timeout   string
	Rate      float64
	Quiet     bool
	Verbose   bool
	Debug     bool
	LogFormat string
}

// rootCmd is the base command. Running `coinwatch` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "coinwatch",
	Short: "coinwatch — cryptocurrency market data from CoinGecko",
	Long: `coinwatch is a command-line tool and local JSON service for exploring
cryptocurrency market data from the CoinGecko public API.

Data provided by CoinGecko; https://www.coingecko.com/

The public API works without a key. A free demo key raises the rate limit:
https://www.coingecko.com/en/api

Quick start:
  coinwatch top                 # top 20 coins by market cap
  coinwatch search sol          # match by name or symbol
  coinwatch coin bitcoin        # full detail for one coin
  coinwatch chart plot bitcoin  # 7-day price chart`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main. SIGINT and SIGTERM cancel the
// command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves config and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalFlags.APIKey)
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.NoCache = globalFlags.NoCache
	cfg.Refresh = globalFlags.Refresh
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug
	cfg.LogFormat = globalFlags.LogFormat

	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.Timeout != "" {
		d, err := time.ParseDuration(globalFlags.Timeout)
		if err != nil {
			return nil, fmt.Errorf("--timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if globalFlags.Rate > 0 {
		cfg.Rate = globalFlags.Rate
	}
	return cfg, cfg.Validate()
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE; callers defer deps.Close().
func buildDeps(ctx context.Context) (*app.Deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(os.Stderr, logger.Level(cfg.Debug, cfg.Quiet), cfg.LogFormat)
	return app.New(ctx, cfg, log), nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.APIKey, "api-key", "",
		"CoinGecko demo API key (overrides env COINGECKO_API_KEY and config.json)")
	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.BoolVar(&globalFlags.NoCache, "no-cache", false,
		"do not read or write the persistent cache")
	pf.BoolVar(&globalFlags.Refresh, "refresh", false,
		"force re-fetch even when cached data is fresh")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"HTTP request timeout (e.g. 10s, 1m)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max API requests per second (default: 0.5)")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show cache/timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log HTTP requests and cache activity (API key redacted)")
	pf.StringVar(&globalFlags.LogFormat, "log-format", "text",
		"log format on stderr: text|json")
}
