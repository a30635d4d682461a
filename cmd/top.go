package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/coinwatch/internal/model"
)

var topLimit int

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "List the top cryptocurrencies by market cap",
	Long: `List the top cryptocurrencies by market capitalisation, in provider order.

The listing is cached for the session and persisted to the local store, so
repeated calls within a short window reuse the last result. Use --refresh
to force a new fetch.

Table columns adapt to the terminal width: narrow terminals show rank,
symbol, price and 24h change; wide terminals add name, volume, supply and
the 24h range. Machine formats (csv, tsv, json, jsonl) always carry every
field.`,
	Example: `  coinwatch top
  coinwatch top --limit 50
  coinwatch top --format csv --out top.csv
  coinwatch top --refresh --verbose`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		limit := topLimit
		if limit <= 0 {
			limit = deps.Config.Limit
		}
		if limit > 250 {
			return fmt.Errorf("--limit must be at most 250")
		}

		start := time.Now()
		v, hit := getView(cmd.Context(), deps, deps.Market.Top(limit))
		coins, warnings, err := fromView("top", v)
		if err != nil {
			return err
		}
		for _, c := range coins {
			if err := c.Validate(); err != nil {
				deps.Logger.Warn("provider data inconsistency", "err", err)
			}
		}

		result := newResult(model.KindCoins, fmt.Sprintf("top --limit %d", limit),
			coins, len(coins), start, hit, warnings)
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(topCmd)
	topCmd.Flags().IntVar(&topLimit, "limit", 0, "number of coins (default: config limit, 20)")
}
