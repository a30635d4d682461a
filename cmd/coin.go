package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/query"
)

var coinCmd = &cobra.Command{
	Use:   "coin <id> [id...]",
	Short: "Show full detail for one or more coins",
	Long: `Fetch the full record for each coin ID: market data, 24h range, supply,
all-time high and low, links and description.

IDs are CoinGecko identifiers (bitcoin, ethereum, solana), not symbols.
Use 'coinwatch search' to find an ID. Multiple IDs are fetched concurrently;
an unknown ID is reported as a warning and the rest are still shown.`,
	Example: `  coinwatch coin bitcoin
  coinwatch coin bitcoin ethereum solana
  coinwatch coin bitcoin --format json | jq '.data[0].links.homepage'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := normaliseIDs(args)
		if len(ids) == 0 {
			return fmt.Errorf("no coin IDs given")
		}

		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		details, warnings, hit, err := batchGet(cmd.Context(), deps, ids,
			func(id string) *query.Query[*model.CryptocurrencyDetail] { return deps.Market.Detail(id) })
		if err != nil {
			return err
		}

		result := newResult(model.KindCoinDetail, "coin "+strings.Join(ids, " "),
			details, len(details), start, hit, warnings)
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(coinCmd)
}
