package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/coinwatch/internal/app"
	"github.com/derickschaefer/coinwatch/internal/debounce"
	"github.com/derickschaefer/coinwatch/internal/model"
)

var searchInteractive bool

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find cryptocurrencies by name or symbol",
	Long: `Search the top 100 coins by market cap for names or symbols containing the
query (case-insensitive). At most 20 matches are returned, in market-cap
order. A blank query returns nothing and makes no request.

With --interactive, each line read from stdin is treated as the current
contents of a search box. A search runs only after input has been quiet for
300ms, so rapid typing (or a fast pipe) costs one request, not one per line.`,
	Example: `  coinwatch search sol
  coinwatch search "usd" --format json
  coinwatch search --interactive`,
	Args: func(cmd *cobra.Command, args []string) error {
		if searchInteractive {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		if searchInteractive {
			return runInteractiveSearch(cmd.Context(), cmd.InOrStdin(), cmd.ErrOrStderr(), debounce.SearchDelay, func(ctx context.Context, q string) error {
				return runSearch(ctx, cmd, deps, q)
			})
		}
		return runSearch(cmd.Context(), cmd, deps, args[0])
	},
}

func runSearch(ctx context.Context, cmd *cobra.Command, deps *app.Deps, q string) error {
	start := time.Now()
	qry := deps.Market.Search(q)

	sr := &model.SearchResult{Query: q, Coins: []model.CryptocurrencySummary{}}
	var warnings []string
	hit := true
	if qry.Enabled() {
		v, cached := getView(ctx, deps, qry)
		coins, warns, err := fromView("search", v)
		if err != nil {
			return err
		}
		sr.Coins, warnings, hit = coins, warns, cached
	}

	result := newResult(model.KindSearchResult, fmt.Sprintf("search %q", q),
		sr, len(sr.Coins), start, hit, warnings)
	return emit(cmd, deps, result)
}

// runInteractiveSearch feeds stdin lines through a debouncer and runs search
// for each value that settles. Searches run one at a time on the calling
// goroutine; a failed search is reported and the loop continues. At EOF the
// pending value, if any, is searched immediately.
func runInteractiveSearch(ctx context.Context, in io.Reader, errOut io.Writer, delay time.Duration, search func(context.Context, string) error) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimRight(sc.Text(), "\r"):
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	settled := make(chan string, 1)
	d := debounce.New(delay, func(q string) {
		// Keep only the newest settled value.
		select {
		case <-settled:
		default:
		}
		settled <- q
	})
	defer d.Stop()

	var last string
	run := func(q string) {
		if q == last {
			return
		}
		last = q
		if err := search(ctx, q); err != nil {
			fmt.Fprintln(errOut, "Error:", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q := <-settled:
			run(q)
		case line, ok := <-lines:
			if !ok {
				d.Flush()
				select {
				case q := <-settled:
					run(q)
				default:
				}
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			d.Set(line)
		}
	}
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().BoolVarP(&searchInteractive, "interactive", "i", false,
		"read queries line by line from stdin, debounced")
}
