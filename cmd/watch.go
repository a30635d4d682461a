package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/coinwatch/internal/app"
	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/pipeline"
	"github.com/derickschaefer/coinwatch/internal/query"
	"github.com/derickschaefer/coinwatch/internal/refresh"
	"github.com/derickschaefer/coinwatch/internal/render"
	"github.com/derickschaefer/coinwatch/internal/viewport"
)

var (
	watchInterval   time.Duration
	watchLimit      int
	watchIterations int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live top-coins table, refreshed on an interval",
	Long: `Redraw the top-coins table every --interval. Press Enter to refresh
immediately; Ctrl-C exits.

A busy indicator on stderr shows while a fetch is in flight. A manual
refresh keeps it visible for at least half a second so the refresh is
noticeable even when the response is instant. If a refresh fails, the last
good table stays on screen with a warning.

The table re-reads $COLUMNS on every tick and switches layout when the
terminal crosses a breakpoint.`,
	Example: `  coinwatch watch
  coinwatch watch --interval 30s --limit 10
  coinwatch watch --iterations 3 --quiet`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchInterval < 5*time.Second {
			return fmt.Errorf("--interval must be at least 5s (the public API allows about 30 requests a minute)")
		}
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		limit := watchLimit
		if limit <= 0 {
			limit = deps.Config.Limit
		}
		return runWatch(cmd.Context(), deps, watchOptions{
			Limit:      limit,
			Interval:   watchInterval,
			Iterations: watchIterations,
			Out:        cmd.OutOrStdout(),
			Err:        cmd.ErrOrStderr(),
			In:         cmd.InOrStdin(),
			Clear:      pipeline.IsTTY(),
			Columns:    viewport.TerminalColumns,
		})
	},
}

type watchOptions struct {
	Limit      int
	Interval   time.Duration
	Iterations int // stop after this many interval refreshes; 0 runs until cancelled
	Out, Err   io.Writer
	In         io.Reader
	Clear      bool
	Columns    func() int
}

func runWatch(ctx context.Context, deps *app.Deps, opts watchOptions) error {
	top := deps.Market.Top(opts.Limit)

	progress := render.NewProgressLine(opts.Err, deps.Config.Quiet)
	orch := refresh.New(progress, refresh.Options{Logger: deps.Logger})
	unsubscribe := top.Subscribe(func(v query.View[[]model.CryptocurrencySummary]) {
		orch.Observe(v.IsLoading, v.IsFetching)
	})
	defer unsubscribe()

	tracker := viewport.NewTracker(opts.Columns()*viewport.PixelsPerColumn, viewport.DetectTouch(os.Getenv))
	relayout := make(chan struct{}, 1)
	unsubscribeVP := tracker.Subscribe(func(s viewport.State) {
		deps.Logger.Debug("viewport changed", "width", s.Width, "breakpoint", s.Breakpoint.String())
		select {
		case relayout <- struct{}{}:
		default:
		}
	})
	defer unsubscribeVP()

	enter := make(chan struct{}, 1)
	if opts.In != nil {
		go func() {
			sc := bufio.NewScanner(opts.In)
			for sc.Scan() {
				select {
				case enter <- struct{}{}:
				case <-ctx.Done():
					return
				default:
				}
			}
		}()
	}

	draw := func(v query.View[[]model.CryptocurrencySummary]) {
		if opts.Clear {
			fmt.Fprint(opts.Out, "\033[H\033[2J")
		}
		coins, warnings, err := fromView("top", v)
		if err != nil {
			fmt.Fprintln(opts.Err, "Error:", err)
			return
		}
		stamp := v.UpdatedAt.Local().Format("15:04:05")
		fmt.Fprintf(opts.Out, "Top %d by market cap • updated %s • Enter to refresh\n\n", len(coins), stamp)
		result := newResult(model.KindCoins, "watch", coins, len(coins), time.Now(), false, warnings)
		if err := render.Render(opts.Out, result, render.FormatTable, tracker.State().Breakpoint); err != nil {
			fmt.Fprintln(opts.Err, "Error:", err)
		}
		if !deps.Config.Quiet {
			render.PrintFooter(opts.Err, result, false)
		}
	}

	draw(app.Get(ctx, deps, top))

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	ticks := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-relayout:
			draw(top.View())
		case <-enter:
			err := orch.Refresh(ctx, func(ctx context.Context) error {
				return top.Refetch(ctx).Err
			})
			if err != nil {
				deps.Logger.Warn("manual refresh failed", "err", err)
			}
			draw(top.View())
		case <-ticker.C:
			tracker.Resize(opts.Columns() * viewport.PixelsPerColumn)
			draw(top.Get(ctx))
			// the redraw above already used the new layout
			select {
			case <-relayout:
			default:
			}
			ticks++
			if opts.Iterations > 0 && ticks >= opts.Iterations {
				return nil
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Minute, "time between automatic refreshes")
	watchCmd.Flags().IntVar(&watchLimit, "limit", 0, "number of coins (default: config limit, 20)")
	watchCmd.Flags().IntVar(&watchIterations, "iterations", 0, "exit after N automatic refreshes (0 = run until interrupted)")
}
