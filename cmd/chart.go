package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/coinwatch/internal/analyze"
	"github.com/derickschaefer/coinwatch/internal/app"
	"github.com/derickschaefer/coinwatch/internal/chart"
	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/pipeline"
	"github.com/derickschaefer/coinwatch/internal/query"
)

var chartDays int

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Daily price history: fetch, plot, bar, stats, trend",
	Long: `Chart commands work on daily history (price, volume, market cap) for a coin.

Every subcommand accepts coin IDs and fetches --days of history. plot, bar,
stats and trend also read JSONL chart points from stdin when no ID is given,
so history can be saved once and re-rendered offline.

Pipeline examples:
  coinwatch chart get bitcoin --days 90 --format jsonl > btc.jsonl
  coinwatch chart plot < btc.jsonl
  coinwatch chart get ethereum --days 30 --format jsonl | coinwatch chart bar --metric change`,
}

// ─── chart get ───────────────────────────────────────────────────────────────

var chartGetCmd = &cobra.Command{
	Use:   "get <id> [id...]",
	Short: "Fetch daily history for one or more coins",
	Example: `  coinwatch chart get bitcoin
  coinwatch chart get bitcoin ethereum --days 30 --format csv
  coinwatch chart get solana --days 90 --format jsonl > sol.jsonl`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		ids := normaliseIDs(args)
		start := time.Now()
		series, warnings, hit, err := fetchSeries(cmd.Context(), deps, ids)
		if err != nil {
			return err
		}

		var data any = series
		items := 0
		for _, s := range series {
			items += len(s.Points)
		}
		if len(series) == 1 {
			data = series[0]
		}
		result := newResult(model.KindChartSeries,
			fmt.Sprintf("chart get %s --days %d", strings.Join(ids, " "), chartDays),
			data, items, start, hit, warnings)
		return emit(cmd, deps, result)
	},
}

// ─── chart plot ──────────────────────────────────────────────────────────────

var (
	chartPlotWidth  int
	chartPlotHeight int
	chartPlotTitle  string
	chartPlotMetric string
)

var chartPlotCmd = &cobra.Command{
	Use:   "plot [id]",
	Short: "Multi-line ASCII chart with labeled axes",
	Long: `Renders a multi-line chart with Y-axis tick labels and X-axis date labels.

Long histories are averaged into one column per character cell. Use --metric
to chart volume, market cap or the daily percent change instead of price.`,
	Example: `  coinwatch chart plot bitcoin
  coinwatch chart plot ethereum --days 90 --height 16
  coinwatch chart plot solana --metric volume
  coinwatch chart plot < btc.jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metric, err := chart.ParseMetric(chartPlotMetric)
		if err != nil {
			return err
		}
		s, err := chartInput(cmd, args)
		if err != nil {
			return err
		}
		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		return chart.Plot(w, s, chart.PlotOptions{
			Width:  chartPlotWidth,
			Height: chartPlotHeight,
			Title:  chartPlotTitle,
			Metric: metric,
		})
	},
}

// ─── chart bar ───────────────────────────────────────────────────────────────

var (
	chartBarWidth   int
	chartBarMaxBars int
	chartBarMetric  string
)

var chartBarCmd = &cobra.Command{
	Use:   "bar [id]",
	Short: "Horizontal bar chart, one bar per day",
	Long: `Renders a horizontal bar chart with one labeled bar per day.

Defaults to trading volume. --metric change draws day-over-day percent
changes; negative days extend left from a zero baseline. Best suited for
windows of a month or less; use --max-bars to keep only the latest days.`,
	Example: `  coinwatch chart bar bitcoin
  coinwatch chart bar ethereum --metric change --days 14
  coinwatch chart bar solana --days 90 --max-bars 20`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metric, err := chart.ParseMetric(chartBarMetric)
		if err != nil {
			return err
		}
		s, err := chartInput(cmd, args)
		if err != nil {
			return err
		}
		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		return chart.Bar(w, s, chart.BarOptions{
			Width:   chartBarWidth,
			MaxBars: chartBarMaxBars,
			Metric:  metric,
		})
	},
}

// ─── chart stats ─────────────────────────────────────────────────────────────

var chartStatsCmd = &cobra.Command{
	Use:   "stats [id...]",
	Short: "Descriptive statistics over price history",
	Long: `Summarise each coin's price over the window: range, mean, spread,
quartiles, change, daily-return volatility and maximum drawdown.`,
	Example: `  coinwatch chart stats bitcoin ethereum --days 30
  coinwatch chart stats bitcoin --days 365 --format json
  coinwatch chart stats < btc.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		series, warnings, hit, err := seriesArgsOrStdin(cmd.Context(), deps, args)
		if err != nil {
			return err
		}
		sums := make([]analyze.Summary, 0, len(series))
		for _, s := range series {
			sums = append(sums, analyze.Summarize(s))
		}
		result := newResult(model.KindChartSummary, "chart stats "+strings.Join(args, " "),
			sums, len(sums), start, hit, warnings)
		return emit(cmd, deps, result)
	},
}

// ─── chart trend ─────────────────────────────────────────────────────────────

var chartTrendMethod string

var chartTrendCmd = &cobra.Command{
	Use:   "trend [id...]",
	Short: "Fit a trend line to price history",
	Long: `Fit a trend line to daily price. linear is ordinary least squares;
theil-sen takes the median pairwise slope and resists single-day spikes.

Direction is up or down when the slope exceeds 0.05% of the mean price per
day, flat otherwise.`,
	Example: `  coinwatch chart trend bitcoin --days 90
  coinwatch chart trend bitcoin ethereum --method theil-sen`,
	RunE: func(cmd *cobra.Command, args []string) error {
		method := analyze.TrendMethod(strings.ToLower(chartTrendMethod))
		if method != analyze.TrendLinear && method != analyze.TrendTheilSen {
			return fmt.Errorf("unknown --method %q (want linear or theil-sen)", chartTrendMethod)
		}

		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		series, warnings, hit, err := seriesArgsOrStdin(cmd.Context(), deps, args)
		if err != nil {
			return err
		}
		tbl := &model.Table{Headers: []string{"COIN", "METHOD", "DIRECTION", "SLOPE/DAY", "SLOPE %/DAY", "R2"}}
		for _, s := range series {
			tr, err := analyze.Trend(s, method)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v", s.ID, err))
				continue
			}
			tbl.Rows = append(tbl.Rows, []string{
				tr.ID, string(tr.Method), tr.Direction,
				fmt.Sprintf("%.6g", tr.Slope),
				fmt.Sprintf("%+.3f", tr.SlopePctDay),
				fmt.Sprintf("%.3f", tr.R2),
			})
		}
		result := newResult(model.KindTable, "chart trend "+strings.Join(args, " "),
			tbl, len(tbl.Rows), start, hit, warnings)
		return emit(cmd, deps, result)
	},
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// fetchSeries resolves chart queries for ids at --days.
func fetchSeries(ctx context.Context, deps *app.Deps, ids []string) ([]*model.ChartSeries, []string, bool, error) {
	return batchGet(ctx, deps, ids, func(id string) *query.Query[*model.ChartSeries] {
		return deps.Market.Chart(id, chartDays)
	})
}

// seriesArgsOrStdin fetches the series named in args, or reads one series
// from piped stdin when args is empty.
func seriesArgsOrStdin(ctx context.Context, deps *app.Deps, args []string) ([]*model.ChartSeries, []string, bool, error) {
	if len(args) > 0 {
		return fetchSeries(ctx, deps, normaliseIDs(args))
	}
	if pipeline.StdinIsTTY() {
		return nil, nil, false, fmt.Errorf("give a coin ID or pipe JSONL chart points on stdin")
	}
	s, err := pipeline.ReadSeries(os.Stdin)
	if err != nil {
		return nil, nil, false, err
	}
	return []*model.ChartSeries{s}, nil, true, nil
}

// chartInput returns the series for plot/bar: fetched when an ID is given,
// read from stdin otherwise. Warnings go straight to stderr since charts
// have no result envelope.
func chartInput(cmd *cobra.Command, args []string) (*model.ChartSeries, error) {
	if len(args) == 0 {
		if pipeline.StdinIsTTY() {
			return nil, fmt.Errorf("give a coin ID or pipe JSONL chart points on stdin")
		}
		return pipeline.ReadSeries(cmd.InOrStdin())
	}

	deps, err := buildDeps(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer deps.Close()

	series, warnings, _, err := fetchSeries(cmd.Context(), deps, normaliseIDs(args))
	if err != nil {
		return nil, err
	}
	if !deps.Config.Quiet {
		for _, w := range warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠  %s\n", w)
		}
	}
	return series[0], nil
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.AddCommand(chartGetCmd)
	chartCmd.AddCommand(chartPlotCmd)
	chartCmd.AddCommand(chartBarCmd)
	chartCmd.AddCommand(chartStatsCmd)
	chartCmd.AddCommand(chartTrendCmd)

	chartCmd.PersistentFlags().IntVar(&chartDays, "days", 7, "days of history to fetch")

	chartPlotCmd.Flags().IntVar(&chartPlotWidth, "width", 0, "chart width in columns (default: $COLUMNS or 80)")
	chartPlotCmd.Flags().IntVar(&chartPlotHeight, "height", 12, "chart body height in rows")
	chartPlotCmd.Flags().StringVar(&chartPlotTitle, "title", "", "override the chart title")
	chartPlotCmd.Flags().StringVar(&chartPlotMetric, "metric", "price", "price|volume|market_cap|change")

	chartBarCmd.Flags().IntVar(&chartBarWidth, "width", 0, "chart width in columns (default: $COLUMNS or 80)")
	chartBarCmd.Flags().IntVar(&chartBarMaxBars, "max-bars", 0, "keep only the most recent N days")
	chartBarCmd.Flags().StringVar(&chartBarMetric, "metric", "volume", "price|volume|market_cap|change")

	chartTrendCmd.Flags().StringVar(&chartTrendMethod, "method", "linear", "linear|theil-sen")
}
