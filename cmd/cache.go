package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the persistent query cache",
	Long: `Commands for inspecting and clearing the persistent query cache.

Every successful query (top listing, search, coin detail, chart history) is
written to the configured backend: a local bbolt file by default, or Redis
when cache_backend is "redis". The next process starts from those values and
only refetches once they are older than their query's freshness window.`,
}

// ─── cache stats ──────────────────────────────────────────────────────────────

var cacheStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show entry counts and sizes",
	Example: `  coinwatch cache stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		out := cmd.OutOrStdout()
		if deps.Redis != nil {
			keys, err := deps.Redis.Keys(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing redis keys: %w", err)
			}
			fmt.Fprintf(out, "Redis: %s\n\n", deps.Config.RedisAddr)
			printSimpleTable(out, []string{"BACKEND", "ENTRIES"}, func(add func(...string)) {
				add("redis", strconv.Itoa(len(keys)))
			})
			return nil
		}

		st, err := deps.RequireStore()
		if err != nil {
			return err
		}
		stats, err := st.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}
		sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })

		fmt.Fprintf(out, "Database: %s\n\n", st.Path())
		printSimpleTable(out, []string{"BUCKET", "ENTRIES", "SIZE"}, func(add func(...string)) {
			for _, s := range stats {
				add(s.Name, strconv.Itoa(s.Count), humanBytes(s.Bytes))
			}
		})
		return nil
	},
}

// ─── cache list ───────────────────────────────────────────────────────────────

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached queries with their fetch time and size",
	Example: `  coinwatch cache list
  coinwatch cache list --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		tbl := &model.Table{}
		if deps.Redis != nil {
			keys, err := deps.Redis.Keys(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing redis keys: %w", err)
			}
			sort.Strings(keys)
			tbl.Headers = []string{"KEY"}
			for _, k := range keys {
				tbl.Rows = append(tbl.Rows, []string{k})
			}
		} else {
			st, err := deps.RequireStore()
			if err != nil {
				return err
			}
			recs, err := st.List()
			if err != nil {
				return err
			}
			tbl.Headers = []string{"KEY", "FETCHED", "AGE", "SIZE"}
			for _, r := range recs {
				tbl.Rows = append(tbl.Rows, []string{
					r.Key,
					r.FetchedAt.Local().Format("2006-01-02 15:04:05"),
					time.Since(r.FetchedAt).Round(time.Second).String(),
					humanBytes(int64(r.Bytes)),
				})
			}
		}

		result := newResult(model.KindTable, "cache list", tbl, len(tbl.Rows), start, true, nil)
		return emit(cmd, deps, result)
	},
}

// ─── cache clear ──────────────────────────────────────────────────────────────

var (
	cacheClearAll    bool
	cacheClearBucket string
	cacheClearKey    string
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete entries from the persistent cache",
	Long: `Delete every cached entry, one bucket, or a single query key.

Note: bbolt does not shrink the database file automatically after clearing.
Free pages are reused internally on the next write. To reclaim disk space,
run 'coinwatch cache compact' after clearing.`,
	Example: `  coinwatch cache clear --all
  coinwatch cache clear --bucket queries
  coinwatch cache clear --key "detail|bitcoin"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cacheClearAll && cacheClearBucket == "" && cacheClearKey == "" {
			return fmt.Errorf("specify --all, --bucket <name> or --key <key>\n\nBuckets: %v", store.AllBuckets)
		}

		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()
		out := cmd.OutOrStdout()

		if deps.Redis != nil {
			if cacheClearKey != "" || cacheClearBucket != "" {
				return fmt.Errorf("the redis backend only supports --all")
			}
			n, err := deps.Redis.Clear(cmd.Context())
			if err != nil {
				return fmt.Errorf("clearing redis: %w", err)
			}
			fmt.Fprintf(out, "✓ Deleted %d redis keys\n", n)
			return nil
		}

		st, err := deps.RequireStore()
		if err != nil {
			return err
		}
		switch {
		case cacheClearKey != "":
			if err := st.Delete(cacheClearKey); err != nil {
				return fmt.Errorf("deleting %q: %w", cacheClearKey, err)
			}
			fmt.Fprintf(out, "✓ Deleted %q\n", cacheClearKey)
			return nil
		case cacheClearAll:
			if err := st.ClearAll(); err != nil {
				return fmt.Errorf("clearing all buckets: %w", err)
			}
			fmt.Fprintln(out, "✓ Cleared all buckets")
		default:
			if err := st.ClearBucket(cacheClearBucket); err != nil {
				return fmt.Errorf("clearing bucket %q: %w", cacheClearBucket, err)
			}
			fmt.Fprintf(out, "✓ Cleared bucket %q\n", cacheClearBucket)
		}
		fmt.Fprintln(out, "  Run 'coinwatch cache compact' to reclaim disk space.")
		return nil
	},
}

// ─── cache prune ──────────────────────────────────────────────────────────────

var cachePruneOlderThan time.Duration

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete entries fetched longer ago than --older-than",
	Example: `  coinwatch cache prune
  coinwatch cache prune --older-than 2h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cachePruneOlderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		st, err := deps.RequireStore()
		if err != nil {
			return err
		}
		n, err := st.Prune(time.Now().Add(-cachePruneOlderThan))
		if err != nil {
			return fmt.Errorf("pruning: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d entries older than %s\n", n, cachePruneOlderThan)
		return nil
	},
}

// ─── cache compact ────────────────────────────────────────────────────────────

var cacheCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the database file to reclaim freed disk space",
	Long: `Compact rewrites the bbolt database to a new file, recovering space
freed by prior 'cache clear' and 'cache prune' runs.

All live data is copied to a temporary file first, then the original is
replaced. The database remains usable after compaction completes.`,
	Example: `  coinwatch cache compact`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		st, err := deps.RequireStore()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Compacting %s ...\n", st.Path())

		before, after, err := st.Compact()
		if err != nil {
			return fmt.Errorf("compaction failed: %w", err)
		}

		saved := before - after
		fmt.Fprintln(out, "✓ Compaction complete")
		fmt.Fprintf(out, "  Before: %s\n", humanBytes(before))
		fmt.Fprintf(out, "  After:  %s\n", humanBytes(after))
		if saved > 0 {
			fmt.Fprintf(out, "  Saved:  %s\n", humanBytes(saved))
		} else {
			fmt.Fprintln(out, "  No space reclaimed (database was already compact).")
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheCompactCmd)

	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "clear every bucket")
	cacheClearCmd.Flags().StringVar(&cacheClearBucket, "bucket", "", "clear one bucket")
	cacheClearCmd.Flags().StringVar(&cacheClearKey, "key", "", "delete a single query key")
	cachePruneCmd.Flags().DurationVar(&cachePruneOlderThan, "older-than", 24*time.Hour, "age cutoff")
}
