package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/coinwatch/internal/app"
	"github.com/derickschaefer/coinwatch/internal/coingecko"
	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/pipeline"
	"github.com/derickschaefer/coinwatch/internal/query"
	"github.com/derickschaefer/coinwatch/internal/render"
	"github.com/derickschaefer/coinwatch/internal/viewport"
)

// batchConcurrency caps parallel detail/chart fetches. The client limiter
// spaces the requests anyway; this only bounds goroutines.
const batchConcurrency = 4

// normaliseIDs lower-cases all coin IDs and removes duplicates while
// preserving order.
func normaliseIDs(ids []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// outputWriter returns the --out file when set, otherwise def. The returned
// close function is always safe to call.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// currentBreakpoint classifies the terminal. Piped output gets every column.
func currentBreakpoint() viewport.Breakpoint {
	if !pipeline.IsTTY() {
		return viewport.Desktop
	}
	return viewport.FromColumns(viewport.TerminalColumns(), viewport.DetectTouch(os.Getenv)).Breakpoint
}

// emit renders result to stdout (or --out) and the footer to stderr.
func emit(cmd *cobra.Command, deps *app.Deps, result *model.Result) error {
	format := resolveFormat(deps.Config.Format)
	if !render.ValidFormat(format) {
		return fmt.Errorf("unknown format %q (want %s)", format, strings.Join(render.Formats, "|"))
	}
	w, closeFn, err := outputWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := render.Render(w, result, format, currentBreakpoint()); err != nil {
		closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return err
	}
	if !deps.Config.Quiet {
		render.PrintFooter(cmd.ErrOrStderr(), result, deps.Config.Verbose)
	}
	return nil
}

// fromView unpacks a query view for display. No data plus an error fails
// the command; data plus an error is shown with a warning.
func fromView[T any](label string, v query.View[T]) (T, []string, error) {
	if !v.HasData {
		if v.Err != nil {
			return v.Data, nil, fmt.Errorf("%s: %s: %w", label, coingecko.UserMessage(v.Err), v.Err)
		}
		return v.Data, nil, fmt.Errorf("%s: no data", label)
	}
	var warnings []string
	if v.Err != nil {
		warnings = append(warnings, fmt.Sprintf("%s: showing data from %s; refresh failed: %s",
			label, v.UpdatedAt.Local().Format("15:04:05"), coingecko.UserMessage(v.Err)))
	}
	return v.Data, warnings, nil
}

// getView resolves q and reports whether it was answered without a fetch.
func getView[T any](ctx context.Context, deps *app.Deps, q *query.Query[T]) (query.View[T], bool) {
	before := q.View().Fetches
	v := app.Get(ctx, deps, q)
	return v, v.Fetches == before
}

// newResult wraps data in a Result envelope.
func newResult(kind, command string, data any, items int, start time.Time, cacheHit bool, warnings []string) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        data,
		Warnings:    warnings,
		Stats: model.ResultStats{
			CacheHit:   cacheHit,
			DurationMs: time.Since(start).Milliseconds(),
			Items:      items,
		},
	}
}

// batchGet resolves one query per ID concurrently, keeping input order.
// Failed IDs become warnings; an error is returned only when every ID failed.
func batchGet[T any](ctx context.Context, deps *app.Deps, ids []string, q func(id string) *query.Query[T]) ([]T, []string, bool, error) {
	type result struct {
		data     T
		warnings []string
		hit      bool
		err      error
	}

	sem := make(chan struct{}, batchConcurrency)
	results := make([]result, len(ids))
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			v, hit := getView(ctx, deps, q(id))
			data, warns, err := fromView(id, v)
			results[i] = result{data: data, warnings: warns, hit: hit, err: err}
		}()
	}
	wg.Wait()

	var out []T
	var warnings []string
	allHit := true
	var lastErr error
	for _, r := range results {
		warnings = append(warnings, r.warnings...)
		if r.err != nil {
			warnings = append(warnings, r.err.Error())
			lastErr = r.err
			continue
		}
		allHit = allHit && r.hit
		out = append(out, r.data)
	}
	if len(out) == 0 && lastErr != nil {
		if len(ids) == 1 {
			return nil, nil, false, lastErr
		}
		return nil, warnings, false, fmt.Errorf("all %d lookups failed; last: %w", len(ids), lastErr)
	}
	return out, warnings, allHit, nil
}

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

// humanBytes formats a byte count for display.
func humanBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
