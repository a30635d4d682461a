// Package chart provides ASCII terminal chart rendering for chart series.
// Two renderers are available:
//
//   - Bar: horizontal bar chart, one bar per day; best for short windows or
//     day-over-day changes
//   - Plot: multi-line ASCII chart with labeled axes; best for price history
//
// Either renderer can draw price, volume, market cap or the daily percent
// change of a series.
package chart

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/viewport"
)

// Metric selects which column of a series is drawn.
type Metric string

const (
	MetricPrice     Metric = "price"
	MetricVolume    Metric = "volume"
	MetricMarketCap Metric = "market_cap"
	MetricChange    Metric = "change" // day-over-day price change, percent
)

// ParseMetric validates a --metric flag value. Empty selects price.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(s)); m {
	case "":
		return MetricPrice, nil
	case MetricPrice, MetricVolume, MetricMarketCap, MetricChange:
		return m, nil
	}
	return "", fmt.Errorf("unknown metric %q (want price, volume, market_cap or change)", s)
}

type sample struct {
	date  string
	value float64
}

// samples extracts the metric from s. The change metric has one fewer
// sample than there are points, and skips steps from a zero price.
func samples(s *model.ChartSeries, m Metric) []sample {
	out := make([]sample, 0, len(s.Points))
	for i, p := range s.Points {
		switch m {
		case MetricVolume:
			out = append(out, sample{p.Date, p.Volume})
		case MetricMarketCap:
			out = append(out, sample{p.Date, p.MarketCap})
		case MetricChange:
			if i == 0 || s.Points[i-1].Price == 0 {
				continue
			}
			prev := s.Points[i-1].Price
			out = append(out, sample{p.Date, (p.Price - prev) / prev * 100})
		default:
			out = append(out, sample{p.Date, p.Price})
		}
	}
	return out
}

func title(s *model.ChartSeries, m Metric, override string) string {
	if override != "" {
		return override
	}
	id := s.ID
	if id == "" {
		id = "series"
	}
	if m == "" || m == MetricPrice {
		return id
	}
	return id + " " + string(m)
}

// ─── Bar ─────────────────────────────────────────────────────────────────────

// BarOptions controls horizontal bar chart rendering.
type BarOptions struct {
	// Width is the total character width available for the chart.
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// MaxBars keeps only the most recent MaxBars days. If 0, no limit.
	MaxBars int
	Metric  Metric
}

// Bar renders a horizontal bar chart of s to w, one bar per day.
//
// Output example:
//
//	bitcoin  2024-01-01 – 2024-01-03
//	2024-01-01  42.1K  ████████████
//	2024-01-02  44.9K  ████████████████████
//	2024-01-03  43.0K  █████████████
func Bar(w io.Writer, s *model.ChartSeries, opts BarOptions) error {
	totalWidth := opts.Width
	if totalWidth <= 0 {
		totalWidth = viewport.TerminalColumns()
	}

	valid := samples(s, opts.Metric)
	if len(valid) < 1 {
		return fmt.Errorf("chart bar: no points to render")
	}

	if opts.MaxBars > 0 && len(valid) > opts.MaxBars {
		valid = valid[len(valid)-opts.MaxBars:]
	}

	if len(valid) > 60 {
		fmt.Fprintf(w, "⚠  %d bars; consider --days 30 or chart plot\n\n", len(valid))
	}

	// Min / max (negative values draw from a zero baseline)
	minVal, maxVal := valid[0].value, valid[0].value
	for _, o := range valid[1:] {
		minVal = math.Min(minVal, o.value)
		maxVal = math.Max(maxVal, o.value)
	}

	dateWidth := len(valid[0].date)
	valWidth := 0
	for _, o := range valid {
		if l := len(formatFloat(o.value)); l > valWidth {
			valWidth = l
		}
	}

	// Bar area width = totalWidth - dateWidth - valWidth - separators (4 chars)
	barAreaWidth := totalWidth - dateWidth - valWidth - 4
	if barAreaWidth < 4 {
		barAreaWidth = 4
	}

	valRange := maxVal - minVal
	if valRange == 0 {
		valRange = 1 // flat series
	}

	hasNeg := minVal < 0
	var zeroPos int // column index of the zero line within bar area
	if hasNeg {
		zeroPos = int(math.Round((-minVal / valRange) * float64(barAreaWidth-1)))
	}

	fmt.Fprintf(w, "%s  %s – %s\n", title(s, opts.Metric, ""), valid[0].date, valid[len(valid)-1].date)

	for _, o := range valid {
		var bar string
		if hasNeg {
			bar = buildBiBar(o.value, minVal, maxVal, barAreaWidth, zeroPos)
		} else {
			barLen := int(math.Round((o.value - minVal) / valRange * float64(barAreaWidth)))
			if barLen < 1 {
				barLen = 1 // every bar stays visible
			}
			if barLen > barAreaWidth {
				barLen = barAreaWidth
			}
			bar = strings.Repeat("█", barLen)
		}

		fmt.Fprintf(w, "%-*s  %*s  %s\n",
			dateWidth, o.date,
			valWidth, formatFloat(o.value),
			bar,
		)
	}

	return nil
}

// buildBiBar renders a bar that may extend left (negative) or right (positive)
// from a zero baseline at zeroPos within a field of width barAreaWidth.
func buildBiBar(val, minVal, maxVal float64, barAreaWidth, zeroPos int) string {
	valRange := maxVal - minVal
	buf := []rune(strings.Repeat(" ", barAreaWidth))

	if zeroPos >= 0 && zeroPos < barAreaWidth {
		buf[zeroPos] = '│'
	}

	if val >= 0 {
		end := zeroPos + int(math.Round(val/valRange*float64(barAreaWidth-1)))
		if end > barAreaWidth {
			end = barAreaWidth
		}
		for i := zeroPos + 1; i <= end && i < barAreaWidth; i++ {
			buf[i] = '█'
		}
	} else {
		start := zeroPos - int(math.Round((-val)/valRange*float64(barAreaWidth-1)))
		if start < 0 {
			start = 0
		}
		for i := start; i < zeroPos && i < barAreaWidth; i++ {
			buf[i] = '█'
		}
	}

	return string(buf)
}

// ─── Plot ─────────────────────────────────────────────────────────────────────

// PlotOptions controls multi-line ASCII plot rendering.
type PlotOptions struct {
	// Width is the total character width of the chart (including Y-axis label).
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// Height is the number of data rows in the chart body (not counting axis labels).
	// If 0, defaults to 12.
	Height int
	// Title overrides the default title (coin id plus metric).
	Title  string
	Metric Metric
}

// Plot renders a multi-line ASCII chart of s to w.
func Plot(w io.Writer, s *model.ChartSeries, opts PlotOptions) error {
	width := opts.Width
	if width <= 0 {
		width = viewport.TerminalColumns()
	}
	height := opts.Height
	if height <= 0 {
		height = 12
	}

	pts := samples(s, opts.Metric)
	if len(pts) < 2 {
		return fmt.Errorf("chart plot: need at least 2 points (got %d)", len(pts))
	}

	minVal, maxVal := pts[0].value, pts[0].value
	for _, p := range pts[1:] {
		minVal = math.Min(minVal, p.value)
		maxVal = math.Max(maxVal, p.value)
	}

	ticks := yTicks(minVal, maxVal, height)
	yLabelWidth := 0
	for _, t := range ticks {
		if l := len(formatFloat(t)); l > yLabelWidth {
			yLabelWidth = l
		}
	}
	yAxisWidth := yLabelWidth + 2 // label + " ┤"

	plotWidth := width - yAxisWidth
	if plotWidth < 10 {
		plotWidth = 10
	}

	cols := sampleCols(pts, plotWidth)
	grid := buildGrid(cols, minVal, maxVal, height)

	fmt.Fprintf(w, "%s  (%s to %s)\n", title(s, opts.Metric, opts.Title), pts[0].date, pts[len(pts)-1].date)

	for row := 0; row < height; row++ {
		label := ""
		for _, t := range ticks {
			if math.Abs(rowForValue(t, minVal, maxVal, height)-float64(row)) < 0.5 {
				label = formatFloat(t)
				break
			}
		}
		labelPadded := fmt.Sprintf("%*s", yLabelWidth, label)

		axisCh := "┤"
		if label != "" && math.Abs(minVal) < 1e-9 && row == height-1 {
			axisCh = "┼"
		} else if label == "" {
			axisCh = " "
		}

		fmt.Fprintf(w, "%s%s%s\n", labelPadded, axisCh, string(grid[row]))
	}

	fmt.Fprintf(w, "%s└%s\n", strings.Repeat(" ", yLabelWidth), strings.Repeat("─", plotWidth))
	fmt.Fprintf(w, "%s %s\n", strings.Repeat(" ", yLabelWidth), xAxisLabels(pts, plotWidth))

	return nil
}

// ─── Grid building ────────────────────────────────────────────────────────────

// sampleCols reduces pts to exactly n columns. Each column holds the average
// of its bucket, or NaN when the bucket is empty (fewer points than columns).
func sampleCols(pts []sample, n int) []float64 {
	total := len(pts)
	cols := make([]float64, n)
	for col := 0; col < n; col++ {
		lo := col * total / n
		hi := (col+1)*total/n - 1
		if hi >= total {
			hi = total - 1
		}
		sum, count := 0.0, 0
		for i := lo; i <= hi; i++ {
			sum += pts[i].value
			count++
		}
		if count == 0 {
			cols[col] = math.NaN()
		} else {
			cols[col] = sum / float64(count)
		}
	}
	return cols
}

// rowForValue returns the float row index (0=top=max) for a given value.
func rowForValue(v, minVal, maxVal float64, height int) float64 {
	if maxVal == minVal {
		return float64(height) / 2
	}
	return (maxVal - v) / (maxVal - minVal) * float64(height-1)
}

// buildGrid renders columns into a height×width rune grid using
// box-drawing characters to connect adjacent data points.
func buildGrid(cols []float64, minVal, maxVal float64, height int) [][]rune {
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = make([]rune, len(cols))
		for c := range grid[r] {
			grid[r][c] = ' '
		}
	}

	rowOf := make([]int, len(cols))
	for col, v := range cols {
		if math.IsNaN(v) {
			rowOf[col] = -1 // gap
			continue
		}
		r := int(math.Round(rowForValue(v, minVal, maxVal, height)))
		rowOf[col] = max(0, min(r, height-1))
	}

	for col := 0; col < len(cols); col++ {
		r := rowOf[col]
		if r < 0 {
			continue
		}

		prevRow := -2
		if col > 0 {
			prevRow = rowOf[col-1]
		}
		nextRow := -2
		if col < len(cols)-1 {
			nextRow = rowOf[col+1]
		}

		if prevRow == -2 && nextRow == -2 {
			grid[r][col] = '·'
			continue
		}

		if (prevRow < 0 || prevRow == r) && (nextRow < 0 || nextRow == r) {
			grid[r][col] = '─'
			continue
		}

		switch {
		case prevRow >= 0 && prevRow < r && nextRow >= 0 && nextRow < r:
			grid[r][col] = '─' // valley floor
		case prevRow >= 0 && prevRow > r && nextRow >= 0 && nextRow > r:
			grid[r][col] = '─' // peak
		case (prevRow < 0 || prevRow < r) && nextRow >= 0 && nextRow > r:
			grid[r][col] = '╭'
		case (prevRow < 0 || prevRow > r) && nextRow >= 0 && nextRow < r:
			grid[r][col] = '╰'
		case prevRow >= 0 && prevRow < r && (nextRow < 0 || nextRow > r):
			grid[r][col] = '╮'
		case prevRow >= 0 && prevRow > r && (nextRow < 0 || nextRow < r):
			grid[r][col] = '╯'
		default:
			grid[r][col] = '│'
		}

		// Vertical connectors to the previous column's row
		if prevRow >= 0 && prevRow != r {
			lo, hi := min(r, prevRow), max(r, prevRow)
			for fill := lo + 1; fill < hi; fill++ {
				if grid[fill][col] == ' ' {
					grid[fill][col] = '│'
				}
			}
		}
	}

	return grid
}

// ─── Axis helpers ─────────────────────────────────────────────────────────────

// yTicks returns 3–4 evenly-spaced tick values for the Y axis.
func yTicks(minVal, maxVal float64, height int) []float64 {
	if maxVal == minVal {
		return []float64{minVal}
	}
	nTicks := 4
	if height <= 6 {
		nTicks = 3
	}
	ticks := make([]float64, nTicks)
	for i := 0; i < nTicks; i++ {
		ticks[i] = minVal + float64(i)*(maxVal-minVal)/float64(nTicks-1)
	}
	return ticks
}

// xAxisLabels builds a padded string with start, middle, and end date labels.
func xAxisLabels(pts []sample, plotWidth int) string {
	if len(pts) == 0 {
		return ""
	}
	startLabel := pts[0].date
	endLabel := pts[len(pts)-1].date
	midLabel := pts[len(pts)/2].date

	midPos := plotWidth/2 - len(midLabel)/2
	endPos := plotWidth - len(endLabel)

	buf := []rune(strings.Repeat(" ", plotWidth))
	writeAt := func(pos int, s string) {
		for i, ch := range s {
			if pos+i >= 0 && pos+i < len(buf) {
				buf[pos+i] = ch
			}
		}
	}

	writeAt(0, startLabel)
	// Skip the middle label when it would collide with either end.
	if midPos > len(startLabel) && midPos+len(midLabel) < endPos {
		writeAt(midPos, midLabel)
	}
	writeAt(endPos, endLabel)

	return string(buf)
}

// ─── Utilities ────────────────────────────────────────────────────────────────

// formatFloat formats a float for axis labels: no unnecessary trailing zeros,
// at least one decimal place, compact notation for large/small numbers.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	abs := math.Abs(v)
	var s string
	switch {
	case abs == 0:
		return "0"
	case abs >= 1e12:
		return strconv.FormatFloat(v/1e12, 'f', 1, 64) + "T"
	case abs >= 1e9:
		return strconv.FormatFloat(v/1e9, 'f', 1, 64) + "B"
	case abs >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case abs >= 1e3:
		return strconv.FormatFloat(v/1e3, 'f', 1, 64) + "K"
	case abs >= 100:
		s = strconv.FormatFloat(v, 'f', 1, 64)
	case abs >= 1:
		s = strconv.FormatFloat(v, 'f', 2, 64)
	default:
		s = strconv.FormatFloat(v, 'f', 6, 64)
	}
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}
