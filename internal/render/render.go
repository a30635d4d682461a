// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string. Human formats (table, md) narrow the
// coin columns to the terminal's breakpoint; machine formats always carry
// every column.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/coinwatch/internal/analyze"
	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/pipeline"
	"github.com/derickschaefer/coinwatch/internal/util"
	"github.com/derickschaefer/coinwatch/internal/viewport"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Formats lists every accepted --format value.
var Formats = []string{FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD}

// ValidFormat reports whether f is an accepted --format value.
func ValidFormat(f string) bool {
	for _, v := range Formats {
		if v == f {
			return true
		}
	}
	return false
}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string, bp viewport.Breakpoint) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result, bp)
	default:
		return renderTable(w, result, bp)
	}
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// renderJSONL writes one record per line. Chart series use the pipeline
// row format so output can be piped into `chart plot`.
func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch d := result.Data.(type) {
	case *model.ChartSeries:
		return pipeline.WriteSeries(w, d)
	case []*model.ChartSeries:
		for _, s := range d {
			if err := pipeline.WriteSeries(w, s); err != nil {
				return err
			}
		}
		return nil
	case []model.CryptocurrencySummary:
		return encodeEach(enc, d)
	case *model.SearchResult:
		return encodeEach(enc, d.Coins)
	case []*model.CryptocurrencyDetail:
		return encodeEach(enc, d)
	case []analyze.Summary:
		return encodeEach(enc, d)
	case *model.Table:
		for _, row := range d.Rows {
			obj := make(map[string]string, len(d.Headers))
			for i, h := range d.Headers {
				if i < len(row) {
					obj[strings.ToLower(h)] = row[i]
				}
			}
			if err := enc.Encode(obj); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(result.Data)
	}
}

func encodeEach[T any](enc *json.Encoder, items []T) error {
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}

// ─── Grids ────────────────────────────────────────────────────────────────────

// grid is the tabular projection shared by table, markdown and delimited
// output. Right lists the columns that hold numbers.
type grid struct {
	Headers []string
	Rows    [][]string
	Right   map[int]bool
}

// column describes one coin column at both display and machine precision.
type column struct {
	header  string
	key     string
	right   bool
	minBP   viewport.Breakpoint
	display func(c model.CryptocurrencySummary) string
	raw     func(c model.CryptocurrencySummary) string
}

var coinColumns = []column{
	{"#", "rank", true, viewport.Mobile,
		func(c model.CryptocurrencySummary) string { return rankString(c.MarketCapRank) },
		func(c model.CryptocurrencySummary) string { return strconv.Itoa(c.MarketCapRank) }},
	{"COIN", "symbol", false, viewport.Mobile,
		func(c model.CryptocurrencySummary) string { return strings.ToUpper(c.Symbol) },
		func(c model.CryptocurrencySummary) string { return c.Symbol }},
	{"ID", "id", false, viewport.Desktop,
		func(c model.CryptocurrencySummary) string { return c.ID },
		func(c model.CryptocurrencySummary) string { return c.ID }},
	{"NAME", "name", false, viewport.Tablet,
		func(c model.CryptocurrencySummary) string { return truncate(c.Name, 24) },
		func(c model.CryptocurrencySummary) string { return c.Name }},
	{"PRICE", "current_price", true, viewport.Mobile,
		func(c model.CryptocurrencySummary) string { return FormatUSD(c.CurrentPrice) },
		func(c model.CryptocurrencySummary) string { return util.FormatValue(c.CurrentPrice) }},
	{"24H%", "price_change_percentage_24h", true, viewport.Mobile,
		func(c model.CryptocurrencySummary) string { return FormatPercent(c.PriceChangePercentage24h) },
		func(c model.CryptocurrencySummary) string { return util.FormatValue(c.PriceChangePercentage24h) }},
	{"24H HIGH", "high_24h", true, viewport.Desktop,
		func(c model.CryptocurrencySummary) string { return formatOptionalUSD(c.High24h) },
		func(c model.CryptocurrencySummary) string { return util.FormatOptional(c.High24h) }},
	{"24H LOW", "low_24h", true, viewport.Desktop,
		func(c model.CryptocurrencySummary) string { return formatOptionalUSD(c.Low24h) },
		func(c model.CryptocurrencySummary) string { return util.FormatOptional(c.Low24h) }},
	{"VOLUME", "total_volume", true, viewport.Desktop,
		func(c model.CryptocurrencySummary) string { return FormatCompactUSD(c.TotalVolume) },
		func(c model.CryptocurrencySummary) string { return util.FormatValue(c.TotalVolume) }},
	{"MCAP", "market_cap", true, viewport.Tablet,
		func(c model.CryptocurrencySummary) string { return FormatCompactUSD(c.MarketCap) },
		func(c model.CryptocurrencySummary) string { return util.FormatValue(c.MarketCap) }},
	{"SUPPLY", "circulating_supply", true, viewport.Desktop,
		func(c model.CryptocurrencySummary) string { return FormatSupply(&c.CirculatingSupply) },
		func(c model.CryptocurrencySummary) string { return util.FormatValue(c.CirculatingSupply) }},
	{"MAX SUPPLY", "max_supply", true, viewport.Desktop,
		func(c model.CryptocurrencySummary) string { return FormatSupply(c.MaxSupply) },
		func(c model.CryptocurrencySummary) string { return util.FormatOptional(c.MaxSupply) }},
}

// CoinHeaders returns the display headers shown at bp.
func CoinHeaders(bp viewport.Breakpoint) []string {
	var out []string
	for _, col := range coinColumns {
		if bp >= col.minBP {
			out = append(out, col.header)
		}
	}
	return out
}

// coinGrid projects coins onto the columns visible at bp. raw selects
// machine precision and every column regardless of bp.
func coinGrid(coins []model.CryptocurrencySummary, bp viewport.Breakpoint, raw bool) grid {
	g := grid{Right: map[int]bool{}}
	var cols []column
	for _, col := range coinColumns {
		if raw || bp >= col.minBP {
			cols = append(cols, col)
		}
	}
	for i, col := range cols {
		if raw {
			g.Headers = append(g.Headers, col.key)
		} else {
			g.Headers = append(g.Headers, col.header)
		}
		g.Right[i] = col.right
	}
	for _, c := range coins {
		row := make([]string, len(cols))
		for i, col := range cols {
			if raw {
				row[i] = col.raw(c)
			} else {
				row[i] = col.display(c)
			}
		}
		g.Rows = append(g.Rows, row)
	}
	return g
}

func seriesGrid(series []*model.ChartSeries, raw bool) grid {
	g := grid{Right: map[int]bool{2: true, 3: true, 4: true}}
	if raw {
		g.Headers = []string{"id", "date", "price", "volume", "market_cap"}
	} else {
		g.Headers = []string{"COIN", "DATE", "PRICE", "VOLUME", "MCAP"}
	}
	for _, s := range series {
		for _, p := range s.Points {
			if raw {
				g.Rows = append(g.Rows, []string{s.ID, p.Date,
					util.FormatValue(p.Price), util.FormatValue(p.Volume), util.FormatValue(p.MarketCap)})
			} else {
				g.Rows = append(g.Rows, []string{s.ID, p.Date,
					FormatUSD(p.Price), FormatCompactUSD(p.Volume), FormatCompactUSD(p.MarketCap)})
			}
		}
	}
	return g
}

func summaryGrid(sums []analyze.Summary, raw bool) grid {
	g := grid{Right: map[int]bool{}}
	if raw {
		g.Headers = []string{"id", "count", "from", "to", "first", "last", "change_pct",
			"min", "max", "mean", "std", "median", "volatility", "max_drawdown_pct", "avg_volume"}
	} else {
		g.Headers = []string{"COIN", "N", "FROM", "TO", "FIRST", "LAST", "CHANGE",
			"MIN", "MAX", "MEAN", "STD", "MEDIAN", "VOL/DAY", "MAX DD", "AVG VOLUME"}
	}
	for i := range g.Headers {
		g.Right[i] = i == 1 || i >= 4
	}
	for _, s := range sums {
		if raw {
			g.Rows = append(g.Rows, []string{s.ID, strconv.Itoa(s.Count), s.From, s.To,
				util.FormatValue(s.First), util.FormatValue(s.Last), util.FormatValue(s.ChangePct),
				util.FormatValue(s.Min), util.FormatValue(s.Max), util.FormatValue(s.Mean),
				util.FormatValue(s.Std), util.FormatValue(s.Median), util.FormatValue(s.Volatility),
				util.FormatValue(s.MaxDrawdownPct), util.FormatValue(s.AvgVolume)})
			continue
		}
		g.Rows = append(g.Rows, []string{s.ID, strconv.Itoa(s.Count), s.From, s.To,
			FormatUSD(s.First), FormatUSD(s.Last), FormatPercent(s.ChangePct),
			FormatUSD(s.Min), FormatUSD(s.Max), FormatUSD(s.Mean),
			FormatUSD(s.Std), FormatUSD(s.Median), fmt.Sprintf("%.2f%%", s.Volatility),
			fmt.Sprintf("%.2f%%", s.MaxDrawdownPct), FormatCompactUSD(s.AvgVolume)})
	}
	return g
}

// detailFields is the FIELD/VALUE projection of one coin detail.
func detailFields(d *model.CryptocurrencyDetail) [][]string {
	rows := [][]string{
		{"ID", d.ID},
		{"Name", d.Name},
		{"Symbol", strings.ToUpper(d.Symbol)},
		{"Rank", rankString(d.MarketCapRank)},
		{"Price", FormatUSD(d.CurrentPrice)},
		{"24h Change", FormatPercent(d.PriceChangePercentage24h)},
		{"24h Range", formatOptionalUSD(d.Low24h) + " – " + formatOptionalUSD(d.High24h)},
		{"Market Cap", FormatCompactUSD(d.MarketCap)},
		{"Volume", FormatCompactUSD(d.TotalVolume)},
		{"Circulating", FormatSupply(&d.CirculatingSupply)},
		{"Max Supply", FormatSupply(d.MaxSupply)},
		{"ATH", FormatUSD(d.ATH) + " (" + FormatPercent(d.ATHChangePercentage) + ")"},
		{"ATL", FormatUSD(d.ATL) + " (" + FormatPercent(d.ATLChangePercentage) + ")"},
	}
	if d.GenesisDate != nil && *d.GenesisDate != "" {
		rows = append(rows, []string{"Genesis", *d.GenesisDate})
	}
	if len(d.Links.Homepage) > 0 && d.Links.Homepage[0] != "" {
		rows = append(rows, []string{"Homepage", d.Links.Homepage[0]})
	}
	if d.SentimentVotesUpPercentage != nil {
		rows = append(rows, []string{"Sentiment Up", fmt.Sprintf("%.1f%%", *d.SentimentVotesUpPercentage)})
	}
	if !d.LastUpdated.IsZero() {
		rows = append(rows, []string{"Last Updated", d.LastUpdated.UTC().Format(time.RFC3339)})
	}
	if desc := d.DescriptionIn("en"); desc != "" {
		rows = append(rows, []string{"Description", truncate(desc, 200)})
	}
	return rows
}

func tableGrid(t *model.Table) grid {
	return grid{Headers: t.Headers, Rows: t.Rows}
}

// gridOf returns the grid for result, or false when the kind has no tabular
// form (single details are rendered as FIELD/VALUE blocks instead).
func gridOf(result *model.Result, bp viewport.Breakpoint, raw bool) (grid, bool) {
	switch d := result.Data.(type) {
	case []model.CryptocurrencySummary:
		return coinGrid(d, bp, raw), true
	case *model.SearchResult:
		return coinGrid(d.Coins, bp, raw), true
	case *model.ChartSeries:
		return seriesGrid([]*model.ChartSeries{d}, raw), true
	case []*model.ChartSeries:
		return seriesGrid(d, raw), true
	case []analyze.Summary:
		return summaryGrid(d, raw), true
	case *model.Table:
		return tableGrid(d), true
	case []*model.CryptocurrencyDetail:
		if !raw {
			return grid{}, false
		}
		coins := make([]model.CryptocurrencySummary, len(d))
		for i, det := range d {
			coins[i] = det.Summary()
		}
		return coinGrid(coins, bp, raw), true
	}
	return grid{}, false
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result, bp viewport.Breakpoint) error {
	if sr, ok := result.Data.(*model.SearchResult); ok {
		fmt.Fprintf(w, "Search results for: %q\n\n", sr.Query)
		if len(sr.Coins) == 0 {
			fmt.Fprintln(w, "No cryptocurrencies found.")
			return nil
		}
	}
	if details, ok := result.Data.([]*model.CryptocurrencyDetail); ok {
		for i, d := range details {
			if i > 0 {
				fmt.Fprintln(w)
			}
			renderDetailTable(w, d)
		}
		return nil
	}
	g, ok := gridOf(result, bp, false)
	if !ok {
		// Fallback: JSON
		return renderJSON(w, result)
	}
	writeGrid(w, g)
	return nil
}

func writeGrid(w io.Writer, g grid) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(g.Headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	if len(g.Right) > 0 {
		align := make([]int, len(g.Headers))
		for i := range align {
			align[i] = tablewriter.ALIGN_LEFT
			if g.Right[i] {
				align[i] = tablewriter.ALIGN_RIGHT
			}
		}
		tw.SetColumnAlignment(align)
	}
	tw.SetAutoWrapText(false)
	tw.AppendBulk(g.Rows)
	tw.Render()
}

func renderDetailTable(w io.Writer, d *model.CryptocurrencyDetail) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"FIELD", "VALUE"})
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetColWidth(80)
	tw.SetAutoWrapText(true)
	tw.AppendBulk(detailFields(d))
	tw.Render()
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	if g, ok := gridOf(result, viewport.Desktop, true); ok {
		_ = cw.Write(g.Headers)
		_ = cw.WriteAll(g.Rows)
	} else {
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result, bp viewport.Breakpoint) error {
	if details, ok := result.Data.([]*model.CryptocurrencyDetail); ok {
		for _, d := range details {
			fmt.Fprintf(w, "### %s (%s)\n\n| FIELD | VALUE |\n|----|----|\n", mdEscape(d.Name), strings.ToUpper(d.Symbol))
			for _, r := range detailFields(d) {
				fmt.Fprintf(w, "| %s | %s |\n", r[0], mdEscape(r[1]))
			}
			fmt.Fprintln(w)
		}
		return nil
	}
	g, ok := gridOf(result, bp, false)
	if !ok {
		return renderJSON(w, result)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(g.Headers, " | "))
	seps := make([]string, len(g.Headers))
	for i := range seps {
		seps[i] = "----"
		if g.Right[i] {
			seps[i] = "---:"
		}
	}
	fmt.Fprintf(w, "|%s|\n", strings.Join(seps, "|"))
	for _, row := range g.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = mdEscape(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		src := "live"
		if result.Stats.CacheHit {
			src = "cache"
		}
		fmt.Fprintf(w, "\n[%s • %d items • %dms • %s]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
			src,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func rankString(r int) string {
	if r <= 0 {
		return "-"
	}
	return strconv.Itoa(r)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
