package render_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/coinwatch/internal/analyze"
	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/pipeline"
	"github.com/derickschaefer/coinwatch/internal/render"
	"github.com/derickschaefer/coinwatch/internal/viewport"
)

func ptr(v float64) *float64 { return &v }

func coins() []model.CryptocurrencySummary {
	return []model.CryptocurrencySummary{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: 64123.45, MarketCap: 1.26e12,
			MarketCapRank: 1, TotalVolume: 3.1e10, High24h: ptr(65000), Low24h: ptr(63000),
			PriceChangePercentage24h: 2.345, CirculatingSupply: 19.7e6, MaxSupply: ptr(21e6)},
		{ID: "tether", Symbol: "usdt", Name: "Tether", CurrentPrice: 1.0002, MarketCap: 1.1e11,
			MarketCapRank: 3, TotalVolume: 5e10, PriceChangePercentage24h: -0.01, CirculatingSupply: 1.1e11},
	}
}

func result(kind string, data any) *model.Result {
	return &model.Result{Kind: kind, GeneratedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Data: data}
}

// ─── Table ────────────────────────────────────────────────────────────────────

func TestCoinTableColumnsByBreakpoint(t *testing.T) {
	cases := []struct {
		bp       viewport.Breakpoint
		want     []string
		excluded []string
	}{
		{viewport.Mobile, []string{"COIN", "PRICE", "24H%"}, []string{"NAME", "MCAP", "VOLUME"}},
		{viewport.Tablet, []string{"COIN", "NAME", "MCAP"}, []string{"VOLUME", "24H HIGH"}},
		{viewport.Desktop, []string{"NAME", "MCAP", "VOLUME", "24H HIGH", "MAX SUPPLY"}, nil},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		if err := render.Render(&buf, result(model.KindCoins, coins()), render.FormatTable, tc.bp); err != nil {
			t.Fatalf("%s: %v", tc.bp, err)
		}
		header := strings.Split(buf.String(), "\n")[1]
		for _, h := range tc.want {
			if !strings.Contains(header, h) {
				t.Errorf("%s: header missing %q: %s", tc.bp, h, header)
			}
		}
		for _, h := range tc.excluded {
			if strings.Contains(header, h) {
				t.Errorf("%s: header should not contain %q: %s", tc.bp, h, header)
			}
		}
		if !strings.Contains(buf.String(), "$64,123.45") {
			t.Errorf("%s: formatted price missing:\n%s", tc.bp, buf.String())
		}
	}
}

func TestCoinHeaders(t *testing.T) {
	if got := render.CoinHeaders(viewport.Mobile); len(got) != 4 {
		t.Errorf("mobile headers = %v", got)
	}
	if len(render.CoinHeaders(viewport.Desktop)) <= len(render.CoinHeaders(viewport.Tablet)) {
		t.Error("desktop should show more columns than tablet")
	}
}

func TestSearchTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	sr := &model.SearchResult{Query: "zzz"}
	if err := render.Render(&buf, result(model.KindSearchResult, sr), render.FormatTable, viewport.Desktop); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"zzz"`) || !strings.Contains(buf.String(), "No cryptocurrencies found") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestDetailTable(t *testing.T) {
	d := &model.CryptocurrencyDetail{
		CryptocurrencySummary: coins()[0],
		Description:           map[string]string{"en": "Peer-to-peer cash."},
		Links:                 model.Links{Homepage: []string{"https://bitcoin.org"}},
	}
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindCoinDetail, []*model.CryptocurrencyDetail{d}), render.FormatTable, viewport.Desktop); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Bitcoin", "BTC", "https://bitcoin.org", "Peer-to-peer cash.", "$1.26T"} {
		if !strings.Contains(out, want) {
			t.Errorf("detail output missing %q:\n%s", want, out)
		}
	}
}

// ─── Machine formats ──────────────────────────────────────────────────────────

func TestCSVCarriesAllColumnsRaw(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindCoins, coins()), render.FormatCSV, viewport.Mobile); err != nil {
		t.Fatal(err)
	}
	recs, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(recs))
	}
	if recs[0][0] != "rank" || !contains(recs[0], "max_supply") {
		t.Errorf("header = %v", recs[0])
	}
	if !contains(recs[1], "64123.45") {
		t.Errorf("price should be unformatted: %v", recs[1])
	}
	if !contains(recs[2], "-") {
		t.Errorf("missing max supply should render as -: %v", recs[2])
	}
}

func TestTSV(t *testing.T) {
	var buf bytes.Buffer
	tbl := &model.Table{Headers: []string{"A", "B"}, Rows: [][]string{{"1", "2"}}}
	if err := render.Render(&buf, result(model.KindTable, tbl), render.FormatTSV, viewport.Desktop); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "A\tB\n1\t2\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindCoins, coins()), render.FormatJSON, viewport.Desktop); err != nil {
		t.Fatal(err)
	}
	var env struct {
		Kind string                        `json:"kind"`
		Data []model.CryptocurrencySummary `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Kind != model.KindCoins || len(env.Data) != 2 || env.Data[1].ID != "tether" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestJSONLChartIsPipeable(t *testing.T) {
	s := &model.ChartSeries{ID: "bitcoin", Days: 2, Points: []model.ChartPoint{
		{Date: "2024-01-01", Price: 1, Volume: 2, MarketCap: 3},
		{Date: "2024-01-02", Price: 4, Volume: 5, MarketCap: 6},
	}}
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindChartSeries, s), render.FormatJSONL, viewport.Desktop); err != nil {
		t.Fatal(err)
	}
	got, err := pipeline.ReadSeries(&buf)
	if err != nil {
		t.Fatalf("jsonl output should read back: %v", err)
	}
	if got.ID != "bitcoin" || len(got.Points) != 2 || got.Points[1].Price != 4 {
		t.Errorf("read back %+v", got)
	}
}

func TestJSONLTableRows(t *testing.T) {
	var buf bytes.Buffer
	tbl := &model.Table{Headers: []string{"Bucket", "Keys"}, Rows: [][]string{{"queries", "4"}, {"_meta", "2"}}}
	if err := render.Render(&buf, result(model.KindTable, tbl), render.FormatJSONL, viewport.Desktop); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || lines[0] != `{"bucket":"queries","keys":"4"}` {
		t.Errorf("lines = %q", lines)
	}
}

func TestMarkdownSummary(t *testing.T) {
	sums := []analyze.Summary{{ID: "btc", Count: 3, From: "2024-01-01", To: "2024-01-03", First: 1, Last: 2, ChangePct: 100}}
	var buf bytes.Buffer
	if err := render.Render(&buf, result(model.KindChartSummary, sums), render.FormatMD, viewport.Desktop); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(buf.String(), "\n")
	if !strings.HasPrefix(lines[0], "| COIN | N |") {
		t.Errorf("header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "---:") {
		t.Errorf("numeric columns should be right-aligned: %q", lines[1])
	}
	if !strings.Contains(lines[2], "+100.00%") {
		t.Errorf("row: %q", lines[2])
	}
}

func TestMarkdownEscapesPipes(t *testing.T) {
	tbl := &model.Table{Headers: []string{"K", "V"}, Rows: [][]string{{"a|b", "c"}}}
	var buf bytes.Buffer
	_ = render.Render(&buf, result(model.KindTable, tbl), render.FormatMD, viewport.Desktop)
	if !strings.Contains(buf.String(), `a\|b`) {
		t.Errorf("pipe not escaped:\n%s", buf.String())
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range render.Formats {
		if !render.ValidFormat(f) {
			t.Errorf("%s should be valid", f)
		}
	}
	if render.ValidFormat("xml") {
		t.Error("xml should be invalid")
	}
}

// ─── Footer / helpers ─────────────────────────────────────────────────────────

func TestPrintFooter(t *testing.T) {
	r := result(model.KindCoins, nil)
	r.Warnings = []string{"showing cached data"}
	r.Stats = model.ResultStats{CacheHit: true, Items: 7, DurationMs: 12}

	var quiet bytes.Buffer
	render.PrintFooter(&quiet, r, false)
	if !strings.Contains(quiet.String(), "showing cached data") || strings.Contains(quiet.String(), "items") {
		t.Errorf("non-verbose footer: %q", quiet.String())
	}

	var verbose bytes.Buffer
	render.PrintFooter(&verbose, r, true)
	if !strings.Contains(verbose.String(), "7 items") || !strings.Contains(verbose.String(), "cache") {
		t.Errorf("verbose footer: %q", verbose.String())
	}
}

func TestFormatUSD(t *testing.T) {
	cases := map[float64]string{
		0:           "$0.00",
		1:           "$1.00",
		1234567.891: "$1,234,567.89",
		0.5:         "$0.50",
		0.000123:    "$0.000123",
		-42.5:       "-$42.50",
	}
	for in, want := range cases {
		if got := render.FormatUSD(in); got != want {
			t.Errorf("FormatUSD(%g) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatCompactUSD(t *testing.T) {
	cases := map[float64]string{
		1.26e12: "$1.26T",
		3.1e10:  "$31.00B",
		2.5e6:   "$2.50M",
		1500:    "$1.50K",
		999:     "$999.00",
	}
	for in, want := range cases {
		if got := render.FormatCompactUSD(in); got != want {
			t.Errorf("FormatCompactUSD(%g) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatPercentAndSupply(t *testing.T) {
	if got := render.FormatPercent(2.345); got != "+2.35%" && got != "+2.34%" {
		t.Errorf("FormatPercent(2.345) = %q", got)
	}
	if got := render.FormatPercent(-0.5); got != "-0.50%" {
		t.Errorf("FormatPercent(-0.5) = %q", got)
	}
	if got := render.FormatPercent(0); got != "0.00%" {
		t.Errorf("FormatPercent(0) = %q", got)
	}
	if got := render.FormatSupply(ptr(19700000.4)); got != "19,700,000" {
		t.Errorf("FormatSupply = %q", got)
	}
	if got := render.FormatSupply(nil); got != "-" {
		t.Errorf("FormatSupply(nil) = %q", got)
	}
}

func TestProgressLine(t *testing.T) {
	var buf bytes.Buffer
	p := render.NewProgressLine(&buf, false)
	p.Start()
	p.Complete()
	if !strings.Contains(buf.String(), "refreshing") || !strings.Contains(buf.String(), "✓ updated") {
		t.Errorf("progress output: %q", buf.String())
	}

	var silent bytes.Buffer
	q := render.NewProgressLine(&silent, true)
	q.Start()
	q.Complete()
	if silent.Len() != 0 {
		t.Errorf("quiet progress line wrote %q", silent.String())
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
