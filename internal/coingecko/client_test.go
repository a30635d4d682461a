package coingecko_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/derickschaefer/coinwatch/internal/coingecko"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// mockServer serves handlers keyed by path and counts every request.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	mux := http.NewServeMux()
	for path, h := range handlers {
		h := h
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			h(w, r)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newClient(baseURL string) *coingecko.Client {
	return coingecko.NewClient(coingecko.Options{
		BaseURL: baseURL + "/",
		Timeout: 2 * time.Second,
	})
}

// marketRow builds a provider market row with the fields the decoder requires.
func marketRow(id, symbol, name string, mcap float64) map[string]interface{} {
	return map[string]interface{}{
		"id":                          id,
		"symbol":                      symbol,
		"name":                        name,
		"image":                       "https://example.com/" + id + ".png",
		"current_price":               mcap / 1e6,
		"market_cap":                  mcap,
		"market_cap_rank":             1,
		"total_volume":                1000.0,
		"high_24h":                    11.0,
		"low_24h":                     9.0,
		"price_change_percentage_24h": 2.27,
		"circulating_supply":          19000000.0,
		"total_supply":                21000000.0,
		"max_supply":                  nil,
		"ath":                         69000.0,
		"ath_date":                    "2021-11-10T14:24:11.849Z",
		"atl":                         67.81,
		"atl_date":                    "2013-07-06T00:00:00.000Z",
		"roi":                         nil,
		"last_updated":                "2023-01-01T12:00:00.000Z",
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ─── Top cryptocurrencies ─────────────────────────────────────────────────────

func TestTopCryptocurrenciesParamsAndOrder(t *testing.T) {
	srv, calls := mockServer(t, map[string]http.HandlerFunc{
		"/coins/markets": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			want := map[string]string{
				"vs_currency":             "usd",
				"order":                   "market_cap_desc",
				"per_page":                "20",
				"page":                    "1",
				"sparkline":               "false",
				"price_change_percentage": "24h",
			}
			for k, v := range want {
				if got := q.Get(k); got != v {
					t.Errorf("param %s: expected %q, got %q", k, v, got)
				}
			}
			writeJSON(w, []interface{}{
				marketRow("bitcoin", "btc", "Bitcoin", 850e9),
				marketRow("ethereum", "eth", "Ethereum", 300e9),
			})
		},
	})

	coins, err := newClient(srv.URL).TopCryptocurrencies(context.Background(), 0)
	if err != nil {
		t.Fatalf("TopCryptocurrencies: %v", err)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("expected exactly one request, got %d", *calls)
	}
	if len(coins) != 2 || coins[0].ID != "bitcoin" || coins[1].ID != "ethereum" {
		t.Fatalf("unexpected coins: %+v", coins)
	}
	if coins[0].MaxSupply != nil {
		t.Error("null max_supply should decode as nil")
	}
	if coins[0].TotalSupply == nil || *coins[0].TotalSupply != 21000000 {
		t.Errorf("total_supply: %v", coins[0].TotalSupply)
	}
	if coins[0].LastUpdated.IsZero() {
		t.Error("last_updated should be parsed")
	}
}

func TestTopCryptocurrenciesRejectsMissingIdentity(t *testing.T) {
	srv, _ := mockServer(t, map[string]http.HandlerFunc{
		"/coins/markets": func(w http.ResponseWriter, r *http.Request) {
			row := marketRow("bitcoin", "btc", "Bitcoin", 1)
			delete(row, "name")
			writeJSON(w, []interface{}{row})
		},
	})

	coins, err := newClient(srv.URL).TopCryptocurrencies(context.Background(), 5)
	if coins != nil {
		t.Errorf("no partial result expected on decode failure, got %+v", coins)
	}
	if !errors.Is(err, coingecko.ErrTransport) {
		t.Fatalf("expected Transport, got %v", err)
	}
	var de *coingecko.DecodeError
	if !errors.As(err, &de) {
		t.Errorf("expected wrapped DecodeError, got %v", err)
	}
}

// ─── Search ───────────────────────────────────────────────────────────────────

func TestSearchEmptyQueryMakesNoRequest(t *testing.T) {
	srv, calls := mockServer(t, map[string]http.HandlerFunc{
		"/coins/markets": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, []interface{}{})
		},
	})
	c := newClient(srv.URL)

	for _, q := range []string{"", "   ", "\t\n"} {
		coins, err := c.SearchCryptocurrencies(context.Background(), q)
		if err != nil {
			t.Errorf("query %q: unexpected error %v", q, err)
		}
		if coins == nil || len(coins) != 0 {
			t.Errorf("query %q: expected empty non-nil slice, got %v", q, coins)
		}
	}
	if n := atomic.LoadInt32(calls); n != 0 {
		t.Errorf("expected zero network calls, got %d", n)
	}
}

func TestSearchFiltersCaseInsensitively(t *testing.T) {
	srv, _ := mockServer(t, map[string]http.HandlerFunc{
		"/coins/markets": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("per_page"); got != "100" {
				t.Errorf("search window: expected per_page=100, got %q", got)
			}
			writeJSON(w, []interface{}{
				marketRow("bitcoin", "btc", "Bitcoin", 850e9),
				marketRow("ethereum", "eth", "Ethereum", 300e9),
			})
		},
	})

	coins, err := newClient(srv.URL).SearchCryptocurrencies(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(coins) != 1 || coins[0].ID != "ethereum" {
		t.Fatalf("expected only ethereum, got %+v", coins)
	}
}

func TestSearchPreservesOrderAndCapsAt20(t *testing.T) {
	srv, _ := mockServer(t, map[string]http.HandlerFunc{
		"/coins/markets": func(w http.ResponseWriter, r *http.Request) {
			rows := make([]interface{}, 0, 40)
			for i := 0; i < 40; i++ {
				mcap := float64(1000 - i)
				if i%8 == 7 {
					// five non-matching rows interleaved
					rows = append(rows, marketRow(fmt.Sprintf("other-%d", i), "zzz", "Other", mcap))
					continue
				}
				rows = append(rows, marketRow(fmt.Sprintf("wrapped-%d", i), "wcoin", fmt.Sprintf("Wrapped %d", i), mcap))
			}
			writeJSON(w, rows)
		},
	})

	coins, err := newClient(srv.URL).SearchCryptocurrencies(context.Background(), "wrapped")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(coins) != coingecko.SearchMaxResults {
		t.Fatalf("expected %d results, got %d", coingecko.SearchMaxResults, len(coins))
	}
	for i := 1; i < len(coins); i++ {
		if coins[i].MarketCap > coins[i-1].MarketCap {
			t.Fatalf("order broken at %d: %v > %v", i, coins[i].MarketCap, coins[i-1].MarketCap)
		}
	}
	if coins[0].ID != "wrapped-0" {
		t.Errorf("first match should be highest market cap, got %s", coins[0].ID)
	}
}

// ─── Detail ───────────────────────────────────────────────────────────────────

func TestCryptocurrencyDetailNormalizes(t *testing.T) {
	srv, _ := mockServer(t, map[string]http.HandlerFunc{
		"/coins/bitcoin": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			for k, v := range map[string]string{
				"localization": "false", "tickers": "false", "market_data": "true",
				"community_data": "true", "developer_data": "true", "sparkline": "false",
			} {
				if q.Get(k) != v {
					t.Errorf("param %s: expected %q, got %q", k, v, q.Get(k))
				}
			}
			writeJSON(w, map[string]interface{}{
				"id":              "bitcoin",
				"symbol":          "btc",
				"name":            "Bitcoin",
				"image":           map[string]string{"large": "https://example.com/btc-large.png"},
				"market_cap_rank": 1,
				"genesis_date":    "2009-01-03",
				"description":     map[string]string{"en": "Peer-to-peer cash.", "de": ""},
				"links": map[string]interface{}{
					"homepage":            []string{"https://bitcoin.org", "", ""},
					"twitter_screen_name": "bitcoin",
					"subreddit_url":       "https://reddit.com/r/Bitcoin",
					"repos_url":           map[string]interface{}{"github": []string{"https://github.com/bitcoin/bitcoin"}},
				},
				"developer_data": map[string]interface{}{"forks": 30000, "stars": 70000},
				"market_data": map[string]interface{}{
					"current_price":               map[string]float64{"usd": 45000, "eur": 41000},
					"market_cap":                  map[string]float64{"usd": 850e9},
					"total_volume":                map[string]float64{"usd": 25e9},
					"high_24h":                    map[string]float64{"usd": 46000},
					"low_24h":                     map[string]float64{"usd": 44000},
					"ath":                         map[string]float64{"usd": 69000},
					"ath_change_percentage":       map[string]float64{"usd": -34.78},
					"ath_date":                    map[string]string{"usd": "2021-11-10T14:24:11.849Z"},
					"price_change_24h":            1000,
					"price_change_percentage_24h": 2.27,
					"circulating_supply":          19000000,
					"max_supply":                  21000000,
				},
				"last_updated": "2023-01-01T12:00:00.000Z",
			})
		},
	})

	d, err := newClient(srv.URL).CryptocurrencyDetail(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("CryptocurrencyDetail: %v", err)
	}
	if d.CurrentPrice != 45000 || d.MarketCap != 850e9 {
		t.Errorf("usd values not picked: price=%v cap=%v", d.CurrentPrice, d.MarketCap)
	}
	if d.Image != "https://example.com/btc-large.png" {
		t.Errorf("image should use the large variant, got %q", d.Image)
	}
	if len(d.Links.Homepage) != 1 {
		t.Errorf("empty homepage entries should be dropped: %v", d.Links.Homepage)
	}
	if _, ok := d.Description["de"]; ok {
		t.Error("empty description languages should be dropped")
	}
	if d.DeveloperScore == nil || *d.DeveloperScore != 100000 {
		t.Errorf("developer score should be forks+stars, got %v", d.DeveloperScore)
	}
	if d.CommunityScore != nil {
		t.Error("absent community_score should stay nil")
	}
	if d.GenesisDate == nil || *d.GenesisDate != "2009-01-03" {
		t.Errorf("genesis date: %v", d.GenesisDate)
	}
	if d.Summary().ID != "bitcoin" {
		t.Error("Summary projection lost the id")
	}
}

func TestCryptocurrencyDetailNotFound(t *testing.T) {
	srv, _ := mockServer(t, map[string]http.HandlerFunc{
		"/coins/": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]string{"error": "coin not found"})
		},
	})

	d, err := newClient(srv.URL).CryptocurrencyDetail(context.Background(), "nope")
	if d != nil {
		t.Error("expected nil detail on failure")
	}
	if coingecko.KindOf(err) != coingecko.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "coin not found") {
		t.Errorf("provider message should propagate: %v", err)
	}
	if coingecko.KindNotFound.Retryable() {
		t.Error("NotFound must not be retryable")
	}
}

func TestCryptocurrencyDetailMissingMarketData(t *testing.T) {
	srv, _ := mockServer(t, map[string]http.HandlerFunc{
		"/coins/bitcoin": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]interface{}{"id": "bitcoin", "symbol": "btc", "name": "Bitcoin"})
		},
	})

	_, err := newClient(srv.URL).CryptocurrencyDetail(context.Background(), "bitcoin")
	if !errors.Is(err, coingecko.ErrTransport) {
		t.Fatalf("expected Transport decode failure, got %v", err)
	}
}

// ─── Chart ────────────────────────────────────────────────────────────────────

func TestChartSeriesZipsPositionally(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	t1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli()

	srv, _ := mockServer(t, map[string]http.HandlerFunc{
		"/coins/bitcoin/market_chart": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("days") != "7" || q.Get("interval") != "daily" || q.Get("vs_currency") != "usd" {
				t.Errorf("unexpected params: %v", q)
			}
			writeJSON(w, map[string]interface{}{
				"prices":        [][]float64{{float64(t0), 100}, {float64(t1), 110}},
				"total_volumes": [][]float64{{float64(t0), 5}, {float64(t1), 6}},
				"market_caps":   [][]float64{{float64(t0), 1000}, {float64(t1), 1100}},
			})
		},
	})

	s, err := newClient(srv.URL).ChartSeries(context.Background(), "bitcoin", 0)
	if err != nil {
		t.Fatalf("ChartSeries: %v", err)
	}
	if s.Days != 7 || len(s.Points) != 2 {
		t.Fatalf("unexpected series: %+v", s)
	}
	p0, p1 := s.Points[0], s.Points[1]
	if p0.Date != "2024-01-01" || p0.Price != 100 || p0.Volume != 5 || p0.MarketCap != 1000 {
		t.Errorf("point 0 wrong: %+v", p0)
	}
	if p1.Date != "2024-01-02" || p1.Price != 110 || p1.Volume != 6 || p1.MarketCap != 1100 {
		t.Errorf("point 1 wrong: %+v", p1)
	}
}

func TestZipChartShortestArrayWins(t *testing.T) {
	points, err := coingecko.ZipChart(coingecko.RawChart{
		Prices:       [][]float64{{0, 1}, {86400000, 2}, {172800000, 3}},
		TotalVolumes: [][]float64{{0, 10}, {86400000, 20}},
		MarketCaps:   [][]float64{{0, 100}, {86400000, 200}, {172800000, 300}},
	})
	if err != nil {
		t.Fatalf("ZipChart: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[1].Date != "1970-01-02" || points[1].Volume != 20 {
		t.Errorf("point 1 wrong: %+v", points[1])
	}
}

func TestZipChartRejectsMalformedPair(t *testing.T) {
	_, err := coingecko.ZipChart(coingecko.RawChart{
		Prices:       [][]float64{{0}},
		TotalVolumes: [][]float64{{0, 1}},
		MarketCaps:   [][]float64{{0, 1}},
	})
	var de *coingecko.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestZipChartIgnoresMalformedPairPastShortest(t *testing.T) {
	points, err := coingecko.ZipChart(coingecko.RawChart{
		Prices:       [][]float64{{0, 1}, {86400000, 2}},
		TotalVolumes: [][]float64{{0, 10}, {86400000, 20}},
		MarketCaps:   [][]float64{{0, 100}, {86400000, 200}, {172800000}},
	})
	if err != nil {
		t.Fatalf("ZipChart: %v", err)
	}
	if len(points) != 2 || points[1].MarketCap != 200 {
		t.Errorf("points: %+v", points)
	}
}

// ─── Error classification ─────────────────────────────────────────────────────

func TestRateLimitedRegardlessOfBody(t *testing.T) {
	bodies := []string{"", "not json", `{"status":{"error_code":429,"error_message":"You've exceeded the Rate Limit"}}`}
	for _, body := range bodies {
		body := body
		srv, calls := mockServer(t, map[string]http.HandlerFunc{
			"/coins/markets": func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(body))
			},
		})
		_, err := newClient(srv.URL).TopCryptocurrencies(context.Background(), 10)
		if !errors.Is(err, coingecko.ErrRateLimited) {
			t.Errorf("body %q: expected RateLimited, got %v", body, err)
		}
		if n := atomic.LoadInt32(calls); n != 1 {
			t.Errorf("body %q: rate limited call must not be retried, got %d calls", body, n)
		}
	}
	if coingecko.KindRateLimited.Retryable() {
		t.Error("RateLimited must not be retryable")
	}
}

func TestTimeoutClassification(t *testing.T) {
	release := make(chan struct{})
	srv, _ := mockServer(t, map[string]http.HandlerFunc{
		"/coins/markets": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		},
	})
	defer close(release)

	c := coingecko.NewClient(coingecko.Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.TopCryptocurrencies(context.Background(), 10)
	if coingecko.KindOf(err) != coingecko.KindTimeout {
		t.Fatalf("expected Timeout, got %v", err)
	}
	if !coingecko.KindTimeout.Retryable() {
		t.Error("Timeout should be retryable")
	}
}

func TestServerErrorCarriesProviderMessage(t *testing.T) {
	srv, _ := mockServer(t, map[string]http.HandlerFunc{
		"/coins/markets": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]string{"error": "invalid vs_currency"})
		},
	})

	_, err := newClient(srv.URL).TopCryptocurrencies(context.Background(), 10)
	if !errors.Is(err, coingecko.ErrTransport) {
		t.Fatalf("expected Transport, got %v", err)
	}
	if got := coingecko.UserMessage(err); got != "invalid vs_currency" {
		t.Errorf("UserMessage: expected provider text, got %q", got)
	}
}

func TestMalformedBodyIsTransport(t *testing.T) {
	srv, _ := mockServer(t, map[string]http.HandlerFunc{
		"/coins/markets": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"not":"an array"}`))
		},
	})
	_, err := newClient(srv.URL).TopCryptocurrencies(context.Background(), 10)
	if coingecko.KindOf(err) != coingecko.KindTransport {
		t.Fatalf("expected Transport, got %v", err)
	}
}

func TestAPIKeyHeaderSent(t *testing.T) {
	srv, _ := mockServer(t, map[string]http.HandlerFunc{
		"/coins/markets": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("x-cg-demo-api-key"); got != "demo-key" {
				t.Errorf("api key header: expected demo-key, got %q", got)
			}
			writeJSON(w, []interface{}{})
		},
	})
	c := coingecko.NewClient(coingecko.Options{BaseURL: srv.URL, APIKey: "demo-key"})
	if _, err := c.TopCryptocurrencies(context.Background(), 1); err != nil {
		t.Fatalf("TopCryptocurrencies: %v", err)
	}
}

func TestUserMessages(t *testing.T) {
	cases := map[coingecko.Kind]string{
		coingecko.KindRateLimited: "Rate limit exceeded. Please try again later.",
		coingecko.KindTimeout:     "Request timeout. Please check your connection.",
		coingecko.KindTransport:   "Failed to fetch data",
	}
	for kind, want := range cases {
		err := &coingecko.Error{Kind: kind, Op: "markets"}
		if got := coingecko.UserMessage(err); got != want {
			t.Errorf("%s: expected %q, got %q", kind, want, got)
		}
	}
	if coingecko.UserMessage(nil) != "" {
		t.Error("nil error should have no message")
	}
}
