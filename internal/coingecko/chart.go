package coingecko

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/util"
)

// ─── Market Chart ─────────────────────────────────────────────────────────────

// ChartSeries fetches daily price/volume/market-cap history for one coin.
// days <= 0 selects DefaultDays.
func (c *Client) ChartSeries(ctx context.Context, id string, days int) (*model.ChartSeries, error) {
	const op = "market_chart"
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &Error{Kind: KindNotFound, Op: op, Message: "empty coin id"}
	}
	if days <= 0 {
		days = DefaultDays
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("days", strconv.Itoa(days))
	params.Set("interval", "daily")

	var raw RawChart
	if err := c.get(ctx, op, "coins/"+url.PathEscape(id)+"/market_chart", params, &raw); err != nil {
		return nil, err
	}

	points, err := ZipChart(raw)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, Err: err}
	}
	return &model.ChartSeries{ID: id, Days: days, Points: points}, nil
}

// RawChart is the provider's parallel-array chart payload. Each pair is
// [timestamp_ms, value].
type RawChart struct {
	Prices       [][]float64 `json:"prices"`
	TotalVolumes [][]float64 `json:"total_volumes"`
	MarketCaps   [][]float64 `json:"market_caps"`
}

// ZipChart joins the three arrays by position. The shortest array bounds
// the output; each point's date comes from the price timestamp truncated to
// its UTC day.
func ZipChart(raw RawChart) ([]model.ChartPoint, error) {
	n := min(len(raw.Prices), len(raw.TotalVolumes), len(raw.MarketCaps))
	for _, arr := range []struct {
		name  string
		pairs [][]float64
	}{
		{"prices", raw.Prices},
		{"total_volumes", raw.TotalVolumes},
		{"market_caps", raw.MarketCaps},
	} {
		// Pairs past n are dropped, so their shape does not matter.
		for i, pair := range arr.pairs[:n] {
			if len(pair) != 2 {
				return nil, &DecodeError{
					Field:  fmt.Sprintf("%s[%d]", arr.name, i),
					Reason: fmt.Sprintf("expected [timestamp, value], got %d elements", len(pair)),
				}
			}
		}
	}

	points := make([]model.ChartPoint, n)
	for i := 0; i < n; i++ {
		points[i] = model.ChartPoint{
			Date:      util.DayOf(int64(raw.Prices[i][0])),
			Price:     raw.Prices[i][1],
			Volume:    raw.TotalVolumes[i][1],
			MarketCap: raw.MarketCaps[i][1],
		}
	}
	return points, nil
}
