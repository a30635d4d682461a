package coingecko

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/derickschaefer/coinwatch/internal/model"
)

// ─── Markets ──────────────────────────────────────────────────────────────────

// TopCryptocurrencies returns the top coins by market cap in provider order.
// limit <= 0 selects DefaultLimit.
func (c *Client) TopCryptocurrencies(ctx context.Context, limit int) ([]model.CryptocurrencySummary, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return c.markets(ctx, "markets", limit)
}

// SearchCryptocurrencies filters the top SearchWindow coins by a
// case-insensitive substring match on name or symbol. A blank query returns
// an empty slice without touching the network.
func (c *Client) SearchCryptocurrencies(ctx context.Context, query string) ([]model.CryptocurrencySummary, error) {
	if strings.TrimSpace(query) == "" {
		return []model.CryptocurrencySummary{}, nil
	}
	all, err := c.markets(ctx, "search", SearchWindow)
	if err != nil {
		return nil, err
	}
	return FilterCoins(all, query, SearchMaxResults), nil
}

// FilterCoins keeps coins whose name or symbol contains query
// (case-insensitive), preserving order, and truncates to max (max <= 0
// means no cap).
func FilterCoins(coins []model.CryptocurrencySummary, query string, max int) []model.CryptocurrencySummary {
	q := strings.ToLower(query)
	out := make([]model.CryptocurrencySummary, 0)
	for _, coin := range coins {
		if strings.Contains(strings.ToLower(coin.Name), q) ||
			strings.Contains(strings.ToLower(coin.Symbol), q) {
			out = append(out, coin)
			if max > 0 && len(out) == max {
				break
			}
		}
	}
	return out
}

func (c *Client) markets(ctx context.Context, op string, perPage int) ([]model.CryptocurrencySummary, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("page", "1")
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", "24h")

	var raw []rawMarket
	if err := c.get(ctx, op, "coins/markets", params, &raw); err != nil {
		return nil, err
	}

	coins := make([]model.CryptocurrencySummary, len(raw))
	for i, r := range raw {
		coin, err := r.normalize()
		if err != nil {
			return nil, decodeFailure(op, "markets["+strconv.Itoa(i)+"]", err.Error())
		}
		if verr := coin.Validate(); verr != nil {
			c.log.Debug("provider row violates range invariant", "err", verr)
		}
		coins[i] = coin
	}
	return coins, nil
}

// ─── Internal helpers ─────────────────────────────────────────────────────────

type rawMarket struct {
	ID                           string     `json:"id"`
	Symbol                       string     `json:"symbol"`
	Name                         string     `json:"name"`
	Image                        string     `json:"image"`
	CurrentPrice                 *float64   `json:"current_price"`
	MarketCap                    *float64   `json:"market_cap"`
	MarketCapRank                *int       `json:"market_cap_rank"`
	FullyDilutedValuation        *float64   `json:"fully_diluted_valuation"`
	TotalVolume                  *float64   `json:"total_volume"`
	High24h                      *float64   `json:"high_24h"`
	Low24h                       *float64   `json:"low_24h"`
	PriceChange24h               *float64   `json:"price_change_24h"`
	PriceChangePercentage24h     *float64   `json:"price_change_percentage_24h"`
	MarketCapChange24h           *float64   `json:"market_cap_change_24h"`
	MarketCapChangePercentage24h *float64   `json:"market_cap_change_percentage_24h"`
	CirculatingSupply            *float64   `json:"circulating_supply"`
	TotalSupply                  *float64   `json:"total_supply"`
	MaxSupply                    *float64   `json:"max_supply"`
	ATH                          *float64   `json:"ath"`
	ATHChangePercentage          *float64   `json:"ath_change_percentage"`
	ATHDate                      string     `json:"ath_date"`
	ATL                          *float64   `json:"atl"`
	ATLChangePercentage          *float64   `json:"atl_change_percentage"`
	ATLDate                      string     `json:"atl_date"`
	ROI                          *model.ROI `json:"roi"`
	LastUpdated                  string     `json:"last_updated"`
}

func (r rawMarket) normalize() (model.CryptocurrencySummary, error) {
	if err := requireIdentity(r.ID, r.Symbol, r.Name); err != nil {
		return model.CryptocurrencySummary{}, err
	}
	if r.CurrentPrice == nil {
		return model.CryptocurrencySummary{}, &DecodeError{Field: r.ID + ".current_price", Reason: "missing"}
	}
	updated, err := parseTimestamp(r.LastUpdated)
	if err != nil {
		return model.CryptocurrencySummary{}, &DecodeError{Field: r.ID + ".last_updated", Reason: err.Error()}
	}
	return model.CryptocurrencySummary{
		ID:                           r.ID,
		Symbol:                       r.Symbol,
		Name:                         r.Name,
		Image:                        r.Image,
		CurrentPrice:                 *r.CurrentPrice,
		MarketCap:                    deref(r.MarketCap),
		MarketCapRank:                derefInt(r.MarketCapRank),
		FullyDilutedValuation:        r.FullyDilutedValuation,
		TotalVolume:                  deref(r.TotalVolume),
		High24h:                      r.High24h,
		Low24h:                       r.Low24h,
		PriceChange24h:               deref(r.PriceChange24h),
		PriceChangePercentage24h:     deref(r.PriceChangePercentage24h),
		MarketCapChange24h:           deref(r.MarketCapChange24h),
		MarketCapChangePercentage24h: deref(r.MarketCapChangePercentage24h),
		CirculatingSupply:            deref(r.CirculatingSupply),
		TotalSupply:                  r.TotalSupply,
		MaxSupply:                    r.MaxSupply,
		ATH:                          deref(r.ATH),
		ATHChangePercentage:          deref(r.ATHChangePercentage),
		ATHDate:                      r.ATHDate,
		ATL:                          deref(r.ATL),
		ATLChangePercentage:          deref(r.ATLChangePercentage),
		ATLDate:                      r.ATLDate,
		ROI:                          r.ROI,
		LastUpdated:                  updated,
	}, nil
}

func requireIdentity(id, symbol, name string) error {
	switch {
	case id == "":
		return &DecodeError{Field: "id", Reason: "missing"}
	case symbol == "":
		return &DecodeError{Field: id + ".symbol", Reason: "missing"}
	case name == "":
		return &DecodeError{Field: id + ".name", Reason: "missing"}
	}
	return nil
}

// parseTimestamp accepts the provider's ISO-8601 timestamps. Empty means
// the provider has no update time for the coin.
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
