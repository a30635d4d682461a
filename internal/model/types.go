// Package model defines the canonical data types used throughout coinwatch.
// These types are the single source of truth for provider entities and the
// result envelope that every command returns.
package model

import (
	"fmt"
	"time"
)

// ─── Market Types ─────────────────────────────────────────────────────────────

// ROI is the provider's return-on-investment block for ICO-era coins.
type ROI struct {
	Times      float64 `json:"times"`
	Currency   string  `json:"currency"`
	Percentage float64 `json:"percentage"`
}

// CryptocurrencySummary is one row of market data.
// Nullable numerics are pointers; everything else is always populated by the
// client's decode step.
type CryptocurrencySummary struct {
	ID                           string    `json:"id"`
	Symbol                       string    `json:"symbol"`
	Name                         string    `json:"name"`
	Image                        string    `json:"image"`
	CurrentPrice                 float64   `json:"current_price"`
	MarketCap                    float64   `json:"market_cap"`
	MarketCapRank                int       `json:"market_cap_rank"` // 0 = unranked
	FullyDilutedValuation        *float64  `json:"fully_diluted_valuation"`
	TotalVolume                  float64   `json:"total_volume"`
	High24h                      *float64  `json:"high_24h"`
	Low24h                       *float64  `json:"low_24h"`
	PriceChange24h               float64   `json:"price_change_24h"`
	PriceChangePercentage24h     float64   `json:"price_change_percentage_24h"`
	MarketCapChange24h           float64   `json:"market_cap_change_24h"`
	MarketCapChangePercentage24h float64   `json:"market_cap_change_percentage_24h"`
	CirculatingSupply            float64   `json:"circulating_supply"`
	TotalSupply                  *float64  `json:"total_supply"`
	MaxSupply                    *float64  `json:"max_supply"`
	ATH                          float64   `json:"ath"`
	ATHChangePercentage          float64   `json:"ath_change_percentage"`
	ATHDate                      string    `json:"ath_date"`
	ATL                          float64   `json:"atl"`
	ATLChangePercentage          float64   `json:"atl_change_percentage"`
	ATLDate                      string    `json:"atl_date"`
	ROI                          *ROI      `json:"roi"`
	LastUpdated                  time.Time `json:"last_updated"`
}

// Validate reports a violation of the 24h range invariant. Provider data
// governs, so callers log rather than reject.
func (s CryptocurrencySummary) Validate() error {
	if s.High24h != nil && s.Low24h != nil && *s.High24h < *s.Low24h {
		return fmt.Errorf("%s: high_24h %g below low_24h %g", s.ID, *s.High24h, *s.Low24h)
	}
	return nil
}

// Links groups the external URLs and handles published for a coin.
type Links struct {
	Homepage                  []string `json:"homepage"`
	BlockchainSite            []string `json:"blockchain_site"`
	OfficialForumURL          []string `json:"official_forum_url"`
	ChatURL                   []string `json:"chat_url"`
	TwitterScreenName         string   `json:"twitter_screen_name"`
	FacebookUsername          string   `json:"facebook_username"`
	TelegramChannelIdentifier string   `json:"telegram_channel_identifier"`
	SubredditURL              string   `json:"subreddit_url"`
	ReposGitHub               []string `json:"repos_github"`
}

// CryptocurrencyDetail is a Summary plus descriptive and score fields.
type CryptocurrencyDetail struct {
	CryptocurrencySummary

	Description                  map[string]string `json:"description"`
	Links                        Links             `json:"links"`
	GenesisDate                  *string           `json:"genesis_date"`
	SentimentVotesUpPercentage   *float64          `json:"sentiment_votes_up_percentage"`
	SentimentVotesDownPercentage *float64          `json:"sentiment_votes_down_percentage"`
	CoingeckoRank                *int              `json:"coingecko_rank"`
	CoingeckoScore               *float64          `json:"coingecko_score"`
	DeveloperScore               *float64          `json:"developer_score"`
	CommunityScore               *float64          `json:"community_score"`
	LiquidityScore               *float64          `json:"liquidity_score"`
	PublicInterestScore          *float64          `json:"public_interest_score"`
}

// Summary projects the fields a detail record shares with a market row.
func (d CryptocurrencyDetail) Summary() CryptocurrencySummary {
	return d.CryptocurrencySummary
}

// DescriptionIn returns the description for lang, falling back to English.
func (d CryptocurrencyDetail) DescriptionIn(lang string) string {
	if v := d.Description[lang]; v != "" {
		return v
	}
	return d.Description["en"]
}

// ─── Chart Types ──────────────────────────────────────────────────────────────

// ChartPoint is one daily sample. Date is YYYY-MM-DD in UTC.
type ChartPoint struct {
	Date      string  `json:"date"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	MarketCap float64 `json:"market_cap"`
}

// ChartSeries is an ascending sequence of points for one coin.
type ChartSeries struct {
	ID     string       `json:"id"`
	Days   int          `json:"days"`
	Points []ChartPoint `json:"points"`
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance and cache metadata for a command result.
type ResultStats struct {
	CacheHit   bool  `json:"cache_hit"`
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindCoins        = "coins"
	KindCoinDetail   = "coin_detail"
	KindChartSeries  = "chart_series"
	KindChartSummary = "chart_summary"
	KindSearchResult = "search_result"
	KindTable        = "table"
)

// SearchResult holds the matches for a search query.
type SearchResult struct {
	Query string                  `json:"query"`
	Coins []CryptocurrencySummary `json:"coins"`
}

// Table is a generic header-plus-rows payload for listings that have no
// dedicated type (cache stats, trend fits, config dumps).
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}
