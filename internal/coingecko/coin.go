package coingecko

import (
	"context"
	"net/url"
	"strings"

	"github.com/derickschaefer/coinwatch/internal/model"
)

// ─── Coin Detail ──────────────────────────────────────────────────────────────

// CryptocurrencyDetail fetches the full record for one coin id.
func (c *Client) CryptocurrencyDetail(ctx context.Context, id string) (*model.CryptocurrencyDetail, error) {
	const op = "coin"
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &Error{Kind: KindNotFound, Op: op, Message: "empty coin id"}
	}

	params := url.Values{}
	params.Set("localization", "false")
	params.Set("tickers", "false")
	params.Set("market_data", "true")
	params.Set("community_data", "true")
	params.Set("developer_data", "true")
	params.Set("sparkline", "false")

	var raw rawDetail
	if err := c.get(ctx, op, "coins/"+url.PathEscape(id), params, &raw); err != nil {
		return nil, err
	}
	if raw.ID == "" && raw.Error != "" {
		return nil, &Error{Kind: KindNotFound, Op: op, Message: raw.Error}
	}

	d, err := raw.normalize()
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, Err: err}
	}
	return d, nil
}

// ─── Internal helpers ─────────────────────────────────────────────────────────

// usdMap is a per-currency value block; only the usd entry is consumed.
type usdMap map[string]*float64

func (m usdMap) usd() *float64 { return m["usd"] }

type rawMarketData struct {
	CurrentPrice                 usdMap            `json:"current_price"`
	MarketCap                    usdMap            `json:"market_cap"`
	FullyDilutedValuation        usdMap            `json:"fully_diluted_valuation"`
	TotalVolume                  usdMap            `json:"total_volume"`
	High24h                      usdMap            `json:"high_24h"`
	Low24h                       usdMap            `json:"low_24h"`
	ATH                          usdMap            `json:"ath"`
	ATHChangePercentage          usdMap            `json:"ath_change_percentage"`
	ATHDate                      map[string]string `json:"ath_date"`
	ATL                          usdMap            `json:"atl"`
	ATLChangePercentage          usdMap            `json:"atl_change_percentage"`
	ATLDate                      map[string]string `json:"atl_date"`
	PriceChange24h               *float64          `json:"price_change_24h"`
	PriceChangePercentage24h     *float64          `json:"price_change_percentage_24h"`
	MarketCapChange24h           *float64          `json:"market_cap_change_24h"`
	MarketCapChangePercentage24h *float64          `json:"market_cap_change_percentage_24h"`
	CirculatingSupply            *float64          `json:"circulating_supply"`
	TotalSupply                  *float64          `json:"total_supply"`
	MaxSupply                    *float64          `json:"max_supply"`
	ROI                          *model.ROI        `json:"roi"`
}

type rawLinks struct {
	Homepage                  []string `json:"homepage"`
	BlockchainSite            []string `json:"blockchain_site"`
	OfficialForumURL          []string `json:"official_forum_url"`
	ChatURL                   []string `json:"chat_url"`
	TwitterScreenName         string   `json:"twitter_screen_name"`
	FacebookUsername          string   `json:"facebook_username"`
	TelegramChannelIdentifier string   `json:"telegram_channel_identifier"`
	SubredditURL              string   `json:"subreddit_url"`
	ReposURL                  struct {
		GitHub []string `json:"github"`
	} `json:"repos_url"`
}

type rawDeveloperData struct {
	Forks *float64 `json:"forks"`
	Stars *float64 `json:"stars"`
}

type rawDetail struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Image  struct {
		Thumb string `json:"thumb"`
		Small string `json:"small"`
		Large string `json:"large"`
	} `json:"image"`
	MarketCapRank                *int              `json:"market_cap_rank"`
	MarketData                   *rawMarketData    `json:"market_data"`
	Description                  map[string]string `json:"description"`
	Links                        rawLinks          `json:"links"`
	GenesisDate                  *string           `json:"genesis_date"`
	SentimentVotesUpPercentage   *float64          `json:"sentiment_votes_up_percentage"`
	SentimentVotesDownPercentage *float64          `json:"sentiment_votes_down_percentage"`
	CoingeckoRank                *int              `json:"coingecko_rank"`
	CoingeckoScore               *float64          `json:"coingecko_score"`
	CommunityScore               *float64          `json:"community_score"`
	LiquidityScore               *float64          `json:"liquidity_score"`
	PublicInterestScore          *float64          `json:"public_interest_score"`
	DeveloperData                *rawDeveloperData `json:"developer_data"`
	LastUpdated                  string            `json:"last_updated"`
	Error                        string            `json:"error"`
}

func (r rawDetail) normalize() (*model.CryptocurrencyDetail, error) {
	if err := requireIdentity(r.ID, r.Symbol, r.Name); err != nil {
		return nil, err
	}
	md := r.MarketData
	if md == nil {
		return nil, &DecodeError{Field: r.ID + ".market_data", Reason: "missing"}
	}
	price := md.CurrentPrice.usd()
	if price == nil {
		return nil, &DecodeError{Field: r.ID + ".market_data.current_price.usd", Reason: "missing"}
	}
	updated, err := parseTimestamp(r.LastUpdated)
	if err != nil {
		return nil, &DecodeError{Field: r.ID + ".last_updated", Reason: err.Error()}
	}

	d := &model.CryptocurrencyDetail{
		CryptocurrencySummary: model.CryptocurrencySummary{
			ID:                           r.ID,
			Symbol:                       r.Symbol,
			Name:                         r.Name,
			Image:                        r.Image.Large,
			CurrentPrice:                 *price,
			MarketCap:                    deref(md.MarketCap.usd()),
			MarketCapRank:                derefInt(r.MarketCapRank),
			FullyDilutedValuation:        md.FullyDilutedValuation.usd(),
			TotalVolume:                  deref(md.TotalVolume.usd()),
			High24h:                      md.High24h.usd(),
			Low24h:                       md.Low24h.usd(),
			PriceChange24h:               deref(md.PriceChange24h),
			PriceChangePercentage24h:     deref(md.PriceChangePercentage24h),
			MarketCapChange24h:           deref(md.MarketCapChange24h),
			MarketCapChangePercentage24h: deref(md.MarketCapChangePercentage24h),
			CirculatingSupply:            deref(md.CirculatingSupply),
			TotalSupply:                  md.TotalSupply,
			MaxSupply:                    md.MaxSupply,
			ATH:                          deref(md.ATH.usd()),
			ATHChangePercentage:          deref(md.ATHChangePercentage.usd()),
			ATHDate:                      md.ATHDate["usd"],
			ATL:                          deref(md.ATL.usd()),
			ATLChangePercentage:          deref(md.ATLChangePercentage.usd()),
			ATLDate:                      md.ATLDate["usd"],
			ROI:                          md.ROI,
			LastUpdated:                  updated,
		},
		Description: nonEmpty(r.Description),
		Links: model.Links{
			Homepage:                  compact(r.Links.Homepage),
			BlockchainSite:            compact(r.Links.BlockchainSite),
			OfficialForumURL:          compact(r.Links.OfficialForumURL),
			ChatURL:                   compact(r.Links.ChatURL),
			TwitterScreenName:         r.Links.TwitterScreenName,
			FacebookUsername:          r.Links.FacebookUsername,
			TelegramChannelIdentifier: r.Links.TelegramChannelIdentifier,
			SubredditURL:              r.Links.SubredditURL,
			ReposGitHub:               compact(r.Links.ReposURL.GitHub),
		},
		GenesisDate:                  emptyToNil(r.GenesisDate),
		SentimentVotesUpPercentage:   r.SentimentVotesUpPercentage,
		SentimentVotesDownPercentage: r.SentimentVotesDownPercentage,
		CoingeckoRank:                r.CoingeckoRank,
		CoingeckoScore:               r.CoingeckoScore,
		CommunityScore:               r.CommunityScore,
		LiquidityScore:               r.LiquidityScore,
		PublicInterestScore:          r.PublicInterestScore,
	}
	if dd := r.DeveloperData; dd != nil && dd.Forks != nil && dd.Stars != nil {
		score := *dd.Forks + *dd.Stars
		d.DeveloperScore = &score
	}
	return d, nil
}

// compact drops the empty strings the provider pads link arrays with.
func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nonEmpty(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
