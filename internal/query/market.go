package query

import (
	"context"
	"strings"

	"github.com/derickschaefer/coinwatch/internal/model"
)

// Source is the provider surface the market queries read from.
// *coingecko.Client satisfies it.
type Source interface {
	TopCryptocurrencies(ctx context.Context, limit int) ([]model.CryptocurrencySummary, error)
	SearchCryptocurrencies(ctx context.Context, query string) ([]model.CryptocurrencySummary, error)
	CryptocurrencyDetail(ctx context.Context, id string) (*model.CryptocurrencyDetail, error)
	ChartSeries(ctx context.Context, id string, days int) (*model.ChartSeries, error)
}

const (
	defaultLimit = 20
	defaultDays  = 7
)

// Market exposes the four market queries over one cache.
type Market struct {
	src   Source
	cache *Cache
}

// NewMarket binds src to cache.
func NewMarket(src Source, cache *Cache) *Market {
	return &Market{src: src, cache: cache}
}

func (m *Market) Cache() *Cache { return m.cache }

// Top is the top-N listing by market cap. limit <= 0 selects 20.
func (m *Market) Top(limit int) *Query[[]model.CryptocurrencySummary] {
	if limit <= 0 {
		limit = defaultLimit
	}
	return NewQuery(m.cache, TopKey(limit), func(ctx context.Context) ([]model.CryptocurrencySummary, error) {
		return m.src.TopCryptocurrencies(ctx, limit)
	})
}

// Search matches q against name and symbol. A blank q is disabled.
func (m *Market) Search(q string) *Query[[]model.CryptocurrencySummary] {
	key := SearchKey(q)
	if strings.TrimSpace(q) == "" {
		return Disabled[[]model.CryptocurrencySummary](m.cache, key)
	}
	return NewQuery(m.cache, key, func(ctx context.Context) ([]model.CryptocurrencySummary, error) {
		return m.src.SearchCryptocurrencies(ctx, q)
	})
}

// Detail is one coin's full record. An empty id is disabled.
func (m *Market) Detail(id string) *Query[*model.CryptocurrencyDetail] {
	id = strings.TrimSpace(id)
	key := DetailKey(id)
	if id == "" {
		return Disabled[*model.CryptocurrencyDetail](m.cache, key)
	}
	return NewQuery(m.cache, key, func(ctx context.Context) (*model.CryptocurrencyDetail, error) {
		return m.src.CryptocurrencyDetail(ctx, id)
	})
}

// Chart is one coin's daily history. An empty id is disabled; days <= 0
// selects 7.
func (m *Market) Chart(id string, days int) *Query[*model.ChartSeries] {
	id = strings.TrimSpace(id)
	if days <= 0 {
		days = defaultDays
	}
	key := ChartKey(id, days)
	if id == "" {
		return Disabled[*model.ChartSeries](m.cache, key)
	}
	return NewQuery(m.cache, key, func(ctx context.Context) (*model.ChartSeries, error) {
		return m.src.ChartSeries(ctx, id, days)
	})
}

// Refresh force-refetches the top listing.
func (m *Market) Refresh(ctx context.Context, limit int) View[[]model.CryptocurrencySummary] {
	return m.Top(limit).Refetch(ctx)
}
