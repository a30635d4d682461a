package query

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the operation a cache key addresses.
type Kind string

const (
	KindTop    Kind = "top"
	KindSearch Kind = "search"
	KindDetail Kind = "detail"
	KindChart  Kind = "chart"
)

// Key addresses one cache entry: an operation kind plus its parameters.
type Key struct {
	Kind   Kind
	Params []string
}

// TopKey addresses the top-N listing.
func TopKey(limit int) Key { return Key{Kind: KindTop, Params: []string{strconv.Itoa(limit)}} }

// SearchKey addresses one search query, verbatim.
func SearchKey(q string) Key { return Key{Kind: KindSearch, Params: []string{q}} }

// DetailKey addresses one coin's detail record.
func DetailKey(id string) Key { return Key{Kind: KindDetail, Params: []string{id}} }

// ChartKey addresses one coin's chart over a number of days.
func ChartKey(id string, days int) Key {
	return Key{Kind: KindChart, Params: []string{id, strconv.Itoa(days)}}
}

// String returns the canonical form kind|p1|p2. Parameters are escaped so
// a literal '|' in a search query cannot collide with another key.
func (k Key) String() string {
	var sb strings.Builder
	sb.WriteString(string(k.Kind))
	for _, p := range k.Params {
		sb.WriteByte('|')
		sb.WriteString(url.PathEscape(p))
	}
	return sb.String()
}

// Policy maps each kind to the maximum age of a cached value before it is
// re-fetched. Kinds missing from the map are always stale.
type Policy map[Kind]time.Duration

// DefaultPolicy is the staleness table: the top listing is always stale,
// detail records live three minutes, searches and charts five.
func DefaultPolicy() Policy {
	return Policy{
		KindTop:    0,
		KindSearch: 5 * time.Minute,
		KindDetail: 3 * time.Minute,
		KindChart:  5 * time.Minute,
	}
}

// TTL returns the time-to-live for kind.
func (p Policy) TTL(kind Kind) time.Duration {
	return p[kind]
}
