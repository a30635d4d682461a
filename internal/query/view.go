package query

import (
	"context"
	"encoding/json"
	"time"
)

// View is the consumer-facing state of one query.
type View[T any] struct {
	Data       T
	HasData    bool
	IsLoading  bool // fetching with nothing to show yet
	IsFetching bool // any fetch in flight
	Err        error
	UpdatedAt  time.Time
	Fetches    int
}

// Query is a typed handle on one cache key. A disabled query never fetches
// and always reports the idle view.
type Query[T any] struct {
	cache    *Cache
	key      Key
	fetch    func(ctx context.Context) (T, error)
	disabled bool
}

// NewQuery binds key to fetch on c.
func NewQuery[T any](c *Cache, key Key, fetch func(ctx context.Context) (T, error)) *Query[T] {
	return &Query[T]{cache: c, key: key, fetch: fetch}
}

// Disabled returns a query that never fetches.
func Disabled[T any](c *Cache, key Key) *Query[T] {
	return &Query[T]{cache: c, key: key, disabled: true}
}

func (q *Query[T]) Key() Key      { return q.key }
func (q *Query[T]) Enabled() bool { return !q.disabled }

// Get returns cached data when fresh, otherwise fetches and waits.
func (q *Query[T]) Get(ctx context.Context) View[T] {
	if q.disabled {
		return View[T]{}
	}
	return viewOf[T](q.cache.Get(ctx, q.key, q.fetcher(), decodeAs[T]))
}

// Refetch fetches regardless of freshness.
func (q *Query[T]) Refetch(ctx context.Context) View[T] {
	if q.disabled {
		return View[T]{}
	}
	return viewOf[T](q.cache.Refetch(ctx, q.key, q.fetcher(), decodeAs[T]))
}

// View returns the current state without fetching.
func (q *Query[T]) View() View[T] {
	if q.disabled {
		return View[T]{}
	}
	return viewOf[T](q.cache.Peek(q.key))
}

// Subscribe delivers every change to this query's entry.
func (q *Query[T]) Subscribe(fn func(View[T])) (unsubscribe func()) {
	if q.disabled {
		return func() {}
	}
	return q.cache.Subscribe(q.key, func(s Snapshot) { fn(viewOf[T](s)) })
}

func (q *Query[T]) fetcher() Fetcher {
	return func(ctx context.Context) (any, error) {
		v, err := q.fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func decodeAs[T any](data []byte) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func viewOf[T any](s Snapshot) View[T] {
	v := View[T]{
		IsLoading:  s.IsLoading(),
		IsFetching: s.Fetching,
		Err:        s.Err,
		UpdatedAt:  s.UpdatedAt,
		Fetches:    s.Fetches,
	}
	if s.HasValue {
		if data, ok := s.Value.(T); ok {
			v.Data, v.HasData = data, true
		}
	}
	return v
}
