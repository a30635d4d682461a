// Package query is the key-addressed, request-deduplicating cache that sits
// between consumers and the provider client.
//
// Each key has at most one fetch in flight. Consumers that ask for the same
// key while it is in flight share that fetch. Successful fetches replace the
// value; failed fetches record the error but keep the last good value so it
// can still be displayed. The cache never returns errors of its own: every
// outcome is expressed as a Snapshot.
package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher produces a fresh value for one key.
type Fetcher func(ctx context.Context) (any, error)

// Decoder rebuilds a value from its persisted JSON form.
type Decoder func(data []byte) (any, error)

// Record is the persisted form of a successful fetch.
type Record struct {
	Key       string          `json:"key"`
	FetchedAt time.Time       `json:"fetched_at"`
	Value     json.RawMessage `json:"value"`
}

// Persister stores last-known-good values outside the process so a new
// process starts warm. Implementations must be safe for concurrent use.
type Persister interface {
	Load(ctx context.Context, key string) (Record, bool, error)
	Save(ctx context.Context, key string, rec Record) error
}

// Snapshot is a point-in-time view of one entry.
type Snapshot struct {
	Key       Key
	Value     any
	HasValue  bool
	Err       error
	Fetching  bool
	UpdatedAt time.Time // last successful fetch
	ErrorAt   time.Time // last failed fetch
	Fetches   int       // completed fetches, successful or not
}

// IsLoading reports a fetch in flight with nothing to show yet.
func (s Snapshot) IsLoading() bool { return s.Fetching && !s.HasValue }

// Options configures a Cache.
type Options struct {
	Policy    Policy // nil selects DefaultPolicy
	Persister Persister
	Logger    *slog.Logger
	Now       func() time.Time
}

// Cache is safe for concurrent use. Entries live for the life of the Cache.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	nextSub int

	group   singleflight.Group
	policy  Policy
	persist Persister
	log     *slog.Logger
	now     func() time.Time
}

type entry struct {
	key       Key
	value     any
	hasValue  bool
	err       error
	fetching  bool
	updatedAt time.Time
	errorAt   time.Time
	fetches   int
	subs      map[int]func(Snapshot)
	seed      sync.Once
}

// New creates an empty Cache.
func New(opts Options) *Cache {
	policy := opts.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]*entry),
		policy:  policy,
		persist: opts.Persister,
		log:     log,
		now:     now,
	}
}

// Policy returns the staleness table in use.
func (c *Cache) Policy() Policy { return c.policy }

// Get returns the entry for key, fetching first when it is missing or
// stale. It waits for the fetch or for ctx, whichever comes first; a caller
// that stops waiting leaves the fetch running and its result still lands
// in the cache.
func (c *Cache) Get(ctx context.Context, key Key, fetch Fetcher, decode Decoder) Snapshot {
	c.warm(ctx, key, decode)
	if !c.stale(key) {
		return c.Peek(key)
	}
	return c.run(ctx, key, fetch, false)
}

// Refetch fetches key regardless of staleness. If a fetch for key is
// already in flight, the caller joins it instead of issuing a second one.
func (c *Cache) Refetch(ctx context.Context, key Key, fetch Fetcher, decode Decoder) Snapshot {
	c.warm(ctx, key, decode)
	return c.run(ctx, key, fetch, true)
}

// Peek returns the current snapshot for key without fetching.
func (c *Cache) Peek(key Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return Snapshot{Key: key}
	}
	return e.snapshot()
}

// Subscribe registers fn to receive every snapshot change for key (fetch
// start and completion). The returned function unsubscribes; after it
// returns fn is never called again.
func (c *Cache) Subscribe(key Key, fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	e := c.lookup(key)
	id := c.nextSub
	c.nextSub++
	e.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(e.subs, id)
		c.mu.Unlock()
	}
}

// Entries lists every entry sorted by key.
func (c *Cache) Entries() []Snapshot {
	c.mu.Lock()
	out := make([]Snapshot, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.snapshot())
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// ─── Internals ────────────────────────────────────────────────────────────────

// lookup returns the entry for key, creating it. Caller holds c.mu.
func (c *Cache) lookup(key Key) *entry {
	k := key.String()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{key: key, subs: make(map[int]func(Snapshot))}
		c.entries[k] = e
	}
	return e
}

// warm seeds a new entry from the persister, once per entry.
func (c *Cache) warm(ctx context.Context, key Key, decode Decoder) {
	c.mu.Lock()
	e := c.lookup(key)
	c.mu.Unlock()

	if c.persist == nil || decode == nil {
		return
	}
	e.seed.Do(func() {
		rec, ok, err := c.persist.Load(ctx, key.String())
		if err != nil {
			c.log.Warn("loading persisted query", "key", key.String(), "err", err)
			return
		}
		if !ok {
			return
		}
		v, err := decode(rec.Value)
		if err != nil {
			c.log.Warn("decoding persisted query", "key", key.String(), "err", err)
			return
		}
		c.mu.Lock()
		if !e.hasValue {
			e.value, e.hasValue, e.updatedAt = v, true, rec.FetchedAt
		}
		c.mu.Unlock()
		c.log.Debug("query seeded from store", "key", key.String(), "fetched_at", rec.FetchedAt)
	})
}

// stale reports whether key needs a fetch under the policy.
func (c *Cache) stale(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(key)
	if !e.hasValue {
		return true
	}
	return c.now().Sub(e.updatedAt) >= c.policy.TTL(key.Kind)
}

// skipped is the result of a shared call that found the entry fresh.
type skipped struct{}

func (c *Cache) run(ctx context.Context, key Key, fetch Fetcher, force bool) Snapshot {
	k := key.String()
	for {
		ch := c.group.DoChan(k, func() (any, error) {
			// A caller may have passed the staleness check just before another
			// fetch for the key completed.
			if !force && !c.stale(key) {
				return skipped{}, nil
			}
			c.begin(key)
			v, err := fetch(context.WithoutCancel(ctx))
			c.complete(ctx, key, v, err)
			return v, err
		})

		select {
		case res := <-ch:
			// A forced caller that joined a call which then fetched nothing
			// issues its own.
			if _, ok := res.Val.(skipped); ok && force {
				continue
			}
		case <-ctx.Done():
			c.log.Debug("caller stopped waiting for query", "key", k, "err", ctx.Err())
		}
		return c.Peek(key)
	}
}

func (c *Cache) begin(key Key) {
	c.mu.Lock()
	e := c.lookup(key)
	e.fetching = true
	snap, subs := e.snapshot(), e.subscribers()
	c.mu.Unlock()

	c.log.Debug("query fetch started", "key", key.String())
	notify(subs, snap)
}

func (c *Cache) complete(ctx context.Context, key Key, v any, err error) {
	now := c.now()

	c.mu.Lock()
	e := c.lookup(key)
	e.fetching = false
	e.fetches++
	if err != nil {
		e.err, e.errorAt = err, now
	} else {
		e.value, e.hasValue, e.err, e.updatedAt = v, true, nil, now
	}
	snap, subs := e.snapshot(), e.subscribers()
	c.mu.Unlock()

	if err != nil {
		c.log.Debug("query fetch failed", "key", key.String(), "err", err, "kept_value", snap.HasValue)
	} else {
		c.log.Debug("query fetch succeeded", "key", key.String())
	}
	notify(subs, snap)

	if err == nil && c.persist != nil {
		c.save(ctx, key, v, now)
	}
}

func (c *Cache) save(ctx context.Context, key Key, v any, at time.Time) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("encoding query for store", "key", key.String(), "err", err)
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	rec := Record{Key: key.String(), FetchedAt: at, Value: data}
	if err := c.persist.Save(sctx, key.String(), rec); err != nil {
		c.log.Warn("persisting query", "key", key.String(), "err", err)
	}
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:       e.key,
		Value:     e.value,
		HasValue:  e.hasValue,
		Err:       e.err,
		Fetching:  e.fetching,
		UpdatedAt: e.updatedAt,
		ErrorAt:   e.errorAt,
		Fetches:   e.fetches,
	}
}

// subscribers copies the callback set. Caller holds c.mu.
func (e *entry) subscribers() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
