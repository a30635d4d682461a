package query_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/query"
)

// ─── Fakes ────────────────────────────────────────────────────────────────────

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memPersister struct {
	mu   sync.Mutex
	recs map[string]query.Record
}

func newMemPersister() *memPersister { return &memPersister{recs: map[string]query.Record{}} }

func (m *memPersister) Load(_ context.Context, key string) (query.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[key]
	return r, ok, nil
}

func (m *memPersister) Save(_ context.Context, key string, rec query.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[key] = rec
	return nil
}

type fakeSource struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSource) TopCryptocurrencies(_ context.Context, limit int) ([]model.CryptocurrencySummary, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.CryptocurrencySummary, limit)
	for i := range out {
		out[i] = model.CryptocurrencySummary{ID: "coin", MarketCapRank: i + 1}
	}
	return out, nil
}

func (f *fakeSource) SearchCryptocurrencies(_ context.Context, q string) ([]model.CryptocurrencySummary, error) {
	f.calls.Add(1)
	return []model.CryptocurrencySummary{{ID: q}}, f.err
}

func (f *fakeSource) CryptocurrencyDetail(_ context.Context, id string) (*model.CryptocurrencyDetail, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	d := &model.CryptocurrencyDetail{}
	d.ID, d.Name, d.CurrentPrice = id, "Bitcoin", 50000
	return d, nil
}

func (f *fakeSource) ChartSeries(_ context.Context, id string, days int) (*model.ChartSeries, error) {
	f.calls.Add(1)
	return &model.ChartSeries{ID: id, Days: days}, f.err
}

func newCache(clk *clock, p query.Persister) *query.Cache {
	opts := query.Options{Now: clk.Now}
	if p != nil {
		opts.Persister = p
	}
	return query.New(opts)
}

// ─── Keys ─────────────────────────────────────────────────────────────────────

func TestKeyString(t *testing.T) {
	cases := []struct {
		key  query.Key
		want string
	}{
		{query.TopKey(20), "top|20"},
		{query.DetailKey("bitcoin"), "detail|bitcoin"},
		{query.ChartKey("bitcoin", 30), "chart|bitcoin|30"},
		{query.SearchKey("a|b"), "search|a%7Cb"},
	}
	for _, tc := range cases {
		if got := tc.key.String(); got != tc.want {
			t.Errorf("%v.String() = %q, want %q", tc.key, got, tc.want)
		}
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := query.DefaultPolicy()
	if p.TTL(query.KindTop) != 0 {
		t.Errorf("top TTL = %v, want 0", p.TTL(query.KindTop))
	}
	if p.TTL(query.KindDetail) != 3*time.Minute {
		t.Errorf("detail TTL = %v", p.TTL(query.KindDetail))
	}
	if p.TTL(query.KindSearch) != 5*time.Minute || p.TTL(query.KindChart) != 5*time.Minute {
		t.Errorf("search/chart TTL = %v/%v", p.TTL(query.KindSearch), p.TTL(query.KindChart))
	}
}

// ─── Cache behaviour ──────────────────────────────────────────────────────────

func TestGetDeduplicatesConcurrentCallers(t *testing.T) {
	c := newCache(newClock(), nil)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	q := query.NewQuery(c, query.DetailKey("bitcoin"), func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "btc", nil
	})

	var wg sync.WaitGroup
	views := make([]query.View[string], 2)
	for i := range views {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			views[i] = q.Get(context.Background())
		}(i)
	}
	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
	for i, v := range views {
		if !v.HasData || v.Data != "btc" {
			t.Errorf("caller %d: got %+v", i, v)
		}
	}
}

func TestRefetchJoinsInFlightFetch(t *testing.T) {
	c := newCache(newClock(), nil)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	q := query.NewQuery(c, query.TopKey(20), func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 42, nil
	})

	done := make(chan query.View[int])
	go func() { done <- q.Get(context.Background()) }()
	<-started

	go func() { done <- q.Refetch(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-done
	<-done

	if n := calls.Load(); n != 1 {
		t.Errorf("forced refetch during in-flight fetch: expected 1 fetch, got %d", n)
	}
}

func TestRefetchJoiningFreshCheckStillFetches(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var (
		armed    atomic.Bool
		nowCalls atomic.Int32
	)
	inCheck := make(chan struct{})
	release := make(chan struct{})
	now := func() time.Time {
		if !armed.Load() {
			return t0
		}
		switch nowCalls.Add(1) {
		case 1:
			// Get's own staleness check sees an old entry.
			return t0.Add(10 * time.Minute)
		case 2:
			// The shared call's recheck stalls, then sees a fresh entry.
			close(inCheck)
			<-release
			return t0
		default:
			return t0.Add(10 * time.Minute)
		}
	}
	c := query.New(query.Options{Now: now})
	key := query.DetailKey("bitcoin")
	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) { return int(calls.Add(1)), nil }

	ctx := context.Background()
	c.Get(ctx, key, fetch, nil)
	armed.Store(true)

	done := make(chan query.Snapshot, 2)
	go func() { done <- c.Get(ctx, key, fetch, nil) }()
	<-inCheck
	go func() { done <- c.Refetch(ctx, key, fetch, nil) }()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-done
	<-done

	if n := calls.Load(); n != 2 {
		t.Errorf("forced refetch was skipped: expected 2 fetches, got %d", n)
	}
	if snap := c.Peek(key); snap.Value != 2 {
		t.Errorf("value = %v, want 2", snap.Value)
	}
}

func TestFailedFetchKeepsPreviousValue(t *testing.T) {
	c := newCache(newClock(), nil)
	fail := false
	boom := errors.New("boom")
	q := query.NewQuery(c, query.TopKey(5), func(ctx context.Context) (string, error) {
		if fail {
			return "", boom
		}
		return "good", nil
	})

	if v := q.Get(context.Background()); !v.HasData || v.Err != nil {
		t.Fatalf("first fetch: %+v", v)
	}
	fail = true
	v := q.Refetch(context.Background())
	if !errors.Is(v.Err, boom) {
		t.Errorf("expected boom error, got %v", v.Err)
	}
	if !v.HasData || v.Data != "good" {
		t.Errorf("previous value lost: %+v", v)
	}
	if v.IsLoading || v.IsFetching {
		t.Errorf("flags not cleared: %+v", v)
	}

	fail = false
	v = q.Refetch(context.Background())
	if v.Err != nil {
		t.Errorf("error not cleared by a successful fetch: %v", v.Err)
	}
}

func TestStalenessFollowsPolicy(t *testing.T) {
	clk := newClock()
	c := newCache(clk, nil)
	var detailCalls, topCalls atomic.Int32
	detail := query.NewQuery(c, query.DetailKey("eth"), func(ctx context.Context) (int, error) {
		return int(detailCalls.Add(1)), nil
	})
	top := query.NewQuery(c, query.TopKey(20), func(ctx context.Context) (int, error) {
		return int(topCalls.Add(1)), nil
	})
	ctx := context.Background()

	detail.Get(ctx)
	clk.Advance(2 * time.Minute)
	if v := detail.Get(ctx); v.Data != 1 {
		t.Errorf("detail refetched inside TTL: %+v", v)
	}
	clk.Advance(time.Minute)
	if v := detail.Get(ctx); v.Data != 2 {
		t.Errorf("detail not refetched at TTL: %+v", v)
	}

	top.Get(ctx)
	top.Get(ctx)
	if n := topCalls.Load(); n != 2 {
		t.Errorf("top listing should always be stale, got %d fetches", n)
	}
}

func TestSubscribersSeeFetchLifecycle(t *testing.T) {
	c := newCache(newClock(), nil)
	q := query.NewQuery(c, query.ChartKey("btc", 7), func(ctx context.Context) (string, error) {
		return "series", nil
	})

	var mu sync.Mutex
	var seen []query.View[string]
	unsub := q.Subscribe(func(v query.View[string]) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})
	q.Get(context.Background())
	unsub()
	q.Refetch(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}
	if !seen[0].IsLoading || !seen[0].IsFetching {
		t.Errorf("start notification: %+v", seen[0])
	}
	if seen[1].IsFetching || !seen[1].HasData || seen[1].Data != "series" {
		t.Errorf("completion notification: %+v", seen[1])
	}
}

func TestCallerCancelLeavesFetchRunning(t *testing.T) {
	c := newCache(newClock(), nil)
	release := make(chan struct{})
	done := make(chan struct{})
	q := query.NewQuery(c, query.SearchKey("sol"), func(ctx context.Context) (string, error) {
		defer close(done)
		<-release
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "solana", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	v := q.Get(ctx)
	if !v.IsLoading || v.HasData {
		t.Errorf("expected loading view after caller timeout, got %+v", v)
	}

	close(release)
	<-done
	deadline := time.Now().Add(time.Second)
	for q.View().IsFetching && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if v := q.View(); !v.HasData || v.Data != "solana" {
		t.Errorf("result did not land in cache: %+v", v)
	}
}

func TestPersisterSeedsNewCache(t *testing.T) {
	clk := newClock()
	p := newMemPersister()
	src := &fakeSource{}
	ctx := context.Background()

	m1 := query.NewMarket(src, newCache(clk, p))
	if v := m1.Detail("bitcoin").Get(ctx); !v.HasData {
		t.Fatalf("first fetch: %+v", v)
	}
	if _, ok := p.recs["detail|bitcoin"]; !ok {
		t.Fatal("detail was not persisted")
	}

	clk.Advance(time.Minute)
	m2 := query.NewMarket(src, newCache(clk, p))
	v := m2.Detail("bitcoin").Get(ctx)
	if n := src.calls.Load(); n != 1 {
		t.Errorf("fresh persisted value should not refetch, got %d calls", n)
	}
	if !v.HasData || v.Data.ID != "bitcoin" || v.Data.CurrentPrice != 50000 {
		t.Errorf("seeded view: %+v", v)
	}
	if !v.UpdatedAt.Equal(clk.Now().Add(-time.Minute)) {
		t.Errorf("seeded UpdatedAt = %v, want original fetch time", v.UpdatedAt)
	}

	clk.Advance(3 * time.Minute)
	m3 := query.NewMarket(src, newCache(clk, p))
	m3.Detail("bitcoin").Get(ctx)
	if n := src.calls.Load(); n != 2 {
		t.Errorf("stale persisted value should refetch, got %d calls", n)
	}
}

func TestDisabledQueriesAreIdle(t *testing.T) {
	src := &fakeSource{}
	m := query.NewMarket(src, newCache(newClock(), nil))
	ctx := context.Background()

	if v := m.Search("   ").Get(ctx); v.HasData || v.IsLoading || v.Err != nil {
		t.Errorf("blank search: %+v", v)
	}
	if v := m.Detail("").Refetch(ctx); v.HasData || v.IsFetching {
		t.Errorf("empty detail: %+v", v)
	}
	if v := m.Chart("", 7).Get(ctx); v.HasData {
		t.Errorf("empty chart: %+v", v)
	}
	if n := src.calls.Load(); n != 0 {
		t.Errorf("disabled queries fetched %d times", n)
	}
}

func TestMarketRefreshForcesTopFetch(t *testing.T) {
	src := &fakeSource{}
	m := query.NewMarket(src, newCache(newClock(), nil))
	ctx := context.Background()

	if v := m.Top(0).Get(ctx); len(v.Data) != 20 {
		t.Errorf("default limit: got %d rows", len(v.Data))
	}
	v := m.Refresh(ctx, 0)
	if src.calls.Load() != 2 || v.Fetches != 2 {
		t.Errorf("refresh: calls=%d fetches=%d", src.calls.Load(), v.Fetches)
	}

	src.err = errors.New("down")
	v = m.Refresh(ctx, 0)
	if v.Err == nil || len(v.Data) != 20 {
		t.Errorf("failed refresh should keep rows and report error: %+v", v)
	}
}

func TestEntriesSorted(t *testing.T) {
	src := &fakeSource{}
	m := query.NewMarket(src, newCache(newClock(), nil))
	ctx := context.Background()
	m.Top(10).Get(ctx)
	m.Detail("btc").Get(ctx)
	m.Chart("btc", 30).Get(ctx)

	entries := m.Cache().Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []string{"chart|btc|30", "detail|btc", "top|10"}
	for i, e := range entries {
		if e.Key.String() != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Key, want[i])
		}
	}
}
