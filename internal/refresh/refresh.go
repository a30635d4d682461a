// Package refresh drives a single busy indicator from query activity and
// user-initiated refreshes.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MinDisplay is how long a refresh keeps the indicator up after it finishes.
const MinDisplay = 500 * time.Millisecond

// Indicator is shown while anything is busy. Calls are serialized and made
// with the orchestrator locked, so implementations must not call back into
// the Orchestrator.
type Indicator interface {
	Start()
	Complete()
}

// Funcs adapts two functions to an Indicator. Nil functions are skipped.
type Funcs struct {
	OnStart    func()
	OnComplete func()
}

func (f Funcs) Start() {
	if f.OnStart != nil {
		f.OnStart()
	}
}

func (f Funcs) Complete() {
	if f.OnComplete != nil {
		f.OnComplete()
	}
}

// Options configures an Orchestrator.
type Options struct {
	MinDisplay time.Duration // zero selects MinDisplay
	Logger     *slog.Logger
}

// Orchestrator combines loading, fetching and refreshing into one busy flag.
type Orchestrator struct {
	ind        Indicator
	minDisplay time.Duration
	log        *slog.Logger

	mu       sync.Mutex
	loading  bool
	fetching bool
	holds    int
	busy     bool
}

// New returns an idle Orchestrator.
func New(ind Indicator, opts Options) *Orchestrator {
	if ind == nil {
		ind = Funcs{}
	}
	if opts.MinDisplay <= 0 {
		opts.MinDisplay = MinDisplay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{ind: ind, minDisplay: opts.MinDisplay, log: opts.Logger}
}

// Observe records the current query activity.
func (o *Orchestrator) Observe(isLoading, isFetching bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loading, o.fetching = isLoading, isFetching
	o.transition()
}

// Refresh runs fn with the refreshing flag raised and keeps the flag up for
// the minimum display time after fn returns. Overlapping refreshes each hold
// the flag, so an earlier one finishing never clears a later one.
func (o *Orchestrator) Refresh(ctx context.Context, fn func(ctx context.Context) error) error {
	id := uuid.NewString()
	start := time.Now()

	o.mu.Lock()
	o.holds++
	o.transition()
	o.mu.Unlock()
	o.log.Debug("refresh started", "refresh_id", id)

	err := fn(ctx)
	o.log.Debug("refresh finished", "refresh_id", id, "duration", time.Since(start), "err", err)

	time.AfterFunc(o.minDisplay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.holds--
		o.transition()
	})
	return err
}

// Busy reports whether the indicator is up.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Refreshing reports whether any refresh still holds the flag.
func (o *Orchestrator) Refreshing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.holds > 0
}

// transition recomputes busy and fires the indicator on edges. Caller holds o.mu.
func (o *Orchestrator) transition() {
	busy := o.loading || o.fetching || o.holds > 0
	if busy == o.busy {
		return
	}
	o.busy = busy
	if busy {
		o.ind.Start()
	} else {
		o.ind.Complete()
	}
}
