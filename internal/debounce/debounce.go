// Package debounce delays a value until it has stopped changing.
package debounce

import (
	"sync"
	"time"
)

// SearchDelay is the quiet period applied to search-as-you-type input.
const SearchDelay = 300 * time.Millisecond

type state int

const (
	idle state = iota
	pending
)

// Debouncer emits the most recent value once delay has passed without a
// newer one. Only the trailing edge is emitted. Safe for concurrent use.
type Debouncer[T any] struct {
	delay time.Duration
	emit  func(T)

	mu       sync.Mutex
	state    state
	value    T
	deadline time.Time
	gen      uint64
	timer    *time.Timer
}

// New returns an idle Debouncer. emit runs on a timer goroutine.
func New[T any](delay time.Duration, emit func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, emit: emit}
}

// Set replaces the pending value and restarts the delay.
func (d *Debouncer[T]) Set(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	d.state, d.value = pending, v
	d.deadline = time.Now().Add(d.delay)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Flush emits a pending value immediately. It reports whether anything was
// emitted.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if d.state != pending {
		d.mu.Unlock()
		return false
	}
	v := d.take()
	d.mu.Unlock()

	d.emit(v)
	return true
}

// Stop drops any pending value without emitting it.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == pending {
		d.take()
	}
}

// Pending returns the waiting value and its deadline, if any.
func (d *Debouncer[T]) Pending() (v T, deadline time.Time, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != pending {
		return v, time.Time{}, false
	}
	return d.value, d.deadline, true
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	// A superseded timer may fire after Stop returned false.
	if d.state != pending || gen != d.gen {
		d.mu.Unlock()
		return
	}
	v := d.take()
	d.mu.Unlock()

	d.emit(v)
}

// take returns the pending value and moves to idle. Caller holds d.mu.
func (d *Debouncer[T]) take() T {
	v := d.value
	var zero T
	d.gen++
	d.state, d.value, d.deadline = idle, zero, time.Time{}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return v
}
