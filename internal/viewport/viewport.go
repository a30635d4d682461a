// Package viewport classifies display width into layout breakpoints and
// tracks changes to it.
package viewport

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

// Breakpoint is a layout class.
type Breakpoint int

const (
	Mobile Breakpoint = iota
	Tablet
	Desktop
)

// Width thresholds, in CSS pixels.
const (
	TabletMin  = 640
	DesktopMin = 1024

	// PixelsPerColumn scales terminal columns to the pixel thresholds.
	PixelsPerColumn = 8
)

func (b Breakpoint) String() string {
	switch b {
	case Mobile:
		return "mobile"
	case Tablet:
		return "tablet"
	default:
		return "desktop"
	}
}

// Classify maps a width to its breakpoint.
func Classify(width int) Breakpoint {
	switch {
	case width < TabletMin:
		return Mobile
	case width < DesktopMin:
		return Tablet
	default:
		return Desktop
	}
}

// State is the derived viewport.
type State struct {
	Width      int        `json:"width"`
	Breakpoint Breakpoint `json:"-"`
	Touch      bool       `json:"touch"`
}

func (s State) IsMobile() bool  { return s.Breakpoint == Mobile }
func (s State) IsTablet() bool  { return s.Breakpoint == Tablet }
func (s State) IsDesktop() bool { return s.Breakpoint == Desktop }

// NewState derives a State from width.
func NewState(width int, touch bool) State {
	return State{Width: width, Breakpoint: Classify(width), Touch: touch}
}

// FromColumns converts a terminal column count to a State.
func FromColumns(cols int, touch bool) State {
	return NewState(cols*PixelsPerColumn, touch)
}

// DetectTouch reports whether the environment indicates a touch device.
func DetectTouch(getenv func(string) string) bool {
	if getenv == nil {
		getenv = os.Getenv
	}
	if n, err := strconv.Atoi(strings.TrimSpace(getenv("COINWATCH_TOUCH_POINTS"))); err == nil && n > 0 {
		return true
	}
	return getenv("TERMUX_VERSION") != ""
}

// TerminalColumns reads $COLUMNS, falling back to 80.
func TerminalColumns() int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	return 80
}

// Tracker holds the current State and notifies subscribers when the
// breakpoint or width changes.
type Tracker struct {
	mu    sync.Mutex
	state State
	subs  map[int]func(State)
	next  int
}

// NewTracker starts from width.
func NewTracker(width int, touch bool) *Tracker {
	return &Tracker{state: NewState(width, touch), subs: make(map[int]func(State))}
}

// State returns the current viewport.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Resize recomputes the State for width. Subscribers run synchronously,
// before Resize returns, only when something changed.
func (t *Tracker) Resize(width int) State {
	t.mu.Lock()
	next := NewState(width, t.state.Touch)
	changed := next != t.state
	t.state = next
	var subs []func(State)
	if changed {
		for _, fn := range t.subs {
			subs = append(subs, fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

// Subscribe registers fn for changes.
func (t *Tracker) Subscribe(fn func(State)) (unsubscribe func()) {
	t.mu.Lock()
	id := t.next
	t.next++
	t.subs[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}
