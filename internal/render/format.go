package render

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/derickschaefer/coinwatch/internal/util"
)

// ─── Money ────────────────────────────────────────────────────────────────────

// FormatUSD renders a dollar amount. Amounts of a dollar or more get two
// decimals and thousands separators; sub-dollar amounts keep up to eight
// decimals so small-cap prices stay readable.
func FormatUSD(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	var s string
	if v >= 1 || v == 0 {
		s = util.GroupThousands(strconv.FormatFloat(v, 'f', 2, 64))
	} else {
		s = strings.TrimRight(strconv.FormatFloat(v, 'f', 8, 64), "0")
		if len(s) < len("0.00") {
			s = strconv.FormatFloat(v, 'f', 2, 64)
		}
	}
	return sign + "$" + s
}

// FormatCompactUSD renders large amounts with a T/B/M/K suffix.
func FormatCompactUSD(v float64) string {
	abs := math.Abs(v)
	sign := ""
	if v < 0 {
		sign = "-"
	}
	switch {
	case abs >= 1e12:
		return fmt.Sprintf("%s$%.2fT", sign, abs/1e12)
	case abs >= 1e9:
		return fmt.Sprintf("%s$%.2fB", sign, abs/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%s$%.2fM", sign, abs/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%s$%.2fK", sign, abs/1e3)
	}
	return FormatUSD(v)
}

// FormatPercent renders a signed percentage with two decimals.
func FormatPercent(v float64) string {
	if v > 0 {
		return fmt.Sprintf("+%.2f%%", v)
	}
	if v == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", v)
}

// FormatSupply renders a coin supply rounded to whole units. Nil means the
// provider did not report one.
func FormatSupply(v *float64) string {
	if v == nil {
		return "-"
	}
	return util.GroupThousands(strconv.FormatFloat(math.Round(*v), 'f', 0, 64))
}

func formatOptionalUSD(v *float64) string {
	if v == nil {
		return "-"
	}
	return FormatUSD(*v)
}

// ─── Progress ─────────────────────────────────────────────────────────────────

// ProgressLine is a single-line busy indicator for terminals. It satisfies
// refresh.Indicator.
type ProgressLine struct {
	mu    sync.Mutex
	w     io.Writer
	quiet bool
	now   func() time.Time
}

// NewProgressLine writes to w (usually stderr). A quiet line writes nothing.
func NewProgressLine(w io.Writer, quiet bool) *ProgressLine {
	return &ProgressLine{w: w, quiet: quiet, now: time.Now}
}

func (p *ProgressLine) Start() {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, "\r⟳ refreshing…")
}

func (p *ProgressLine) Complete() {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\r✓ updated %s\n", p.now().Format("15:04:05"))
}
