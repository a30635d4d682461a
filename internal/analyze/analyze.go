// Package analyze computes statistical summaries and trend analysis over
// chart series. All functions are pure; no I/O.
package analyze

import (
	"fmt"
	"math"
	"sort"

	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/util"
)

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for a chart series. Price statistics
// cover every point; returns are day-over-day price changes.
type Summary struct {
	ID             string  `json:"id"`
	Count          int     `json:"count"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	Mean           float64 `json:"mean"`
	Std            float64 `json:"std"`
	Min            float64 `json:"min"`
	MinDate        string  `json:"min_date"`
	P25            float64 `json:"p25"`
	Median         float64 `json:"median"`
	P75            float64 `json:"p75"`
	Max            float64 `json:"max"`
	MaxDate        string  `json:"max_date"`
	Skew           float64 `json:"skew"`
	First          float64 `json:"first"`
	Last           float64 `json:"last"`
	Change         float64 `json:"change"`     // Last - First
	ChangePct      float64 `json:"change_pct"` // (Last-First)/|First| * 100; 0 when First is 0
	Volatility     float64 `json:"volatility"` // std of daily returns, percent
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	AvgVolume      float64 `json:"avg_volume"`
	LastMarketCap  float64 `json:"last_market_cap"`
}

// Summarize computes descriptive statistics over s. An empty series yields a
// zero Summary carrying only the id.
func Summarize(s *model.ChartSeries) Summary {
	sum := Summary{ID: s.ID, Count: len(s.Points)}
	if len(s.Points) == 0 {
		return sum
	}

	prices := make([]float64, len(s.Points))
	var volume float64
	for i, p := range s.Points {
		prices[i] = p.Price
		volume += p.Volume
	}

	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	first, last := s.Points[0], s.Points[len(s.Points)-1]
	sum.From, sum.To = first.Date, last.Date
	sum.Min = sorted[0]
	sum.Max = sorted[len(sorted)-1]
	sum.Mean = sumF(prices) / float64(len(prices))
	sum.Std = stddevF(prices, sum.Mean)
	sum.Median = percentile(sorted, 50)
	sum.P25 = percentile(sorted, 25)
	sum.P75 = percentile(sorted, 75)
	sum.Skew = skewness(prices, sum.Mean, sum.Std)
	sum.AvgVolume = volume / float64(len(s.Points))
	sum.LastMarketCap = last.MarketCap

	for _, p := range s.Points {
		if p.Price == sum.Min && sum.MinDate == "" {
			sum.MinDate = p.Date
		}
		if p.Price == sum.Max && sum.MaxDate == "" {
			sum.MaxDate = p.Date
		}
	}

	sum.First, sum.Last = first.Price, last.Price
	sum.Change = sum.Last - sum.First
	if sum.First != 0 {
		sum.ChangePct = sum.Change / math.Abs(sum.First) * 100
	}

	returns := Returns(prices)
	if len(returns) > 1 {
		sum.Volatility = stddevF(returns, sumF(returns)/float64(len(returns)))
	}
	sum.MaxDrawdownPct = maxDrawdown(prices)
	return sum
}

// Returns computes day-over-day percent changes. Steps from a zero price
// are skipped.
func Returns(prices []float64) []float64 {
	var out []float64
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		out = append(out, (prices[i]-prices[i-1])/prices[i-1]*100)
	}
	return out
}

// maxDrawdown is the largest peak-to-trough fall, as a positive percent.
func maxDrawdown(prices []float64) float64 {
	var peak, worst float64
	for _, p := range prices {
		if p > peak {
			peak = p
		}
		if peak > 0 {
			if dd := (peak - p) / peak * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// ─── Trend ────────────────────────────────────────────────────────────────────

// TrendMethod selects the regression algorithm.
type TrendMethod string

const (
	TrendLinear   TrendMethod = "linear"
	TrendTheilSen TrendMethod = "theil-sen"
)

// TrendResult holds the output of a trend analysis.
type TrendResult struct {
	ID          string      `json:"id"`
	Method      TrendMethod `json:"method"`
	Slope       float64     `json:"slope"` // price units per day
	Intercept   float64     `json:"intercept"`
	R2          float64     `json:"r2"`
	Direction   string      `json:"direction"`     // "up", "down", "flat"
	SlopePctDay float64     `json:"slope_pct_day"` // slope relative to mean price, percent
}

// Trend fits a trend line to price over time.
// X values are days since the first point's date.
func Trend(s *model.ChartSeries, method TrendMethod) (TrendResult, error) {
	tr := TrendResult{ID: s.ID, Method: method}

	var pts []point
	var t0 int64
	for i, p := range s.Points {
		d, err := util.ParseDate(p.Date)
		if err != nil {
			return tr, fmt.Errorf("trend: point %d: %w", i, err)
		}
		if i == 0 {
			t0 = d.Unix()
		}
		pts = append(pts, point{float64(d.Unix()-t0) / 86400, p.Price})
	}
	if len(pts) < 2 {
		return tr, fmt.Errorf("trend: need at least 2 points, got %d", len(pts))
	}

	switch method {
	case TrendTheilSen:
		tr.Slope = theilSenSlope(pts)
		// OLS intercept with the Theil-Sen slope
		xMean := meanPts(pts, func(p point) float64 { return p.x })
		yMean := meanPts(pts, func(p point) float64 { return p.y })
		tr.Intercept = yMean - tr.Slope*xMean
	default:
		tr.Method = TrendLinear
		tr.Slope, tr.Intercept = olsRegress(pts)
	}

	tr.R2 = r2(pts, tr.Slope, tr.Intercept)
	if mean := meanPts(pts, func(p point) float64 { return p.y }); mean != 0 {
		tr.SlopePctDay = tr.Slope / math.Abs(mean) * 100
	}

	switch {
	case tr.SlopePctDay > 0.05:
		tr.Direction = "up"
	case tr.SlopePctDay < -0.05:
		tr.Direction = "down"
	default:
		tr.Direction = "flat"
	}
	return tr, nil
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func sumF(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func stddevF(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func skewness(vals []float64, mean, std float64) float64 {
	n := float64(len(vals))
	if n < 3 || std == 0 {
		return 0
	}
	var s float64
	for _, v := range vals {
		d := (v - mean) / std
		s += d * d * d
	}
	return s * n / ((n - 1) * (n - 2))
}

type point struct{ x, y float64 }

func olsRegress(pts []point) (slope, intercept float64) {
	n := float64(len(pts))
	var xSum, ySum, xySum, x2Sum float64
	for _, p := range pts {
		xSum += p.x
		ySum += p.y
		xySum += p.x * p.y
		x2Sum += p.x * p.x
	}
	denom := n*x2Sum - xSum*xSum
	if denom == 0 {
		return 0, ySum / n
	}
	slope = (n*xySum - xSum*ySum) / denom
	intercept = (ySum - slope*xSum) / n
	return
}

func theilSenSlope(pts []point) float64 {
	var slopes []float64
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			dx := pts[j].x - pts[i].x
			if dx == 0 {
				continue
			}
			slopes = append(slopes, (pts[j].y-pts[i].y)/dx)
		}
	}
	if len(slopes) == 0 {
		return 0
	}
	sort.Float64s(slopes)
	return percentile(slopes, 50)
}

func r2(pts []point, slope, intercept float64) float64 {
	var yMean float64
	for _, p := range pts {
		yMean += p.y
	}
	yMean /= float64(len(pts))

	var ssTot, ssRes float64
	for _, p := range pts {
		pred := slope*p.x + intercept
		ssTot += (p.y - yMean) * (p.y - yMean)
		ssRes += (p.y - pred) * (p.y - pred)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

func meanPts(pts []point, f func(point) float64) float64 {
	var s float64
	for _, p := range pts {
		s += f(p)
	}
	return s / float64(len(pts))
}
