// Package pipeline provides helpers for reading and writing chart point
// streams via stdin/stdout in JSONL format, the canonical pipe format.
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/util"
)

// Row is one JSONL record.
type Row struct {
	ID        string   `json:"id,omitempty"`
	Date      string   `json:"date"`
	Price     *float64 `json:"price"`
	Volume    float64  `json:"volume"`
	MarketCap float64  `json:"market_cap"`
}

// ReadSeries reads JSONL records from r (usually stdin).
// Each line must be a JSON object with at least "date" and "price".
// The coin id is taken from the first record that carries one.
func ReadSeries(r io.Reader) (*model.ChartSeries, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	s := &model.ChartSeries{}
	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var rec Row
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		if s.ID == "" && rec.ID != "" {
			s.ID = rec.ID
		}
		if _, err := util.ParseDate(rec.Date); err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q", lineNum, rec.Date)
		}
		if rec.Price == nil {
			return nil, fmt.Errorf("line %d: missing price", lineNum)
		}
		s.Points = append(s.Points, model.ChartPoint{
			Date:      rec.Date,
			Price:     *rec.Price,
			Volume:    rec.Volume,
			MarketCap: rec.MarketCap,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(s.Points) == 0 {
		return nil, fmt.Errorf("no chart points read from input (is stdin empty?)")
	}
	s.Days = len(s.Points)
	return s, nil
}

// WriteSeries writes one JSONL record per point to w.
func WriteSeries(w io.Writer, s *model.ChartSeries) error {
	enc := json.NewEncoder(w)
	for _, p := range s.Points {
		price := p.Price
		rec := Row{ID: s.ID, Date: p.Date, Price: &price, Volume: p.Volume, MarketCap: p.MarketCap}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// IsTTY returns true if stdout is a terminal (not a pipe).
func IsTTY() bool {
	return isCharDevice(os.Stdout)
}

// StdinIsTTY returns true if stdin is a terminal, meaning nothing is piped in.
func StdinIsTTY() bool {
	return isCharDevice(os.Stdin)
}

func isCharDevice(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
