package pipeline_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/derickschaefer/coinwatch/internal/model"
	"github.com/derickschaefer/coinwatch/internal/pipeline"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// jsonl joins lines with newlines and appends a trailing newline.
func jsonl(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// ─── ReadSeries ───────────────────────────────────────────────────────────────

func TestReadBasic(t *testing.T) {
	input := jsonl(
		`{"id":"bitcoin","date":"2024-01-01","price":42000.5,"volume":1e9,"market_cap":8e11}`,
		`{"id":"bitcoin","date":"2024-01-02","price":43000,"volume":2e9,"market_cap":8.2e11}`,
	)
	s, err := pipeline.ReadSeries(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "bitcoin" {
		t.Errorf("id: expected bitcoin, got %q", s.ID)
	}
	if len(s.Points) != 2 || s.Days != 2 {
		t.Fatalf("expected 2 points, got %d (days %d)", len(s.Points), s.Days)
	}
	if s.Points[0].Price != 42000.5 || s.Points[1].Volume != 2e9 || s.Points[1].MarketCap != 8.2e11 {
		t.Errorf("points = %+v", s.Points)
	}
}

func TestReadIDFromFirstRecordThatHasOne(t *testing.T) {
	input := jsonl(
		`{"date":"2024-01-01","price":1}`,
		`{"id":"eth","date":"2024-01-02","price":2}`,
	)
	s, err := pipeline.ReadSeries(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != "eth" {
		t.Errorf("id = %q", s.ID)
	}
}

func TestReadSkipsBlankAndCommentLines(t *testing.T) {
	input := jsonl(
		`// exported by coinwatch`,
		``,
		`{"date":"2024-01-01","price":1}`,
		`   `,
	)
	s, err := pipeline.ReadSeries(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Points) != 1 {
		t.Errorf("expected 1 point, got %d", len(s.Points))
	}
}

func TestReadErrors(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"blank only":   "\n\n  \n",
		"invalid json": `{"date":`,
		"bad date":     `{"date":"01/02/2024","price":1}`,
		"no price":     `{"date":"2024-01-01","volume":5}`,
	}
	for name, input := range cases {
		if _, err := pipeline.ReadSeries(strings.NewReader(input)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestReadErrorNamesLine(t *testing.T) {
	input := jsonl(`{"date":"2024-01-01","price":1}`, `not json`)
	_, err := pipeline.ReadSeries(strings.NewReader(input))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line 2 in error, got %v", err)
	}
}

// ─── WriteSeries ──────────────────────────────────────────────────────────────

func TestWriteOneLinePerPoint(t *testing.T) {
	s := &model.ChartSeries{ID: "btc", Points: []model.ChartPoint{
		{Date: "2024-01-01", Price: 1},
		{Date: "2024-01-02", Price: 0},
	}}
	var buf bytes.Buffer
	if err := pipeline.WriteSeries(&buf, s); err != nil {
		t.Fatal(err)
	}
	lines := nonEmptyLines(buf.String())
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[1], `"price":0`) {
		t.Errorf("zero price must still be written: %s", lines[1])
	}
	if !strings.Contains(lines[0], `"id":"btc"`) {
		t.Errorf("id missing: %s", lines[0])
	}
}

func TestWriteEmptySeries(t *testing.T) {
	var buf bytes.Buffer
	if err := pipeline.WriteSeries(&buf, &model.ChartSeries{}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

// ─── Round-trip ───────────────────────────────────────────────────────────────

func TestRoundTrip(t *testing.T) {
	original := &model.ChartSeries{ID: "solana", Days: 200}
	for i := 0; i < 200; i++ {
		original.Points = append(original.Points, model.ChartPoint{
			Date:      fmt.Sprintf("2023-%02d-%02d", 1+i%12, 1+i%28),
			Price:     float64(i) * 1.5,
			Volume:    float64(i * 1000),
			MarketCap: float64(i * 100000),
		})
	}

	var buf bytes.Buffer
	if err := pipeline.WriteSeries(&buf, original); err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}
	got, err := pipeline.ReadSeries(&buf)
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	if got.ID != original.ID || len(got.Points) != len(original.Points) {
		t.Fatalf("got id=%q n=%d", got.ID, len(got.Points))
	}
	for i := range original.Points {
		if got.Points[i] != original.Points[i] {
			t.Errorf("point %d: got %+v, want %+v", i, got.Points[i], original.Points[i])
		}
	}
}
