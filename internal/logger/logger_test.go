package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelInfo, "json").Info("hello", "k", "v")

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("not JSON: %q", buf.String())
	}
	if m["msg"] != "hello" || m["k"] != "v" {
		t.Errorf("record = %v", m)
	}
}

func TestTextFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelWarn, "text")
	l.Info("dropped")
	l.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "msg=kept") {
		t.Errorf("output = %q", out)
	}
}

func TestLevel(t *testing.T) {
	if Level(true, true) != slog.LevelDebug {
		t.Error("debug should win")
	}
	if Level(false, true) != slog.LevelError {
		t.Error("quiet should raise the level")
	}
	if Level(false, false) != slog.LevelWarn {
		t.Error("default level")
	}
}
