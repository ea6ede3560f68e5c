package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWriter_JSONCarriesService(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "info", "")
	log.Debug("hidden")
	log.Info("ingest started", slog.Int("files", 3))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d records, want 1 (debug filtered):\n%s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["service"] != Service {
		t.Errorf("service = %v, want %q", rec["service"], Service)
	}
	if rec["msg"] != "ingest started" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if _, ok := rec["source"]; ok {
		t.Error("source recorded at info level")
	}
}

func TestNewWriter_TextDebugAddsSource(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWriter(&buf, "debug", "TEXT").Debug("probe")

	out := buf.String()
	if !strings.Contains(out, "msg=probe") {
		t.Errorf("text output missing msg: %q", out)
	}
	if !strings.Contains(out, "source=") {
		t.Errorf("debug output missing source: %q", out)
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background()) != slog.Default() {
		t.Error("empty context should yield slog.Default")
	}

	var buf bytes.Buffer
	log := NewWriter(&buf, "", "json")
	ctx := WithLogger(context.Background(), log)
	if FromContext(ctx) != log {
		t.Error("FromContext did not return the stored logger")
	}
}
