package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestBufferHandlerGroupsOnlyPrefixLaterAttrs(t *testing.T) {
	resetForTest(t, &bytes.Buffer{})
	Initialize(Config{Level: "info", Format: "text"})

	GetLogger("render").
		With("run_id", "r1").
		WithGroup("capture").
		With("fps", 30).
		WithGroup("frame").
		Info("frame written", "seq", 7)

	entries := GetBuffer().ReadAll()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Module != "render" {
		t.Errorf("module = %q, want render", got.Module)
	}

	want := map[string]any{
		"run_id":            "r1",
		"capture.fps":       int64(30),
		"capture.frame.seq": int64(7),
	}
	if len(got.Attributes) != len(want) {
		t.Errorf("attributes = %v, want %v", got.Attributes, want)
	}
	for k, v := range want {
		if got.Attributes[k] != v {
			t.Errorf("%s = %v (%T), want %v", k, got.Attributes[k], got.Attributes[k], v)
		}
	}
}

func TestJournalHandlerFields(t *testing.T) {
	h := NewJournalHandler(slog.LevelInfo).
		WithAttrs([]slog.Attr{slog.String("run_id", "r1")}).
		WithGroup("capture").
		WithAttrs([]slog.Attr{slog.Int("fps", 30)}).(*JournalHandler)

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "frame", 0)
	r.AddAttrs(
		slog.Bool("dropped", false),
		slog.Group("size", slog.Int("w", 1920)),
	)

	fields := h.recordFields(r)
	want := map[string]string{
		"SYSLOG_IDENTIFIER": syslogIdentifier,
		"RUN_ID":            "r1",
		"CAPTURE_FPS":       "30",
		"CAPTURE_DROPPED":   "false",
		"CAPTURE_SIZE_W":    "1920",
	}
	if len(fields) != len(want) {
		t.Errorf("fields = %v, want %v", fields, want)
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s = %q, want %q", k, fields[k], v)
		}
	}
}

func TestJournalHandlerWithAttrsDoesNotShareFields(t *testing.T) {
	base := NewJournalHandler(slog.LevelInfo).WithAttrs([]slog.Attr{slog.String("a", "1")}).(*JournalHandler)
	_ = base.WithAttrs([]slog.Attr{slog.String("b", "2")})

	fields := base.recordFields(slog.NewRecord(time.Now(), slog.LevelInfo, "m", 0))
	if _, leaked := fields["B"]; leaked {
		t.Errorf("derived handler mutated its parent: %v", fields)
	}
}

type failingSink struct{ slog.Handler }

func (failingSink) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestMultiHandlerKeepsDeliveringAfterSinkFailure(t *testing.T) {
	var buf bytes.Buffer
	text := slog.NewTextHandler(&buf, nil)
	h := NewMultiHandler(failingSink{text}, text, slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "on air", 0))
	if err == nil || err.Error() != "sink down" {
		t.Errorf("Handle() error = %v, want the failing sink's error", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("on air")) {
		t.Errorf("healthy sink missed the record: %q", buf.String())
	}
	if !h.Enabled(context.Background(), slog.LevelInfo) || h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled should follow the most verbose sink")
	}
}
