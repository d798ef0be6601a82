package systemd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/pagecast/internal/events"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.states)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierStateMessages(t *testing.T) {
	rec := &recorder{}
	n := NewNotifier(rec.notify, discard())

	n.handle(events.PipelineStateChangedEvent{From: "idle", To: "initializing"})
	n.handle(events.PipelineStateChangedEvent{From: "initializing", To: "streaming"})
	n.handle(events.PipelineStateChangedEvent{From: "streaming", To: "terminating", Reason: "transcoder_exit"})
	n.handle(events.PipelineStateChangedEvent{From: "terminating", To: "stopped"})

	want := []string{
		"STATUS=initializing",
		"STATUS=streaming",
		"READY=1",
		"STATUS=terminating: transcoder_exit",
		"STOPPING=1",
		"STATUS=stopped",
	}
	if got := rec.snapshot(); !slices.Equal(got, want) {
		t.Errorf("states = %q\nwant %q", got, want)
	}
}

func TestNotifierAttach(t *testing.T) {
	rec := &recorder{}
	bus := events.New()
	unsubscribe := NewNotifier(rec.notify, discard()).Attach(bus)
	defer unsubscribe()

	bus.Publish(events.PipelineStateChangedEvent{From: "initializing", To: "streaming"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if slices.Contains(rec.snapshot(), "READY=1") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("READY=1 not sent, got %q", rec.snapshot())
}

func TestNotifierErrorsAreNotFatal(t *testing.T) {
	calls := 0
	n := NewNotifier(func(string) (bool, error) {
		calls++
		return false, errors.New("socket gone")
	}, discard())

	n.handle(events.PipelineStateChangedEvent{To: "streaming"})
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestWatchdogPings(t *testing.T) {
	rec := &recorder{}
	n := NewNotifier(rec.notify, discard())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	n.runWatchdog(ctx, 10*time.Millisecond)

	pings := 0
	for _, s := range rec.snapshot() {
		if s == "WATCHDOG=1" {
			pings++
		}
	}
	if pings < 2 {
		t.Errorf("pings = %d, want at least 2", pings)
	}
}

func TestWatchdogDisabledReturns(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")

	done := make(chan struct{})
	go func() {
		NewNotifier(nil, discard()).Watchdog(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watchdog did not return without WATCHDOG_USEC")
	}
}
