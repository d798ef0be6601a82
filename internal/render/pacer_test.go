package render

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPacerRepeatsLatestFrame(t *testing.T) {
	out := &syncBuffer{}
	p := newPacer(100, out, discardLogger())
	p.offer([]byte("A"))
	p.start()

	time.Sleep(60 * time.Millisecond)
	p.offer([]byte("B"))
	time.Sleep(60 * time.Millisecond)
	p.halt()
	p.wait()

	s := out.String()
	if len(s) < 4 {
		t.Fatalf("expected repeated frames, got %q", s)
	}
	if s[0] != 'A' || s[len(s)-1] != 'B' {
		t.Errorf("frames out of order: %q", s)
	}
	// Once B is seen no A may follow.
	seenB := false
	for _, r := range s {
		if r == 'B' {
			seenB = true
		} else if seenB {
			t.Fatalf("stale frame after newer one: %q", s)
		}
	}
}

func TestPacerWaitsForFirstFrame(t *testing.T) {
	out := &syncBuffer{}
	p := newPacer(200, out, discardLogger())
	p.start()
	time.Sleep(30 * time.Millisecond)
	p.halt()
	p.wait()

	if out.String() != "" {
		t.Errorf("wrote %q before any frame was offered", out.String())
	}
}

func TestPacerDropsTicksUnderBackpressure(t *testing.T) {
	pr, pw := io.Pipe()
	p := newPacer(200, pw, discardLogger())
	p.offer([]byte("frame"))
	p.start()

	// Nobody reads: the first write blocks, one frame waits in the channel and
	// every further tick is dropped.
	time.Sleep(60 * time.Millisecond)

	p.halt()
	_ = pw.Close()
	p.wait()
	_ = pr.Close()

	if p.dropped.Load() == 0 {
		t.Error("expected dropped ticks while the reader was stalled")
	}
	if p.written.Load() != 0 {
		t.Errorf("written = %d, want 0", p.written.Load())
	}
}

func TestPacerFramesAreWrittenWhole(t *testing.T) {
	pr, pw := io.Pipe()
	p := newPacer(100, pw, discardLogger())
	frame := bytes.Repeat([]byte{0xFF, 0xD8, 0x01, 0xD9}, 64)
	p.offer(frame)
	p.start()

	got := make([]byte, len(frame)*2)
	if _, err := io.ReadFull(pr, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	p.halt()
	_ = pw.Close()
	p.wait()

	if !bytes.Equal(got[:len(frame)], frame) || !bytes.Equal(got[len(frame):], frame) {
		t.Error("frames were interleaved or truncated")
	}
}
