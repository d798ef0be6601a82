package render

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/pagecast/internal/metrics"
)

// pacer writes the most recent frame to w once per interval. The screencast
// only delivers frames when the page changes, so frames are repeated to keep a
// constant rate. A tick is skipped when the previous write has not finished.
type pacer struct {
	interval time.Duration
	w        io.Writer
	logger   *slog.Logger

	latest  atomic.Pointer[[]byte]
	frames  chan []byte
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup

	written atomic.Int64
	dropped atomic.Int64
}

func newPacer(fps int, w io.Writer, logger *slog.Logger) *pacer {
	if fps <= 0 {
		fps = 30
	}
	return &pacer{
		interval: time.Second / time.Duration(fps),
		w:        w,
		logger:   logger,
		frames:   make(chan []byte, 1),
		stop:     make(chan struct{}),
	}
}

// offer replaces the frame written on the next tick.
func (p *pacer) offer(frame []byte) {
	p.latest.Store(&frame)
}

func (p *pacer) start() {
	p.wg.Add(2)
	go p.tick()
	go p.write()
}

func (p *pacer) tick() {
	defer p.wg.Done()
	defer close(p.frames)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.push()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.push()
		}
	}
}

func (p *pacer) push() {
	frame := p.latest.Load()
	if frame == nil {
		return
	}
	select {
	case p.frames <- *frame:
	default:
		p.dropped.Add(1)
		metrics.IncCaptureDroppedTicks()
	}
}

func (p *pacer) write() {
	defer p.wg.Done()
	for frame := range p.frames {
		if _, err := p.w.Write(frame); err != nil {
			p.logger.Debug("Capture stream closed", "error", err, "frames", p.written.Load())
			// Keep draining so tick never blocks.
			for range p.frames {
			}
			return
		}
		p.written.Add(1)
		metrics.IncCaptureFrames()
	}
}

// halt stops ticking. Callers unblock a pending write by closing the writer.
func (p *pacer) halt() {
	p.stopped.Do(func() { close(p.stop) })
}

func (p *pacer) wait() {
	p.wg.Wait()
}
