package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/smazurov/pagecast/internal/pipeline"
)

// FormatMJPEG is the ffmpeg demuxer for a stream of concatenated JPEG frames.
const FormatMJPEG = "mjpeg"

// ErrUnsupportedSession is returned when Acquire is given a session this
// package did not create.
var ErrUnsupportedSession = errors.New("render session does not support screencast")

const controlTimeout = 2 * time.Second

// ScreencastOptions configures frame capture.
type ScreencastOptions struct {
	// Quality is the JPEG quality, 1 to 100.
	Quality int
	// EveryNthFrame skips frames in the browser before they are sent.
	EveryNthFrame int
	Logger        *slog.Logger
}

// Screencast acquires capture streams from browser sessions.
type Screencast struct {
	opts   ScreencastOptions
	logger *slog.Logger
}

// NewScreencast creates a Screencast.
func NewScreencast(opts ScreencastOptions) *Screencast {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 90
	}
	if opts.EveryNthFrame <= 0 {
		opts.EveryNthFrame = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Screencast{opts: opts, logger: logger}
}

// Acquire starts the screencast and returns once the first frame has arrived.
// The page must already be stable.
func (sc *Screencast) Acquire(ctx context.Context, session pipeline.RenderSession, cfg pipeline.Config) (pipeline.CaptureHandle, error) {
	s, ok := session.(*Session)
	if !ok {
		return nil, ErrUnsupportedSession
	}

	pr, pw := io.Pipe()
	listenCtx, stopListen := context.WithCancel(s.tabCtx)
	c := &Capture{
		session:    s,
		logger:     sc.logger,
		pr:         pr,
		pw:         pw,
		pacer:      newPacer(cfg.FPS, pw, sc.logger),
		first:      make(chan struct{}),
		stopListen: stopListen,
	}
	chromedp.ListenTarget(listenCtx, c.onEvent)

	err := s.run(ctx, page.StartScreencast().
		WithFormat(page.ScreencastFormatJpeg).
		WithQuality(int64(sc.opts.Quality)).
		WithMaxWidth(int64(cfg.Width)).
		WithMaxHeight(int64(cfg.Height)).
		WithEveryNthFrame(int64(sc.opts.EveryNthFrame)))
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start screencast: %w", err)
	}

	timeout := cfg.FirstFrameTimeout
	if timeout <= 0 {
		timeout = pipeline.DefaultConfig().FirstFrameTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.first:
	case <-timer.C:
		_ = c.Close()
		return nil, fmt.Errorf("no frame within %s", timeout)
	case <-ctx.Done():
		_ = c.Close()
		return nil, ctx.Err()
	}

	c.pacer.start()
	sc.logger.Info("Capture started", "format", FormatMJPEG, "fps", cfg.FPS, "quality", sc.opts.Quality)
	return c, nil
}

// Capture is a live MJPEG stream of a session's page.
type Capture struct {
	session    *Session
	logger     *slog.Logger
	pr         *io.PipeReader
	pw         *io.PipeWriter
	pacer      *pacer
	stopListen context.CancelFunc

	first     chan struct{}
	firstOnce sync.Once
	closeOnce sync.Once
}

func (c *Capture) onEvent(ev any) {
	e, ok := ev.(*page.EventScreencastFrame)
	if !ok {
		return
	}
	sessionID := e.SessionID
	go c.ack(sessionID)

	frame, err := base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		c.logger.Warn("Dropping undecodable frame", "error", err)
		return
	}
	c.pacer.offer(frame)
	c.firstOnce.Do(func() { close(c.first) })
}

// ack lets the browser send the next frame.
func (c *Capture) ack(sessionID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	if err := c.session.run(ctx, page.ScreencastFrameAck(sessionID)); err != nil {
		c.logger.Debug("Frame ack failed", "error", err)
	}
}

// Read reads the MJPEG stream.
func (c *Capture) Read(p []byte) (int, error) {
	return c.pr.Read(p)
}

// Format returns the ffmpeg demuxer of the stream.
func (c *Capture) Format() string {
	return FormatMJPEG
}

// Frames returns how many frames were written and how many ticks were skipped.
func (c *Capture) Frames() (written, dropped int64) {
	return c.pacer.written.Load(), c.pacer.dropped.Load()
}

// Close stops the screencast and ends the stream with EOF. Safe to call more
// than once.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		c.stopListen()

		ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
		if err := c.session.run(ctx, page.StopScreencast()); err != nil {
			c.logger.Debug("Stop screencast failed", "error", err)
		}
		cancel()

		c.pacer.halt()
		_ = c.pw.Close()
		c.pacer.wait()

		written, dropped := c.Frames()
		c.logger.Info("Capture stopped", "frames", written, "skipped_ticks", dropped)
	})
	return nil
}
