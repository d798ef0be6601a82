package pipeline

import (
	"context"
	"io"
	"time"
)

// Surface is the HTTP server that serves the render target's assets.
// Start returns once the listener is bound.
type Surface interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Renderer opens render sessions.
type Renderer interface {
	Open(ctx context.Context, cfg Config) (RenderSession, error)
}

// RenderSession owns one rendering-surface instance and one page in it.
type RenderSession interface {
	Navigate(ctx context.Context, url string) error
	WaitStable(ctx context.Context, settle time.Duration) error
	Close() error
}

// Reloader is implemented by sessions that can reload their page in place.
type Reloader interface {
	Reload(ctx context.Context) error
}

// StreamSource turns a stable render session into a live video byte stream.
type StreamSource interface {
	Acquire(ctx context.Context, session RenderSession, cfg Config) (CaptureHandle, error)
}

// CaptureHandle is the live, append-only video stream of a session.
// Format returns the ffmpeg demuxer name of the stream.
type CaptureHandle interface {
	io.Reader
	Format() string
	Close() error
}

// AudioResolver turns an external asset id into a URL the transcoder can fetch.
type AudioResolver interface {
	Resolve(assetID string) (string, bool)
}

// Transcoder spawns the transcoding process for a capture stream.
type Transcoder interface {
	Start(ctx context.Context, capture CaptureHandle, audioURL string, cfg Config) (TranscodeProcess, error)
}

// TranscodeProcess is a running transcoder. Done is closed exactly once when the
// process has exited; ExitCode is valid after that.
type TranscodeProcess interface {
	Done() <-chan struct{}
	ExitCode() int
	PID() int
	Terminate(ctx context.Context) error
}
