// Package transcode runs ffmpeg for a capture stream and reports its exit.
package transcode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smazurov/pagecast/internal/ffmpeg"
	"github.com/smazurov/pagecast/internal/logging"
	"github.com/smazurov/pagecast/internal/metrics"
	"github.com/smazurov/pagecast/internal/metrics/collectors"
	"github.com/smazurov/pagecast/internal/pipeline"
	"github.com/smazurov/pagecast/internal/process"
)

// Options configures the Supervisor.
type Options struct {
	RunID string
	// Binary overrides the ffmpeg executable.
	Binary string
	Output process.OutputMode
	// Stdout and Stderr replace the parent's streams in inherit mode.
	Stdout io.Writer
	Stderr io.Writer
	// FFmpegOptions are behavior flags applied to every invocation.
	FFmpegOptions []ffmpeg.OptionType
	// ProgressDir holds the -progress socket. Empty disables progress metrics.
	ProgressDir     string
	GracefulTimeout time.Duration
	Logger          *slog.Logger
	FFmpegLogger    *slog.Logger
}

// Supervisor spawns one ffmpeg process per Start call and never restarts it.
type Supervisor struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	if opts.Binary == "" {
		opts.Binary = ffmpeg.Binary
	}
	if opts.Output == "" {
		opts.Output = process.OutputInherit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{opts: opts, logger: logger}
}

// Params maps a pipeline configuration onto ffmpeg parameters.
func (s *Supervisor) Params(inputFormat, audioURL string, cfg pipeline.Config) *ffmpeg.Params {
	return &ffmpeg.Params{
		InputFormat:     inputFormat,
		FPS:             cfg.FPS,
		AudioURL:        audioURL,
		Encoder:         cfg.VideoCodec,
		PixelFormat:     cfg.PixelFormat,
		Preset:          cfg.Preset,
		Bitrate:         cfg.VideoBitrate,
		GOP:             cfg.EffectiveGOP(),
		AudioEncoder:    cfg.AudioCodec,
		AudioBitrate:    cfg.AudioBitrate,
		AudioSampleRate: cfg.AudioSampleRate,
		AudioChannels:   cfg.AudioChannels,
		OutputURL:       cfg.Endpoint,
		LogLevel:        s.opts.Output == process.OutputLog,
		Options:         s.opts.FFmpegOptions,
	}
}

// Start spawns ffmpeg with the capture stream on its stdin and the optional
// audio URL as a second input.
func (s *Supervisor) Start(ctx context.Context, capture pipeline.CaptureHandle, audioURL string, cfg pipeline.Config) (pipeline.TranscodeProcess, error) {
	params := s.Params(capture.Format(), audioURL, cfg)

	var collector *collectors.FFmpegCollector
	if s.opts.ProgressDir != "" {
		socket := filepath.Join(s.opts.ProgressDir, "pagecast-progress-"+s.opts.RunID+".sock")
		collector = collectors.NewFFmpegCollector(socket, s.opts.RunID, s.logger)
		if err := collector.Start(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Progress metrics disabled", "error", err)
			collector = nil
		} else {
			params.ProgressSocket = collector.SocketPath()
		}
	}

	args := ffmpeg.BuildArgs(params)
	display := *params
	display.OutputURL = cfg.RedactedEndpoint()
	if audioURL != "" {
		display.AudioURL = "<audio>"
	}
	s.logger.Info("Starting transcoder", "command", ffmpeg.CommandString(ffmpeg.BuildArgs(&display)))

	ffmpegLogger := s.opts.FFmpegLogger
	if ffmpegLogger == nil {
		ffmpegLogger = s.logger
	}

	proc, err := process.Start(process.Options{
		ID:              "ffmpeg",
		Binary:          s.opts.Binary,
		Args:            args,
		Stdin:           &meteredReader{r: capture},
		Output:          s.opts.Output,
		Stdout:          s.opts.Stdout,
		Stderr:          s.opts.Stderr,
		Logger:          s.logger,
		ProcessLogger:   ffmpegLogger,
		LogParser:       ffmpeg.ParseLogLevel,
		OutputFilter:    logging.RedactString,
		GracefulTimeout: s.opts.GracefulTimeout,
	})
	if err != nil {
		if collector != nil {
			_ = collector.Stop()
		}
		return nil, fmt.Errorf("spawn %s: %w", s.opts.Binary, err)
	}

	h := &Handle{proc: proc, collector: collector, logger: s.logger, done: make(chan struct{})}
	go h.watch()
	return h, nil
}

// Handle is a running transcoder.
type Handle struct {
	proc      *process.Process
	collector *collectors.FFmpegCollector
	logger    *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// watch releases the progress socket once ffmpeg has exited, then reports the
// exit through Done.
func (h *Handle) watch() {
	<-h.proc.Done()
	if h.collector != nil {
		_ = h.collector.Stop()
	}
	h.logger.Info("Transcoder finished",
		"exit_code", h.proc.ExitCode(),
		"bytes_forwarded", h.proc.BytesForwarded())
	h.closeOnce.Do(func() { close(h.done) })
}

// Done is closed exactly once when ffmpeg has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitCode returns ffmpeg's exit status. Only valid after Done is closed.
func (h *Handle) ExitCode() int {
	return h.proc.ExitCode()
}

// PID returns ffmpeg's process id.
func (h *Handle) PID() int {
	return h.proc.PID()
}

// BytesForwarded returns how much of the capture stream reached ffmpeg.
func (h *Handle) BytesForwarded() int64 {
	return h.proc.BytesForwarded()
}

// Terminate stops ffmpeg. It is a no-op once ffmpeg has exited.
func (h *Handle) Terminate(ctx context.Context) error {
	return h.proc.Terminate(ctx)
}

type meteredReader struct {
	r io.Reader
}

func (m *meteredReader) Read(b []byte) (int, error) {
	n, err := m.r.Read(b)
	metrics.AddForwardedBytes(n)
	return n, err
}

// DefaultProgressDir returns the directory used for progress sockets.
func DefaultProgressDir() string {
	return os.TempDir()
}
