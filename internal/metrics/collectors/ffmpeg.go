// Package collectors reads FFmpeg progress reports into metrics.
package collectors

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/smazurov/pagecast/internal/metrics"
)

// FFmpegCollector listens on a Unix socket passed to ffmpeg via -progress.
type FFmpegCollector struct {
	logger     *slog.Logger
	socketPath string
	runID      string
	listener   net.Listener
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// NewFFmpegCollector creates a collector for one run.
func NewFFmpegCollector(socketPath, runID string, logger *slog.Logger) *FFmpegCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegCollector{
		logger:     logger.With("component", "ffmpeg_collector"),
		socketPath: socketPath,
		runID:      runID,
	}
}

// SocketPath returns the path ffmpeg should report progress to.
func (f *FFmpegCollector) SocketPath() string {
	return f.socketPath
}

// Start binds the socket and begins accepting connections. The socket exists
// when Start returns, so ffmpeg can be launched right after.
func (f *FFmpegCollector) Start(ctx context.Context) error {
	if err := os.Remove(f.socketPath); err != nil && !os.IsNotExist(err) {
		f.logger.Warn("Failed to clean up old socket file", "error", err)
	}

	listener, err := net.Listen("unix", f.socketPath)
	if err != nil {
		return fmt.Errorf("progress socket: %w", err)
	}
	f.listener = listener

	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go f.acceptLoop(ctx)

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	f.logger.Debug("Progress socket listening", "socket", f.socketPath)
	return nil
}

// Stop closes the socket and removes the run's metrics.
func (f *FFmpegCollector) Stop() error {
	f.stopOnce.Do(func() {
		if f.cancel != nil {
			f.cancel()
		}
		if f.listener != nil {
			_ = f.listener.Close()
		}
		f.wg.Wait()
		if err := os.Remove(f.socketPath); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("Failed to remove socket file", "error", err)
		}
		metrics.DeleteFFmpegMetrics(f.runID)
	})
	return nil
}

func (f *FFmpegCollector) acceptLoop(ctx context.Context) {
	defer f.wg.Done()
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			f.logger.Warn("Error accepting connection", "error", err)
			continue
		}
		go f.handleConnection(ctx, conn)
	}
}

func (f *FFmpegCollector) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	progress := make(map[string]string)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		progress[key] = strings.TrimSpace(value)

		// Each report block ends with progress=continue or progress=end.
		if key == "progress" {
			f.record(progress)
			progress = make(map[string]string)
		}
	}
}

func (f *FFmpegCollector) record(data map[string]string) {
	if fps, err := strconv.ParseFloat(data["fps"], 64); err == nil {
		metrics.SetFFmpegFPS(f.runID, fps)
	}
	if dropped, err := strconv.ParseFloat(data["drop_frames"], 64); err == nil {
		metrics.SetFFmpegDroppedFrames(f.runID, dropped)
	}
	if dup, err := strconv.ParseFloat(data["dup_frames"], 64); err == nil {
		metrics.SetFFmpegDuplicateFrames(f.runID, dup)
	}
	if speed, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(data["speed"], "x")), 64); err == nil {
		metrics.SetFFmpegSpeed(f.runID, speed)
	}
	if kbps, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(data["bitrate"], "kbits/s")), 64); err == nil {
		metrics.SetFFmpegBitrate(f.runID, kbps)
	}
}
