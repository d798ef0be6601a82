package process

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startShell starts `sh -c script` with short timeouts for testing.
func startShell(t *testing.T, script string, mutate func(*Options)) *Process {
	t.Helper()
	opts := Options{
		ID:              "test",
		Binary:          "sh",
		Args:            []string{"-c", script},
		Logger:          testLogger(),
		Stdout:          io.Discard,
		Stderr:          io.Discard,
		GracefulTimeout: 100 * time.Millisecond,
		KillTimeout:     500 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	p, err := Start(opts)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	return p
}

// waitDone waits for the process to exit, failing the test on timeout.
func waitDone(t *testing.T, p *Process, timeout time.Duration) int {
	t.Helper()
	select {
	case <-p.Done():
		return p.ExitCode()
	case <-time.After(timeout):
		t.Fatal("timeout waiting for process to exit")
		return -1
	}
}

func TestExitCodeIsReported(t *testing.T) {
	p := startShell(t, "exit 3", nil)
	if code := waitDone(t, p, time.Second); code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
}

func TestCleanExit(t *testing.T) {
	p := startShell(t, "exit 0", nil)
	if code := waitDone(t, p, time.Second); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
	if err := p.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestGracefulTerminate(t *testing.T) {
	p := startShell(t, "trap 'exit 0' INT TERM; while :; do sleep 0.05; done", func(o *Options) {
		o.GracefulTimeout = time.Second
	})
	time.Sleep(100 * time.Millisecond)

	if err := p.Terminate(context.Background()); err != nil {
		t.Fatalf("Terminate() error: %v", err)
	}
	if code := p.ExitCode(); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestForceKillOnTimeout(t *testing.T) {
	p := startShell(t, "trap '' INT; sleep 10", nil)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	if err := p.Terminate(context.Background()); err != nil {
		t.Fatalf("Terminate() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("terminate took %v", elapsed)
	}
	// 128 + 9 for SIGKILL
	if code := p.ExitCode(); code != 137 {
		t.Errorf("expected exit code 137, got %d", code)
	}
}

func TestTerminateHonorsContext(t *testing.T) {
	p := startShell(t, "trap '' INT; sleep 10", func(o *Options) {
		o.GracefulTimeout = 10 * time.Second
	})
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Terminate(ctx); err != nil {
		t.Fatalf("Terminate() error: %v", err)
	}
	if code := p.ExitCode(); code != 137 {
		t.Errorf("expected exit code 137, got %d", code)
	}
}

func TestTerminateAfterExit(t *testing.T) {
	p := startShell(t, "exit 2", nil)
	waitDone(t, p, time.Second)

	if err := p.Terminate(context.Background()); err != nil {
		t.Errorf("Terminate() after exit: %v", err)
	}
	if err := p.Terminate(context.Background()); err != nil {
		t.Errorf("second Terminate(): %v", err)
	}
	if code := p.ExitCode(); code != 2 {
		t.Errorf("exit code changed to %d", code)
	}
}

func TestStartNonExistentBinary(t *testing.T) {
	_, err := Start(Options{Binary: "/nonexistent/ffmpeg", Logger: testLogger()})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestStartEmptyBinary(t *testing.T) {
	if _, err := Start(Options{Logger: testLogger()}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestStdinIsForwarded(t *testing.T) {
	var out bytes.Buffer
	p := startShell(t, "cat", func(o *Options) {
		o.Stdin = strings.NewReader("frame-1\nframe-2\n")
		o.Stdout = &out
	})

	if code := waitDone(t, p, time.Second); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	<-p.InputDone()
	if out.String() != "frame-1\nframe-2\n" {
		t.Errorf("stdout = %q", out.String())
	}
	if n := p.BytesForwarded(); n != int64(len("frame-1\nframe-2\n")) {
		t.Errorf("BytesForwarded() = %d", n)
	}
}

func TestStdinClosedWhenSourceEnds(t *testing.T) {
	pr, pw := io.Pipe()
	p := startShell(t, "cat >/dev/null; exit 5", func(o *Options) {
		o.Stdin = pr
	})

	_, _ = pw.Write([]byte("data"))
	_ = pw.Close()

	if code := waitDone(t, p, time.Second); code != 5 {
		t.Errorf("expected exit code 5, got %d", code)
	}
}

func TestForwardingStopsWhenProcessExits(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := startShell(t, "exit 1", func(o *Options) {
		o.Stdin = pr
	})

	if code := waitDone(t, p, time.Second); code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}

	// The forwarder is blocked reading the source; closing it must release it.
	_ = pw.Close()
	select {
	case <-p.InputDone():
	case <-time.After(time.Second):
		t.Fatal("input forwarding did not stop")
	}
}

type testOutputHandler struct {
	mu    sync.Mutex
	lines []string
}

func (h *testOutputHandler) HandleLine(_, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, line)
}

func (h *testOutputHandler) all() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines...)
}

type recordHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler       { return h }
func (h *recordHandler) WithGroup(string) slog.Handler            { return h }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func TestOutputLogMode(t *testing.T) {
	handler := &testOutputHandler{}
	records := &recordHandler{}
	parser := func(line string) (string, string) {
		if rest, ok := strings.CutPrefix(line, "[error] "); ok {
			return "error", rest
		}
		return "info", line
	}

	p := startShell(t, "echo hello; echo '[error] broken pipe' >&2", func(o *Options) {
		o.Output = OutputLog
		o.OutputHandler = handler
		o.ProcessLogger = slog.New(records)
		o.LogParser = parser
	})
	waitDone(t, p, time.Second)

	lines := handler.all()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %v", lines)
	}

	records.mu.Lock()
	defer records.mu.Unlock()
	var sawError bool
	for _, r := range records.records {
		if r.Level == slog.LevelError && r.Message == "broken pipe" {
			sawError = true
		}
	}
	if !sawError {
		t.Error("stderr line was not logged at error level")
	}
}

func TestExitCodeFromError(t *testing.T) {
	if got := exitCodeFromError(nil); got != 0 {
		t.Errorf("nil error = %d", got)
	}
	if got := exitCodeFromError(io.EOF); got != 1 {
		t.Errorf("non-exit error = %d", got)
	}
}
