package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
type LogParser func(line string) (level, msg string)

// OutputMode selects where subprocess output goes.
type OutputMode string

// Output modes.
const (
	// OutputInherit attaches stdout and stderr to the parent's.
	OutputInherit OutputMode = "inherit"
	// OutputLog reads both streams line by line into the process logger.
	OutputLog OutputMode = "log"
)

// ErrNotExited is returned by Terminate when the process survived SIGKILL.
var ErrNotExited = errors.New("process did not exit after kill")

const (
	defaultGracefulTimeout = 5 * time.Second
	defaultKillTimeout     = 5 * time.Second
)

// Options configures a subprocess.
type Options struct {
	ID     string
	Binary string
	Args   []string

	// Stdin is copied into the subprocess's standard input until it returns EOF
	// or the subprocess stops reading. Nil leaves stdin unattached.
	Stdin io.Reader

	Output OutputMode
	// Stdout and Stderr override the inherited streams, mostly for tests.
	Stdout io.Writer
	Stderr io.Writer
	// OutputFilter rewrites each inherited output line before it is written.
	// OutputLog mode goes through the logger and ignores it.
	OutputFilter func(line string) string

	Logger        *slog.Logger
	ProcessLogger *slog.Logger // logger for process output in OutputLog mode
	LogParser     LogParser
	OutputHandler OutputHandler

	GracefulTimeout time.Duration // SIGINT to SIGKILL
	KillTimeout     time.Duration // SIGKILL to giving up
}

// Process is a running subprocess.
type Process struct {
	id              string
	cmd             *exec.Cmd
	logger          *slog.Logger
	processLogger   *slog.Logger
	logParser       LogParser
	outputHandler   OutputHandler
	gracefulTimeout time.Duration
	killTimeout     time.Duration

	done      chan struct{}
	exitCode  int
	waitErr   error
	forwarded atomic.Int64
	stdinDone chan struct{}
	stopOnce  sync.Once
}

// Start spawns the subprocess. It returns once the process is running.
func Start(opts Options) (*Process, error) {
	if opts.Binary == "" {
		return nil, fmt.Errorf("empty command")
	}

	p := &Process{
		id:              opts.ID,
		logger:          opts.Logger,
		processLogger:   opts.ProcessLogger,
		logParser:       opts.LogParser,
		outputHandler:   opts.OutputHandler,
		gracefulTimeout: opts.GracefulTimeout,
		killTimeout:     opts.KillTimeout,
		done:            make(chan struct{}),
		stdinDone:       make(chan struct{}),
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.processLogger == nil {
		p.processLogger = p.logger
	}
	if p.gracefulTimeout <= 0 {
		p.gracefulTimeout = defaultGracefulTimeout
	}
	if p.killTimeout <= 0 {
		p.killTimeout = defaultKillTimeout
	}

	p.cmd = exec.Command(opts.Binary, opts.Args...)
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdin io.WriteCloser
	if opts.Stdin != nil {
		var err error
		if stdin, err = p.cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
	}

	var outputs []io.Reader
	var filtered []*lineFilterWriter
	switch opts.Output {
	case OutputLog:
		stdout, err := p.cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		stderr, err := p.cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
		outputs = []io.Reader{stdout, stderr}
	default:
		stdout := writerOr(opts.Stdout, os.Stdout)
		stderr := writerOr(opts.Stderr, os.Stderr)
		if opts.OutputFilter != nil {
			fout := newLineFilterWriter(stdout, opts.OutputFilter)
			ferr := newLineFilterWriter(stderr, opts.OutputFilter)
			filtered = []*lineFilterWriter{fout, ferr}
			stdout, stderr = fout, ferr
		}
		p.cmd.Stdout = stdout
		p.cmd.Stderr = stderr
	}

	if err := p.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Binary, err)
	}

	p.logger.Info("Process started", "id", p.id, "pid", p.cmd.Process.Pid)

	if stdin != nil {
		go p.forward(stdin, opts.Stdin)
	} else {
		close(p.stdinDone)
	}

	var outputWG sync.WaitGroup
	for i, r := range outputs {
		source := "stdout"
		if i == 1 {
			source = "stderr"
		}
		outputWG.Add(1)
		go func() {
			defer outputWG.Done()
			p.streamOutput(r, source)
		}()
	}

	go func() {
		// Pipes must be drained before Wait closes them.
		outputWG.Wait()
		p.waitErr = p.cmd.Wait()
		for _, w := range filtered {
			_ = w.Flush()
		}
		p.exitCode = exitCodeFromError(p.waitErr)
		if p.waitErr != nil && !isExitError(p.waitErr) {
			p.logger.Error("Process exited with error", "id", p.id, "error", p.waitErr)
		}
		p.logger.Info("Process exited", "id", p.id, "exit_code", p.exitCode)
		close(p.done)
	}()

	return p, nil
}

// forward copies src into the subprocess's stdin and closes it afterwards so the
// subprocess sees end of input.
func (p *Process) forward(stdin io.WriteCloser, src io.Reader) {
	defer close(p.stdinDone)
	n, err := io.Copy(stdin, &countingReader{r: src, n: &p.forwarded})
	_ = stdin.Close()
	switch {
	case err == nil:
		p.logger.Debug("Input stream ended", "id", p.id, "bytes", n)
	case errors.Is(err, syscall.EPIPE), errors.Is(err, os.ErrClosed):
		p.logger.Debug("Process stopped reading input", "id", p.id, "bytes", n)
	default:
		p.logger.Warn("Input forwarding failed", "id", p.id, "bytes", n, "error", err)
	}
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit status. Only valid after Done is closed.
func (p *Process) ExitCode() int {
	<-p.done
	return p.exitCode
}

// Err returns the error reported by Wait, nil on a clean exit.
func (p *Process) Err() error {
	<-p.done
	return p.waitErr
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// BytesForwarded returns how many stdin bytes were written to the process.
func (p *Process) BytesForwarded() int64 {
	return p.forwarded.Load()
}

// InputDone is closed once stdin forwarding has stopped.
func (p *Process) InputDone() <-chan struct{} {
	return p.stdinDone
}

// Wait blocks until the process exits and returns its exit code.
func (p *Process) Wait() int {
	return p.ExitCode()
}

// Terminate asks the process to stop with SIGINT and force kills the process
// group if it has not exited within the graceful timeout or when ctx ends.
// It returns nil once the process is gone, including when it already was.
func (p *Process) Terminate(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	p.stopOnce.Do(p.sendStopSignal)

	graceful := time.NewTimer(p.gracefulTimeout)
	defer graceful.Stop()

	select {
	case <-p.done:
		return nil
	case <-graceful.C:
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.gracefulTimeout)
	case <-ctx.Done():
		p.logger.Warn("Terminate deadline reached, forcing kill", "id", p.id)
	}

	p.kill()

	select {
	case <-p.done:
		return nil
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "id", p.id)
		return ErrNotExited
	}
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal() {
	p.logger.Info("Sending SIGINT to process", "id", p.id, "pid", p.cmd.Process.Pid)
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "id", p.id, "error", err)
	}
}

// kill sends SIGKILL to the whole process group.
func (p *Process) kill() {
	pid := p.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Error("Failed to kill process", "id", p.id, "error", err)
		}
	}
}

// streamOutput logs each output line at the level reported by the parser.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "quiet", "panic", "fatal", "error":
			p.processLogger.Error(msg)
		case "warning":
			p.processLogger.Warn(msg)
		case "verbose", "debug", "trace":
			p.processLogger.Debug(msg)
		default:
			p.processLogger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
	}
}

// exitCodeFromError extracts the exit code from a Wait error.
// Returns 0 for nil, 128+signal when killed by a signal, the exit status for
// other ExitErrors and 1 for anything else.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n.Add(int64(n))
	return n, err
}
