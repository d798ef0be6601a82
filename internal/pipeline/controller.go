package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/pagecast/internal/events"
)

// ErrNotStreaming is returned by operations that need a live run.
var ErrNotStreaming = errors.New("pipeline is not streaming")

// Options configures a Controller.
type Options struct {
	Config    Config
	TargetURL string
	RunID     string

	// Target, when set, computes the page address once the surface is bound
	// and takes precedence over TargetURL.
	Target func() string

	Surface    Surface
	Renderer   Renderer
	Source     StreamSource
	Audio      AudioResolver
	Transcoder Transcoder

	EventBus *events.Bus
	Logger   *slog.Logger

	// Signals are the OS signals treated as an interrupt request while Run is
	// active. Nil means SIGINT and SIGTERM; an empty slice disables signal handling.
	Signals []os.Signal
}

// Controller sequences one broadcast run and tears it down exactly once.
type Controller struct {
	cfg        Config
	targetURL  string
	target     func() string
	runID      string
	surface    Surface
	renderer   Renderer
	source     StreamSource
	audio      AudioResolver
	transcoder Transcoder
	bus        *events.Bus
	logger     *slog.Logger
	signals    []os.Signal

	interruptOnce sync.Once
	interruptCh   chan struct{}
	teardownOnce  sync.Once
	stoppedCh     chan struct{}

	mu          sync.Mutex
	state       State
	trigger     Trigger
	fatal       error
	exitCode    *int
	streamingAt time.Time
	tornDown    bool
	res         resources
}

// resources owned by the current run, released in teardown order.
type resources struct {
	surface Surface
	session RenderSession
	capture CaptureHandle
	process TranscodeProcess
}

// NewController creates a controller in the idle state.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	signals := opts.Signals
	if signals == nil {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	return &Controller{
		cfg:         opts.Config,
		targetURL:   opts.TargetURL,
		target:      opts.Target,
		runID:       opts.RunID,
		surface:     opts.Surface,
		renderer:    opts.Renderer,
		source:      opts.Source,
		audio:       opts.Audio,
		transcoder:  opts.Transcoder,
		bus:         opts.EventBus,
		logger:      logger.With("run_id", opts.RunID),
		signals:     signals,
		interruptCh: make(chan struct{}),
		stoppedCh:   make(chan struct{}),
		state:       StateIdle,
	}
}

// Run starts the pipeline and blocks until it has stopped. The returned code is
// the transcoder's exit code when it ended the run, zero on interrupt and one on
// a startup failure. Canceling ctx counts as an interrupt.
func (c *Controller) Run(ctx context.Context) (int, error) {
	if err := c.cfg.Validate(); err != nil {
		c.logger.Error("Invalid configuration", "phase", PhaseOf(err), "error", err)
		c.fail(err)
		c.Shutdown(context.Background())
		return ExitFailure, err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	sigCh := make(chan os.Signal, 1)
	if len(c.signals) > 0 {
		signal.Notify(sigCh, c.signals...)
		defer signal.Stop(sigCh)
	}
	watchDone := make(chan struct{})
	defer close(watchDone)
	go c.watchInterrupts(ctx, sigCh, cancelRun, watchDone)

	proc, err := c.startup(runCtx)
	if err != nil {
		if c.interrupted() {
			c.logger.Info("Interrupted during startup", "phase", PhaseOf(err))
			c.setTrigger(TriggerInterrupt, ExitSuccess)
			c.Shutdown(context.Background())
			return ExitSuccess, nil
		}
		c.logger.Error("Pipeline startup failed", "phase", PhaseOf(err), "error", err)
		c.fail(err)
		c.Shutdown(context.Background())
		return ExitFailure, err
	}

	c.logger.Info("Streaming", "endpoint", c.cfg.RedactedEndpoint(), "pid", proc.PID())

	var code int
	select {
	case <-proc.Done():
		code = proc.ExitCode()
		c.logger.Info("Transcoder exited", "exit_code", code)
		c.bus.Publish(events.TranscoderExitedEvent{
			RunID:     c.runID,
			ExitCode:  code,
			Timestamp: now(),
		})
		c.setTrigger(TriggerTranscoderExit, code)
	case <-c.interruptCh:
		code = ExitSuccess
		c.logger.Info("Interrupt received, stopping broadcast")
		c.setTrigger(TriggerInterrupt, code)
	}

	c.Shutdown(context.Background())
	return code, nil
}

func (c *Controller) watchInterrupts(ctx context.Context, sigCh <-chan os.Signal, cancelRun context.CancelFunc, done <-chan struct{}) {
	select {
	case sig := <-sigCh:
		c.logger.Info("Signal received", "signal", sig.String())
		c.Interrupt()
	case <-ctx.Done():
		c.Interrupt()
	case <-c.interruptCh:
	case <-done:
		return
	}
	cancelRun()
}

// startup runs the Initializing sequence in strict order and returns the
// spawned transcoder.
func (c *Controller) startup(ctx context.Context) (TranscodeProcess, error) {
	if c.surface != nil {
		if err := c.surface.Start(ctx); err != nil {
			return nil, phaseError(PhaseSurface, ErrSurfaceUnavailable, err)
		}
		c.track(func(r *resources) { r.surface = c.surface }, func() { _ = c.surface.Stop(context.Background()) })
	}

	c.setState(StateInitializing, "http surface ready")

	loadCtx, cancelLoad := context.WithTimeout(ctx, c.loadTimeout())
	defer cancelLoad()

	session, err := c.renderer.Open(loadCtx, c.cfg)
	if err != nil {
		return nil, phaseError(PhaseRender, ErrCaptureUnavailable, err)
	}
	if !c.track(func(r *resources) { r.session = session }, func() { _ = session.Close() }) {
		return nil, phaseError(PhaseRender, ErrCaptureUnavailable, context.Canceled)
	}

	targetURL := c.targetURL
	if c.target != nil {
		targetURL = c.target()
	}
	if err := session.Navigate(loadCtx, targetURL); err != nil {
		return nil, phaseError(PhaseRender, ErrCaptureUnavailable, err)
	}
	if err := session.WaitStable(loadCtx, c.cfg.SettleDelay); err != nil {
		return nil, phaseError(PhaseStabilize, ErrCaptureUnavailable, err)
	}
	c.logger.Debug("Render target stable", "url", targetURL)

	capture, err := c.source.Acquire(ctx, session, c.cfg)
	if err != nil {
		return nil, phaseError(PhaseCapture, ErrCaptureUnavailable, err)
	}
	if !c.track(func(r *resources) { r.capture = capture }, func() { _ = capture.Close() }) {
		return nil, phaseError(PhaseCapture, ErrCaptureUnavailable, context.Canceled)
	}
	c.bus.Publish(events.CaptureStartedEvent{
		RunID:     c.runID,
		Format:    capture.Format(),
		Width:     c.cfg.Width,
		Height:    c.cfg.Height,
		FPS:       c.cfg.FPS,
		Timestamp: now(),
	})

	audioURL := ""
	if c.audio != nil {
		if u, ok := c.audio.Resolve(c.cfg.AudioAssetID); ok {
			audioURL = u
		}
	}

	proc, err := c.transcoder.Start(ctx, capture, audioURL, c.cfg)
	if err != nil {
		return nil, phaseError(PhaseTranscode, ErrTranscodeSpawn, err)
	}
	if !c.track(func(r *resources) { r.process = proc }, func() { _ = proc.Terminate(context.Background()) }) {
		return nil, phaseError(PhaseTranscode, ErrTranscodeSpawn, context.Canceled)
	}
	c.bus.Publish(events.TranscoderStartedEvent{
		RunID:     c.runID,
		PID:       proc.PID(),
		HasAudio:  audioURL != "",
		Timestamp: now(),
	})

	c.mu.Lock()
	c.streamingAt = time.Now()
	c.mu.Unlock()
	c.setState(StateStreaming, "transcoder running")
	return proc, nil
}

// track registers a resource with the run. If teardown already happened the
// resource is released immediately and false is returned.
func (c *Controller) track(assign func(*resources), release func()) bool {
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		release()
		return false
	}
	assign(&c.res)
	c.mu.Unlock()
	return true
}

// Interrupt requests the run to stop. Safe to call any number of times from any
// goroutine.
func (c *Controller) Interrupt() {
	c.interruptOnce.Do(func() { close(c.interruptCh) })
}

func (c *Controller) interrupted() bool {
	select {
	case <-c.interruptCh:
		return true
	default:
		return false
	}
}

// Shutdown tears the run down. Only the first call does any work; later calls
// wait for it to finish. Every step runs even if an earlier one fails.
func (c *Controller) Shutdown(ctx context.Context) {
	c.Interrupt()
	c.teardownOnce.Do(func() {
		defer close(c.stoppedCh)
		c.teardown()
	})
	select {
	case <-c.stoppedCh:
	case <-ctx.Done():
	}
}

// Stopped is closed once teardown has completed.
func (c *Controller) Stopped() <-chan struct{} {
	return c.stoppedCh
}

func (c *Controller) teardown() {
	c.mu.Lock()
	c.tornDown = true
	res := c.res
	c.res = resources{}
	c.mu.Unlock()

	c.setState(StateTerminating, string(c.currentTrigger()))

	if res.capture != nil {
		c.runStep("stop capture", func(context.Context) error { return res.capture.Close() })
	}
	if res.process != nil {
		c.runStep("terminate transcoder", res.process.Terminate)
	}
	if res.session != nil {
		c.runStep("close render session", func(context.Context) error { return res.session.Close() })
	}
	if res.surface != nil {
		c.runStep("stop http surface", res.surface.Stop)
	}

	c.setState(StateStopped, "teardown complete")
}

// runStep runs one teardown action with a deadline. Errors and panics are
// logged and swallowed.
func (c *Controller) runStep(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.stepTimeout())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		c.logger.Warn("Teardown step failed", "step", name,
			"error", phaseError(PhaseTeardown, ErrTeardownStep, err))
		return
	}
	c.logger.Debug("Teardown step done", "step", name)
}

// ReloadPage reloads the render target in place without interrupting the
// broadcast. Used by the asset watcher.
func (c *Controller) ReloadPage(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	session := c.res.session
	c.mu.Unlock()

	if state != StateStreaming || session == nil {
		return ErrNotStreaming
	}
	reloader, ok := session.(Reloader)
	if !ok {
		return fmt.Errorf("render session does not support reload")
	}

	err := reloader.Reload(ctx)
	ev := events.PageReloadedEvent{RunID: c.runID, Timestamp: now()}
	if err != nil {
		ev.Error = err.Error()
		c.logger.Warn("Page reload failed", "error", err)
	} else {
		c.logger.Info("Page reloaded")
	}
	c.bus.Publish(ev)
	return err
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot for the HTTP surface.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		RunID:       c.runID,
		State:       c.state,
		Trigger:     c.trigger,
		Endpoint:    c.cfg.RedactedEndpoint(),
		StreamingAt: c.streamingAt,
	}
	if c.res.process != nil {
		st.TranscoderPID = c.res.process.PID()
	}
	if c.exitCode != nil {
		code := *c.exitCode
		st.ExitCode = &code
	}
	if c.fatal != nil {
		st.Error = c.fatal.Error()
	}
	return st
}

func (c *Controller) setState(to State, reason string) {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return
	}
	c.state = to
	fatal := c.fatal
	c.mu.Unlock()

	c.logger.Debug("State changed", "from", from, "to", to, "reason", reason)

	ev := events.PipelineStateChangedEvent{
		RunID:     c.runID,
		From:      string(from),
		To:        string(to),
		Reason:    reason,
		Timestamp: now(),
	}
	if fatal != nil {
		ev.Error = fatal.Error()
	}
	c.bus.Publish(ev)
}

func (c *Controller) setTrigger(trigger Trigger, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trigger != TriggerNone {
		return
	}
	c.trigger = trigger
	c.exitCode = &code
}

func (c *Controller) currentTrigger() Trigger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trigger
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.fatal = err
	c.mu.Unlock()
	c.setTrigger(TriggerStartupFailure, ExitFailure)
}

func (c *Controller) loadTimeout() time.Duration {
	if c.cfg.LoadTimeout > 0 {
		return c.cfg.LoadTimeout
	}
	return DefaultConfig().LoadTimeout
}

func (c *Controller) stepTimeout() time.Duration {
	if c.cfg.StepTimeout > 0 {
		return c.cfg.StepTimeout
	}
	return DefaultConfig().StepTimeout
}

func phaseError(phase Phase, kind, err error) error {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return err
	}
	return &PhaseError{Phase: phase, Kind: kind, Err: err}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
