package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/smazurov/pagecast/internal/pipeline"
)

// Options configures the headless browser.
type Options struct {
	// ExecPath overrides Chromium discovery.
	ExecPath  string
	Headful   bool
	NoSandbox bool
	Logger    *slog.Logger
}

// Browser launches one Chromium per session.
type Browser struct {
	opts   Options
	logger *slog.Logger
}

// NewBrowser creates a Browser.
func NewBrowser(opts Options) *Browser {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{opts: opts, logger: logger}
}

// chromeFlags returns the Chromium command-line flags added on top of the
// chromedp defaults.
func (b *Browser) chromeFlags(cfg pipeline.Config) map[string]any {
	flags := map[string]any{
		"window-size": fmt.Sprintf("%d,%d", cfg.Width, cfg.Height),
		"disable-gpu": true,
		// Audio comes from the transcoder's own input.
		"mute-audio":      true,
		"autoplay-policy": "no-user-gesture-required",
		"hide-scrollbars": true,
	}
	if b.opts.NoSandbox {
		flags["no-sandbox"] = true
		flags["disable-setuid-sandbox"] = true
	}
	if b.opts.Headful {
		flags["headless"] = false
	}
	return flags
}

func (b *Browser) allocatorOptions(cfg pipeline.Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range b.chromeFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if b.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.opts.ExecPath))
	}
	return opts
}

// Open launches Chromium with a viewport of the configured size. The browser
// outlives ctx; only Session.Close releases it.
func (b *Browser) Open(ctx context.Context, cfg pipeline.Config) (pipeline.RenderSession, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			b.logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			b.logger.Warn(fmt.Sprintf(format, args...))
		}),
	)

	s := &Session{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		logger:      b.logger,
		idle:        make(chan cdp.LoaderID, 16),
	}

	// The first Run starts the browser and must not carry a deadline, or the
	// browser dies with it.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			s.release()
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	case <-ctx.Done():
		s.release()
		return nil, fmt.Errorf("launch browser: %w", ctx.Err())
	}

	chromedp.ListenTarget(tabCtx, s.onEvent)

	if err := s.run(ctx,
		chromedp.EmulateViewport(int64(cfg.Width), int64(cfg.Height)),
		page.SetLifecycleEventsEnabled(true),
	); err != nil {
		s.release()
		return nil, fmt.Errorf("configure page: %w", err)
	}

	b.logger.Info("Browser launched", "width", cfg.Width, "height", cfg.Height)
	return s, nil
}

// Session is one Chromium instance with one page.
type Session struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	logger      *slog.Logger

	// idle receives the loader id of every main-frame networkAlmostIdle event.
	idle chan cdp.LoaderID

	mu       sync.Mutex
	url      string
	loaderID cdp.LoaderID

	closeOnce sync.Once
}

var _ pipeline.Reloader = (*Session)(nil)

func (s *Session) onEvent(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || e.Name != "networkAlmostIdle" {
		return
	}
	if e.FrameID != s.mainFrame() {
		return
	}
	select {
	case s.idle <- e.LoaderID:
	default:
	}
}

func (s *Session) mainFrame() cdp.FrameID {
	c := chromedp.FromContext(s.tabCtx)
	if c == nil || c.Target == nil {
		return ""
	}
	return cdp.FrameID(c.Target.TargetID)
}

// run executes actions on the page, bounded by ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and returns once the navigation has committed.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Loading page", "url", url)
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, loaderID, errText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return fmt.Errorf("navigate %s: %s", url, errText)
		}
		s.mu.Lock()
		s.url = url
		s.loaderID = loaderID
		s.mu.Unlock()
		return nil
	}))
}

// WaitStable waits until the page has at most two network connections open for
// half a second and then for settle. The settle delay approximates "visually
// stable"; the browser exposes no stronger signal for that.
func (s *Session) WaitStable(ctx context.Context, settle time.Duration) error {
	s.mu.Lock()
	want := s.loaderID
	s.mu.Unlock()
	if want == "" {
		return errors.New("page was not navigated")
	}

	for idle := false; !idle; {
		select {
		case id := <-s.idle:
			idle = id == want
		case <-ctx.Done():
			return fmt.Errorf("waiting for network idle: %w", ctx.Err())
		}
	}

	if settle > 0 {
		t := time.NewTimer(settle)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return fmt.Errorf("settle delay: %w", ctx.Err())
		}
	}
	return nil
}

// Reload reloads the current page in place.
func (s *Session) Reload(ctx context.Context) error {
	return s.run(ctx, chromedp.Reload())
}

// URL returns the last navigated address.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Close shuts the browser down. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing browser")
		s.release()
	})
	return nil
}

func (s *Session) release() {
	s.tabCancel()
	s.allocCancel()
}
