package render

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/smazurov/pagecast/internal/pipeline"
)

// findChrome returns a Chromium binary or skips the test.
func findChrome(t *testing.T) string {
	t.Helper()
	if path := os.Getenv("PAGECAST_CHROME"); path != "" {
		return path
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chromium binary found")
	return ""
}

func TestChromeFlags(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.Width, cfg.Height = 1280, 720

	tests := []struct {
		name    string
		opts    Options
		want    map[string]any
		missing []string
	}{
		{
			name: "defaults",
			want: map[string]any{
				"window-size":     "1280,720",
				"mute-audio":      true,
				"autoplay-policy": "no-user-gesture-required",
				"disable-gpu":     true,
			},
			missing: []string{"no-sandbox", "disable-setuid-sandbox", "headless"},
		},
		{
			name: "no sandbox",
			opts: Options{NoSandbox: true},
			want: map[string]any{"no-sandbox": true, "disable-setuid-sandbox": true},
		},
		{
			name: "headful",
			opts: Options{Headful: true},
			want: map[string]any{"headless": false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Logger = discardLogger()
			flags := NewBrowser(tt.opts).chromeFlags(cfg)
			for name, want := range tt.want {
				if got, ok := flags[name]; !ok || got != want {
					t.Errorf("flag %s = %v (set %v), want %v", name, got, ok, want)
				}
			}
			for _, name := range tt.missing {
				if _, ok := flags[name]; ok {
					t.Errorf("flag %s should not be set", name)
				}
			}
		})
	}
}

func TestAllocatorOptions(t *testing.T) {
	b := NewBrowser(Options{NoSandbox: true, ExecPath: "/usr/bin/chromium", Logger: discardLogger()})
	cfg := pipeline.DefaultConfig()
	opts := b.allocatorOptions(cfg)
	want := len(chromedp.DefaultExecAllocatorOptions) + len(b.chromeFlags(cfg)) + 1
	if len(opts) != want {
		t.Errorf("got %d allocator options, want %d", len(opts), want)
	}
}

func newTestSession(loaderID cdp.LoaderID) *Session {
	return &Session{
		tabCtx:   context.Background(),
		logger:   discardLogger(),
		idle:     make(chan cdp.LoaderID, 16),
		loaderID: loaderID,
	}
}

func TestSessionWaitStable(t *testing.T) {
	tests := []struct {
		name     string
		loaderID cdp.LoaderID
		feed     []cdp.LoaderID
		settle   time.Duration
		timeout  time.Duration
		wantErr  string
		minWait  time.Duration
	}{
		{
			name:     "idle for the current load",
			loaderID: "current",
			feed:     []cdp.LoaderID{"current"},
			timeout:  time.Second,
		},
		{
			name:     "foreign loader ids are ignored",
			loaderID: "current",
			feed:     []cdp.LoaderID{"previous", "iframe"},
			timeout:  50 * time.Millisecond,
			wantErr:  "waiting for network idle",
		},
		{
			name:     "foreign then current",
			loaderID: "current",
			feed:     []cdp.LoaderID{"previous", "current"},
			timeout:  time.Second,
		},
		{
			name:     "settle delay is awaited",
			loaderID: "current",
			feed:     []cdp.LoaderID{"current"},
			settle:   40 * time.Millisecond,
			timeout:  time.Second,
			minWait:  40 * time.Millisecond,
		},
		{
			name:     "cancelled during settle",
			loaderID: "current",
			feed:     []cdp.LoaderID{"current"},
			settle:   time.Hour,
			timeout:  50 * time.Millisecond,
			wantErr:  "settle delay",
		},
		{
			name:    "not navigated",
			timeout: time.Second,
			wantErr: "not navigated",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(tt.loaderID)
			for _, id := range tt.feed {
				s.idle <- id
			}
			ctx, cancel := context.WithTimeout(context.Background(), tt.timeout)
			defer cancel()

			start := time.Now()
			err := s.WaitStable(ctx, tt.settle)
			elapsed := time.Since(start)

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("WaitStable() error: %v", err)
				}
				if elapsed < tt.minWait {
					t.Errorf("returned after %v, want at least %v", elapsed, tt.minWait)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("WaitStable() error = %v, want %q", err, tt.wantErr)
			}
			if tt.loaderID != "" && !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("error %v does not wrap the context error", err)
			}
		})
	}
}

func TestSessionOnEventFiltersLifecycle(t *testing.T) {
	s := newTestSession("current")
	// Without a browser attached the main frame id is empty.
	s.onEvent(&page.EventLifecycleEvent{Name: "load", LoaderID: "a"})
	s.onEvent(&page.EventLifecycleEvent{Name: "networkAlmostIdle", FrameID: "child", LoaderID: "b"})
	s.onEvent(&page.EventFrameNavigated{})
	s.onEvent(&page.EventLifecycleEvent{Name: "networkAlmostIdle", LoaderID: "current"})

	select {
	case id := <-s.idle:
		if id != "current" {
			t.Errorf("idle loader id = %q, want current", id)
		}
	default:
		t.Fatal("main-frame networkAlmostIdle was dropped")
	}
	select {
	case id := <-s.idle:
		t.Errorf("unexpected idle event %q", id)
	default:
	}
}

func TestBrowserCapturesPage(t *testing.T) {
	chrome := findChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><body style="background:#c00"><h1>live</h1></body></html>`)
	}))
	defer srv.Close()

	cfg := pipeline.DefaultConfig()
	cfg.Width, cfg.Height, cfg.FPS = 320, 240, 10
	cfg.SettleDelay = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b := NewBrowser(Options{ExecPath: chrome, NoSandbox: true, Logger: discardLogger()})
	session, err := b.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer session.Close()

	if err := session.Navigate(ctx, srv.URL); err != nil {
		t.Fatalf("Navigate() error: %v", err)
	}
	if err := session.WaitStable(ctx, cfg.SettleDelay); err != nil {
		t.Fatalf("WaitStable() error: %v", err)
	}

	capture, err := NewScreencast(ScreencastOptions{Logger: discardLogger()}).Acquire(ctx, session, cfg)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := io.ReadAtLeast(capture, buf, 2)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	if !bytes.HasPrefix(buf[:n], []byte{0xFF, 0xD8}) {
		t.Errorf("stream does not start with a JPEG SOI marker: % x", buf[:2])
	}

	if err := capture.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := io.ReadAll(capture); err != nil {
		t.Errorf("stream did not end cleanly after Close: %v", err)
	}
	if capture.Format() != FormatMJPEG {
		t.Errorf("Format() = %q", capture.Format())
	}
}
