package pipeline

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the resolved, read-only parameter set for one run.
type Config struct {
	// Endpoint is the broadcast destination, e.g. rtmp://a.rtmp.youtube.com/live2/<key>.
	Endpoint string

	Width  int
	Height int
	FPS    int

	// AudioAssetID references the external audio track; empty means video only.
	AudioAssetID string
	// BackgroundAssetID is only forwarded to the page, never used by the core.
	BackgroundAssetID string

	VideoCodec   string
	PixelFormat  string
	Preset       string
	VideoBitrate string
	GOP          int

	AudioCodec      string
	AudioBitrate    string
	AudioSampleRate int
	AudioChannels   int

	// SettleDelay is waited after the page reports network idle, before capture.
	SettleDelay time.Duration
	// LoadTimeout bounds navigation plus waiting for network idle.
	LoadTimeout time.Duration
	// FirstFrameTimeout bounds how long capture may take to deliver its first frame.
	FirstFrameTimeout time.Duration
	// StepTimeout bounds each individual teardown step.
	StepTimeout time.Duration
}

// DefaultConfig returns the defaults used when a value is not configured.
func DefaultConfig() Config {
	return Config{
		Width:             1920,
		Height:            1080,
		FPS:               30,
		VideoCodec:        "libx264",
		PixelFormat:       "yuv420p",
		Preset:            "veryfast",
		VideoBitrate:      "4500k",
		AudioCodec:        "aac",
		AudioBitrate:      "160k",
		AudioSampleRate:   44100,
		AudioChannels:     2,
		SettleDelay:       1200 * time.Millisecond,
		LoadTimeout:       30 * time.Second,
		FirstFrameTimeout: 10 * time.Second,
		StepTimeout:       5 * time.Second,
	}
}

var supportedSchemes = map[string]bool{
	"rtmp":  true,
	"rtmps": true,
	"srt":   true,
	"rtsp":  true,
	"udp":   true,
}

// Validate checks the configuration. It returns a ConfigurationError and is
// called before any resource is created.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return configError(fmt.Errorf("output endpoint is not set"))
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return configError(fmt.Errorf("output endpoint: %w", err))
	}
	if !supportedSchemes[strings.ToLower(u.Scheme)] {
		return configError(fmt.Errorf("output endpoint scheme %q is not supported", u.Scheme))
	}
	if c.Width <= 0 || c.Height <= 0 {
		return configError(fmt.Errorf("invalid frame size %dx%d", c.Width, c.Height))
	}
	if c.FPS <= 0 || c.FPS > 120 {
		return configError(fmt.Errorf("invalid frame rate %d", c.FPS))
	}
	if c.Width%2 != 0 || c.Height%2 != 0 {
		// yuv420p needs even dimensions
		return configError(fmt.Errorf("frame size %dx%d must be even", c.Width, c.Height))
	}
	return nil
}

// EffectiveGOP returns the keyframe interval, two seconds of frames by default.
func (c Config) EffectiveGOP() int {
	if c.GOP > 0 {
		return c.GOP
	}
	return c.FPS * 2
}

// RedactedEndpoint returns the endpoint with its stream key masked, for logs.
func (c Config) RedactedEndpoint() string {
	return RedactEndpoint(c.Endpoint)
}

// RedactEndpoint masks the last path segment and any query string of an
// endpoint URL. Broadcast endpoints carry the stream key there.
func RedactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "<redacted>"
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	p := u.EscapedPath()
	if i := strings.LastIndex(p, "/"); i >= 0 && i < len(p)-1 {
		u.RawPath = p[:i+1] + "****"
		u.Path, _ = url.PathUnescape(u.RawPath)
	}
	return u.String()
}
