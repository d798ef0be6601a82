package config

import (
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/pagecast/internal/logging"
	"github.com/smazurov/pagecast/internal/pipeline"
)

// Options is the flat option set of a pagecast run. Every field with a help
// tag is a CLI flag; toml tags map into the config file and env tags name the
// environment key (prefixed with PAGECAST_, ",bare" keys also read as is).
type Options struct {
	Config  string `help:"Path to configuration file" short:"c" default:"pagecast.toml"`
	EnvFile string `help:"Path to a .env file" default:".env"`

	// Stream settings
	Endpoint string `help:"Broadcast endpoint (rtmp, rtmps, srt, rtsp or udp URL)" short:"e" toml:"stream.endpoint" env:"YT_RTMP,bare"`

	// Video settings
	Width        int    `help:"Capture width in pixels" default:"1920" toml:"video.width" env:"WIDTH,bare"`
	Height       int    `help:"Capture height in pixels" default:"1080" toml:"video.height" env:"HEIGHT,bare"`
	FPS          int    `help:"Frames per second" default:"30" toml:"video.fps" env:"FPS,bare"`
	VideoCodec   string `help:"ffmpeg video encoder" default:"libx264" toml:"video.codec" env:"VIDEO_CODEC"`
	PixelFormat  string `help:"Output pixel format" default:"yuv420p" toml:"video.pixel_format" env:"PIXEL_FORMAT"`
	Preset       string `help:"Encoder preset" default:"veryfast" toml:"video.preset" env:"X264_PRESET,bare"`
	VideoBitrate string `help:"Video bitrate" default:"4500k" toml:"video.bitrate" env:"VBITRATE,bare"`
	GOP          int    `help:"Keyframe interval in frames (0 = two seconds)" default:"0" toml:"video.gop" env:"GOP"`

	// Audio settings
	AudioCodec       string `help:"ffmpeg audio encoder" default:"aac" toml:"audio.codec" env:"AUDIO_CODEC"`
	AudioBitrate     string `help:"Audio bitrate" default:"160k" toml:"audio.bitrate" env:"ABITRATE,bare"`
	AudioSampleRate  int    `help:"Audio sample rate in Hz" default:"44100" toml:"audio.sample_rate" env:"AUDIO_SAMPLE_RATE"`
	AudioChannels    int    `help:"Audio channel count" default:"2" toml:"audio.channels" env:"AUDIO_CHANNELS"`
	AudioAsset       string `help:"External audio asset id or URL" toml:"assets.audio" env:"DRIVE_AUDIO,bare"`
	BackgroundAsset  string `help:"Background asset id passed to the page" toml:"assets.background" env:"DRIVE_BG,bare"`
	AudioURLTemplate string `help:"URL template for audio asset ids, {id} is replaced" default:"https://drive.google.com/uc?export=download&id={id}" toml:"assets.audio_url_template" env:"AUDIO_URL_TEMPLATE"`

	// Timing settings
	SettleDelayMs       int `help:"Delay after the page reaches network idle before capture" default:"1200" toml:"timing.settle_delay_ms" env:"SETTLE_DELAY_MS"`
	LoadTimeoutMs       int `help:"Page load timeout" default:"30000" toml:"timing.load_timeout_ms" env:"LOAD_TIMEOUT_MS"`
	FirstFrameTimeoutMs int `help:"Time allowed for the first captured frame" default:"10000" toml:"timing.first_frame_timeout_ms" env:"FIRST_FRAME_TIMEOUT_MS"`
	StepTimeoutMs       int `help:"Bound for each teardown step" default:"5000" toml:"timing.step_timeout_ms" env:"STEP_TIMEOUT_MS"`

	// Server settings
	Host        string `help:"Interface the page server binds to (empty = all)" toml:"server.host" env:"HOST"`
	Port        int    `help:"Port the page server listens on" short:"p" default:"3000" toml:"server.port" env:"PORT,bare"`
	FrontendDir string `help:"Directory with the page to render" default:"public" toml:"server.frontend_dir" env:"FRONTEND_DIR"`
	WatchAssets bool   `help:"Reload the page when files in the frontend directory change" default:"false" toml:"server.watch_assets" env:"WATCH_ASSETS"`

	// Auth settings
	AuthUsername string `help:"Basic auth username for the API" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password for the API" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Browser settings
	ChromePath        string `help:"Chromium executable (default: search PATH)" toml:"browser.path" env:"CHROME_PATH"`
	Headful           bool   `help:"Show the browser window" default:"false" toml:"browser.headful" env:"HEADFUL"`
	NoSandbox         bool   `help:"Disable the Chromium sandbox, needed when running as root in a container" default:"true" toml:"browser.no_sandbox" env:"NO_SANDBOX"`
	ScreencastQuality int    `help:"JPEG quality of captured frames" default:"90" toml:"browser.screencast_quality" env:"SCREENCAST_QUALITY"`

	// Transcoder settings
	FFmpegBinary      string   `help:"ffmpeg executable" flag:"ffmpeg-binary" default:"ffmpeg" toml:"ffmpeg.binary" env:"FFMPEG_BINARY"`
	FFmpegOptions     []string `help:"ffmpeg behavior flags (wallclock_timestamps, low_latency, thread_queue_1024, thread_queue_4096, reconnect, no_realtime)" flag:"ffmpeg-options" default:"thread_queue_1024,reconnect" toml:"ffmpeg.options" env:"FFMPEG_OPTIONS"`
	FFmpegOutput      string   `help:"ffmpeg output handling (inherit, log)" flag:"ffmpeg-output" default:"inherit" toml:"ffmpeg.output" env:"FFMPEG_OUTPUT"`
	GracefulTimeoutMs int      `help:"Time ffmpeg gets to finish after SIGINT before it is killed" default:"4000" toml:"ffmpeg.graceful_timeout_ms" env:"GRACEFUL_TIMEOUT_MS"`

	// Observability settings
	MetricsEnabled bool   `help:"Collect ffmpeg progress metrics and serve /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`
	ProgressDir    string `help:"Directory for the ffmpeg progress socket" toml:"metrics.progress_dir" env:"PROGRESS_DIR"`
	LockDir        string `help:"Directory for the endpoint lock file (default: temp dir)" toml:"lock.dir" env:"LOCK_DIR"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json, auto)" default:"auto" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPipeline  string `help:"Pipeline logging level" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingRender    string `help:"Browser and capture logging level" toml:"logging.render" env:"LOGGING_RENDER"`
	LoggingTranscode string `help:"Transcoder logging level" toml:"logging.transcode" env:"LOGGING_TRANSCODE"`
	LoggingFFmpeg    string `help:"ffmpeg output logging level" flag:"logging-ffmpeg" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingAPI       string `help:"API logging level" toml:"logging.api" env:"LOGGING_API"`
}

// Addr is the listen address of the page server.
func (o *Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// PipelineConfig converts the options into the read-only run configuration.
func (o *Options) PipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Endpoint = strings.TrimSpace(o.Endpoint)
	cfg.Width = o.Width
	cfg.Height = o.Height
	cfg.FPS = o.FPS
	cfg.AudioAssetID = strings.TrimSpace(o.AudioAsset)
	cfg.BackgroundAssetID = strings.TrimSpace(o.BackgroundAsset)

	setIfNotEmpty(&cfg.VideoCodec, o.VideoCodec)
	setIfNotEmpty(&cfg.PixelFormat, o.PixelFormat)
	setIfNotEmpty(&cfg.Preset, o.Preset)
	setIfNotEmpty(&cfg.VideoBitrate, o.VideoBitrate)
	cfg.GOP = o.GOP

	setIfNotEmpty(&cfg.AudioCodec, o.AudioCodec)
	setIfNotEmpty(&cfg.AudioBitrate, o.AudioBitrate)
	setIfPositive(&cfg.AudioSampleRate, o.AudioSampleRate)
	setIfPositive(&cfg.AudioChannels, o.AudioChannels)

	if o.SettleDelayMs >= 0 {
		cfg.SettleDelay = millis(o.SettleDelayMs)
	}
	setDurationIfPositive(&cfg.LoadTimeout, o.LoadTimeoutMs)
	setDurationIfPositive(&cfg.FirstFrameTimeout, o.FirstFrameTimeoutMs)
	setDurationIfPositive(&cfg.StepTimeout, o.StepTimeoutMs)
	return cfg
}

// GracefulTimeout is how long ffmpeg may run after the stop signal.
func (o *Options) GracefulTimeout() time.Duration {
	return millis(o.GracefulTimeoutMs)
}

// LoggingConfig merges the [logging] table of the config file with the
// logging options. Options win when set.
func (o *Options) LoggingConfig() logging.Config {
	cfg := LoadLoggingConfig(o.Config)
	setIfNotEmpty(&cfg.Level, o.LoggingLevel)
	setIfNotEmpty(&cfg.Format, o.LoggingFormat)

	v := reflect.ValueOf(o).Elem()
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		module, ok := strings.CutPrefix(t.Field(i).Tag.Get("toml"), "logging.")
		if !ok || module == "level" || module == "format" {
			continue
		}
		if level := v.Field(i).String(); level != "" {
			cfg.Modules[module] = level
		}
	}
	return cfg
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func setIfNotEmpty(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setIfPositive(dst *int, value int) {
	if value > 0 {
		*dst = value
	}
}

func setDurationIfPositive(dst *time.Duration, ms int) {
	if ms > 0 {
		*dst = millis(ms)
	}
}
