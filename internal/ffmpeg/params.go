package ffmpeg

// Params represents all parameters needed to generate an FFmpeg invocation.
type Params struct {
	// Input Configuration
	InputFormat string // demuxer of the piped capture stream: mjpeg, webm, ...
	FPS         int    // rate the capture stream is produced at
	AudioURL    string // optional second input fetched by ffmpeg itself

	// Encoder Configuration
	Encoder     string // libx264, h264_vaapi, ...
	PixelFormat string // yuv420p
	Preset      string // veryfast, fast, medium
	Bitrate     string // 4500k
	GOP         int    // keyframe interval (0 = fps*2)

	// Audio Encoder
	AudioEncoder    string // aac
	AudioBitrate    string // 160k
	AudioSampleRate int    // 44100
	AudioChannels   int    // 2

	// Output
	ProgressSocket string // /tmp/pagecast-progress-xxx.sock
	OutputURL      string // rtmp://a.rtmp.youtube.com/live2/<key>

	// Logging
	LogLevel bool // prefix every ffmpeg log line with its level

	// Behavior Options
	Options []OptionType
}

// HasAudio reports whether a second audio input is declared.
func (p *Params) HasAudio() bool {
	return p.AudioURL != ""
}
