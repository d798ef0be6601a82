package ffmpeg

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Binary is the ffmpeg executable looked up on PATH.
const Binary = "ffmpeg"

// PipeInput binds an input to the process's stdin.
const PipeInput = "pipe:0"

// Base returns the standard leading flags.
func Base() []string {
	return []string{"-hide_banner"}
}

// BuildArgs builds the ffmpeg argument list for a pipeline run. Input 0 is the
// capture stream on stdin, input 1 the optional audio URL. Without audio the
// output carries no audio track at all.
func BuildArgs(p *Params) []string {
	args := Base()

	if p.LogLevel {
		args = append(args, "-loglevel", "level+info")
	}
	if p.ProgressSocket != "" {
		args = append(args, "-progress", "unix://"+p.ProgressSocket, "-nostats")
	}

	realtime := !slices.Contains(p.Options, OptionNoRealtime)
	queue := threadQueueSize(p.Options)

	// Input 0: capture stream
	if realtime {
		args = append(args, "-re")
	}
	if slices.Contains(p.Options, OptionWallclockTimestamp) {
		args = append(args, "-use_wallclock_as_timestamps", "1")
	}
	if queue > 0 {
		args = append(args, "-thread_queue_size", strconv.Itoa(queue))
	}
	args = append(args, "-f", p.InputFormat)
	if p.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(p.FPS))
	}
	args = append(args, "-i", PipeInput)

	// Input 1: audio, fetched by ffmpeg directly
	if p.HasAudio() {
		if realtime {
			args = append(args, "-re")
		}
		if queue > 0 {
			args = append(args, "-thread_queue_size", strconv.Itoa(queue))
		}
		if slices.Contains(p.Options, OptionReconnect) && isHTTP(p.AudioURL) {
			args = append(args, "-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5")
		}
		args = append(args, "-i", p.AudioURL)
	}

	// Video mapping
	args = append(args, "-map", "0:v:0", "-c:v", p.Encoder)
	if p.PixelFormat != "" {
		args = append(args, "-pix_fmt", p.PixelFormat)
	}
	if p.Preset != "" {
		args = append(args, "-preset", p.Preset)
	}
	if slices.Contains(p.Options, OptionLowLatency) && !isHardwareEncoder(p.Encoder) {
		args = append(args, "-tune", "zerolatency")
	}
	if p.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(p.FPS))
	}
	if gop := p.gop(); gop > 0 {
		args = append(args, "-g", strconv.Itoa(gop))
	}
	if p.Bitrate != "" {
		args = append(args, "-b:v", p.Bitrate)
	}

	// Audio mapping
	if p.HasAudio() {
		args = append(args, "-map", "1:a:0", "-c:a", p.AudioEncoder)
		if p.AudioBitrate != "" {
			args = append(args, "-b:a", p.AudioBitrate)
		}
		if p.AudioSampleRate > 0 {
			args = append(args, "-ar", strconv.Itoa(p.AudioSampleRate))
		}
		if p.AudioChannels > 0 {
			args = append(args, "-ac", strconv.Itoa(p.AudioChannels))
		}
	} else {
		args = append(args, "-an")
	}

	if slices.Contains(p.Options, OptionLowLatency) {
		args = append(args, "-flush_packets", "1")
	}

	// Output, container picked from the endpoint scheme
	return append(args, OutputArgs(p.OutputURL)...)
}

// OutputArgs returns the muxer flags and the destination for an endpoint.
func OutputArgs(endpoint string) []string {
	switch scheme(endpoint) {
	case "rtsp":
		return []string{"-rtsp_transport", "tcp", "-f", "rtsp", endpoint}
	case "srt", "udp":
		return []string{"-f", "mpegts", endpoint}
	default:
		return []string{"-f", "flv", endpoint}
	}
}

// CommandString renders a command line for logs and dry runs. Arguments with
// shell-significant characters are single-quoted.
func CommandString(args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, Binary)
	for _, a := range args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"&;|<>()$`\\*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (p *Params) gop() int {
	if p.GOP > 0 {
		return p.GOP
	}
	return p.FPS * 2
}

func scheme(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

func isHTTP(rawURL string) bool {
	s := scheme(rawURL)
	return s == "http" || s == "https"
}

func isHardwareEncoder(encoder string) bool {
	return strings.Contains(encoder, "vaapi") ||
		strings.Contains(encoder, "nvenc") ||
		strings.Contains(encoder, "qsv") ||
		strings.Contains(encoder, "v4l2m2m") ||
		strings.Contains(encoder, "rkmpp")
}
