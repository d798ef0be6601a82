package ffmpeg

import (
	"slices"
	"strings"
	"testing"
)

func baseParams() *Params {
	return &Params{
		InputFormat:     "mjpeg",
		FPS:             30,
		Encoder:         "libx264",
		PixelFormat:     "yuv420p",
		Preset:          "veryfast",
		Bitrate:         "4500k",
		AudioEncoder:    "aac",
		AudioBitrate:    "160k",
		AudioSampleRate: 44100,
		AudioChannels:   2,
		OutputURL:       "rtmp://host/app/key",
	}
}

func countFlag(args []string, flag string) int {
	n := 0
	for _, a := range args {
		if a == flag {
			n++
		}
	}
	return n
}

func flagValue(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func TestBuildArgsWithoutAudio(t *testing.T) {
	args := BuildArgs(baseParams())

	if countFlag(args, "-i") != 1 {
		t.Errorf("expected exactly one input, got %v", args)
	}
	if flagValue(args, "-i") != PipeInput {
		t.Errorf("input = %q, want %q", flagValue(args, "-i"), PipeInput)
	}
	if !slices.Contains(args, "-an") {
		t.Error("missing -an")
	}
	if slices.Contains(args, "1:a:0") {
		t.Error("audio mapping present without audio input")
	}
	if flagValue(args, "-r") != "30" {
		t.Errorf("-r = %q, want 30", flagValue(args, "-r"))
	}
	if flagValue(args, "-map") != "0:v:0" {
		t.Errorf("-map = %q, want 0:v:0", flagValue(args, "-map"))
	}
}

func TestBuildArgsWithAudio(t *testing.T) {
	p := baseParams()
	p.AudioURL = "https://drive.google.com/uc?export=download&id=asset123"
	args := BuildArgs(p)

	if countFlag(args, "-i") != 2 {
		t.Fatalf("expected two inputs, got %v", args)
	}
	var inputs []string
	for i, a := range args {
		if a == "-i" {
			inputs = append(inputs, args[i+1])
		}
	}
	if inputs[0] != PipeInput {
		t.Errorf("first input = %q", inputs[0])
	}
	if !strings.Contains(inputs[1], "asset123") {
		t.Errorf("second input = %q, want asset id", inputs[1])
	}
	if slices.Contains(args, "-an") {
		t.Error("-an present with audio input")
	}
	if !slices.Contains(args, "1:a:0") {
		t.Error("missing audio mapping")
	}
	for flag, want := range map[string]string{"-c:a": "aac", "-b:a": "160k", "-ar": "44100", "-ac": "2"} {
		if got := flagValue(args, flag); got != want {
			t.Errorf("%s = %q, want %q", flag, got, want)
		}
	}
}

func TestBuildArgsMatchesBroadcastLayout(t *testing.T) {
	want := "-hide_banner -re -f mjpeg -framerate 30 -i pipe:0 " +
		"-map 0:v:0 -c:v libx264 -pix_fmt yuv420p -preset veryfast -r 30 -g 60 -b:v 4500k " +
		"-an -f flv rtmp://host/app/key"
	if got := strings.Join(BuildArgs(baseParams()), " "); got != want {
		t.Errorf("BuildArgs() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildArgsOptions(t *testing.T) {
	p := baseParams()
	p.AudioURL = "https://example.com/a.mp3"
	p.Options = []OptionType{OptionThreadQueue1024, OptionReconnect, OptionLowLatency, OptionWallclockTimestamp}
	args := BuildArgs(p)

	if countFlag(args, "-thread_queue_size") != 2 {
		t.Errorf("thread queue should be set on both inputs: %v", args)
	}
	if flagValue(args, "-reconnect") != "1" {
		t.Error("missing -reconnect for http audio")
	}
	if flagValue(args, "-tune") != "zerolatency" {
		t.Error("missing -tune zerolatency")
	}
	if flagValue(args, "-use_wallclock_as_timestamps") != "1" {
		t.Error("missing wallclock timestamps")
	}

	p.Options = []OptionType{OptionNoRealtime}
	if slices.Contains(BuildArgs(p), "-re") {
		t.Error("-re present with no_realtime")
	}
}

func TestBuildArgsProgressAndLogLevel(t *testing.T) {
	p := baseParams()
	p.ProgressSocket = "/tmp/progress.sock"
	p.LogLevel = true
	args := BuildArgs(p)

	if flagValue(args, "-progress") != "unix:///tmp/progress.sock" {
		t.Errorf("-progress = %q", flagValue(args, "-progress"))
	}
	if flagValue(args, "-loglevel") != "level+info" {
		t.Errorf("-loglevel = %q", flagValue(args, "-loglevel"))
	}
}

func TestOutputArgs(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"rtmp://a.rtmp.youtube.com/live2/key", "-f flv rtmp://a.rtmp.youtube.com/live2/key"},
		{"rtmps://live-api-s.facebook.com:443/rtmp/key", "-f flv rtmps://live-api-s.facebook.com:443/rtmp/key"},
		{"srt://ingest:9000?streamid=x", "-f mpegts srt://ingest:9000?streamid=x"},
		{"udp://239.0.0.1:1234", "-f mpegts udp://239.0.0.1:1234"},
		{"rtsp://localhost:8554/live", "-rtsp_transport tcp -f rtsp rtsp://localhost:8554/live"},
	}
	for _, tt := range tests {
		if got := strings.Join(OutputArgs(tt.endpoint), " "); got != tt.want {
			t.Errorf("OutputArgs(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestCommandStringQuotes(t *testing.T) {
	got := CommandString([]string{"-i", "https://x/uc?export=download&id=1", "-an"})
	want := "ffmpeg -i 'https://x/uc?export=download&id=1' -an"
	if got != want {
		t.Errorf("CommandString() = %q, want %q", got, want)
	}
}
