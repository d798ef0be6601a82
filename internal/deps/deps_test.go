package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t, t.TempDir(), "present", "#!/bin/sh\nexit 0\n")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Errorf("present: %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Errorf("missing: %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Errorf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Errorf("blank: %#v", results[2])
	}

	if Ready(results) {
		t.Error("Ready should be false with a missing required binary")
	}
	if !Ready([]Status{results[0], results[2]}) {
		t.Error("Ready should ignore optional failures")
	}
}

func TestCheckChromiumConfigured(t *testing.T) {
	browser := writeStub(t, t.TempDir(), "my-chrome", "#!/bin/sh\nexit 0\n")

	if status := CheckChromium(browser); !status.Available || status.Command != browser {
		t.Errorf("configured path: %#v", status)
	}
	if status := CheckChromium("/nonexistent/chrome"); status.Available {
		t.Errorf("missing configured path reported available: %#v", status)
	}
}

func TestCheckChromiumSearchesPath(t *testing.T) {
	dir := t.TempDir()
	want := writeStub(t, dir, "chromium-browser", "#!/bin/sh\nexit 0\n")
	t.Setenv("PATH", dir)

	status := CheckChromium("")
	if !status.Available || status.Command != want {
		t.Errorf("status = %#v, want %s", status, want)
	}

	t.Setenv("PATH", t.TempDir())
	if status := CheckChromium(""); status.Available || status.Detail == "" {
		t.Errorf("empty PATH: %#v", status)
	}
}

const encodersOutput = `Encoders:
 V..... = Video
 A..... = Audio
 S..... = Subtitle
 .F.... = Frame-level multithreading
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10 (codec h264)
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder (codec h264)
 V..... h264_v4l2m2m         V4L2 mem2mem H.264 encoder wrapper (codec h264)
 A....D aac                  AAC (Advanced Audio Coding)
 S..... srt                  SubRip subtitle
`

func TestParseEncoderOutput(t *testing.T) {
	encoders, err := parseEncoderOutput(encodersOutput)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(encoders) != 5 {
		t.Fatalf("got %d encoders: %+v", len(encoders), encoders)
	}

	byName := map[string]Encoder{}
	for _, e := range encoders {
		byName[e.Name] = e
	}
	if e := byName["libx264"]; e.Type != VideoEncoder || e.HWAccel {
		t.Errorf("libx264 = %+v", e)
	}
	if !byName["h264_nvenc"].HWAccel || !byName["h264_v4l2m2m"].HWAccel {
		t.Error("hardware encoders not flagged")
	}
	if byName["aac"].Type != AudioEncoder || byName["srt"].Type != SubtitleEncoder {
		t.Errorf("types: aac=%s srt=%s", byName["aac"].Type, byName["srt"].Type)
	}
}

func TestListEncodersRunsBinary(t *testing.T) {
	dir := t.TempDir()
	listing := filepath.Join(dir, "encoders.txt")
	if err := os.WriteFile(listing, []byte(encodersOutput), 0o644); err != nil {
		t.Fatal(err)
	}
	ffmpeg := writeStub(t, dir, "ffmpeg", "#!/bin/sh\ncat "+listing+"\n")

	encoders, err := ListEncoders(context.Background(), ffmpeg)
	if err != nil {
		t.Fatalf("ListEncoders: %v", err)
	}

	statuses := CheckEncoders(encoders,
		Requirement{Name: "Video encoder", Command: "libx264"},
		Requirement{Name: "Audio encoder", Command: "libopus"},
	)
	if !statuses[0].Available {
		t.Errorf("libx264: %#v", statuses[0])
	}
	if statuses[1].Available || statuses[1].Detail == "" {
		t.Errorf("libopus: %#v", statuses[1])
	}
}

func TestListEncodersFailure(t *testing.T) {
	ffmpeg := writeStub(t, t.TempDir(), "ffmpeg", "#!/bin/sh\nexit 1\n")
	if _, err := ListEncoders(context.Background(), ffmpeg); err == nil {
		t.Error("expected error from failing binary")
	}
}

func TestParseEncoderOutputCapabilityFlags(t *testing.T) {
	tests := []struct {
		line string
		name string
		typ  EncoderType
	}{
		{" V....D libx264              libx264 H.264", "libx264", VideoEncoder},
		{" A....D aac                  AAC (Advanced Audio Coding)", "aac", AudioEncoder},
		{" VF...D mpeg4                MPEG-4 part 2", "mpeg4", VideoEncoder},
		{" V..X.D libsvtav1            SVT-AV1", "libsvtav1", VideoEncoder},
		{" V...BD h264_vaapi           H.264/AVC (VAAPI) (codec h264)", "h264_vaapi", VideoEncoder},
		{" AX...D libopus              libopus Opus", "libopus", AudioEncoder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoders, err := parseEncoderOutput("Encoders:\n ------\n" + tt.line + "\n")
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(encoders) != 1 {
				t.Fatalf("got %d encoders from %q", len(encoders), tt.line)
			}
			if encoders[0].Name != tt.name || encoders[0].Type != tt.typ {
				t.Errorf("got %+v, want %s (%s)", encoders[0], tt.name, tt.typ)
			}
		})
	}
}
