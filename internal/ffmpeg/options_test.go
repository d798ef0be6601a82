package ffmpeg

import (
	"slices"
	"testing"
)

func TestParseOptions(t *testing.T) {
	got, err := ParseOptions([]string{"low_latency", " reconnect ", "", "low_latency"})
	if err != nil {
		t.Fatalf("ParseOptions() error: %v", err)
	}
	want := []OptionType{OptionLowLatency, OptionReconnect}
	if !slices.Equal(got, want) {
		t.Errorf("ParseOptions() = %v, want %v", got, want)
	}
}

func TestParseOptionsRejectsUnknown(t *testing.T) {
	if _, err := ParseOptions([]string{"turbo"}); err == nil {
		t.Error("expected error for unknown option")
	}
}

func TestParseOptionsRejectsExclusive(t *testing.T) {
	if _, err := ParseOptions([]string{"thread_queue_1024", "thread_queue_4096"}); err == nil {
		t.Error("expected error for mutually exclusive options")
	}
}

func TestDefaultOptions(t *testing.T) {
	defaults := DefaultOptions()
	for _, opt := range defaults {
		o, ok := GetOptionByKey(opt)
		if !ok || !o.AppDefault {
			t.Errorf("%q returned as default", opt)
		}
	}
	if !slices.Contains(defaults, OptionThreadQueue1024) {
		t.Error("thread_queue_1024 should be a default")
	}
}
