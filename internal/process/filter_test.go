package process

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func upper(s string) string { return strings.ToUpper(s) }

func TestLineFilterWriter(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		before string // output before Flush
		after  string // output after Flush
	}{
		{
			name:   "whole lines",
			writes: []string{"one\ntwo\n"},
			before: "ONE\nTWO\n",
			after:  "ONE\nTWO\n",
		},
		{
			name:   "line split across writes",
			writes: []string{"sec", "ret\n"},
			before: "SECRET\n",
			after:  "SECRET\n",
		},
		{
			name:   "carriage return ends a line",
			writes: []string{"frame=1\rframe=2\r"},
			before: "FRAME=1\rFRAME=2\r",
			after:  "FRAME=1\rFRAME=2\r",
		},
		{
			name:   "trailing partial line waits for flush",
			writes: []string{"done\npart"},
			before: "DONE\n",
			after:  "DONE\nPART",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			w := newLineFilterWriter(&out, upper)
			for _, s := range tt.writes {
				n, err := w.Write([]byte(s))
				if err != nil || n != len(s) {
					t.Fatalf("Write(%q) = %d, %v", s, n, err)
				}
			}
			if out.String() != tt.before {
				t.Errorf("before flush = %q, want %q", out.String(), tt.before)
			}
			if err := w.Flush(); err != nil {
				t.Fatalf("Flush: %v", err)
			}
			if out.String() != tt.after {
				t.Errorf("after flush = %q, want %q", out.String(), tt.after)
			}
		})
	}
}

func TestLineFilterWriterBoundsPendingLine(t *testing.T) {
	var out bytes.Buffer
	w := newLineFilterWriter(&out, upper)
	long := strings.Repeat("a", maxPendingLine)
	if _, err := w.Write([]byte(long)); err != nil {
		t.Fatal(err)
	}
	if out.Len() != maxPendingLine {
		t.Errorf("wrote %d bytes, want the whole oversized line", out.Len())
	}
}

func TestInheritedOutputIsFiltered(t *testing.T) {
	var stderr bytes.Buffer
	p := startShell(t, "echo key=abc >&2; printf tail >&2", func(o *Options) {
		o.Stderr = &stderr
		o.OutputFilter = func(s string) string { return strings.ReplaceAll(s, "abc", "***") }
	})
	if code := waitDone(t, p, 5*time.Second); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got := stderr.String(); got != "key=***\ntail" {
		t.Errorf("stderr = %q", got)
	}
}
