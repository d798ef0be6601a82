package process

import (
	"bytes"
	"io"
	"sync"
)

// maxPendingLine bounds how much of an unterminated line is held back.
const maxPendingLine = 64 << 10

// lineFilterWriter rewrites complete lines with filter before passing them on.
// ffmpeg ends its status line with \r, so \r terminates a line as well as \n.
type lineFilterWriter struct {
	mu      sync.Mutex
	dst     io.Writer
	filter  func(string) string
	pending []byte
}

func newLineFilterWriter(dst io.Writer, filter func(string) string) *lineFilterWriter {
	return &lineFilterWriter{dst: dst, filter: filter}
}

func (w *lineFilterWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, p...)
	end := bytes.LastIndexAny(w.pending, "\r\n")
	if end < 0 {
		if len(w.pending) < maxPendingLine {
			return len(p), nil
		}
		end = len(w.pending) - 1
	}

	out := w.filter(string(w.pending[:end+1]))
	w.pending = append(w.pending[:0], w.pending[end+1:]...)
	if _, err := io.WriteString(w.dst, out); err != nil {
		return len(p), err
	}
	return len(p), nil
}

// Flush writes a trailing unterminated line.
func (w *lineFilterWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	out := w.filter(string(w.pending))
	w.pending = w.pending[:0]
	_, err := io.WriteString(w.dst, out)
	return err
}
