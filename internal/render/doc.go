// Package render drives a headless Chromium that renders the broadcast page and
// turns its screencast into a continuous MJPEG stream.
//
// Browser opens one Chromium instance per Session. Screencast acquires a Capture
// from a stable Session: JPEG frames pushed by the DevTools screencast are paced
// at the configured frame rate and written to a pipe, so a slow reader causes
// ticks to be skipped rather than an unbounded queue.
package render
