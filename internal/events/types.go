package events

// Event type constants for kelindar/event.
const (
	TypePipelineStateChanged uint32 = iota + 1
	TypeCaptureStarted
	TypeTranscoderStarted
	TypeTranscoderExited
	TypePageReloaded
	TypeLogEntry
	TypeTranscoderMetrics
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// PipelineStateChangedEvent is published on every controller state transition.
type PipelineStateChangedEvent struct {
	RunID     string `json:"run_id" doc:"Run identifier"`
	From      string `json:"from" example:"initializing" doc:"Previous state"`
	To        string `json:"to" example:"streaming" doc:"New state"`
	Reason    string `json:"reason,omitempty" doc:"Why the transition happened"`
	Error     string `json:"error,omitempty" doc:"Fatal error, if any"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PipelineStateChangedEvent.
func (e PipelineStateChangedEvent) Type() uint32 { return TypePipelineStateChanged }

// CaptureStartedEvent is published once the capture stream is live.
type CaptureStartedEvent struct {
	RunID     string `json:"run_id"`
	Format    string `json:"format" example:"mjpeg"`
	Width     int    `json:"width" example:"1920"`
	Height    int    `json:"height" example:"1080"`
	FPS       int    `json:"fps" example:"30"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for CaptureStartedEvent.
func (e CaptureStartedEvent) Type() uint32 { return TypeCaptureStarted }

// TranscoderStartedEvent is published after ffmpeg has been spawned.
type TranscoderStartedEvent struct {
	RunID     string `json:"run_id"`
	PID       int    `json:"pid"`
	HasAudio  bool   `json:"has_audio"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for TranscoderStartedEvent.
func (e TranscoderStartedEvent) Type() uint32 { return TypeTranscoderStarted }

// TranscoderExitedEvent is published once when the transcoder process exits.
type TranscoderExitedEvent struct {
	RunID     string `json:"run_id"`
	ExitCode  int    `json:"exit_code"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for TranscoderExitedEvent.
func (e TranscoderExitedEvent) Type() uint32 { return TypeTranscoderExited }

// PageReloadedEvent is published when the render target is reloaded in place.
type PageReloadedEvent struct {
	RunID     string `json:"run_id"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for PageReloadedEvent.
func (e PageReloadedEvent) Type() uint32 { return TypePageReloaded }

// LogEntryEvent carries a log line to SSE clients.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"pipeline" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// TranscoderMetricsEvent carries the latest ffmpeg progress values.
type TranscoderMetricsEvent struct {
	RunID           string `json:"run_id"`
	FPS             string `json:"fps" example:"29.97" doc:"Current encoding FPS"`
	Speed           string `json:"speed" example:"1.00" doc:"Encoding speed relative to realtime"`
	Bitrate         string `json:"bitrate" example:"4512.3" doc:"Output bitrate in kbit/s"`
	DroppedFrames   string `json:"dropped_frames" example:"0" doc:"Frames dropped by ffmpeg"`
	DuplicateFrames string `json:"duplicate_frames" example:"3" doc:"Frames duplicated by ffmpeg"`
	BytesForwarded  string `json:"bytes_forwarded" doc:"Capture bytes piped into ffmpeg"`
}

// Type returns the event type identifier for TranscoderMetricsEvent.
func (e TranscoderMetricsEvent) Type() uint32 { return TypeTranscoderMetrics }
