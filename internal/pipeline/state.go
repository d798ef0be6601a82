package pipeline

import "time"

// State is the lifecycle state of a run.
type State string

// Run states.
const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateStreaming    State = "streaming"
	StateTerminating  State = "terminating"
	StateStopped      State = "stopped"
)

// Trigger records what ended the streaming state.
type Trigger string

// Teardown triggers.
const (
	TriggerNone           Trigger = ""
	TriggerTranscoderExit Trigger = "transcoder_exit"
	TriggerInterrupt      Trigger = "interrupt"
	TriggerStartupFailure Trigger = "startup_failure"
)

// Process exit codes used when the transcoder did not decide one.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Status is a snapshot of the controller for the HTTP surface.
type Status struct {
	RunID         string    `json:"run_id"`
	State         State     `json:"state"`
	Trigger       Trigger   `json:"trigger,omitempty"`
	Endpoint      string    `json:"endpoint"`
	TranscoderPID int       `json:"transcoder_pid,omitempty"`
	ExitCode      *int      `json:"exit_code,omitempty"`
	Error         string    `json:"error,omitempty"`
	StreamingAt   time.Time `json:"streaming_at,omitzero"`
}
