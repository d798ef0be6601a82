package pipeline

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrSurfaceUnavailable = errors.New("http surface unavailable")
	ErrCaptureUnavailable = errors.New("capture unavailable")
	ErrTranscodeSpawn     = errors.New("transcoder spawn failure")
	ErrTeardownStep       = errors.New("teardown step failure")
)

// Phase names the step of a run an error belongs to.
type Phase string

// Run phases.
const (
	PhaseConfig    Phase = "config"
	PhaseSurface   Phase = "surface"
	PhaseRender    Phase = "render"
	PhaseStabilize Phase = "stabilize"
	PhaseCapture   Phase = "capture"
	PhaseTranscode Phase = "transcode"
	PhaseTeardown  Phase = "teardown"
)

// PhaseError carries the failing phase, the error kind and the cause.
type PhaseError struct {
	Phase Phase
	Kind  error
	Err   error
}

func (e *PhaseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Phase, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Phase, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *PhaseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PhaseOf returns the phase recorded in err, or "" if there is none.
func PhaseOf(err error) Phase {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return ""
}

func configError(err error) error {
	return &PhaseError{Phase: PhaseConfig, Kind: ErrConfiguration, Err: err}
}
