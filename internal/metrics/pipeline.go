package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/pagecast/internal/events"
)

var (
	pipelineState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "state",
		Help:      "1 for the current lifecycle state, 0 otherwise",
	}, []string{"state"})

	transcoderExitCode = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transcoder",
		Name:      "exit_code",
		Help:      "Exit code of the last transcoder process, -1 while running",
	})

	captureFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Frames written into the capture stream",
	})

	captureDroppedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "dropped_ticks_total",
		Help:      "Frame ticks skipped because the transcoder was not reading",
	})

	forwardedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "forwarded_bytes_total",
		Help:      "Capture bytes piped into the transcoder",
	})

	stateMu      sync.Mutex
	currentState string
	bytesTotal   atomic.Int64
)

// SetPipelineState marks state as current.
func SetPipelineState(state string) {
	stateMu.Lock()
	defer stateMu.Unlock()
	if currentState != "" {
		pipelineState.WithLabelValues(currentState).Set(0)
	}
	pipelineState.WithLabelValues(state).Set(1)
	currentState = state
}

// SetTranscoderExitCode records the exit code of the transcoder.
func SetTranscoderExitCode(code int) {
	transcoderExitCode.Set(float64(code))
}

// IncCaptureFrames counts one frame written to the capture stream.
func IncCaptureFrames() {
	captureFrames.Inc()
}

// IncCaptureDroppedTicks counts one skipped frame tick.
func IncCaptureDroppedTicks() {
	captureDroppedTicks.Inc()
}

// AddForwardedBytes counts bytes piped into the transcoder.
func AddForwardedBytes(n int) {
	if n <= 0 {
		return
	}
	forwardedBytes.Add(float64(n))
	bytesTotal.Add(int64(n))
}

// ForwardedBytes returns the process-wide forwarded byte count.
func ForwardedBytes() int64 {
	return bytesTotal.Load()
}

// Observe updates pipeline gauges from bus events until the returned function
// is called.
func Observe(bus *events.Bus) func() {
	unsubState := bus.Subscribe(func(e events.PipelineStateChangedEvent) {
		SetPipelineState(e.To)
	})
	unsubStart := bus.Subscribe(func(events.TranscoderStartedEvent) {
		SetTranscoderExitCode(-1)
	})
	unsubExit := bus.Subscribe(func(e events.TranscoderExitedEvent) {
		SetTranscoderExitCode(e.ExitCode)
	})
	return func() {
		unsubState()
		unsubStart()
		unsubExit()
	}
}
