// Package metrics provides Prometheus metrics for the broadcast pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pagecast"

var (
	ffmpegFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "fps",
		Help:      "Current FFmpeg encoding FPS",
	}, []string{"run_id"})

	ffmpegDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "dropped_frames_total",
		Help:      "Total frames dropped by FFmpeg",
	}, []string{"run_id"})

	ffmpegDuplicateFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "duplicate_frames_total",
		Help:      "Total frames duplicated by FFmpeg",
	}, []string{"run_id"})

	ffmpegSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "processing_speed",
		Help:      "FFmpeg processing speed multiplier",
	}, []string{"run_id"})

	ffmpegBitrate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "bitrate_kbps",
		Help:      "Current FFmpeg output bitrate in kbit/s",
	}, []string{"run_id"})

	// Local cache for SSE exporter access.
	ffmpegCache   = make(map[string]*FFmpegMetrics)
	ffmpegCacheMu sync.RWMutex
)

// FFmpegMetrics holds current progress values for a run.
type FFmpegMetrics struct {
	FPS             float64
	DroppedFrames   float64
	DuplicateFrames float64
	Speed           float64
	BitrateKbps     float64
}

// SetFFmpegFPS sets the current encoding FPS.
func SetFFmpegFPS(runID string, fps float64) {
	ffmpegFPS.WithLabelValues(runID).Set(fps)
	updateCache(runID, func(m *FFmpegMetrics) { m.FPS = fps })
}

// SetFFmpegDroppedFrames sets the dropped frame count.
func SetFFmpegDroppedFrames(runID string, count float64) {
	ffmpegDroppedFrames.WithLabelValues(runID).Set(count)
	updateCache(runID, func(m *FFmpegMetrics) { m.DroppedFrames = count })
}

// SetFFmpegDuplicateFrames sets the duplicate frame count.
func SetFFmpegDuplicateFrames(runID string, count float64) {
	ffmpegDuplicateFrames.WithLabelValues(runID).Set(count)
	updateCache(runID, func(m *FFmpegMetrics) { m.DuplicateFrames = count })
}

// SetFFmpegSpeed sets the processing speed.
func SetFFmpegSpeed(runID string, speed float64) {
	ffmpegSpeed.WithLabelValues(runID).Set(speed)
	updateCache(runID, func(m *FFmpegMetrics) { m.Speed = speed })
}

// SetFFmpegBitrate sets the output bitrate.
func SetFFmpegBitrate(runID string, kbps float64) {
	ffmpegBitrate.WithLabelValues(runID).Set(kbps)
	updateCache(runID, func(m *FFmpegMetrics) { m.BitrateKbps = kbps })
}

// DeleteFFmpegMetrics removes all progress metrics for a run.
func DeleteFFmpegMetrics(runID string) {
	ffmpegFPS.DeleteLabelValues(runID)
	ffmpegDroppedFrames.DeleteLabelValues(runID)
	ffmpegDuplicateFrames.DeleteLabelValues(runID)
	ffmpegSpeed.DeleteLabelValues(runID)
	ffmpegBitrate.DeleteLabelValues(runID)

	ffmpegCacheMu.Lock()
	delete(ffmpegCache, runID)
	ffmpegCacheMu.Unlock()
}

// GetFFmpegMetrics returns a copy of the current values for a run, or nil.
func GetFFmpegMetrics(runID string) *FFmpegMetrics {
	ffmpegCacheMu.RLock()
	defer ffmpegCacheMu.RUnlock()
	if m, ok := ffmpegCache[runID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllFFmpegMetrics returns copies of the values for every run.
func GetAllFFmpegMetrics() map[string]*FFmpegMetrics {
	ffmpegCacheMu.RLock()
	defer ffmpegCacheMu.RUnlock()
	result := make(map[string]*FFmpegMetrics, len(ffmpegCache))
	for id, m := range ffmpegCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

func updateCache(runID string, update func(*FFmpegMetrics)) {
	ffmpegCacheMu.Lock()
	defer ffmpegCacheMu.Unlock()
	m, ok := ffmpegCache[runID]
	if !ok {
		m = &FFmpegMetrics{}
		ffmpegCache[runID] = m
	}
	update(m)
}
