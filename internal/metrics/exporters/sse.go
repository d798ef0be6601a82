package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/pagecast/internal/events"
	"github.com/smazurov/pagecast/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes transcoder metrics on the event bus.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher, interval time.Duration) *SSEExporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &SSEExporter{
		eventBus: eventBus,
		interval: interval,
	}
}

// Start begins the export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the exporter and waits for the loop to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	forwarded := strconv.FormatInt(metrics.ForwardedBytes(), 10)
	for runID, m := range metrics.GetAllFFmpegMetrics() {
		s.eventBus.Publish(events.TranscoderMetricsEvent{
			RunID:           runID,
			FPS:             strconv.FormatFloat(m.FPS, 'f', 2, 64),
			Speed:           strconv.FormatFloat(m.Speed, 'f', 2, 64),
			Bitrate:         strconv.FormatFloat(m.BitrateKbps, 'f', 1, 64),
			DroppedFrames:   strconv.FormatFloat(m.DroppedFrames, 'f', 0, 64),
			DuplicateFrames: strconv.FormatFloat(m.DuplicateFrames, 'f', 0, 64),
			BytesForwarded:  forwarded,
		})
	}
}
