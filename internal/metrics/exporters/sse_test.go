package exporters

import (
	"sync"
	"testing"
	"time"

	"github.com/smazurov/pagecast/internal/events"
	"github.com/smazurov/pagecast/internal/metrics"
)

type mockPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *mockPublisher) Publish(ev events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockPublisher) find(runID string) (events.TranscoderMetricsEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if e, ok := ev.(events.TranscoderMetricsEvent); ok && e.RunID == runID {
			return e, true
		}
	}
	return events.TranscoderMetricsEvent{}, false
}

func TestSSEExporterPublishesMetrics(t *testing.T) {
	runID := "sse-test-run"
	metrics.SetFFmpegFPS(runID, 29.97)
	metrics.SetFFmpegDroppedFrames(runID, 4)
	defer metrics.DeleteFFmpegMetrics(runID)

	pub := &mockPublisher{}
	exporter := NewSSEExporter(pub, 10*time.Millisecond)
	exporter.Start(t.Context())
	defer exporter.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ev, ok := pub.find(runID); ok {
			if ev.FPS != "29.97" {
				t.Errorf("FPS = %q, want 29.97", ev.FPS)
			}
			if ev.DroppedFrames != "4" {
				t.Errorf("DroppedFrames = %q, want 4", ev.DroppedFrames)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no metrics event published")
}

func TestSSEExporterStopWithoutStart(_ *testing.T) {
	NewSSEExporter(&mockPublisher{}, 0).Stop()
}
