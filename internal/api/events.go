package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/pagecast/internal/api/models"
	"github.com/smazurov/pagecast/internal/events"
)

// registerSSERoutes registers the pipeline event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Pipeline state changes, capture and transcoder lifecycle, page reloads and transcoder metrics. The current status is sent first.",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"status":             models.StatusData{},
		"pipeline-state":     events.PipelineStateChangedEvent{},
		"capture-started":    events.CaptureStartedEvent{},
		"transcoder-started": events.TranscoderStartedEvent{},
		"transcoder-exited":  events.TranscoderExitedEvent{},
		"page-reloaded":      events.PageReloadedEvent{},
		"transcoder-metrics": events.TranscoderMetricsEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.PipelineStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CaptureStartedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.TranscoderStartedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.TranscoderExitedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PageReloadedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.TranscoderMetricsEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if ctl := s.getController(); ctl != nil {
			if err := send.Data(models.StatusData{Status: ctl.Status()}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
