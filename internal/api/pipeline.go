package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/pagecast/internal/api/models"
	"github.com/smazurov/pagecast/internal/pipeline"
)

func (s *Server) registerPipelineRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Pipeline Status",
		Description: "Current pipeline state, run id, transcoder pid and exit code",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(_ context.Context, _ *struct{}) (*models.StatusResponse, error) {
		ctl := s.getController()
		if ctl == nil {
			return nil, huma.Error503ServiceUnavailable("pipeline not attached")
		}
		return &models.StatusResponse{Body: models.StatusData{Status: ctl.Status()}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "reload-page",
		Method:      http.MethodPost,
		Path:        "/api/reload",
		Summary:     "Reload Page",
		Description: "Reload the rendered page in place without interrupting the broadcast",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.ReloadResponse, error) {
		ctl := s.getController()
		if ctl == nil {
			return nil, huma.Error503ServiceUnavailable("pipeline not attached")
		}
		if err := ctl.ReloadPage(ctx); err != nil {
			if errors.Is(err, pipeline.ErrNotStreaming) {
				return nil, huma.Error409Conflict("pipeline is not streaming")
			}
			return nil, huma.Error500InternalServerError("reload failed", err)
		}
		return &models.ReloadResponse{Body: models.ReloadData{Status: "reloaded"}}, nil
	})
}
