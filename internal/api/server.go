package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/pagecast/internal/api/models"
	"github.com/smazurov/pagecast/internal/events"
	"github.com/smazurov/pagecast/internal/logging"
	"github.com/smazurov/pagecast/internal/pipeline"
	"github.com/smazurov/pagecast/internal/version"
)

// Controller is the part of the pipeline controller the HTTP surface exposes.
type Controller interface {
	Status() pipeline.Status
	ReloadPage(ctx context.Context) error
}

// Options configures the HTTP surface.
type Options struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string
	// FrontendDir holds the page rendered and broadcast. Empty serves a redirect to /docs.
	FrontendDir string

	AuthUsername string
	AuthPassword string

	EventBus          *events.Bus
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
}

// Server is the HTTP surface. It serves the frontend the browser renders and a
// small huma API for status, events and logs. It implements pipeline.Surface.
type Server struct {
	api      huma.API
	mux      *http.ServeMux
	options  Options
	eventBus *events.Bus
	logger   *slog.Logger

	mu         sync.RWMutex
	controller Controller
	httpServer *http.Server
	listener   net.Listener
	cancelBase context.CancelFunc
}

var _ pipeline.Surface = (*Server)(nil)

// NewServer creates the API server with huma on the standard library mux.
func NewServer(opts Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("pagecast API", version.String())
	config.Info.Description = "Status, events and logs of the page broadcast pipeline"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware())
	}

	if opts.PrometheusHandler != nil {
		metricsHandler := opts.PrometheusHandler
		if opts.AuthUsername != "" && opts.AuthPassword != "" {
			metricsHandler = server.requireBasicAuth(metricsHandler)
		}
		mux.Handle("GET /metrics", metricsHandler)
	}

	server.registerRoutes()

	mux.Handle("/", frontendHandler(opts.FrontendDir))

	return server
}

// SetController attaches the controller once it exists. Until then status
// reports 503.
func (s *Server) SetController(c Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller = c
}

func (s *Server) getController() Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controller
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start binds the listener and serves in the background. It returns once the
// port accepts connections so the browser can navigate right after.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("api server already started")
	}

	ln, err := net.Listen("tcp", s.options.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.options.Addr, err)
	}

	// SSE handlers block on the request context, so Stop cancels the base
	// context before Shutdown waits for connections.
	baseCtx, cancel := context.WithCancel(context.Background())
	s.cancelBase = cancel
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	s.logger.Info("HTTP surface listening", "addr", ln.Addr().String())
	s.logger.Debug("OpenAPI documentation available", "url", "http://"+ln.Addr().String()+"/docs")

	srv := s.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP surface stopped unexpectedly", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.options.Addr
}

// Stop shuts the server down. Connections still open when ctx ends are closed.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel := s.httpServer, s.cancelBase
	s.httpServer, s.cancelBase, s.listener = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("Stopping HTTP surface")

	cancel()
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("shutdown http surface: %w", err)
	}
	return nil
}

// basicAuthMiddleware checks HTTP basic credentials on operations that declare
// security. SSE clients may pass the encoded credentials as ?auth= instead.
func (s *Server) basicAuthMiddleware() func(huma.Context, func(huma.Context)) {
	reject := func(ctx huma.Context, msg string, errs ...error) {
		ctx.SetHeader("WWW-Authenticate", `Basic realm="pagecast"`)
		huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		encoded := ctx.Query("auth")
		if header := ctx.Header("Authorization"); header != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(header, prefix) {
				reject(ctx, "Invalid authentication type")
				return
			}
			encoded = header[len(prefix):]
		}
		if encoded == "" {
			reject(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			reject(ctx, "Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			reject(ctx, "Invalid credentials format")
			return
		}
		if !s.credentialsMatch(user, pass) {
			reject(ctx, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// requireBasicAuth guards plain handlers mounted outside huma, such as /metrics.
func (s *Server) requireBasicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !s.credentialsMatch(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="pagecast"`)
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) credentialsMatch(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.options.AuthUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.options.AuthPassword)) == 1
	return userOK && passOK
}

// registerRoutes sets up all API endpoints
func (s *Server) registerRoutes() {
	// Plain liveness probe for load balancers and the frontend.
	huma.Register(s.api, huma.Operation{
		OperationID: "liveness",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness",
		Description: "Returns ok while the server answers",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.LivenessResponse, error) {
		return &models.LivenessResponse{Body: models.LivenessData{OK: true}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerPipelineRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
