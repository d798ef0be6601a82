package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/pagecast/internal/api"
	"github.com/smazurov/pagecast/internal/audio"
	"github.com/smazurov/pagecast/internal/config"
	"github.com/smazurov/pagecast/internal/events"
	"github.com/smazurov/pagecast/internal/ffmpeg"
	"github.com/smazurov/pagecast/internal/lock"
	"github.com/smazurov/pagecast/internal/logging"
	"github.com/smazurov/pagecast/internal/metrics"
	"github.com/smazurov/pagecast/internal/metrics/exporters"
	"github.com/smazurov/pagecast/internal/pipeline"
	"github.com/smazurov/pagecast/internal/process"
	"github.com/smazurov/pagecast/internal/render"
	"github.com/smazurov/pagecast/internal/systemd"
	"github.com/smazurov/pagecast/internal/transcode"
)

// runPipeline wires one broadcast run and returns its exit code.
func runPipeline(ctx context.Context, opts *config.Options) int {
	logging.Initialize(opts.LoggingConfig())

	runID := uuid.NewString()
	logger := logging.GetLogger("main").With("run_id", runID)

	cfg := opts.PipelineConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		return pipeline.ExitFailure
	}

	ffmpegOptions, err := ffmpeg.ParseOptions(opts.FFmpegOptions)
	if err != nil {
		logger.Error("Invalid ffmpeg options", "error", err)
		return pipeline.ExitFailure
	}

	// ffmpeg echoes its output URL, stream key included.
	logging.Redact(cfg.Endpoint, cfg.RedactedEndpoint())
	defer logging.ClearRedactions()

	endpointLock, err := lock.Acquire(opts.LockDir, cfg.Endpoint)
	if err != nil {
		logger.Error("Endpoint is busy", "endpoint", cfg.RedactedEndpoint(), "error", err)
		return pipeline.ExitFailure
	}
	defer func() {
		if err := endpointLock.Release(); err != nil {
			logger.Warn("Failed to release endpoint lock", "error", err)
		}
	}()

	eventBus := events.New()
	logging.SetLogCallback(func(entry logging.LogEntry) {
		eventBus.Publish(api.LogEntryToEvent(entry))
	})
	defer logging.SetLogCallback(nil)

	var promHandler http.Handler
	var progressDir string
	if opts.MetricsEnabled {
		defer metrics.Observe(eventBus)()
		promHandler = exporters.HTTPHandler()
		progressDir = opts.ProgressDir
		if progressDir == "" {
			progressDir = transcode.DefaultProgressDir()
		}

		sseExporter := exporters.NewSSEExporter(eventBus, time.Second)
		sseExporter.Start(ctx)
		defer sseExporter.Stop()
	}

	notifier := systemd.NewNotifier(nil, logging.GetLogger("systemd"))
	defer notifier.Attach(eventBus)()
	watchdogCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	go notifier.Watchdog(watchdogCtx)

	server := api.NewServer(api.Options{
		Addr:              opts.Addr(),
		FrontendDir:       opts.FrontendDir,
		AuthUsername:      opts.AuthUsername,
		AuthPassword:      opts.AuthPassword,
		EventBus:          eventBus,
		PrometheusHandler: promHandler,
	})

	controller := pipeline.NewController(pipeline.Options{
		Config:  cfg,
		Target:  func() string { return render.TargetURL(server.Addr(), cfg) },
		RunID:   runID,
		Surface: server,
		Renderer: render.NewBrowser(render.Options{
			ExecPath:  opts.ChromePath,
			Headful:   opts.Headful,
			NoSandbox: opts.NoSandbox,
			Logger:    logging.GetLogger("render"),
		}),
		Source: render.NewScreencast(render.ScreencastOptions{
			Quality: opts.ScreencastQuality,
			Logger:  logging.GetLogger("render"),
		}),
		Audio: audio.NewResolver(opts.AudioURLTemplate),
		Transcoder: transcode.New(transcode.Options{
			RunID:           runID,
			Binary:          opts.FFmpegBinary,
			Output:          process.OutputMode(opts.FFmpegOutput),
			FFmpegOptions:   ffmpegOptions,
			ProgressDir:     progressDir,
			GracefulTimeout: opts.GracefulTimeout(),
			Logger:          logging.GetLogger("transcode"),
			FFmpegLogger:    logging.GetLogger("ffmpeg"),
		}),
		EventBus: eventBus,
		Logger:   logging.GetLogger("pipeline"),
	})
	server.SetController(controller)

	if opts.WatchAssets && opts.FrontendDir != "" {
		watcher := config.NewWatcher(opts.FrontendDir, logging.GetLogger("assets"))
		watcher.OnChange(func(ctx context.Context, changed []string) {
			err := controller.ReloadPage(ctx)
			switch {
			case errors.Is(err, pipeline.ErrNotStreaming):
				logger.Debug("Assets changed before streaming, reload skipped")
			case err != nil:
				logger.Warn("Page reload after asset change failed", "error", err)
			default:
				logger.Info("Page reloaded after asset change", "files", len(changed))
			}
		})
		if err := watcher.Start(); err != nil {
			logger.Warn("Asset watcher disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	code, err := controller.Run(ctx)
	if err != nil {
		logger.Error("Broadcast failed", "phase", pipeline.PhaseOf(err), "error", err, "exit_code", code)
	} else {
		logger.Info("Broadcast ended", "exit_code", code, "trigger", controller.Status().Trigger)
	}
	return code
}
