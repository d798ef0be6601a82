// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// Loggers are plain *slog.Logger values tagged with a module attribute. Output is
// routed automatically:
//   - stdout when a terminal, pipe or file is connected
//   - systemd journal when journald is reachable
//   - an in-memory ring buffer that backs the /api/logs/stream endpoint
//
// # Usage
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "auto", // text on a terminal, json otherwise
//		Modules: map[string]string{
//			"render": "debug",
//			"ffmpeg": "warn",
//		},
//	})
//
//	logger := logging.GetLogger("pipeline")
//	logger.Info("Streaming", "endpoint", redacted)
//
// Module levels override the global level for that module only. Levels can be
// changed at runtime with SetModuleLevel.
//
// # Viewing Logs
//
//	journalctl -t pagecast -f
//	journalctl -t pagecast MODULE=render
package logging
