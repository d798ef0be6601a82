// Package models holds the request and response bodies of the HTTP surface.
package models

import (
	"github.com/smazurov/pagecast/internal/events"
	"github.com/smazurov/pagecast/internal/pipeline"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// LivenessData is the body of the plain /health probe.
type LivenessData struct {
	OK bool `json:"ok" example:"true" doc:"Always true while the server answers"`
}

type LivenessResponse struct {
	Body LivenessData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-01T00:00:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// StatusData mirrors the controller snapshot.
type StatusData struct {
	pipeline.Status
}

type StatusResponse struct {
	Body StatusData
}

// Reload models
type ReloadData struct {
	Status  string `json:"status" example:"reloaded" doc:"Reload result"`
	Message string `json:"message,omitempty" doc:"Additional detail"`
}

type ReloadResponse struct {
	Body ReloadData
}

// Log history models
type LogsData struct {
	Entries []events.LogEntryEvent `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int                    `json:"count" example:"42" doc:"Number of entries returned"`
}

type LogsRequest struct {
	Module string `query:"module" doc:"Only return entries from this module"`
	Level  string `query:"level" doc:"Only return entries at this level"`
}

type LogsResponse struct {
	Body LogsData
}
