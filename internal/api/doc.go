// Package api is the HTTP surface of pagecast. It serves the page the browser
// renders and a huma API with health, status, page reload, pipeline events and
// logs. The Prometheus handler is mounted at /metrics when provided.
package api
