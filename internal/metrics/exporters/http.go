// Package exporters exposes pipeline metrics over HTTP and the event bus.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler returns the Prometheus handler for all promauto-registered metrics.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}
