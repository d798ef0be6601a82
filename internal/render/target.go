package render

import (
	"net"
	"net/url"

	"github.com/smazurov/pagecast/internal/pipeline"
)

// TargetURL returns the local page address the browser navigates to. addr is
// the page server's bound host:port. The query tells the frontend it runs
// server-driven, which assets to load and to keep its own audio muted.
func TargetURL(addr string, cfg pipeline.Config) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, "80"
	}
	q := url.Values{}
	q.Set("drive_audio", cfg.AudioAssetID)
	q.Set("drive_bg", cfg.BackgroundAssetID)
	q.Set("server", "1")
	q.Set("mute", "1")

	u := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(dialHost(host), port),
		Path:     "/index.html",
		RawQuery: q.Encode(),
	}
	return u.String()
}

// dialHost maps a wildcard bind address to one the browser can connect to.
func dialHost(host string) string {
	switch host {
	case "", "0.0.0.0":
		return "localhost"
	case "::":
		return "::1"
	default:
		return host
	}
}
