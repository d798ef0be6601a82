// Package audio turns external audio asset ids into URLs ffmpeg can fetch.
package audio

import (
	"net/url"
	"strings"
)

// DefaultTemplate is the Google Drive direct-download URL. {id} is replaced by
// the query-escaped asset id.
const DefaultTemplate = "https://drive.google.com/uc?export=download&id={id}"

const placeholder = "{id}"

// Resolver builds fetchable URLs. It performs no network I/O.
type Resolver struct {
	template string
}

// NewResolver creates a resolver for a URL template containing {id}. An empty
// template selects DefaultTemplate.
func NewResolver(template string) *Resolver {
	if strings.TrimSpace(template) == "" || !strings.Contains(template, placeholder) {
		template = DefaultTemplate
	}
	return &Resolver{template: template}
}

// Resolve returns the URL for assetID. An empty id yields ("", false). Ids that
// already are http(s) URLs are returned as they are.
func (r *Resolver) Resolve(assetID string) (string, bool) {
	id := strings.TrimSpace(assetID)
	if id == "" {
		return "", false
	}
	if u, err := url.Parse(id); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return id, true
	}
	return strings.ReplaceAll(r.template, placeholder, url.QueryEscape(id)), true
}
