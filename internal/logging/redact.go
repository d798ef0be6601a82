package logging

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

var (
	redactMu     sync.RWMutex
	redactPairs  [][2]string
	redactTarget *strings.Replacer
)

// Redact replaces every occurrence of secret in messages and string attributes
// with replacement. Longer secrets are matched first.
func Redact(secret, replacement string) {
	if secret == "" || secret == replacement {
		return
	}
	redactMu.Lock()
	defer redactMu.Unlock()

	for i, p := range redactPairs {
		if p[0] == secret {
			redactPairs[i][1] = replacement
			rebuildReplacer()
			return
		}
	}
	redactPairs = append(redactPairs, [2]string{secret, replacement})
	slices.SortStableFunc(redactPairs, func(a, b [2]string) int {
		return cmp.Compare(len(b[0]), len(a[0]))
	})
	rebuildReplacer()
}

// RedactString applies the registered redactions to s.
func RedactString(s string) string {
	if rep := currentReplacer(); rep != nil {
		return rep.Replace(s)
	}
	return s
}

// ClearRedactions forgets all registered secrets.
func ClearRedactions() {
	redactMu.Lock()
	defer redactMu.Unlock()
	redactPairs = nil
	redactTarget = nil
}

func rebuildReplacer() {
	oldnew := make([]string, 0, len(redactPairs)*2)
	for _, p := range redactPairs {
		oldnew = append(oldnew, p[0], p[1])
	}
	redactTarget = strings.NewReplacer(oldnew...)
}

func currentReplacer() *strings.Replacer {
	redactMu.RLock()
	defer redactMu.RUnlock()
	return redactTarget
}

// redactHandler masks registered secrets before records reach the sinks.
type redactHandler struct {
	next slog.Handler
}

func newRedactHandler(next slog.Handler) *redactHandler {
	return &redactHandler{next: next}
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	rep := currentReplacer()
	if rep == nil {
		return h.next.Handle(ctx, r)
	}

	out := slog.NewRecord(r.Time, r.Level, rep.Replace(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(rep, a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if rep := currentReplacer(); rep != nil {
		masked := make([]slog.Attr, len(attrs))
		for i, a := range attrs {
			masked[i] = redactAttr(rep, a)
		}
		attrs = masked
	}
	return &redactHandler{next: h.next.WithAttrs(attrs)}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name)}
}

func redactAttr(rep *strings.Replacer, a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, rep.Replace(v.String()))
	case slog.KindGroup:
		group := v.Group()
		masked := make([]any, len(group))
		for i, ga := range group {
			masked[i] = redactAttr(rep, ga)
		}
		return slog.Group(a.Key, masked...)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return slog.String(a.Key, rep.Replace(x.Error()))
		case fmt.Stringer:
			return slog.String(a.Key, rep.Replace(x.String()))
		case []string:
			masked := make([]string, len(x))
			for i, s := range x {
				masked[i] = rep.Replace(s)
			}
			return slog.Any(a.Key, masked)
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}
