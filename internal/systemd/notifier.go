// Package systemd reports pipeline progress to the service manager through
// sd_notify. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/pagecast/internal/events"
	"github.com/smazurov/pagecast/internal/pipeline"
)

// NotifyFunc sends one sd_notify state string. It reports whether the
// message was delivered.
type NotifyFunc func(state string) (bool, error)

// Notifier translates pipeline state changes into sd_notify messages:
// READY=1 once streaming, STOPPING=1 on teardown, STATUS= on every change.
type Notifier struct {
	notify NotifyFunc
	logger *slog.Logger
}

// NewNotifier creates a notifier. A nil notify uses daemon.SdNotify.
func NewNotifier(notify NotifyFunc, logger *slog.Logger) *Notifier {
	if notify == nil {
		notify = func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		}
	}
	return &Notifier{notify: notify, logger: logger}
}

// Attach subscribes to pipeline state events. Returns the unsubscribe func.
func (n *Notifier) Attach(bus *events.Bus) func() {
	return bus.Subscribe(func(e events.PipelineStateChangedEvent) {
		n.handle(e)
	})
}

func (n *Notifier) handle(e events.PipelineStateChangedEvent) {
	status := "STATUS=" + e.To
	if e.Reason != "" {
		status += ": " + e.Reason
	}
	n.send(status)

	switch pipeline.State(e.To) {
	case pipeline.StateStreaming:
		n.send(daemon.SdNotifyReady)
	case pipeline.StateTerminating:
		n.send(daemon.SdNotifyStopping)
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	switch {
	case err != nil:
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
	case sent:
		n.logger.Debug("sd_notify sent", "state", state)
	}
}

// Watchdog pings the service manager at half the configured watchdog
// interval until ctx ends. It returns at once when no watchdog is configured.
func (n *Notifier) Watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Invalid systemd watchdog configuration", "error", err)
		return
	}
	if interval == 0 {
		return
	}
	n.runWatchdog(ctx, interval/2)
}

func (n *Notifier) runWatchdog(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
