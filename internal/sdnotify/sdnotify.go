// Package sdnotify notifies a service manager of daemon readiness and
// shutdown, per the sd_notify(3) protocol. Absence of NOTIFY_SOCKET (no
// service manager integration configured) is never an error — every
// function in this package is a silent no-op in that case.
package sdnotify

import (
	"log/slog"

	systemd "github.com/coreos/go-systemd/v22/daemon"
)

// Ready notifies the service manager that the daemon has finished
// start-up (socket bound, units loaded) and is ready to serve.
func Ready(logger *slog.Logger) {
	notify(logger, systemd.SdNotifyReady)
}

// Stopping notifies the service manager that the daemon has begun its
// coordinated shutdown.
func Stopping(logger *slog.Logger) {
	notify(logger, systemd.SdNotifyStopping)
}

func notify(logger *slog.Logger, state string) {
	sent, err := systemd.SdNotify(false, state)
	if err != nil {
		logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		logger.Debug("sd_notify sent", "state", state)
	}
}
