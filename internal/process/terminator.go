package process

import (
	"log/slog"
	"time"
)

// KillTerminator destroys processes started by ExecLauncher. With a positive
// Grace it first asks the process group to stop and waits up to Grace before
// killing it.
type KillTerminator struct {
	Grace  time.Duration
	Logger *slog.Logger
}

// Destroy implements Terminator. Failures are logged, never returned.
func (t KillTerminator) Destroy(h Handle) {
	if h == nil {
		return
	}
	log := t.Logger
	if log == nil {
		log = slog.Default()
	}
	select {
	case <-h.Exited():
		return
	default:
	}

	pid := h.Pid()
	if t.Grace > 0 && gracefulStopSupported {
		if err := requestStop(pid); err != nil {
			log.Warn("failed to request process stop", "pid", pid, "error", err)
		}
		timer := time.NewTimer(t.Grace)
		defer timer.Stop()
		select {
		case <-h.Exited():
			return
		case <-timer.C:
			log.Warn("process did not stop within grace period, killing", "pid", pid, "grace", t.Grace)
		}
	}
	if err := forceKill(pid); err != nil {
		log.Error("failed to kill process", "pid", pid, "error", err)
	}
}
