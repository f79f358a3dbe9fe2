package history

import (
	"context"
	"errors"
	"time"

	"github.com/loykin/gamehost/internal/process"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventLaunched     EventType = "launched"
	EventLaunchFailed EventType = "launch_failed"
	EventActivated    EventType = "activated"
	EventTerminating  EventType = "terminating"
	EventExited       EventType = "exited"
)

// Record is the process state attached to an event.
type Record struct {
	ProcessID     string   `json:"process_id"`
	PID           int      `json:"pid"`
	LaunchPath    string   `json:"launch_path"`
	Status        string   `json:"status"`
	Reason        string   `json:"reason,omitempty"`
	GameSessionID string   `json:"game_session_id,omitempty"`
	ExitErr       string   `json:"exit_err,omitempty"`
	LogPaths      []string `json:"log_paths"`
}

// NewRecord builds a Record from a process snapshot. pid is 0 when nothing
// was launched; a nil exitErr leaves ExitErr empty.
func NewRecord(s process.Snapshot, pid int, exitErr error) Record {
	r := Record{
		ProcessID:     s.ProcessID,
		PID:           pid,
		LaunchPath:    s.Configuration.LaunchPath,
		Status:        s.Status.String(),
		Reason:        string(s.TerminationReason),
		GameSessionID: s.GameSessionID,
		LogPaths:      s.LogPaths,
	}
	if r.LogPaths == nil {
		r.LogPaths = []string{}
	}
	if exitErr != nil {
		r.ExitErr = exitErr.Error()
	}
	return r
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
