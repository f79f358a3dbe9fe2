package process

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultInitializationTimeout is how long a process may stay Initializing
// before the orchestrator should force-terminate it.
const DefaultInitializationTimeout = 5 * time.Minute

// Record is the tracked state of one managed process. The id, configuration,
// creation time and initialization deadline are fixed at construction; the
// rest is guarded by mu and may be read and written from any goroutine.
type Record struct {
	id        string
	config    Configuration
	createdAt time.Time
	deadline  time.Time

	mu            sync.RWMutex
	status        Status
	reason        TerminationReason
	logPaths      map[string]struct{}
	gameSessionID string
}

// Snapshot is a point-in-time copy of a Record.
type Snapshot struct {
	ProcessID              string            `json:"process_id"`
	Configuration          Configuration     `json:"configuration"`
	Status                 Status            `json:"status"`
	TerminationReason      TerminationReason `json:"termination_reason,omitempty"`
	LogPaths               []string          `json:"log_paths"`
	GameSessionID          string            `json:"game_session_id,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	InitializationDeadline time.Time         `json:"initialization_deadline"`
}

// NewRecord creates an Initializing record with a fresh process id.
func NewRecord(cfg Configuration, initTimeout time.Duration) *Record {
	return newRecord(cfg, initTimeout, time.Now())
}

func newRecord(cfg Configuration, initTimeout time.Duration, now time.Time) *Record {
	return &Record{
		id:        uuid.NewString(),
		config:    cfg.clone(),
		createdAt: now,
		deadline:  now.Add(initTimeout),
		status:    StatusInitializing,
		logPaths:  make(map[string]struct{}),
	}
}

func (r *Record) ID() string { return r.id }

// Configuration returns a copy of the launch configuration.
func (r *Record) Configuration() Configuration { return r.config.clone() }

func (r *Record) CreatedAt() time.Time { return r.createdAt }

func (r *Record) InitializationDeadline() time.Time { return r.deadline }

func (r *Record) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Record) SetStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// CompareAndSetStatus sets the status to next only if it currently equals
// prev. It reports whether the swap happened.
func (r *Record) CompareAndSetStatus(prev, next Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != prev {
		return false
	}
	r.status = next
	return true
}

// TerminationReason returns the reason and whether one has been set.
func (r *Record) TerminationReason() (TerminationReason, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reason, r.reason != ""
}

// SetTerminationReason records why the process is being terminated. The
// first non-empty reason sticks; it returns false when a reason was already
// set or reason is empty.
func (r *Record) SetTerminationReason(reason TerminationReason) bool {
	if reason == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reason != "" {
		return false
	}
	r.reason = reason
	return true
}

// LogPaths returns the deduplicated log paths in sorted order. The result is
// never nil.
func (r *Record) LogPaths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.logPaths)
}

// SetLogPaths replaces the log paths with the distinct values of paths.
// A nil or empty slice yields an empty set.
func (r *Record) SetLogPaths(paths []string) {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	r.mu.Lock()
	r.logPaths = set
	r.mu.Unlock()
}

// GameSessionID returns the bound game session and whether one is set.
func (r *Record) GameSessionID() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gameSessionID, r.gameSessionID != ""
}

func (r *Record) SetGameSessionID(id string) {
	r.mu.Lock()
	r.gameSessionID = id
	r.mu.Unlock()
}

// Snapshot copies every field under a single read lock.
func (r *Record) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		ProcessID:              r.id,
		Configuration:          r.config.clone(),
		Status:                 r.status,
		TerminationReason:      r.reason,
		LogPaths:               sortedKeys(r.logPaths),
		GameSessionID:          r.gameSessionID,
		CreatedAt:              r.createdAt,
		InitializationDeadline: r.deadline,
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
