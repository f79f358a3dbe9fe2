package client

import "time"

// LaunchRequest is the configuration of a game-server process to launch.
type LaunchRequest struct {
	LaunchPath           string   `json:"launch_path"`
	Parameters           string   `json:"parameters,omitempty"`
	ConcurrentExecutions int      `json:"concurrent_executions,omitempty"`
	WorkDir              string   `json:"work_dir,omitempty"`
	Env                  []string `json:"env,omitempty"`
}

// Process is the agent's view of one game-server process.
type Process struct {
	ProcessID              string        `json:"process_id"`
	Configuration          LaunchRequest `json:"configuration"`
	Status                 string        `json:"status"`
	TerminationReason      string        `json:"termination_reason,omitempty"`
	LogPaths               []string      `json:"log_paths"`
	GameSessionID          string        `json:"game_session_id,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
	InitializationDeadline time.Time     `json:"initialization_deadline"`
	PID                    int           `json:"pid,omitempty"`
	Alive                  bool          `json:"alive"`
	StartedAt              *time.Time    `json:"started_at,omitempty"`
	ExitError              string        `json:"exit_error,omitempty"`
}

// Resources is the latest resource sample of a process.
type Resources struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string   `json:"error"`
	Process *Process `json:"process,omitempty"`
}
