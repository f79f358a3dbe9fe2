package process

import "fmt"

// Status is the lifecycle state of a managed game-server process.
//
// State machine (driven by the orchestrator, not by Controller):
//
//	Initializing -> Active       process signalled readiness
//	Initializing -> Terminating  initialization timeout elapsed
//	Active       -> Terminating  termination decided or process exited
//	Terminating  -> Terminated   OS process confirmed exited
type Status int32

const (
	StatusInitializing Status = iota
	StatusActive
	StatusTerminating
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "Initializing"
	case StatusActive:
		return "Active"
	case StatusTerminating:
		return "Terminating"
	case StatusTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// ParseStatus converts the String form back to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "Initializing":
		return StatusInitializing, nil
	case "Active":
		return StatusActive, nil
	case "Terminating":
		return StatusTerminating, nil
	case "Terminated":
		return StatusTerminated, nil
	}
	return 0, fmt.Errorf("unknown process status %q", s)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// TerminationReason explains why a process was (or is being) terminated.
type TerminationReason string

const (
	ReasonNormalTermination                  TerminationReason = "NORMAL_TERMINATION"
	ReasonServerProcessCrashed               TerminationReason = "SERVER_PROCESS_CRASHED"
	ReasonServerProcessInvalidPath           TerminationReason = "SERVER_PROCESS_INVALID_PATH"
	ReasonServerProcessInitializationTimeout TerminationReason = "SERVER_PROCESS_INITIALIZATION_TIMEOUT"
	ReasonServerProcessTerminatedUnhealthy   TerminationReason = "SERVER_PROCESS_TERMINATED_UNHEALTHY"
	ReasonServerProcessForceTerminated       TerminationReason = "SERVER_PROCESS_FORCE_TERMINATED"
	ReasonComputeShuttingDown                TerminationReason = "COMPUTE_SHUTTING_DOWN"
	ReasonCustomerInitiated                  TerminationReason = "CUSTOMER_INITIATED"
)

var terminationReasons = []TerminationReason{
	ReasonNormalTermination,
	ReasonServerProcessCrashed,
	ReasonServerProcessInvalidPath,
	ReasonServerProcessInitializationTimeout,
	ReasonServerProcessTerminatedUnhealthy,
	ReasonServerProcessForceTerminated,
	ReasonComputeShuttingDown,
	ReasonCustomerInitiated,
}

// Valid reports whether r is one of the known reasons.
func (r TerminationReason) Valid() bool {
	for _, v := range terminationReasons {
		if r == v {
			return true
		}
	}
	return false
}

// ParseTerminationReason validates s as a TerminationReason.
func ParseTerminationReason(s string) (TerminationReason, error) {
	r := TerminationReason(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown termination reason %q", s)
	}
	return r, nil
}
