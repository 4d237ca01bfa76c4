package supervisor

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scripthost/backend/internal/sandbox"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrAtCapacity       = errors.New("no execution context slot available")
	ErrSupervisorClosed = errors.New("supervisor is closed")
	ErrContextClosed    = errors.New("execution context closed")
	ErrTimeout          = errors.New("execution timed out")
	ErrSpawnsSuspended  = errors.New("spawning suspended after repeated faults")
	ErrEmptySource      = errors.New("source is empty")
)

// Status is the lifecycle state of a session
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
	StatusTimeout   Status = "timeout"
	StatusClosed    Status = "closed"
)

func (s Status) outcome() string {
	switch s {
	case StatusCompleted:
		return monitoring.OutcomeOK
	case StatusFailed:
		return monitoring.OutcomeFault
	case StatusCanceled:
		return monitoring.OutcomeCanceled
	case StatusTimeout:
		return monitoring.OutcomeTimeout
	default:
		return monitoring.OutcomeError
	}
}

// FaultError is a fault reported by an execution context. Trace positions
// refer to the caller's source lines.
type FaultError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

func (e *FaultError) Error() string {
	return e.Message
}

// StackTrace returns the translated trace
func (e *FaultError) StackTrace() string {
	return e.Trace
}

// Info is a point-in-time view of a session
type Info struct {
	ID       string             `json:"id"`
	Status   Status             `json:"status"`
	Created  time.Time          `json:"created"`
	Settled  *time.Time         `json:"settled,omitempty"`
	Live     bool               `json:"live"`
	Value    any                `json:"value,omitempty"`
	Error    string             `json:"error,omitempty"`
	Faults   []FaultError       `json:"faults,omitempty"`
	Console  []sandbox.LogEntry `json:"console,omitempty"`
	Dropped  int                `json:"dropped"`
	Buffered int                `json:"buffered"`
}

// SpawnOption customizes one Spawn call
type SpawnOption func(*spawnOptions)

type spawnOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the configured execution timeout. Zero keeps it.
func WithTimeout(d time.Duration) SpawnOption {
	return func(o *spawnOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}
