package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/core/channel"
)

var (
	ErrRuntimeClosed    = errors.New("runtime is closed")
	ErrAlreadyEvaluated = errors.New("runtime already evaluated a unit")
	ErrCanceled         = errors.New("evaluation canceled")
)

// Config defines sandbox configuration
type Config struct {
	MaxCallStack   int  // Maximum JS call stack depth
	PreReadyBuffer int  // Inbound messages kept before startup completes
	EnableConsole  bool // Allow console.log/warn/error
	MaxConsole     int  // Console entries retained
}

// DefaultConfig returns the default sandbox configuration
func DefaultConfig() Config {
	return Config{
		MaxCallStack:   1024,
		PreReadyBuffer: channel.DefaultPreReadyCapacity,
		EnableConsole:  true,
		MaxConsole:     1000,
	}
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ScriptError is a failure raised by script code.
type ScriptError struct {
	Message string
	Stack   string
	cause   error
}

func (e *ScriptError) Error() string      { return e.Message }
func (e *ScriptError) StackTrace() string { return e.Stack }
func (e *ScriptError) Unwrap() error      { return e.cause }

// CanceledError settles an evaluation that was canceled.
type CanceledError struct {
	Reason string
}

func (e *CanceledError) Error() string {
	if e.Reason == "" {
		return ErrCanceled.Error()
	}
	return ErrCanceled.Error() + ": " + e.Reason
}

func (e *CanceledError) Unwrap() error { return ErrCanceled }

// CancelFunc asks the evaluation to stop, with an optional reason.
type CancelFunc func(reason ...string)

// Evaluation is the pending result of one Evaluate call.
type Evaluation struct {
	ID string

	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

func newEvaluation(id string) *Evaluation {
	return &Evaluation{ID: id, done: make(chan struct{})}
}

// Done is closed once the evaluation settles.
func (e *Evaluation) Done() <-chan struct{} {
	return e.done
}

// Result returns the settled value. It is only meaningful after Done.
func (e *Evaluation) Result() (any, error) {
	select {
	case <-e.done:
		return e.value, e.err
	default:
		return nil, nil
	}
}

// Wait blocks until the evaluation settles or ctx ends.
func (e *Evaluation) Wait(ctx context.Context) (any, error) {
	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Evaluation) settle(v any, err error) bool {
	settled := false
	e.once.Do(func() {
		e.value, e.err = v, err
		close(e.done)
		settled = true
	})
	return settled
}
