package rpc

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoHandler is the failure answered when a request is processed with
	// no handler installed.
	ErrNoHandler        = errors.New("no handler registered")
	ErrClosed           = errors.New("correlator is closed")
	ErrDuplicateRequest = errors.New("duplicate request id")
	ErrAbandoned        = errors.New("deferred result abandoned")
)

// RemoteError is returned by Call when the peer answered with an error.
type RemoteError struct {
	RequestID string
	Message   string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Request is what a Handler receives.
type Request struct {
	ID      string
	Payload any
}

// Outcome is a settled value or failure.
type Outcome struct {
	Value any
	Err   error
}

// Result is what a Handler returns: Immediate or Deferred.
type Result interface {
	result()
}

// Immediate carries a value available at return time.
type Immediate struct {
	Value any
}

// Deferred carries a value that settles later. Exactly one Outcome is read
// from Done; a closed Done without a value counts as ErrAbandoned.
type Deferred struct {
	Done <-chan Outcome
}

func (Immediate) result() {}
func (Deferred) result()  {}

// Handler services one request. A returned error is a synchronous failure.
// Handlers must not call RegisterHandler or MarkInitialized.
type Handler func(ctx context.Context, req Request) (Result, error)

// Resolve wraps a synchronous value.
func Resolve(v any) Result {
	return Immediate{Value: v}
}

// Go runs fn on its own goroutine and returns its eventual outcome.
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) Result {
	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- Outcome{Err: fmt.Errorf("handler panic: %v", p)}
			}
		}()
		v, err := fn(ctx)
		done <- Outcome{Value: v, Err: err}
	}()
	return Deferred{Done: done}
}
