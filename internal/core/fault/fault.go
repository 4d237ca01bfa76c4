// Package fault turns uncaught failures inside an execution context into a
// single terminal fault message.
package fault

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/GriffinCanCode/scripthost/backend/internal/core/channel"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/wire"
	"go.uber.org/zap"
)

// Sender is the outbound half of a channel.
type Sender interface {
	Send(payload any, transfers ...channel.Handle)
}

// Tracer is implemented by errors carrying a structured stack trace.
type Tracer interface {
	StackTrace() string
}

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) StackTrace() string {
	return string(e.Stack)
}

// NewPanicError captures the current goroutine's stack.
func NewPanicError(v any) *PanicError {
	if err, ok := v.(*PanicError); ok {
		return err
	}
	return &PanicError{Value: v, Stack: debug.Stack()}
}

// Reporter sends at most one fault per execution context.
type Reporter struct {
	sender Sender
	log    *zap.Logger

	mu   sync.Mutex
	id   string
	sent bool
	last wire.Fault
}

// NewReporter creates a reporter for the context identified by id. The id
// may be bound later with Bind.
func NewReporter(sender Sender, id string, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{sender: sender, id: id, log: log.Named("fault")}
}

// Bind sets the identifier carried by the fault message.
func (r *Reporter) Bind(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = id
}

// Report sends a fault for err unless one was already sent. It returns
// whether this call sent the message.
func (r *Reporter) Report(err error) bool {
	if err == nil {
		return false
	}

	message, trace := Render(err)

	r.mu.Lock()
	if r.sent {
		r.mu.Unlock()
		r.log.Debug("fault already reported, suppressing", zap.String("message", message))
		return false
	}
	r.sent = true
	r.last = wire.Fault{ID: r.id, Message: message, Trace: trace}
	f := r.last
	r.mu.Unlock()

	r.log.Error("execution context fault",
		zap.String("context_id", f.ID),
		zap.String("message", f.Message),
	)
	r.sender.Send(f)
	return true
}

// Recover reports a panic in progress. Use it directly in a defer.
func (r *Reporter) Recover() {
	if p := recover(); p != nil {
		r.Report(NewPanicError(p))
	}
}

// Reported returns the sent fault, if any.
func (r *Reporter) Reported() (wire.Fault, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.sent
}

// Render produces the human-readable message and, when available, a
// structured trace for err.
func Render(err error) (message, trace string) {
	message = err.Error()
	if message == "" {
		message = fmt.Sprintf("%T", err)
	}

	var t Tracer
	if errors.As(err, &t) {
		trace = t.StackTrace()
	}
	return message, trace
}
