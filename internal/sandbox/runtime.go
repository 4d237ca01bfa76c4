package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/core/channel"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/fault"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/rpc"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/wire"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Runtime is one execution context: a goja VM, the loop that owns it and
// the context's end of the channel.
type Runtime struct {
	vm     *goja.Runtime
	config Config
	log    *zap.Logger

	ch     *channel.Channel
	rpc    *rpc.Correlator
	faults *fault.Reporter
	loop   *loop

	// deferred builds {promise, resolve, reject} triples on the loop.
	deferred goja.Callable
	// recvTail is closed when the latest receive() has its message. Loop only.
	recvTail chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	eval     *Evaluation
	canceled bool
	closed   bool

	timersMu sync.Mutex
	timers   map[int64]*time.Timer
	timerSeq int64

	// Console output
	console   []LogEntry
	consoleMu sync.Mutex
}

// New creates a runtime bound to its end of a transport. The loop starts
// immediately; nothing runs until Evaluate or an eval frame arrives.
func New(config Config, t channel.Transport, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if config.MaxCallStack <= 0 {
		config.MaxCallStack = DefaultConfig().MaxCallStack
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		vm:     goja.New(),
		config: config,
		log:    log.Named("sandbox"),
		loop:   newLoop(),
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[int64]*time.Timer),
	}
	r.vm.SetMaxCallStackSize(config.MaxCallStack)
	r.vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	r.ch = channel.New(t, channel.Options{
		PreReadyCapacity: config.PreReadyBuffer,
		Logger:           r.log,
	})
	r.faults = fault.NewReporter(r.ch, "", r.log)
	r.rpc = rpc.New(r.ch, rpc.Options{Logger: r.log, Faults: r.faults})
	r.ch.Route(r.route)

	if err := r.setupGlobals(); err != nil {
		cancel()
		r.ch.Release()
		return nil, fmt.Errorf("failed to set up globals: %w", err)
	}

	go r.loop.run(r.guard)
	return r, nil
}

// Channel returns the context's end of the channel.
func (r *Runtime) Channel() *channel.Channel {
	return r.ch
}

// Console returns a copy of captured console output.
func (r *Runtime) Console() []LogEntry {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	return append([]LogEntry(nil), r.console...)
}

// Canceled reports whether cancellation was requested.
func (r *Runtime) Canceled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canceled
}

// Close tears the context down: pending requests are discarded, a fault is
// emitted if no handler ever serviced them, the closing frame is sent and
// the VM is interrupted. Close is idempotent.
func (r *Runtime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	ev := r.eval
	r.mu.Unlock()

	r.ch.Close()
	r.vm.Interrupt(ErrRuntimeClosed)
	r.loop.stop()
	r.cancel()
	r.stopTimers()

	if ev != nil {
		ev.settle(nil, ErrRuntimeClosed)
	}
	r.log.Debug("runtime closed")
}

// route consumes control frames addressed to the context itself.
func (r *Runtime) route(msg channel.Message) bool {
	switch p := msg.Payload.(type) {
	case wire.Eval:
		r.Evaluate(p.ID, p.Source)
		return true
	case wire.Cancel:
		r.mu.Lock()
		ev := r.eval
		r.mu.Unlock()
		if ev != nil {
			r.abort(ev, p.Reason)
		}
		return true
	case wire.Closing:
		r.Close()
		return true
	}
	return false
}

// guard runs a loop job, turning a Go panic into the context's fault.
func (r *Runtime) guard(job func()) {
	defer func() {
		if p := recover(); p != nil {
			r.uncaught(fault.NewPanicError(p))
		}
	}()
	job()
}

// uncaught reports a failure nobody else will observe and fails the
// evaluation if it is still pending.
func (r *Runtime) uncaught(err error) {
	if r.quiesced() {
		r.log.Debug("failure after cancel suppressed", zap.Error(err))
		return
	}
	r.faults.Report(err)

	r.mu.Lock()
	ev := r.eval
	r.mu.Unlock()
	if ev != nil {
		ev.settle(nil, err)
	}
}

func (r *Runtime) quiesced() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canceled || r.closed
}

// markInitialized lifts the pre-ready bound and opens the request gate.
func (r *Runtime) markInitialized() {
	r.ch.MarkReady()
	r.rpc.MarkInitialized()
}

func (r *Runtime) addConsole(level, msg string) {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()

	if r.config.MaxConsole > 0 && len(r.console) >= r.config.MaxConsole {
		return
	}
	r.console = append(r.console, LogEntry{
		Level:   level,
		Message: msg,
		Time:    time.Now(),
	})
}

func (r *Runtime) stopTimers() {
	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}
