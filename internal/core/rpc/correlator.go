// Package rpc layers request/response calls over a channel.
//
// A Correlator answers every inbound request with exactly one response
// carrying the request's id, and matches inbound responses to its own
// outstanding calls. Requests arriving before the execution context is
// initialized, or while no handler is installed, wait in a LifecycleGate
// and are replayed in arrival order once both conditions hold.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/core/channel"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/fault"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/wire"
	"github.com/GriffinCanCode/scripthost/backend/internal/shared/id"
	"go.uber.org/zap"
)

// ErrHandlerMissing is reported as a fault when a context closes with
// requests that no handler ever serviced.
var ErrHandlerMissing = errors.New("handler missing")

// Observer is notified once per answered request.
type Observer func(req Request, elapsed time.Duration, err error)

// Options configures a Correlator.
type Options struct {
	Logger *zap.Logger
	// Faults receives the handler-missing fault on close. Defaults to a
	// reporter on the same channel.
	Faults *fault.Reporter
	// NewID generates outbound request ids.
	NewID func() string
	// Initialized starts the gate past its startup transition.
	Initialized bool
	Observer    Observer
}

// Correlator multiplexes request/response calls over one channel.
type Correlator struct {
	ch      *channel.Channel
	log     *zap.Logger
	faults  *fault.Reporter
	newID   func() string
	observe Observer

	ctx    context.Context
	cancel context.CancelFunc

	// dispatchMu serializes handler invocation so replayed requests run
	// before requests admitted after the flush.
	dispatchMu sync.Mutex

	mu          sync.Mutex
	handler     Handler
	everHandled bool
	gate        Gate
	inflight    map[string]struct{}
	calls       map[string]chan Outcome
	closing     bool
}

// New attaches a Correlator to ch. It routes request and response frames
// off the channel and registers a close hook for the handler-missing fault.
func New(ch *channel.Channel, opts Options) *Correlator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Faults == nil {
		opts.Faults = fault.NewReporter(ch, "", opts.Logger)
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return id.NewRequestID().String() }
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Correlator{
		ch:       ch,
		log:      opts.Logger.Named("rpc"),
		faults:   opts.Faults,
		newID:    opts.NewID,
		observe:  opts.Observer,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]struct{}),
		calls:    make(map[string]chan Outcome),
	}
	if opts.Initialized {
		c.gate.Initialize()
	}

	ch.Route(c.route)
	ch.OnClose(c.beforeClose)
	return c
}

// RegisterHandler installs h, replacing any previous handler, and
// immediately replays queued requests if the context is initialized.
// Passing nil removes the handler; later requests queue again.
func (c *Correlator) RegisterHandler(h Handler) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	c.handler = h
	if h != nil {
		c.everHandled = true
	}
	replay := c.gate.SetHandler(h != nil)
	c.mu.Unlock()

	for _, req := range replay {
		c.process(req)
	}
}

// MarkInitialized signals that the execution context finished startup,
// successfully or not. Only the first call has an effect.
func (c *Correlator) MarkInitialized() {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	replay := c.gate.Initialize()
	c.mu.Unlock()

	for _, req := range replay {
		c.process(req)
	}
}

// GateState returns the current lifecycle state.
func (c *Correlator) GateState() GateState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate.State()
}

// Pending returns the number of queued requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate.Pending()
}

// Call sends payload as a request and waits for the matching response.
func (c *Correlator) Call(ctx context.Context, payload any) (any, error) {
	reqID := c.newID()
	done := make(chan Outcome, 1)

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.calls[reqID] = done
	c.mu.Unlock()

	c.ch.Send(wire.Request{RequestID: reqID, Data: payload})

	select {
	case out := <-done:
		return out.Value, out.Err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.calls, reqID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Shutdown stops response delivery, abandons in-flight handler results and
// fails outstanding calls with ErrClosed.
func (c *Correlator) Shutdown() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	calls := c.calls
	c.calls = make(map[string]chan Outcome)
	c.mu.Unlock()

	c.cancel()
	for _, done := range calls {
		done <- Outcome{Err: ErrClosed}
	}
}

func (c *Correlator) route(msg channel.Message) bool {
	switch p := msg.Payload.(type) {
	case wire.Response:
		out := Outcome{Value: p.Data}
		if p.Failed() {
			out = Outcome{Err: &RemoteError{RequestID: p.RequestID, Message: p.ErrorMessage}}
		}
		if !c.settle(p.RequestID, out) {
			c.log.Debug("response without outstanding call", zap.String("request_id", p.RequestID))
		}
		return true
	case wire.Request:
		if c.settle(p.RequestID, Outcome{Value: p.Data}) {
			return true
		}
		c.accept(Request{ID: p.RequestID, Payload: p.Data})
		return true
	}
	return false
}

func (c *Correlator) settle(reqID string, out Outcome) bool {
	c.mu.Lock()
	done, ok := c.calls[reqID]
	delete(c.calls, reqID)
	c.mu.Unlock()

	if ok {
		done <- out
	}
	return ok
}

func (c *Correlator) accept(req Request) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		c.log.Debug("request after shutdown dropped", zap.String("request_id", req.ID))
		return
	}
	if _, dup := c.inflight[req.ID]; dup {
		c.mu.Unlock()
		c.log.Warn("request dropped", zap.String("request_id", req.ID), zap.Error(ErrDuplicateRequest))
		return
	}
	c.inflight[req.ID] = struct{}{}
	admitted := c.gate.Admit(req)
	c.mu.Unlock()

	if !admitted {
		c.log.Debug("request queued", zap.String("request_id", req.ID))
		return
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	c.process(req)
}

// process invokes the handler and arranges exactly one response.
func (c *Correlator) process(req Request) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	start := time.Now()
	if h == nil {
		c.finish(req, start, Outcome{Err: ErrNoHandler})
		return
	}

	res, err := invoke(c.ctx, h, req)
	if err != nil {
		c.finish(req, start, Outcome{Err: err})
		return
	}

	switch r := res.(type) {
	case Immediate:
		c.finish(req, start, Outcome{Value: r.Value})
	case Deferred:
		go func() {
			select {
			case out, ok := <-r.Done:
				if !ok {
					out = Outcome{Err: ErrAbandoned}
				}
				c.finish(req, start, out)
			case <-c.ctx.Done():
				c.finish(req, start, Outcome{Err: ErrClosed})
			}
		}()
	case nil:
		c.finish(req, start, Outcome{})
	}
}

func invoke(ctx context.Context, h Handler, req Request) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, req)
}

// finish sends the single response for req unless one was already sent or
// the correlator is shutting down.
func (c *Correlator) finish(req Request, start time.Time, out Outcome) {
	c.mu.Lock()
	if _, ok := c.inflight[req.ID]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.inflight, req.ID)
	closing := c.closing
	c.mu.Unlock()

	if c.observe != nil {
		c.observe(req, time.Since(start), out.Err)
	}
	if closing {
		c.log.Debug("response suppressed during teardown", zap.String("request_id", req.ID))
		return
	}

	if out.Err != nil {
		c.log.Warn("handler failed", zap.String("request_id", req.ID), zap.Error(out.Err))
		c.ch.Send(wire.Response{RequestID: req.ID, ErrorMessage: errorMessage(out.Err)})
		return
	}
	c.ch.Send(wire.Response{RequestID: req.ID, Data: out.Value})
}

func (c *Correlator) beforeClose() {
	c.mu.Lock()
	dropped := c.gate.Drain()
	missing := !c.everHandled && len(dropped) > 0
	for _, req := range dropped {
		delete(c.inflight, req.ID)
	}
	c.mu.Unlock()

	if missing {
		c.faults.Report(fmt.Errorf("%w: %d request(s) never serviced", ErrHandlerMissing, len(dropped)))
	} else if len(dropped) > 0 {
		c.log.Warn("queued requests discarded on close", zap.Int("count", len(dropped)))
	}
	c.Shutdown()
}

func errorMessage(err error) string {
	msg, _ := fault.Render(err)
	return msg
}
