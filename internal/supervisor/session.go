package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/core/channel"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/rpc"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/wire"
	"github.com/GriffinCanCode/scripthost/backend/internal/sandbox"
	"go.uber.org/zap"
)

// Session is the supervisor's handle on one execution context
type Session struct {
	id      string
	created time.Time
	sup     *Supervisor
	log     *zap.Logger

	ch      *channel.Channel
	rpc     *rpc.Correlator
	runtime *sandbox.Runtime

	// breakerDone reports the evaluation outcome to the spawn breaker.
	breakerDone func(success bool)

	settleOnce sync.Once
	done       chan struct{}
	endOnce    sync.Once
	gone       chan struct{}
	closeOnce  sync.Once

	mu      sync.Mutex
	status  Status
	value   any
	err     error
	settled time.Time
	faults  []FaultError
	timer   *time.Timer
}

func newSession(sup *Supervisor, contextID string, ch *channel.Channel, log *zap.Logger, breakerDone func(bool)) *Session {
	return &Session{
		id:          contextID,
		created:     time.Now(),
		sup:         sup,
		log:         log,
		ch:          ch,
		breakerDone: breakerDone,
		done:        make(chan struct{}),
		gone:        make(chan struct{}),
		status:      StatusRunning,
	}
}

// ID returns the context id
func (s *Session) ID() string {
	return s.id
}

// Done is closed once the evaluation settles
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Gone is closed once the context has released its channel
func (s *Session) Gone() <-chan struct{} {
	return s.gone
}

// Status returns the lifecycle state
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Send delivers a plain message to the context. Handles without a content
// type are sniffed.
func (s *Session) Send(payload any, transfers ...channel.Handle) error {
	if s.ch.Closed() {
		return ErrContextClosed
	}
	s.ch.Send(payload, s.annotate(transfers)...)
	return nil
}

// Receive returns the next plain message sent by the context
func (s *Session) Receive(ctx context.Context) (channel.Message, error) {
	msg, err := s.ch.Receive(ctx)
	if err != nil {
		if errors.Is(err, channel.ErrChannelClosed) {
			return channel.Message{}, ErrContextClosed
		}
		return channel.Message{}, err
	}
	msg.Transfers = s.annotate(msg.Transfers)
	return msg, nil
}

// Call sends a request to the context's handler and waits for its response
func (s *Session) Call(ctx context.Context, payload any) (any, error) {
	v, err := s.rpc.Call(ctx, payload)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.sup.metrics.RecordContextCall(status)
	return v, err
}

// Wait blocks until the evaluation settles and returns its outcome
func (s *Session) Wait(ctx context.Context) (any, error) {
	select {
	case <-s.done:
		return s.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the settled outcome, or nil values while running
func (s *Session) Result() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.err
}

// Cancel aborts the evaluation cooperatively. The context stays open until
// Close; its later failures are not reported.
func (s *Session) Cancel(reason string) {
	s.ch.Send(wire.Cancel{Reason: reason})
	s.rpc.Shutdown()
	s.settle(nil, &sandbox.CanceledError{Reason: reason}, StatusCanceled)
}

// Close shuts the context down and removes the session from the
// supervisor.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.shutdown()
		s.sup.forget(s.id)
	})
}

// shutdown sends the closing frame and waits CloseGrace for the context's
// own. A context that never answers is closed directly.
func (s *Session) shutdown() {
	select {
	case <-s.gone:
		return
	default:
	}
	s.ch.Send(wire.Closing{})

	grace := s.sup.cfg.Sandbox.CloseGrace
	if grace <= 0 {
		grace = time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-s.gone:
	case <-timer.C:
		s.log.Warn("closing frame not observed, releasing", zap.Duration("grace", grace))
		s.runtime.Close()
		s.end()
	}
}

// Info returns a snapshot of the session
func (s *Session) Info() Info {
	s.mu.Lock()
	info := Info{
		ID:      s.id,
		Status:  s.status,
		Created: s.created,
		Value:   s.value,
		Faults:  append([]FaultError(nil), s.faults...),
	}
	if !s.settled.IsZero() {
		settled := s.settled
		info.Settled = &settled
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	s.mu.Unlock()

	select {
	case <-s.gone:
	default:
		info.Live = true
	}
	info.Console = s.runtime.Console()
	info.Dropped = s.runtime.Channel().Dropped()
	info.Buffered = s.ch.Buffered()
	return info
}

// Fault returns the fault that settled the evaluation, if any
func (s *Session) Fault() (*FaultError, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusFailed || len(s.faults) == 0 {
		return nil, false
	}
	f := s.faults[0]
	return &f, true
}

// serve answers a context request through the host registry
func (s *Session) serve(ctx context.Context, req rpc.Request) (rpc.Result, error) {
	return rpc.Go(ctx, func(ctx context.Context) (any, error) {
		return s.sup.registry.Dispatch(ctx, req.Payload)
	}), nil
}

// route consumes the frames that end an evaluation or the context
func (s *Session) route(msg channel.Message) bool {
	switch p := msg.Payload.(type) {
	case wire.Result:
		s.settle(p.Data, nil, StatusCompleted)
		return true
	case wire.Fault:
		f := FaultError{ID: p.ID, Message: p.Message, Trace: sandbox.TranslateTrace(p.Trace, s.id)}
		s.sup.metrics.RecordFault()
		s.mu.Lock()
		s.faults = append(s.faults, f)
		s.mu.Unlock()
		s.log.Error("context fault", zap.String("message", f.Message), zap.String("trace", f.Trace))
		s.settle(nil, &f, StatusFailed)
		return true
	case wire.Closing:
		s.end()
		return true
	}
	return false
}

// arm cancels and then shuts the context down once timeout elapses
func (s *Session) arm(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = time.AfterFunc(timeout, func() {
		if !s.settle(nil, fmt.Errorf("%w after %s", ErrTimeout, timeout), StatusTimeout) {
			return
		}
		s.log.Warn("context timed out", zap.Duration("timeout", timeout))
		s.ch.Send(wire.Cancel{Reason: "timeout"})
		s.shutdown()
	})
}

// settle records the first outcome only
func (s *Session) settle(value any, err error, status Status) bool {
	settled := false
	s.settleOnce.Do(func() {
		settled = true
		s.mu.Lock()
		s.value, s.err, s.status = value, err, status
		s.settled = time.Now()
		if s.timer != nil {
			s.timer.Stop()
		}
		s.mu.Unlock()
		close(s.done)

		s.breakerDone(status != StatusFailed && status != StatusTimeout)
		s.sup.metrics.RecordEvaluation(status.outcome(), time.Since(s.created))
		s.log.Debug("evaluation settled", zap.String("status", string(status)))
	})
	return settled
}

// end runs once the context is gone
func (s *Session) end() {
	s.endOnce.Do(func() {
		s.settle(nil, ErrContextClosed, StatusClosed)
		s.rpc.Shutdown()
		s.ch.Release()
		s.sup.metrics.RecordDropped(s.runtime.Channel().Dropped())
		s.sup.metrics.ContextClosed()
		s.sup.slots.release()
		close(s.gone)
		s.log.Info("context released")

		// Close forgets at once; a context that closed itself stays
		// listed for Retain so its outcome can still be read.
		time.AfterFunc(max(s.sup.cfg.Sandbox.Retain, 0), func() { s.sup.forget(s.id) })
	})
}

func (s *Session) annotate(handles []channel.Handle) []channel.Handle {
	for i := range handles {
		if handles[i].ContentType == "" {
			handles[i].ContentType = s.sup.detector.Detect(handles[i].Data).MIME
		}
	}
	return handles
}
