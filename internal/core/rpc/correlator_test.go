package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/core/channel"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// pair wires a supervisor-side channel to a worker-side correlator.
type pair struct {
	host   *channel.Channel
	worker *channel.Channel
	rpc    *Correlator
}

func newPair(t *testing.T) *pair {
	t.Helper()
	th, tw := channel.Pipe()
	p := &pair{
		host:   channel.New(th, channel.Options{Ready: true}),
		worker: channel.New(tw, channel.Options{}),
	}
	p.rpc = New(p.worker, Options{})
	t.Cleanup(func() {
		p.host.Release()
		p.worker.Release()
	})
	return p
}

func (p *pair) next(t *testing.T) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	msg, err := p.host.Receive(ctx)
	require.NoError(t, err)
	return msg.Payload
}

func (p *pair) quiet(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	msg, err := p.host.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "unexpected message %#v", msg.Payload)
}

func echo(_ context.Context, req Request) (Result, error) {
	return Resolve(req.Payload), nil
}

func TestImmediateResponseMatchesID(t *testing.T) {
	p := newPair(t)
	p.rpc.MarkInitialized()
	p.rpc.RegisterHandler(echo)

	p.host.Send(wire.Request{RequestID: "req_1", Data: "ping"})

	assert.Equal(t, wire.Response{RequestID: "req_1", Data: "ping"}, p.next(t))
	p.quiet(t)
}

func TestHandlerFailuresBecomeErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
		want    string
	}{
		{
			name: "synchronous error",
			handler: func(context.Context, Request) (Result, error) {
				return nil, errors.New("sync boom")
			},
			want: "sync boom",
		},
		{
			name: "deferred rejection",
			handler: func(ctx context.Context, _ Request) (Result, error) {
				return Go(ctx, func(context.Context) (any, error) {
					return nil, errors.New("async boom")
				}), nil
			},
			want: "async boom",
		},
		{
			name: "panic",
			handler: func(context.Context, Request) (Result, error) {
				panic("oh no")
			},
			want: "handler panic: oh no",
		},
		{
			name: "abandoned deferred",
			handler: func(context.Context, Request) (Result, error) {
				done := make(chan Outcome)
				close(done)
				return Deferred{Done: done}, nil
			},
			want: ErrAbandoned.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPair(t)
			p.rpc.MarkInitialized()
			p.rpc.RegisterHandler(tt.handler)

			p.host.Send(wire.Request{RequestID: "req_x", Data: nil})

			assert.Equal(t, wire.Response{RequestID: "req_x", ErrorMessage: tt.want}, p.next(t))
			p.quiet(t)
		})
	}
}

func TestOutOfOrderCompletionKeepsCorrelation(t *testing.T) {
	p := newPair(t)
	p.rpc.MarkInitialized()
	p.rpc.RegisterHandler(func(ctx context.Context, req Request) (Result, error) {
		delay := time.Duration(req.Payload.(int)) * time.Millisecond
		return Go(ctx, func(context.Context) (any, error) {
			time.Sleep(delay)
			return req.Payload, nil
		}), nil
	})

	delays := []int{40, 5, 20, 1, 30}
	for i, d := range delays {
		p.host.Send(wire.Request{RequestID: fmt.Sprintf("req_%d", i), Data: d})
	}

	got := make(map[string]any)
	for range delays {
		resp := p.next(t).(wire.Response)
		_, dup := got[resp.RequestID]
		require.False(t, dup, "second response for %s", resp.RequestID)
		got[resp.RequestID] = resp.Data
	}
	for i, d := range delays {
		assert.Equal(t, d, got[fmt.Sprintf("req_%d", i)])
	}
	p.quiet(t)
}

func TestLateHandlerReplaysInArrivalOrder(t *testing.T) {
	p := newPair(t)
	p.rpc.MarkInitialized()

	const n = 5
	for i := 0; i < n; i++ {
		p.host.Send(wire.Request{RequestID: fmt.Sprintf("req_%d", i), Data: i})
	}
	require.Eventually(t, func() bool { return p.rpc.Pending() == n }, waitFor, time.Millisecond)

	var (
		mu    sync.Mutex
		order []any
	)
	p.rpc.RegisterHandler(func(_ context.Context, req Request) (Result, error) {
		mu.Lock()
		order = append(order, req.Payload)
		mu.Unlock()
		return Resolve(req.Payload), nil
	})

	assert.Equal(t, []any{0, 1, 2, 3, 4}, order)
	assert.Equal(t, GateFlushed, p.rpc.GateState())
	for i := 0; i < n; i++ {
		resp := p.next(t).(wire.Response)
		assert.Equal(t, fmt.Sprintf("req_%d", i), resp.RequestID)
	}
}

func TestRequestsWaitForInitialization(t *testing.T) {
	p := newPair(t)
	p.rpc.RegisterHandler(echo)

	p.host.Send(wire.Request{RequestID: "req_early", Data: "early"})
	require.Eventually(t, func() bool { return p.rpc.Pending() == 1 }, waitFor, time.Millisecond)
	p.quiet(t)

	p.rpc.MarkInitialized()
	assert.Equal(t, wire.Response{RequestID: "req_early", Data: "early"}, p.next(t))
}

func TestCloseWithoutHandlerReportsSingleFault(t *testing.T) {
	p := newPair(t)
	p.rpc.MarkInitialized()

	p.host.Send(wire.Request{RequestID: "req_orphan", Data: 1})
	require.Eventually(t, func() bool { return p.rpc.Pending() == 1 }, waitFor, time.Millisecond)

	p.worker.Close()

	f, ok := p.next(t).(wire.Fault)
	require.True(t, ok, "expected fault first")
	assert.Contains(t, f.Message, "handler missing")
	assert.Equal(t, wire.Closing{}, p.next(t))
	p.quiet(t)
}

func TestProcessWithoutHandlerAnswersError(t *testing.T) {
	p := newPair(t)

	p.rpc.mu.Lock()
	p.rpc.inflight["req_direct"] = struct{}{}
	p.rpc.mu.Unlock()
	p.rpc.process(Request{ID: "req_direct"})

	assert.Equal(t, wire.Response{RequestID: "req_direct", ErrorMessage: "no handler registered"}, p.next(t))
}

func TestDuplicateInflightRequestIgnored(t *testing.T) {
	p := newPair(t)
	p.rpc.MarkInitialized()

	release := make(chan Outcome)
	p.rpc.RegisterHandler(func(context.Context, Request) (Result, error) {
		return Deferred{Done: release}, nil
	})

	p.host.Send(wire.Request{RequestID: "req_dup", Data: 1})
	p.host.Send(wire.Request{RequestID: "req_dup", Data: 2})
	p.quiet(t)

	release <- Outcome{Value: "done"}
	assert.Equal(t, wire.Response{RequestID: "req_dup", Data: "done"}, p.next(t))
	p.quiet(t)
}

func TestShutdownSuppressesResponses(t *testing.T) {
	p := newPair(t)
	p.rpc.MarkInitialized()

	release := make(chan Outcome, 1)
	p.rpc.RegisterHandler(func(context.Context, Request) (Result, error) {
		return Deferred{Done: release}, nil
	})

	p.host.Send(wire.Request{RequestID: "req_slow"})
	p.quiet(t)

	p.rpc.Shutdown()
	release <- Outcome{Value: "too late"}
	p.quiet(t)
}

func TestCallCorrelatesResponses(t *testing.T) {
	th, tw := channel.Pipe()
	host := channel.New(th, channel.Options{Ready: true})
	worker := channel.New(tw, channel.Options{})
	t.Cleanup(func() { host.Release(); worker.Release() })

	hostRPC := New(host, Options{Initialized: true})
	hostRPC.RegisterHandler(func(_ context.Context, req Request) (Result, error) {
		return Resolve(fmt.Sprintf("host saw %v", req.Payload)), nil
	})
	workerRPC := New(worker, Options{})
	workerRPC.MarkInitialized()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := workerRPC.Call(ctx, i)
			assert.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("host saw %d", i), v)
		}(i)
	}
	wg.Wait()
}

func TestCallSymmetricShapeAndRemoteError(t *testing.T) {
	p := newPair(t)
	p.rpc.MarkInitialized()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	results := make(chan Outcome, 2)
	go func() {
		v, err := p.rpc.Call(ctx, "first")
		results <- Outcome{Value: v, Err: err}
	}()
	req := p.next(t).(wire.Request)
	// Answer in request shape: the outstanding id makes it a response.
	p.host.Send(wire.Request{RequestID: req.RequestID, Data: "answer"})
	out := <-results
	require.NoError(t, out.Err)
	assert.Equal(t, "answer", out.Value)

	go func() {
		v, err := p.rpc.Call(ctx, "second")
		results <- Outcome{Value: v, Err: err}
	}()
	req = p.next(t).(wire.Request)
	p.host.Send(wire.Response{RequestID: req.RequestID, ErrorMessage: "denied"})
	out = <-results

	var remote *RemoteError
	require.ErrorAs(t, out.Err, &remote)
	assert.Equal(t, "denied", remote.Message)
	assert.Equal(t, req.RequestID, remote.RequestID)
}

func TestCallFailsAfterShutdown(t *testing.T) {
	p := newPair(t)

	errs := make(chan error, 1)
	go func() {
		_, err := p.rpc.Call(context.Background(), "never answered")
		errs <- err
	}()
	_ = p.next(t)

	p.rpc.Shutdown()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(waitFor):
		t.Fatal("call not released")
	}

	_, err := p.rpc.Call(context.Background(), "after")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestObserverSeesEveryAnswer(t *testing.T) {
	th, tw := channel.Pipe()
	host := channel.New(th, channel.Options{Ready: true})
	worker := channel.New(tw, channel.Options{})
	t.Cleanup(func() { host.Release(); worker.Release() })

	var (
		mu   sync.Mutex
		seen []string
	)
	c := New(worker, Options{Initialized: true, Observer: func(req Request, _ time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, fmt.Sprintf("%s:%v", req.ID, err != nil))
	}})
	c.RegisterHandler(func(_ context.Context, req Request) (Result, error) {
		if req.Payload == "bad" {
			return nil, errors.New("bad")
		}
		return Resolve("ok"), nil
	})

	host.Send(wire.Request{RequestID: "req_a", Data: "good"})
	host.Send(wire.Request{RequestID: "req_b", Data: "bad"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, waitFor, time.Millisecond)
	assert.Equal(t, []string{"req_a:false", "req_b:true"}, seen)
}
