// Package channel implements an ordered duplex message pipe between a
// supervisor and an isolated execution context.
//
// A Channel sits on top of an opaque Transport. Send never blocks and never
// fails locally. Receive suspends until a message is available. Concurrent
// Receive calls are serialized: each call claims the next message in call
// order, so at any moment only the head waiter is the pending receive.
//
// Until MarkReady is called the receive buffer holds at most
// PreReadyCapacity messages; newer messages beyond that are dropped.
package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/GriffinCanCode/scripthost/backend/internal/core/wire"
	"go.uber.org/zap"
)

// DefaultPreReadyCapacity bounds the buffer before the context is ready.
const DefaultPreReadyCapacity = 10

var (
	ErrChannelClosed = errors.New("channel is closed")
)

// Handle is a transferable resource travelling alongside a message.
type Handle struct {
	ID          string
	Data        []byte
	ContentType string
}

// Message is an opaque payload plus optional transferable handles.
type Message struct {
	Payload   any
	Transfers []Handle
}

// Router inspects an inbound message before it is buffered. Returning true
// consumes the message.
type Router func(Message) bool

// Options configures a Channel.
type Options struct {
	PreReadyCapacity int
	// Ready starts the channel in the ready state. Supervisor ends use it.
	Ready  bool
	Logger *zap.Logger
}

// Channel is one end of a duplex message pipe.
type Channel struct {
	transport Transport
	log       *zap.Logger
	capacity  int

	mu         sync.Mutex
	buffer     []Message
	waiters    []chan Message
	routers    []Router
	closeHooks []func()
	ready      bool
	closing    bool
	closed     bool
	dropped    int
}

// New binds a Channel to the transport.
func New(t Transport, opts Options) *Channel {
	if opts.PreReadyCapacity <= 0 {
		opts.PreReadyCapacity = DefaultPreReadyCapacity
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Channel{
		transport: t,
		log:       opts.Logger.Named("channel"),
		capacity:  opts.PreReadyCapacity,
		ready:     opts.Ready,
	}
	t.Bind(c.deliver)
	return c
}

// Route appends a router. Routers run in registration order on the
// transport's delivery goroutine, so they observe arrival order.
func (c *Channel) Route(r Router) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routers = append(c.routers, r)
}

// OnClose registers a hook that runs inside Close before the closing
// message is emitted. Hooks may still Send.
func (c *Channel) OnClose(hook func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeHooks = append(c.closeHooks, hook)
}

// Send enqueues one message on the transport. Messages sent after the
// transport is released are discarded.
func (c *Channel) Send(payload any, transfers ...Handle) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		c.log.Debug("send on released channel discarded")
		return
	}

	if err := c.transport.Post(Message{Payload: payload, Transfers: transfers}); err != nil {
		c.log.Warn("transport post failed", zap.Error(err))
	}
}

// Receive returns the oldest buffered message or suspends until one
// arrives. It fails with ErrChannelClosed once the channel is released and
// drained, or with the context's error.
func (c *Channel) Receive(ctx context.Context) (Message, error) {
	c.mu.Lock()
	if len(c.buffer) > 0 {
		msg := c.buffer[0]
		c.buffer[0] = Message{}
		c.buffer = c.buffer[1:]
		c.mu.Unlock()
		return msg, nil
	}
	if c.closed {
		c.mu.Unlock()
		return Message{}, ErrChannelClosed
	}

	w := make(chan Message, 1)
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	select {
	case msg, ok := <-w:
		if !ok {
			return Message{}, ErrChannelClosed
		}
		return msg, nil
	case <-ctx.Done():
		c.mu.Lock()
		if c.removeWaiter(w) {
			c.mu.Unlock()
			return Message{}, ctx.Err()
		}
		c.mu.Unlock()

		// A message was handed over while we were giving up; keep it.
		if msg, ok := <-w; ok {
			c.requeue(msg)
		}
		return Message{}, ctx.Err()
	}
}

// MarkReady lifts the pre-ready bound on the receive buffer.
func (c *Channel) MarkReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = true
}

// Ready reports whether MarkReady has been called.
func (c *Channel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Dropped returns how many messages the pre-ready bound discarded.
func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Buffered returns the number of messages waiting for Receive.
func (c *Channel) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Closed reports whether the transport has been released.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close runs the close hooks, emits one closing message and releases the
// transport. Only the first call has an effect.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closing || c.closed {
		c.mu.Unlock()
		return
	}
	c.closing = true
	hooks := c.closeHooks
	c.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}

	c.Send(wire.Closing{})
	c.Release()
}

// Release closes the transport without emitting a closing message. Pending
// receivers fail with ErrChannelClosed; buffered messages stay readable.
func (c *Channel) Release() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	if err := c.transport.Close(); err != nil {
		c.log.Debug("transport close failed", zap.Error(err))
	}
}

// deliver is the transport's inbound callback.
func (c *Channel) deliver(msg Message) {
	c.mu.Lock()
	routers := c.routers
	c.mu.Unlock()

	for _, route := range routers {
		if route(msg) {
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if len(c.waiters) > 0 {
		w := c.waiters[0]
		c.waiters = c.waiters[1:]
		w <- msg
		return
	}
	if !c.ready && len(c.buffer) >= c.capacity {
		c.dropped++
		c.log.Debug("pre-ready buffer full, message dropped",
			zap.Int("capacity", c.capacity),
			zap.Int("dropped", c.dropped),
		)
		return
	}
	c.buffer = append(c.buffer, msg)
}

// requeue puts a message back at the head of the queue.
func (c *Channel) requeue(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.waiters) > 0 {
		w := c.waiters[0]
		c.waiters = c.waiters[1:]
		w <- msg
		return
	}
	c.buffer = append([]Message{msg}, c.buffer...)
}

func (c *Channel) removeWaiter(w chan Message) bool {
	for i, x := range c.waiters {
		if x == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// waiting returns the number of suspended receivers.
func (c *Channel) waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
