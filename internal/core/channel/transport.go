package channel

import (
	"sync"
)

// Transport is the reliable message primitive under a Channel. Post must not
// block. Bind installs the inbound callback, which the transport invokes
// sequentially in arrival order.
type Transport interface {
	Post(msg Message) error
	Bind(deliver func(Message))
	Close() error
}

// Pipe returns two connected in-process transports. Each end delivers on its
// own goroutine, so a delivery callback may Post without re-entering itself.
func Pipe() (Transport, Transport) {
	a, b := &pipeEnd{}, &pipeEnd{}
	a.peer, b.peer = b, a
	return a, b
}

type pipeEnd struct {
	peer *pipeEnd

	mu      sync.Mutex
	deliver func(Message)
	queue   []Message
	pumping bool
	closed  bool
}

func (p *pipeEnd) Post(msg Message) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	return p.peer.enqueue(msg)
}

func (p *pipeEnd) Bind(deliver func(Message)) {
	p.mu.Lock()
	p.deliver = deliver
	start := len(p.queue) > 0 && !p.pumping
	if start {
		p.pumping = true
	}
	p.mu.Unlock()

	if start {
		go p.pump()
	}
}

func (p *pipeEnd) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.queue = nil
	return nil
}

func (p *pipeEnd) enqueue(msg Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrChannelClosed
	}
	p.queue = append(p.queue, msg)
	start := p.deliver != nil && !p.pumping
	if start {
		p.pumping = true
	}
	p.mu.Unlock()

	if start {
		go p.pump()
	}
	return nil
}

// pump drains the inbound queue in order. At most one pump runs per end.
func (p *pipeEnd) pump() {
	for {
		p.mu.Lock()
		if p.closed || len(p.queue) == 0 {
			p.pumping = false
			p.mu.Unlock()
			return
		}
		msg := p.queue[0]
		p.queue[0] = Message{}
		p.queue = p.queue[1:]
		deliver := p.deliver
		p.mu.Unlock()

		deliver(msg)
	}
}
