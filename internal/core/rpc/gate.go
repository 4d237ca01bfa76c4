package rpc

// GateState is the readiness state of a LifecycleGate.
type GateState int

const (
	GateUninitialized GateState = iota
	GateInitialized
	GateFlushed
)

// String returns the string representation of the state
func (s GateState) String() string {
	switch s {
	case GateUninitialized:
		return "uninitialized"
	case GateInitialized:
		return "initialized"
	case GateFlushed:
		return "flushed"
	default:
		return "unknown"
	}
}

// Gate defers requests until the execution context is initialized and a
// handler is installed. It is not safe for concurrent use; the Correlator
// guards it.
type Gate struct {
	state   GateState
	handler bool
	queue   []Request
}

// State returns the current state.
func (g *Gate) State() GateState {
	return g.state
}

// Pending returns the number of queued requests.
func (g *Gate) Pending() int {
	return len(g.queue)
}

// Admit reports whether req may be processed now. Otherwise it is queued.
func (g *Gate) Admit(req Request) bool {
	if g.state == GateFlushed {
		return true
	}
	g.queue = append(g.queue, req)
	return false
}

// Initialize performs the one-time Uninitialized to Initialized transition
// and returns the requests to replay, in arrival order, if a handler is
// already present.
func (g *Gate) Initialize() []Request {
	if g.state != GateUninitialized {
		return nil
	}
	g.state = GateInitialized
	return g.flush()
}

// SetHandler records whether a handler is installed. Installing one on an
// initialized gate returns the queued requests for replay. Removing it
// re-arms queuing.
func (g *Gate) SetHandler(present bool) []Request {
	g.handler = present
	if !present {
		if g.state == GateFlushed {
			g.state = GateInitialized
		}
		return nil
	}
	return g.flush()
}

// Drain discards and returns the queue.
func (g *Gate) Drain() []Request {
	q := g.queue
	g.queue = nil
	return q
}

func (g *Gate) flush() []Request {
	if g.state != GateInitialized || !g.handler {
		return nil
	}
	g.state = GateFlushed
	return g.Drain()
}
