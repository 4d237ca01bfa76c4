/*
Package supervisor spawns and supervises execution contexts.

Each Session owns the host end of an in-process channel. The context end is
held by a sandbox Runtime. The session's correlator answers the context's
requests through the hostcall registry, and its router consumes the
result, fault and closing frames that end an evaluation.

# Limits

Live contexts are bounded by a slot pool; Spawn waits for a slot at most
AcquireTimeout. A circuit breaker rejects spawns after MaxFaults consecutive
evaluations ended in a fault or timeout. A context that outlives its Timeout
is canceled and then closed, which interrupts a runaway script.

# Usage

	sup, err := supervisor.New(cfg, logger, metrics)
	s, err := sup.Spawn(ctx, `onRequest(req => req.payload * 2); return "ready"`)
	v, err := s.Wait(ctx)            // "ready"
	doubled, err := s.Call(ctx, 21)  // 42
	s.Close()
*/
package supervisor
