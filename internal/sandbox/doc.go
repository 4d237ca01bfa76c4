/*
Package sandbox provides the isolated execution context that runs scripts.

# Overview

Each Runtime owns one goja VM and one loop goroutine. Every touch of the VM
happens on that loop, so the context is single-threaded and cooperative. The
only way in or out is the context's Channel:

  - send(payload, transfers?) posts a plain message to the supervisor
  - receive() / receiveMessage() resolve with the next inbound message
  - request(payload) issues a structured request and resolves with the answer
  - onRequest(fn) installs the handler for the supervisor's requests; fn may
    return a value or a Promise
  - isCanceled() reports whether the supervisor asked the script to stop

# Evaluation

Evaluate wraps the caller's source in an async function, so scripts may use
top-level await and return a value. The wrapper adds LineOffset lines ahead
of the source; TranslateTrace maps positions in traces back to the caller's
lines.

Startup completes when the wrapper's synchronous part returns, whether it
returned normally or threw. At that point the channel's pre-ready bound is
lifted and queued requests become eligible for the handler.

# Failures

An uncaught exception, a rejected evaluation or a throwing timer callback is
reported once as a fault frame. Handler failures are answered per request
and never become faults.

# Security Model

require, process, module and exports are removed from the global scope.
Scripts cannot reach the filesystem or network except through requests the
supervisor chooses to service.
*/
package sandbox
