// Package server wires the script host together.
//
// It builds the supervisor with its host method registry, mounts the
// HTTP and WebSocket handlers behind the middleware stack (recovery,
// request ids, metrics, CORS, and rate limiting on spawning routes), and
// runs the listener with graceful shutdown.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.New(*cfg, logger, monitoring.NewMetrics())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//	err = srv.Run(ctx)
package server
