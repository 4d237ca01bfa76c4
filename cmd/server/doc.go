// Package main is the entry point for the script host server.
//
// The server runs untrusted script units in isolated execution contexts
// and exposes them over HTTP and WebSocket:
//
//	client → HTTP/WS → supervisor → execution context (goja)
//	                            ← host methods (hash, html, stats, fetch, ...)
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -max-contexts 32
//
//	# Development mode (colored logs, debug level)
//	./server -dev -log-level debug
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
