// Package middleware provides the gin middleware of the HTTP surface.
//
//   - CORS: cross-origin policy, WebSocket upgrades included
//   - RateLimit: per-IP token buckets with idle eviction
//   - RequestID: X-Request-ID propagation and a request-scoped zap logger
package middleware
