// Package config provides 12-factor configuration management for the script host.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, shutdown timeout)
//   - Sandbox: execution context limits and timeouts
//   - Breaker: spawn circuit breaker thresholds
//   - Sniff: extra content signature tables
//   - Fetch: outbound HTTP host method
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT
//   - SANDBOX_MAX_CONTEXTS, SANDBOX_ACQUIRE_TIMEOUT, SANDBOX_TIMEOUT,
//     SANDBOX_PRE_READY_BUFFER, SANDBOX_MAX_CALL_STACK, SANDBOX_CONSOLE,
//     SANDBOX_CLOSE_GRACE, SANDBOX_RETAIN
//   - BREAKER_MAX_FAULTS, BREAKER_TIMEOUT
//   - SNIFF_SIGNATURES
//   - FETCH_ENABLED, FETCH_ALLOW, FETCH_TIMEOUT, FETCH_MAX_BYTES, FETCH_RETRIES
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
