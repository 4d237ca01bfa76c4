/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the script
host, tracking HTTP requests, execution contexts, host method calls and
WebSocket streams. Each Metrics value owns its registry, so tests and
embedded hosts never collide on the global one.

# Features

- HTTP request metrics (latency, throughput, size)
- Execution context metrics (active, outcome, evaluation time, slot wait)
- Fault and dropped-message counters
- Host method metrics (duration, errors)
- WebSocket connection metrics
- Go runtime and process collectors

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "html.select")
	_, err := provider.Call(ctx, params)
	timer.Stop(err)
*/
package monitoring
