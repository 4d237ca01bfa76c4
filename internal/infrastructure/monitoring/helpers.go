package monitoring

import "time"

// Timer measures a host method call
type Timer struct {
	start   time.Time
	metrics *Metrics
	method  string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, method string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		method:  method,
	}
}

// Stop records the duration with status "ok" or "error"
func (t *Timer) Stop(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	t.metrics.RecordHostCall(t.method, status, time.Since(t.start))
}
