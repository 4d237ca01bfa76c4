package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLifecycle(t *testing.T) {
	m := NewMetrics()

	m.ContextStarted()
	m.ContextStarted()
	m.ContextClosed()
	m.RecordEvaluation(OutcomeOK, 10*time.Millisecond)
	m.RecordEvaluation(OutcomeTimeout, time.Second)
	m.RecordFault()
	m.RecordDropped(3)
	m.RecordDropped(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContextsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContextsTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContextsTotal.WithLabelValues(OutcomeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FaultsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.MessagesDropped))

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.ActiveContexts)
	assert.Equal(t, int64(2), s.TotalContexts)
	assert.Equal(t, int64(1), s.TotalFaults)
}

func TestTimer(t *testing.T) {
	m := NewMetrics()

	NewTimer(m, "echo").Stop(nil)
	NewTimer(m, "echo").Stop(errors.New("bad"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HostCalls.WithLabelValues("echo", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HostCalls.WithLabelValues("echo", "error")))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/contexts/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/contexts/a", "/contexts/b", "/boom", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/contexts/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	s := m.Snapshot()
	assert.Equal(t, int64(4), s.TotalRequests)
	assert.Equal(t, int64(2), s.TotalErrors)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.IncWSConnections()
	m.RecordWSMessage("in", "send")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "scripthost_ws_connections 1"))
	assert.True(t, strings.Contains(body, "scripthost_uptime_seconds"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestSeparateRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordFault()
	assert.Zero(t, testutil.ToFloat64(b.FaultsTotal))
}
