package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/config"
	"github.com/GriffinCanCode/scripthost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scripthost/backend/internal/supervisor"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	sup    *supervisor.Supervisor
}

func setupTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := *config.Default()
	cfg.Sandbox.MaxContexts = 2
	cfg.Sandbox.AcquireTimeout = 50 * time.Millisecond
	cfg.Sandbox.Timeout = 2 * time.Second
	cfg.Sandbox.CloseGrace = 500 * time.Millisecond
	for _, m := range mutate {
		m(&cfg)
	}

	metrics := monitoring.NewMetrics()
	sup, err := supervisor.New(cfg, nil, metrics)
	require.NoError(t, err)
	t.Cleanup(sup.Close)

	router := gin.New()
	NewHandlers(sup, metrics, nil).Register(router)
	return &testServer{router: router, sup: sup}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t)

	w, out := s.do(t, "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", out["status"])
	sup := out["supervisor"].(map[string]any)
	assert.EqualValues(t, 2, sup["capacity"])
	assert.Equal(t, "closed", sup["breaker"])
}

func TestMetricsExposition(t *testing.T) {
	s := setupTestServer(t)
	s.do(t, "POST", "/run", SpawnRequest{Source: "return 1"})

	w, _ := s.do(t, "GET", "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "scripthost_contexts_total")
}

func TestMethods(t *testing.T) {
	s := setupTestServer(t)

	w, out := s.do(t, "GET", "/methods", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var names []string
	for _, m := range out["methods"].([]any) {
		names = append(names, m.(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "echo")
	assert.Contains(t, names, "hash.digest")
}

func TestRun(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name       string
		req        SpawnRequest
		wantStatus int
		check      func(t *testing.T, out map[string]any)
	}{
		{
			name:       "value",
			req:        SpawnRequest{Source: `console.log("hi"); return {sum: 40 + 2}`},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, "completed", out["status"])
				assert.EqualValues(t, 42, out["value"].(map[string]any)["sum"])
				console := out["console"].([]any)
				require.Len(t, console, 1)
				assert.Equal(t, "hi", console[0].(map[string]any)["message"])
			},
		},
		{
			name:       "fault with trace",
			req:        SpawnRequest{Source: "const x = 1;\nthrow new Error(\"boom\")"},
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, "failed", out["status"])
				assert.Contains(t, out["error"], "boom")
				assert.Contains(t, out["trace"], ":2:")
			},
		},
		{
			name:       "timeout",
			req:        SpawnRequest{Source: "while (true) {}", TimeoutMS: 50},
			wantStatus: http.StatusGatewayTimeout,
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, "timeout", out["status"])
			},
		},
		{
			name:       "missing source",
			req:        SpawnRequest{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative timeout",
			req:        SpawnRequest{Source: "return 1", TimeoutMS: -1},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, out := s.do(t, "POST", "/run", tt.req)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.check != nil {
				tt.check(t, out)
			}
		})
	}

	assert.Empty(t, s.sup.List(), "run closes its context")
}

func TestContextLifecycle(t *testing.T) {
	s := setupTestServer(t)

	w, out := s.do(t, "POST", "/contexts", SpawnRequest{Source: `
onRequest(req => ({doubled: req.payload * 2}));
const msg = await receive();
send({echo: msg});
return "ready"`})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := out["id"].(string)

	w, out = s.do(t, "GET", "/contexts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, out["count"])

	w, out = s.do(t, "POST", "/contexts/"+id+"/calls", CallRequest{Payload: 21, TimeoutMS: 1000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 42, out["data"].(map[string]any)["doubled"])

	w, _ = s.do(t, "POST", "/contexts/"+id+"/messages", MessageRequest{Payload: "ping"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w, out = s.do(t, "GET", "/contexts/"+id+"/messages?wait_ms=1000", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]any{"echo": "ping"}, out["payload"])

	w, _ = s.do(t, "GET", "/contexts/"+id+"/messages?wait_ms=10", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Eventually(t, func() bool {
		_, out := s.do(t, "GET", "/contexts/"+id, nil)
		return out["status"] == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	w, out = s.do(t, "DELETE", "/contexts/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["live"])

	w, _ = s.do(t, "GET", "/contexts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancel(t *testing.T) {
	s := setupTestServer(t)

	_, out := s.do(t, "POST", "/contexts", SpawnRequest{Source: `await new Promise(() => {}); return 1`})
	id := out["id"].(string)

	w, out := s.do(t, "POST", "/contexts/"+id+"/cancel", CancelRequest{Reason: "user"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "canceled", out["status"])
	assert.Contains(t, out["error"], "user")
}

func TestCallWithoutHandler(t *testing.T) {
	s := setupTestServer(t)

	_, out := s.do(t, "POST", "/contexts", SpawnRequest{Source: `return 1`})
	id := out["id"].(string)

	w, _ := s.do(t, "POST", "/contexts/"+id+"/calls", CallRequest{Payload: 1, TimeoutMS: 100})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestNotFound(t *testing.T) {
	s := setupTestServer(t)

	for _, path := range []string{"/contexts/ctx_missing", "/contexts/ctx_missing/messages"} {
		w, out := s.do(t, "GET", path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.NotEmpty(t, out["error"])
	}
}

func TestCapacityExhausted(t *testing.T) {
	s := setupTestServer(t, func(cfg *config.Config) { cfg.Sandbox.MaxContexts = 1 })

	w, _ := s.do(t, "POST", "/contexts", SpawnRequest{Source: `return 1`})
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = s.do(t, "POST", "/contexts", SpawnRequest{Source: `return 2`})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestValidatePayloadDepth(t *testing.T) {
	var deep any = "leaf"
	for i := 0; i < MaxPayloadDepth+2; i++ {
		deep = []any{deep}
	}

	assert.NoError(t, ValidatePayloadDepth(map[string]any{"a": []any{1, 2}}, MaxPayloadDepth))
	assert.Error(t, ValidatePayloadDepth(deep, MaxPayloadDepth))
}

func TestValidateTimeout(t *testing.T) {
	d, err := ValidateTimeout(250)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = ValidateTimeout(-1)
	assert.Error(t, err)
	_, err = ValidateTimeout(int64(MaxTimeout/time.Millisecond) + 1)
	assert.Error(t, err)
}

func TestValidateSource(t *testing.T) {
	assert.NoError(t, ValidateSource("return 1"))
	assert.Error(t, ValidateSource(strings.Repeat("x", MaxSourceSize+1)))
}
