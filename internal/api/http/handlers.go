// Package http exposes execution contexts over a JSON HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/api/middleware"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/channel"
	"github.com/GriffinCanCode/scripthost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scripthost/backend/internal/supervisor"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers contains HTTP request handlers
type Handlers struct {
	sup     *supervisor.Supervisor
	metrics *monitoring.Metrics
	log     *zap.Logger
	started time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(sup *supervisor.Supervisor, metrics *monitoring.Metrics, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		sup:     sup,
		metrics: metrics,
		log:     log.Named("http"),
		started: time.Now(),
	}
}

// SpawnRequest starts an execution context
type SpawnRequest struct {
	Source    string `json:"source" binding:"required"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// Transfer is a transferable handle; Data travels base64 encoded
type Transfer struct {
	ID          string `json:"id"`
	Data        []byte `json:"data"`
	ContentType string `json:"content_type,omitempty"`
}

// MessageRequest posts a plain message to a context
type MessageRequest struct {
	Payload   any        `json:"payload"`
	Transfers []Transfer `json:"transfers,omitempty"`
}

// CallRequest calls the context's request handler
type CallRequest struct {
	Payload   any   `json:"payload"`
	TimeoutMS int64 `json:"timeout_ms"`
}

// CancelRequest cancels a running evaluation
type CancelRequest struct {
	Reason string `json:"reason"`
}

// Health returns server health status
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"uptime":     time.Since(h.started).String(),
		"supervisor": h.sup.Stats(),
		"metrics":    h.metrics.Snapshot(),
	})
}

// Metrics serves the Prometheus exposition
func (h *Handlers) Metrics(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Methods lists the host methods a context can request
func (h *Handlers) Methods(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"methods": h.sup.Registry().List()})
}

// Run evaluates source in a fresh context, waits for the outcome and closes
// the context.
func (h *Handlers) Run(c *gin.Context) {
	var req SpawnRequest
	if !h.bind(c, &req) {
		return
	}
	opts, err := spawnOptions(req)
	if err != nil {
		h.fail(c, err)
		return
	}

	sess, err := h.sup.Spawn(c.Request.Context(), req.Source, opts...)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer sess.Close()

	value, err := sess.Wait(c.Request.Context())
	info := sess.Info()
	if err != nil {
		resp := gin.H{
			"id":      info.ID,
			"status":  info.Status,
			"error":   err.Error(),
			"console": info.Console,
		}
		if f, ok := sess.Fault(); ok {
			resp["trace"] = f.Trace
		}
		c.JSON(statusFor(err), resp)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      info.ID,
		"status":  info.Status,
		"value":   value,
		"console": info.Console,
	})
}

// Spawn starts a context that stays open until deleted
func (h *Handlers) Spawn(c *gin.Context) {
	var req SpawnRequest
	if !h.bind(c, &req) {
		return
	}
	opts, err := spawnOptions(req)
	if err != nil {
		h.fail(c, err)
		return
	}

	sess, err := h.sup.Spawn(c.Request.Context(), req.Source, opts...)
	if err != nil {
		h.fail(c, err)
		return
	}

	middleware.Logger(c, h.log).Info("context spawned", zap.String("context_id", sess.ID()))
	c.JSON(http.StatusCreated, sess.Info())
}

// List returns every live session
func (h *Handlers) List(c *gin.Context) {
	infos := h.sup.List()
	c.JSON(http.StatusOK, gin.H{"contexts": infos, "count": len(infos)})
}

// Get returns one session
func (h *Handlers) Get(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

// Close tears a context down
func (h *Handlers) Close(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sess.Close()
	c.JSON(http.StatusOK, sess.Info())
}

// Cancel aborts a running evaluation cooperatively
func (h *Handlers) Cancel(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req CancelRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}
	sess.Cancel(req.Reason)
	c.JSON(http.StatusOK, sess.Info())
}

// Send posts a plain message to the context
func (h *Handlers) Send(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req MessageRequest
	if !h.bind(c, &req) {
		return
	}
	if err := ValidatePayloadDepth(req.Payload, MaxPayloadDepth); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errValidation, err))
		return
	}

	transfers := make([]channel.Handle, 0, len(req.Transfers))
	for _, t := range req.Transfers {
		transfers = append(transfers, channel.Handle{ID: t.ID, Data: t.Data, ContentType: t.ContentType})
	}
	if err := sess.Send(req.Payload, transfers...); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"delivered": true})
}

// Receive returns the next plain message from the context, waiting up to
// wait_ms. No message in time answers 204.
func (h *Handlers) Receive(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var query struct {
		WaitMS int64 `form:"wait_ms"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errValidation, err))
		return
	}
	wait, err := ValidateTimeout(query.WaitMS)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errValidation, err))
		return
	}
	if wait == 0 {
		wait = time.Millisecond
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()
	msg, err := sess.Receive(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	transfers := make([]Transfer, 0, len(msg.Transfers))
	for _, t := range msg.Transfers {
		transfers = append(transfers, Transfer{ID: t.ID, Data: t.Data, ContentType: t.ContentType})
	}
	c.JSON(http.StatusOK, gin.H{"payload": msg.Payload, "transfers": transfers})
}

// Call sends a request to the context's handler and returns its response
func (h *Handlers) Call(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req CallRequest
	if !h.bind(c, &req) {
		return
	}
	if err := ValidatePayloadDepth(req.Payload, MaxPayloadDepth); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errValidation, err))
		return
	}
	timeout, err := ValidateTimeout(req.TimeoutMS)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errValidation, err))
		return
	}

	ctx := c.Request.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	value, err := sess.Call(ctx, req.Payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": value})
}

func (h *Handlers) session(c *gin.Context) (*supervisor.Session, bool) {
	sess, err := h.sup.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return sess, true
}

func (h *Handlers) bind(c *gin.Context, req any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodySize)
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errValidation, err))
		return false
	}
	return true
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		middleware.Logger(c, h.log).Error("request failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func spawnOptions(req SpawnRequest) ([]supervisor.SpawnOption, error) {
	if err := ValidateSource(req.Source); err != nil {
		return nil, fmt.Errorf("%w: %v", errValidation, err)
	}
	timeout, err := ValidateTimeout(req.TimeoutMS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errValidation, err)
	}
	if timeout == 0 {
		return nil, nil
	}
	return []supervisor.SpawnOption{supervisor.WithTimeout(timeout)}, nil
}
