package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/core/wire"
	"github.com/GriffinCanCode/scripthost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scripthost/backend/internal/logging"
	"github.com/GriffinCanCode/scripthost/backend/internal/supervisor"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// MaxMessageSize bounds one inbound frame
	MaxMessageSize = 1 * 1024 * 1024
	writeWait      = 10 * time.Second
)

// Message types recorded in metrics
const (
	typeMessage  = "message"
	typeRequest  = "request"
	typeResponse = "response"
	typeResult   = "result"
	typeFault    = "fault"
	typeCancel   = "cancel"
	typeClosing  = "closing"
	typeError    = "error"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin policy is enforced by the CORS middleware
	},
}

// Handler bridges WebSocket clients to execution contexts
type Handler struct {
	sup     *supervisor.Supervisor
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(sup *supervisor.Supervisor, metrics *monitoring.Metrics, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{sup: sup, metrics: metrics, log: log.Named("ws")}
}

// stream serializes writes to one connection
type stream struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	metrics *monitoring.Metrics
}

func (s *stream) send(frame any, msgType string) error {
	data, err := wire.Encode(frame)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	s.metrics.RecordWSMessage("out", msgType)
	return nil
}

func (s *stream) sendError(msg string) error {
	return s.send(map[string]any{
		"type":      typeError,
		"message":   msg,
		"timestamp": time.Now().Unix(),
	}, typeError)
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "context closed"),
		time.Now().Add(writeWait))
}

// HandleConnection upgrades the request and streams the context named by
// the id parameter. A client disconnect leaves the context running.
func (h *Handler) HandleConnection(c *gin.Context) {
	sess, err := h.sup.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(MaxMessageSize)

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	log := logging.ForContext(h.log, sess.ID())
	log.Debug("stream attached")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &stream{conn: conn, metrics: h.metrics}
	go h.pump(ctx, sess, st, log)
	go h.watch(ctx, sess, st)
	h.read(ctx, sess, st, log)

	log.Debug("stream detached")
}

// pump forwards plain messages from the context
func (h *Handler) pump(ctx context.Context, sess *supervisor.Session, st *stream, log *zap.Logger) {
	for {
		msg, err := sess.Receive(ctx)
		if err != nil {
			return
		}
		if len(msg.Transfers) > 0 {
			log.Debug("transfers not carried on stream", zap.Int("count", len(msg.Transfers)))
		}
		if err := st.send(msg.Payload, typeMessage); err != nil {
			return
		}
	}
}

// watch emits the settled outcome, then a closing frame once the context
// is gone
func (h *Handler) watch(ctx context.Context, sess *supervisor.Session, st *stream) {
	select {
	case <-sess.Done():
	case <-ctx.Done():
		return
	}

	value, err := sess.Result()
	var fe *supervisor.FaultError
	switch {
	case err == nil:
		_ = st.send(wire.Result{ID: sess.ID(), Data: value}, typeResult)
	case errors.As(err, &fe):
		_ = st.send(wire.Fault{ID: fe.ID, Message: fe.Message, Trace: fe.Trace}, typeFault)
	case sess.Status() != supervisor.StatusClosed:
		_ = st.send(wire.Fault{ID: sess.ID(), Message: err.Error()}, typeFault)
	}

	select {
	case <-sess.Gone():
	case <-ctx.Done():
		return
	}
	_ = st.send(wire.Closing{}, typeClosing)
	st.close()
}

// read dispatches client frames until the connection ends
func (h *Handler) read(ctx context.Context, sess *supervisor.Session, st *stream, log *zap.Logger) {
	for {
		_, data, err := st.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		frame, err := wire.Decode(data)
		if err != nil {
			_ = st.sendError(err.Error())
			continue
		}

		switch f := frame.(type) {
		case wire.Request:
			h.metrics.RecordWSMessage("in", typeRequest)
			go func() {
				resp := wire.Response{RequestID: f.RequestID}
				v, err := sess.Call(ctx, f.Data)
				if err != nil {
					resp.ErrorMessage = err.Error()
					if resp.ErrorMessage == "" {
						resp.ErrorMessage = wire.UnknownError
					}
				} else {
					resp.Data = v
				}
				_ = st.send(resp, typeResponse)
			}()
		case wire.Cancel:
			h.metrics.RecordWSMessage("in", typeCancel)
			sess.Cancel(f.Reason)
		case wire.Closing:
			h.metrics.RecordWSMessage("in", typeClosing)
			go sess.Close()
		case wire.Response, wire.Fault, wire.Eval, wire.Result:
			h.metrics.RecordWSMessage("in", typeError)
			_ = st.sendError("unexpected frame from client")
		default:
			h.metrics.RecordWSMessage("in", typeMessage)
			if err := sess.Send(f); err != nil {
				_ = st.sendError(err.Error())
			}
		}
	}
}
