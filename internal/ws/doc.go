// Package ws streams an execution context over a WebSocket.
//
// Frames use the wire encoding in both directions.
//
// Client → Server:
//   - {requestId, data}: call the context's request handler
//   - {type: "cancel", reason}: cancel the running evaluation
//   - {type: "closing"}: close the context
//   - any other JSON value: a plain message for the context
//
// Server → Client:
//   - plain messages sent by the context
//   - {requestId, data} or {requestId, errorMessage}: call responses
//   - {type: "result"} or {type: "fault"}: the settled evaluation
//   - {type: "closing"}: the context is gone, the socket closes next
//   - {type: "error", message}: a rejected client frame
//
// Example Usage:
//
//	handler := ws.NewHandler(sup, metrics, logger)
//	router.GET("/contexts/:id/stream", handler.HandleConnection)
package ws
