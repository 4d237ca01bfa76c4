// Package wire defines the frames exchanged between a supervisor and an
// execution context and their JSON encoding.
//
// Requests and successful responses share the shape {requestId, data}.
// Only the receiver can tell them apart: an inbound {requestId, data} is a
// response iff the receiver has an outstanding call with that id. A frame
// carrying errorMessage is always a response.
package wire

// Frame type discriminators.
const (
	TypeFault   = "fault"
	TypeClosing = "closing"
	TypeEval    = "eval"
	TypeResult  = "result"
	TypeCancel  = "cancel"
)

// Request asks the peer to service a payload.
type Request struct {
	RequestID string
	Data      any
}

// UnknownError stands in for a failure that carried no message.
const UnknownError = "unknown error"

// Response answers exactly one Request. ErrorMessage is set on failure, in
// which case Data is nil. A failed response always has a non-empty
// message.
type Response struct {
	RequestID    string
	Data         any
	ErrorMessage string
}

// Failed reports whether the response carries an error.
func (r Response) Failed() bool {
	return r.ErrorMessage != ""
}

// Fault is the terminal out-of-band failure report of an execution context.
type Fault struct {
	ID      string
	Message string
	Trace   string
}

// Closing announces that the sender is releasing its end of the channel.
type Closing struct{}

// Eval hands a unit of source to an execution context.
type Eval struct {
	ID     string
	Source string
}

// Result carries the settled value of an evaluation.
type Result struct {
	ID   string
	Data any
}

// Cancel asks the execution context to abort cooperatively.
type Cancel struct {
	Reason string
}
