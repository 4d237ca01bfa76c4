package wire

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var ErrEmptyFrame = errors.New("empty frame")

// Encode renders a frame or a plain payload as JSON.
func Encode(payload any) ([]byte, error) {
	var v any
	switch p := payload.(type) {
	case Request:
		v = map[string]any{"requestId": p.RequestID, "data": p.Data}
	case Response:
		if p.Failed() {
			v = map[string]any{"requestId": p.RequestID, "errorMessage": p.ErrorMessage}
		} else {
			v = map[string]any{"requestId": p.RequestID, "data": p.Data}
		}
	case Fault:
		m := map[string]any{"type": TypeFault, "message": p.Message}
		if p.ID != "" {
			m["id"] = p.ID
		}
		if p.Trace != "" {
			m["trace"] = p.Trace
		}
		v = m
	case Closing:
		v = map[string]any{"type": TypeClosing}
	case Eval:
		v = map[string]any{"type": TypeEval, "id": p.ID, "source": p.Source}
	case Result:
		v = map[string]any{"type": TypeResult, "id": p.ID, "data": p.Data}
	case Cancel:
		m := map[string]any{"type": TypeCancel}
		if p.Reason != "" {
			m["reason"] = p.Reason
		}
		v = m
	default:
		v = payload
	}

	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// Decode parses JSON into a frame type when the shape is recognised and
// into a plain value otherwise. {requestId, data} always decodes as a
// Request; see the package comment.
func Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	var v any
	if err := sonic.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	m, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}

	if typ, ok := m["type"].(string); ok {
		switch typ {
		case TypeFault:
			return Fault{ID: str(m, "id"), Message: str(m, "message"), Trace: str(m, "trace")}, nil
		case TypeClosing:
			return Closing{}, nil
		case TypeEval:
			return Eval{ID: str(m, "id"), Source: str(m, "source")}, nil
		case TypeResult:
			return Result{ID: str(m, "id"), Data: m["data"]}, nil
		case TypeCancel:
			return Cancel{Reason: str(m, "reason")}, nil
		}
	}

	if id, ok := m["requestId"].(string); ok && id != "" {
		if raw, ok := m["errorMessage"]; ok {
			msg, _ := raw.(string)
			if msg == "" {
				msg = UnknownError
			}
			return Response{RequestID: id, ErrorMessage: msg}, nil
		}
		return Request{RequestID: id, Data: m["data"]}, nil
	}

	return m, nil
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
