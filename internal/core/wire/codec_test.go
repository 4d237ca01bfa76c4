package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClassification(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
	}{
		{
			name:  "request shape",
			input: `{"requestId":"req_1","data":{"n":1}}`,
			want:  Request{RequestID: "req_1", Data: map[string]any{"n": float64(1)}},
		},
		{
			name:  "error response",
			input: `{"requestId":"req_1","errorMessage":"boom"}`,
			want:  Response{RequestID: "req_1", ErrorMessage: "boom"},
		},
		{
			name:  "empty error message still fails",
			input: `{"requestId":"req_1","errorMessage":""}`,
			want:  Response{RequestID: "req_1", ErrorMessage: UnknownError},
		},
		{
			name:  "null error message still fails",
			input: `{"requestId":"req_1","errorMessage":null}`,
			want:  Response{RequestID: "req_1", ErrorMessage: UnknownError},
		},
		{
			name:  "fault",
			input: `{"type":"fault","message":"oops","trace":"at x"}`,
			want:  Fault{Message: "oops", Trace: "at x"},
		},
		{
			name:  "closing",
			input: `{"type":"closing"}`,
			want:  Closing{},
		},
		{
			name:  "cancel with reason",
			input: `{"type":"cancel","reason":"user"}`,
			want:  Cancel{Reason: "user"},
		},
		{
			name:  "plain object",
			input: `{"hello":"world"}`,
			want:  map[string]any{"hello": "world"},
		},
		{
			name:  "plain scalar",
			input: `42`,
			want:  float64(42),
		},
		{
			name:  "unknown type stays plain",
			input: `{"type":"custom"}`,
			want:  map[string]any{"type": "custom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeResponseShapes(t *testing.T) {
	data, err := Encode(Response{RequestID: "req_1", Data: "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"requestId":"req_1","data":"ok"}`, string(data))

	data, err = Encode(Response{RequestID: "req_1", ErrorMessage: "failed"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"requestId":"req_1","errorMessage":"failed"}`, string(data))
}

func TestEncodeFaultOmitsEmptyTrace(t *testing.T) {
	data, err := Encode(Fault{ID: "ctx_1", Message: "handler missing"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"fault","id":"ctx_1","message":"handler missing"}`, string(data))
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = Decode([]byte(`{not json`))
	assert.Error(t, err)
}
