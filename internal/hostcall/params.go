package hostcall

import (
	"encoding/base64"
	"fmt"
	"math"
)

// Params holds the fields of a request payload
type Params map[string]any

func asParams(payload any) (Params, bool) {
	switch p := payload.(type) {
	case Params:
		return p, true
	case map[string]any:
		return Params(p), true
	default:
		return nil, false
	}
}

// String returns a required string parameter
func (p Params) String(key string) (string, error) {
	s, ok := p[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidParams, key)
	}
	return s, nil
}

// StringOr returns an optional string parameter
func (p Params) StringOr(key, def string) string {
	if s, ok := p[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Bool returns an optional boolean parameter
func (p Params) Bool(key string, def bool) bool {
	if b, ok := p[key].(bool); ok {
		return b
	}
	return def
}

// Float returns a required numeric parameter
func (p Params) Float(key string) (float64, error) {
	f, ok := toFloat(p[key])
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidParams, key)
	}
	return f, nil
}

// Numbers returns a required array of numbers
func (p Params) Numbers(key string) ([]float64, error) {
	switch v := p[key].(type) {
	case []float64:
		return append([]float64(nil), v...), nil
	case []any:
		out := make([]float64, len(v))
		for i, item := range v {
			f, ok := toFloat(item)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is not a number", ErrInvalidParams, key, i)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be an array of numbers", ErrInvalidParams, key)
	}
}

// StringMap returns an optional object of string values
func (p Params) StringMap(key string) (map[string]string, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidParams, key)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s must be a string", ErrInvalidParams, key, k)
		}
		out[k] = s
	}
	return out, nil
}

// Bytes returns a required binary parameter. Accepts raw bytes, anything
// exposing Bytes() (script ArrayBuffers), arrays of byte values and base64
// strings.
func (p Params) Bytes(key string) ([]byte, error) {
	switch v := p[key].(type) {
	case []byte:
		return v, nil
	case interface{ Bytes() []byte }:
		return v.Bytes(), nil
	case string:
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not base64: %v", ErrInvalidParams, key, err)
		}
		return b, nil
	case []any:
		out := make([]byte, len(v))
		for i, item := range v {
			f, ok := toFloat(item)
			if !ok || f < 0 || f > 255 || f != math.Trunc(f) {
				return nil, fmt.Errorf("%w: %s[%d] is not a byte", ErrInvalidParams, key, i)
			}
			out[i] = byte(f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be bytes or base64", ErrInvalidParams, key)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
