package http

import (
	"fmt"
	"time"
)

// Request limits
const (
	MaxBodySize     = 1 * 1024 * 1024 // 1MB - maximum request body
	MaxSourceSize   = 512 * 1024      // 512KB - script source
	MaxPayloadDepth = 32              // nesting of message and call payloads
	MaxTimeout      = 10 * time.Minute
)

// ValidateSource checks script source limits
func ValidateSource(source string) error {
	if len(source) > MaxSourceSize {
		return fmt.Errorf("source size %d bytes exceeds maximum %d bytes", len(source), MaxSourceSize)
	}
	return nil
}

// ValidateTimeout converts a millisecond timeout, zero meaning the default
func ValidateTimeout(ms int64) (time.Duration, error) {
	if ms < 0 {
		return 0, fmt.Errorf("timeout_ms must not be negative")
	}
	d := time.Duration(ms) * time.Millisecond
	if d > MaxTimeout {
		return 0, fmt.Errorf("timeout %s exceeds maximum %s", d, MaxTimeout)
	}
	return d, nil
}

// ValidatePayloadDepth checks that payload nesting is within limits
func ValidatePayloadDepth(data any, maxDepth int) error {
	return checkDepth(data, 0, maxDepth)
}

func checkDepth(data any, currentDepth int, maxDepth int) error {
	if currentDepth > maxDepth {
		return fmt.Errorf("payload nesting depth %d exceeds maximum %d", currentDepth, maxDepth)
	}

	switch v := data.(type) {
	case map[string]any:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	case []any:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}
