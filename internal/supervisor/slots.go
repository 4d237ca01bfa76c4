package supervisor

import (
	"context"
	"time"
)

// slots bounds the number of live execution contexts
type slots struct {
	tokens chan struct{}
	size   int
}

func newSlots(size int) *slots {
	if size <= 0 {
		size = 4
	}
	s := &slots{tokens: make(chan struct{}, size), size: size}
	for i := 0; i < size; i++ {
		s.tokens <- struct{}{}
	}
	return s
}

// acquire takes a slot, waiting at most timeout
func (s *slots) acquire(ctx context.Context, timeout time.Duration) error {
	select {
	case <-s.tokens:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrAtCapacity
	}
}

func (s *slots) release() {
	select {
	case s.tokens <- struct{}{}:
	default:
	}
}

func (s *slots) available() int {
	return len(s.tokens)
}
