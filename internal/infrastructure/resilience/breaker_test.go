package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tripAfter(n uint32) func(Counts) bool {
	return func(c Counts) bool { return c.ConsecutiveFailures >= n }
}

func fail() (any, error) { return nil, errors.New("failed") }
func succeed() (any, error) { return "ok", nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		requests []bool // true = success, false = failure
		want     State
	}{
		{
			name:     "stays closed on successes",
			settings: Settings{Timeout: time.Minute},
			requests: []bool{true, true, true},
			want:     StateClosed,
		},
		{
			name:     "opens after consecutive failures",
			settings: Settings{Timeout: time.Minute, ReadyToTrip: tripAfter(3)},
			requests: []bool{false, false, false},
			want:     StateOpen,
		},
		{
			name:     "success resets the streak",
			settings: Settings{Timeout: time.Minute, ReadyToTrip: tripAfter(3)},
			requests: []bool{false, false, true, false, false},
			want:     StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("test", tt.settings)
			for _, ok := range tt.requests {
				if ok {
					_, _ = b.Execute(succeed)
				} else {
					_, _ = b.Execute(fail)
				}
			}
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	b := New("test", Settings{Interval: time.Minute, Timeout: time.Minute})

	_, err := b.Execute(succeed)
	require.NoError(t, err)
	_, err = b.Execute(fail)
	assert.Error(t, err)

	counts := b.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Zero(t, counts.ConsecutiveSuccesses)
}

func TestBreakerOpenRejects(t *testing.T) {
	b := New("test", Settings{Timeout: time.Minute, ReadyToTrip: tripAfter(2)})
	_, _ = b.Execute(fail)
	_, _ = b.Execute(fail)

	_, err := b.Execute(succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	_, err = b.Allow()
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	var transitions []string
	b := New("test", Settings{
		MaxRequests: 2,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: tripAfter(2),
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	_, _ = b.Execute(fail)
	_, _ = b.Execute(fail)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	done1, err := b.Allow()
	require.NoError(t, err)
	done2, err := b.Allow()
	require.NoError(t, err)
	_, err = b.Allow()
	assert.ErrorIs(t, err, ErrTooManyRequests)

	done1(true)
	done2(true)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerAllowReportsLater(t *testing.T) {
	b := New("test", Settings{Timeout: time.Minute, ReadyToTrip: tripAfter(2)})

	d1, err := b.Allow()
	require.NoError(t, err)
	d2, err := b.Allow()
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State(), "admission alone does not trip")

	d1(false)
	d1(false) // recorded once
	assert.Equal(t, StateClosed, b.State())
	d2(false)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerIgnoresStaleOutcomes(t *testing.T) {
	b := New("test", Settings{Timeout: time.Minute, ReadyToTrip: tripAfter(1)})

	stale, err := b.Allow()
	require.NoError(t, err)
	_, _ = b.Execute(fail)
	require.Equal(t, StateOpen, b.State())

	stale(true)
	assert.Equal(t, StateOpen, b.State())
	assert.Zero(t, b.Counts().TotalSuccesses)
}

func TestBreakerExecuteRecordsPanic(t *testing.T) {
	b := New("test", Settings{Timeout: time.Minute, ReadyToTrip: tripAfter(1)})

	assert.Panics(t, func() {
		_, _ = b.Execute(func() (any, error) { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
