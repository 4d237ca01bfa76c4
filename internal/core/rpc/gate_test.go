package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func reqs(ids ...string) []Request {
	out := make([]Request, len(ids))
	for i, id := range ids {
		out[i] = Request{ID: id}
	}
	return out
}

func TestGateQueuesUntilInitializedWithHandler(t *testing.T) {
	var g Gate

	assert.False(t, g.Admit(Request{ID: "a"}))
	assert.Nil(t, g.SetHandler(true), "handler alone does not flush")
	assert.False(t, g.Admit(Request{ID: "b"}))
	assert.Equal(t, GateUninitialized, g.State())

	assert.Equal(t, reqs("a", "b"), g.Initialize())
	assert.Equal(t, GateFlushed, g.State())
	assert.True(t, g.Admit(Request{ID: "c"}))
	assert.Zero(t, g.Pending())
}

func TestGateFlushesOnLateHandler(t *testing.T) {
	var g Gate

	g.Admit(Request{ID: "a"})
	assert.Nil(t, g.Initialize())
	assert.Equal(t, GateInitialized, g.State())

	g.Admit(Request{ID: "b"})
	assert.Equal(t, reqs("a", "b"), g.SetHandler(true))
	assert.Nil(t, g.SetHandler(true), "queue drains once")
}

func TestGateInitializeFiresOnce(t *testing.T) {
	var g Gate
	g.SetHandler(true)

	g.Initialize()
	g.Admit(Request{ID: "x"})
	assert.Nil(t, g.Initialize())
	assert.Equal(t, GateFlushed, g.State())
}

func TestGateHandlerRemovalRearmsQueue(t *testing.T) {
	var g Gate
	g.SetHandler(true)
	g.Initialize()

	g.SetHandler(false)
	assert.Equal(t, GateInitialized, g.State())
	assert.False(t, g.Admit(Request{ID: "late"}))
	assert.Equal(t, reqs("late"), g.SetHandler(true))
}

func TestGateStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", GateUninitialized.String())
	assert.Equal(t, "initialized", GateInitialized.String())
	assert.Equal(t, "flushed", GateFlushed.String())
	assert.Equal(t, "unknown", GateState(42).String())
}
