package message

import (
	"testing"
	"time"

	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageReplyTerminatesOnce(t *testing.T) {
	m := NewRequest(fdtypes.MainObjectID, 1, []byte("req"))
	assert.False(t, m.Terminated())

	assert.True(t, m.Reply([]byte("ok")))
	assert.True(t, m.Terminated())
	assert.False(t, m.Reply([]byte("again")))

	payload, status, _, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, []byte("ok"), payload)
	assert.False(t, status.IsError())
}

func TestMessageTerminateStatusSetsErrorFlag(t *testing.T) {
	m := NewRequest(fdtypes.MainObjectID, 1, nil)
	assert.True(t, m.TerminateStatus(fdtypes.StatusNotImplemented, "no handler", false))

	_, status, desc, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, fdtypes.StatusNotImplemented, status)
	assert.Equal(t, "no handler", desc)
	assert.True(t, m.IsError())
	assert.True(t, m.IsStatus())
}

func TestMessageTerminateTimeout(t *testing.T) {
	m := NewRequest(fdtypes.MainObjectID, 1, nil)
	assert.True(t, m.TerminateTimeout())

	_, status, _, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, fdtypes.StatusTimeout, status)
	assert.True(t, m.IsError())
}

func TestMessageWaitUnblocksOnDone(t *testing.T) {
	m := NewRequest(fdtypes.MainObjectID, 1, nil)
	done := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Reply(nil)
		close(done)
	}()

	assert.True(t, m.Wait(time.Second))
	<-done
}

func TestMessageWaitTimesOut(t *testing.T) {
	m := NewRequest(fdtypes.MainObjectID, 1, nil)
	assert.False(t, m.Wait(10*time.Millisecond))
}

func TestMessageOnDoneCalledExactlyOnce(t *testing.T) {
	m := NewRequest(fdtypes.MainObjectID, 1, nil)
	var calls int
	m.OnDone = func(*Message) { calls++ }

	m.Reply(nil)
	m.TerminateStatus(fdtypes.StatusTimeout, "late", false)

	assert.Equal(t, 1, calls)
}

func TestMessageExpectsReply(t *testing.T) {
	m := NewRequest(fdtypes.MainObjectID, 1, nil)
	assert.True(t, m.ExpectsReply())

	m.Flags |= fdtypes.FlagNoReplyExpected
	assert.False(t, m.ExpectsReply())
}
