package object

import (
	"testing"

	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCacheUpdateSuppressesUnchangedBytes(t *testing.T) {
	c := NewEventCache()
	code := fdtypes.MakeEventCode(0x10, 1)

	assert.True(t, c.Update(code, "", []byte("v1"), false, false))
	assert.False(t, c.Update(code, "", []byte("v1"), false, false))

	got, ok := c.Get(code, "")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)
}

func TestEventCacheUpdateAlwaysUpdateBypassesSuppression(t *testing.T) {
	c := NewEventCache()
	code := fdtypes.MakeEventCode(0x10, 1)

	c.Update(code, "", []byte("v1"), false, false)
	assert.True(t, c.Update(code, "", []byte("v1"), true, false))
}

func TestEventCacheUpdateForceUpdateBypassesSuppression(t *testing.T) {
	c := NewEventCache()
	code := fdtypes.MakeEventCode(0x10, 1)

	c.Update(code, "", []byte("v1"), false, false)
	assert.True(t, c.Update(code, "", []byte("v1"), false, true))
}

func TestEventCacheGetMissing(t *testing.T) {
	c := NewEventCache()
	_, ok := c.Get(fdtypes.MakeEventCode(0x10, 1), "")
	assert.False(t, ok)
}

func TestEventCacheReplayInInsertionOrder(t *testing.T) {
	c := NewEventCache()
	codeA := fdtypes.MakeEventCode(0x10, 1)
	codeB := fdtypes.MakeEventCode(0x10, 2)

	c.Update(codeB, "", []byte("b"), false, false)
	c.Update(codeA, "", []byte("a"), false, false)

	items := c.Replay(func(code fdtypes.EventCode, topic string) bool { return true })
	require.Len(t, items, 2)
	assert.Equal(t, codeB, items[0].Code)
	assert.Equal(t, codeA, items[1].Code)
}

func TestEventCacheReplayFiltersByMatcher(t *testing.T) {
	c := NewEventCache()
	codeA := fdtypes.MakeEventCode(0x10, 1)
	codeB := fdtypes.MakeEventCode(0x20, 1)
	c.Update(codeA, "", []byte("a"), false, false)
	c.Update(codeB, "", []byte("b"), false, false)

	items := c.Replay(func(code fdtypes.EventCode, topic string) bool { return code == codeA })
	require.Len(t, items, 1)
	assert.Equal(t, []byte("a"), items[0].Bytes)
}
