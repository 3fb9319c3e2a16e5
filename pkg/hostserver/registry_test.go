package hostserver

import (
	"testing"

	"github.com/cuemby/fdbus/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterHostIssuesToken(t *testing.T) {
	tm := security.NewTokenManager()
	r := NewRegistry(tm)

	rec, err := r.RegisterHost("host-a", "10.0.0.1", "tcp://10.0.0.1:60001")
	require.NoError(t, err)
	assert.True(t, rec.Ready)
	assert.True(t, rec.Authorized)
	require.Len(t, rec.Tokens, 1)
}

func TestRegistryHeartbeatResetsMissCount(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.RegisterHost("host-a", "10.0.0.1", "tcp://10.0.0.1:60001")
	require.NoError(t, err)

	r.Tick()
	r.Tick()
	rec, ok := r.Get("host-a")
	require.True(t, ok)
	assert.Equal(t, 2, rec.MissCount)

	r.HeartbeatOK("host-a")
	rec, ok = r.Get("host-a")
	require.True(t, ok)
	assert.Equal(t, 0, rec.MissCount)
}

func TestRegistryKicksOutAfterHBRetries(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.RegisterHost("host-a", "10.0.0.1", "tcp://10.0.0.1:60001")
	require.NoError(t, err)

	var kicked []string
	for i := 0; i < HBRetries; i++ {
		kicked = r.Tick()
	}
	assert.Equal(t, []string{"host-a"}, kicked)

	_, ok := r.Get("host-a")
	assert.False(t, ok)
}

func TestRegistryHostsSorted(t *testing.T) {
	r := NewRegistry(nil)
	_, _ = r.RegisterHost("host-z", "", "")
	_, _ = r.RegisterHost("host-a", "", "")

	hosts := r.Hosts()
	require.Len(t, hosts, 2)
	assert.Equal(t, "host-a", hosts[0].Name)
	assert.Equal(t, "host-z", hosts[1].Name)
}
