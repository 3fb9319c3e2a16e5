package nameserver

import (
	"testing"

	"github.com/cuemby/fdbus/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseURL(t *testing.T, s string) transport.URL {
	t.Helper()
	u, err := transport.ParseURL(s)
	require.NoError(t, err)
	return u
}

func TestRegistryAllocThenRegister(t *testing.T) {
	r := NewRegistry()
	u := mustParseURL(t, "ipc:///tmp/fdb-ipc0")

	descs := r.Alloc("org.example.echo", []transport.URL{u})
	require.Len(t, descs, 1)
	assert.False(t, descs[0].Bound)

	urls, err := r.Register("org.example.echo", []transport.URL{u})
	require.NoError(t, err)
	assert.Equal(t, []string{u.String()}, urls)
}

func TestRegistryRegisterWithoutPriorAlloc(t *testing.T) {
	r := NewRegistry()
	u := mustParseURL(t, "tcp://127.0.0.1:60010")

	urls, err := r.Register("org.example.direct", []transport.URL{u})
	require.NoError(t, err)
	assert.Equal(t, []string{u.String()}, urls)
}

func TestRegistryQueryUnknown(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Query("org.example.nope")
	assert.False(t, ok)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	u := mustParseURL(t, "ipc:///tmp/fdb-ipc1")
	_, err := r.Register("org.example.foo", []transport.URL{u})
	require.NoError(t, err)

	require.NoError(t, r.Unregister("org.example.foo"))
	_, ok := r.Query("org.example.foo")
	assert.False(t, ok)

	assert.Error(t, r.Unregister("org.example.foo"))
}

func TestRegistrySnapshotRestore(t *testing.T) {
	r := NewRegistry()
	u1 := mustParseURL(t, "ipc:///tmp/fdb-ipc2")
	u2 := mustParseURL(t, "tcp://127.0.0.1:60020")
	_, err := r.Register("org.example.a", []transport.URL{u1})
	require.NoError(t, err)
	_, err = r.Register("org.example.b", []transport.URL{u2})
	require.NoError(t, err)

	snap := r.Snapshot()

	r2 := NewRegistry()
	r2.Restore(snap)

	urls, ok := r2.Query("org.example.a")
	require.True(t, ok)
	assert.Equal(t, []string{u1.String()}, urls)

	urls, ok = r2.Query("org.example.b")
	require.True(t, ok)
	assert.Equal(t, []string{u2.String()}, urls)
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register("org.example.z", nil)
	_, _ = r.Register("org.example.a", nil)
	assert.Equal(t, []string{"org.example.a", "org.example.z"}, r.Names())
}
