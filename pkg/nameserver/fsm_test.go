package nameserver

import (
	"testing"

	"github.com/cuemby/fdbus/pkg/transport"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSMApplyRegisterAndUnregister(t *testing.T) {
	registry := NewRegistry()
	fsm := NewFSM(registry)
	u, err := transport.ParseURL("ipc:///tmp/fdb-ipc3")
	require.NoError(t, err)

	regCmd, err := EncodeRegister("org.example.svc", []transport.URL{u})
	require.NoError(t, err)

	res := fsm.Apply(&raft.Log{Data: regCmd})
	assert.Nil(t, res)

	urls, ok := registry.Query("org.example.svc")
	require.True(t, ok)
	assert.Equal(t, []string{u.String()}, urls)

	unregCmd, err := EncodeUnregister("org.example.svc")
	require.NoError(t, err)
	res = fsm.Apply(&raft.Log{Data: unregCmd})
	assert.Nil(t, res)

	_, ok = registry.Query("org.example.svc")
	assert.False(t, ok)
}

func TestFSMApplyUnknownCommand(t *testing.T) {
	registry := NewRegistry()
	fsm := NewFSM(registry)
	res := fsm.Apply(&raft.Log{Data: []byte(`{"op":"bogus","data":{}}`)})
	assert.Error(t, res.(error))
}

func TestFSMSnapshotRestore(t *testing.T) {
	registry := NewRegistry()
	fsm := NewFSM(registry)
	u, err := transport.ParseURL("tcp://127.0.0.1:60030")
	require.NoError(t, err)
	cmd, err := EncodeRegister("org.example.snap", []transport.URL{u})
	require.NoError(t, err)
	require.Nil(t, fsm.Apply(&raft.Log{Data: cmd}))

	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	sink := newFakeSnapshotSink()
	require.NoError(t, snap.Persist(sink))

	registry2 := NewRegistry()
	fsm2 := NewFSM(registry2)
	require.NoError(t, fsm2.Restore(sink.reader()))

	urls, ok := registry2.Query("org.example.snap")
	require.True(t, ok)
	assert.Equal(t, []string{u.String()}, urls)
}
