package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu        sync.Mutex
	requests  []*message.Message
	online    int
	offline   int
	onRequest func(sess *Session, msg *message.Message)
}

func (d *recordingDispatcher) DispatchRequest(sess *Session, msg *message.Message) {
	d.mu.Lock()
	d.requests = append(d.requests, msg)
	d.mu.Unlock()
	if d.onRequest != nil {
		d.onRequest(sess, msg)
	}
}
func (d *recordingDispatcher) DispatchBroadcast(sess *Session, msg *message.Message) {}
func (d *recordingDispatcher) DispatchSideband(sess *Session, msg *message.Message)  {}
func (d *recordingDispatcher) NotifyOnline(sess *Session, isFirst bool) {
	d.mu.Lock()
	d.online++
	d.mu.Unlock()
}
func (d *recordingDispatcher) NotifyOffline(sess *Session, isLast bool) {
	d.mu.Lock()
	d.offline++
	d.mu.Unlock()
}
func (d *recordingDispatcher) UnsubscribeSession(sess *Session) {}

func (d *recordingDispatcher) requestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func (d *recordingDispatcher) onlineCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}

func newSerialAllocator() func() fdtypes.SessionID {
	var n uint32
	return func() fdtypes.SessionID {
		n++
		return fdtypes.SessionID(n)
	}
}

func TestServerAndClientSocketExchangeFrame(t *testing.T) {
	c := fdctx.New()
	c.Start()
	defer c.Destroy()

	sockPath := filepath.Join(t.TempDir(), "fdb-test.sock")
	_ = os.Remove(sockPath)
	url, err := ParseURL("ipc://" + sockPath)
	require.NoError(t, err)

	serverDisp := &recordingDispatcher{}
	srv, err := NewServerSocket(c, 1, 0, url, serverDisp, newSerialAllocator())
	require.NoError(t, err)
	defer srv.Close()

	clientDisp := &recordingDispatcher{}
	cli, err := NewClientSocket(c, 2, 1, url, clientDisp, newSerialAllocator())
	require.NoError(t, err)
	defer cli.Close()

	require.Eventually(t, func() bool {
		return serverDisp.onlineCount() == 1 && clientDisp.onlineCount() == 1
	}, time.Second, 5*time.Millisecond)

	cli.mu.Lock()
	var clientSess *Session
	for _, s := range cli.sessions {
		clientSess = s
	}
	cli.mu.Unlock()
	require.NotNil(t, clientSess)

	msg := message.NewRequest(fdtypes.MainObjectID, 42, []byte("hello"))
	msg.Serial = clientSess.NextSerial()
	require.NoError(t, clientSess.Send(msg))

	require.Eventually(t, func() bool {
		return serverDisp.requestCount() == 1
	}, time.Second, 5*time.Millisecond)

	got := serverDisp.requests[0]
	assert.Equal(t, uint32(42), got.Code)
	assert.Equal(t, []byte("hello"), got.Payload)
}

func TestClientSocketCloseTerminatesPendingWithPeerVanish(t *testing.T) {
	c := fdctx.New()
	c.Start()
	defer c.Destroy()

	sockPath := filepath.Join(t.TempDir(), fmt.Sprintf("fdb-test-%d.sock", time.Now().UnixNano()%1e9))
	url, err := ParseURL("ipc://" + sockPath)
	require.NoError(t, err)

	serverDisp := &recordingDispatcher{}
	srv, err := NewServerSocket(c, 1, 0, url, serverDisp, newSerialAllocator())
	require.NoError(t, err)
	defer srv.Close()

	clientDisp := &recordingDispatcher{}
	cli, err := NewClientSocket(c, 2, 1, url, clientDisp, newSerialAllocator())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return clientDisp.onlineCount() == 1
	}, time.Second, 5*time.Millisecond)

	cli.mu.Lock()
	var sess *Session
	for _, s := range cli.sessions {
		sess = s
	}
	cli.mu.Unlock()
	require.NotNil(t, sess)

	msg := message.NewRequest(fdtypes.MainObjectID, 1, nil)
	msg.Serial = sess.NextSerial()
	sess.RegisterPending(msg.Serial, msg, 0)

	require.NoError(t, cli.Close())

	require.Eventually(t, msg.Terminated, time.Second, 5*time.Millisecond)
	_, status, _, _ := msg.Result()
	assert.Equal(t, fdtypes.StatusPeerVanish, status)
}

func firstSession(c *ClientSocket) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		return s
	}
	return nil
}

func TestClientSocketReconnectsAfterDropAndResolvesPendingWithPeerVanish(t *testing.T) {
	c := fdctx.New()
	c.Start()
	defer c.Destroy()

	sockPath := filepath.Join(t.TempDir(), fmt.Sprintf("fdb-test-%d.sock", time.Now().UnixNano()%1e9))
	url, err := ParseURL("ipc://" + sockPath)
	require.NoError(t, err)

	serverDisp := &recordingDispatcher{}
	srv, err := NewServerSocket(c, 1, 0, url, serverDisp, newSerialAllocator())
	require.NoError(t, err)
	defer srv.Close()

	clientDisp := &recordingDispatcher{}
	cli, err := NewClientSocket(c, 2, 1, url, clientDisp, newSerialAllocator())
	require.NoError(t, err)
	defer cli.Close()
	cli.EnableReconnect(5, 10*time.Millisecond)

	require.Eventually(t, func() bool { return clientDisp.onlineCount() == 1 }, time.Second, 5*time.Millisecond)

	deadSess := firstSession(cli)
	require.NotNil(t, deadSess)
	msg := message.NewRequest(fdtypes.MainObjectID, 1, nil)
	msg.Serial = deadSess.NextSerial()
	deadSess.RegisterPending(msg.Serial, msg, 0)

	deadSess.conn.Close() // simulate a transport-level drop, not an explicit Close

	require.Eventually(t, func() bool { return clientDisp.onlineCount() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, msg.Terminated, time.Second, 5*time.Millisecond)
	_, status, _, _ := msg.Result()
	assert.Equal(t, fdtypes.StatusPeerVanish, status)

	newSess := firstSession(cli)
	require.NotNil(t, newSess)
	assert.NotSame(t, deadSess, newSess)
}

func TestClientSocketGivesUpAfterExhaustingReconnectAttempts(t *testing.T) {
	c := fdctx.New()
	c.Start()
	defer c.Destroy()

	sockPath := filepath.Join(t.TempDir(), fmt.Sprintf("fdb-test-%d.sock", time.Now().UnixNano()%1e9))
	url, err := ParseURL("ipc://" + sockPath)
	require.NoError(t, err)

	serverDisp := &recordingDispatcher{}
	srv, err := NewServerSocket(c, 1, 0, url, serverDisp, newSerialAllocator())
	require.NoError(t, err)

	clientDisp := &recordingDispatcher{}
	cli, err := NewClientSocket(c, 2, 1, url, clientDisp, newSerialAllocator())
	require.NoError(t, err)
	defer cli.Close()
	cli.EnableReconnect(2, 5*time.Millisecond)

	require.Eventually(t, func() bool { return clientDisp.onlineCount() == 1 }, time.Second, 5*time.Millisecond)

	deadSess := firstSession(cli)
	require.NotNil(t, deadSess)
	msg := message.NewRequest(fdtypes.MainObjectID, 1, nil)
	msg.Serial = deadSess.NextSerial()
	deadSess.RegisterPending(msg.Serial, msg, 0)

	require.NoError(t, srv.Close()) // so every reconnect attempt fails
	deadSess.conn.Close()

	require.Eventually(t, msg.Terminated, 2*time.Second, 5*time.Millisecond)
	_, status, _, _ := msg.Result()
	assert.Equal(t, fdtypes.StatusNonExist, status)
}
