package object

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/cuemby/fdbus/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testURL(t *testing.T) transport.URL {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "fdb-object-test.sock")
	_ = os.Remove(sockPath)
	u, err := transport.ParseURL("ipc://" + sockPath)
	require.NoError(t, err)
	return u
}

func newConnectedPair(t *testing.T) (serverEp, clientEp *Endpoint, clientSess *transport.Session) {
	t.Helper()
	ctx := fdctx.New()
	ctx.Start()
	t.Cleanup(ctx.Destroy)

	url := testURL(t)

	var err error
	serverEp, err = NewEndpoint(ctx, "server", fdtypes.RoleServer)
	require.NoError(t, err)
	_, err = serverEp.Bind(url)
	require.NoError(t, err)

	clientEp, err = NewEndpoint(ctx, "client", fdtypes.RoleClient)
	require.NoError(t, err)
	_, err = clientEp.Connect(url)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return clientEp.SessionCount() == 1 && serverEp.SessionCount() == 1
	}, time.Second, 5*time.Millisecond)

	sess, ok := clientEp.PrimarySession()
	require.True(t, ok)
	return serverEp, clientEp, sess
}

func TestEndpointInvokeRoundTrip(t *testing.T) {
	serverEp, clientEp, clientSess := newConnectedPair(t)

	serverEp.MainObject().OnInvoke = func(obj *Object, sess *transport.Session, msg *message.Message) {
		msg.Reply([]byte("pong"))
	}

	payload, status, err := clientEp.MainObject().Invoke(clientSess, 1, []byte("ping"), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, fdtypes.StatusOK, status)
	assert.Equal(t, []byte("pong"), payload)
}

func TestEndpointInvokeObjectNotFoundStatus(t *testing.T) {
	_, clientEp, clientSess := newConnectedPair(t)

	unknown := fdtypes.MakeObjectID(99, 1)
	obj := NewObject(unknown, fdtypes.RoleClient, clientEp)
	_, status, err := obj.Invoke(clientSess, 1, nil, 2*time.Second)
	require.Error(t, err)
	assert.Equal(t, fdtypes.StatusObjectNotFound, status)
}

func TestEndpointInvokeNoHandlerReturnsNotImplemented(t *testing.T) {
	_, clientEp, clientSess := newConnectedPair(t)

	_, status, err := clientEp.MainObject().Invoke(clientSess, 1, nil, 2*time.Second)
	require.Error(t, err)
	assert.Equal(t, fdtypes.StatusNotImplemented, status)
}

func TestEndpointBroadcastSubscribeRoundTrip(t *testing.T) {
	serverEp, clientEp, clientSess := newConnectedPair(t)

	code := fdtypes.MakeEventCode(0x10, 1)
	received := make(chan []byte, 1)
	clientEp.MainObject().OnBroadcast = func(obj *Object, sess *transport.Session, msg *message.Message) {
		received <- msg.Payload
	}

	status, err := clientEp.MainObject().Subscribe(clientSess, []SubscribeItem{{Code: code, Type: SubscriptionNormal}}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, fdtypes.StatusSubscribeOK, status)

	require.Eventually(t, func() bool { return serverEp.MainObject().Subscriptions().Count() == 1 }, time.Second, 5*time.Millisecond)

	serverEp.MainObject().Broadcast(code, "", []byte("event-data"), false, false)

	select {
	case payload := <-received:
		assert.Equal(t, []byte("event-data"), payload)
	case <-time.After(time.Second):
		t.Fatal("broadcast never arrived")
	}
}

func TestEndpointBroadcastDoesNotFireOnRequestSubscriptions(t *testing.T) {
	serverEp, clientEp, clientSess := newConnectedPair(t)

	code := fdtypes.MakeEventCode(0x10, 1)
	received := make(chan []byte, 1)
	clientEp.MainObject().OnBroadcast = func(obj *Object, sess *transport.Session, msg *message.Message) {
		received <- msg.Payload
	}

	status, err := clientEp.MainObject().Subscribe(clientSess, []SubscribeItem{{Code: code, Type: SubscriptionOnRequest}}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, fdtypes.StatusSubscribeOK, status)

	require.Eventually(t, func() bool { return serverEp.MainObject().Subscriptions().Count() == 1 }, time.Second, 5*time.Millisecond)

	serverEp.MainObject().Broadcast(code, "", []byte("event-data"), false, false)

	select {
	case payload := <-received:
		t.Fatalf("on-request subscriber should not receive a spontaneous broadcast, got %q", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEndpointDispatchRequestEnforcesSecurityLevel(t *testing.T) {
	serverEp, clientEp, clientSess := newConnectedPair(t)

	const code = uint32(1)
	serverEp.SetRequestSecurityLevel(code, 1)
	serverEp.MainObject().OnInvoke = func(obj *Object, sess *transport.Session, msg *message.Message) {
		msg.Reply([]byte("pong"))
	}

	_, status, err := clientEp.MainObject().Invoke(clientSess, code, []byte("ping"), 2*time.Second)
	require.Error(t, err)
	assert.Equal(t, fdtypes.StatusAuthenticationFail, status)

	serverSess, ok := serverEp.PrimarySession()
	require.True(t, ok)
	serverSess.SetSecurityLevel(1)

	payload, status, err := clientEp.MainObject().Invoke(clientSess, code, []byte("ping"), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, fdtypes.StatusOK, status)
	assert.Equal(t, []byte("pong"), payload)
}

func TestEndpointDispatchBroadcastEnforcesSecurityLevel(t *testing.T) {
	serverEp, clientEp, clientSess := newConnectedPair(t)

	code := fdtypes.MakeEventCode(0x10, 1)
	clientEp.SetBroadcastSecurityLevel(code, 1)
	received := make(chan []byte, 1)
	clientEp.MainObject().OnBroadcast = func(obj *Object, sess *transport.Session, msg *message.Message) {
		received <- msg.Payload
	}

	status, err := clientEp.MainObject().Subscribe(clientSess, []SubscribeItem{{Code: code, Type: SubscriptionNormal}}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, fdtypes.StatusSubscribeOK, status)

	require.Eventually(t, func() bool { return serverEp.MainObject().Subscriptions().Count() == 1 }, time.Second, 5*time.Millisecond)

	serverEp.MainObject().Broadcast(code, "", []byte("event-data"), false, false)
	select {
	case payload := <-received:
		t.Fatalf("broadcast below threshold should have been dropped, got %q", payload)
	case <-time.After(100 * time.Millisecond):
	}

	clientSess.SetSecurityLevel(1)
	serverEp.MainObject().Broadcast(code, "", []byte("event-data-2"), true, false)
	select {
	case payload := <-received:
		assert.Equal(t, []byte("event-data-2"), payload)
	case <-time.After(time.Second):
		t.Fatal("broadcast at threshold never arrived")
	}
}

func TestEndpointDispatchSidebandEnforcesSecurityLevel(t *testing.T) {
	serverEp, clientEp, clientSess := newConnectedPair(t)

	const code = fdtypes.FirstUserSidebandCode
	serverEp.SetSidebandSecurityLevel(code, 1)
	serverEp.MainObject().OnSideband = func(obj *Object, sess *transport.Session, code fdtypes.SidebandCode, msg *message.Message) {
		msg.Reply([]byte("ack"))
	}

	send := func() (fdtypes.Status, error) {
		msg := message.NewSideband(fdtypes.MainObjectID, code, []byte("req"))
		msg.Serial = clientSess.NextSerial()
		clientSess.RegisterPending(msg.Serial, msg, 2*time.Second)
		require.NoError(t, clientSess.Send(msg))
		msg.Wait(0)
		_, status, _, _ := msg.Result()
		return status, nil
	}

	status, _ := send()
	assert.Equal(t, fdtypes.StatusAuthenticationFail, status)

	serverSess, ok := serverEp.PrimarySession()
	require.True(t, ok)
	serverSess.SetSecurityLevel(1)

	status, _ = send()
	assert.Equal(t, fdtypes.StatusOK, status)
}

func TestEndpointCreateObjectAllocatesDistinctIDs(t *testing.T) {
	serverEp, _, _ := newConnectedPair(t)

	o1, err := serverEp.CreateObject(5)
	require.NoError(t, err)
	o2, err := serverEp.CreateObject(5)
	require.NoError(t, err)
	assert.NotEqual(t, o1.ID(), o2.ID())
	assert.Equal(t, uint16(5), o1.ID().Class())
}

func TestEndpointRemoveObjectCannotRemoveMain(t *testing.T) {
	serverEp, _, _ := newConnectedPair(t)
	serverEp.RemoveObject(fdtypes.MainObjectID)
	assert.Same(t, serverEp.MainObject(), serverEp.mainObject)
}
