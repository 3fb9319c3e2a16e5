package nameserver

import (
	"path/filepath"
	"testing"
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/cuemby/fdbus/pkg/object"
	"github.com/cuemby/fdbus/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *fdctx.Context) {
	t.Helper()
	ctx := fdctx.New()
	ctx.Start()
	registry := NewRegistry()
	s, err := NewServer(ctx, registry, nil)
	require.NoError(t, err)
	return s, ctx
}

func invokeSync(s *Server, code uint32, payload []byte) *message.Message {
	msg := message.NewRequest(0, code, payload)
	s.onInvoke(s.Endpoint().MainObject(), nil, msg)
	return msg
}

func TestServerRegisterThenQuery(t *testing.T) {
	s, ctx := newTestServer(t)
	defer ctx.Destroy()

	reg := invokeSync(s, ReqRegisterService, encodeNameAndURLs("org.example.echo", []string{"ipc:///tmp/fdb-ipc9"}))
	require.True(t, reg.Terminated())
	payload, status, _, ok := reg.Result()
	require.True(t, ok)
	assert.False(t, status.IsError())
	name, urls := decodeNameAndURLs(payload)
	assert.Equal(t, "org.example.echo", name)
	assert.Equal(t, []string{"ipc:///tmp/fdb-ipc9"}, urls)

	q := invokeSync(s, ReqQueryService, encodeName("org.example.echo"))
	payload, status, _, ok = q.Result()
	require.True(t, ok)
	assert.False(t, status.IsError())
	_, urls = decodeNameAndURLs(payload)
	assert.Equal(t, []string{"ipc:///tmp/fdb-ipc9"}, urls)
}

func TestServerQueryUnknownService(t *testing.T) {
	s, ctx := newTestServer(t)
	defer ctx.Destroy()

	q := invokeSync(s, ReqQueryService, encodeName("org.example.missing"))
	_, status, _, ok := q.Result()
	require.True(t, ok)
	assert.True(t, status.IsError())
}

func TestServerAllocThenRegister(t *testing.T) {
	s, ctx := newTestServer(t)
	defer ctx.Destroy()

	alloc := invokeSync(s, ReqAllocServiceAddress, encodeNameAndURLs("org.example.alloc", []string{"ipc:///tmp/fdb-ipc10"}))
	payload, status, _, ok := alloc.Result()
	require.True(t, ok)
	assert.False(t, status.IsError())
	name, urls := decodeNameAndURLs(payload)
	assert.Equal(t, "org.example.alloc", name)
	require.Len(t, urls, 1)

	reg := invokeSync(s, ReqRegisterService, encodeNameAndURLs(name, urls))
	_, status, _, ok = reg.Result()
	require.True(t, ok)
	assert.False(t, status.IsError())
}

func TestServerUnregisterUnknown(t *testing.T) {
	s, ctx := newTestServer(t)
	defer ctx.Destroy()

	u := invokeSync(s, ReqUnregisterService, encodeName("org.example.nope"))
	_, status, _, ok := u.Result()
	require.True(t, ok)
	assert.True(t, status.IsError())
}

func TestServerRegisterBroadcastsHostLocalEvents(t *testing.T) {
	ctx := fdctx.New()
	ctx.Start()
	defer ctx.Destroy()

	s, err := NewServer(ctx, NewRegistry(), nil)
	require.NoError(t, err)

	sockPath := filepath.Join(t.TempDir(), "fdb-ns-host-events.sock")
	url, err := transport.ParseURL("ipc://" + sockPath)
	require.NoError(t, err)
	_, err = s.Endpoint().Bind(url)
	require.NoError(t, err)

	clientEp, err := object.NewEndpoint(ctx, "client", fdtypes.RoleClient)
	require.NoError(t, err)
	_, err = clientEp.Connect(url)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return clientEp.SessionCount() == 1 }, time.Second, 5*time.Millisecond)
	clientSess, ok := clientEp.PrimarySession()
	require.True(t, ok)

	online := make(chan struct{}, 4)
	info := make(chan struct{}, 4)
	clientEp.MainObject().OnBroadcast = func(obj *object.Object, sess *transport.Session, msg *message.Message) {
		switch fdtypes.EventCode(msg.Code) {
		case EvtHostOnlineLocal:
			online <- struct{}{}
		case EvtHostInfo:
			info <- struct{}{}
		}
	}

	group := fdtypes.MakeEventGroup(eventGroup)
	status, err := clientEp.MainObject().Subscribe(clientSess, []object.SubscribeItem{{Code: group}}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, fdtypes.StatusSubscribeOK, status)

	_, status, err = clientEp.MainObject().Invoke(clientSess, ReqRegisterService, encodeNameAndURLs("org.example.first", []string{"ipc:///tmp/fdb-ipc-host-1"}), 2*time.Second)
	require.NoError(t, err)
	assert.False(t, status.IsError())

	require.Eventually(t, func() bool { return len(online) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(info) == 1 }, time.Second, 5*time.Millisecond)

	_, status, err = clientEp.MainObject().Invoke(clientSess, ReqRegisterService, encodeNameAndURLs("org.example.second", []string{"ipc:///tmp/fdb-ipc-host-2"}), 2*time.Second)
	require.NoError(t, err)
	assert.False(t, status.IsError())

	require.Eventually(t, func() bool { return len(info) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, len(online), "host-online-local must only fire once, on the empty-to-first-service transition")
}

func TestServerUnknownRequestCode(t *testing.T) {
	s, ctx := newTestServer(t)
	defer ctx.Destroy()

	msg := invokeSync(s, 0xFFFF, nil)
	require.Eventually(t, msg.Terminated, time.Second, time.Millisecond)
	_, status, _, ok := msg.Result()
	require.True(t, ok)
	assert.True(t, status.IsError())
}
