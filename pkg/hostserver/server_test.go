package hostserver

import (
	"testing"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *fdctx.Context) {
	t.Helper()
	ctx := fdctx.New()
	ctx.Start()
	s, err := NewServer(ctx, nil)
	require.NoError(t, err)
	return s, ctx
}

func invokeSync(s *Server, code uint32, payload []byte) *message.Message {
	msg := message.NewRequest(0, code, payload)
	s.onInvoke(s.Endpoint().MainObject(), nil, msg)
	return msg
}

func TestServerRegisterHost(t *testing.T) {
	s, ctx := newTestServer(t)
	defer ctx.Destroy()

	msg := invokeSync(s, ReqRegisterHost, encodeRegisterHost("host-a", "10.0.0.1", "tcp://10.0.0.1:60001"))
	payload, status, _, ok := msg.Result()
	require.True(t, ok)
	assert.False(t, status.IsError())
	name, ip, nsURL, ready := decodeHostRecord(payload)
	assert.Equal(t, "host-a", name)
	assert.Equal(t, "10.0.0.1", ip)
	assert.Equal(t, "tcp://10.0.0.1:60001", nsURL)
	assert.True(t, ready)

	_, ok = s.Registry().Get("host-a")
	assert.True(t, ok)
}

func TestServerHeartbeatOK(t *testing.T) {
	s, ctx := newTestServer(t)
	defer ctx.Destroy()

	_ = invokeSync(s, ReqRegisterHost, encodeRegisterHost("host-a", "", ""))
	s.Registry().Tick()

	msg := invokeSync(s, ReqHeartbeatOK, []byte("host-a"))
	_, status, _, ok := msg.Result()
	require.True(t, ok)
	assert.False(t, status.IsError())

	rec, _ := s.Registry().Get("host-a")
	assert.Equal(t, 0, rec.MissCount)
}

func TestServerUnknownRequestCode(t *testing.T) {
	s, ctx := newTestServer(t)
	defer ctx.Destroy()

	msg := invokeSync(s, 0xFFFF, nil)
	_, status, _, ok := msg.Result()
	require.True(t, ok)
	assert.True(t, status.IsError())
}
