package transport

import (
	"net"
	"testing"
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct{}

func (fakeSocket) ID() fdtypes.SocketID     { return 0 }
func (fakeSocket) URL() URL                 { return URL{} }
func (fakeSocket) Close() error             { return nil }
func (fakeSocket) removeSession(fdtypes.SessionID) {}
func (fakeSocket) sessionCount() int        { return 0 }

func newTestSession(t *testing.T, ctx *fdctx.Context) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	sess := newSession(1, ctx, server, fakeSocket{}, &recordingDispatcher{})
	return sess, client
}

func TestSessionSendEncodesFrameReadableByDecodeFrame(t *testing.T) {
	ctx := fdctx.New()
	ctx.Start()
	defer ctx.Destroy()

	sess, client := newTestSession(t, ctx)
	sess.Start()

	msg := message.NewRequest(fdtypes.MainObjectID, 7, []byte("payload"))
	msg.Serial = sess.NextSerial()
	require.NoError(t, sess.Send(msg))

	prefix := make([]byte, fdtypes.FramePrefixLen)
	_, err := client.Read(prefix)
	require.NoError(t, err)
	total, headLen, err := message.DecodePrefix(prefix)
	require.NoError(t, err)

	body := make([]byte, total-fdtypes.FramePrefixLen)
	_, err = client.Read(body)
	require.NoError(t, err)

	h, payload, err := message.DecodeFrame(headLen, body)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), h.Code)
	assert.Equal(t, []byte("payload"), payload)
}

func TestSessionRegisterPendingExpiresOnTimeout(t *testing.T) {
	ctx := fdctx.New()
	ctx.Start()
	defer ctx.Destroy()

	sess, _ := newTestSession(t, ctx)

	msg := message.NewRequest(fdtypes.MainObjectID, 1, nil)
	msg.Serial = sess.NextSerial()
	sess.RegisterPending(msg.Serial, msg, 10*time.Millisecond)
	assert.Equal(t, 1, sess.PendingCount())

	require.Eventually(t, msg.Terminated, time.Second, 5*time.Millisecond)
	_, status, _, _ := msg.Result()
	assert.Equal(t, fdtypes.StatusTimeout, status)

	require.Eventually(t, func() bool { return sess.PendingCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSessionNextSerialIncrements(t *testing.T) {
	ctx := fdctx.New()
	ctx.Start()
	defer ctx.Destroy()

	sess, _ := newTestSession(t, ctx)
	a := sess.NextSerial()
	b := sess.NextSerial()
	assert.Equal(t, a+1, b)
}

func TestSessionResolvePendingRemovesEntry(t *testing.T) {
	ctx := fdctx.New()
	ctx.Start()
	defer ctx.Destroy()

	sess, _ := newTestSession(t, ctx)
	msg := message.NewRequest(fdtypes.MainObjectID, 1, nil)
	msg.Serial = sess.NextSerial()
	sess.RegisterPending(msg.Serial, msg, 0)

	got, ok := sess.resolvePending(msg.Serial)
	require.True(t, ok)
	assert.Same(t, msg, got)
	assert.Equal(t, 0, sess.PendingCount())

	_, ok = sess.resolvePending(msg.Serial)
	assert.False(t, ok)
}
