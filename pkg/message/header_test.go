package message

import (
	"testing"

	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	h := &Header{
		Type:     fdtypes.MsgTypeRequest,
		Serial:   42,
		Code:     7,
		Flags:    fdtypes.FlagNoReplyExpected,
		ObjectID: fdtypes.MakeObjectID(1, 2),
	}
	buf, err := EncodeHeader(h)
	require.NoError(t, err)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h.Type, got.Type)
	assert.Equal(t, h.Serial, got.Serial)
	assert.Equal(t, h.Code, got.Code)
	assert.Equal(t, h.Flags, got.Flags)
	assert.Equal(t, h.ObjectID, got.ObjectID)
	assert.Empty(t, got.Topic)
}

func TestEncodeDecodeHeaderWithOptions(t *testing.T) {
	h := &Header{
		Type:      fdtypes.MsgTypeBroadcast,
		Code:      uint32(fdtypes.MakeEventCode(0x4E, 1)),
		Topic:     "org.fdbus.echo",
		SendTime:  123456789,
		ReplyTime: 987654321,
	}
	buf, err := EncodeHeader(h)
	require.NoError(t, err)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, "org.fdbus.echo", got.Topic)
	assert.Equal(t, int64(123456789), got.SendTime)
	assert.Equal(t, int64(987654321), got.ReplyTime)
}

func TestDecodeHeaderRejectsUnknownOptionBits(t *testing.T) {
	h := &Header{Type: fdtypes.MsgTypeRequest}
	buf, err := EncodeHeader(h)
	require.NoError(t, err)

	optOff := fixedHeaderLen - 1
	buf[optOff] |= 0x80

	_, err = DecodeHeader(buf)
	assert.Error(t, err)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestEncodeFrameDecodeFrameRoundTrip(t *testing.T) {
	h := &Header{Type: fdtypes.MsgTypeRequest, Serial: 5, Code: 9}
	payload := []byte("hello")

	frame, err := EncodeFrame(h, payload)
	require.NoError(t, err)

	total, headLen, err := DecodePrefix(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(frame)), total)

	gotHeader, gotPayload, err := DecodeFrame(headLen, frame[fdtypes.FramePrefixLen:])
	require.NoError(t, err)
	assert.Equal(t, h.Serial, gotHeader.Serial)
	assert.Equal(t, h.Code, gotHeader.Code)
	assert.Equal(t, payload, gotPayload)
}

func TestDecodePrefixRejectsHeadLongerThanTotal(t *testing.T) {
	buf := make([]byte, fdtypes.FramePrefixLen)
	buf[0] = 4 // total_length
	buf[4] = 10
	_, _, err := DecodePrefix(buf)
	assert.Error(t, err)
}
