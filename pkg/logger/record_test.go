package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMessageRecordRoundTrip(t *testing.T) {
	rec := MessageRecord{
		TraceID:    "abc-123",
		Kind:       "request",
		Host:       "host1",
		Endpoint:   "org.example.echo",
		BusName:    "org.example.echo",
		ObjectID:   7,
		Code:       42,
		Timestamp:  time.Unix(1700000000, 0),
		PayloadLen: 128,
	}
	decoded, err := decodeMessageRecord(encodeMessageRecord(rec))
	require.NoError(t, err)
	assert.Equal(t, rec.TraceID, decoded.TraceID)
	assert.Equal(t, rec.Kind, decoded.Kind)
	assert.Equal(t, rec.ObjectID, decoded.ObjectID)
	assert.Equal(t, rec.Code, decoded.Code)
	assert.Equal(t, rec.PayloadLen, decoded.PayloadLen)
	assert.True(t, rec.Timestamp.Equal(decoded.Timestamp))
}

func TestDecodeMessageRecordMalformed(t *testing.T) {
	_, err := decodeMessageRecord([]byte("too\x1ffew\x1ffields"))
	assert.Error(t, err)
}

func TestEncodeDecodeTraceRecordRoundTrip(t *testing.T) {
	rec := TraceRecord{
		TraceID:   "trace-1",
		Level:     TraceWarning,
		Host:      "host1",
		Tag:       "net",
		Timestamp: time.Unix(1700000001, 0),
		Message:   "connection retry 1\x1fstill separated but kept",
	}
	decoded, err := decodeTraceRecord(encodeTraceRecord(rec))
	require.NoError(t, err)
	assert.Equal(t, rec.TraceID, decoded.TraceID)
	assert.Equal(t, rec.Level, decoded.Level)
	assert.Equal(t, rec.Message, decoded.Message)
}
