package logger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MessageRecord is one request/reply/broadcast/subscribe trace entry,
// the payload carried under EvtLogMessage.
type MessageRecord struct {
	TraceID    string
	Kind       string // "request", "reply", "broadcast", "subscribe"
	Host       string
	Endpoint   string
	BusName    string
	ObjectID   uint32
	Code       uint32
	Timestamp  time.Time
	PayloadLen int
}

// TraceRecord is one free-form debug-trace line, the payload carried
// under EvtTraceMessage.
type TraceRecord struct {
	TraceID   string
	Level     TraceLevel
	Host      string
	Tag       string
	Timestamp time.Time
	Message   string
}

func encodeMessageRecord(r MessageRecord) []byte {
	fields := []string{
		r.TraceID, r.Kind, r.Host, r.Endpoint, r.BusName,
		strconv.FormatUint(uint64(r.ObjectID), 10),
		strconv.FormatUint(uint64(r.Code), 10),
		strconv.FormatInt(r.Timestamp.UnixNano(), 10),
		strconv.Itoa(r.PayloadLen),
	}
	return []byte(strings.Join(fields, "\x1f"))
}

func decodeMessageRecord(data []byte) (MessageRecord, error) {
	fields := strings.Split(string(data), "\x1f")
	if len(fields) != 9 {
		return MessageRecord{}, fmt.Errorf("logger: malformed message record")
	}
	objID, _ := strconv.ParseUint(fields[5], 10, 32)
	code, _ := strconv.ParseUint(fields[6], 10, 32)
	ns, _ := strconv.ParseInt(fields[7], 10, 64)
	plen, _ := strconv.Atoi(fields[8])
	return MessageRecord{
		TraceID:    fields[0],
		Kind:       fields[1],
		Host:       fields[2],
		Endpoint:   fields[3],
		BusName:    fields[4],
		ObjectID:   uint32(objID),
		Code:       uint32(code),
		Timestamp:  time.Unix(0, ns),
		PayloadLen: plen,
	}, nil
}

func encodeTraceRecord(r TraceRecord) []byte {
	fields := []string{
		r.TraceID,
		strconv.Itoa(int(r.Level)),
		r.Host, r.Tag,
		strconv.FormatInt(r.Timestamp.UnixNano(), 10),
		r.Message,
	}
	return []byte(strings.Join(fields, "\x1f"))
}

// DecodeMessageRecord exposes decodeMessageRecord for callers outside
// this package, such as a log viewer decoding an EvtLogMessage
// broadcast payload.
func DecodeMessageRecord(data []byte) (MessageRecord, error) { return decodeMessageRecord(data) }

// DecodeTraceRecord exposes decodeTraceRecord for callers outside this
// package, such as a log viewer decoding an EvtTraceMessage broadcast
// payload.
func DecodeTraceRecord(data []byte) (TraceRecord, error) { return decodeTraceRecord(data) }

func decodeTraceRecord(data []byte) (TraceRecord, error) {
	fields := strings.SplitN(string(data), "\x1f", 6)
	if len(fields) != 6 {
		return TraceRecord{}, fmt.Errorf("logger: malformed trace record")
	}
	level, _ := strconv.Atoi(fields[1])
	ns, _ := strconv.ParseInt(fields[4], 10, 64)
	return TraceRecord{
		TraceID:   fields[0],
		Level:     TraceLevel(level),
		Host:      fields[2],
		Tag:       fields[3],
		Timestamp: time.Unix(0, ns),
		Message:   fields[5],
	}, nil
}
