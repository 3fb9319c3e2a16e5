package message

import (
	"encoding/binary"
	"fmt"

	"github.com/cuemby/fdbus/pkg/fdtypes"
)

// Header is the decoded form of a frame's variable-length head
// section. Payload bytes are carried separately on Message.
type Header struct {
	Type      fdtypes.MsgType
	Serial    fdtypes.SerialNumber
	Code      uint32 // request/reply code, or fdtypes.EventCode for broadcasts
	Flags     fdtypes.MsgFlag
	ObjectID  fdtypes.ObjectID
	PayloadSize uint32

	Topic string // present iff OptionBroadcastTopic

	SendTime  int64 // unix nano; present iff OptionTimestampSendArrive
	ArriveTime int64 // unix nano; filled by receiver, not on the wire
	ReplyTime int64 // unix nano; present iff OptionTimestampReply
}

// options computes the header's option bitmap from which optional
// fields are populated.
func (h *Header) options() fdtypes.HeaderOption {
	var opt fdtypes.HeaderOption
	if h.Topic != "" {
		opt |= fdtypes.OptionBroadcastTopic
	}
	if h.SendTime != 0 {
		opt |= fdtypes.OptionTimestampSendArrive
	}
	if h.ReplyTime != 0 {
		opt |= fdtypes.OptionTimestampReply
	}
	return opt
}

// fixedHeaderLen is the length of the header's fixed-size fields,
// before any optional fields: type(1) sn(4) code(4) flags(4)
// object_id(4) payload_size(4) options(1).
const fixedHeaderLen = 1 + 4 + 4 + 4 + 4 + 4 + 1

// EncodeHeader serializes h into its wire form.
func EncodeHeader(h *Header) ([]byte, error) {
	opt := h.options()
	size := fixedHeaderLen
	if opt&fdtypes.OptionBroadcastTopic != 0 {
		size += 2 + len(h.Topic) // u16 length-prefixed
	}
	if opt&fdtypes.OptionTimestampSendArrive != 0 {
		size += 8
	}
	if opt&fdtypes.OptionTimestampReply != 0 {
		size += 8
	}

	buf := make([]byte, size)
	off := 0
	buf[off] = byte(h.Type)
	off++
	binary.LittleEndian.PutUint32(buf[off:], uint32(h.Serial))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.Code)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(h.Flags))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(h.ObjectID))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.PayloadSize)
	off += 4
	buf[off] = byte(opt)
	off++

	if opt&fdtypes.OptionBroadcastTopic != 0 {
		topic := []byte(h.Topic)
		if len(topic) > 0xFFFF {
			return nil, fmt.Errorf("message: topic too long (%d bytes)", len(topic))
		}
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(topic)))
		off += 2
		copy(buf[off:], topic)
		off += len(topic)
	}
	if opt&fdtypes.OptionTimestampSendArrive != 0 {
		binary.LittleEndian.PutUint64(buf[off:], uint64(h.SendTime))
		off += 8
	}
	if opt&fdtypes.OptionTimestampReply != 0 {
		binary.LittleEndian.PutUint64(buf[off:], uint64(h.ReplyTime))
		off += 8
	}
	return buf, nil
}

// knownOptions is the set of option bits this build understands; any
// other bit set in the wire bitmap must cause the frame to be rejected.
const knownOptions = fdtypes.OptionBroadcastTopic | fdtypes.OptionTimestampSendArrive | fdtypes.OptionTimestampReply

// DecodeHeader parses the head section of a frame.
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < fixedHeaderLen {
		return nil, fmt.Errorf("%w: header too short (%d bytes)", fdtypes.StatusMsgDecodeFail, len(buf))
	}
	h := &Header{}
	off := 0
	h.Type = fdtypes.MsgType(buf[off])
	off++
	h.Serial = fdtypes.SerialNumber(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	h.Code = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.Flags = fdtypes.MsgFlag(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	h.ObjectID = fdtypes.ObjectID(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	h.PayloadSize = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	opt := fdtypes.HeaderOption(buf[off])
	off++

	if opt&^knownOptions != 0 {
		return nil, fmt.Errorf("%w: unknown header option bits %#x", fdtypes.StatusMsgDecodeFail, opt&^knownOptions)
	}

	if opt&fdtypes.OptionBroadcastTopic != 0 {
		if len(buf) < off+2 {
			return nil, fmt.Errorf("%w: truncated topic length", fdtypes.StatusMsgDecodeFail)
		}
		tlen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if len(buf) < off+tlen {
			return nil, fmt.Errorf("%w: truncated topic", fdtypes.StatusMsgDecodeFail)
		}
		h.Topic = string(buf[off : off+tlen])
		off += tlen
	}
	if opt&fdtypes.OptionTimestampSendArrive != 0 {
		if len(buf) < off+8 {
			return nil, fmt.Errorf("%w: truncated send timestamp", fdtypes.StatusMsgDecodeFail)
		}
		h.SendTime = int64(binary.LittleEndian.Uint64(buf[off:]))
		off += 8
	}
	if opt&fdtypes.OptionTimestampReply != 0 {
		if len(buf) < off+8 {
			return nil, fmt.Errorf("%w: truncated reply timestamp", fdtypes.StatusMsgDecodeFail)
		}
		h.ReplyTime = int64(binary.LittleEndian.Uint64(buf[off:]))
		off += 8
	}
	return h, nil
}

// EncodeFrame serializes the 8-byte prefix, header, and payload into
// one contiguous frame ready to write to a socket.
func EncodeFrame(h *Header, payload []byte) ([]byte, error) {
	h.PayloadSize = uint32(len(payload))
	head, err := EncodeHeader(h)
	if err != nil {
		return nil, err
	}
	total := fdtypes.FramePrefixLen + len(head) + len(payload)
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:], uint32(total))
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(head)))
	copy(buf[fdtypes.FramePrefixLen:], head)
	copy(buf[fdtypes.FramePrefixLen+len(head):], payload)
	return buf, nil
}

// DecodePrefix parses the 8-byte frame prefix.
func DecodePrefix(buf []byte) (totalLength, headLength uint32, err error) {
	if len(buf) < fdtypes.FramePrefixLen {
		return 0, 0, fmt.Errorf("%w: short prefix", fdtypes.StatusMsgDecodeFail)
	}
	totalLength = binary.LittleEndian.Uint32(buf[0:])
	headLength = binary.LittleEndian.Uint32(buf[4:])
	if headLength+fdtypes.FramePrefixLen > totalLength {
		return 0, 0, fmt.Errorf("%w: head length exceeds total length", fdtypes.StatusMsgDecodeFail)
	}
	return totalLength, headLength, nil
}

// DecodeFrame splits a complete frame body (everything after the
// 8-byte prefix) into its header and payload.
func DecodeFrame(headLength uint32, body []byte) (*Header, []byte, error) {
	if uint32(len(body)) < headLength {
		return nil, nil, fmt.Errorf("%w: body shorter than declared head length", fdtypes.StatusMsgDecodeFail)
	}
	h, err := DecodeHeader(body[:headLength])
	if err != nil {
		return nil, nil, err
	}
	payload := body[headLength:]
	h.PayloadSize = uint32(len(payload))
	return h, payload, nil
}
