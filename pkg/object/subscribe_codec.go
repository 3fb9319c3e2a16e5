package object

import (
	"encoding/binary"
	"fmt"

	"github.com/cuemby/fdbus/pkg/fdtypes"
)

// SubscribeItem is one (code, topic, type) triple carried in a
// subscribe-request message's payload.
type SubscribeItem struct {
	Code  fdtypes.EventCode
	Topic string
	Type  SubscriptionType
}

// EncodeSubscribeList serializes a subscribe/update-trigger item list
// as: count(u32) || { code(u32) topicLen(u16) topic type(u8) }*.
func EncodeSubscribeList(items []SubscribeItem) []byte {
	size := 4
	for _, it := range items {
		size += 4 + 2 + len(it.Topic) + 1
	}
	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(items)))
	off += 4
	for _, it := range items {
		binary.LittleEndian.PutUint32(buf[off:], uint32(it.Code))
		off += 4
		topic := []byte(it.Topic)
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(topic)))
		off += 2
		copy(buf[off:], topic)
		off += len(topic)
		buf[off] = byte(it.Type)
		off++
	}
	return buf
}

// DecodeSubscribeList parses the payload produced by EncodeSubscribeList.
func DecodeSubscribeList(buf []byte) ([]SubscribeItem, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: subscribe list too short", fdtypes.StatusMsgDecodeFail)
	}
	count := binary.LittleEndian.Uint32(buf)
	off := 4
	items := make([]SubscribeItem, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < off+4+2 {
			return nil, fmt.Errorf("%w: truncated subscribe item", fdtypes.StatusMsgDecodeFail)
		}
		code := fdtypes.EventCode(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		tlen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if len(buf) < off+tlen+1 {
			return nil, fmt.Errorf("%w: truncated subscribe topic", fdtypes.StatusMsgDecodeFail)
		}
		topic := string(buf[off : off+tlen])
		off += tlen
		subType := SubscriptionType(buf[off])
		off++
		items = append(items, SubscribeItem{Code: code, Topic: topic, Type: subType})
	}
	return items, nil
}
