package fdtypes

// EndpointID names an endpoint within a Context. Endpoint ids are
// 16-bit; SessionID, SocketID and ObjectID are 32-bit.
type EndpointID uint16

// SessionID names a single connection within the process.
type SessionID uint32

// SocketID names a bound or connecting transport within an endpoint.
type SocketID uint32

// ObjectID encodes (serial_number<<16 | class) and distinguishes the
// main object (ObjectID 0) from secondary objects multiplexed over
// the same session.
type ObjectID uint32

// SerialNumber correlates a reply to its request within a session.
type SerialNumber uint32

// EventCode is 32-bit; the top byte is the event group.
type EventCode uint32

// InvalidID is the all-bits-one sentinel used across every id space.
const InvalidID = 0xFFFFFFFF

// InvalidEndpointID is the 16-bit all-bits-one sentinel for EndpointID.
const InvalidEndpointID EndpointID = 0xFFFF

// IsValid reports whether the id is not the all-bits-one sentinel.
func (e EndpointID) IsValid() bool   { return e != InvalidEndpointID }
func (s SessionID) IsValid() bool    { return uint32(s) != InvalidID }
func (s SocketID) IsValid() bool     { return uint32(s) != InvalidID }
func (o ObjectID) IsValid() bool     { return uint32(o) != InvalidID }
func (s SerialNumber) IsValid() bool { return uint32(s) != InvalidID }

// MainObjectID is the id of an endpoint's primary object: the endpoint
// itself acting as an object.
const MainObjectID ObjectID = 0

// ObjectClassBits is the number of low bits of an ObjectID reserved for
// the "class" component; the remaining high bits are a per-endpoint
// serial number allocated when a secondary object is created.
const ObjectClassBits = 16

// MakeObjectID packs a serial number and class into an ObjectID, as
// object_id = (sn << 16) | class.
func MakeObjectID(serial uint16, class uint16) ObjectID {
	return ObjectID(uint32(serial)<<ObjectClassBits | uint32(class))
}

// Class returns the low 16 bits of the object id.
func (o ObjectID) Class() uint16 { return uint16(uint32(o) & 0xFFFF) }

// Serial returns the high 16 bits of the object id.
func (o ObjectID) Serial() uint16 { return uint16(uint32(o) >> ObjectClassBits) }

// EventGroupBits is the number of low bits of an EventCode reserved for
// the event within its group; the top byte is the group.
const EventGroupBits = 24

// groupMask selects the low 24 bits of an event code.
const groupMask = 0x00FFFFFF

// MakeEventCode packs a group byte and an event number into an
// EventCode: (group<<24) | (event & 0x00FFFFFF).
func MakeEventCode(group uint8, event uint32) EventCode {
	return EventCode(uint32(group)<<EventGroupBits | (event & groupMask))
}

// MakeEventGroup returns the "whole group" event code for group g: an
// event code whose low 24 bits are all ones, matching every event
// code sharing the same group byte.
func MakeEventGroup(g uint8) EventCode {
	return EventCode(uint32(g)<<EventGroupBits | groupMask)
}

// Group returns the high-byte group of the event code.
func (c EventCode) Group() uint8 { return uint8(uint32(c) >> EventGroupBits) }

// IsGroup reports whether c's low 24 bits are all ones, i.e. c denotes
// an entire event group rather than a single event.
func (c EventCode) IsGroup() bool { return uint32(c)&groupMask == groupMask }
