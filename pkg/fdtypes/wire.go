package fdtypes

// MsgType is the reserved message-type byte carried in every frame header.
type MsgType uint8

const (
	MsgTypeRequest       MsgType = 1
	MsgTypeReply         MsgType = 2
	MsgTypeSubscribeReq  MsgType = 3
	MsgTypeBroadcast     MsgType = 4
	MsgTypeSidebandReq   MsgType = 5
	MsgTypeSidebandReply MsgType = 6
	MsgTypeStatus        MsgType = 7
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeRequest:
		return "request"
	case MsgTypeReply:
		return "reply"
	case MsgTypeSubscribeReq:
		return "subscribe-request"
	case MsgTypeBroadcast:
		return "broadcast"
	case MsgTypeSidebandReq:
		return "sideband-request"
	case MsgTypeSidebandReply:
		return "sideband-reply"
	case MsgTypeStatus:
		return "status"
	default:
		return "unknown"
	}
}

// SidebandCode identifies a core-owned out-of-band request. Values
// below 4096 are reserved for the core; user sideband codes start at
// 4096.
type SidebandCode uint32

const (
	SidebandAuthentication SidebandCode = 0
	SidebandWatchdog       SidebandCode = 1
	SidebandSessionInfo    SidebandCode = 2
	SidebandQueryClient    SidebandCode = 3
	SidebandQueryEventCache SidebandCode = 4
)

// FirstUserSidebandCode is the first sideband code available to user
// code; values below it are reserved by the core.
const FirstUserSidebandCode SidebandCode = 4096

// MsgFlag is a bitmask of per-message flag bits carried in the header.
type MsgFlag uint32

const (
	FlagNoReplyExpected MsgFlag = 1 << iota
	FlagSyncReply
	FlagError
	FlagStatus
	FlagInitialResponse
	FlagGetEvent
	FlagForceUpdate
	FlagManualUpdate
	FlagLogEnabled
	FlagIsSubscribe
)

func (f MsgFlag) Has(bit MsgFlag) bool { return f&bit != 0 }

// HeaderOption is a bit in the wire header's option bitmap: presence
// of the bit means the corresponding optional field follows in the
// header.
type HeaderOption uint8

const (
	OptionBroadcastTopic HeaderOption = 1 << 0
	OptionTimestampSendArrive HeaderOption = 1 << 1
	OptionTimestampReply HeaderOption = 1 << 2
)

// FramePrefixLen is the fixed 8-byte prefix preceding every frame's
// header: total_length (u32 LE) || head_length (u32 LE).
const FramePrefixLen = 8
