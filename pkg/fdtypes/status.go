package fdtypes

import "fmt"

// Status is a reserved, negative fdbus status code. Status implements
// error so it composes with errors.Is/errors.As like any other wrapped
// error in this codebase, while still being usable as a plain int32 on
// the wire.
type Status int32

// Reserved status codes. OK, AutoReplyOK, SubscribeOK and UnsubscribeOK
// are not errors (see IsError); every other value is.
const (
	StatusOK               Status = 0
	StatusAutoReplyOK      Status = -11
	StatusSubscribeOK      Status = -12
	StatusSubscribeFail    Status = -13
	StatusUnsubscribeOK    Status = -14
	StatusTimeout          Status = -16
	StatusInvalidID        Status = -17
	StatusPeerVanish       Status = -18
	StatusDeadLock         Status = -19
	StatusUnableToSend     Status = -20
	StatusNonExist         Status = -21
	StatusAlreadyExist     Status = -22
	StatusMsgDecodeFail    Status = -23
	StatusBadParameter     Status = -24
	StatusNotAvailable     Status = -25
	StatusInternalFail     Status = -26
	StatusOutOfMemory      Status = -27
	StatusNotImplemented   Status = -28
	StatusObjectNotFound   Status = -29
	StatusAuthenticationFail Status = -30
	StatusUnknown          Status = -128
)

var statusText = map[Status]string{
	StatusOK:                 "ok",
	StatusAutoReplyOK:        "auto-reply ok",
	StatusSubscribeOK:        "subscribe ok",
	StatusSubscribeFail:      "subscribe fail",
	StatusUnsubscribeOK:      "unsubscribe ok",
	StatusTimeout:            "timeout",
	StatusInvalidID:          "invalid id",
	StatusPeerVanish:         "peer vanish",
	StatusDeadLock:           "dead lock",
	StatusUnableToSend:       "unable to send",
	StatusNonExist:           "non-existent",
	StatusAlreadyExist:       "already exists",
	StatusMsgDecodeFail:      "message decode failed",
	StatusBadParameter:       "bad parameter",
	StatusNotAvailable:       "not available",
	StatusInternalFail:       "internal failure",
	StatusOutOfMemory:        "out of memory",
	StatusNotImplemented:     "not implemented",
	StatusObjectNotFound:     "object not found",
	StatusAuthenticationFail: "authentication failed",
	StatusUnknown:            "unknown error",
}

// Error implements the error interface so a Status can be returned and
// compared with errors.Is directly.
func (s Status) Error() string {
	if t, ok := statusText[s]; ok {
		return fmt.Sprintf("fdbus: %s (%d)", t, int32(s))
	}
	return fmt.Sprintf("fdbus: status %d", int32(s))
}

// IsError reports whether the status represents a failure. Only OK and
// the *_OK acknowledgements are non-errors.
func (s Status) IsError() bool {
	switch s {
	case StatusOK, StatusAutoReplyOK, StatusSubscribeOK, StatusUnsubscribeOK:
		return false
	default:
		return true
	}
}

// IsSubscribeResult reports whether the status is the terminal status
// of a subscribe transaction.
func (s Status) IsSubscribeResult() bool {
	return s == StatusSubscribeOK || s == StatusSubscribeFail
}
