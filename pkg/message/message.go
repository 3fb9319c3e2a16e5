package message

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/fdbus/pkg/fdtypes"
)

// terminationState is Message's three-terminal-state machine: at
// most one of replied/status-returned/timed-out may occur.
type terminationState int32

const (
	statePending terminationState = iota
	stateReplied
	stateStatusReturned
	stateTimedOut
)

// Message is a job carrying a header, payload, and log
// metadata, plus the request/reply state machine and its timestamps.
// A Message is created for every request, reply, broadcast, subscribe,
// and sideband exchange.
type Message struct {
	Type     fdtypes.MsgType
	Serial   fdtypes.SerialNumber
	Code     uint32
	Flags    fdtypes.MsgFlag
	ObjectID fdtypes.ObjectID
	Topic    string

	SessionID fdtypes.SessionID

	Payload []byte

	SendTime    time.Time
	ArriveTime  time.Time
	ReplyTime   time.Time
	ReceiveTime time.Time

	// LogTraceID is an opaque identifier the logger package stamps for
	// trace correlation; the core never interprets it.
	LogTraceID string

	mu           sync.Mutex
	state        atomic.Int32
	doneCh       chan struct{}
	replyPayload []byte
	status       fdtypes.Status
	statusDesc   string

	// OnDone, if set, is invoked exactly once when the message
	// terminates (from whichever goroutine calls Terminate/TerminateStatus).
	// Session and Object wire this to re-submit onReply as a job.
	OnDone func(*Message)
}

// NewRequest builds a Message representing an outbound request,
// ready to be handed to a Session for serialization.
func NewRequest(objectID fdtypes.ObjectID, code uint32, payload []byte) *Message {
	return &Message{
		Type:     fdtypes.MsgTypeRequest,
		ObjectID: objectID,
		Code:     code,
		Payload:  payload,
		doneCh:   make(chan struct{}),
	}
}

// NewBroadcast builds a one-way broadcast Message.
func NewBroadcast(objectID fdtypes.ObjectID, code uint32, topic string, payload []byte) *Message {
	return &Message{
		Type:     fdtypes.MsgTypeBroadcast,
		ObjectID: objectID,
		Code:     code,
		Topic:    topic,
		Payload:  payload,
	}
}

// NewSubscribe builds a subscribe-request Message; Payload is the
// encoded subscription list (see pkg/object for the list codec).
func NewSubscribe(objectID fdtypes.ObjectID, payload []byte) *Message {
	return &Message{
		Type:     fdtypes.MsgTypeSubscribeReq,
		ObjectID: objectID,
		Flags:    fdtypes.FlagIsSubscribe,
		Payload:  payload,
		doneCh:   make(chan struct{}),
	}
}

// NewSideband builds a sideband request Message.
func NewSideband(objectID fdtypes.ObjectID, code fdtypes.SidebandCode, payload []byte) *Message {
	return &Message{
		Type:     fdtypes.MsgTypeSidebandReq,
		ObjectID: objectID,
		Code:     uint32(code),
		Payload:  payload,
		doneCh:   make(chan struct{}),
	}
}

// ExpectsReply reports whether the sender wants a reply/status at all.
func (m *Message) ExpectsReply() bool { return !m.Flags.Has(fdtypes.FlagNoReplyExpected) }

// IsStatus reports whether the message currently holds a status (as
// opposed to a normal reply payload).
func (m *Message) IsStatus() bool { return m.Flags.Has(fdtypes.FlagStatus) }

// IsError reports whether the message is a status carrying an error.
func (m *Message) IsError() bool { return m.Flags.Has(fdtypes.FlagError) }

// IsSubscribeResult reports whether this status is the terminal status
// of a subscribe transaction.
func (m *Message) IsSubscribeResult() bool { return m.Flags.Has(fdtypes.FlagIsSubscribe) }

// Terminated reports whether the message has reached any terminal state.
func (m *Message) Terminated() bool { return terminationState(m.state.Load()) != statePending }

// complete performs the shared bookkeeping for every termination path:
// CAS the state from pending, close doneCh, and invoke OnDone exactly
// once. Returns false if the message was already terminated (the
// at-most-once-reply invariant).
func (m *Message) complete(next terminationState, fn func()) bool {
	if !m.state.CompareAndSwap(int32(statePending), int32(next)) {
		return false
	}
	m.mu.Lock()
	fn()
	m.mu.Unlock()
	if m.doneCh != nil {
		close(m.doneCh)
	}
	if m.OnDone != nil {
		m.OnDone(m)
	}
	return true
}

// Reply terminates the message with a normal reply payload.
func (m *Message) Reply(payload []byte) bool {
	return m.complete(stateReplied, func() {
		m.replyPayload = payload
		m.Flags &^= fdtypes.FlagStatus | fdtypes.FlagError
		m.ReplyTime = time.Now()
	})
}

// TerminateStatus terminates the message with a status code: a
// status replaces the normal reply. isSubscribe marks this
// as the terminal status of a subscribe transaction.
func (m *Message) TerminateStatus(code fdtypes.Status, desc string, isSubscribe bool) bool {
	return m.complete(stateStatusReturned, func() {
		m.status = code
		m.statusDesc = desc
		m.Flags |= fdtypes.FlagStatus
		if code.IsError() {
			m.Flags |= fdtypes.FlagError
		}
		if isSubscribe {
			m.Flags |= fdtypes.FlagIsSubscribe
		}
		m.ReplyTime = time.Now()
	})
}

// TerminateTimeout terminates the message with fdtypes.StatusTimeout.
func (m *Message) TerminateTimeout() bool {
	return m.complete(stateTimedOut, func() {
		m.status = fdtypes.StatusTimeout
		m.statusDesc = "invoke timed out"
		m.Flags |= fdtypes.FlagStatus | fdtypes.FlagError
	})
}

// Result returns the reply payload and status once the message has
// terminated. ok is false if still pending.
func (m *Message) Result() (payload []byte, status fdtypes.Status, desc string, ok bool) {
	if !m.Terminated() {
		return nil, 0, "", false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replyPayload, m.status, m.statusDesc, true
}

// Wait blocks until the message terminates or timeout elapses (0 =
// forever), for synchronous invoke. It returns false on timeout.
func (m *Message) Wait(timeout time.Duration) bool {
	if m.doneCh == nil {
		return m.Terminated()
	}
	if timeout <= 0 {
		<-m.doneCh
		return true
	}
	select {
	case <-m.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done returns the channel closed on termination, for callers that
// want to select on it directly alongside other events.
func (m *Message) Done() <-chan struct{} { return m.doneCh }
