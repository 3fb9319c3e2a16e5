package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdlog"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/message"
)

// pendingEntry is one outstanding request awaiting a reply, keyed by
// serial number in Session.pending.
type pendingEntry struct {
	msg   *message.Message
	timer *fdctx.Timer
}

// Session is one connected peer on one Socket. It owns the pending-
// reply table for calls issued on it, the security level derived from
// the peer's token at handshake, and the read/write goroutines that
// frame and dispatch messages.
type Session struct {
	id     fdtypes.SessionID
	ctx    *fdctx.Context
	conn   net.Conn
	socket Socket
	disp   Dispatcher

	SelfAddr string
	PeerAddr string
	SenderName string
	UDPAddr  *net.UDPAddr
	Cred     PeerCredentials

	securityLevel atomic.Int32

	serialCounter atomic.Uint32

	pendingMu sync.Mutex
	pending   map[fdtypes.SerialNumber]*pendingEntry

	writeMu    sync.Mutex
	writeCond  *sync.Cond
	writeQueue [][]byte
	closed     atomic.Bool
	closeOnce  sync.Once
}

func newSession(id fdtypes.SessionID, ctx *fdctx.Context, conn net.Conn, sock Socket, disp Dispatcher) *Session {
	s := &Session{
		id:      id,
		ctx:     ctx,
		conn:    conn,
		socket:  sock,
		disp:    disp,
		pending: make(map[fdtypes.SerialNumber]*pendingEntry),
	}
	s.writeCond = sync.NewCond(&s.writeMu)
	s.SelfAddr = conn.LocalAddr().String()
	s.PeerAddr = conn.RemoteAddr().String()
	s.Cred = peerCredentials(conn)
	return s
}

// ID returns the session id, satisfying context.SessionHandle.
func (s *Session) ID() fdtypes.SessionID { return s.id }

// SecurityLevel returns the security level derived from the peer's
// token at handshake (0 = none).
func (s *Session) SecurityLevel() int32 { return s.securityLevel.Load() }

// SetSecurityLevel is called by the authentication sideband handler
// once the peer's token has been validated.
func (s *Session) SetSecurityLevel(level int32) { s.securityLevel.Store(level) }

// Start launches the session's read and write goroutines. Must be
// called once, after the session has been registered with the Context.
func (s *Session) Start() {
	go s.writeLoop()
	go s.readLoop()
}

// NextSerial allocates the next serial number for an outbound request
// on this session.
func (s *Session) NextSerial() fdtypes.SerialNumber {
	return fdtypes.SerialNumber(s.serialCounter.Add(1))
}

// RegisterPending installs msg in the pending-reply table under
// serial, arming an optional timeout timer on the owning Context.
// Invariant: the pending-reply table is non-empty only while the
// session is connected.
func (s *Session) RegisterPending(serial fdtypes.SerialNumber, msg *message.Message, timeout time.Duration) {
	entry := &pendingEntry{msg: msg}
	if timeout > 0 {
		entry.timer = s.ctx.NewTimer(timeout, false, func() {
			s.expirePending(serial)
		})
	}
	s.pendingMu.Lock()
	s.pending[serial] = entry
	s.pendingMu.Unlock()
	if entry.timer != nil {
		entry.timer.Start()
	}
}

func (s *Session) expirePending(serial fdtypes.SerialNumber) {
	s.pendingMu.Lock()
	entry, ok := s.pending[serial]
	if ok {
		delete(s.pending, serial)
	}
	s.pendingMu.Unlock()
	if !ok {
		return
	}
	entry.msg.TerminateTimeout()
}

// resolvePending looks up and removes a pending entry, stopping its
// timer, for an arriving reply/status/sideband-reply frame.
func (s *Session) resolvePending(serial fdtypes.SerialNumber) (*message.Message, bool) {
	s.pendingMu.Lock()
	entry, ok := s.pending[serial]
	if ok {
		delete(s.pending, serial)
	}
	s.pendingMu.Unlock()
	if !ok {
		return nil, false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	return entry.msg, true
}

// PendingCount returns the number of outstanding requests, for metrics
// and tests.
func (s *Session) PendingCount() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// Send serializes and writes msg's header+payload as a frame. It does
// not wait for a reply; callers needing a reply register the message
// with RegisterPending first.
func (s *Session) Send(msg *message.Message) error {
	h := &message.Header{
		Type:     msg.Type,
		Serial:   msg.Serial,
		Code:     msg.Code,
		Flags:    msg.Flags,
		ObjectID: msg.ObjectID,
		Topic:    msg.Topic,
	}
	if !msg.SendTime.IsZero() {
		h.SendTime = msg.SendTime.UnixNano()
	}
	if !msg.ReplyTime.IsZero() {
		h.ReplyTime = msg.ReplyTime.UnixNano()
	}
	frame, err := message.EncodeFrame(h, msg.Payload)
	if err != nil {
		return fmt.Errorf("transport: encode frame: %w", err)
	}
	return s.enqueueWrite(frame)
}

func (s *Session) enqueueWrite(frame []byte) error {
	if s.closed.Load() {
		return fdtypes.StatusUnableToSend
	}
	s.writeMu.Lock()
	s.writeQueue = append(s.writeQueue, frame)
	s.writeMu.Unlock()
	s.writeCond.Signal()
	return nil
}

// writeLoop drains the output chunk queue and writes each chunk to
// the socket in order. The queue is unbounded: a slow peer grows
// memory until the connection is finally closed.
func (s *Session) writeLoop() {
	for {
		s.writeMu.Lock()
		for len(s.writeQueue) == 0 && !s.closed.Load() {
			s.writeCond.Wait()
		}
		if len(s.writeQueue) == 0 && s.closed.Load() {
			s.writeMu.Unlock()
			return
		}
		chunk := s.writeQueue[0]
		s.writeQueue = s.writeQueue[1:]
		s.writeMu.Unlock()

		if _, err := s.conn.Write(chunk); err != nil {
			fdlog.WithSession(uint32(s.id)).Warn().Err(err).Msg("session write failed, tearing down")
			s.onIOError(err)
			return
		}
	}
}

// readLoop reads frames off the wire and dispatches them. It runs on
// its own goroutine; every table mutation it triggers happens by
// handing work to the Context or to the Dispatcher, never by touching
// shared state directly from here.
func (s *Session) readLoop() {
	prefix := make([]byte, fdtypes.FramePrefixLen)
	for {
		if _, err := io.ReadFull(s.conn, prefix); err != nil {
			s.onIOError(readErr(err))
			return
		}
		total, headLen, err := message.DecodePrefix(prefix)
		if err != nil {
			fdlog.WithSession(uint32(s.id)).Warn().Err(err).Msg("malformed frame prefix, disconnecting")
			s.Close(err)
			return
		}
		bodyLen := total - fdtypes.FramePrefixLen
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(s.conn, body); err != nil {
			s.onIOError(readErr(err))
			return
		}
		h, payload, err := message.DecodeFrame(headLen, body)
		if err != nil {
			fdlog.WithSession(uint32(s.id)).Warn().Err(err).Msg("malformed frame body, disconnecting")
			s.Close(err)
			return
		}
		s.dispatch(h, payload)
	}
}

func readErr(err error) error {
	if errors.Is(err, io.EOF) {
		return fdtypes.StatusPeerVanish
	}
	return err
}

func (s *Session) dispatch(h *message.Header, payload []byte) {
	msg := &message.Message{
		Type:       h.Type,
		Serial:     h.Serial,
		Code:       h.Code,
		Flags:      h.Flags,
		ObjectID:   h.ObjectID,
		Topic:      h.Topic,
		SessionID:  s.id,
		Payload:    payload,
		ArriveTime: time.Now(),
	}
	if h.SendTime != 0 {
		msg.SendTime = time.Unix(0, h.SendTime)
	}
	if h.ReplyTime != 0 {
		msg.ReplyTime = time.Unix(0, h.ReplyTime)
	}

	// Every case funnels through ctx.SendAsync, including reply/status
	// resolution, even though resolvePending+complete could run inline
	// on this read goroutine. A subscribe's terminal status and the
	// broadcasts that precede it both arrive on this same session and
	// both get queued onto the Context's job queue; queuing the status
	// resolution too keeps it behind those broadcast jobs instead of
	// racing ahead of them.
	switch h.Type {
	case fdtypes.MsgTypeRequest, fdtypes.MsgTypeSubscribeReq:
		s.ctx.SendAsync(func() { s.disp.DispatchRequest(s, msg) })
	case fdtypes.MsgTypeReply, fdtypes.MsgTypeStatus:
		s.ctx.SendAsync(func() {
			pending, ok := s.resolvePending(h.Serial)
			if !ok {
				return
			}
			msg.ReceiveTime = time.Now()
			if h.Type == fdtypes.MsgTypeStatus {
				pending.TerminateStatus(fdtypes.Status(int32(h.Code)), string(payload), h.Flags.Has(fdtypes.FlagIsSubscribe))
			} else {
				pending.Payload = payload
				pending.Reply(payload)
			}
		})
	case fdtypes.MsgTypeBroadcast:
		s.ctx.SendAsync(func() { s.disp.DispatchBroadcast(s, msg) })
	case fdtypes.MsgTypeSidebandReq:
		s.ctx.SendAsync(func() { s.disp.DispatchSideband(s, msg) })
	case fdtypes.MsgTypeSidebandReply:
		s.ctx.SendAsync(func() {
			if pending, ok := s.resolvePending(h.Serial); ok {
				pending.Payload = payload
				pending.Reply(payload)
			}
		})
	default:
		fdlog.WithSession(uint32(s.id)).Warn().Uint8("type", uint8(h.Type)).Msg("unknown frame type, dropped")
	}
}

// Close tears down the session: disables further I/O, removes it from
// its socket and the Context's session table, notifies the dispatcher,
// unsubscribes its records, and terminates every pending reply with
// PEER_VANISH, in a fixed teardown order.
func (s *Session) Close(reason error) {
	s.closeWithStatus(reason, fdtypes.StatusPeerVanish)
}

// closeWithStatus is Close with the pending-reply termination status
// overridden, used by a ClientSocket giving up on reconnect: the
// session's own drop is still reported as peer-vanish, but calls left
// pending on it are surfaced as NON_EXIST rather than PEER_VANISH,
// since the peer was given a bounded chance to come back and didn't.
func (s *Session) closeWithStatus(reason error, pendingStatus fdtypes.Status) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeCond.Signal()
		_ = s.conn.Close()

		s.ctx.SendAsync(func() {
			s.ctx.UnregisterSession(s.id)
			s.socket.removeSession(s.id)
			isLast := s.socket.sessionCount() == 0
			s.disp.NotifyOffline(s, isLast)
			s.disp.UnsubscribeSession(s)

			s.pendingMu.Lock()
			entries := make([]*pendingEntry, 0, len(s.pending))
			for _, e := range s.pending {
				entries = append(entries, e)
			}
			s.pending = make(map[fdtypes.SerialNumber]*pendingEntry)
			s.pendingMu.Unlock()

			for _, e := range entries {
				if e.timer != nil {
					e.timer.Stop()
				}
				e.msg.TerminateStatus(pendingStatus, peerVanishDesc(reason), false)
			}
		})
	})
}

// onIOError is the read/write loops' entry point on a transport-level
// error (as opposed to a protocol-level framing error, which always
// tears down immediately). A ClientSocket with reconnect enabled gets
// first refusal: it redials in the background and this session is torn
// down once the outcome is known, rather than right away.
func (s *Session) onIOError(err error) {
	if cs, ok := s.socket.(*ClientSocket); ok {
		if enabled, _, _ := cs.reconnectSettings(); enabled {
			cs.scheduleReconnect(s, err)
			return
		}
	}
	s.Close(err)
}

func peerVanishDesc(reason error) string {
	if reason == nil {
		return "peer vanished"
	}
	return reason.Error()
}

// Peers returns diagnostic info about this session, for the
// session-info sideband.
func (s *Session) Peers() (self, peer string, cred PeerCredentials) {
	return s.SelfAddr, s.PeerAddr, s.Cred
}
