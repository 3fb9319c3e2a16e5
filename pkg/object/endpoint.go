package object

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdlog"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/cuemby/fdbus/pkg/security"
	"github.com/cuemby/fdbus/pkg/transport"
)

// Endpoint aggregates one endpoint's sockets and objects, implements
// context.EndpointHandle so the Context can hold and tear it down, and
// implements transport.Dispatcher so sessions can route decoded frames
// back to the right object. It collapses the
// server/client/object role hierarchy into one type tagged by
// fdtypes.Role.
type Endpoint struct {
	id      fdtypes.EndpointID
	name    string
	busName string
	role    fdtypes.Role
	ctx     *fdctx.Context

	socketsMu  sync.RWMutex
	sockets    map[fdtypes.SocketID]transport.Socket
	nextSocket atomic.Uint32

	objectsMu        sync.RWMutex
	objects          map[fdtypes.ObjectID]*Object
	nextObjectSerial atomic.Uint32
	mainObject       *Object

	sessionsMu     sync.RWMutex
	sessions       map[fdtypes.SessionID]*transport.Session
	sessionCounter atomic.Uint32

	tokens *security.TokenManager

	securityMu          sync.RWMutex
	requestMinLevel     map[uint32]int32
	broadcastMinLevel   map[uint32]int32
	sidebandMinLevel    map[fdtypes.SidebandCode]int32

	watchdog *Watchdog

	// OnCreateObject is consulted when a request or subscribe-request
	// names an object id the endpoint has not yet created; returning
	// nil leaves the request answered with OBJECT_NOT_FOUND. Returning
	// an Object creates it on demand.
	OnCreateObject func(ep *Endpoint, id fdtypes.ObjectID) *Object
}

// NewEndpoint allocates an endpoint id from ctx and creates its main
// object (fdtypes.MainObjectID).
func NewEndpoint(ctx *fdctx.Context, name string, role fdtypes.Role) (*Endpoint, error) {
	id, ok := ctx.AllocEndpointID()
	if !ok {
		return nil, fmt.Errorf("object: endpoint id space exhausted")
	}
	ep := &Endpoint{
		id:                id,
		name:              name,
		role:              role,
		ctx:               ctx,
		sockets:           make(map[fdtypes.SocketID]transport.Socket),
		objects:           make(map[fdtypes.ObjectID]*Object),
		sessions:          make(map[fdtypes.SessionID]*transport.Session),
		requestMinLevel:   make(map[uint32]int32),
		broadcastMinLevel: make(map[uint32]int32),
		sidebandMinLevel:  make(map[fdtypes.SidebandCode]int32),
	}
	ep.mainObject = NewObject(fdtypes.MainObjectID, role, ep)
	ep.objects[fdtypes.MainObjectID] = ep.mainObject
	return ep, nil
}

// ID satisfies context.EndpointHandle.
func (ep *Endpoint) ID() fdtypes.EndpointID { return ep.id }

// Name satisfies context.EndpointHandle.
func (ep *Endpoint) Name() string { return ep.name }

// BusName is the name this endpoint registers with the name server.
func (ep *Endpoint) BusName() string { return ep.busName }

// SetBusName records the name-server-visible name.
func (ep *Endpoint) SetBusName(name string) { ep.busName = name }

// Role returns the endpoint's role.
func (ep *Endpoint) Role() fdtypes.Role { return ep.role }

// MainObject returns the endpoint's main (id 0) object.
func (ep *Endpoint) MainObject() *Object { return ep.mainObject }

// SetTokenManager installs the token manager an inbound
// SidebandAuthentication request is checked against. A nil or empty
// manager accepts every peer at security level zero.
func (ep *Endpoint) SetTokenManager(tm *security.TokenManager) { ep.tokens = tm }

// SetRequestSecurityLevel requires a session to have authenticated at
// level >= level before a request/subscribe-request naming code is
// dispatched to its object. The default, for any code with no entry,
// is zero (no authentication required).
func (ep *Endpoint) SetRequestSecurityLevel(code uint32, level int32) {
	ep.securityMu.Lock()
	ep.requestMinLevel[code] = level
	ep.securityMu.Unlock()
}

// SetBroadcastSecurityLevel is SetRequestSecurityLevel for inbound
// broadcasts, keyed by event code.
func (ep *Endpoint) SetBroadcastSecurityLevel(code fdtypes.EventCode, level int32) {
	ep.securityMu.Lock()
	ep.broadcastMinLevel[uint32(code)] = level
	ep.securityMu.Unlock()
}

// SetSidebandSecurityLevel is SetRequestSecurityLevel for inbound
// sideband requests, keyed by sideband code. It applies only to user
// sideband codes (>= fdtypes.FirstUserSidebandCode); the five
// core-owned sideband codes are always dispatched so authentication
// itself remains reachable.
func (ep *Endpoint) SetSidebandSecurityLevel(code fdtypes.SidebandCode, level int32) {
	ep.securityMu.Lock()
	ep.sidebandMinLevel[code] = level
	ep.securityMu.Unlock()
}

func (ep *Endpoint) requiredRequestLevel(code uint32) int32 {
	ep.securityMu.RLock()
	defer ep.securityMu.RUnlock()
	return ep.requestMinLevel[code]
}

func (ep *Endpoint) requiredBroadcastLevel(code fdtypes.EventCode) int32 {
	ep.securityMu.RLock()
	defer ep.securityMu.RUnlock()
	return ep.broadcastMinLevel[uint32(code)]
}

func (ep *Endpoint) requiredSidebandLevel(code fdtypes.SidebandCode) int32 {
	ep.securityMu.RLock()
	defer ep.securityMu.RUnlock()
	return ep.sidebandMinLevel[code]
}

// EnableWatchdog starts a session liveness watchdog on the Context's
// timer, kicking every connected session over the watchdog sideband
// and closing any session that misses cfg.MaxRetries acks in a row.
func (ep *Endpoint) EnableWatchdog(cfg WatchdogConfig) {
	wd := NewWatchdog(ep.ctx, cfg)
	wd.Kick = func(sid fdtypes.SessionID) {
		sess, ok := ep.sessionByID(sid)
		if !ok {
			return
		}
		msg := message.NewSideband(fdtypes.MainObjectID, fdtypes.SidebandWatchdog, nil)
		msg.Flags |= fdtypes.FlagNoReplyExpected
		msg.Serial = sess.NextSerial()
		_ = sess.Send(msg)
	}
	wd.OnBark = func(sid fdtypes.SessionID) {
		sess, ok := ep.sessionByID(sid)
		if !ok {
			return
		}
		fdlog.WithSession(uint32(sid)).Warn().Msg("watchdog exhausted retries, closing session")
		sess.Close(fdtypes.StatusTimeout)
	}
	ep.watchdog = wd
	ep.mainObject.SetFlags(FlagWatchdogEnabled)
	wd.Start()
}

// CreateObject allocates a secondary object of the given class and
// registers it, returning nil and an error if the 16-bit
// per-endpoint serial space is exhausted.
func (ep *Endpoint) CreateObject(class uint16) (*Object, error) {
	ep.objectsMu.Lock()
	defer ep.objectsMu.Unlock()
	for i := 0; i < 0xFFFF; i++ {
		serial := uint16(ep.nextObjectSerial.Add(1))
		id := fdtypes.MakeObjectID(serial, class)
		if _, exists := ep.objects[id]; exists {
			continue
		}
		obj := NewObject(id, ep.role, ep)
		ep.objects[id] = obj
		return obj, nil
	}
	return nil, fmt.Errorf("object: per-endpoint object id space exhausted")
}

// RemoveObject unregisters a secondary object. The main object cannot
// be removed.
func (ep *Endpoint) RemoveObject(id fdtypes.ObjectID) {
	if id == fdtypes.MainObjectID {
		return
	}
	ep.objectsMu.Lock()
	delete(ep.objects, id)
	ep.objectsMu.Unlock()
}

func (ep *Endpoint) object(id fdtypes.ObjectID) (*Object, bool) {
	ep.objectsMu.RLock()
	obj, ok := ep.objects[id]
	ep.objectsMu.RUnlock()
	if ok {
		return obj, true
	}
	if ep.OnCreateObject == nil {
		return nil, false
	}
	obj = ep.OnCreateObject(ep, id)
	if obj == nil {
		return nil, false
	}
	ep.objectsMu.Lock()
	ep.objects[id] = obj
	ep.objectsMu.Unlock()
	return obj, true
}

func (ep *Endpoint) nextSocketID() fdtypes.SocketID {
	return fdtypes.SocketID(ep.nextSocket.Add(1))
}

// nextSessionID packs the endpoint id into the high 16 bits of the
// session id so ids allocated by different endpoints in the same
// Context never collide.
func (ep *Endpoint) nextSessionID() fdtypes.SessionID {
	n := ep.sessionCounter.Add(1)
	return fdtypes.SessionID(uint32(ep.id)<<16 | (n & 0xFFFF))
}

// Bind opens a listening socket on url, the server role.
func (ep *Endpoint) Bind(url transport.URL) (transport.Socket, error) {
	sock, err := transport.NewServerSocket(ep.ctx, ep.nextSocketID(), ep.id, url, ep, ep.nextSessionID)
	if err != nil {
		return nil, err
	}
	ep.addSocket(sock)
	return sock, nil
}

// Connect dials url with bounded retry, the client role.
func (ep *Endpoint) Connect(url transport.URL) (transport.Socket, error) {
	sock, err := transport.NewClientSocket(ep.ctx, ep.nextSocketID(), ep.id, url, ep, ep.nextSessionID)
	if err != nil {
		return nil, err
	}
	ep.addSocket(sock)
	return sock, nil
}

func (ep *Endpoint) addSocket(sock transport.Socket) {
	ep.socketsMu.Lock()
	ep.sockets[sock.ID()] = sock
	ep.socketsMu.Unlock()
}

func (ep *Endpoint) sessionByID(id fdtypes.SessionID) (*transport.Session, bool) {
	ep.sessionsMu.RLock()
	defer ep.sessionsMu.RUnlock()
	s, ok := ep.sessions[id]
	return s, ok
}

// PrimarySession returns an arbitrary connected session, for client
// endpoints that hold exactly one (fdbus clients are not multiplexed
// over one socket).
func (ep *Endpoint) PrimarySession() (*transport.Session, bool) {
	ep.sessionsMu.RLock()
	defer ep.sessionsMu.RUnlock()
	for _, s := range ep.sessions {
		return s, true
	}
	return nil, false
}

// SessionCount reports the endpoint's live session count.
func (ep *Endpoint) SessionCount() int {
	ep.sessionsMu.RLock()
	defer ep.sessionsMu.RUnlock()
	return len(ep.sessions)
}

// PrepareDestroy satisfies context.EndpointHandle: it closes every
// socket (which in turn closes their sessions) and stops the watchdog.
func (ep *Endpoint) PrepareDestroy() {
	if ep.watchdog != nil {
		ep.watchdog.Stop()
	}
	ep.socketsMu.RLock()
	socks := make([]transport.Socket, 0, len(ep.sockets))
	for _, s := range ep.sockets {
		socks = append(socks, s)
	}
	ep.socketsMu.RUnlock()
	for _, s := range socks {
		_ = s.Close()
	}
}

// NotifyOnline satisfies transport.Dispatcher.
func (ep *Endpoint) NotifyOnline(sess *transport.Session, isFirst bool) {
	ep.sessionsMu.Lock()
	ep.sessions[sess.ID()] = sess
	ep.sessionsMu.Unlock()
	if ep.watchdog != nil {
		ep.watchdog.Track(sess.ID())
	}
	if ep.mainObject.OnOnline != nil {
		ep.mainObject.OnOnline(ep.mainObject, sess, isFirst)
	}
}

// NotifyOffline satisfies transport.Dispatcher.
func (ep *Endpoint) NotifyOffline(sess *transport.Session, isLast bool) {
	ep.sessionsMu.Lock()
	delete(ep.sessions, sess.ID())
	ep.sessionsMu.Unlock()
	if ep.watchdog != nil {
		ep.watchdog.Untrack(sess.ID())
	}
	if ep.mainObject.OnOffline != nil {
		ep.mainObject.OnOffline(ep.mainObject, sess, isLast)
	}
}

// UnsubscribeSession satisfies transport.Dispatcher: it drops sess's
// subscription records from every local object.
func (ep *Endpoint) UnsubscribeSession(sess *transport.Session) {
	ep.objectsMu.RLock()
	objs := make([]*Object, 0, len(ep.objects))
	for _, o := range ep.objects {
		objs = append(objs, o)
	}
	ep.objectsMu.RUnlock()
	for _, o := range objs {
		o.subs.UnsubscribeSession(sess.ID())
	}
}

// replyOverWire builds the Message's OnDone hook that turns its
// eventual Reply/TerminateStatus call into an actual frame written
// back to the peer over sess: Send only serializes the Message's
// current field values, so setting Type/Code/Payload here and
// re-using it is enough.
func replyOverWire(sess *transport.Session, msg *message.Message) func(*message.Message) {
	return func(m *message.Message) {
		if !m.ExpectsReply() {
			return
		}
		payload, status, desc, _ := m.Result()
		if m.IsStatus() {
			m.Type = fdtypes.MsgTypeStatus
			m.Code = uint32(status)
			m.Payload = []byte(desc)
		} else {
			m.Type = fdtypes.MsgTypeReply
			m.Payload = payload
		}
		if err := sess.Send(m); err != nil {
			fdlog.WithSession(uint32(sess.ID())).Warn().Err(err).Msg("reply send failed")
		}
	}
}

// DispatchRequest satisfies transport.Dispatcher: it routes an
// incoming request or subscribe-request to its object, handling
// on-demand object creation, the get-event fast path, and the
// subscribe transaction's cache replay before its terminal status.
func (ep *Endpoint) DispatchRequest(sess *transport.Session, msg *message.Message) {
	if sess.SecurityLevel() < ep.requiredRequestLevel(msg.Code) {
		if msg.ExpectsReply() {
			msg.OnDone = replyOverWire(sess, msg)
			msg.TerminateStatus(fdtypes.StatusAuthenticationFail, "security level too low", msg.Type == fdtypes.MsgTypeSubscribeReq)
		}
		return
	}

	obj, ok := ep.object(msg.ObjectID)
	if !ok {
		if msg.ExpectsReply() {
			msg.OnDone = replyOverWire(sess, msg)
			msg.TerminateStatus(fdtypes.StatusObjectNotFound, "object not found", msg.Type == fdtypes.MsgTypeSubscribeReq)
		}
		return
	}

	if msg.Type == fdtypes.MsgTypeSubscribeReq {
		ep.dispatchSubscribe(obj, sess, msg)
		return
	}

	if msg.Flags.Has(fdtypes.FlagGetEvent) {
		msg.OnDone = replyOverWire(sess, msg)
		payload, found := obj.Get(fdtypes.EventCode(msg.Code), msg.Topic)
		if found {
			msg.Reply(payload)
		} else {
			msg.TerminateStatus(fdtypes.StatusNonExist, "no cached value", false)
		}
		return
	}

	msg.OnDone = replyOverWire(sess, msg)
	if obj.OnInvoke != nil {
		obj.OnInvoke(obj, sess, msg)
	} else if msg.ExpectsReply() {
		msg.TerminateStatus(fdtypes.StatusNotImplemented, "no handler installed", false)
	}
}

func (ep *Endpoint) dispatchSubscribe(obj *Object, sess *transport.Session, msg *message.Message) {
	msg.OnDone = replyOverWire(sess, msg)
	items, err := DecodeSubscribeList(msg.Payload)
	if err != nil {
		msg.TerminateStatus(fdtypes.StatusMsgDecodeFail, err.Error(), true)
		return
	}
	isUnsub := msg.Code == subscribeOpRemove

	if isUnsub {
		for _, it := range items {
			obj.subs.Unsubscribe(sess.ID(), obj.id, it.Code, it.Topic)
		}
	} else {
		for _, it := range items {
			obj.subs.Subscribe(Subscription{Session: sess.ID(), Object: obj.id, Code: it.Code, Topic: it.Topic, Type: it.Type})
		}
	}
	if obj.OnSubscribe != nil {
		obj.OnSubscribe(obj, sess, items, isUnsub)
	}
	if !isUnsub && obj.HasFlag(FlagEventCacheEnabled) {
		obj.ReplayCache(sess, items)
	}

	status := fdtypes.StatusSubscribeOK
	if isUnsub {
		status = fdtypes.StatusUnsubscribeOK
	}
	msg.TerminateStatus(status, "", true)
}

// DispatchBroadcast satisfies transport.Dispatcher.
func (ep *Endpoint) DispatchBroadcast(sess *transport.Session, msg *message.Message) {
	code := fdtypes.EventCode(msg.Code)
	if sess.SecurityLevel() < ep.requiredBroadcastLevel(code) {
		return
	}

	obj, ok := ep.object(msg.ObjectID)
	if !ok {
		return
	}
	if msg.Flags.Has(fdtypes.FlagManualUpdate) {
		if obj.OnManualUpdate != nil {
			obj.OnManualUpdate(obj, sess, code, msg.Topic)
		}
		return
	}
	if obj.HasFlag(FlagEventCacheEnabled) {
		obj.cache.Update(code, msg.Topic, msg.Payload, false, msg.Flags.Has(fdtypes.FlagForceUpdate))
	}
	if obj.OnBroadcast != nil {
		obj.OnBroadcast(obj, sess, msg)
	}
}

// DispatchSideband satisfies transport.Dispatcher, handling the five
// core-owned sideband codes directly and forwarding user codes (>=
// fdtypes.FirstUserSidebandCode) to the target object's OnSideband.
func (ep *Endpoint) DispatchSideband(sess *transport.Session, msg *message.Message) {
	msg.OnDone = replyOverWire(sess, msg)
	code := fdtypes.SidebandCode(msg.Code)

	if code >= fdtypes.FirstUserSidebandCode && sess.SecurityLevel() < ep.requiredSidebandLevel(code) {
		if msg.ExpectsReply() {
			msg.TerminateStatus(fdtypes.StatusAuthenticationFail, "security level too low", false)
		}
		return
	}

	switch {
	case code == fdtypes.SidebandAuthentication:
		ep.handleAuth(sess, msg)
	case code == fdtypes.SidebandWatchdog:
		ep.handleWatchdogAck(sess, msg)
	case code == fdtypes.SidebandSessionInfo:
		ep.handleSessionInfo(sess, msg)
	case code == fdtypes.SidebandQueryClient:
		ep.handleQueryClient(sess, msg)
	case code == fdtypes.SidebandQueryEventCache:
		ep.handleQueryEventCache(sess, msg)
	case uint32(code) >= uint32(fdtypes.FirstUserSidebandCode):
		obj, ok := ep.object(msg.ObjectID)
		if !ok || obj.OnSideband == nil {
			if msg.ExpectsReply() {
				msg.TerminateStatus(fdtypes.StatusNotImplemented, "no sideband handler", false)
			}
			return
		}
		obj.OnSideband(obj, sess, code, msg)
	default:
		if msg.ExpectsReply() {
			msg.TerminateStatus(fdtypes.StatusNotImplemented, "unknown core sideband code", false)
		}
	}
}

func (ep *Endpoint) handleAuth(sess *transport.Session, msg *message.Message) {
	if ep.tokens == nil {
		sess.SetSecurityLevel(0)
		msg.TerminateStatus(fdtypes.StatusAutoReplyOK, "", false)
		return
	}
	level, err := ep.tokens.Validate(string(msg.Payload))
	if err != nil {
		msg.TerminateStatus(fdtypes.StatusAuthenticationFail, err.Error(), false)
		return
	}
	sess.SetSecurityLevel(int32(level))
	msg.TerminateStatus(fdtypes.StatusAutoReplyOK, "", false)
}

func (ep *Endpoint) handleWatchdogAck(sess *transport.Session, msg *message.Message) {
	if ep.watchdog != nil {
		ep.watchdog.Ack(sess.ID())
	}
	msg.TerminateStatus(fdtypes.StatusAutoReplyOK, "", false)
}

func (ep *Endpoint) handleSessionInfo(sess *transport.Session, msg *message.Message) {
	self, peer, cred := sess.Peers()
	info := fmt.Sprintf("self=%s peer=%s pid=%d uid=%d", self, peer, cred.PID, cred.UID)
	msg.Reply([]byte(info))
}

func (ep *Endpoint) handleQueryClient(sess *transport.Session, msg *message.Message) {
	ep.sessionsMu.RLock()
	n := len(ep.sessions)
	ep.sessionsMu.RUnlock()
	msg.Reply([]byte(fmt.Sprintf("endpoint=%s sessions=%d", ep.name, n)))
}

func (ep *Endpoint) handleQueryEventCache(sess *transport.Session, msg *message.Message) {
	obj, ok := ep.object(msg.ObjectID)
	if !ok {
		msg.TerminateStatus(fdtypes.StatusObjectNotFound, "object not found", false)
		return
	}
	replay := obj.cache.Replay(func(fdtypes.EventCode, string) bool { return true })
	lines := make([]string, 0, len(replay))
	for _, r := range replay {
		lines = append(lines, fmt.Sprintf("%d:%s(%dB)", r.Code, r.Topic, len(r.Bytes)))
	}
	msg.Reply([]byte(strings.Join(lines, ";")))
}
