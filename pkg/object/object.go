package object

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/fdbus/pkg/fdlog"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/cuemby/fdbus/pkg/transport"
)

// subscribeOp distinguishes a subscribe-request's add and remove forms,
// carried in the wire message's otherwise-unused Code field.
const (
	subscribeOpAdd    uint32 = 0
	subscribeOpRemove uint32 = 1
)

// Flag is a bitmask of per-object behavior toggles.
type Flag uint32

const (
	FlagEventCacheEnabled Flag = 1 << iota
	FlagTimestampEnabled
	FlagEventRouteEnabled
	FlagWatchdogEnabled
	FlagLogEnabled
	FlagAutoRemove
	FlagMigrateEnabled
)

func (f Flag) has(bit Flag) bool { return f&bit != 0 }

// Object is one addressable unit multiplexed over an endpoint's
// sessions: either the endpoint's main object (fdtypes.MainObjectID)
// or a secondary object created on demand. It owns its own
// subscription table and event cache; Endpoint owns the sockets and
// routes decoded frames to the right Object.
type Object struct {
	id   fdtypes.ObjectID
	ep   *Endpoint
	role fdtypes.Role

	subs  *SubscriptionEngine
	cache *EventCache

	flagsMu sync.RWMutex
	flags   Flag

	// OnInvoke handles an incoming request. The handler must terminate
	// msg exactly once, via msg.Reply or msg.TerminateStatus, either
	// synchronously or later from another goroutine.
	OnInvoke func(obj *Object, sess *transport.Session, msg *message.Message)
	// OnBroadcast handles an incoming broadcast addressed to this
	// object, after the subscription engine's own fan-out bookkeeping.
	OnBroadcast func(obj *Object, sess *transport.Session, msg *message.Message)
	// OnManualUpdate handles a manual-update trigger (FlagManualUpdate)
	// for an on-request subscription.
	OnManualUpdate func(obj *Object, sess *transport.Session, code fdtypes.EventCode, topic string)
	// OnSideband handles a user sideband request (code >=
	// fdtypes.FirstUserSidebandCode) addressed to this object.
	OnSideband func(obj *Object, sess *transport.Session, code fdtypes.SidebandCode, msg *message.Message)
	// OnSubscribe is called once a subscribe/unsubscribe-request's
	// items have been installed in subs but before the terminal status
	// is sent, so it can seed or invalidate cache entries.
	OnSubscribe func(obj *Object, sess *transport.Session, items []SubscribeItem, isUnsubscribe bool)
	// OnOnline/OnOffline mirror Endpoint's session lifecycle, scoped to
	// this object.
	OnOnline  func(obj *Object, sess *transport.Session, isFirst bool)
	OnOffline func(obj *Object, sess *transport.Session, isLast bool)
}

// NewObject creates an object bound to ep, with its own subscription
// engine and event cache.
func NewObject(id fdtypes.ObjectID, role fdtypes.Role, ep *Endpoint) *Object {
	return &Object{
		id:    id,
		ep:    ep,
		role:  role,
		subs:  NewSubscriptionEngine(),
		cache: NewEventCache(),
	}
}

// ID returns the object's id.
func (o *Object) ID() fdtypes.ObjectID { return o.id }

// Role returns the role of the endpoint the object belongs to.
func (o *Object) Role() fdtypes.Role { return o.role }

// Subscriptions returns the object's subscription engine, for
// diagnostics and the query-client/query-event-cache sideband handlers.
func (o *Object) Subscriptions() *SubscriptionEngine { return o.subs }

// Cache returns the object's event cache.
func (o *Object) Cache() *EventCache { return o.cache }

// SetFlags ORs bits into the object's flag set.
func (o *Object) SetFlags(f Flag) {
	o.flagsMu.Lock()
	o.flags |= f
	o.flagsMu.Unlock()
}

// ClearFlags clears bits from the object's flag set.
func (o *Object) ClearFlags(f Flag) {
	o.flagsMu.Lock()
	o.flags &^= f
	o.flagsMu.Unlock()
}

// HasFlag reports whether every bit in f is set.
func (o *Object) HasFlag(f Flag) bool {
	o.flagsMu.RLock()
	defer o.flagsMu.RUnlock()
	return o.flags.has(f)
}

// Invoke sends a synchronous request over sess and blocks for a reply
// or status, subject to timeout (0 = no timeout). It is the client
// side of the request/reply exchange.
func (o *Object) Invoke(sess *transport.Session, code uint32, payload []byte, timeout time.Duration) ([]byte, fdtypes.Status, error) {
	return o.invoke(sess, message.NewRequest(o.id, code, payload), timeout)
}

// InvokeAsync is Invoke without blocking the caller: onDone, if set, is
// called exactly once when the message terminates. The returned
// Message can also be waited on directly via msg.Wait.
func (o *Object) InvokeAsync(sess *transport.Session, code uint32, payload []byte, timeout time.Duration, onDone func(*message.Message)) *message.Message {
	msg := message.NewRequest(o.id, code, payload)
	msg.OnDone = onDone
	msg.Serial = sess.NextSerial()
	sess.RegisterPending(msg.Serial, msg, timeout)
	if err := sess.Send(msg); err != nil {
		msg.TerminateStatus(fdtypes.StatusUnableToSend, err.Error(), false)
	}
	return msg
}

// Send issues a fire-and-forget request: no reply is expected and no
// pending-table entry is created.
func (o *Object) Send(sess *transport.Session, code uint32, payload []byte) error {
	msg := message.NewRequest(o.id, code, payload)
	msg.Flags |= fdtypes.FlagNoReplyExpected
	msg.Serial = sess.NextSerial()
	return sess.Send(msg)
}

func (o *Object) invoke(sess *transport.Session, msg *message.Message, timeout time.Duration) ([]byte, fdtypes.Status, error) {
	msg.Serial = sess.NextSerial()
	sess.RegisterPending(msg.Serial, msg, timeout)
	if err := sess.Send(msg); err != nil {
		return nil, fdtypes.StatusUnableToSend, err
	}
	msg.Wait(0) // the timer armed by RegisterPending owns the timeout
	payload, status, desc, _ := msg.Result()
	if status.IsError() {
		if desc != "" {
			return payload, status, fmt.Errorf("%s: %w", desc, status)
		}
		return payload, status, status
	}
	return payload, status, nil
}

// Subscribe installs local subscription records for items and sends a
// subscribe-request to sess, blocking until the terminal status
// arrives. Any broadcasts the server replays for the new subscription
// are delivered to the session's normal broadcast path strictly before
// that status, because both travel through the same per-session
// Context job queue in wire order.
func (o *Object) Subscribe(sess *transport.Session, items []SubscribeItem, timeout time.Duration) (fdtypes.Status, error) {
	for _, it := range items {
		o.subs.Subscribe(Subscription{Session: sess.ID(), Object: o.id, Code: it.Code, Topic: it.Topic, Type: it.Type})
	}
	msg := message.NewSubscribe(o.id, EncodeSubscribeList(items))
	msg.Code = subscribeOpAdd
	_, status, err := o.invoke(sess, msg, timeout)
	return status, err
}

// Unsubscribe removes local subscription records for items and
// notifies the peer.
func (o *Object) Unsubscribe(sess *transport.Session, items []SubscribeItem, timeout time.Duration) (fdtypes.Status, error) {
	for _, it := range items {
		o.subs.Unsubscribe(sess.ID(), o.id, it.Code, it.Topic)
	}
	msg := message.NewSubscribe(o.id, EncodeSubscribeList(items))
	msg.Code = subscribeOpRemove
	_, status, err := o.invoke(sess, msg, timeout)
	return status, err
}

// TriggerUpdate asks the server to re-evaluate an on-request
// subscription rather than waiting for its next natural broadcast
// (FlagManualUpdate).
func (o *Object) TriggerUpdate(sess *transport.Session, code fdtypes.EventCode, topic string) error {
	msg := message.NewBroadcast(o.id, uint32(code), topic, nil)
	msg.Flags |= fdtypes.FlagManualUpdate | fdtypes.FlagNoReplyExpected
	msg.Serial = sess.NextSerial()
	return sess.Send(msg)
}

// Unicast sends a single broadcast-type frame to sess without
// consulting the subscription table, for callers that keep their own
// replay state outside the object's event cache (e.g. a log server
// replaying its full history to one newly-subscribed viewer rather
// than the single latest value ReplayCache gives every subscriber).
func (o *Object) Unicast(sess *transport.Session, code fdtypes.EventCode, topic string, payload []byte) error {
	msg := message.NewBroadcast(o.id, uint32(code), topic, payload)
	msg.Serial = sess.NextSerial()
	return sess.Send(msg)
}

// Get returns the object's own cached value for (code, topic), used by
// a server object answering a get-event request or a client reading
// back what it last received.
func (o *Object) Get(code fdtypes.EventCode, topic string) ([]byte, bool) {
	return o.cache.Get(code, topic)
}

// Broadcast fans a (code, topic, payload) broadcast out to every
// matching local subscriber, writing at most one frame per session
// even when a session holds several matching subscription records. If
// the object's event cache is enabled, the broadcast also updates the
// cache and is suppressed when unchanged unless alwaysUpdate or
// forceUpdate is set.
func (o *Object) Broadcast(code fdtypes.EventCode, topic string, payload []byte, alwaysUpdate, forceUpdate bool) {
	if o.HasFlag(FlagEventCacheEnabled) {
		if !o.cache.Update(code, topic, payload, alwaysUpdate, forceUpdate) {
			return
		}
	}
	o.fanOut(code, topic, payload)
}

func (o *Object) fanOut(code fdtypes.EventCode, topic string, payload []byte) {
	matches := o.subs.MatchNormal(code, topic)
	if len(matches) == 0 {
		return
	}
	bySession := make(map[fdtypes.SessionID]struct{}, len(matches))
	for _, sub := range matches {
		bySession[sub.Session] = struct{}{}
	}
	for sid := range bySession {
		sess, ok := o.ep.sessionByID(sid)
		if !ok {
			continue
		}
		msg := message.NewBroadcast(o.id, uint32(code), topic, payload)
		if err := sess.Send(msg); err != nil {
			fdlog.WithSession(uint32(sid)).Warn().Err(err).Msg("broadcast send failed")
		}
	}
}

// ReplayCache sends every cached entry matching any of items as an
// initial broadcast to sess, in cache insertion order, before the
// caller sends the subscribe transaction's terminal status.
func (o *Object) ReplayCache(sess *transport.Session, items []SubscribeItem) {
	for _, it := range items {
		code, topic := it.Code, it.Topic
		replay := o.cache.Replay(func(c fdtypes.EventCode, t string) bool {
			if code.IsGroup() {
				return c.Group() == code.Group() && (topic == "" || topic == t)
			}
			return c == code && (topic == "" || topic == t)
		})
		for _, r := range replay {
			msg := message.NewBroadcast(o.id, uint32(r.Code), r.Topic, r.Bytes)
			msg.Flags |= fdtypes.FlagInitialResponse
			_ = sess.Send(msg)
		}
	}
}
