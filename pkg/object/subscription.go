package object

import (
	"sync"

	"github.com/cuemby/fdbus/pkg/fdtypes"
)

// SubscriptionType distinguishes records that fire on every broadcast
// from records that only fire on an explicit update trigger.
type SubscriptionType int

const (
	// SubscriptionNormal fires on every matching broadcast.
	SubscriptionNormal SubscriptionType = iota
	// SubscriptionOnRequest only fires when the client issues an
	// update trigger naming this code.
	SubscriptionOnRequest
)

// Subscription is one (session, object, event_code, topic) record.
type Subscription struct {
	Session fdtypes.SessionID
	Object  fdtypes.ObjectID
	Code    fdtypes.EventCode
	Topic   string
	Type    SubscriptionType
}

type subKey struct {
	session fdtypes.SessionID
	object  fdtypes.ObjectID
	topic   string
}

// SubscriptionEngine holds one object's two parallel subscription
// tables (exact event code, and group code).
// All methods assume the caller already holds the owning object's
// single-writer guarantee (they run on the Context or the object's
// Worker); the engine itself only needs a mutex because metrics and
// diagnostics may read it concurrently.
type SubscriptionEngine struct {
	mu       sync.RWMutex
	byEvent  map[fdtypes.EventCode]map[subKey]*Subscription
	byGroup  map[uint8]map[subKey]*Subscription
}

// NewSubscriptionEngine creates an empty engine.
func NewSubscriptionEngine() *SubscriptionEngine {
	return &SubscriptionEngine{
		byEvent: make(map[fdtypes.EventCode]map[subKey]*Subscription),
		byGroup: make(map[uint8]map[subKey]*Subscription),
	}
}

// Subscribe installs a subscription record, replacing any existing
// record with the same (session, object, code, topic) key so a
// re-subscribe updates the type in place.
func (e *SubscriptionEngine) Subscribe(sub Subscription) {
	key := subKey{session: sub.Session, object: sub.Object, topic: sub.Topic}
	e.mu.Lock()
	defer e.mu.Unlock()
	if sub.Code.IsGroup() {
		g := sub.Code.Group()
		m, ok := e.byGroup[g]
		if !ok {
			m = make(map[subKey]*Subscription)
			e.byGroup[g] = m
		}
		rec := sub
		m[key] = &rec
		return
	}
	m, ok := e.byEvent[sub.Code]
	if !ok {
		m = make(map[subKey]*Subscription)
		e.byEvent[sub.Code] = m
	}
	rec := sub
	m[key] = &rec
}

// Unsubscribe removes one specific record.
func (e *SubscriptionEngine) Unsubscribe(session fdtypes.SessionID, object fdtypes.ObjectID, code fdtypes.EventCode, topic string) {
	key := subKey{session: session, object: object, topic: topic}
	e.mu.Lock()
	defer e.mu.Unlock()
	if code.IsGroup() {
		if m, ok := e.byGroup[code.Group()]; ok {
			delete(m, key)
		}
		return
	}
	if m, ok := e.byEvent[code]; ok {
		delete(m, key)
	}
}

// UnsubscribeSession removes every record belonging to session, used
// on session teardown.
func (e *SubscriptionEngine) UnsubscribeSession(session fdtypes.SessionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.byEvent {
		for k := range m {
			if k.session == session {
				delete(m, k)
			}
		}
	}
	for _, m := range e.byGroup {
		for k := range m {
			if k.session == session {
				delete(m, k)
			}
		}
	}
}

// Match returns every subscription record of either type that should
// receive a (code, topic) event: exact-code records whose topic is
// empty (match-any) or equal, plus group records whose group byte
// matches code's group. This includes SubscriptionOnRequest records,
// so callers driving a spontaneous broadcast must use MatchNormal
// instead; Match itself is for the on-request delivery path (a
// manual-update trigger looking up the specific subscription it
// should answer, typically via MatchSession).
func (e *SubscriptionEngine) Match(code fdtypes.EventCode, topic string) []*Subscription {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*Subscription
	if m, ok := e.byEvent[code]; ok {
		for _, sub := range m {
			if sub.Topic == "" || sub.Topic == topic {
				out = append(out, sub)
			}
		}
	}
	if m, ok := e.byGroup[code.Group()]; ok {
		for _, sub := range m {
			if sub.Topic == "" || sub.Topic == topic {
				out = append(out, sub)
			}
		}
	}
	return out
}

// MatchNormal is Match filtered to SubscriptionNormal records, used by
// a spontaneous Broadcast: SubscriptionOnRequest records only ever
// fire in response to an explicit update trigger, never here.
func (e *SubscriptionEngine) MatchNormal(code fdtypes.EventCode, topic string) []*Subscription {
	all := e.Match(code, topic)
	out := all[:0]
	for _, sub := range all {
		if sub.Type == SubscriptionNormal {
			out = append(out, sub)
		}
	}
	return out
}

// MatchSession is Match filtered to a single session, used to replay
// the event cache or an on-request trigger to one subscriber.
func (e *SubscriptionEngine) MatchSession(session fdtypes.SessionID, code fdtypes.EventCode, topic string) []*Subscription {
	all := e.Match(code, topic)
	var out []*Subscription
	for _, s := range all {
		if s.Session == session {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the total number of live subscription records, for metrics.
func (e *SubscriptionEngine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, m := range e.byEvent {
		n += len(m)
	}
	for _, m := range e.byGroup {
		n += len(m)
	}
	return n
}
