package transport

import (
	"github.com/cuemby/fdbus/pkg/message"
)

// Dispatcher is implemented by pkg/object's Endpoint and routes a
// decoded frame to the object it targets. transport never imports
// object; Endpoint is handed to a Socket/Session purely through this
// interface, keeping the dependency graph acyclic.
type Dispatcher interface {
	// DispatchRequest routes an incoming request or subscribe-request
	// to its target object's onInvoke/onSubscribe callback.
	DispatchRequest(sess *Session, msg *message.Message)

	// DispatchBroadcast routes an incoming broadcast to its target
	// object's broadcast handling.
	DispatchBroadcast(sess *Session, msg *message.Message)

	// DispatchSideband handles a sideband request the core itself owns
	// (auth, watchdog, session-info, query-client, query-event-cache)
	// or, for codes >= fdtypes.FirstUserSidebandCode, forwards to user
	// code.
	DispatchSideband(sess *Session, msg *message.Message)

	// NotifyOnline is called once a session's socket completes its
	// first connection (is_first = true iff the socket's session
	// count was zero before this session).
	NotifyOnline(sess *Session, isFirst bool)

	// NotifyOffline is called on session teardown. isLast is true iff
	// this was the socket's last session.
	NotifyOffline(sess *Session, isLast bool)

	// UnsubscribeSession drops every subscription record belonging to
	// sess across every local object, as part of teardown.
	UnsubscribeSession(sess *Session)
}
