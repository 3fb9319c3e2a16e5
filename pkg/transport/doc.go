/*
Package transport implements fdbus sockets and sessions: binding/
connecting to a URL, framing messages on the wire, and
dispatching decoded frames to whatever owns the target object.

A ServerSocket listens and accepts; a ClientSocket dials with bounded
retries. Each accepted or dialed connection becomes a Session, which
owns the peer's pending-reply table, runs the read loop on its own
goroutine (the idiomatic Go substitute for a cooperative non-blocking
fd watch — see pkg/context's doc comment), and serializes writes
through a single writer goroutine draining an unbounded chunk queue:
a slow reader backs up the queue rather than blocking the writer,
until the socket is finally closed.

transport depends on pkg/context (to marshal table mutations onto the
Context goroutine) and pkg/message (the wire codec) but not on
pkg/object: the Dispatcher interface defined here is implemented by
pkg/object so transport never imports it, keeping the dependency
graph acyclic.
*/
package transport
