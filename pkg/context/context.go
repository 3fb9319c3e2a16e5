package context

import (
	"sync"
	"time"

	"github.com/cuemby/fdbus/pkg/fdlog"
	"github.com/cuemby/fdbus/pkg/fdtypes"
)

// EndpointHandle is the minimal surface a Context needs from an
// endpoint (concrete type lives in pkg/object) to hold it in the
// endpoint table and drive teardown. Defining the interface here,
// rather than importing the endpoint package, keeps context free of a
// dependency on every package that registers things with it.
type EndpointHandle interface {
	ID() fdtypes.EndpointID
	Name() string
	PrepareDestroy()
}

// SessionHandle is the minimal surface a Context needs from a session
// (concrete type lives in pkg/transport) to hold it in the session
// table and tear it down.
type SessionHandle interface {
	ID() fdtypes.SessionID
	Close(reason error)
}

// Context is the process-wide FDBus instance: a single cooperative
// event-loop goroutine owning the endpoint table, the session table,
// and the job queue that marshals calls onto it. A process normally
// has exactly one Context (use Default()), but nothing here prevents
// constructing more for testing.
type Context struct {
	*loop

	mu          sync.RWMutex // guards the maps below for external readers (metrics, diagnostics)
	endpoints   map[fdtypes.EndpointID]EndpointHandle
	sessions    map[fdtypes.SessionID]SessionHandle
	nextEndpoint uint32

	nameProxy EndpointHandle
	logger    EndpointHandle

	startOnce sync.Once
	started   bool
}

// New creates a Context. The event loop goroutine does not run until
// Start is called.
func New() *Context {
	return &Context{
		loop:      newLoop("context", 0, fdlog.WithComponent("context")),
		endpoints: make(map[fdtypes.EndpointID]EndpointHandle),
		sessions:  make(map[fdtypes.SessionID]SessionHandle),
	}
}

var (
	defaultOnce sync.Once
	defaultCtx  *Context
)

// Default returns the process-wide lazily-created Context singleton.
func Default() *Context {
	defaultOnce.Do(func() { defaultCtx = New() })
	return defaultCtx
}

// Start installs the event-loop goroutine. It is idempotent: calling
// Start more than once has no additional effect.
func (c *Context) Start() {
	c.startOnce.Do(func() {
		c.loop.start()
		c.started = true
	})
}

// Started reports whether Start has run.
func (c *Context) Started() bool { return c.started }

// RegisterEndpoint adds ep to the endpoint table. Must run on the
// Context goroutine; external callers should go through
// RegisterEndpointSync.
func (c *Context) RegisterEndpoint(ep EndpointHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[ep.ID()] = ep
}

// RegisterEndpointSync registers ep as a synchronous job: external
// threads wishing to register or unregister endpoints submit
// synchronous jobs rather than touching the tables directly.
func (c *Context) RegisterEndpointSync(ep EndpointHandle) error {
	return c.SendSync(func() { c.RegisterEndpoint(ep) }, 0)
}

// UnregisterEndpoint removes an endpoint from the table.
func (c *Context) UnregisterEndpoint(id fdtypes.EndpointID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.endpoints, id)
}

// Endpoint looks up an endpoint by id.
func (c *Context) Endpoint(id fdtypes.EndpointID) (EndpointHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ep, ok := c.endpoints[id]
	return ep, ok
}

// AllocEndpointID allocates the next free endpoint id. Endpoint ids
// are 16-bit; exhausting the space is a fatal condition the caller
// must surface rather than silently wrap or reuse an id.
func (c *Context) AllocEndpointID() (fdtypes.EndpointID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < 0xFFFF; i++ {
		id := fdtypes.EndpointID(c.nextEndpoint)
		c.nextEndpoint++
		if c.nextEndpoint >= 0xFFFF {
			c.nextEndpoint = 0
		}
		if _, exists := c.endpoints[id]; !exists && id != fdtypes.InvalidEndpointID {
			return id, true
		}
	}
	return fdtypes.InvalidEndpointID, false
}

// RegisterSession adds sess to the session table.
func (c *Context) RegisterSession(sess SessionHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sess.ID()] = sess
}

// UnregisterSession removes a session from the table.
func (c *Context) UnregisterSession(id fdtypes.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}

// Session looks up a session by id.
func (c *Context) Session(id fdtypes.SessionID) (SessionHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sess, ok := c.sessions[id]
	return sess, ok
}

// SessionCount returns the number of live sessions, used by metrics.
func (c *Context) SessionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// EndpointCount returns the number of registered endpoints.
func (c *Context) EndpointCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.endpoints)
}

// SetNameProxy records the context-owned name-proxy endpoint. It only
// stores ep: Start does not create or start a name proxy, so the
// caller that builds one starts it itself.
func (c *Context) SetNameProxy(ep EndpointHandle) { c.nameProxy = ep }

// NameProxy returns the context-owned name-proxy endpoint, if any.
func (c *Context) NameProxy() EndpointHandle { return c.nameProxy }

// SetLogger records the context-owned logger client endpoint.
func (c *Context) SetLogger(ep EndpointHandle) { c.logger = ep }

// Logger returns the context-owned logger endpoint, if any.
func (c *Context) Logger() EndpointHandle { return c.logger }

// SendAsync enqueues fn to run on the Context goroutine.
func (c *Context) SendAsync(fn func()) { c.submitAsync(false, fn) }

// SendAsyncUrgent is SendAsync but jumps ahead of normal-priority jobs.
func (c *Context) SendAsyncUrgent(fn func()) { c.submitAsync(true, fn) }

// SendSync runs fn on the Context goroutine and blocks the caller
// until it completes or timeout elapses (0 = no timeout). Calling
// SendSync from the Context goroutine itself returns
// fdtypes.StatusDeadLock instead of deadlocking.
func (c *Context) SendSync(fn func(), timeout time.Duration) error {
	return c.submitSync(false, timeout, fn)
}

// NewTimer creates a timer that fires fn on the Context goroutine.
func (c *Context) NewTimer(interval time.Duration, repeat bool, fn func()) *Timer {
	return newTimer(c.loop, interval, repeat, fn)
}

// Destroy tears down every endpoint, then stops the loop goroutine.
func (c *Context) Destroy() {
	c.mu.RLock()
	eps := make([]EndpointHandle, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		eps = append(eps, ep)
	}
	c.mu.RUnlock()

	for _, ep := range eps {
		ep.PrepareDestroy()
	}
	c.stop()
}
