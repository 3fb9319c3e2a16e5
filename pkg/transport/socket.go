package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdlog"
	"github.com/cuemby/fdbus/pkg/fdtypes"
)

// clientRetryCount and clientRetryInterval are the bounded client
// socket connect-retry defaults.
const (
	clientRetryCount    = 5
	clientRetryInterval = 200 * time.Millisecond
)

// Socket is either a ServerSocket (listens and accepts) or a
// ClientSocket (dials, at most one session when non-multiplex).
type Socket interface {
	ID() fdtypes.SocketID
	URL() URL
	Close() error

	removeSession(fdtypes.SessionID)
	sessionCount() int
}

type baseSocket struct {
	id  fdtypes.SocketID
	url URL
	ctx *fdctx.Context
	ep  fdtypes.EndpointID
	disp Dispatcher

	mu       sync.Mutex
	sessions map[fdtypes.SessionID]*Session
}

func (b *baseSocket) ID() fdtypes.SocketID { return b.id }
func (b *baseSocket) URL() URL             { return b.url }

func (b *baseSocket) addSession(sess *Session) {
	b.mu.Lock()
	b.sessions[sess.ID()] = sess
	b.mu.Unlock()
}

func (b *baseSocket) removeSession(id fdtypes.SessionID) {
	b.mu.Lock()
	delete(b.sessions, id)
	b.mu.Unlock()
}

func (b *baseSocket) sessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// ServerSocket binds to a URL and accepts incoming connections,
// constructing a Session per accepted peer.
type ServerSocket struct {
	baseSocket
	listener net.Listener

	sessionIDs func() fdtypes.SessionID
}

// NewServerSocket binds addr and begins accepting in the background.
// sessionIDs allocates the next session id (typically the owning
// Context's id space).
func NewServerSocket(ctx *fdctx.Context, id fdtypes.SocketID, ep fdtypes.EndpointID, url URL, disp Dispatcher, sessionIDs func() fdtypes.SessionID) (*ServerSocket, error) {
	network, addr, err := url.NetworkAddr()
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: bind %s: %w", url, err)
	}
	s := &ServerSocket{
		baseSocket: baseSocket{
			id: id, url: url, ctx: ctx, ep: ep, disp: disp,
			sessions: make(map[fdtypes.SessionID]*Session),
		},
		listener:   ln,
		sessionIDs: sessionIDs,
	}
	go s.acceptLoop()
	return s, nil
}

func (s *ServerSocket) acceptLoop() {
	log := fdlog.WithComponent("socket")
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			log.Debug().Err(err).Str("url", s.url.String()).Msg("accept loop exiting")
			return
		}
		wasEmpty := s.sessionCount() == 0
		sid := s.sessionIDs()
		sess := newSession(sid, s.ctx, conn, s, s.disp)
		s.addSession(sess)
		s.ctx.SendAsync(func() {
			s.ctx.RegisterSession(sess)
			sess.Start()
			s.disp.NotifyOnline(sess, wasEmpty)
		})
	}
}

func (s *ServerSocket) Close() error {
	return s.listener.Close()
}

// ClientSocket dials a URL with bounded retries and holds at most one
// session (fdbus clients are not multiplexed over one socket).
type ClientSocket struct {
	baseSocket
	stopped bool
	mu      sync.Mutex

	sessionIDs func() fdtypes.SessionID

	reconnectMu       sync.Mutex
	reconnectEnabled  bool
	reconnectMaxTries int
	reconnectInterval time.Duration
}

// EnableReconnect turns on bounded auto-reconnect for this socket: when
// its session drops from a transport-level error (not an explicit
// Close), it redials up to maxAttempts times interval apart before
// giving up. A session that comes back is a fresh Session brought up
// the same way the initial connect is; a session that never comes back
// has every call still pending on the old one terminated with
// fdtypes.StatusNonExist instead of the usual StatusPeerVanish. Off by
// default, matching the original one-shot connect-retry behavior.
func (c *ClientSocket) EnableReconnect(maxAttempts int, interval time.Duration) {
	c.reconnectMu.Lock()
	c.reconnectEnabled = true
	c.reconnectMaxTries = maxAttempts
	c.reconnectInterval = interval
	c.reconnectMu.Unlock()
}

func (c *ClientSocket) reconnectSettings() (enabled bool, maxTries int, interval time.Duration) {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	return c.reconnectEnabled, c.reconnectMaxTries, c.reconnectInterval
}

// NewClientSocket dials url, retrying up to clientRetryCount times
// clientRetryInterval apart, and constructs one Session on success.
func NewClientSocket(ctx *fdctx.Context, id fdtypes.SocketID, ep fdtypes.EndpointID, url URL, disp Dispatcher, sessionIDs func() fdtypes.SessionID) (*ClientSocket, error) {
	c := &ClientSocket{
		baseSocket: baseSocket{
			id: id, url: url, ctx: ctx, ep: ep, disp: disp,
			sessions: make(map[fdtypes.SessionID]*Session),
		},
		sessionIDs: sessionIDs,
	}
	go c.connectLoop()
	return c, nil
}

func (c *ClientSocket) connectLoop() {
	log := fdlog.WithComponent("socket")
	conn, err := c.dialWithRetry(clientRetryCount, clientRetryInterval)
	if err != nil {
		log.Warn().Err(err).Str("url", c.url.String()).Msg("client socket exhausted connect retries")
		return
	}
	c.bringUp(conn)
}

// dialWithRetry dials the socket's url up to maxTries times, interval
// apart, bailing out early if the socket has been explicitly closed.
func (c *ClientSocket) dialWithRetry(maxTries int, interval time.Duration) (net.Conn, error) {
	log := fdlog.WithComponent("socket")
	network, addr, err := c.url.NetworkAddr()
	if err != nil {
		return nil, err
	}
	for attempt := 0; attempt < maxTries; attempt++ {
		c.mu.Lock()
		stopped := c.stopped
		c.mu.Unlock()
		if stopped {
			return nil, fmt.Errorf("transport: client socket stopped")
		}
		conn, err := net.Dial(network, addr)
		if err == nil {
			return conn, nil
		}
		log.Debug().Err(err).Int("attempt", attempt+1).Str("url", c.url.String()).Msg("connect retry")
		time.Sleep(interval)
	}
	return nil, fmt.Errorf("transport: exhausted %d connect attempts to %s", maxTries, c.url.String())
}

// bringUp constructs and registers a Session over an already-dialed
// conn, the common tail end of both the initial connect and a
// successful reconnect.
func (c *ClientSocket) bringUp(conn net.Conn) {
	wasEmpty := c.sessionCount() == 0
	sid := c.sessionIDs()
	sess := newSession(sid, c.ctx, conn, c, c.disp)
	c.addSession(sess)
	c.ctx.SendAsync(func() {
		c.ctx.RegisterSession(sess)
		sess.Start()
		c.disp.NotifyOnline(sess, wasEmpty)
	})
}

// scheduleReconnect redials in the background after dead dropped from
// a transport-level error, leaving dead's pending-reply table intact
// until the outcome is known: a successful redial tears dead down with
// the usual PEER_VANISH once the new session is up, while exhausting
// every attempt tears it down with NON_EXIST instead, since the peer
// was given a bounded chance to return and didn't.
func (c *ClientSocket) scheduleReconnect(dead *Session, reason error) {
	_, maxTries, interval := c.reconnectSettings()
	go func() {
		log := fdlog.WithComponent("socket")
		conn, err := c.dialWithRetry(maxTries, interval)
		if err != nil {
			log.Warn().Err(err).Str("url", c.url.String()).Msg("client socket exhausted reconnect attempts, giving up")
			dead.closeWithStatus(reason, fdtypes.StatusNonExist)
			return
		}
		dead.Close(reason)
		c.bringUp(conn)
	}()
}

func (c *ClientSocket) Close() error {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.baseSocket.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, sess := range c.sessions {
		sessions = append(sessions, sess)
	}
	c.baseSocket.mu.Unlock()

	for _, sess := range sessions {
		sess.Close(nil)
	}
	return nil
}
