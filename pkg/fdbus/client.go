package fdbus

import (
	"fmt"
	"sync"
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/cuemby/fdbus/pkg/object"
	"github.com/cuemby/fdbus/pkg/transport"
)

// Client is a connected endpoint talking to exactly one server,
// wrapping the connect/online-wait sequence pkg/nameserver.Proxy and
// pkg/logger.Producer both hand-roll for their own internal use.
type Client struct {
	ctx *fdctx.Context
	ep  *object.Endpoint

	sessMu sync.RWMutex
	sess   *transport.Session

	reconnectEnabled  bool
	reconnectMaxTries int
	reconnectInterval time.Duration

	// OnBroadcast, when set, is called for every broadcast the main
	// object receives; it is read at call time.
	OnBroadcast func(sess *transport.Session, code fdtypes.EventCode, topic string, payload []byte)
	// OnReconnect, when set, is called every time the underlying
	// session comes back online after a drop (not the first connect).
	OnReconnect func(sess *transport.Session)
}

// NewClient creates a client endpoint named name on ctx. Call Connect
// to dial a server before issuing requests.
func NewClient(ctx *fdctx.Context, name string) (*Client, error) {
	ep, err := object.NewEndpoint(ctx, name, fdtypes.RoleClient)
	if err != nil {
		return nil, err
	}
	c := &Client{ctx: ctx, ep: ep}
	ep.MainObject().OnBroadcast = func(obj *object.Object, sess *transport.Session, msg *message.Message) {
		if c.OnBroadcast != nil {
			c.OnBroadcast(sess, fdtypes.EventCode(msg.Code), msg.Topic, msg.Payload)
		}
	}
	return c, nil
}

// EnableReconnect opts this client into the shared transport-layer
// auto-reconnect: once connected, a dropped session is redialed up to
// maxAttempts times interval apart before the client gives up on it.
// Must be called before Connect.
func (c *Client) EnableReconnect(maxAttempts int, interval time.Duration) {
	c.reconnectEnabled = true
	c.reconnectMaxTries = maxAttempts
	c.reconnectInterval = interval
}

// Connect dials url and blocks until the session comes online or
// timeout elapses. If EnableReconnect was called first, the underlying
// socket keeps retrying after later drops instead of giving up after
// this one connect.
func (c *Client) Connect(url transport.URL, timeout time.Duration) error {
	online := make(chan *transport.Session, 1)
	c.ep.MainObject().OnOnline = func(obj *object.Object, sess *transport.Session, isFirst bool) {
		c.setSession(sess)
		if !isFirst && c.OnReconnect != nil {
			c.OnReconnect(sess)
		}
		select {
		case online <- sess:
		default:
		}
	}
	c.ep.MainObject().OnOffline = func(obj *object.Object, sess *transport.Session, isLast bool) {
		c.clearSession(sess)
	}
	sock, err := c.ep.Connect(url)
	if err != nil {
		return err
	}
	if c.reconnectEnabled {
		if cs, ok := sock.(*transport.ClientSocket); ok {
			cs.EnableReconnect(c.reconnectMaxTries, c.reconnectInterval)
		}
	}
	select {
	case sess := <-online:
		c.setSession(sess)
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("fdbus: connect to %s timed out", url.String())
	}
}

func (c *Client) setSession(sess *transport.Session) {
	c.sessMu.Lock()
	c.sess = sess
	c.sessMu.Unlock()
}

// clearSession drops sess only if it is still the client's current
// session, so a stale offline notification for a since-replaced
// session can't clobber a newer one.
func (c *Client) clearSession(sess *transport.Session) {
	c.sessMu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	c.sessMu.Unlock()
}

func (c *Client) session() *transport.Session {
	c.sessMu.RLock()
	defer c.sessMu.RUnlock()
	return c.sess
}

// Connected reports whether the client currently holds a live session.
func (c *Client) Connected() bool { return c.session() != nil }

// Invoke sends a request and blocks for a reply or timeout.
func (c *Client) Invoke(code uint32, payload []byte, timeout time.Duration) ([]byte, fdtypes.Status, error) {
	sess := c.session()
	if sess == nil {
		return nil, fdtypes.StatusInternalFail, fmt.Errorf("fdbus: not connected")
	}
	return c.ep.MainObject().Invoke(sess, code, payload, timeout)
}

// Send fires a request that expects no reply.
func (c *Client) Send(code uint32, payload []byte) error {
	sess := c.session()
	if sess == nil {
		return fmt.Errorf("fdbus: not connected")
	}
	return c.ep.MainObject().Send(sess, code, payload)
}

// Subscribe adds the given event subscriptions on the server.
func (c *Client) Subscribe(items []object.SubscribeItem, timeout time.Duration) (fdtypes.Status, error) {
	sess := c.session()
	if sess == nil {
		return fdtypes.StatusInternalFail, fmt.Errorf("fdbus: not connected")
	}
	return c.ep.MainObject().Subscribe(sess, items, timeout)
}

// Unsubscribe removes the given event subscriptions.
func (c *Client) Unsubscribe(items []object.SubscribeItem, timeout time.Duration) (fdtypes.Status, error) {
	sess := c.session()
	if sess == nil {
		return fdtypes.StatusInternalFail, fmt.Errorf("fdbus: not connected")
	}
	return c.ep.MainObject().Unsubscribe(sess, items, timeout)
}

// Close tears down the client endpoint.
func (c *Client) Close() { c.ep.PrepareDestroy() }
