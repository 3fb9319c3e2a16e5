package nameserver

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

// Proxy is the client-side name proxy every endpoint holds: it
// maintains one connection to the name server, reconnecting on loss
// through its own ReconnectInterval timer, and
// answers local queries from a subscribed cache of SERVICE_ONLINE
// broadcasts plus synchronous queries for cache misses.
type Proxy struct {
	ctx *fdctx.Context
	ep  *object.Endpoint

	candidates []transport.URL // IPC entries sorted ahead of TCP ones for same-host preference

	mu      sync.RWMutex
	session *transport.Session
	cache   map[string][]string

	// OnServiceOnline, when set, is called for every SERVICE_ONLINE
	// and SERVICE_ONLINE_INTER_MACHINE broadcast the proxy observes.
	OnServiceOnline func(name string, urls []string)

	timer *fdctx.Timer
}

// NewProxy creates a name proxy on ctx. candidates is tried in order on
// every (re)connect attempt; put ipc:// entries before tcp:// ones to
// get same-host preference.
func NewProxy(ctx *fdctx.Context, candidates []transport.URL) (*Proxy, error) {
	ep, err := object.NewEndpoint(ctx, "name-proxy", fdtypes.RoleClient)
	if err != nil {
		return nil, err
	}
	p := &Proxy{
		ctx:        ctx,
		ep:         ep,
		candidates: sortIPCFirst(candidates),
		cache:      make(map[string][]string),
	}
	ep.MainObject().OnBroadcast = p.onBroadcast
	ep.MainObject().OnOffline = func(obj *object.Object, sess *transport.Session, isLast bool) {
		p.mu.Lock()
		p.session = nil
		p.mu.Unlock()
	}
	return p, nil
}

func sortIPCFirst(urls []transport.URL) []transport.URL {
	out := make([]transport.URL, 0, len(urls))
	for _, u := range urls {
		if u.Scheme == transport.SchemeIPC {
			out = append(out, u)
		}
	}
	for _, u := range urls {
		if u.Scheme != transport.SchemeIPC {
			out = append(out, u)
		}
	}
	return out
}

// Start connects to the name server and begins the reconnect timer.
// A failed initial connection is not fatal: the reconnect timer keeps
// retrying every ReconnectInterval until one candidate succeeds.
func (p *Proxy) Start() {
	p.tryConnect()
	p.timer = p.ctx.NewTimer(ReconnectInterval*time.Millisecond, true, func() {
		if !p.connected() {
			p.tryConnect()
		}
	})
}

func (p *Proxy) connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session != nil
}

func (p *Proxy) tryConnect() {
	for _, u := range p.candidates {
		if p.connectTo(u) == nil {
			return
		}
	}
}

func (p *Proxy) connectTo(url transport.URL) error {
	online := make(chan *transport.Session, 1)
	p.ep.MainObject().OnOnline = func(obj *object.Object, sess *transport.Session, isFirst bool) {
		select {
		case online <- sess:
		default:
		}
	}
	if _, err := p.ep.Connect(url); err != nil {
		return err
	}
	select {
	case sess := <-online:
		p.mu.Lock()
		p.session = sess
		p.mu.Unlock()
		items := []object.SubscribeItem{
			{Code: EvtServiceOnline, Topic: "", Type: object.SubscriptionNormal},
			{Code: EvtServiceOnlineInterMachine, Topic: "", Type: object.SubscriptionNormal},
		}
		_, _ = p.ep.MainObject().Subscribe(sess, items, 2*time.Second)
		return nil
	case <-time.After(2 * time.Second):
		return fmt.Errorf("nameserver: connect to %s timed out", url.String())
	}
}

func (p *Proxy) onBroadcast(obj *object.Object, sess *transport.Session, msg *message.Message) {
	if fdtypes.EventCode(msg.Code) != EvtServiceOnline && fdtypes.EventCode(msg.Code) != EvtServiceOnlineInterMachine {
		return
	}
	name, urls := decodeNameAndURLs(msg.Payload)
	p.mu.Lock()
	p.cache[name] = urls
	p.mu.Unlock()
	if p.OnServiceOnline != nil {
		p.OnServiceOnline(name, urls)
	}
}

// Query asks the name server for name's current bound addresses,
// falling back to the server only on a local cache miss.
func (p *Proxy) Query(name string) ([]string, error) {
	p.mu.RLock()
	cached, ok := p.cache[name]
	sess := p.session
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}
	if sess == nil {
		return nil, fmt.Errorf("nameserver: not connected")
	}
	payload, status, err := p.ep.MainObject().Invoke(sess, ReqQueryService, encodeName(name), 2*time.Second)
	if err != nil {
		return nil, err
	}
	if status.IsError() {
		return nil, status
	}
	_, urls := decodeNameAndURLs(payload)
	p.mu.Lock()
	p.cache[name] = urls
	p.mu.Unlock()
	return urls, nil
}

// Register asks the name server to bind name to urls.
func (p *Proxy) Register(name string, urls []string) error {
	p.mu.RLock()
	sess := p.session
	p.mu.RUnlock()
	if sess == nil {
		return fmt.Errorf("nameserver: not connected")
	}
	payload, status, err := p.ep.MainObject().Invoke(sess, ReqRegisterService, encodeNameAndURLs(name, urls), 2*time.Second)
	if err != nil {
		return err
	}
	if status.IsError() {
		return status
	}
	_ = payload
	return nil
}

// Stop tears down the proxy endpoint.
func (p *Proxy) Stop() {
	p.ep.PrepareDestroy()
}
