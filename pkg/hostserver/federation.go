package hostserver

import (
	"sort"
	"sync"
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdlog"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/cuemby/fdbus/pkg/nameserver"
	"github.com/cuemby/fdbus/pkg/object"
	"github.com/cuemby/fdbus/pkg/transport"
)

// HostProxy is the client side of host federation: it registers this
// host with the host server, answers its heartbeat, and on
// NTF_HOST_ONLINE reconciles the remote host list, spinning up one
// inter-host name proxy per newly-seen host.
type HostProxy struct {
	ctx *fdctx.Context
	ep  *object.Endpoint

	name string // this host's registered name, echoed in heartbeat replies

	mu     sync.Mutex
	remote map[string]*nameserver.Proxy // host name -> inter-host name proxy

	// NewNameProxy builds the inter-host name proxy for a newly-seen
	// host's name server URL. Exposed for substitution in tests.
	NewNameProxy func(nsURL string) (*nameserver.Proxy, error)
}

// NewHostProxy creates a host proxy on ctx.
func NewHostProxy(ctx *fdctx.Context) (*HostProxy, error) {
	ep, err := object.NewEndpoint(ctx, "host-proxy", fdtypes.RoleClient)
	if err != nil {
		return nil, err
	}
	p := &HostProxy{ctx: ctx, ep: ep, remote: make(map[string]*nameserver.Proxy)}
	p.NewNameProxy = func(nsURL string) (*nameserver.Proxy, error) {
		u, err := transport.ParseURL(nsURL)
		if err != nil {
			return nil, err
		}
		np, err := nameserver.NewProxy(ctx, []transport.URL{u})
		if err != nil {
			return nil, err
		}
		np.Start()
		return np, nil
	}
	ep.MainObject().OnBroadcast = p.onBroadcast
	return p, nil
}

// Connect dials the host server at url and registers this host.
func (p *HostProxy) Connect(url transport.URL, name, ip, nsURL string) error {
	p.name = name
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
		items := []object.SubscribeItem{{Code: EvtHeartbeat, Topic: "", Type: object.SubscriptionNormal},
			{Code: EvtHostOnline, Topic: "", Type: object.SubscriptionNormal}}
		_, _ = p.ep.MainObject().Subscribe(sess, items, 2*time.Second)
		_, _, err := p.ep.MainObject().Invoke(sess, ReqRegisterHost, encodeRegisterHost(name, ip, nsURL), 2*time.Second)
		return err
	case <-time.After(2 * time.Second):
		return fdtypes.StatusTimeout
	}
}

func (p *HostProxy) onBroadcast(obj *object.Object, sess *transport.Session, msg *message.Message) {
	switch fdtypes.EventCode(msg.Code) {
	case EvtHeartbeat:
		_ = obj.Send(sess, ReqHeartbeatOK, []byte(p.name))
	case EvtHostOnline:
		p.reconcile(msg.Payload)
	}
}

func (p *HostProxy) reconcile(payload []byte) {
	name, _, nsURL, ready := decodeHostRecord(payload)
	p.mu.Lock()
	defer p.mu.Unlock()

	if !ready {
		if np, ok := p.remote[name]; ok {
			np.Stop()
			delete(p.remote, name)
			fdlog.WithComponent("hostserver").Info().Str("host", name).Msg("remote host dropped")
		}
		return
	}
	if _, ok := p.remote[name]; ok {
		return
	}
	np, err := p.NewNameProxy(nsURL)
	if err != nil {
		fdlog.WithComponent("hostserver").Warn().Str("host", name).Err(err).Msg("failed to build inter-host name proxy")
		return
	}
	p.remote[name] = np
	fdlog.WithComponent("hostserver").Info().Str("host", name).Msg("remote host federated")
}

// Remote returns the currently-federated host names, sorted, for tests
// and diagnostics.
func (p *HostProxy) Remote() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.remote))
	for name := range p.remote {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Stop tears down the host proxy endpoint and every inter-host name proxy.
func (p *HostProxy) Stop() {
	p.mu.Lock()
	for _, np := range p.remote {
		np.Stop()
	}
	p.remote = make(map[string]*nameserver.Proxy)
	p.mu.Unlock()
	p.ep.PrepareDestroy()
}
