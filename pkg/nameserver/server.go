package nameserver

import (
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdlog"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/cuemby/fdbus/pkg/metrics"
	"github.com/cuemby/fdbus/pkg/object"
	"github.com/cuemby/fdbus/pkg/transport"
)

// Server is the name server: it owns the registry of record and
// answers every ReqXxx request on its main object, broadcasting
// directory changes to every subscriber.
type Server struct {
	ep       *object.Endpoint
	registry *Registry
	cluster  *Cluster // nil outside --cluster mode; Registry is still authoritative either way
}

// NewServer creates a name server endpoint bound to ctx, wiring the
// request/broadcast handlers for every ReqXxx/EvtXxx code. cluster may
// be nil, in which case writes apply directly to registry.
func NewServer(ctx *fdctx.Context, registry *Registry, cluster *Cluster) (*Server, error) {
	ep, err := object.NewEndpoint(ctx, WellKnownName, fdtypes.RoleNameServer)
	if err != nil {
		return nil, err
	}
	ep.SetBusName(WellKnownName)

	s := &Server{ep: ep, registry: registry, cluster: cluster}
	ep.MainObject().OnInvoke = s.onInvoke
	return s, nil
}

// Endpoint exposes the underlying endpoint for binding sockets.
func (s *Server) Endpoint() *object.Endpoint { return s.ep }

// MetricsSampler returns a metrics.Sampler that publishes this
// server's registry size and raft leadership for a metrics.Collector
// to run periodically.
func (s *Server) MetricsSampler() metrics.Sampler {
	return func() {
		metrics.NameServiceRegisteredTotal.Set(float64(len(s.registry.Names())))
		if s.cluster != nil && s.cluster.IsLeader() {
			metrics.NameServerRaftLeader.Set(1)
		} else {
			metrics.NameServerRaftLeader.Set(0)
		}
	}
}

func (s *Server) onInvoke(obj *object.Object, sess *transport.Session, msg *message.Message) {
	switch msg.Code {
	case ReqAllocServiceAddress:
		s.handleAlloc(obj, sess, msg)
	case ReqRegisterService:
		s.handleRegister(obj, sess, msg)
	case ReqUnregisterService:
		s.handleUnregister(obj, sess, msg)
	case ReqQueryService, ReqQueryServiceInterMachine:
		s.handleQuery(obj, sess, msg)
	case ReqQueryHostLocal:
		s.handleQueryHostLocal(obj, sess, msg)
	default:
		msg.TerminateStatus(fdtypes.StatusNotImplemented, "unknown name server request", false)
	}
}

func (s *Server) handleAlloc(obj *object.Object, sess *transport.Session, msg *message.Message) {
	name, rawURLs := decodeNameAndURLs(msg.Payload)
	urls := make([]transport.URL, 0, len(rawURLs))
	for _, raw := range rawURLs {
		u, err := transport.ParseURL(raw)
		if err != nil {
			msg.TerminateStatus(fdtypes.StatusBadParameter, "malformed address candidate", false)
			return
		}
		urls = append(urls, u)
	}
	if len(urls) > AddressBindRetryCount {
		urls = urls[:AddressBindRetryCount]
	}
	descs := s.registry.Alloc(name, urls)
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.URL.String())
	}
	msg.Reply(encodeNameAndURLs(name, out))
	obj.Broadcast(EvtMoreAddress, name, encodeNameAndURLs(name, out), false, true)
}

func (s *Server) handleRegister(obj *object.Object, sess *transport.Session, msg *message.Message) {
	name, rawURLs := decodeNameAndURLs(msg.Payload)
	urls := make([]transport.URL, 0, len(rawURLs))
	for _, raw := range rawURLs {
		u, err := transport.ParseURL(raw)
		if err != nil {
			msg.TerminateStatus(fdtypes.StatusBadParameter, "malformed bound address", false)
			return
		}
		urls = append(urls, u)
	}

	wasEmpty := len(s.registry.Names()) == 0
	if s.cluster != nil {
		cmd, err := EncodeRegister(name, urls)
		if err != nil {
			msg.TerminateStatus(fdtypes.StatusInternalFail, err.Error(), false)
			return
		}
		if err := s.cluster.Apply(cmd, 5*time.Second); err != nil {
			msg.TerminateStatus(fdtypes.StatusInternalFail, err.Error(), false)
			return
		}
	}

	bound, err := s.registry.Register(name, urls)
	if err != nil {
		msg.TerminateStatus(fdtypes.StatusInternalFail, err.Error(), false)
		return
	}

	msg.Reply(encodeNameAndURLs(name, bound))
	payload := encodeNameAndURLs(name, bound)
	obj.Broadcast(EvtServiceOnline, name, payload, false, true)
	obj.Broadcast(EvtServiceOnlineInterMachine, name, payload, false, true)
	obj.Broadcast(EvtServiceOnlineMonitor, name, payload, false, false)
	obj.Broadcast(EvtServiceOnlineMonitorInterMachine, name, payload, false, false)

	if wasEmpty {
		obj.Broadcast(EvtHostOnlineLocal, "", nil, false, true)
	}
	s.broadcastHostInfo(obj)

	fdlog.WithComponent("nameserver").Info().Str("service", name).Msg("service registered")
}

// broadcastHostInfo publishes the current host-local directory snapshot
// to EvtHostInfo subscribers, the same payload QUERY_HOST_LOCAL returns.
func (s *Server) broadcastHostInfo(obj *object.Object) {
	obj.Broadcast(EvtHostInfo, "", encodeNameAndURLs("", s.registry.Names()), true, false)
}

func (s *Server) handleUnregister(obj *object.Object, sess *transport.Session, msg *message.Message) {
	name := decodeName(msg.Payload)

	if s.cluster != nil {
		cmd, err := EncodeUnregister(name)
		if err != nil {
			msg.TerminateStatus(fdtypes.StatusInternalFail, err.Error(), false)
			return
		}
		if err := s.cluster.Apply(cmd, 5*time.Second); err != nil {
			msg.TerminateStatus(fdtypes.StatusInternalFail, err.Error(), false)
			return
		}
	}
	if err := s.registry.Unregister(name); err != nil {
		msg.TerminateStatus(fdtypes.StatusNonExist, err.Error(), false)
		return
	}
	msg.Reply(nil)
	s.broadcastHostInfo(obj)
}

func (s *Server) handleQuery(obj *object.Object, sess *transport.Session, msg *message.Message) {
	name := decodeName(msg.Payload)
	urls, ok := s.registry.Query(name)
	if !ok {
		msg.TerminateStatus(fdtypes.StatusNonExist, "service not registered", false)
		return
	}
	msg.Reply(encodeNameAndURLs(name, urls))
}

func (s *Server) handleQueryHostLocal(obj *object.Object, sess *transport.Session, msg *message.Message) {
	names := s.registry.Names()
	msg.Reply(encodeNameAndURLs("", names))
}
