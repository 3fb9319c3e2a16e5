package hostserver

import (
	"strings"
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdlog"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/cuemby/fdbus/pkg/metrics"
	"github.com/cuemby/fdbus/pkg/object"
	"github.com/cuemby/fdbus/pkg/security"
	"github.com/cuemby/fdbus/pkg/transport"
)

// Server is the host server: it tracks every federated host and
// drives the heartbeat/kickout cycle.
type Server struct {
	ep       *object.Endpoint
	registry *Registry
	timer    *fdctx.Timer
}

// NewServer creates a host server endpoint bound to ctx.
func NewServer(ctx *fdctx.Context, tokens *security.TokenManager) (*Server, error) {
	ep, err := object.NewEndpoint(ctx, WellKnownName, fdtypes.RoleServer)
	if err != nil {
		return nil, err
	}
	ep.SetBusName(WellKnownName)

	s := &Server{ep: ep, registry: NewRegistry(tokens)}
	ep.MainObject().OnInvoke = s.onInvoke
	s.timer = ctx.NewTimer(HBIntervalMillis*time.Millisecond, true, s.onHeartbeatTick)
	return s, nil
}

// Endpoint exposes the underlying endpoint for binding sockets.
func (s *Server) Endpoint() *object.Endpoint { return s.ep }

// Registry exposes the host registry for federation code and tests.
func (s *Server) Registry() *Registry { return s.registry }

// MetricsSampler returns a metrics.Sampler publishing this server's
// host table split by readiness, for a metrics.Collector to run
// periodically.
func (s *Server) MetricsSampler() metrics.Sampler {
	return func() {
		ready, notReady := 0, 0
		for _, h := range s.registry.Hosts() {
			if h.Ready {
				ready++
			} else {
				notReady++
			}
		}
		metrics.HostsTotal.WithLabelValues("true").Set(float64(ready))
		metrics.HostsTotal.WithLabelValues("false").Set(float64(notReady))
	}
}

func (s *Server) onInvoke(obj *object.Object, sess *transport.Session, msg *message.Message) {
	switch msg.Code {
	case ReqRegisterHost:
		s.handleRegisterHost(obj, msg)
	case ReqHeartbeatOK:
		s.handleHeartbeatOK(msg)
	default:
		msg.TerminateStatus(fdtypes.StatusNotImplemented, "unknown host server request", false)
	}
}

func (s *Server) handleRegisterHost(obj *object.Object, msg *message.Message) {
	name, ip, nsURL := decodeRegisterHost(msg.Payload)
	rec, err := s.registry.RegisterHost(name, ip, nsURL)
	if err != nil {
		msg.TerminateStatus(fdtypes.StatusInternalFail, err.Error(), false)
		return
	}
	msg.Reply(encodeHostRecord(*rec))
	obj.Broadcast(EvtHostOnline, name, encodeHostRecord(*rec), false, true)
	fdlog.WithComponent("hostserver").Info().Str("host", name).Msg("host registered")
}

func (s *Server) handleHeartbeatOK(msg *message.Message) {
	name := decodeName(msg.Payload)
	s.registry.HeartbeatOK(name)
	msg.Reply(nil)
}

func (s *Server) onHeartbeatTick() {
	s.ep.MainObject().Broadcast(EvtHeartbeat, "", nil, false, true)
	for _, name := range s.registry.Tick() {
		fdlog.WithComponent("hostserver").Warn().Str("host", name).Msg("host kicked out after missed heartbeats")
		metrics.HeartbeatMissesTotal.WithLabelValues(name).Inc()
		s.ep.MainObject().Broadcast(EvtHostOnline, name, encodeHostOffline(name), false, true)
	}
}

func decodeName(payload []byte) string { return string(payload) }

func encodeRegisterHost(name, ip, nsURL string) []byte {
	return []byte(strings.Join([]string{name, ip, nsURL}, "\n"))
}

func decodeRegisterHost(payload []byte) (name, ip, nsURL string) {
	parts := strings.SplitN(string(payload), "\n", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2]
}

func encodeHostRecord(rec HostRecord) []byte {
	ready := "0"
	if rec.Ready {
		ready = "1"
	}
	return []byte(strings.Join([]string{rec.Name, rec.IP, rec.NameServerURL, ready}, "\n"))
}

func encodeHostOffline(name string) []byte {
	return []byte(strings.Join([]string{name, "", "", "0"}, "\n"))
}

func decodeHostRecord(payload []byte) (name, ip, nsURL string, ready bool) {
	parts := strings.SplitN(string(payload), "\n", 4)
	for len(parts) < 4 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2], parts[3] == "1"
}
