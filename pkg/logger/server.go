package logger

import (
	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/cuemby/fdbus/pkg/metrics"
	"github.com/cuemby/fdbus/pkg/object"
	"github.com/cuemby/fdbus/pkg/transport"
)

// Server is the log server: it receives MessageRecord/TraceRecord
// broadcasts from every producer in the bus, replays its cache to new
// subscribers (unicast from its own onSubscribe hook), and answers
// REQ_GET_CONFIG/REQ_SET_CONFIG.
type Server struct {
	ep     *object.Endpoint
	cfg    *ConfigStore
	cache  *Cache
	traces *Cache
}

// NewServer creates a log server endpoint bound to ctx with the given
// starting configuration.
func NewServer(ctx *fdctx.Context, cfg Config) (*Server, error) {
	ep, err := object.NewEndpoint(ctx, WellKnownName, fdtypes.RoleServer)
	if err != nil {
		return nil, err
	}
	ep.SetBusName(WellKnownName)

	s := &Server{
		ep:     ep,
		cfg:    NewConfigStore(cfg),
		cache:  NewCache(cfg.CacheSizeKB * 1024),
		traces: NewCache(cfg.CacheSizeKB * 1024),
	}
	ep.MainObject().OnInvoke = s.onInvoke
	ep.MainObject().OnBroadcast = s.onBroadcast
	ep.MainObject().OnSubscribe = s.onSubscribe
	return s, nil
}

// onSubscribe replays this server's full cached history to a newly
// subscribing viewer: a late-joining log viewer sees every retained
// record, not just the next live one (which is all the generic
// per-object event cache in pkg/object gives a one-slot replay for).
func (s *Server) onSubscribe(obj *object.Object, sess *transport.Session, items []object.SubscribeItem, isUnsubscribe bool) {
	if isUnsubscribe {
		return
	}
	for _, it := range items {
		switch it.Code {
		case EvtLogMessage:
			for _, e := range s.cache.Snapshot() {
				_ = obj.Unicast(sess, fdtypes.EventCode(e.code), "", e.data)
			}
		case EvtTraceMessage:
			for _, e := range s.traces.Snapshot() {
				_ = obj.Unicast(sess, fdtypes.EventCode(e.code), "", e.data)
			}
		}
	}
}

// Endpoint exposes the underlying endpoint for binding sockets.
func (s *Server) Endpoint() *object.Endpoint { return s.ep }

// Config exposes the live configuration store.
func (s *Server) Config() *ConfigStore { return s.cfg }

// MetricsSampler returns a metrics.Sampler publishing this server's
// cache footprints, for a metrics.Collector to run periodically.
func (s *Server) MetricsSampler() metrics.Sampler {
	return func() {
		metrics.LogCacheBytes.WithLabelValues("message").Set(float64(s.cache.DataSize()))
		metrics.LogCacheBytes.WithLabelValues("trace").Set(float64(s.traces.DataSize()))
	}
}

func (s *Server) onInvoke(obj *object.Object, sess *transport.Session, msg *message.Message) {
	switch msg.Code {
	case ReqGetConfig:
		msg.Reply(encodeConfig(s.cfg.Get()))
	case ReqSetConfig:
		cfg, err := decodeConfig(msg.Payload)
		if err != nil {
			msg.TerminateStatus(fdtypes.StatusBadParameter, err.Error(), false)
			return
		}
		s.cfg.Set(cfg)
		s.cache.Resize(cfg.CacheSizeKB * 1024)
		s.traces.Resize(cfg.CacheSizeKB * 1024)
		msg.Reply(nil)
		obj.Broadcast(EvtConfigChange, "", encodeConfig(cfg), false, true)
	default:
		msg.TerminateStatus(fdtypes.StatusNotImplemented, "unknown log server request", false)
	}
}

// onBroadcast receives a producer's forwarded record. Producers
// Unicast their records directly to the server's session rather than
// Broadcast()ing them, since a producer has no subscribers of its
// own — only the server decides whether a record passes the current
// filter set before re-broadcasting it to viewers.
func (s *Server) onBroadcast(obj *object.Object, sess *transport.Session, msg *message.Message) {
	switch fdtypes.EventCode(msg.Code) {
	case EvtLogMessage:
		rec, err := decodeMessageRecord(msg.Payload)
		if err != nil {
			return
		}
		if !s.cfg.ShouldLog(rec.Kind, rec.Host, rec.Endpoint, rec.BusName) {
			metrics.LogRecordsDroppedTotal.WithLabelValues("message").Inc()
			return
		}
		s.cache.Push(uint32(EvtLogMessage), msg.Payload)
		obj.Broadcast(EvtLogMessage, "", msg.Payload, false, false)
	case EvtTraceMessage:
		rec, err := decodeTraceRecord(msg.Payload)
		if err != nil {
			return
		}
		if !s.cfg.ShouldTrace(rec.Level, rec.Host, rec.Tag) {
			metrics.LogRecordsDroppedTotal.WithLabelValues("trace").Inc()
			return
		}
		s.traces.Push(uint32(EvtTraceMessage), msg.Payload)
		obj.Broadcast(EvtTraceMessage, "", msg.Payload, false, false)
	}
}
