package fdbus

import (
	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/message"
	"github.com/cuemby/fdbus/pkg/object"
	"github.com/cuemby/fdbus/pkg/transport"
)

// Server is a bound endpoint answering requests and/or publishing
// broadcasts under a single bus name, the facade equivalent of what
// pkg/nameserver.Server, pkg/hostserver.Server, and pkg/logger.Server
// each hand-build around their own object.Endpoint.
type Server struct {
	ep *object.Endpoint

	// OnInvoke and OnSubscribe are called from the main object's
	// matching hooks; each is read at call time, so it may be set at any
	// point after NewServer.
	OnInvoke    func(sess *transport.Session, code uint32, payload []byte) (reply []byte, status fdtypes.Status)
	OnSubscribe func(sess *transport.Session, items []object.SubscribeItem, isUnsubscribe bool)
}

// NewServer creates a server endpoint named name on ctx and sets its
// bus name to busName. It does not register with the name server.
func NewServer(ctx *fdctx.Context, name, busName string) (*Server, error) {
	ep, err := object.NewEndpoint(ctx, name, fdtypes.RoleServer)
	if err != nil {
		return nil, err
	}
	ep.SetBusName(busName)
	s := &Server{ep: ep}
	ep.MainObject().OnInvoke = func(obj *object.Object, sess *transport.Session, msg *message.Message) {
		if s.OnInvoke == nil {
			msg.TerminateStatus(fdtypes.StatusNotImplemented, "no handler installed", false)
			return
		}
		reply, status := s.OnInvoke(sess, msg.Code, msg.Payload)
		if status.IsError() {
			msg.TerminateStatus(status, status.Error(), false)
			return
		}
		msg.Reply(reply)
	}
	ep.MainObject().OnSubscribe = func(obj *object.Object, sess *transport.Session, items []object.SubscribeItem, isUnsubscribe bool) {
		if s.OnSubscribe != nil {
			s.OnSubscribe(sess, items, isUnsubscribe)
		}
	}
	return s, nil
}

// Endpoint exposes the underlying endpoint for binding listeners or
// advanced use (watchdog, secondary objects) the facade doesn't cover.
func (s *Server) Endpoint() *object.Endpoint { return s.ep }

// Bind opens a listening socket on url.
func (s *Server) Bind(url transport.URL) (transport.Socket, error) {
	return s.ep.Bind(url)
}

// Broadcast publishes an event to every matching subscriber.
func (s *Server) Broadcast(code fdtypes.EventCode, topic string, payload []byte) {
	s.ep.MainObject().Broadcast(code, topic, payload, false, false)
}

// Close tears down the server endpoint.
func (s *Server) Close() { s.ep.PrepareDestroy() }
