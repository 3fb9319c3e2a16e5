package hostserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// jsonCodec replaces grpc's default "proto" codec with plain JSON so
// the admin service below can exchange ordinary Go structs without a
// protoc-generated message type. grpc.Server/grpc.ClientConn,
// grpc.ServiceDesc, and the wire framing are all the real
// google.golang.org/grpc machinery; only the per-message encoding
// differs from a typical protobuf service.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ListHostsRequest is the HostAdmin.ListHosts request (empty).
type ListHostsRequest struct{}

// ListHostsResponse carries every currently-registered host record.
type ListHostsResponse struct {
	Hosts []HostRecord `json:"hosts"`
}

// AdminService implements the HostAdmin gRPC introspection service:
// listing known hosts (and transitively their name servers) for
// cluster-admin tooling such as `fdbus-hs admin list-hosts`.
type AdminService struct {
	registry *Registry
}

// NewAdminService wraps registry for gRPC exposure.
func NewAdminService(registry *Registry) *AdminService {
	return &AdminService{registry: registry}
}

// ListHosts returns every federated host record this host server knows.
func (a *AdminService) ListHosts(ctx context.Context, req *ListHostsRequest) (*ListHostsResponse, error) {
	return &ListHostsResponse{Hosts: a.registry.Hosts()}, nil
}

var hostAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: "fdbus.hostserver.HostAdmin",
	HandlerType: (*hostAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListHosts",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(ListHostsRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(hostAdminServer).ListHosts(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/fdbus.hostserver.HostAdmin/ListHosts"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(hostAdminServer).ListHosts(ctx, req.(*ListHostsRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hostserver/admin.proto",
}

type hostAdminServer interface {
	ListHosts(context.Context, *ListHostsRequest) (*ListHostsResponse, error)
}

// RegisterHostAdminServer registers admin on grpcServer.
func RegisterHostAdminServer(grpcServer *grpc.Server, admin *AdminService) {
	grpcServer.RegisterService(&hostAdminServiceDesc, admin)
}

// AdminServer wraps a grpc.Server bound to a TCP listener, serving the
// HostAdmin introspection API alongside the bus's own framed protocol
// (the two never share a listener: the wire bus stays a custom framed
// format, gRPC is admin-tooling-only).
type AdminServer struct {
	grpc *grpc.Server
	lis  net.Listener
}

// ListenAndServeAdmin opens the listener on addr and registers the
// HostAdmin service; it does not serve. Serve runs in the caller's
// goroutine; callers typically `go adminServer.Serve()`.
func ListenAndServeAdmin(addr string, registry *Registry) (*AdminServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("hostserver: listen admin: %w", err)
	}
	s := grpc.NewServer()
	RegisterHostAdminServer(s, NewAdminService(registry))
	return &AdminServer{grpc: s, lis: lis}, nil
}

// Serve blocks accepting and serving gRPC admin connections.
func (a *AdminServer) Serve() error { return a.grpc.Serve(a.lis) }

// Stop gracefully stops the admin server.
func (a *AdminServer) Stop() { a.grpc.GracefulStop() }

// DialAndListHosts dials a running host server's HostAdmin service at
// addr and returns every host record it knows, for one-shot admin
// calls from CLI tooling.
func DialAndListHosts(addr string) ([]HostRecord, error) {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("hostserver: dial admin %s: %w", addr, err)
	}
	defer conn.Close()

	resp := new(ListHostsResponse)
	err = conn.Invoke(context.Background(), "/fdbus.hostserver.HostAdmin/ListHosts", new(ListHostsRequest), resp)
	if err != nil {
		return nil, fmt.Errorf("hostserver: list hosts: %w", err)
	}
	return resp.Hosts, nil
}

// Addr returns the admin server's bound address.
func (a *AdminServer) Addr() string { return a.lis.Addr().String() }
