// Package fdbus is the public facade over pkg/context, pkg/object,
// and pkg/transport: a library caller who just wants to publish a
// service or call one doesn't need to juggle a Context, an Endpoint,
// and a transport.Session directly (the way pkg/nameserver's and
// pkg/hostserver's own servers/proxies do internally) — Client and
// Server collapse that into the two shapes every fdbus user actually
// needs, the same way a single facade type can collapse a raw
// grpc.ClientConn plus generated stubs into one type applications
// import.
package fdbus
