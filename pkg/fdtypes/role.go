package fdtypes

// Role is an endpoint's role within the bus.
type Role int

const (
	RoleUnknown Role = iota
	RoleServer
	RoleClient
	RoleNameServer
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	case RoleNameServer:
		return "name-server"
	default:
		return "unknown"
	}
}
