package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// Scheme identifies the transport a URL addresses.
type Scheme string

const (
	SchemeTCP Scheme = "tcp"
	SchemeIPC Scheme = "ipc"
	SchemeUDP Scheme = "udp"
	SchemeSvc Scheme = "svc"
)

// URL is a parsed fdbus endpoint address: tcp://host:port,
// ipc://<path>, udp://host:port, or svc://<service-name>.
type URL struct {
	Scheme Scheme
	Host   string
	Port   int
	Path   string // ipc path, or service name for svc://
	raw    string
}

func (u URL) String() string { return u.raw }

// ParseURL parses one of fdbus's four URL forms.
func ParseURL(s string) (URL, error) {
	idx := strings.Index(s, "://")
	if idx < 0 {
		return URL{}, fmt.Errorf("transport: malformed url %q: missing scheme", s)
	}
	scheme := Scheme(s[:idx])
	rest := s[idx+3:]

	switch scheme {
	case SchemeTCP, SchemeUDP:
		host, portStr, err := splitHostPort(rest)
		if err != nil {
			return URL{}, fmt.Errorf("transport: malformed %s url %q: %w", scheme, s, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return URL{}, fmt.Errorf("transport: malformed %s url %q: bad port: %w", scheme, s, err)
		}
		return URL{Scheme: scheme, Host: host, Port: port, raw: s}, nil
	case SchemeIPC:
		if rest == "" {
			return URL{}, fmt.Errorf("transport: malformed ipc url %q: empty path", s)
		}
		return URL{Scheme: scheme, Path: rest, raw: s}, nil
	case SchemeSvc:
		if rest == "" {
			return URL{}, fmt.Errorf("transport: malformed svc url %q: empty service name", s)
		}
		return URL{Scheme: scheme, Path: rest, raw: s}, nil
	default:
		return URL{}, fmt.Errorf("transport: unknown scheme %q in url %q", scheme, s)
	}
}

func splitHostPort(s string) (host, port string, err error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return "", "", fmt.Errorf("missing ':port'")
	}
	return s[:i], s[i+1:], nil
}

// NetworkAddr returns the net.Dial/net.Listen compatible "network" and
// "address" pair for tcp/udp/ipc URLs. Not valid for SchemeSvc, which
// must be resolved through the name server first.
func (u URL) NetworkAddr() (network, addr string, err error) {
	switch u.Scheme {
	case SchemeTCP:
		return "tcp", fmt.Sprintf("%s:%d", u.Host, u.Port), nil
	case SchemeUDP:
		return "udp", fmt.Sprintf("%s:%d", u.Host, u.Port), nil
	case SchemeIPC:
		return "unix", u.Path, nil
	default:
		return "", "", fmt.Errorf("transport: %s url has no direct network address", u.Scheme)
	}
}
