package hostserver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/fdbus/pkg/security"
)

// HostRecord is one federated host's state: host name, ip, name-server
// url, heartbeat-miss count, ready flag, authorized flag, token list.
type HostRecord struct {
	Name          string
	IP            string
	NameServerURL string
	MissCount     int
	Ready         bool
	Authorized    bool
	Tokens        []string
}

// Registry tracks every federated host known to this host server.
type Registry struct {
	mu     sync.Mutex
	hosts  map[string]*HostRecord
	tokens *security.TokenManager
}

// NewRegistry creates a registry issuing host tokens through tm. A nil
// tm accepts any host at security level zero, matching
// security.TokenManager's own empty-manager behavior.
func NewRegistry(tm *security.TokenManager) *Registry {
	return &Registry{hosts: make(map[string]*HostRecord), tokens: tm}
}

// RegisterHost records name's host and allocates a fresh token for it.
// Returns the resulting record.
func (r *Registry) RegisterHost(name, ip, nsURL string) (*HostRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.hosts[name]
	if !ok {
		rec = &HostRecord{Name: name}
		r.hosts[name] = rec
	}
	rec.IP = ip
	rec.NameServerURL = nsURL
	rec.MissCount = 0
	rec.Ready = true
	rec.Authorized = true

	if r.tokens != nil {
		tok, err := r.tokens.Issue(security.Level(0), 0)
		if err != nil {
			return nil, fmt.Errorf("hostserver: issue token for %s: %w", name, err)
		}
		rec.Tokens = append(rec.Tokens, tok.Value)
	}
	return rec, nil
}

// HeartbeatOK resets name's miss counter in response to REQ_HEARTBEAT_OK.
func (r *Registry) HeartbeatOK(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.hosts[name]; ok {
		rec.MissCount = 0
	}
}

// Tick increments every known host's miss counter and evicts any that
// has now reached HBRetries, returning the names kicked out this tick.
func (r *Registry) Tick() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kicked []string
	for name, rec := range r.hosts {
		rec.MissCount++
		if rec.MissCount >= HBRetries {
			delete(r.hosts, name)
			kicked = append(kicked, name)
		}
	}
	sort.Strings(kicked)
	return kicked
}

// Hosts returns every currently-registered host record, sorted by
// name, for federation reconciliation and diagnostics.
func (r *Registry) Hosts() []HostRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HostRecord, 0, len(r.hosts))
	for _, rec := range r.hosts {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns name's current record, if known.
func (r *Registry) Get(name string) (HostRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.hosts[name]
	if !ok {
		return HostRecord{}, false
	}
	return *rec, true
}
