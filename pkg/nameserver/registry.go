package nameserver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/fdbus/pkg/transport"
)

// AddressDescriptor is one URL a service has been allocated or bound
// to, tracked through the alloc→bind→register lifecycle.
type AddressDescriptor struct {
	URL    transport.URL
	Bound  bool
	Tried  int // number of replacement attempts consumed by this slot
}

// ServiceRecord is a registered service's full descriptor set.
type ServiceRecord struct {
	Name      string
	Addresses []AddressDescriptor
}

func (r *ServiceRecord) urls() []string {
	out := make([]string, 0, len(r.Addresses))
	for _, a := range r.Addresses {
		if a.Bound {
			out = append(out, a.URL.String())
		}
	}
	return out
}

// Registry is the name server's in-memory directory: service name to
// its current address descriptors. It is the thing an FSM (single-node
// or raft-replicated) applies commands to; Registry itself has no
// notion of consensus.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*ServiceRecord
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*ServiceRecord)}
}

// Alloc appends one unbound address descriptor per url to name's
// record, creating the record if needed, and returns a copy of the
// full descriptor list for the caller to attempt binding. It applies
// no count limit and does not merge descriptors already present.
func (r *Registry) Alloc(name string, urls []transport.URL) []AddressDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.services[name]
	if !ok {
		rec = &ServiceRecord{Name: name}
		r.services[name] = rec
	}
	for _, u := range urls {
		rec.Addresses = append(rec.Addresses, AddressDescriptor{URL: u})
	}
	return append([]AddressDescriptor(nil), rec.Addresses...)
}

// Register marks the given urls bound for name, creating the record if
// it does not already exist from a prior Alloc. Returns the bus name's
// bound URL list after the update.
func (r *Registry) Register(name string, urls []transport.URL) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.services[name]
	if !ok {
		rec = &ServiceRecord{Name: name}
		r.services[name] = rec
	}
	for _, u := range urls {
		found := false
		for i := range rec.Addresses {
			if rec.Addresses[i].URL.String() == u.String() {
				rec.Addresses[i].Bound = true
				found = true
				break
			}
		}
		if !found {
			rec.Addresses = append(rec.Addresses, AddressDescriptor{URL: u, Bound: true})
		}
	}
	return rec.urls(), nil
}

// Unregister drops name entirely.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[name]; !ok {
		return fmt.Errorf("nameserver: service %q not registered", name)
	}
	delete(r.services, name)
	return nil
}

// Query returns the bound URLs for name, and whether it is known at
// all (an empty-but-known record is a service that allocated addresses
// but has not registered a bind yet).
func (r *Registry) Query(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.services[name]
	if !ok {
		return nil, false
	}
	return rec.urls(), true
}

// Names returns every currently-registered service name, sorted, for
// diagnostics and snapshotting.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.services))
	for n := range r.services {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// AddrSnapshot is the JSON-safe form of an AddressDescriptor:
// transport.URL keeps its raw string unexported, so raft snapshots and
// FSM commands carry the URL as plain text and reparse it on the way
// back in.
type AddrSnapshot struct {
	URL   string `json:"url"`
	Bound bool   `json:"bound"`
}

// Snapshot returns every record as JSON-safe descriptors, for raft
// snapshotting and tests.
func (r *Registry) Snapshot() map[string][]AddrSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]AddrSnapshot, len(r.services))
	for n, rec := range r.services {
		addrs := make([]AddrSnapshot, len(rec.Addresses))
		for i, a := range rec.Addresses {
			addrs[i] = AddrSnapshot{URL: a.URL.String(), Bound: a.Bound}
		}
		out[n] = addrs
	}
	return out
}

// Restore replaces the registry's contents wholesale, for raft restore.
// Malformed URLs are dropped rather than failing the whole restore.
func (r *Registry) Restore(snapshot map[string][]AddrSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	services := make(map[string]*ServiceRecord, len(snapshot))
	for n, addrs := range snapshot {
		rec := &ServiceRecord{Name: n}
		for _, a := range addrs {
			u, err := transport.ParseURL(a.URL)
			if err != nil {
				continue
			}
			rec.Addresses = append(rec.Addresses, AddressDescriptor{URL: u, Bound: a.Bound})
		}
		services[n] = rec
	}
	r.services = services
}
