package nameserver

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cuemby/fdbus/pkg/transport"
	"github.com/hashicorp/raft"
)

// Command is one state change applied to the registry, replicated
// through raft in --cluster mode and applied directly (bypassing raft)
// in the default single-node mode.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opRegister   = "register_service"
	opUnregister = "unregister_service"
)

type registerCmd struct {
	Name string   `json:"name"`
	URLs []string `json:"urls"`
}

type unregisterCmd struct {
	Name string `json:"name"`
}

// EncodeRegister builds the raft log payload for a register command.
func EncodeRegister(name string, urls []transport.URL) ([]byte, error) {
	raw := make([]string, len(urls))
	for i, u := range urls {
		raw[i] = u.String()
	}
	return json.Marshal(Command{Op: opRegister, Data: mustJSON(registerCmd{Name: name, URLs: raw})})
}

// EncodeUnregister builds the raft log payload for an unregister command.
func EncodeUnregister(name string) ([]byte, error) {
	return json.Marshal(Command{Op: opUnregister, Data: mustJSON(unregisterCmd{Name: name})})
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// FSM implements raft.FSM over a Registry using a Command{Op, Data}
// dispatch pattern: Apply unmarshals the envelope, switches on Op, and
// calls the matching Registry method.
type FSM struct {
	registry *Registry
}

// NewFSM creates an FSM applying commands to registry.
func NewFSM(registry *Registry) *FSM {
	return &FSM{registry: registry}
}

// Apply applies one committed raft log entry to the registry.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("nameserver: unmarshal command: %w", err)
	}
	switch cmd.Op {
	case opRegister:
		var rc registerCmd
		if err := json.Unmarshal(cmd.Data, &rc); err != nil {
			return err
		}
		urls := make([]transport.URL, 0, len(rc.URLs))
		for _, raw := range rc.URLs {
			u, err := transport.ParseURL(raw)
			if err != nil {
				return err
			}
			urls = append(urls, u)
		}
		_, err := f.registry.Register(rc.Name, urls)
		return err
	case opUnregister:
		var uc unregisterCmd
		if err := json.Unmarshal(cmd.Data, &uc); err != nil {
			return err
		}
		return f.registry.Unregister(uc.Name)
	default:
		return fmt.Errorf("nameserver: unknown command %q", cmd.Op)
	}
}

// Snapshot captures the registry's current state.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{data: f.registry.Snapshot()}, nil
}

// Restore replaces the registry's state from a previously-captured snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var data map[string][]AddrSnapshot
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return fmt.Errorf("nameserver: decode snapshot: %w", err)
	}
	f.registry.Restore(data)
	return nil
}

type fsmSnapshot struct {
	data map[string][]AddrSnapshot
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.data); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
