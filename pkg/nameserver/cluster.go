package nameserver

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// ClusterConfig configures the raft-replicated form of a name server.
// Leaving Peers empty bootstraps a single-node cluster; a non-empty
// Peers list joins (or forms) a multi-node cluster with those servers
// as voters, matching the --cluster mode described for the name server.
type ClusterConfig struct {
	NodeID   string
	BindAddr string
	DataDir  string
	Peers    []raft.Server
}

// Cluster wraps a raft.Raft instance replicating a Registry through an
// FSM. Single-node mode runs the identical FSM un-replicated: Bootstrap
// always forms a raft group, just one with a single voter when Peers
// is empty.
type Cluster struct {
	raft *raft.Raft
	fsm  *FSM
}

// Bootstrap creates the raft stack backing registry and forms (or
// joins) the cluster described by cfg.
func Bootstrap(cfg ClusterConfig, registry *Registry) (*Cluster, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("nameserver: create data dir: %w", err)
	}

	fsm := NewFSM(registry)

	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(cfg.NodeID)

	// Tuned for LAN deployment: faster failure detection than raft's
	// WAN-oriented defaults (1s/1s/500ms).
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("nameserver: resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("nameserver: create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("nameserver: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("nameserver: create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("nameserver: create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("nameserver: create raft: %w", err)
	}

	servers := cfg.Peers
	if len(servers) == 0 {
		servers = []raft.Server{{ID: config.LocalID, Address: transport.LocalAddr()}}
	}
	future := r.BootstrapCluster(raft.Configuration{Servers: servers})
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		return nil, fmt.Errorf("nameserver: bootstrap cluster: %w", err)
	}

	return &Cluster{raft: r, fsm: fsm}, nil
}

// Apply submits a raw command payload (from EncodeRegister or
// EncodeUnregister) to the raft log, blocking until it is committed and
// applied, or timeout elapses.
func (c *Cluster) Apply(cmd []byte, timeout time.Duration) error {
	future := c.raft.Apply(cmd, timeout)
	if err := future.Error(); err != nil {
		return err
	}
	if res := future.Response(); res != nil {
		if err, ok := res.(error); ok {
			return err
		}
	}
	return nil
}

// IsLeader reports whether this node currently holds raft leadership.
func (c *Cluster) IsLeader() bool {
	return c.raft.State() == raft.Leader
}

// Shutdown stops the raft instance.
func (c *Cluster) Shutdown() error {
	return c.raft.Shutdown().Error()
}
