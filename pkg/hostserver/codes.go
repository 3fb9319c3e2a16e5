// Package hostserver implements fdbus's host server and host proxy:
// federation of name servers across hosts via heartbeat and
// host-online notifications.
package hostserver

import "github.com/cuemby/fdbus/pkg/fdtypes"

// Request codes the host server's main object answers.
const (
	ReqRegisterHost uint32 = iota + 1
	ReqHeartbeatOK
)

const eventGroup uint8 = 0x48 // 'H'

// Broadcast event codes the host server publishes.
var (
	EvtHeartbeat  = fdtypes.MakeEventCode(eventGroup, 0)
	EvtHostOnline = fdtypes.MakeEventCode(eventGroup, 1)
)

// HBIntervalMillis is how often, in milliseconds, the host server broadcasts NTF_HEART_BEAT.
const HBIntervalMillis = 1000

// HBRetries is the miss count after which a host is kicked out.
const HBRetries = 5

// WellKnownName is the host server's own bus name.
const WellKnownName = "org.fdbus.host-server"

// DefaultIPCDir is the well-known IPC socket directory for the host
// server.
const DefaultIPCDir = "/tmp/fdb-hs"

// DefaultTCPPort is the host server's deterministic TCP port.
const DefaultTCPPort = 60000
