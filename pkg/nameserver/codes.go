// Package nameserver implements fdbus's name server and name proxy: the
// directory service resolving svc:// URLs to concrete bound addresses.
package nameserver

import "github.com/cuemby/fdbus/pkg/fdtypes"

// Request codes the name server's main object answers, carried as the
// request Message's Code field.
const (
	ReqAllocServiceAddress uint32 = iota + 1
	ReqRegisterService
	ReqUnregisterService
	ReqQueryService
	ReqQueryServiceInterMachine
	ReqQueryHostLocal
)

// eventGroup is the event group byte shared by every broadcast the name
// server publishes, so a single group subscription sees every directory
// change.
const eventGroup uint8 = 0x4E // 'N'

// Broadcast event codes the name server publishes.
var (
	EvtServiceOnline                    = fdtypes.MakeEventCode(eventGroup, 0)
	EvtServiceOnlineInterMachine        = fdtypes.MakeEventCode(eventGroup, 1)
	EvtMoreAddress                      = fdtypes.MakeEventCode(eventGroup, 2)
	EvtServiceOnlineMonitor             = fdtypes.MakeEventCode(eventGroup, 3)
	EvtServiceOnlineMonitorInterMachine = fdtypes.MakeEventCode(eventGroup, 4)
	// EvtHostOnlineLocal fires whenever a service registers with a local
	// registry that held no service record.
	EvtHostOnlineLocal = fdtypes.MakeEventCode(eventGroup, 5)
	// EvtHostInfo carries the full host-local directory snapshot (the
	// same payload QUERY_HOST_LOCAL replies with), republished after
	// every local registration/unregistration.
	EvtHostInfo = fdtypes.MakeEventCode(eventGroup, 6)
)

// AddressBindRetryCount bounds how many replacement address descriptors
// the name server will allocate for one service after bind failures.
const AddressBindRetryCount = 5

// ReconnectInterval is how often a name proxy retries connecting to the
// name server after losing it.
const ReconnectInterval = 500 // milliseconds, kept as an int to mirror the CLI's "interval:retries" flag form

// WellKnownName is the name server's own bus name.
const WellKnownName = "org.fdbus.name-server"

// DefaultIPCDir is the well-known IPC socket directory for the name
// server.
const DefaultIPCDir = "/tmp/fdb-ns"

// DefaultTCPPort is the name server's deterministic TCP port.
const DefaultTCPPort = 60001

// DynamicPortLow and DynamicPortHigh bound the range the name server
// allocates to ordinary services.
const (
	DynamicPortLow  = 60002
	DynamicPortHigh = 65000
)
