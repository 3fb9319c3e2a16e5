// Package logger implements fdbus's log service: a log server that
// collects request/reply/broadcast/subscribe trace records and
// arbitrary debug-trace lines from every endpoint in the bus, a log
// cache for late-joining viewers, and the per-endpoint producer that
// emits them: a log server, a log client/producer, and the config
// that ties cache size and clipping limits together.
package logger

import "github.com/cuemby/fdbus/pkg/fdtypes"

// Request codes the log server's main object answers.
const (
	ReqGetConfig uint32 = iota + 1
	ReqSetConfig
)

const eventGroup uint8 = 0x4C // 'L'

// Broadcast event codes the log server publishes.
var (
	EvtLogMessage   = fdtypes.MakeEventCode(eventGroup, 0) // NTF_LOG_MSG: a message-trace record
	EvtTraceMessage = fdtypes.MakeEventCode(eventGroup, 1) // a free-form debug-trace line
	EvtConfigChange = fdtypes.MakeEventCode(eventGroup, 2)
)

// WellKnownName is the log server's own bus name.
const WellKnownName = "org.fdbus.log-server"
