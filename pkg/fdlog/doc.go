/*
Package fdlog provides structured logging for fdbus using zerolog.

The fdlog package wraps zerolog to give every fdbus component (context,
session, object, name server, host server) a JSON-structured logger with
component-specific child loggers and configurable severity filtering.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - zerolog instance                         │          │
	│  │  - Initialized via fdlog.Init()             │          │
	│  │  - Safe for concurrent use                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Component Loggers                 │          │
	│  │  - WithComponent("session")                 │          │
	│  │  - WithEndpoint("media-server")              │          │
	│  │  - WithSession(sessionID)                    │          │
	│  │  - WithObject(objectID)                      │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

Init writes console (pretty) output unless Config.JSONOutput is set, in
which case it writes JSON. Before Init is called the global logger
writes JSON to stderr.
*/
package fdlog
