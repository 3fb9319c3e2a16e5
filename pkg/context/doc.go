/*
Package context implements fdbus's cooperative concurrency spine: a
single-goroutine Context event loop that owns every endpoint, socket,
and session table, plus zero or more Worker loops that host user
callbacks off the Context goroutine.

# Architecture

	┌─────────────────────── CONTEXT LOOP ─────────────────────────┐
	│                                                                │
	│  ┌──────────────┐   ┌───────────────┐   ┌──────────────────┐ │
	│  │ urgent queue │   │  normal queue │   │   timers          │ │
	│  └──────┬───────┘   └───────┬───────┘   └────────┬─────────┘ │
	│         │                   │                     │           │
	│         └─────────┬─────────┴─────────────────────┘           │
	│                   ▼                                           │
	│           run() dispatch loop (single goroutine)               │
	│                   │                                           │
	│     mutates: endpoint table, session table, socket tables      │
	└───────────────────┼───────────────────────────────────────────┘
	                    │ job.Submit (async/sync)
	     ┌──────────────┴───────────────┐
	     │                               │
	┌────▼─────┐                  ┌──────▼─────┐
	│  Worker  │                  │   Worker   │
	│ (onReply,│                  │ (onInvoke, │
	│ onBroadcast) │              │ onSubscribe)│
	└──────────┘                  └────────────┘

A Job submitted to the Context runs only on the Context goroutine.
Synchronous jobs block the submitter on a channel until the Context
runs them (or the caller-supplied timeout expires); submitting a
synchronous job from the Context goroutine itself fails fast with
fdtypes.StatusDeadLock rather than deadlocking.

Unlike a cooperative epoll reactor, each Session here reads its own
socket on its own goroutine (the idiomatic Go substitute for a
non-blocking fd watch): only the parts of a Session's state that must
be serialized with every other endpoint/session mutation — subscription
tables, pending-reply tables, the endpoint/session tables themselves —
are touched by submitting a Job to the Context, preserving the single-writer
invariant without an actual OS-level single thread.
*/
package context
