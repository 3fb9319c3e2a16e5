/*
Package object implements fdbus's Object, Endpoint, and subscription
engine: the logical addressable components multiplexed
over an endpoint's sessions, their per-event and per-group
subscription tables, event cache, and watchdog.

Endpoint aggregates an endpoint's Sockets and its primary ("main")
Object, implements context.EndpointHandle so the Context can hold and
tear it down, and implements transport.Dispatcher so sessions can
route decoded frames back into the right object's callbacks —
collapsing a CBaseServer/CBaseClient/CFdbBaseObject
hierarchy into one tagged-by-Role type, per SPEC_FULL's "deep virtual
hierarchies" note.
*/
package object
