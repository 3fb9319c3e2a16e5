/*
Package fdtypes holds the identifier and status types shared by every
fdbus package: endpoint/session/socket/object ids, message serial
numbers, event codes, and the reserved status-code taxonomy. It has no
dependencies on the rest of the module so it can sit under context,
transport, message, and object without import cycles.
*/
package fdtypes
