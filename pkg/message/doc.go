/*
Package message implements the fdbus wire frame codec and the Message
state machine.

A frame on the wire is:

	prefix (8 bytes):  total_length (u32 LE) || head_length (u32 LE)
	head   (head_length bytes): encoded Header
	payload(total_length - head_length - 8 bytes): opaque bytes

Message itself carries no transport logic; pkg/transport owns the
session that frames, writes, and dispatches a Message, and pkg/context
owns the timer that expires one. Keeping Message dependency-free (only
fdtypes and the standard library) means it can be shared by transport,
object, and the name/host server packages without import cycles.
*/
package message
