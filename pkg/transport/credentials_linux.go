//go:build linux

package transport

import (
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentials holds the credentials a session's peer presented at
// connect time, when the transport can determine them (unix-domain
// sockets only).
type PeerCredentials struct {
	PID int32
	UID uint32
	GID uint32
	ok  bool
}

// Known reports whether credentials were actually retrieved.
func (p PeerCredentials) Known() bool { return p.ok }

func peerCredentials(conn net.Conn) PeerCredentials {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return PeerCredentials{}
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return PeerCredentials{}
	}
	var cred *unix.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		cred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || sockErr != nil || cred == nil {
		return PeerCredentials{}
	}
	return PeerCredentials{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid, ok: true}
}
