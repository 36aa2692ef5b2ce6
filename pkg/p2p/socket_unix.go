//go:build !windows

package p2p

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setSocketReuseAddr sets SO_REUSEADDR so a restarted node can rebind its port
// while old connections sit in TIME_WAIT. No SO_REUSEPORT: two nodes must never
// share one listen address.
func setSocketReuseAddr(network, address string, c syscall.RawConn) error {
	var setSockOptErr error
	err := c.Control(func(fd uintptr) {
		setSockOptErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return setSockOptErr
}
