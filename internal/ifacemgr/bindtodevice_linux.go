//go:build linux

package ifacemgr

import (
	"golang.org/x/sys/unix"
)

// bindToDevice pins conn's underlying socket to name at the OS level via
// SO_BINDTODEVICE, the Linux equivalent of the platform-specific bind-to-device
// socket option spec.md §4.3 calls for. Best-effort: failures are returned to
// the caller, which logs and continues rather than treating this as fatal.
func bindToDevice(rawConn interface{ Control(func(fd uintptr)) error }, name string) error {
	var setErr error
	ctrlErr := rawConn.Control(func(fd uintptr) {
		setErr = unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, name)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return setErr
}
