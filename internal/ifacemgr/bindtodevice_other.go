//go:build !linux

package ifacemgr

import "fmt"

// bindToDevice has no portable implementation outside Linux's SO_BINDTODEVICE;
// spec.md §4.3 already treats bind-to-device as best-effort and non-fatal, so
// callers on other platforms simply log this error and continue unbound.
func bindToDevice(rawConn interface{ Control(func(fd uintptr)) error }, name string) error {
	return fmt.Errorf("bind-to-device is not supported on this platform")
}
