//go:build darwin

package device

import "strings"

// rawDevicePath converts /dev/diskN to /dev/rdiskN. The raw character device
// bypasses the buffer cache and is much faster for sequential writes.
func rawDevicePath(identity string) string {
	if strings.HasPrefix(identity, "/dev/disk") {
		return "/dev/r" + identity[5:]
	}
	return identity
}
