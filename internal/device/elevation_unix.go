//go:build linux || darwin

package device

import "os"

// Elevated reports whether the process can open raw device nodes, which on
// unix means running as root.
func Elevated() (bool, error) {
	return os.Geteuid() == 0, nil
}
