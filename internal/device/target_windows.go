//go:build windows

package device

import (
	"fmt"
	"strings"
)

// rawDevicePath normalizes the identity to the \\.\ physical-device form,
// e.g. "E:" becomes "\\.\E:".
func rawDevicePath(identity string) string {
	if strings.HasPrefix(identity, "\\\\.\\") {
		return identity
	}
	return fmt.Sprintf("\\\\.\\%s", identity)
}
