//go:build darwin

package device

import (
	"fmt"
	"os/exec"
	"strings"
)

// MountedPartitions asks mount(8) which partitions of the device are
// currently mounted.
func MountedPartitions(identity string) ([]string, error) {
	out, err := exec.Command("mount").Output()
	if err != nil {
		return nil, err
	}
	var mounted []string
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && strings.HasPrefix(fields[0], identity) && fields[0] != identity {
			mounted = append(mounted, fields[0])
		}
	}
	return mounted, nil
}

// Unmount ejects the partitions through diskutil, which also notifies
// Finder so the device does not pop back up as a mounted volume.
func Unmount(partitions []string) error {
	for _, part := range partitions {
		if err := exec.Command("diskutil", "unmount", part).Run(); err != nil {
			return fmt.Errorf("failed to unmount %s: %w", part, err)
		}
	}
	return nil
}
