//go:build linux

package device

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// MountedPartitions returns the mounted partitions of the given device
// (e.g. /dev/sdb1 for /dev/sdb) by scanning /proc/mounts.
func MountedPartitions(identity string) ([]string, error) {
	file, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var mounted []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 && strings.HasPrefix(fields[0], identity) && fields[0] != identity {
			mounted = append(mounted, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mounted, nil
}

// Unmount unmounts every given partition. The syscall is tried first with a
// umount command fallback for setups where the syscall is not permitted.
func Unmount(partitions []string) error {
	for _, part := range partitions {
		if err := unix.Unmount(part, 0); err == nil {
			continue
		}
		if err := exec.Command("umount", part).Run(); err != nil {
			return fmt.Errorf("failed to unmount %s: %w", part, err)
		}
	}
	return nil
}
