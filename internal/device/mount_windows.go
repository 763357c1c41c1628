//go:build windows

package device

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/bi-zone/wmi"
)

type win32DiskPartitionToLogicalDisk struct {
	Antecedent string
	Dependent  string
}

// MountedPartitions returns the drive letters mapped onto the physical
// device, resolved through the WMI partition-to-logical-disk association.
func MountedPartitions(identity string) ([]string, error) {
	var links []win32DiskPartitionToLogicalDisk
	err := wmi.Query("SELECT Antecedent, Dependent FROM Win32_LogicalDiskToPartition", &links)
	if err != nil {
		return nil, err
	}

	// Identity looks like \\.\PHYSICALDRIVE1; the association references
	// "Disk #1, Partition #0".
	diskNo := strings.TrimPrefix(strings.ToUpper(identity), "\\\\.\\PHYSICALDRIVE")
	var mounted []string
	for _, l := range links {
		if strings.Contains(l.Antecedent, "Disk #"+diskNo+",") {
			if letter := extractDriveLetter(l.Dependent); letter != "" {
				mounted = append(mounted, letter)
			}
		}
	}
	return mounted, nil
}

func extractDriveLetter(ref string) string {
	// Dependent looks like ...Win32_LogicalDisk.DeviceID="E:"
	i := strings.Index(ref, "DeviceID=\"")
	if i < 0 {
		return ""
	}
	rest := ref[i+len("DeviceID=\""):]
	if j := strings.Index(rest, "\""); j > 0 {
		return rest[:j]
	}
	return ""
}

// Unmount removes the drive letters with mountvol so no explorer window or
// indexer holds the volume open during the write.
func Unmount(partitions []string) error {
	for _, part := range partitions {
		if err := exec.Command("mountvol", part, "/p").Run(); err != nil {
			return fmt.Errorf("failed to unmount %s: %w", part, err)
		}
	}
	return nil
}
