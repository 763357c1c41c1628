//go:build linux || darwin

package device

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/jaypipes/ghw/pkg/block"
	log "github.com/sirupsen/logrus"
)

// probeDevices queries block devices through ghw. Devices that vanish or
// misreport mid-probe are skipped, not fatal.
func probeDevices(_ context.Context) ([]Descriptor, error) {
	info, err := block.New(ghw.WithDisableTools())
	if err != nil {
		return nil, err
	}

	var devices []Descriptor
	for _, d := range info.Disks {
		if d.Name == "" {
			log.Debug("skipping block device with empty name")
			continue
		}
		desc := Descriptor{
			Identity:      filepath.Join("/dev", d.Name),
			VendorModel:   strings.TrimSpace(strings.Join(nonEmpty(d.Vendor, d.Model), " ")),
			CapacityBytes: int64(d.SizeBytes),
			SectorSize:    int64(d.PhysicalBlockSizeBytes),
			Removable:     d.IsRemovable || strings.Contains(d.BusPath, "usb"),
		}
		for _, p := range d.Partitions {
			if p.Label != "" {
				desc.DisplayLabel = p.Label
				break
			}
			if p.MountPoint != "" {
				desc.DisplayLabel = p.MountPoint
			}
		}
		devices = append(devices, desc)
	}
	return devices, nil
}

func nonEmpty(parts ...string) []string {
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && p != "unknown" {
			out = append(out, p)
		}
	}
	return out
}
