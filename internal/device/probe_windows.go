//go:build windows

package device

import (
	"context"
	"strings"

	"github.com/bi-zone/wmi"
)

type win32DiskDrive struct {
	DeviceID       string
	Model          string
	InterfaceType  string
	MediaType      string
	Size           uint64
	BytesPerSector uint32
}

// probeDevices queries Win32_DiskDrive over WMI.
func probeDevices(_ context.Context) ([]Descriptor, error) {
	var drives []win32DiskDrive
	err := wmi.Query("SELECT DeviceID, Model, InterfaceType, MediaType, Size, BytesPerSector FROM Win32_DiskDrive", &drives)
	if err != nil {
		return nil, err
	}

	devices := make([]Descriptor, 0, len(drives))
	for _, d := range drives {
		devices = append(devices, Descriptor{
			Identity:      d.DeviceID,
			VendorModel:   strings.TrimSpace(d.Model),
			CapacityBytes: int64(d.Size),
			SectorSize:    int64(d.BytesPerSector),
			Removable:     isRemovableDrive(d),
		})
	}
	return devices, nil
}

func isRemovableDrive(d win32DiskDrive) bool {
	if d.InterfaceType == "USB" {
		return true
	}
	media := strings.ToLower(d.MediaType)
	return strings.Contains(media, "removable") || strings.Contains(media, "external")
}
