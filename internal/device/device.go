// Package device enumerates removable storage devices and opens them for
// raw writing. Platform specifics live in the //go:build tagged files; the
// catalog itself is platform independent.
package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// ErrEnumeration means the platform device query itself could not be
// performed. Per-device probe failures are logged and skipped instead.
var ErrEnumeration = errors.New("device enumeration failed")

// Descriptor is an immutable snapshot of a storage device taken at
// enumeration time. It is superseded, never updated, by the next enumeration.
type Descriptor struct {
	// Identity is the platform device handle, e.g. /dev/sdb or
	// \\.\PHYSICALDRIVE1. Unique per physical device within a session.
	Identity string

	// DisplayLabel is a volume label or mount point, empty when absent.
	DisplayLabel string

	// VendorModel is free-text vendor/model description.
	VendorModel string

	// CapacityBytes is the device size. 0 means unknown, not zero-sized.
	CapacityBytes int64

	// SectorSize is the logical sector size in bytes, 0 when unknown.
	SectorSize int64

	// Removable reports whether the platform flags the device as removable
	// media. The catalog only ever returns removable devices.
	Removable bool
}

// String renders the descriptor the way a device picker would show it.
func (d Descriptor) String() string {
	size := "unknown size"
	if d.CapacityBytes > 0 {
		size = humanize.IBytes(uint64(d.CapacityBytes))
	}
	if d.VendorModel != "" {
		return fmt.Sprintf("%s (%s) %s", d.Identity, size, d.VendorModel)
	}
	return fmt.Sprintf("%s (%s)", d.Identity, size)
}

// Catalog enumerates candidate removable devices.
type Catalog struct {
	probe func(ctx context.Context) ([]Descriptor, error)
}

// NewCatalog returns a catalog backed by the platform device query.
func NewCatalog() *Catalog {
	return &Catalog{probe: probeDevices}
}

// Enumerate queries the platform and returns a fresh snapshot of removable
// devices. Non-removable devices never appear in the result. The returned
// slice is finite and detached; call Enumerate again to refresh.
func (c *Catalog) Enumerate(ctx context.Context) ([]Descriptor, error) {
	all, err := c.probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumeration, err)
	}
	devices := make([]Descriptor, 0, len(all))
	for _, d := range all {
		if d.Removable {
			devices = append(devices, d)
		}
	}
	return devices, nil
}
