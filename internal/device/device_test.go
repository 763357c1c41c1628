package device

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestEnumerateFiltersNonRemovable(t *testing.T) {
	c := &Catalog{probe: func(context.Context) ([]Descriptor, error) {
		return []Descriptor{
			{Identity: "/dev/sda", VendorModel: "Samsung SSD 870", CapacityBytes: 500e9, Removable: false},
			{Identity: "/dev/sdb", VendorModel: "SanDisk Cruzer Blade", CapacityBytes: 16e9, Removable: true},
		}, nil
	}}

	devices, err := c.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(devices))
	}
	if devices[0].Identity != "/dev/sdb" || !devices[0].Removable {
		t.Errorf("unexpected descriptor: %+v", devices[0])
	}
}

func TestEnumerateEmptySnapshot(t *testing.T) {
	c := &Catalog{probe: func(context.Context) ([]Descriptor, error) {
		return []Descriptor{
			{Identity: "/dev/nvme0n1", Removable: false},
		}, nil
	}}

	devices, err := c.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("got %d devices, want none", len(devices))
	}
}

func TestEnumerateProbeFailure(t *testing.T) {
	c := &Catalog{probe: func(context.Context) ([]Descriptor, error) {
		return nil, errors.New("wmi query refused")
	}}

	_, err := c.Enumerate(context.Background())
	if !errors.Is(err, ErrEnumeration) {
		t.Errorf("err = %v, want ErrEnumeration", err)
	}
}

func TestEnumerateFreshSnapshots(t *testing.T) {
	calls := 0
	c := &Catalog{probe: func(context.Context) ([]Descriptor, error) {
		calls++
		if calls == 1 {
			return []Descriptor{{Identity: "/dev/sdb", Removable: true}}, nil
		}
		return nil, nil
	}}

	first, _ := c.Enumerate(context.Background())
	second, _ := c.Enumerate(context.Background())
	if len(first) != 1 || len(second) != 0 {
		t.Errorf("snapshots not fresh: first %d, second %d", len(first), len(second))
	}
}

func TestDescriptorString(t *testing.T) {
	d := Descriptor{Identity: "/dev/sdb", VendorModel: "SanDisk Ultra", CapacityBytes: 16 << 30, Removable: true}
	s := d.String()
	if !strings.Contains(s, "/dev/sdb") || !strings.Contains(s, "SanDisk Ultra") || !strings.Contains(s, "16 GiB") {
		t.Errorf("String() = %q", s)
	}

	unknown := Descriptor{Identity: "/dev/sdc", Removable: true}
	if !strings.Contains(unknown.String(), "unknown size") {
		t.Errorf("String() for unknown capacity = %q", unknown.String())
	}
}
