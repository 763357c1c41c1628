package device

import (
	"fmt"
	"io"
	"os"
)

// Target is an open device handle the engine writes to and verifies against.
// *os.File satisfies it, which is also what tests substitute with a plain
// temp file.
type Target interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
}

// OpenTarget opens the device described by desc for raw read/write access.
// The path handed to the OS is rewritten per platform (raw-disk node on
// darwin, \\.\ prefix on windows).
func OpenTarget(desc Descriptor) (Target, error) {
	path := rawDevicePath(desc.Identity)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", path, err)
	}
	return f, nil
}
