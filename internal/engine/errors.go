package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrOverwriteNotAllowed means the caller did not pass the explicit
	// AllowOverwrite confirmation. Nothing is written.
	ErrOverwriteNotAllowed = errors.New("overwrite not allowed: confirmation required")

	// ErrNotRemovable guards against writing to a fixed internal disk.
	ErrNotRemovable = errors.New("device is not removable")

	// ErrInsufficientCapacity means the image does not fit the device.
	ErrInsufficientCapacity = errors.New("image larger than device capacity")

	// ErrDeviceBusy means another operation is already writing to the device.
	ErrDeviceBusy = errors.New("device already has an active operation")

	// ErrInvalidChunkSize means the configured chunk size is not a positive
	// multiple of the device sector size.
	ErrInvalidChunkSize = errors.New("invalid chunk size")
)

// WriteError reports a device I/O failure that exhausted its retries, with
// the byte offset the failing chunk started at.
type WriteError struct {
	Offset int64
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("device write failed at offset %d: %v", e.Offset, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// VerifyError reports a checksum mismatch found during the verification
// pass, with the offset of the first mismatching chunk.
type VerifyError struct {
	Offset int64
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verification mismatch at offset %d", e.Offset)
}
