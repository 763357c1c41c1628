package engine

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultChunkSize bounds memory use and sets the granularity of
	// progress reporting and cancellation.
	DefaultChunkSize = 4 * 1024 * 1024

	// fallbackSectorSize is assumed when the device does not report one.
	fallbackSectorSize = 512

	// writeAttempts bounds retries of a single chunk before the operation
	// fails. The same offset is re-issued every time; the engine never
	// skips ahead past a failed chunk.
	writeAttempts = 3
)

var validate = validator.New()

// Options configures a single write operation. The zero value is NOT usable:
// AllowOverwrite must be set explicitly, which is the point.
type Options struct {
	// AllowOverwrite must be true for any device byte to be touched. The
	// engine refuses to start without it.
	AllowOverwrite bool

	// VerifyAfterWrite re-reads the written region and compares checksums.
	VerifyAfterWrite bool

	// ChunkSize is the write granularity in bytes. 0 selects
	// DefaultChunkSize. Must be a positive multiple of the device sector
	// size (512 when the device does not report one).
	ChunkSize int64 `validate:"gte=0"`
}

// DefaultOptions returns the recommended configuration: verification on,
// default chunking, overwrite still requiring explicit opt-in.
func DefaultOptions() Options {
	return Options{
		VerifyAfterWrite: true,
		ChunkSize:        DefaultChunkSize,
	}
}

// normalize applies defaults and validates the chunk size against the
// device sector size.
func (o *Options) normalize(sectorSize int64) error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChunkSize, err)
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if sectorSize <= 0 {
		sectorSize = fallbackSectorSize
	}
	if o.ChunkSize <= 0 || o.ChunkSize%sectorSize != 0 {
		return fmt.Errorf("%w: %d is not a positive multiple of sector size %d", ErrInvalidChunkSize, o.ChunkSize, sectorSize)
	}
	return nil
}
