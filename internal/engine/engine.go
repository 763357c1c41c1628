// Package engine orchestrates writing a disk image to a removable device:
// pre-flight validation, chunked streaming with bounded retries, progress
// reporting, cooperative cancellation, and a checksum verification pass.
package engine

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"inferno/internal/device"
	"inferno/internal/image"
)

// TargetOpener opens a device for raw access. Production code uses
// device.OpenTarget; tests substitute an opener backed by a temp file.
type TargetOpener func(device.Descriptor) (device.Target, error)

// Engine creates and tracks write operations. At most one active operation
// may target the same device identity at a time.
type Engine struct {
	open TargetOpener

	mu     sync.Mutex
	active map[string]*Operation
}

// New returns an engine writing to real devices.
func New() *Engine {
	return NewWithOpener(device.OpenTarget)
}

// NewWithOpener returns an engine using a custom device opener.
func NewWithOpener(open TargetOpener) *Engine {
	return &Engine{
		open:   open,
		active: make(map[string]*Operation),
	}
}

// Start validates the request and, if it passes, launches the write on its
// own worker goroutine and returns immediately with the operation handle.
//
// Validation failures are returned synchronously and guarantee that no
// device byte was touched; the caller keeps ownership of img and may retry
// with different parameters. Once Start succeeds the operation owns img and
// closes it on every exit path. Cancelling ctx cancels the operation.
func (e *Engine) Start(ctx context.Context, desc device.Descriptor, img *image.Image, opts Options) (*Operation, error) {
	if !opts.AllowOverwrite {
		return nil, ErrOverwriteNotAllowed
	}
	if !desc.Removable {
		return nil, fmt.Errorf("%w: %s", ErrNotRemovable, desc.Identity)
	}
	if err := opts.normalize(desc.SectorSize); err != nil {
		return nil, err
	}
	// Capacity 0 means unknown, which is surfaced, not treated as zero-size.
	if desc.CapacityBytes > 0 && img.Size > desc.CapacityBytes {
		return nil, fmt.Errorf("%w: image %d bytes, device %d bytes", ErrInsufficientCapacity, img.Size, desc.CapacityBytes)
	}

	e.mu.Lock()
	if _, busy := e.active[desc.Identity]; busy {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDeviceBusy, desc.Identity)
	}
	op := newOperation(ctx, desc, img, opts)
	e.active[desc.Identity] = op
	e.mu.Unlock()

	log.WithFields(log.Fields{
		"device": desc.Identity,
		"image":  img.Path,
		"size":   img.Size,
		"chunk":  opts.ChunkSize,
		"verify": opts.VerifyAfterWrite,
	}).Info("starting write operation")

	go func() {
		op.run(e.open)
		// Free the identity before Done becomes observable so a caller
		// that saw the operation finish can start the next one.
		e.finish(desc.Identity)
		close(op.done)
	}()
	return op, nil
}

// Active returns the running operation for the device identity, if any.
func (e *Engine) Active(identity string) (*Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	op, ok := e.active[identity]
	return op, ok
}

func (e *Engine) finish(identity string) {
	e.mu.Lock()
	delete(e.active, identity)
	e.mu.Unlock()
}
