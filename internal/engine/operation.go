package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"sync"

	log "github.com/sirupsen/logrus"

	"inferno/internal/device"
	"inferno/internal/image"
	"inferno/internal/progress"
)

// State is the lifecycle position of an operation.
type State int

const (
	StatePending State = iota
	StateValidating
	StateWriting
	StateVerifying
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateValidating:
		return "validating"
	case StateWriting:
		return "writing"
	case StateVerifying:
		return "verifying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Result is the final outcome of an operation. Valid after Done is closed.
type Result struct {
	State State

	// Err carries the failure kind and, for I/O and verification failures,
	// the byte offset. Nil for Succeeded and Cancelled.
	Err error

	// FailureOffset is the byte offset of the failure, -1 when not
	// applicable.
	FailureOffset int64

	// BytesWritten is the total number of image bytes written to the
	// device, counting each offset exactly once regardless of retries.
	BytesWritten int64

	// Checksum is the hex SHA-256 of the bytes streamed to the device.
	// Empty unless the write phase completed.
	Checksum string

	// DeviceModified reports whether any byte reached the device. False
	// means the device content is untouched; true on any non-success
	// outcome means the device is partially written and must not be
	// trusted.
	DeviceModified bool
}

// Snapshot is the last known progress of an operation, always available
// without blocking on I/O.
type Snapshot struct {
	State   State
	Percent int
	Message string
}

// Operation is one image-to-device write with its own worker goroutine.
// It owns the image handle for its lifetime and closes it on every exit
// path.
type Operation struct {
	Device device.Descriptor

	img    *image.Image
	opts   Options
	events *progress.Channel

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	state  State
	result Result
}

func newOperation(ctx context.Context, desc device.Descriptor, img *image.Image, opts Options) *Operation {
	opCtx, cancel := context.WithCancel(ctx)
	return &Operation{
		Device: desc,
		img:    img,
		opts:   opts,
		events: progress.NewChannel(),
		ctx:    opCtx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StatePending,
	}
}

// Events returns the operation's progress channel for subscription.
func (op *Operation) Events() *progress.Channel { return op.events }

// State returns the current lifecycle state.
func (op *Operation) State() State {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

// Progress reports the last known state, percentage, and message. It never
// blocks on I/O.
func (op *Operation) Progress() Snapshot {
	ev, _ := op.events.Last()
	return Snapshot{State: op.State(), Percent: ev.Percent, Message: ev.Message}
}

// Cancel requests cooperative cancellation. It is safe to call concurrently
// with the write, requires no lock, and is a no-op once the operation is
// terminal. The worker honors it between chunks, so the operation reaches
// Cancelled within one chunk interval; an in-flight chunk is allowed to
// finish so it is never left half-written.
func (op *Operation) Cancel() { op.cancel() }

// Done is closed when the operation reaches a terminal state.
func (op *Operation) Done() <-chan struct{} { return op.done }

// Result returns the final outcome, blocking until the operation is
// terminal or ctx is cancelled.
func (op *Operation) Result(ctx context.Context) (Result, error) {
	select {
	case <-op.done:
		op.mu.Lock()
		defer op.mu.Unlock()
		return op.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (op *Operation) setState(s State) {
	op.mu.Lock()
	op.state = s
	op.mu.Unlock()
}

func (op *Operation) cancelled() bool {
	select {
	case <-op.ctx.Done():
		return true
	default:
		return false
	}
}

// run drives the state machine on the worker goroutine. Exactly one worker
// holds the open device handle for the operation's lifetime.
func (op *Operation) run(open TargetOpener) {
	defer op.events.Close()
	defer op.img.Close()
	defer op.cancel()

	if op.cancelled() {
		op.finishCancelled(0, false)
		return
	}

	// Handle acquisition belongs to validation: failing to open the device
	// means nothing was written.
	op.setState(StateValidating)
	target, err := open(op.Device)
	if err != nil {
		// Nothing was written; the device content is untouched.
		op.finishFailed(&WriteError{Offset: 0, Err: err}, 0, 0, false)
		return
	}
	defer target.Close()

	sums, written, err := op.write(target)
	modified := written > 0
	switch {
	case err != nil:
		offset := int64(-1)
		switch e := err.(type) {
		case *WriteError:
			offset = e.Offset
			// WriteAt was attempted at this offset; assume it dirtied
			// the device even if it reported failure.
			modified = true
		case *image.ReadError:
			offset = e.Offset
		}
		op.finishFailed(err, offset, written, modified)
		return
	case op.cancelled():
		op.finishCancelled(written, modified)
		return
	}

	if op.opts.VerifyAfterWrite {
		op.setState(StateVerifying)
		if err := op.verify(target, sums, written); err != nil {
			if op.cancelled() {
				op.finishCancelled(written, true)
				return
			}
			offset := int64(-1)
			switch e := err.(type) {
			case *VerifyError:
				offset = e.Offset
			case *WriteError:
				offset = e.Offset
			}
			op.finishFailed(err, offset, written, true)
			return
		}
		if op.cancelled() {
			op.finishCancelled(written, true)
			return
		}
	}

	op.finishSucceeded(sums, written)
}

// chunkSums carries the integrity record built during the write phase.
type chunkSums struct {
	// crcs holds one CRC-32C per chunk in write order, used to locate the
	// first mismatching offset during verification.
	crcs []uint32
	// digest is the hex SHA-256 over every byte streamed to the device.
	digest string
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// write streams the image to the target in sequential chunks. Each chunk is
// retried in place up to writeAttempts times; the loop never advances past a
// chunk that has not been written. Returns the integrity record and the
// number of bytes durably handed to the device.
func (op *Operation) write(target device.Target) (chunkSums, int64, error) {
	op.setState(StateWriting)

	buf := make([]byte, op.opts.ChunkSize)
	running := sha256.New()
	var sums chunkSums
	var written int64

	for off := int64(0); off < op.img.Size; {
		if op.cancelled() {
			return sums, written, nil
		}

		n, err := op.img.ReadChunk(buf, off)
		if err != nil {
			return sums, written, err
		}
		data := buf[:n]

		if err := writeChunkWithRetry(target, data, off); err != nil {
			return sums, written, &WriteError{Offset: off, Err: err}
		}
		if err := target.Sync(); err != nil {
			return sums, written, &WriteError{Offset: off, Err: err}
		}

		running.Write(data)
		sums.crcs = append(sums.crcs, crc32.Checksum(data, castagnoli))
		off += int64(n)
		written = off

		op.events.Publish(progress.Event{
			Stage:        progress.StageWriting,
			BytesWritten: written,
			TotalBytes:   op.img.Size,
			Percent:      percent(written, op.img.Size),
			Message:      "writing image",
		})
	}

	sums.digest = hex.EncodeToString(running.Sum(nil))
	return sums, written, nil
}

// writeChunkWithRetry re-issues the same offset and length until it succeeds
// or the attempt budget is exhausted. Skipping ahead after a failed chunk
// would silently corrupt the device, so it never does.
func writeChunkWithRetry(target device.Target, data []byte, off int64) error {
	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if _, err = target.WriteAt(data, off); err == nil {
			return nil
		}
		log.WithFields(log.Fields{
			"offset":  off,
			"attempt": attempt,
		}).Warnf("chunk write failed: %v", err)
	}
	return err
}

// verify re-reads the written region with the same chunking scheme and
// compares per-chunk checksums against the record built during the write.
func (op *Operation) verify(target device.Target, sums chunkSums, written int64) error {
	buf := make([]byte, op.opts.ChunkSize)
	var verified int64

	for i, off := 0, int64(0); off < written; i++ {
		if op.cancelled() {
			return nil
		}

		n := int64(len(buf))
		if off+n > written {
			n = written - off
		}
		if _, err := target.ReadAt(buf[:n], off); err != nil {
			return &WriteError{Offset: off, Err: err}
		}
		if crc32.Checksum(buf[:n], castagnoli) != sums.crcs[i] {
			return &VerifyError{Offset: off}
		}

		off += n
		verified = off

		op.events.Publish(progress.Event{
			Stage:        progress.StageVerifying,
			BytesWritten: written,
			TotalBytes:   op.img.Size,
			Percent:      100,
			Message:      fmt.Sprintf("verifying %d%%", percent(verified, written)),
		})
	}
	return nil
}

func (op *Operation) finishSucceeded(sums chunkSums, written int64) {
	op.mu.Lock()
	op.state = StateSucceeded
	op.result = Result{
		State:          StateSucceeded,
		FailureOffset:  -1,
		BytesWritten:   written,
		Checksum:       sums.digest,
		DeviceModified: true,
	}
	op.mu.Unlock()

	op.events.Publish(progress.Event{
		Stage:        progress.StageDone,
		BytesWritten: written,
		TotalBytes:   op.img.Size,
		Percent:      100,
		Message:      "write complete",
	})
	log.WithField("device", op.Device.Identity).Info("write operation succeeded")
}

func (op *Operation) finishFailed(err error, offset, written int64, modified bool) {
	op.mu.Lock()
	op.state = StateFailed
	op.result = Result{
		State:          StateFailed,
		Err:            err,
		FailureOffset:  offset,
		BytesWritten:   written,
		DeviceModified: modified,
	}
	op.mu.Unlock()

	op.events.Publish(progress.Event{
		Stage:        progress.StageDone,
		BytesWritten: written,
		TotalBytes:   op.img.Size,
		Percent:      percent(written, op.img.Size),
		Message:      err.Error(),
	})
	log.WithFields(log.Fields{
		"device": op.Device.Identity,
		"offset": offset,
	}).Errorf("write operation failed: %v", err)
}

func (op *Operation) finishCancelled(written int64, modified bool) {
	op.mu.Lock()
	op.state = StateCancelled
	op.result = Result{
		State:          StateCancelled,
		FailureOffset:  -1,
		BytesWritten:   written,
		DeviceModified: modified,
	}
	op.mu.Unlock()

	msg := "cancelled before any write"
	if modified {
		msg = "cancelled, device partially written"
	}
	op.events.Publish(progress.Event{
		Stage:        progress.StageDone,
		BytesWritten: written,
		TotalBytes:   op.img.Size,
		Percent:      percent(written, op.img.Size),
		Message:      msg,
	})
	log.WithField("device", op.Device.Identity).Warn("write operation cancelled")
}

func percent(written, total int64) int {
	if total <= 0 {
		return 0
	}
	return int((written*100 + total/2) / total)
}
