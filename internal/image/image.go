// Package image opens and validates disk-image files (ISO/IMG) and exposes
// them as a sequential chunk reader for the write engine.
package image

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/filesystem"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNotFound   = errors.New("image not found")
	ErrUnreadable = errors.New("image not readable")
	ErrEmpty      = errors.New("image is empty")
)

// ReadError reports an I/O failure while reading image bytes, with the byte
// offset the read started at.
type ReadError struct {
	Offset int64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("image read failed at offset %d: %v", e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Image is an opened, validated source image. It owns an open read handle
// until Close is called.
type Image struct {
	Path   string
	Size   int64
	Format string

	mu     sync.Mutex
	f      *os.File
	closed bool
}

// Open validates and opens the image at path. A missing path fails with
// ErrNotFound, a permission or I/O problem with ErrUnreadable, and a
// zero-byte file with ErrEmpty.
func Open(path string) (*Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	img := &Image{
		Path:   path,
		Size:   info.Size(),
		Format: sniffFormat(path),
		f:      f,
	}
	log.WithFields(log.Fields{
		"path":   path,
		"size":   img.Size,
		"format": img.Format,
	}).Debug("opened image")
	return img, nil
}

// sniffFormat inspects the image with go-diskfs. The result is informational
// only; anything unrecognized is reported as raw.
func sniffFormat(path string) string {
	d, err := diskfs.Open(path, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return "raw"
	}
	defer d.Close()

	if table, err := d.GetPartitionTable(); err == nil && table != nil {
		return table.Type()
	}

	// No partition table: probe for a plain filesystem spanning the image.
	fs, err := d.GetFilesystem(0)
	if err != nil || fs == nil {
		return "raw"
	}
	switch fs.Type() {
	case filesystem.TypeISO9660:
		return "iso9660"
	case filesystem.TypeFat32:
		return "fat32"
	case filesystem.TypeSquashfs:
		return "squashfs"
	case filesystem.TypeExt4:
		return "ext4"
	default:
		return "raw"
	}
}

// ReadChunk fills buf with image bytes starting at off. It returns exactly
// len(buf) bytes unless off+len(buf) crosses the end of the image, in which
// case the remaining bytes are returned; a short read at end-of-image is not
// an error. Reading at or past the end returns 0, io.EOF.
func (im *Image) ReadChunk(buf []byte, off int64) (int, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.closed {
		return 0, &ReadError{Offset: off, Err: os.ErrClosed}
	}
	if off >= im.Size {
		return 0, io.EOF
	}
	want := int64(len(buf))
	if off+want > im.Size {
		want = im.Size - off
	}
	n, err := im.f.ReadAt(buf[:want], off)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == want) {
		return n, &ReadError{Offset: off, Err: err}
	}
	if int64(n) != want {
		return n, &ReadError{Offset: off, Err: io.ErrUnexpectedEOF}
	}
	return n, nil
}

// Close releases the read handle. Safe to call multiple times.
func (im *Image) Close() error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.closed {
		return nil
	}
	im.closed = true
	return im.f.Close()
}
