// Package device provides access to pool images stored as regular
// files, plus the configuration loading for opening them.
package device

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/deploymenttheory/go-zdb/internal/services"
)

// FileDevice reads a single-vdev pool image backed by a regular file.
type FileDevice struct {
	file *os.File
	path string
	size uint64
}

// OpenFile opens a pool image file read-only.
func OpenFile(path string) (*FileDevice, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrDeviceUnavailable, err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", services.ErrDeviceUnavailable, path, err)
	}
	return &FileDevice{file: file, path: path, size: uint64(stat.Size())}, nil
}

// Path returns the image path the device was opened from.
func (d *FileDevice) Path() string {
	return d.path
}

// ReadBlock returns length bytes at the given physical byte offset.
// Only vdev 0 exists for a file image.
func (d *FileDevice) ReadBlock(ctx context.Context, vdev, offset, length uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if vdev != 0 {
		return nil, fmt.Errorf("%w: vdev %d not present in file image", services.ErrDeviceUnavailable, vdev)
	}
	// Split comparison so offset+length cannot wrap on huge offsets.
	if offset > d.size || length > d.size-offset {
		return nil, fmt.Errorf("%w: read %#x bytes at %#x past device end %#x",
			services.ErrDeviceUnavailable, length, offset, d.size)
	}

	buf := make([]byte, length)
	n, err := d.file.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: read at %#x: %v", services.ErrDeviceUnavailable, offset, err)
	}
	if uint64(n) != length {
		return nil, fmt.Errorf("%w: short read at %#x: %d of %d bytes",
			services.ErrDeviceUnavailable, offset, n, length)
	}
	return buf, nil
}

// Size returns the vdev's size in bytes.
func (d *FileDevice) Size(vdev uint64) (uint64, error) {
	if vdev != 0 {
		return 0, fmt.Errorf("%w: vdev %d not present in file image", services.ErrDeviceUnavailable, vdev)
	}
	return d.size, nil
}

// Close releases the underlying file.
func (d *FileDevice) Close() error {
	return d.file.Close()
}
