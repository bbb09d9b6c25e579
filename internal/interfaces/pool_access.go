// Package interfaces defines the pool access surfaces the service layer
// consumes, keeping services testable against in-memory fakes.
package interfaces

import (
	"context"
	"encoding/binary"
)

// RawBlockReader reads physical byte ranges from a pool's vdevs.
type RawBlockReader interface {
	// ReadBlock returns length bytes at the given physical byte offset
	// on the vdev.
	ReadBlock(ctx context.Context, vdev uint64, offset uint64, length uint64) ([]byte, error)

	// Size returns the vdev's size in bytes.
	Size(vdev uint64) (uint64, error)
}

// ObjectSource resolves object ids in an object set to raw dnode slots.
type ObjectSource interface {
	// ObjectSlot returns the raw bytes of the object's dnode, starting
	// at its first slot and running at least to the end of the
	// containing metadnode block.
	ObjectSlot(ctx context.Context, id uint64) ([]byte, error)

	// MaxObjectID returns the highest object id the object set can
	// currently hold.
	MaxObjectID(ctx context.Context) (uint64, error)

	// Endian returns the byte order the object set was written with.
	Endian() binary.ByteOrder
}
