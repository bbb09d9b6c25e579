package services

import (
	"context"
	"fmt"

	"github.com/deploymenttheory/go-zdb/internal/interfaces"
	"github.com/deploymenttheory/go-zdb/internal/types"
)

// MaxRawReadSize bounds a single raw block read.
const MaxRawReadSize = 1 << 20

// BlockService reads raw physical blocks and exposes the DMU type
// catalog.
type BlockService struct {
	raw interfaces.RawBlockReader
}

// NewBlockService creates a new block service.
func NewBlockService(raw interfaces.RawBlockReader) *BlockService {
	return &BlockService{raw: raw}
}

// ReadRaw reads length bytes at the given physical device offset with
// no decompression or checksum handling. Length must be between 1 byte
// and 1 MiB.
func (s *BlockService) ReadRaw(ctx context.Context, vdev, offset, length uint64) ([]byte, error) {
	if length == 0 || length > MaxRawReadSize {
		return nil, fmt.Errorf("%w: read length %d outside 1..%d", ErrInvalidArgument, length, MaxRawReadSize)
	}
	data, err := s.raw.ReadBlock(ctx, vdev, offset, length)
	if err != nil {
		return nil, fmt.Errorf("%w: raw read at vdev %d offset %#x: %v", ErrIO, vdev, offset, err)
	}
	return data, nil
}

// DmuTypeEntry describes one entry of the DMU object type catalog.
type DmuTypeEntry struct {
	Value    uint8  `json:"value"`
	Name     string `json:"name"`
	IsZap    bool   `json:"is_zap"`
	Metadata bool   `json:"metadata"`
}

// ListDmuTypes returns the full catalog of known DMU object types in
// numeric order.
func ListDmuTypes() []DmuTypeEntry {
	entries := make([]DmuTypeEntry, 0, types.DmuOtNumtypes)
	for i := 0; i < int(types.DmuOtNumtypes); i++ {
		t := types.DmuObjectType(i)
		entries = append(entries, DmuTypeEntry{
			Value:    uint8(i),
			Name:     t.String(),
			IsZap:    t.IsZap(),
			Metadata: t.IsMetadata(),
		})
	}
	return entries
}
