package services

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/deploymenttheory/go-zdb/internal/interfaces"
	"github.com/deploymenttheory/go-zdb/internal/parsers/blockpointer"
	"github.com/deploymenttheory/go-zdb/internal/parsers/dnode"
	"github.com/deploymenttheory/go-zdb/internal/parsers/uberblock"
	"github.com/deploymenttheory/go-zdb/internal/types"
)

// PoolOptions control how a pool image is opened.
type PoolOptions struct {
	// LabelIndex selects which of the four vdev labels to scan, 0..3.
	LabelIndex int

	// VerifyChecksums enables fletcher4 verification on physical reads.
	VerifyChecksums bool

	Logger *slog.Logger
}

// PoolReader bootstraps a pool from its vdev labels and serves the meta
// object set as an object source.
type PoolReader struct {
	raw      interfaces.RawBlockReader
	endian   binary.ByteOrder
	ub       *uberblock.Reader
	objset   *uberblock.ObjsetReader
	metaData *DataReader
	labelIdx int
	verify   bool
	log      *slog.Logger
}

// OpenPool scans the selected vdev label's uberblock ring, picks the
// valid slot with the highest txg, and walks its root block pointer to
// the meta object set.
func OpenPool(ctx context.Context, raw interfaces.RawBlockReader, opts PoolOptions) (*PoolReader, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LabelIndex < 0 || opts.LabelIndex >= types.VdevLabelCount {
		return nil, fmt.Errorf("%w: label index %d outside 0..%d",
			ErrInvalidArgument, opts.LabelIndex, types.VdevLabelCount-1)
	}

	labelOff, err := labelOffset(raw, opts.LabelIndex)
	if err != nil {
		return nil, err
	}

	ring, err := raw.ReadBlock(ctx, 0, labelOff+types.VdevUberblockRingOffset, types.VdevUberblockRingSize)
	if err != nil {
		return nil, fmt.Errorf("%w: reading uberblock ring of label %d: %v", ErrIO, opts.LabelIndex, err)
	}

	best, endian := scanUberblockRing(ring, opts.Logger)
	if best == nil {
		return nil, fmt.Errorf("%w: no valid uberblock in label %d", ErrCorrupt, opts.LabelIndex)
	}
	opts.Logger.Debug("selected uberblock",
		"txg", best.Txg(), "version", best.Version(), "timestamp", best.Timestamp())

	rootBp, err := blockpointer.NewReader(best.RootBlkptrSlot(), endian)
	if err != nil {
		return nil, fmt.Errorf("%w: root block pointer: %v", ErrCorrupt, err)
	}
	if rootBp.IsHole() {
		return nil, fmt.Errorf("%w: root block pointer is a hole", ErrCorrupt)
	}

	osBlock, err := ReadBlockPointer(ctx, raw, rootBp, opts.VerifyChecksums)
	if err != nil {
		return nil, fmt.Errorf("reading meta object set: %w", err)
	}
	osr, err := uberblock.NewObjsetReader(osBlock, endian)
	if err != nil {
		return nil, fmt.Errorf("%w: meta object set: %v", ErrCorrupt, err)
	}
	meta, err := dnode.NewReader(osr.MetaDnode(), endian)
	if err != nil {
		return nil, fmt.Errorf("%w: metadnode: %v", ErrCorrupt, err)
	}
	if !meta.IsAllocated() {
		return nil, fmt.Errorf("%w: metadnode is unallocated", ErrCorrupt)
	}

	p := &PoolReader{
		raw:      raw,
		endian:   endian,
		ub:       best,
		objset:   osr,
		labelIdx: opts.LabelIndex,
		verify:   opts.VerifyChecksums,
		log:      opts.Logger,
	}
	p.metaData = NewDataReader(raw, meta, opts.VerifyChecksums)
	return p, nil
}

// labelOffset returns the byte offset of label index on vdev 0. The
// trailing pair sits at the end of the device.
func labelOffset(raw interfaces.RawBlockReader, index int) (uint64, error) {
	if index < 2 {
		return uint64(index) * types.VdevLabelSize, nil
	}
	size, err := raw.Size(0)
	if err != nil {
		return 0, fmt.Errorf("%w: vdev size: %v", ErrIO, err)
	}
	if size < 4*types.VdevLabelSize {
		return 0, fmt.Errorf("%w: device too small for trailing labels: %d bytes", ErrCorrupt, size)
	}
	return size - uint64(4-index)*types.VdevLabelSize, nil
}

// scanUberblockRing parses every ring slot and returns the valid one
// with the highest txg, along with its byte order.
func scanUberblockRing(ring []byte, log *slog.Logger) (*uberblock.Reader, binary.ByteOrder) {
	var best *uberblock.Reader
	var bestEndian binary.ByteOrder
	for off := 0; off+types.UberblockSlotSize <= len(ring); off += types.UberblockSlotSize {
		slot := ring[off : off+types.UberblockSlotSize]
		endian, err := uberblock.DetectEndian(slot)
		if err != nil {
			continue
		}
		ubr, err := uberblock.NewReader(slot, endian)
		if err != nil {
			log.Debug("skipping uberblock slot", "offset", off, "error", err)
			continue
		}
		if ubr.Txg() == 0 {
			continue
		}
		if best == nil || ubr.Txg() > best.Txg() {
			best = ubr
			bestEndian = endian
		}
	}
	return best, bestEndian
}

// ObjectSlot returns the raw dnode bytes for an object id, from its
// first slot to the end of its metadnode block.
func (p *PoolReader) ObjectSlot(ctx context.Context, id uint64) ([]byte, error) {
	epb := uint64(p.metaData.BlockSize()) / types.DnodeSize
	if epb == 0 {
		return nil, fmt.Errorf("%w: metadnode block smaller than one dnode", ErrCorrupt)
	}
	block, err := p.metaData.ReadBlock(ctx, id/epb)
	if err != nil {
		return nil, err
	}
	off := (id % epb) * types.DnodeSize
	if off >= uint64(len(block)) {
		return nil, fmt.Errorf("%w: object %d past end of metadnode block", ErrCorrupt, id)
	}
	return block[off:], nil
}

// MaxObjectID returns the highest object id the meta object set can
// currently hold.
func (p *PoolReader) MaxObjectID(ctx context.Context) (uint64, error) {
	epb := uint64(p.metaData.BlockSize()) / types.DnodeSize
	if epb == 0 {
		return 0, fmt.Errorf("%w: metadnode block smaller than one dnode", ErrCorrupt)
	}
	return (p.metaData.MaxBlockID()+1)*epb - 1, nil
}

// Endian returns the byte order the pool was written with.
func (p *PoolReader) Endian() binary.ByteOrder {
	return p.endian
}

// PoolSummary describes the opened pool state.
type PoolSummary struct {
	LabelIndex  int        `json:"label_index"`
	Txg         uint64     `json:"txg"`
	Version     uint64     `json:"version"`
	Timestamp   uint64     `json:"timestamp"`
	GuidSum     uint64     `json:"guid_sum"`
	Endian      string     `json:"endian"`
	ObjsetType  string     `json:"objset_type"`
	MaxObjectID uint64     `json:"max_object_id"`
	RootBp      BlkptrInfo `json:"root_bp"`
}

// Summary reports the selected uberblock and meta object set geometry.
func (p *PoolReader) Summary(ctx context.Context) (*PoolSummary, error) {
	maxID, err := p.MaxObjectID(ctx)
	if err != nil {
		return nil, err
	}
	endianName := "little"
	if p.endian == binary.BigEndian {
		endianName = "big"
	}
	return &PoolSummary{
		LabelIndex:  p.labelIdx,
		Txg:         p.ub.Txg(),
		Version:     p.ub.Version(),
		Timestamp:   p.ub.Timestamp(),
		GuidSum:     p.ub.GuidSum(),
		Endian:      endianName,
		ObjsetType:  p.objset.TypeName(),
		MaxObjectID: maxID,
		RootBp:      blkptrInfo(p.ub.RootBlkptrSlot(), p.endian, 0, false),
	}, nil
}
