package services

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/deploymenttheory/go-zdb/internal/interfaces"
	"github.com/deploymenttheory/go-zdb/internal/parsers/blockpointer"
	"github.com/deploymenttheory/go-zdb/internal/parsers/dnode"
	"github.com/deploymenttheory/go-zdb/internal/types"
)

// zstdDecoder is shared by all reads; DecodeAll is safe for concurrent
// use.
var zstdDecoder, _ = zstd.NewReader(nil,
	zstd.WithDecoderConcurrency(0),
	zstd.WithDecoderMaxMemory(64<<20))

// DataReader reads an object's logical blocks by walking its block
// pointer indirection tree and undoing on-disk compression.
type DataReader struct {
	raw    interfaces.RawBlockReader
	dn     *dnode.Reader
	endian binary.ByteOrder
	verify bool
}

// NewDataReader creates a data reader for one object. When verify is
// set, fletcher4-checksummed blocks are verified after the physical
// read.
func NewDataReader(raw interfaces.RawBlockReader, dn *dnode.Reader, verify bool) *DataReader {
	return &DataReader{
		raw:    raw,
		dn:     dn,
		endian: dn.Endian(),
		verify: verify,
	}
}

// BlockSize returns the object's data block size in bytes.
func (r *DataReader) BlockSize() int {
	return int(r.dn.DataBlockSize())
}

// MaxBlockID returns the object's highest allocated logical block id.
func (r *DataReader) MaxBlockID() uint64 {
	return r.dn.MaxBlockID()
}

// Size returns the object's logical size in bytes.
func (r *DataReader) Size() uint64 {
	return (r.dn.MaxBlockID() + 1) * uint64(r.dn.DataBlockSize())
}

// epbShift returns log2 of block pointers per indirect block.
func (r *DataReader) epbShift() uint {
	return uint(r.dn.IndBlkShift()) - 7
}

// ReadBlock returns logical block blkid, fully decompressed. Holes at
// any indirection level read back as zeros.
func (r *DataReader) ReadBlock(ctx context.Context, blkid uint64) ([]byte, error) {
	bsize := r.BlockSize()
	if bsize == 0 {
		return nil, fmt.Errorf("%w: object has zero data block size", ErrCorrupt)
	}
	if blkid > r.dn.MaxBlockID() {
		return make([]byte, bsize), nil
	}

	levels := int(r.dn.Levels())
	epb := r.epbShift()

	topIdx := blkid >> (uint(levels-1) * epb)
	if topIdx >= uint64(r.dn.NumBlkptrs()) {
		return nil, fmt.Errorf("%w: block %d not addressable by %d top-level pointers",
			ErrCorrupt, blkid, r.dn.NumBlkptrs())
	}
	slot, err := r.dn.BlkptrSlot(int(topIdx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	for level := levels - 1; level > 0; level-- {
		bp, err := blockpointer.NewReader(slot, r.endian)
		if err != nil {
			return nil, fmt.Errorf("%w: level %d block pointer: %v", ErrCorrupt, level, err)
		}
		if bp.IsHole() {
			return make([]byte, bsize), nil
		}
		indirect, err := r.readPhysical(ctx, bp)
		if err != nil {
			return nil, err
		}
		idx := (blkid >> (uint(level-1) * epb)) & (1<<epb - 1)
		off := int(idx) * types.SpaBlkptrSize
		if off+types.SpaBlkptrSize > len(indirect) {
			return nil, fmt.Errorf("%w: indirect block too small for slot %d", ErrCorrupt, idx)
		}
		slot = indirect[off : off+types.SpaBlkptrSize]
	}

	bp, err := blockpointer.NewReader(slot, r.endian)
	if err != nil {
		return nil, fmt.Errorf("%w: level 0 block pointer: %v", ErrCorrupt, err)
	}
	if bp.IsHole() {
		return make([]byte, bsize), nil
	}
	return r.readPhysical(ctx, bp)
}

// ReadBytes reads length logical bytes starting at off, stitching
// across block boundaries.
func (r *DataReader) ReadBytes(ctx context.Context, off, length uint64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	bsize := uint64(r.BlockSize())
	if bsize == 0 {
		return nil, fmt.Errorf("%w: object has zero data block size", ErrCorrupt)
	}

	out := make([]byte, 0, length)
	for length > 0 {
		blk, err := r.ReadBlock(ctx, off/bsize)
		if err != nil {
			return out, err
		}
		skip := off % bsize
		if skip >= uint64(len(blk)) {
			return out, fmt.Errorf("%w: block shorter than its block size", ErrCorrupt)
		}
		n := uint64(len(blk)) - skip
		if n > length {
			n = length
		}
		out = append(out, blk[skip:skip+n]...)
		off += n
		length -= n
	}
	return out, nil
}

// ReadBlkptr resolves one already-parsed block pointer to its
// decompressed contents.
func (r *DataReader) ReadBlkptr(ctx context.Context, bp *blockpointer.Reader) ([]byte, error) {
	return r.readPhysical(ctx, bp)
}

func (r *DataReader) readPhysical(ctx context.Context, bp *blockpointer.Reader) ([]byte, error) {
	return ReadBlockPointer(ctx, r.raw, bp, r.verify)
}

// ReadBlockPointer resolves one block pointer to its decompressed
// contents, independent of any dnode. Dataset root pointers and the
// uberblock root are read this way.
func ReadBlockPointer(ctx context.Context, raw interfaces.RawBlockReader, bp *blockpointer.Reader, verify bool) ([]byte, error) {
	if bp.IsEmbedded() {
		return readEmbedded(bp)
	}
	if bp.IsGang() {
		return nil, fmt.Errorf("%w: gang block reads are not implemented", ErrUnsupported)
	}
	if bp.IsEncrypted() {
		return nil, fmt.Errorf("%w: block born in txg %d is encrypted",
			ErrKeyUnavailable, bp.BirthTxg())
	}

	var lastErr error
	for _, dva := range bp.Dvas() {
		if dva.IsGang {
			continue
		}
		data, err := raw.ReadBlock(ctx, dva.Vdev,
			dva.Offset+types.VdevLabelStartSize, bp.PhysicalSize())
		if err != nil {
			lastErr = err
			continue
		}
		if verify && bp.Checksum() == types.ChecksumFletcher4 {
			if !fletcher4Matches(data, bp.Blkptr().BlkCksum) {
				lastErr = fmt.Errorf("%w: fletcher4 mismatch on vdev %d offset %d",
					ErrCorrupt, dva.Vdev, dva.Offset)
				continue
			}
		}
		return decompress(data, bp.Compression(), bp.LogicalSize())
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: block pointer has no readable copies", ErrCorrupt)
}

func readEmbedded(bp *blockpointer.Reader) ([]byte, error) {
	if bp.EmbeddedType() != 0 {
		return nil, fmt.Errorf("%w: embedded payload type %d", ErrUnsupported, bp.EmbeddedType())
	}
	payload, err := bp.EmbeddedPayload()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return decompress(payload, bp.Compression(), bp.LogicalSize())
}

// decompress undoes the block's on-disk compression. lz4 and zstd
// payloads carry a big-endian length word before the compressed data.
func decompress(data []byte, comp types.CompressType, lsize uint64) ([]byte, error) {
	switch comp {
	case types.CompressOff, types.CompressInherit:
		if uint64(len(data)) < lsize {
			return nil, fmt.Errorf("%w: uncompressed block is %d bytes, expected %d",
				ErrCorrupt, len(data), lsize)
		}
		return data[:lsize], nil

	case types.CompressEmpty:
		return make([]byte, lsize), nil

	case types.CompressLz4:
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: lz4 block missing length header", ErrCorrupt)
		}
		clen := binary.BigEndian.Uint32(data[0:4])
		if uint64(clen) > uint64(len(data)-4) {
			return nil, fmt.Errorf("%w: lz4 length %d exceeds block size %d",
				ErrCorrupt, clen, len(data)-4)
		}
		out := make([]byte, lsize)
		n, err := lz4.UncompressBlock(data[4:4+clen], out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4 decompression failed: %v", ErrCorrupt, err)
		}
		return out[:n], nil

	case types.CompressZstd:
		// Header: 4-byte big-endian compressed length, then a 4-byte
		// version/level word, then the zstd frame.
		if len(data) < 8 {
			return nil, fmt.Errorf("%w: zstd block missing header", ErrCorrupt)
		}
		clen := binary.BigEndian.Uint32(data[0:4])
		if uint64(clen) > uint64(len(data)-8) {
			return nil, fmt.Errorf("%w: zstd length %d exceeds block size %d",
				ErrCorrupt, clen, len(data)-8)
		}
		out, err := zstdDecoder.DecodeAll(data[8:8+clen], make([]byte, 0, lsize))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd decompression failed: %v", ErrCorrupt, err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %s decompression is not implemented", ErrUnsupported, comp)
	}
}
