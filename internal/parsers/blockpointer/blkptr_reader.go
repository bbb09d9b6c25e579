package blockpointer

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-zdb/internal/types"
)

// Reader provides parsing capabilities for blkptr_t structures.
// A block pointer addresses up to three on-disk copies of one logical
// block, or carries the block inline when the embedded bit is set.
type Reader struct {
	bp     *types.BlkptrPhysT
	data   []byte
	endian binary.ByteOrder
}

// DvaInfo is one decoded data virtual address.
type DvaInfo struct {
	Vdev   uint64 `json:"vdev"`
	Offset uint64 `json:"offset"`
	Asize  uint64 `json:"asize"`
	IsGang bool   `json:"is_gang"`
}

// NewReader creates a new block pointer reader over one 128-byte slot.
func NewReader(data []byte, endian binary.ByteOrder) (*Reader, error) {
	if len(data) < types.SpaBlkptrSize {
		return nil, fmt.Errorf("data too small for block pointer: %d bytes, need %d",
			len(data), types.SpaBlkptrSize)
	}

	bp := &types.BlkptrPhysT{}
	offset := 0

	// Three 16-byte DVAs. In the embedded variant these words carry
	// payload instead but decode harmlessly.
	for i := 0; i < 3; i++ {
		bp.BlkDva[i].DvaWord[0] = endian.Uint64(data[offset : offset+8])
		bp.BlkDva[i].DvaWord[1] = endian.Uint64(data[offset+8 : offset+16])
		offset += 16
	}

	bp.BlkProp = endian.Uint64(data[offset : offset+8])
	offset += 8
	bp.BlkPad[0] = endian.Uint64(data[offset : offset+8])
	offset += 8
	bp.BlkPad[1] = endian.Uint64(data[offset : offset+8])
	offset += 8
	bp.BlkPhysBirth = endian.Uint64(data[offset : offset+8])
	offset += 8
	bp.BlkBirth = endian.Uint64(data[offset : offset+8])
	offset += 8
	bp.BlkFill = endian.Uint64(data[offset : offset+8])
	offset += 8
	for i := 0; i < 4; i++ {
		bp.BlkCksum[i] = endian.Uint64(data[offset : offset+8])
		offset += 8
	}

	r := &Reader{
		bp:     bp,
		data:   data[:types.SpaBlkptrSize],
		endian: endian,
	}

	if !r.IsHole() {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// validate rejects structurally impossible slots. Unknown object types
// are tolerated and reported numerically.
func (r *Reader) validate() error {
	if !r.bp.IsEmbedded() {
		if r.bp.Compression() >= types.CompressFunctions {
			return fmt.Errorf("invalid block pointer compression: %d", r.bp.Compression())
		}
		if r.bp.LogicalSize() < r.bp.PhysicalSize() {
			return fmt.Errorf("block pointer physical size %d exceeds logical size %d",
				r.bp.PhysicalSize(), r.bp.LogicalSize())
		}
	}
	return nil
}

// Blkptr returns the underlying blkptr_t structure.
func (r *Reader) Blkptr() *types.BlkptrPhysT {
	return r.bp
}

func (r *Reader) IsHole() bool     { return r.bp.IsHole() }
func (r *Reader) IsEmbedded() bool { return r.bp.IsEmbedded() }
func (r *Reader) IsGang() bool     { return r.bp.IsGang() }

func (r *Reader) Level() uint8              { return r.bp.Level() }
func (r *Reader) Type() types.DmuObjectType { return r.bp.Type() }
func (r *Reader) TypeName() string          { return r.bp.Type().String() }

func (r *Reader) LogicalSize() uint64   { return r.bp.LogicalSize() }
func (r *Reader) PhysicalSize() uint64  { return r.bp.PhysicalSize() }
func (r *Reader) AllocatedSize() uint64 { return r.bp.AllocatedSize() }

func (r *Reader) Checksum() types.ChecksumType    { return r.bp.Checksum() }
func (r *Reader) EmbeddedType() uint8             { return r.bp.EmbeddedType() }
func (r *Reader) Compression() types.CompressType { return r.bp.Compression() }
func (r *Reader) Dedup() bool                     { return r.bp.Dedup() }
func (r *Reader) IsEncrypted() bool               { return r.bp.IsEncrypted() }

func (r *Reader) Fill() uint64          { return r.bp.BlkFill }
func (r *Reader) BirthTxg() uint64      { return r.bp.BirthTxg() }
func (r *Reader) PhysicalBirth() uint64 { return r.bp.PhysicalBirth() }

// Dvas returns the decoded non-empty DVAs in slot order. Offsets are
// byte offsets within the vdev's allocatable space.
func (r *Reader) Dvas() []DvaInfo {
	if r.bp.IsEmbedded() || r.bp.IsHole() {
		return nil
	}
	dvas := make([]DvaInfo, 0, 3)
	for i := range r.bp.BlkDva {
		d := &r.bp.BlkDva[i]
		if d.IsEmpty() {
			continue
		}
		dvas = append(dvas, DvaInfo{
			Vdev:   d.Vdev(),
			Offset: d.Offset(),
			Asize:  d.Asize(),
			IsGang: d.IsGang(),
		})
	}
	return dvas
}

// EmbeddedPayload extracts the inline data of an embedded block pointer.
// The payload is spread across every word of the pointer except the
// property and birth words.
func (r *Reader) EmbeddedPayload() ([]byte, error) {
	if !r.bp.IsEmbedded() {
		return nil, fmt.Errorf("block pointer is not embedded")
	}
	psize := int(r.bp.PhysicalSize())
	if psize > types.BpEmbeddedPayloadSize {
		return nil, fmt.Errorf("embedded payload size %d exceeds maximum %d",
			psize, types.BpEmbeddedPayloadSize)
	}

	// Words 0-5, 7-9 and 11-15; word 6 is the property word and word 10
	// the birth txg.
	payload := make([]byte, 0, types.BpEmbeddedPayloadSize)
	payload = append(payload, r.data[0:48]...)
	payload = append(payload, r.data[56:80]...)
	payload = append(payload, r.data[88:128]...)
	return payload[:psize], nil
}
