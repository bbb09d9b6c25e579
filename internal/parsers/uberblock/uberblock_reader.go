// Package uberblock parses uberblock ring slots and objset_phys_t
// headers, the two structures a pool open walks through before any
// object is reachable.
package uberblock

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-zdb/internal/parsers/blockpointer"
	"github.com/deploymenttheory/go-zdb/internal/types"
)

// Reader provides parsing capabilities for uberblock_t ring slots.
type Reader struct {
	ub     *types.UberblockT
	bpSlot []byte
	endian binary.ByteOrder
}

// DetectEndian inspects a slot's magic number and returns the byte
// order it was written with. A slot that matches neither order is not
// an uberblock.
func DetectEndian(data []byte) (binary.ByteOrder, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("data too small for uberblock magic: %d bytes", len(data))
	}
	if binary.LittleEndian.Uint64(data[0:8]) == types.UberblockMagic {
		return binary.LittleEndian, nil
	}
	if binary.BigEndian.Uint64(data[0:8]) == types.UberblockMagic {
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("invalid uberblock magic: 0x%x", binary.LittleEndian.Uint64(data[0:8]))
}

// NewReader creates a new uberblock reader over one ring slot.
func NewReader(data []byte, endian binary.ByteOrder) (*Reader, error) {
	if len(data) < 40+types.SpaBlkptrSize {
		return nil, fmt.Errorf("data too small for uberblock: %d bytes, need at least %d",
			len(data), 40+types.SpaBlkptrSize)
	}

	ub := &types.UberblockT{
		UbMagic:     endian.Uint64(data[0:8]),
		UbVersion:   endian.Uint64(data[8:16]),
		UbTxg:       endian.Uint64(data[16:24]),
		UbGuidSum:   endian.Uint64(data[24:32]),
		UbTimestamp: endian.Uint64(data[32:40]),
	}
	if ub.UbMagic != types.UberblockMagic {
		return nil, fmt.Errorf("invalid uberblock magic: 0x%x", ub.UbMagic)
	}

	bpSlot := data[40 : 40+types.SpaBlkptrSize]
	bpr, err := blockpointer.NewReader(bpSlot, endian)
	if err != nil {
		return nil, fmt.Errorf("failed to parse uberblock root block pointer: %w", err)
	}
	ub.UbRootbp = *bpr.Blkptr()

	return &Reader{ub: ub, bpSlot: bpSlot, endian: endian}, nil
}

// Uberblock returns the parsed uberblock.
func (r *Reader) Uberblock() *types.UberblockT {
	return r.ub
}

func (r *Reader) Version() uint64   { return r.ub.UbVersion }
func (r *Reader) Txg() uint64       { return r.ub.UbTxg }
func (r *Reader) GuidSum() uint64   { return r.ub.UbGuidSum }
func (r *Reader) Timestamp() uint64 { return r.ub.UbTimestamp }

// RootBlkptrSlot returns the raw 128 bytes of the root block pointer.
func (r *Reader) RootBlkptrSlot() []byte {
	return r.bpSlot
}

// ObjsetReader provides parsing capabilities for objset_phys_t blocks.
type ObjsetReader struct {
	data   []byte
	endian binary.ByteOrder
}

// NewObjsetReader creates a new objset reader over an objset block.
func NewObjsetReader(data []byte, endian binary.ByteOrder) (*ObjsetReader, error) {
	if len(data) < types.ObjsetPhysSizeV1 {
		return nil, fmt.Errorf("data too small for objset: %d bytes, need at least %d",
			len(data), types.ObjsetPhysSizeV1)
	}
	return &ObjsetReader{data: data, endian: endian}, nil
}

// MetaDnode returns the raw dnode slot of the object set's metadnode.
func (or *ObjsetReader) MetaDnode() []byte {
	return or.data[types.ObjsetMetaDnodeOff : types.ObjsetMetaDnodeOff+types.DnodeSize]
}

// Type returns the objset type word.
func (or *ObjsetReader) Type() uint64 {
	return or.endian.Uint64(or.data[types.ObjsetTypeOffset : types.ObjsetTypeOffset+8])
}

// TypeName returns the display name of the objset type.
func (or *ObjsetReader) TypeName() string {
	return types.ObjsetTypeName(or.Type())
}
