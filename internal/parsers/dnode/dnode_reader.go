package dnode

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-zdb/internal/types"
)

// Reader provides parsing capabilities for dnode_phys_t structures.
// A dnode is one or more 512-byte slots: a 64-byte core header, one to
// three block pointers, the bonus buffer and optionally a trailing spill
// block pointer.
type Reader struct {
	dnode  *types.DnodePhysT
	data   []byte
	endian binary.ByteOrder
}

// NewReader creates a new dnode reader. data must start at the first
// slot of the dnode and contain the whole slot run.
func NewReader(data []byte, endian binary.ByteOrder) (*Reader, error) {
	if len(data) < types.DnodeSize {
		return nil, fmt.Errorf("data too small for dnode: %d bytes, need at least %d",
			len(data), types.DnodeSize)
	}

	dn, err := parseDnode(data, endian)
	if err != nil {
		return nil, err
	}

	slotSize := dn.SlotSize()
	if len(data) < slotSize {
		return nil, fmt.Errorf("data too small for %d-slot dnode: %d bytes, need %d",
			int(dn.DnExtraSlots)+1, len(data), slotSize)
	}

	r := &Reader{
		dnode:  dn,
		data:   data[:slotSize],
		endian: endian,
	}

	if dn.DnType != types.DmuOtNone {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// parseDnode parses the 64-byte dnode core header.
func parseDnode(data []byte, endian binary.ByteOrder) (*types.DnodePhysT, error) {
	dn := &types.DnodePhysT{}

	dn.DnType = types.DmuObjectType(data[0])
	dn.DnIndblkshift = data[1]
	dn.DnNlevels = data[2]
	dn.DnNblkptr = data[3]
	dn.DnBonustype = types.DmuObjectType(data[4])
	dn.DnChecksum = types.ChecksumType(data[5])
	dn.DnCompress = types.CompressType(data[6])
	dn.DnFlags = data[7]
	dn.DnDatablkszsec = endian.Uint16(data[8:10])
	dn.DnBonuslen = endian.Uint16(data[10:12])
	dn.DnExtraSlots = data[12]
	// 3 pad bytes
	dn.DnMaxblkid = endian.Uint64(data[16:24])
	dn.DnUsed = endian.Uint64(data[24:32])

	return dn, nil
}

// validate applies the structural constraints of an allocated dnode.
func (r *Reader) validate() error {
	dn := r.dnode
	if dn.DnNlevels == 0 {
		return fmt.Errorf("allocated dnode has zero indirection levels")
	}
	if dn.DnNblkptr == 0 || dn.DnNblkptr > types.DnMaxNblkptr {
		return fmt.Errorf("invalid dnode block pointer count: %d", dn.DnNblkptr)
	}
	if dn.DnNlevels > 1 && dn.DnIndblkshift < 7 {
		return fmt.Errorf("invalid dnode indirect block shift: %d", dn.DnIndblkshift)
	}
	if int(dn.DnBonuslen) > dn.BonusCapacity() {
		return fmt.Errorf("dnode bonus length %d exceeds capacity %d",
			dn.DnBonuslen, dn.BonusCapacity())
	}
	return nil
}

// Dnode returns the parsed dnode header.
func (r *Reader) Dnode() *types.DnodePhysT {
	return r.dnode
}

// IsAllocated reports whether the slot holds a live object.
func (r *Reader) IsAllocated() bool {
	return r.dnode.DnType != types.DmuOtNone
}

func (r *Reader) Type() types.DmuObjectType      { return r.dnode.DnType }
func (r *Reader) TypeName() string               { return r.dnode.DnType.String() }
func (r *Reader) BonusType() types.DmuObjectType { return r.dnode.DnBonustype }
func (r *Reader) BonusTypeName() string          { return r.dnode.DnBonustype.String() }

func (r *Reader) Levels() uint8         { return r.dnode.DnNlevels }
func (r *Reader) IndBlkShift() uint8    { return r.dnode.DnIndblkshift }
func (r *Reader) NumBlkptrs() uint8     { return r.dnode.DnNblkptr }
func (r *Reader) MaxBlockID() uint64    { return r.dnode.DnMaxblkid }
func (r *Reader) DataBlockSize() uint32 { return r.dnode.DataBlockSize() }
func (r *Reader) UsedBytes() uint64     { return r.dnode.UsedBytes() }
func (r *Reader) Flags() uint8          { return r.dnode.DnFlags }
func (r *Reader) HasSpill() bool        { return r.dnode.HasSpill() }

func (r *Reader) Checksum() types.ChecksumType    { return r.dnode.DnChecksum }
func (r *Reader) Compression() types.CompressType { return r.dnode.DnCompress }

// Bonus returns the bonus buffer, exactly dn_bonuslen bytes.
func (r *Reader) Bonus() []byte {
	if r.dnode.DnBonuslen == 0 {
		return nil
	}
	start := types.DnodeCoreSize + int(r.dnode.DnNblkptr)*types.SpaBlkptrSize
	return r.data[start : start+int(r.dnode.DnBonuslen)]
}

// BlkptrSlot returns the raw 128 bytes of block pointer i.
func (r *Reader) BlkptrSlot(i int) ([]byte, error) {
	if i < 0 || i >= int(r.dnode.DnNblkptr) {
		return nil, fmt.Errorf("block pointer index %d out of range 0..%d",
			i, int(r.dnode.DnNblkptr)-1)
	}
	start := types.DnodeCoreSize + i*types.SpaBlkptrSize
	return r.data[start : start+types.SpaBlkptrSize], nil
}

// SpillSlot returns the raw spill block pointer occupying the final 128
// bytes of the dnode.
func (r *Reader) SpillSlot() ([]byte, error) {
	if !r.dnode.HasSpill() {
		return nil, fmt.Errorf("dnode has no spill block pointer")
	}
	return r.data[len(r.data)-types.SpaBlkptrSize:], nil
}

// Endian returns the byte order the dnode was parsed with.
func (r *Reader) Endian() binary.ByteOrder {
	return r.endian
}
