package types

// Dnode layout constants (dnode_phys_t).
// A dnode occupies one or more 512-byte slots. The 64-byte core header is
// followed by 1 to 3 block pointers, the bonus buffer, and optionally a
// spill block pointer in the final 128 bytes of the slot.
const (
	DnodeShift    = 9
	DnodeSize     = 1 << DnodeShift
	DnodeCoreSize = 64

	SpaMinBlockShift = 9
	SpaBlkptrSize    = 128

	DnMaxNblkptr = 3
)

// Dnode flag bits (dn_flags).
const (
	DnodeFlagUsedBytes         = 1 << 0
	DnodeFlagUserusedAccounted = 1 << 1
	DnodeFlagSpillBlkptr       = 1 << 2
)

// DnodePhysT is the on-disk dnode header.
type DnodePhysT struct {
	// The DMU object type of the object's contents.
	DnType DmuObjectType

	// Log2 of the indirect block size in bytes.
	DnIndblkshift uint8

	// Number of levels in the indirection tree. 1 means the block
	// pointers address data directly.
	DnNlevels uint8

	// Number of block pointers in the header, 1 to 3.
	DnNblkptr uint8

	// The DMU object type of the bonus buffer.
	DnBonustype DmuObjectType

	// Checksum and compression algorithms applied to the object's data.
	DnChecksum ChecksumType
	DnCompress CompressType

	DnFlags uint8

	// Data block size in 512-byte sectors.
	DnDatablkszsec uint16

	// Length in bytes of the bonus buffer.
	DnBonuslen uint16

	// Number of additional 512-byte slots this dnode occupies.
	DnExtraSlots uint8

	// Highest allocated logical block id.
	DnMaxblkid uint64

	// Space consumed, in bytes when DnodeFlagUsedBytes is set, otherwise
	// in 512-byte sectors.
	DnUsed uint64
}

// SlotSize returns the total on-disk size of the dnode in bytes.
func (d *DnodePhysT) SlotSize() int {
	return DnodeSize * (int(d.DnExtraSlots) + 1)
}

// HasSpill reports whether the slot's final 128 bytes hold a spill
// block pointer instead of bonus space.
func (d *DnodePhysT) HasSpill() bool {
	return d.DnFlags&DnodeFlagSpillBlkptr != 0
}

// UsedBytes returns the space consumed by the object in bytes.
func (d *DnodePhysT) UsedBytes() uint64 {
	if d.DnFlags&DnodeFlagUsedBytes != 0 {
		return d.DnUsed
	}
	return d.DnUsed << SpaMinBlockShift
}

// DataBlockSize returns the object's data block size in bytes.
func (d *DnodePhysT) DataBlockSize() uint32 {
	return uint32(d.DnDatablkszsec) << SpaMinBlockShift
}

// BonusCapacity returns the maximum bonus length the slot can hold given
// its block pointer count and spill flag.
func (d *DnodePhysT) BonusCapacity() int {
	c := d.SlotSize() - DnodeCoreSize - int(d.DnNblkptr)*SpaBlkptrSize
	if d.HasSpill() {
		c -= SpaBlkptrSize
	}
	return c
}
