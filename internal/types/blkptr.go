package types

// Block pointer layout (blkptr_t), 128 bytes. Up to three data virtual
// addresses, a packed property word, birth transaction groups, fill count
// and the block checksum.

const (
	// Byte offset added to a DVA offset to reach the physical location on
	// the vdev. Skips the two front labels and the boot block.
	VdevLabelStartSize = 4 << 20

	// Size of one vdev label. Two labels sit at the front of a vdev and
	// two at the end.
	VdevLabelSize = 256 << 10

	// Maximum inline payload of an embedded block pointer: every byte of
	// the pointer except the property and birth words.
	BpEmbeddedPayloadSize = SpaBlkptrSize - 16
)

// DvaT is one data virtual address: vdev id, byte offset and allocated
// size packed into two words.
type DvaT struct {
	DvaWord [2]uint64
}

// IsEmpty reports whether the DVA addresses nothing.
func (d *DvaT) IsEmpty() bool {
	return d.DvaWord[0] == 0 && d.DvaWord[1] == 0
}

// Vdev returns the top-level vdev id.
func (d *DvaT) Vdev() uint64 {
	return d.DvaWord[0] >> 32
}

// Asize returns the allocated size in bytes, including any gang header
// and replication overhead.
func (d *DvaT) Asize() uint64 {
	return (d.DvaWord[0] & 0xffffff) << SpaMinBlockShift
}

// Offset returns the byte offset within the vdev's allocatable space.
// Add VdevLabelStartSize for the physical byte offset on the device.
func (d *DvaT) Offset() uint64 {
	return (d.DvaWord[1] &^ (uint64(1) << 63)) << SpaMinBlockShift
}

// IsGang reports whether the DVA addresses a gang block header.
func (d *DvaT) IsGang() bool {
	return d.DvaWord[1]>>63 != 0
}

// BlkptrPhysT is the on-disk block pointer.
type BlkptrPhysT struct {
	BlkDva       [3]DvaT
	BlkProp      uint64
	BlkPad       [2]uint64
	BlkPhysBirth uint64
	BlkBirth     uint64
	BlkFill      uint64
	BlkCksum     [4]uint64
}

// Property word field accessors. The embedded variant reinterprets the
// low 40 bits, see the Embedded* accessors.

func (b *BlkptrPhysT) IsEmbedded() bool {
	return b.BlkProp&(1<<39) != 0
}

func (b *BlkptrPhysT) IsHole() bool {
	return !b.IsEmbedded() && b.BlkDva[0].IsEmpty()
}

func (b *BlkptrPhysT) IsGang() bool {
	if b.IsEmbedded() {
		return false
	}
	for i := range b.BlkDva {
		if !b.BlkDva[i].IsEmpty() && b.BlkDva[i].IsGang() {
			return true
		}
	}
	return false
}

// LogicalSize returns the block's logical size in bytes.
func (b *BlkptrPhysT) LogicalSize() uint64 {
	if b.IsEmbedded() {
		return (b.BlkProp & 0x1ffffff) + 1
	}
	return ((b.BlkProp & 0xffff) + 1) << SpaMinBlockShift
}

// PhysicalSize returns the compressed size in bytes. For embedded
// pointers this is the inline payload length.
func (b *BlkptrPhysT) PhysicalSize() uint64 {
	if b.IsEmbedded() {
		return ((b.BlkProp >> 25) & 0x7f) + 1
	}
	return (((b.BlkProp >> 16) & 0xffff) + 1) << SpaMinBlockShift
}

// AllocatedSize returns the total allocated size across all DVAs.
func (b *BlkptrPhysT) AllocatedSize() uint64 {
	if b.IsEmbedded() {
		return 0
	}
	var asize uint64
	for i := range b.BlkDva {
		asize += b.BlkDva[i].Asize()
	}
	return asize
}

func (b *BlkptrPhysT) Compression() CompressType {
	return CompressType((b.BlkProp >> 32) & 0x7f)
}

// Checksum is meaningless on embedded pointers.
func (b *BlkptrPhysT) Checksum() ChecksumType {
	return ChecksumType((b.BlkProp >> 40) & 0xff)
}

func (b *BlkptrPhysT) Type() DmuObjectType {
	return DmuObjectType((b.BlkProp >> 48) & 0xff)
}

// EmbeddedType returns the embedded payload kind (bp_embedded_type_t).
func (b *BlkptrPhysT) EmbeddedType() uint8 {
	return uint8((b.BlkProp >> 40) & 0xff)
}

func (b *BlkptrPhysT) Level() uint8 {
	return uint8((b.BlkProp >> 56) & 0x1f)
}

func (b *BlkptrPhysT) IsEncrypted() bool {
	return b.BlkProp&(1<<61) != 0 && !b.IsEmbedded()
}

func (b *BlkptrPhysT) Dedup() bool {
	return b.BlkProp&(1<<62) != 0
}

// BigEndian reports whether the block was written on a big-endian host.
// The byteorder bit is 1 for little-endian writers.
func (b *BlkptrPhysT) BigEndian() bool {
	return b.BlkProp>>63 == 0
}

// BirthTxg returns the logical birth transaction group.
func (b *BlkptrPhysT) BirthTxg() uint64 {
	return b.BlkBirth
}

// PhysicalBirth returns the txg the block was physically written in,
// which differs from the logical birth only after remapping. Zero means
// the logical birth applies.
func (b *BlkptrPhysT) PhysicalBirth() uint64 {
	if b.BlkPhysBirth != 0 {
		return b.BlkPhysBirth
	}
	return b.BlkBirth
}
