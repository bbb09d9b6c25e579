package types

// ZAP (ZFS Attribute Processor) on-disk layouts. A ZAP object is either a
// microzap, a single block of fixed 64-byte entries, or a fatzap, a header
// block with a pointer table fanning out to hash-bucketed leaf blocks.

const (
	ZbtMicro  = uint64(1)<<63 + 3
	ZbtHeader = uint64(1)<<63 + 1
	ZbtLeaf   = uint64(1) << 63

	ZapMagic     = 0x2F52AB2AB
	ZapLeafMagic = 0x2AB1EAF

	MzapEntSize = 64
	MzapNameLen = 50
	MzapHdrSize = 64

	ZapLeafHdrSize   = 48
	ZapLeafChunkSize = 24
	ZapLeafArrayLen  = 21
	ZapChainEnd      = 0xffff

	ZapChunkEntry = 252
	ZapChunkArray = 251
	ZapChunkFree  = 253
)

// ZapKind distinguishes the two ZAP formats.
type ZapKind uint8

const (
	ZapKindMicro ZapKind = iota
	ZapKindFat
)

func (k ZapKind) String() string {
	if k == ZapKindMicro {
		return "microzap"
	}
	return "fatzap"
}

// MzapEntPhysT is one 64-byte microzap entry.
type MzapEntPhysT struct {
	MzeValue uint64
	MzeCd    uint32
	MzeName  [MzapNameLen]byte
}

// MzapPhysT is the microzap block header. Entries follow in the rest of
// the block, one per 64 bytes.
type MzapPhysT struct {
	MzBlockType uint64
	MzSalt      uint64
	MzNormflags uint64
}

// ZapTablePhysT describes the fatzap pointer table.
type ZapTablePhysT struct {
	// First block of the external pointer table, zero while the table is
	// still embedded in the header block.
	ZtBlk        uint64
	ZtNumblks    uint64
	ZtShift      uint64
	ZtNextblk    uint64
	ZtBlksCopied uint64
}

// ZapPhysT is the fatzap header occupying logical block zero.
type ZapPhysT struct {
	ZapBlockType  uint64
	ZapMagic      uint64
	ZapPtrtbl     ZapTablePhysT
	ZapFreeblk    uint64
	ZapNumLeafs   uint64
	ZapNumEntries uint64
	ZapSalt       uint64
	ZapNormflags  uint64
	ZapFlags      uint64
}

// ZapLeafHeaderT heads each fatzap leaf block. A hash table of chunk ids
// follows, then the chunk array.
type ZapLeafHeaderT struct {
	LhBlockType uint64
	LhPad1      uint64
	LhPrefix    uint64
	LhMagic     uint32
	LhNfree     uint16
	LhNentries  uint16
	LhPrefixLen uint16
	LhFreelist  uint16
	LhFlags     uint8
}

// ZapLeafEntryT is a name/value entry chunk within a leaf.
type ZapLeafEntryT struct {
	LeType         uint8
	LeValueIntlen  uint8
	LeNext         uint16
	LeNameChunk    uint16
	LeNameNumints  uint16
	LeValueChunk   uint16
	LeValueNumints uint16
	LeCd           uint16
	LeHash         uint64
}

// ZapLeafArrayT carries 21 bytes of name or value data and chains to the
// next chunk.
type ZapLeafArrayT struct {
	LaArray [ZapLeafArrayLen]byte
	LaNext  uint16
}

// ZapLeafHashEntries returns the number of uint16 hash table slots in a
// leaf of the given block shift.
func ZapLeafHashEntries(blockShift int) int {
	return 1 << (blockShift - 5)
}

// ZapLeafChunkCount returns the number of 24-byte chunks in a leaf of the
// given block shift.
func ZapLeafChunkCount(blockShift int) int {
	return ((1 << blockShift) - 2*ZapLeafHashEntries(blockShift))/ZapLeafChunkSize - 2
}
