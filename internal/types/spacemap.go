package types

// Space map on-disk layout. A space map object's bonus buffer holds the
// header below; the object's data blocks hold a log of allocation and
// free records in one-word, two-word and debug entry encodings.

const (
	SpaceMapHistogramSize = 32

	// Size of the header before the pad and histogram were added.
	SpaceMapSizeV0 = 3 * 8

	SmPrefixTwoWord = 3

	SmAlloc = 0
	SmFree  = 1
)

// SpaceMapPhysT is the space map header kept in the bonus buffer.
type SpaceMapPhysT struct {
	// Object the log once lived in, retained across condenses.
	SmpObject uint64

	// Length in bytes of the entry log.
	SmpLength uint64

	// Net allocated space: allocations minus frees, in bytes.
	SmpAlloc int64

	SmpPad [5]uint64

	// Power-of-two histogram of free range sizes, bucket i counting
	// ranges of 2^(i+sm_shift) bytes.
	SmpHistogram [SpaceMapHistogramSize]uint64
}

// SpaceMapEntryT is one decoded log record.
type SpaceMapEntryT struct {
	// Debug entries annotate the log with the txg and sync pass that
	// wrote the records following them.
	Debug    bool
	Action   uint8
	SyncPass uint16
	Txg      uint64

	// Range entries. Offset and Run are in bytes, already scaled by the
	// map's shift and base offset.
	Alloc   bool
	TwoWord bool
	Vdev    uint64
	Offset  uint64
	Run     uint64
}
