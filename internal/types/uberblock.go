package types

// Uberblock and objset layouts. Each vdev label carries a ring of
// uberblocks; the active one with the highest txg points at the meta
// object set through its root block pointer.

const (
	UberblockMagic = 0x00bab10c

	// Offset of the uberblock ring within a vdev label and the size of
	// one ring slot.
	VdevUberblockRingOffset = 128 << 10
	VdevUberblockRingSize   = 128 << 10
	UberblockSlotSize       = 1 << 10

	// Byte offsets of the four labels for a vdev of size s:
	// 0, VdevLabelSize, s-2*VdevLabelSize, s-VdevLabelSize.
	VdevLabelCount = 4

	// objset_phys_t geometry: the metadnode occupies the first dnode
	// slot, the ZIL header follows, then the objset type word.
	ObjsetPhysSizeV1   = 1 << 10
	ObjsetTypeOffset   = DnodeSize + 192
	ObjsetMetaDnodeOff = 0
)

// Objset types (dmu_objset_type_t).
const (
	ObjsetTypeNone uint64 = iota
	ObjsetTypeMeta
	ObjsetTypeZfs
	ObjsetTypeZvol
	ObjsetTypeOther
	ObjsetTypeAny
	ObjsetTypeNumtypes
)

var objsetTypeNames = [ObjsetTypeNumtypes]string{
	"none", "meta", "zfs", "zvol", "other", "any",
}

// ObjsetTypeName returns the display name for an objset type.
func ObjsetTypeName(t uint64) string {
	if t < ObjsetTypeNumtypes {
		return objsetTypeNames[t]
	}
	return unknownName(t)
}

// UberblockT holds the fields of uberblock_t the browser consumes.
type UberblockT struct {
	UbMagic     uint64
	UbVersion   uint64
	UbTxg       uint64
	UbGuidSum   uint64
	UbTimestamp uint64
	UbRootbp    BlkptrPhysT
}
