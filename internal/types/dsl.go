package types

// DSL (Dataset and Snapshot Layer) bonus buffer layouts. A DSL directory
// object's bonus holds dsl_dir_phys_t; a DSL dataset object's bonus holds
// dsl_dataset_phys_t.

const (
	DslDirPhysSize     = 256
	DslDatasetPhysSize = 320

	DslDirUsedBreakdownLen = 5
)

// DslDirPhysT describes a filesystem node in the dataset tree.
type DslDirPhysT struct {
	DdCreationTime   uint64
	DdHeadDatasetObj uint64
	DdParentObj      uint64
	DdOriginObj      uint64
	DdChildDirZapobj uint64

	DdUsedBytes         uint64
	DdCompressedBytes   uint64
	DdUncompressedBytes uint64

	DdQuota    uint64
	DdReserved uint64

	DdPropsZapobj uint64
	DdDelegZapobj uint64
	DdFlags       uint64

	DdUsedBreakdown [DslDirUsedBreakdownLen]uint64
	DdClones        uint64
}

// DslDatasetPhysT describes one dataset: a head filesystem, a snapshot or
// a clone origin.
type DslDatasetPhysT struct {
	DsDirObj          uint64
	DsPrevSnapObj     uint64
	DsPrevSnapTxg     uint64
	DsNextSnapObj     uint64
	DsSnapnamesZapobj uint64
	DsNumChildren     uint64
	DsCreationTime    uint64
	DsCreationTxg     uint64
	DsDeadlistObj     uint64

	DsReferencedBytes   uint64
	DsCompressedBytes   uint64
	DsUncompressedBytes uint64
	DsUniqueBytes       uint64

	DsFsidGuid uint64
	DsGuid     uint64
	DsFlags    uint64

	// Root block pointer of the dataset's object set.
	DsBp BlkptrPhysT

	DsNextClonesObj uint64
	DsPropsObj      uint64
	DsUserrefsObj   uint64
}
