package types

// DMU object types (dmu_object_type_t).
// Every object in the meta object set carries one of these values in its
// dnode header; the value determines both the content format and how the
// contents byteswap on a foreign-endian pool.

type DmuObjectType uint8

const (
	DmuOtNone DmuObjectType = iota
	DmuOtObjectDirectory
	DmuOtObjectArray
	DmuOtPackedNvlist
	DmuOtPackedNvlistSize
	DmuOtBpobj
	DmuOtBpobjHdr
	DmuOtSpaceMapHeader
	DmuOtSpaceMap
	DmuOtIntentLog
	DmuOtDnode
	DmuOtObjset
	DmuOtDslDir
	DmuOtDslDirChildMap
	DmuOtDslDsSnapMap
	DmuOtDslProps
	DmuOtDslDataset
	DmuOtZnode
	DmuOtOldAcl
	DmuOtPlainFileContents
	DmuOtDirectoryContents
	DmuOtMasterNode
	DmuOtUnlinkedSet
	DmuOtZvol
	DmuOtZvolProp
	DmuOtPlainOther
	DmuOtUint64Other
	DmuOtZapOther
	DmuOtErrorLog
	DmuOtSpaHistory
	DmuOtSpaHistoryOffsets
	DmuOtPoolProps
	DmuOtDslPerms
	DmuOtAcl
	DmuOtSysacl
	DmuOtFuid
	DmuOtFuidSize
	DmuOtNextClones
	DmuOtScanQueue
	DmuOtUsergroupUsed
	DmuOtUsergroupQuota
	DmuOtUserrefs
	DmuOtDdtZap
	DmuOtDdtStats
	DmuOtSa
	DmuOtSaMasterNode
	DmuOtSaAttrRegistration
	DmuOtSaAttrLayouts
	DmuOtScanXlate
	DmuOtDedup
	DmuOtDeadlist
	DmuOtDeadlistHdr
	DmuOtDslClones
	DmuOtBpobjSubobj
	DmuOtNumtypes
)

// New-style object types encode their byteswap class directly instead of
// indexing the legacy table above.
const (
	DmuOtNewType      = 0x80
	DmuOtMetadata     = 0x40
	DmuOtEncrypted    = 0x20
	DmuOtByteswapMask = 0x1f
)

// DmuByteswapClass identifies how an object's contents byteswap.
type DmuByteswapClass uint8

const (
	DmuBswapUint8 DmuByteswapClass = iota
	DmuBswapUint16
	DmuBswapUint32
	DmuBswapUint64
	DmuBswapZap
	DmuBswapDnode
	DmuBswapObjset
	DmuBswapZnode
	DmuBswapOldAcl
	DmuBswapAcl
	DmuBswapNumfuncs
)

// dmuTypeInfo describes one legacy DMU object type.
type dmuTypeInfo struct {
	name     string
	byteswap DmuByteswapClass
	metadata bool
}

var dmuTypeTable = [DmuOtNumtypes]dmuTypeInfo{
	DmuOtNone:               {"unallocated", DmuBswapUint8, false},
	DmuOtObjectDirectory:    {"object directory", DmuBswapZap, true},
	DmuOtObjectArray:        {"object array", DmuBswapUint64, true},
	DmuOtPackedNvlist:       {"packed nvlist", DmuBswapUint8, true},
	DmuOtPackedNvlistSize:   {"packed nvlist size", DmuBswapUint64, true},
	DmuOtBpobj:              {"bpobj", DmuBswapUint64, true},
	DmuOtBpobjHdr:           {"bpobj header", DmuBswapUint64, true},
	DmuOtSpaceMapHeader:     {"SPA space map header", DmuBswapUint64, true},
	DmuOtSpaceMap:           {"SPA space map", DmuBswapUint64, true},
	DmuOtIntentLog:          {"ZIL intent log", DmuBswapUint64, true},
	DmuOtDnode:              {"DMU dnode", DmuBswapDnode, true},
	DmuOtObjset:             {"DMU objset", DmuBswapObjset, true},
	DmuOtDslDir:             {"DSL directory", DmuBswapUint64, true},
	DmuOtDslDirChildMap:     {"DSL directory child map", DmuBswapZap, true},
	DmuOtDslDsSnapMap:       {"DSL dataset snap map", DmuBswapZap, true},
	DmuOtDslProps:           {"DSL props", DmuBswapZap, true},
	DmuOtDslDataset:         {"DSL dataset", DmuBswapUint64, true},
	DmuOtZnode:              {"ZFS znode", DmuBswapZnode, true},
	DmuOtOldAcl:             {"ZFS V0 ACL", DmuBswapOldAcl, true},
	DmuOtPlainFileContents:  {"ZFS plain file", DmuBswapUint8, false},
	DmuOtDirectoryContents:  {"ZFS directory", DmuBswapZap, true},
	DmuOtMasterNode:         {"ZFS master node", DmuBswapZap, true},
	DmuOtUnlinkedSet:        {"ZFS delete queue", DmuBswapZap, true},
	DmuOtZvol:               {"zvol object", DmuBswapUint8, false},
	DmuOtZvolProp:           {"zvol prop", DmuBswapZap, true},
	DmuOtPlainOther:         {"other uint8[]", DmuBswapUint8, false},
	DmuOtUint64Other:        {"other uint64[]", DmuBswapUint64, true},
	DmuOtZapOther:           {"other ZAP", DmuBswapZap, true},
	DmuOtErrorLog:           {"persistent error log", DmuBswapZap, true},
	DmuOtSpaHistory:         {"SPA history", DmuBswapUint8, true},
	DmuOtSpaHistoryOffsets:  {"SPA history offsets", DmuBswapUint64, true},
	DmuOtPoolProps:          {"Pool properties", DmuBswapZap, true},
	DmuOtDslPerms:           {"DSL permissions", DmuBswapZap, true},
	DmuOtAcl:                {"ZFS ACL", DmuBswapAcl, true},
	DmuOtSysacl:             {"ZFS SYSACL", DmuBswapAcl, true},
	DmuOtFuid:               {"FUID table", DmuBswapUint8, true},
	DmuOtFuidSize:           {"FUID table size", DmuBswapUint64, true},
	DmuOtNextClones:         {"DSL dataset next clones", DmuBswapZap, true},
	DmuOtScanQueue:          {"scan work queue", DmuBswapZap, true},
	DmuOtUsergroupUsed:      {"ZFS user/group/project used", DmuBswapZap, true},
	DmuOtUsergroupQuota:     {"ZFS user/group/project quota", DmuBswapZap, true},
	DmuOtUserrefs:           {"snapshot refcount tags", DmuBswapZap, true},
	DmuOtDdtZap:             {"DDT ZAP algorithm", DmuBswapZap, true},
	DmuOtDdtStats:           {"DDT statistics", DmuBswapZap, true},
	DmuOtSa:                 {"System attributes", DmuBswapUint8, false},
	DmuOtSaMasterNode:       {"SA master node", DmuBswapZap, true},
	DmuOtSaAttrRegistration: {"SA attr registration", DmuBswapZap, true},
	DmuOtSaAttrLayouts:      {"SA attr layouts", DmuBswapZap, true},
	DmuOtScanXlate:          {"scan translations", DmuBswapZap, true},
	DmuOtDedup:              {"deduplicated block", DmuBswapUint8, false},
	DmuOtDeadlist:           {"DSL deadlist map", DmuBswapZap, true},
	DmuOtDeadlistHdr:        {"DSL deadlist map hdr", DmuBswapUint64, true},
	DmuOtDslClones:          {"DSL dir clones", DmuBswapZap, true},
	DmuOtBpobjSubobj:        {"bpobj subobj", DmuBswapUint64, true},
}

var byteswapClassNames = [DmuBswapNumfuncs]string{
	"uint8", "uint16", "uint32", "uint64", "zap",
	"dnode", "objset", "znode", "oldacl", "acl",
}

// IsValid reports whether the type is either a known legacy type or a
// well-formed new-style type.
func (t DmuObjectType) IsValid() bool {
	if t&DmuOtNewType != 0 {
		return DmuByteswapClass(t&DmuOtByteswapMask) < DmuBswapNumfuncs
	}
	return t < DmuOtNumtypes
}

// Byteswap returns the byteswap class governing the object's contents.
func (t DmuObjectType) Byteswap() DmuByteswapClass {
	if t&DmuOtNewType != 0 {
		return DmuByteswapClass(t & DmuOtByteswapMask)
	}
	if t < DmuOtNumtypes {
		return dmuTypeTable[t].byteswap
	}
	return DmuBswapUint8
}

// IsZap reports whether the object's contents are a ZAP.
func (t DmuObjectType) IsZap() bool {
	return t.IsValid() && t.Byteswap() == DmuBswapZap
}

// IsMetadata reports whether the object holds pool metadata rather than
// user data.
func (t DmuObjectType) IsMetadata() bool {
	if t&DmuOtNewType != 0 {
		return t&DmuOtMetadata != 0
	}
	return t < DmuOtNumtypes && dmuTypeTable[t].metadata
}

// String returns the display name for the type. Unknown values are kept
// numerically rather than dropped.
func (t DmuObjectType) String() string {
	if t&DmuOtNewType != 0 {
		bswap := DmuByteswapClass(t & DmuOtByteswapMask)
		if bswap < DmuBswapNumfuncs {
			return "bswap " + byteswapClassNames[bswap]
		}
		return unknownName(uint64(t))
	}
	if t < DmuOtNumtypes {
		return dmuTypeTable[t].name
	}
	return unknownName(uint64(t))
}

// DmuTypeCount returns the number of legacy DMU object types.
func DmuTypeCount() int {
	return int(DmuOtNumtypes)
}
