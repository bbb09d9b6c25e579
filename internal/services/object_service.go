package services

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deploymenttheory/go-zdb/internal/interfaces"
	"github.com/deploymenttheory/go-zdb/internal/parsers/blockpointer"
	"github.com/deploymenttheory/go-zdb/internal/parsers/dnode"
	"github.com/deploymenttheory/go-zdb/internal/parsers/dsl"
	"github.com/deploymenttheory/go-zdb/internal/parsers/spacemap"
	"github.com/deploymenttheory/go-zdb/internal/types"
)

const (
	// Pagination bounds shared by every listing operation.
	DefaultListLimit = 200
	MaxListLimit     = 2000

	// Opaque bonus buffers are previewed, not dumped wholesale.
	maxBonusPreview = 320
)

// ObjectService decodes object headers, bonus buffers and block
// pointers out of an object set.
type ObjectService struct {
	source interfaces.ObjectSource
	raw    interfaces.RawBlockReader
	verify bool
	log    *slog.Logger
}

// NewObjectService creates a new object service over an object source.
func NewObjectService(source interfaces.ObjectSource, raw interfaces.RawBlockReader, verify bool, log *slog.Logger) *ObjectService {
	if log == nil {
		log = slog.Default()
	}
	return &ObjectService{
		source: source,
		raw:    raw,
		verify: verify,
		log:    log,
	}
}

// ObjectInfo is the decoded descriptor of one object.
type ObjectInfo struct {
	Object        uint64         `json:"object"`
	Type          uint8          `json:"type"`
	TypeName      string         `json:"type_name"`
	BonusType     uint8          `json:"bonus_type"`
	BonusTypeName string         `json:"bonus_type_name"`
	BonusLen      int            `json:"bonus_len"`
	Levels        uint8          `json:"levels"`
	NumBlkptrs    uint8          `json:"num_blkptrs"`
	IndBlkShift   uint8          `json:"indblkshift"`
	DataBlockSize uint32         `json:"data_block_size"`
	MaxBlockID    uint64         `json:"max_block_id"`
	UsedBytes     uint64         `json:"used_bytes"`
	Checksum      string         `json:"checksum"`
	Compression   string         `json:"compression"`
	Flags         uint8          `json:"flags"`
	HasSpill      bool           `json:"has_spill"`
	IsZap         bool           `json:"is_zap"`
	Bonus         *BonusInfo     `json:"bonus_decoded,omitempty"`
	Edges         []SemanticEdge `json:"semantic_edges,omitempty"`
}

// BonusInfo is the decoded bonus buffer, tagged by kind.
type BonusInfo struct {
	Kind       string              `json:"kind"`
	DslDir     *DslDirInfo         `json:"dsl_dir,omitempty"`
	DslDataset *DslDatasetInfo     `json:"dsl_dataset,omitempty"`
	SpaceMap   *SpaceMapHeaderInfo `json:"space_map_header,omitempty"`
	Raw        string              `json:"raw,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// DslDirInfo mirrors dsl_dir_phys_t.
type DslDirInfo struct {
	CreationTime      uint64 `json:"creation_time"`
	HeadDatasetObj    uint64 `json:"head_dataset_obj"`
	ParentObj         uint64 `json:"parent_obj"`
	OriginObj         uint64 `json:"origin_obj"`
	ChildDirZapobj    uint64 `json:"child_dir_zapobj"`
	UsedBytes         uint64 `json:"used_bytes"`
	CompressedBytes   uint64 `json:"compressed_bytes"`
	UncompressedBytes uint64 `json:"uncompressed_bytes"`
	Quota             uint64 `json:"quota"`
	Reserved          uint64 `json:"reserved"`
	PropsZapobj       uint64 `json:"props_zapobj"`
	DelegZapobj       uint64 `json:"deleg_zapobj"`
	Flags             uint64 `json:"flags"`
	ClonesObj         uint64 `json:"clones_obj"`
}

// DslDatasetInfo mirrors dsl_dataset_phys_t.
type DslDatasetInfo struct {
	DirObj            uint64      `json:"dir_obj"`
	PrevSnapObj       uint64      `json:"prev_snap_obj"`
	PrevSnapTxg       uint64      `json:"prev_snap_txg"`
	NextSnapObj       uint64      `json:"next_snap_obj"`
	SnapnamesZapobj   uint64      `json:"snapnames_zapobj"`
	NumChildren       uint64      `json:"num_children"`
	CreationTime      uint64      `json:"creation_time"`
	CreationTxg       uint64      `json:"creation_txg"`
	DeadlistObj       uint64      `json:"deadlist_obj"`
	ReferencedBytes   uint64      `json:"referenced_bytes"`
	CompressedBytes   uint64      `json:"compressed_bytes"`
	UncompressedBytes uint64      `json:"uncompressed_bytes"`
	UniqueBytes       uint64      `json:"unique_bytes"`
	FsidGuid          uint64      `json:"fsid_guid"`
	Guid              uint64      `json:"guid"`
	Flags             uint64      `json:"flags"`
	NextClonesObj     uint64      `json:"next_clones_obj"`
	PropsObj          uint64      `json:"props_obj"`
	UserrefsObj       uint64      `json:"userrefs_obj"`
	RootBp            *BlkptrInfo `json:"root_bp,omitempty"`
}

// SpaceMapHeaderInfo mirrors space_map_phys_t.
type SpaceMapHeaderInfo struct {
	Object     uint64 `json:"smp_object"`
	Length     uint64 `json:"smp_length"`
	AllocBytes int64  `json:"smp_alloc"`
}

// SemanticEdge is a labeled object reference recovered from decoded
// metadata.
type SemanticEdge struct {
	From  uint64 `json:"from"`
	To    uint64 `json:"to"`
	Label string `json:"label"`
}

// openDnode fetches and parses one object's dnode.
func (s *ObjectService) openDnode(ctx context.Context, id uint64) (*dnode.Reader, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: object 0 is never allocated", ErrNotFound)
	}
	maxID, err := s.source.MaxObjectID(ctx)
	if err != nil {
		return nil, err
	}
	if id > maxID {
		return nil, fmt.Errorf("%w: object %d beyond last object %d", ErrNotFound, id, maxID)
	}
	slot, err := s.source.ObjectSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	dn, err := dnode.NewReader(slot, s.source.Endian())
	if err != nil {
		return nil, fmt.Errorf("%w: object %d: %v", ErrCorrupt, id, err)
	}
	if !dn.IsAllocated() {
		return nil, fmt.Errorf("%w: object %d is not allocated", ErrNotFound, id)
	}
	return dn, nil
}

// GetObject decodes one object's full descriptor, bonus buffer and
// semantic edges.
func (s *ObjectService) GetObject(ctx context.Context, id uint64) (*ObjectInfo, error) {
	dn, err := s.openDnode(ctx, id)
	if err != nil {
		return nil, err
	}

	info := &ObjectInfo{
		Object:        id,
		Type:          uint8(dn.Type()),
		TypeName:      dn.TypeName(),
		BonusType:     uint8(dn.BonusType()),
		BonusTypeName: dn.BonusTypeName(),
		BonusLen:      len(dn.Bonus()),
		Levels:        dn.Levels(),
		NumBlkptrs:    dn.NumBlkptrs(),
		IndBlkShift:   dn.IndBlkShift(),
		DataBlockSize: dn.DataBlockSize(),
		MaxBlockID:    dn.MaxBlockID(),
		UsedBytes:     dn.UsedBytes(),
		Checksum:      dn.Checksum().String(),
		Compression:   dn.Compression().String(),
		Flags:         dn.Flags(),
		HasSpill:      dn.HasSpill(),
		IsZap:         dn.Type().IsZap(),
	}

	if len(dn.Bonus()) > 0 {
		info.Bonus = s.decodeBonus(dn)
		info.Edges = bonusEdges(id, info.Bonus)
	}
	return info, nil
}

// decodeBonus interprets the bonus buffer according to its type. A
// recognized bonus that fails to parse keeps the opaque payload and
// records the fault instead of failing the object.
func (s *ObjectService) decodeBonus(dn *dnode.Reader) *BonusInfo {
	bonus := dn.Bonus()
	endian := s.source.Endian()

	switch dn.BonusType() {
	case types.DmuOtDslDir:
		dir, err := dsl.NewDirReader(bonus, endian)
		if err != nil {
			return opaqueBonus(bonus, err)
		}
		d := dir.Dir()
		return &BonusInfo{
			Kind: "dsl_dir",
			DslDir: &DslDirInfo{
				CreationTime:      d.DdCreationTime,
				HeadDatasetObj:    d.DdHeadDatasetObj,
				ParentObj:         d.DdParentObj,
				OriginObj:         d.DdOriginObj,
				ChildDirZapobj:    d.DdChildDirZapobj,
				UsedBytes:         d.DdUsedBytes,
				CompressedBytes:   d.DdCompressedBytes,
				UncompressedBytes: d.DdUncompressedBytes,
				Quota:             d.DdQuota,
				Reserved:          d.DdReserved,
				PropsZapobj:       d.DdPropsZapobj,
				DelegZapobj:       d.DdDelegZapobj,
				Flags:             d.DdFlags,
				ClonesObj:         d.DdClones,
			},
		}

	case types.DmuOtDslDataset:
		ds, err := dsl.NewDatasetReader(bonus, endian)
		if err != nil {
			return opaqueBonus(bonus, err)
		}
		d := ds.Dataset()
		rootBp := blkptrInfo(ds.RootBlkptrSlot(), endian, 0, false)
		return &BonusInfo{
			Kind: "dsl_dataset",
			DslDataset: &DslDatasetInfo{
				DirObj:            d.DsDirObj,
				PrevSnapObj:       d.DsPrevSnapObj,
				PrevSnapTxg:       d.DsPrevSnapTxg,
				NextSnapObj:       d.DsNextSnapObj,
				SnapnamesZapobj:   d.DsSnapnamesZapobj,
				NumChildren:       d.DsNumChildren,
				CreationTime:      d.DsCreationTime,
				CreationTxg:       d.DsCreationTxg,
				DeadlistObj:       d.DsDeadlistObj,
				ReferencedBytes:   d.DsReferencedBytes,
				CompressedBytes:   d.DsCompressedBytes,
				UncompressedBytes: d.DsUncompressedBytes,
				UniqueBytes:       d.DsUniqueBytes,
				FsidGuid:          d.DsFsidGuid,
				Guid:              d.DsGuid,
				Flags:             d.DsFlags,
				NextClonesObj:     d.DsNextClonesObj,
				PropsObj:          d.DsPropsObj,
				UserrefsObj:       d.DsUserrefsObj,
				RootBp:            &rootBp,
			},
		}

	case types.DmuOtSpaceMapHeader:
		hdr, err := spacemap.NewHeaderReader(bonus, endian)
		if err != nil {
			return opaqueBonus(bonus, err)
		}
		return &BonusInfo{
			Kind: "space_map_header",
			SpaceMap: &SpaceMapHeaderInfo{
				Object:     hdr.Object(),
				Length:     hdr.Length(),
				AllocBytes: hdr.AllocBytes(),
			},
		}

	default:
		return opaqueBonus(bonus, nil)
	}
}

func opaqueBonus(bonus []byte, decodeErr error) *BonusInfo {
	preview := bonus
	if len(preview) > maxBonusPreview {
		preview = preview[:maxBonusPreview]
	}
	b := &BonusInfo{
		Kind: "opaque",
		Raw:  hex.EncodeToString(preview),
	}
	if decodeErr != nil {
		b.Error = decodeErr.Error()
	}
	return b
}

// bonusEdges derives labeled object references from a decoded bonus
// buffer. Zero-valued references are omitted.
func bonusEdges(from uint64, bonus *BonusInfo) []SemanticEdge {
	if bonus == nil {
		return nil
	}
	var edges []SemanticEdge
	add := func(to uint64, label string) {
		if to != 0 {
			edges = append(edges, SemanticEdge{From: from, To: to, Label: label})
		}
	}

	switch {
	case bonus.DslDir != nil:
		d := bonus.DslDir
		add(d.ParentObj, "parent_obj")
		add(d.HeadDatasetObj, "head_dataset_obj")
		add(d.OriginObj, "origin_obj")
		add(d.ChildDirZapobj, "child_dir_zapobj")
		add(d.PropsZapobj, "props_zapobj")
		add(d.DelegZapobj, "deleg_zapobj")
		add(d.ClonesObj, "clones_obj")
	case bonus.DslDataset != nil:
		d := bonus.DslDataset
		add(d.DirObj, "dir_obj")
		add(d.PrevSnapObj, "prev_snap_obj")
		add(d.NextSnapObj, "next_snap_obj")
		add(d.SnapnamesZapobj, "snapnames_zapobj")
		add(d.DeadlistObj, "deadlist_obj")
		add(d.NextClonesObj, "next_clones_obj")
		add(d.PropsObj, "props_obj")
		add(d.UserrefsObj, "userrefs_obj")
	case bonus.SpaceMap != nil:
		add(bonus.SpaceMap.Object, "smp_object")
	}
	return edges
}

// ListQuery selects a page of the object set.
type ListQuery struct {
	// TypeFilter keeps only objects of the given DMU type when
	// non-negative.
	TypeFilter int
	Start      uint64
	Limit      int
}

// ObjectList is one page of objects.
type ObjectList struct {
	Objects    []ObjectListEntry `json:"objects"`
	NextCursor uint64            `json:"next_cursor"`
}

// ObjectListEntry summarizes one object, or records why it could not be
// decoded.
type ObjectListEntry struct {
	Object        uint64 `json:"object"`
	Type          uint8  `json:"type,omitempty"`
	TypeName      string `json:"type_name,omitempty"`
	BonusTypeName string `json:"bonus_type_name,omitempty"`
	UsedBytes     uint64 `json:"used_bytes,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ListObjects scans allocated objects in id order. Objects that fail to
// decode become error entries rather than failing the page.
func (s *ObjectService) ListObjects(ctx context.Context, q ListQuery) (*ObjectList, error) {
	limit, err := normalizeLimit(q.Limit)
	if err != nil {
		return nil, err
	}
	maxID, err := s.source.MaxObjectID(ctx)
	if err != nil {
		return nil, err
	}

	list := &ObjectList{Objects: make([]ObjectListEntry, 0, limit)}
	id := q.Start
	if id == 0 {
		id = 1
	}

	for ; id <= maxID; id++ {
		if len(list.Objects) == limit {
			list.NextCursor = id
			return list, nil
		}
		slot, err := s.source.ObjectSlot(ctx, id)
		if err != nil {
			if errors.Is(err, ErrIO) {
				return nil, err
			}
			list.Objects = append(list.Objects, ObjectListEntry{Object: id, Error: err.Error()})
			continue
		}
		dn, err := dnode.NewReader(slot, s.source.Endian())
		if err != nil {
			if q.TypeFilter < 0 {
				list.Objects = append(list.Objects, ObjectListEntry{Object: id, Error: err.Error()})
			}
			continue
		}
		if !dn.IsAllocated() {
			continue
		}
		// Multi-slot dnodes own the following slot ids; those ids do not
		// resolve to objects of their own.
		if q.TypeFilter >= 0 && int(dn.Type()) != q.TypeFilter {
			id += uint64(dn.Dnode().DnExtraSlots)
			continue
		}
		list.Objects = append(list.Objects, ObjectListEntry{
			Object:        id,
			Type:          uint8(dn.Type()),
			TypeName:      dn.TypeName(),
			BonusTypeName: dn.BonusTypeName(),
			UsedBytes:     dn.UsedBytes(),
		})
		id += uint64(dn.Dnode().DnExtraSlots)
	}
	return list, nil
}

// BlkptrInfo is one decoded block pointer slot.
type BlkptrInfo struct {
	Index         int                    `json:"index"`
	IsSpill       bool                   `json:"is_spill,omitempty"`
	IsHole        bool                   `json:"is_hole"`
	IsEmbedded    bool                   `json:"is_embedded"`
	IsGang        bool                   `json:"is_gang"`
	Level         uint8                  `json:"level"`
	Type          uint8                  `json:"type"`
	TypeName      string                 `json:"type_name"`
	Lsize         uint64                 `json:"lsize"`
	Psize         uint64                 `json:"psize"`
	Asize         uint64                 `json:"asize"`
	BirthTxg      uint64                 `json:"birth_txg"`
	LogicalBirth  uint64                 `json:"logical_birth"`
	PhysicalBirth uint64                 `json:"physical_birth"`
	Fill          uint64                 `json:"fill"`
	Checksum      string                 `json:"checksum,omitempty"`
	Compression   string                 `json:"compression,omitempty"`
	Dedup         bool                   `json:"dedup"`
	Ndvas         int                    `json:"ndvas"`
	Dvas          []blockpointer.DvaInfo `json:"dvas,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// blkptrInfo decodes one raw slot. Slots that fail structural checks
// yield an error entry.
func blkptrInfo(slot []byte, endian binary.ByteOrder, index int, spill bool) BlkptrInfo {
	info := BlkptrInfo{Index: index, IsSpill: spill}
	bp, err := blockpointer.NewReader(slot, endian)
	if err != nil {
		info.Error = err.Error()
		return info
	}

	info.Level = bp.Level()
	info.Type = uint8(bp.Type())
	info.TypeName = bp.TypeName()
	info.BirthTxg = bp.BirthTxg()
	info.LogicalBirth = bp.BirthTxg()

	if bp.IsHole() {
		info.IsHole = true
		return info
	}

	info.IsEmbedded = bp.IsEmbedded()
	info.IsGang = bp.IsGang()
	info.Lsize = bp.LogicalSize()
	info.Psize = bp.PhysicalSize()
	info.Asize = bp.AllocatedSize()
	info.PhysicalBirth = bp.PhysicalBirth()
	info.Fill = bp.Fill()
	info.Compression = bp.Compression().String()
	info.Dedup = bp.Dedup()
	if !bp.IsEmbedded() {
		info.Checksum = bp.Checksum().String()
		info.Dvas = bp.Dvas()
		info.Ndvas = len(info.Dvas)
	}
	return info
}

// BlkptrList is the full set of an object's block pointer slots.
type BlkptrList struct {
	Object  uint64       `json:"object"`
	Blkptrs []BlkptrInfo `json:"blkptrs"`
}

// GetBlkptrs decodes every block pointer slot of an object, including
// the spill slot when present. A bad slot degrades to an error entry
// without affecting its siblings.
func (s *ObjectService) GetBlkptrs(ctx context.Context, id uint64) (*BlkptrList, error) {
	dn, err := s.openDnode(ctx, id)
	if err != nil {
		return nil, err
	}
	endian := s.source.Endian()

	list := &BlkptrList{Object: id}
	for i := 0; i < int(dn.NumBlkptrs()); i++ {
		slot, err := dn.BlkptrSlot(i)
		if err != nil {
			list.Blkptrs = append(list.Blkptrs, BlkptrInfo{Index: i, Error: err.Error()})
			continue
		}
		list.Blkptrs = append(list.Blkptrs, blkptrInfo(slot, endian, i, false))
	}
	if dn.HasSpill() {
		slot, err := dn.SpillSlot()
		if err != nil {
			list.Blkptrs = append(list.Blkptrs, BlkptrInfo{Index: len(list.Blkptrs), IsSpill: true, Error: err.Error()})
		} else {
			list.Blkptrs = append(list.Blkptrs, blkptrInfo(slot, endian, len(list.Blkptrs), true))
		}
	}
	return list, nil
}

// dataReader builds the logical read path for an already-open dnode.
func (s *ObjectService) dataReader(dn *dnode.Reader) *DataReader {
	return NewDataReader(s.raw, dn, s.verify)
}

func normalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, fmt.Errorf("%w: limit %d is negative", ErrInvalidArgument, limit)
	case limit == 0:
		return DefaultListLimit, nil
	case limit > MaxListLimit:
		return MaxListLimit, nil
	default:
		return limit, nil
	}
}
