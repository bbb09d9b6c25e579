package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/deploymenttheory/go-zdb/internal/parsers/blockpointer"
	"github.com/deploymenttheory/go-zdb/internal/parsers/dnode"
	"github.com/deploymenttheory/go-zdb/internal/parsers/dsl"
	"github.com/deploymenttheory/go-zdb/internal/parsers/uberblock"
	"github.com/deploymenttheory/go-zdb/internal/types"
)

const (
	// Lineage walk budgets: default and clamp ceiling per direction.
	DefaultLineageSteps = 64
	MaxLineageSteps     = 4096

	// Snapshot bonus buffers are hydrated by this many workers.
	snapshotWorkers = 4

	// Name of the root DSL directory entry in the object directory.
	rootDatasetProp = "root_dataset"

	// The object directory is always MOS object 1.
	objectDirectoryID = 1
)

// DatasetService walks the dataset and snapshot layer: directory tree,
// snapshot listings and snapshot lineage chains.
type DatasetService struct {
	objects *ObjectService
	zaps    *ZapService
	log     *slog.Logger
}

// NewDatasetService creates a new dataset service.
func NewDatasetService(objects *ObjectService, zaps *ZapService, log *slog.Logger) *DatasetService {
	if log == nil {
		log = slog.Default()
	}
	return &DatasetService{objects: objects, zaps: zaps, log: log}
}

// openDslDir opens an object and parses its DSL directory bonus.
func (s *DatasetService) openDslDir(ctx context.Context, id uint64) (*dsl.DirReader, error) {
	dn, err := s.objects.openDnode(ctx, id)
	if err != nil {
		return nil, err
	}
	if dn.BonusType() != types.DmuOtDslDir {
		return nil, fmt.Errorf("%w: object %d bonus is %s, not a DSL directory",
			ErrInvalidArgument, id, dn.BonusTypeName())
	}
	dir, err := dsl.NewDirReader(dn.Bonus(), s.objects.source.Endian())
	if err != nil {
		return nil, fmt.Errorf("%w: object %d: %v", ErrCorrupt, id, err)
	}
	return dir, nil
}

// openDslDataset opens an object and parses its DSL dataset bonus.
func (s *DatasetService) openDslDataset(ctx context.Context, id uint64) (*dsl.DatasetReader, error) {
	dn, err := s.objects.openDnode(ctx, id)
	if err != nil {
		return nil, err
	}
	if dn.BonusType() != types.DmuOtDslDataset {
		return nil, fmt.Errorf("%w: object %d bonus is %s, not a DSL dataset",
			ErrInvalidArgument, id, dn.BonusTypeName())
	}
	ds, err := dsl.NewDatasetReader(dn.Bonus(), s.objects.source.Endian())
	if err != nil {
		return nil, fmt.Errorf("%w: object %d: %v", ErrCorrupt, id, err)
	}
	return ds, nil
}

// zapAllEntries drains a ZAP object through the paginated reader.
func (s *DatasetService) zapAllEntries(ctx context.Context, id uint64) ([]ZapEntry, error) {
	var all []ZapEntry
	cursor := uint64(0)
	for {
		page, err := s.zaps.Entries(ctx, id, cursor, MaxListLimit)
		if page != nil {
			all = append(all, page.Entries...)
		}
		if err != nil {
			return all, err
		}
		if page.NextCursor == 0 {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// zapLookup resolves one name in a ZAP object to its uint64 value.
func (s *DatasetService) zapLookup(ctx context.Context, id uint64, name string) (uint64, error) {
	entries, err := s.zapAllEntries(ctx, id)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.Name == name && e.ValueU64 != nil {
			return *e.ValueU64, nil
		}
	}
	return 0, fmt.Errorf("%w: no entry %q in ZAP object %d", ErrNotFound, name, id)
}

// RootDir resolves the pool's root DSL directory through the object
// directory.
func (s *DatasetService) RootDir(ctx context.Context) (uint64, error) {
	return s.zapLookup(ctx, objectDirectoryID, rootDatasetProp)
}

// DirChild names one child DSL directory.
type DirChild struct {
	Name   string `json:"name"`
	DirObj uint64 `json:"dir_obj"`
}

// DirChildren lists a DSL directory's child directories in name order.
func (s *DatasetService) DirChildren(ctx context.Context, dirID uint64) ([]DirChild, error) {
	dir, err := s.openDslDir(ctx, dirID)
	if err != nil {
		return nil, err
	}
	if dir.ChildDirZapobj() == 0 {
		return nil, nil
	}
	entries, err := s.zapAllEntries(ctx, dir.ChildDirZapobj())
	if err != nil {
		return nil, err
	}

	children := make([]DirChild, 0, len(entries))
	for _, e := range entries {
		if e.ValueU64 == nil {
			continue
		}
		children = append(children, DirChild{Name: e.Name, DirObj: *e.ValueU64})
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children, nil
}

// DatasetNode summarizes one DSL dataset.
type DatasetNode struct {
	Object       uint64 `json:"object"`
	Name         string `json:"name,omitempty"`
	DirObj       uint64 `json:"dir_obj"`
	PrevSnapObj  uint64 `json:"prev_snap_obj"`
	NextSnapObj  uint64 `json:"next_snap_obj"`
	CreationTxg  uint64 `json:"creation_txg"`
	CreationTime uint64 `json:"creation_time"`
	Guid         uint64 `json:"guid"`
	NumChildren  uint64 `json:"num_children"`
	Error        string `json:"error,omitempty"`
}

func datasetNode(id uint64, ds *dsl.DatasetReader) DatasetNode {
	return DatasetNode{
		Object:       id,
		DirObj:       ds.DirObj(),
		PrevSnapObj:  ds.PrevSnapObj(),
		NextSnapObj:  ds.NextSnapObj(),
		CreationTxg:  ds.CreationTxg(),
		CreationTime: ds.CreationTime(),
		Guid:         ds.Guid(),
		NumChildren:  ds.NumChildren(),
	}
}

// DirHead resolves a DSL directory's head dataset.
func (s *DatasetService) DirHead(ctx context.Context, dirID uint64) (*DatasetNode, error) {
	dir, err := s.openDslDir(ctx, dirID)
	if err != nil {
		return nil, err
	}
	if dir.HeadDatasetObj() == 0 {
		return nil, fmt.Errorf("%w: directory %d has no head dataset", ErrNotFound, dirID)
	}
	ds, err := s.openDslDataset(ctx, dir.HeadDatasetObj())
	if err != nil {
		return nil, err
	}
	node := datasetNode(dir.HeadDatasetObj(), ds)
	return &node, nil
}

// ObjsetInfo describes the object set a dataset's root block pointer
// leads to.
type ObjsetInfo struct {
	Dataset   uint64      `json:"dataset"`
	Type      uint64      `json:"os_type"`
	TypeName  string      `json:"os_type_name"`
	RootBp    BlkptrInfo  `json:"root_bp"`
	MetaDnode *ObjectInfo `json:"meta_dnode,omitempty"`
}

// DatasetObjset reads the objset header behind a dataset's root block
// pointer.
func (s *DatasetService) DatasetObjset(ctx context.Context, dsID uint64) (*ObjsetInfo, error) {
	ds, err := s.openDslDataset(ctx, dsID)
	if err != nil {
		return nil, err
	}
	endian := s.objects.source.Endian()

	bp, err := blockpointer.NewReader(ds.RootBlkptrSlot(), endian)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset %d root block pointer: %v", ErrCorrupt, dsID, err)
	}
	if bp.IsHole() {
		return nil, fmt.Errorf("%w: dataset %d has no object set", ErrNotFound, dsID)
	}

	block, err := ReadBlockPointer(ctx, s.objects.raw, bp, s.objects.verify)
	if err != nil {
		return nil, err
	}
	osr, err := uberblock.NewObjsetReader(block, endian)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset %d object set: %v", ErrCorrupt, dsID, err)
	}

	info := &ObjsetInfo{
		Dataset:  dsID,
		Type:     osr.Type(),
		TypeName: osr.TypeName(),
		RootBp:   blkptrInfo(ds.RootBlkptrSlot(), endian, 0, false),
	}
	if mdn, err := dnode.NewReader(osr.MetaDnode(), endian); err == nil && mdn.IsAllocated() {
		info.MetaDnode = &ObjectInfo{
			TypeName:      mdn.TypeName(),
			Type:          uint8(mdn.Type()),
			Levels:        mdn.Levels(),
			NumBlkptrs:    mdn.NumBlkptrs(),
			IndBlkShift:   mdn.IndBlkShift(),
			DataBlockSize: mdn.DataBlockSize(),
			MaxBlockID:    mdn.MaxBlockID(),
			UsedBytes:     mdn.UsedBytes(),
		}
	}
	return info, nil
}

// SnapshotInfo is one hydrated snapshot listing entry.
type SnapshotInfo struct {
	Name            string `json:"name"`
	Object          uint64 `json:"object"`
	CreationTxg     uint64 `json:"creation_txg"`
	CreationTime    uint64 `json:"creation_time"`
	Guid            uint64 `json:"guid"`
	UniqueBytes     uint64 `json:"unique_bytes"`
	ReferencedBytes uint64 `json:"referenced_bytes"`
	Error           string `json:"error,omitempty"`
}

// SnapshotCount returns the number of snapshots recorded for a dataset.
func (s *DatasetService) SnapshotCount(ctx context.Context, dsID uint64) (uint64, error) {
	ds, err := s.openDslDataset(ctx, dsID)
	if err != nil {
		return 0, err
	}
	if ds.SnapnamesZapobj() == 0 {
		return 0, nil
	}
	info, err := s.zaps.Info(ctx, ds.SnapnamesZapobj())
	if err != nil {
		return 0, err
	}
	return info.NumEntries, nil
}

// Snapshots lists a dataset's snapshots in snap name ZAP order, each
// hydrated with its dataset bonus. Hydration runs on a small worker
// pool; results keep the enumeration order, and a snapshot that fails
// to decode degrades to an error entry.
func (s *DatasetService) Snapshots(ctx context.Context, dsID uint64) ([]SnapshotInfo, error) {
	ds, err := s.openDslDataset(ctx, dsID)
	if err != nil {
		return nil, err
	}
	if ds.SnapnamesZapobj() == 0 {
		return nil, nil
	}
	entries, err := s.zapAllEntries(ctx, ds.SnapnamesZapobj())
	if err != nil {
		return nil, err
	}

	snaps := make([]SnapshotInfo, len(entries))
	indexes := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < snapshotWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				s.hydrateSnapshot(ctx, entries[i], &snaps[i])
			}
		}()
	}
	for i := range entries {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return snaps, nil
}

func (s *DatasetService) hydrateSnapshot(ctx context.Context, e ZapEntry, out *SnapshotInfo) {
	out.Name = e.Name
	if e.ValueU64 == nil {
		out.Error = "snap name entry does not hold an object id"
		return
	}
	out.Object = *e.ValueU64

	ds, err := s.openDslDataset(ctx, out.Object)
	if err != nil {
		out.Error = err.Error()
		return
	}
	d := ds.Dataset()
	out.CreationTxg = d.DsCreationTxg
	out.CreationTime = d.DsCreationTime
	out.Guid = d.DsGuid
	out.UniqueBytes = d.DsUniqueBytes
	out.ReferencedBytes = d.DsReferencedBytes
}

// Lineage is a dataset's snapshot chain around an anchor dataset.
type Lineage struct {
	Dataset       uint64        `json:"dataset"`
	Anchor        DatasetNode   `json:"anchor"`
	Prev          []DatasetNode `json:"prev"`
	Next          []DatasetNode `json:"next"`
	TruncatedPrev bool          `json:"truncated_prev"`
	TruncatedNext bool          `json:"truncated_next"`
}

func clampLineageSteps(n int) int {
	switch {
	case n <= 0:
		return DefaultLineageSteps
	case n > MaxLineageSteps:
		return MaxLineageSteps
	default:
		return n
	}
}

// Lineage walks a dataset's snapshot chain backwards through
// prev_snap_obj and forwards through next_snap_obj, bounded by per
// direction step budgets. A broken link mid-walk yields the chain
// collected so far together with the error.
func (s *DatasetService) Lineage(ctx context.Context, dsID uint64, maxPrev, maxNext int) (*Lineage, error) {
	maxPrev = clampLineageSteps(maxPrev)
	maxNext = clampLineageSteps(maxNext)

	anchor, err := s.openDslDataset(ctx, dsID)
	if err != nil {
		return nil, err
	}
	lin := &Lineage{Dataset: dsID, Anchor: datasetNode(dsID, anchor)}

	var walkErr error

	obj := anchor.PrevSnapObj()
	for steps := 0; obj != 0; steps++ {
		if steps == maxPrev {
			lin.TruncatedPrev = true
			break
		}
		ds, err := s.openDslDataset(ctx, obj)
		if err != nil {
			walkErr = err
			break
		}
		lin.Prev = append(lin.Prev, datasetNode(obj, ds))
		obj = ds.PrevSnapObj()
	}

	obj = anchor.NextSnapObj()
	for steps := 0; obj != 0 && walkErr == nil; steps++ {
		if steps == maxNext {
			lin.TruncatedNext = true
			break
		}
		ds, err := s.openDslDataset(ctx, obj)
		if err != nil {
			walkErr = err
			break
		}
		lin.Next = append(lin.Next, datasetNode(obj, ds))
		obj = ds.NextSnapObj()
	}

	s.resolveLineageNames(ctx, lin)

	if walkErr != nil {
		return lin, fmt.Errorf("%w: lineage of dataset %d: %v", ErrCorrupt, dsID, walkErr)
	}
	return lin, nil
}

// resolveLineageNames labels chain nodes with their snapshot names from
// the head dataset's snap name ZAP. Best effort: an unreadable ZAP
// leaves names empty.
func (s *DatasetService) resolveLineageNames(ctx context.Context, lin *Lineage) {
	// The head is the forward-most dataset in the chain.
	head := lin.Anchor
	if n := len(lin.Next); n > 0 {
		head = lin.Next[n-1]
	}
	if head.NextSnapObj != 0 {
		return
	}

	ds, err := s.openDslDataset(ctx, head.Object)
	if err != nil || ds.SnapnamesZapobj() == 0 {
		return
	}
	entries, err := s.zapAllEntries(ctx, ds.SnapnamesZapobj())
	if err != nil && len(entries) == 0 {
		return
	}
	names := make(map[uint64]string, len(entries))
	for _, e := range entries {
		if e.ValueU64 != nil {
			names[*e.ValueU64] = e.Name
		}
	}

	lin.Anchor.Name = names[lin.Anchor.Object]
	for i := range lin.Prev {
		lin.Prev[i].Name = names[lin.Prev[i].Object]
	}
	for i := range lin.Next {
		lin.Next[i].Name = names[lin.Next[i].Object]
	}
}
