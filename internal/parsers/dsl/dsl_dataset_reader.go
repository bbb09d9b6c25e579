package dsl

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-zdb/internal/parsers/blockpointer"
	"github.com/deploymenttheory/go-zdb/internal/types"
)

// DatasetReader provides parsing capabilities for dsl_dataset_phys_t
// bonus buffers.
type DatasetReader struct {
	ds     *types.DslDatasetPhysT
	bpSlot []byte
	endian binary.ByteOrder
}

// NewDatasetReader creates a new DSL dataset reader over a bonus buffer.
func NewDatasetReader(data []byte, endian binary.ByteOrder) (*DatasetReader, error) {
	if len(data) < types.DslDatasetPhysSize {
		return nil, fmt.Errorf("data too small for DSL dataset: %d bytes, need %d",
			len(data), types.DslDatasetPhysSize)
	}

	ds := &types.DslDatasetPhysT{}
	offset := 0
	next := func() uint64 {
		v := endian.Uint64(data[offset : offset+8])
		offset += 8
		return v
	}

	ds.DsDirObj = next()
	ds.DsPrevSnapObj = next()
	ds.DsPrevSnapTxg = next()
	ds.DsNextSnapObj = next()
	ds.DsSnapnamesZapobj = next()
	ds.DsNumChildren = next()
	ds.DsCreationTime = next()
	ds.DsCreationTxg = next()
	ds.DsDeadlistObj = next()
	ds.DsReferencedBytes = next()
	ds.DsCompressedBytes = next()
	ds.DsUncompressedBytes = next()
	ds.DsUniqueBytes = next()
	ds.DsFsidGuid = next()
	ds.DsGuid = next()
	ds.DsFlags = next()

	bpSlot := data[offset : offset+types.SpaBlkptrSize]
	bpr, err := blockpointer.NewReader(bpSlot, endian)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset root block pointer: %w", err)
	}
	ds.DsBp = *bpr.Blkptr()
	offset += types.SpaBlkptrSize

	ds.DsNextClonesObj = next()
	ds.DsPropsObj = next()
	ds.DsUserrefsObj = next()

	return &DatasetReader{ds: ds, bpSlot: bpSlot, endian: endian}, nil
}

// Dataset returns the parsed dsl_dataset_phys_t.
func (dr *DatasetReader) Dataset() *types.DslDatasetPhysT {
	return dr.ds
}

// RootBlkptrSlot returns the raw 128 bytes of the dataset's object set
// root block pointer.
func (dr *DatasetReader) RootBlkptrSlot() []byte {
	return dr.bpSlot
}

func (dr *DatasetReader) DirObj() uint64          { return dr.ds.DsDirObj }
func (dr *DatasetReader) PrevSnapObj() uint64     { return dr.ds.DsPrevSnapObj }
func (dr *DatasetReader) PrevSnapTxg() uint64     { return dr.ds.DsPrevSnapTxg }
func (dr *DatasetReader) NextSnapObj() uint64     { return dr.ds.DsNextSnapObj }
func (dr *DatasetReader) SnapnamesZapobj() uint64 { return dr.ds.DsSnapnamesZapobj }
func (dr *DatasetReader) NumChildren() uint64     { return dr.ds.DsNumChildren }
func (dr *DatasetReader) CreationTime() uint64    { return dr.ds.DsCreationTime }
func (dr *DatasetReader) CreationTxg() uint64     { return dr.ds.DsCreationTxg }
func (dr *DatasetReader) DeadlistObj() uint64     { return dr.ds.DsDeadlistObj }
func (dr *DatasetReader) Guid() uint64            { return dr.ds.DsGuid }
