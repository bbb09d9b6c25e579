// Package dsl parses the bonus buffer layouts of the dataset and
// snapshot layer: dsl_dir_phys_t and dsl_dataset_phys_t.
package dsl

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-zdb/internal/types"
)

// DirReader provides parsing capabilities for dsl_dir_phys_t bonus
// buffers.
type DirReader struct {
	dir    *types.DslDirPhysT
	endian binary.ByteOrder
}

// NewDirReader creates a new DSL directory reader over a bonus buffer.
func NewDirReader(data []byte, endian binary.ByteOrder) (*DirReader, error) {
	if len(data) < types.DslDirPhysSize {
		return nil, fmt.Errorf("data too small for DSL directory: %d bytes, need %d",
			len(data), types.DslDirPhysSize)
	}

	d := &types.DslDirPhysT{}
	offset := 0
	next := func() uint64 {
		v := endian.Uint64(data[offset : offset+8])
		offset += 8
		return v
	}

	d.DdCreationTime = next()
	d.DdHeadDatasetObj = next()
	d.DdParentObj = next()
	d.DdOriginObj = next()
	d.DdChildDirZapobj = next()
	d.DdUsedBytes = next()
	d.DdCompressedBytes = next()
	d.DdUncompressedBytes = next()
	d.DdQuota = next()
	d.DdReserved = next()
	d.DdPropsZapobj = next()
	d.DdDelegZapobj = next()
	d.DdFlags = next()
	for i := range d.DdUsedBreakdown {
		d.DdUsedBreakdown[i] = next()
	}
	d.DdClones = next()

	return &DirReader{dir: d, endian: endian}, nil
}

// Dir returns the parsed dsl_dir_phys_t.
func (dr *DirReader) Dir() *types.DslDirPhysT {
	return dr.dir
}

func (dr *DirReader) CreationTime() uint64   { return dr.dir.DdCreationTime }
func (dr *DirReader) HeadDatasetObj() uint64 { return dr.dir.DdHeadDatasetObj }
func (dr *DirReader) ParentObj() uint64      { return dr.dir.DdParentObj }
func (dr *DirReader) OriginObj() uint64      { return dr.dir.DdOriginObj }
func (dr *DirReader) ChildDirZapobj() uint64 { return dr.dir.DdChildDirZapobj }
func (dr *DirReader) PropsZapobj() uint64    { return dr.dir.DdPropsZapobj }
func (dr *DirReader) DelegZapobj() uint64    { return dr.dir.DdDelegZapobj }
func (dr *DirReader) ClonesObj() uint64      { return dr.dir.DdClones }
func (dr *DirReader) UsedBytes() uint64      { return dr.dir.DdUsedBytes }
func (dr *DirReader) Quota() uint64          { return dr.dir.DdQuota }
func (dr *DirReader) Reserved() uint64       { return dr.dir.DdReserved }
