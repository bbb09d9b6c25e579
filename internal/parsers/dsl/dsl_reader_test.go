package dsl

import (
	"encoding/binary"
	"testing"

	"github.com/deploymenttheory/go-zdb/internal/types"
)

// dirFieldIndex maps the uint64 field order of dsl_dir_phys_t.
const (
	dirCreationTime = iota
	dirHeadDatasetObj
	dirParentObj
	dirOriginObj
	dirChildDirZapobj
	dirUsedBytes
	dirCompressedBytes
	dirUncompressedBytes
	dirQuota
	dirReserved
	dirPropsZapobj
	dirDelegZapobj
	dirFlags
)

func createTestDslDir(set map[int]uint64) []byte {
	buf := make([]byte, types.DslDirPhysSize)
	for idx, v := range set {
		binary.LittleEndian.PutUint64(buf[idx*8:], v)
	}
	return buf
}

func TestNewDirReader(t *testing.T) {
	data := createTestDslDir(map[int]uint64{
		dirCreationTime:   1700000000,
		dirHeadDatasetObj: 21,
		dirParentObj:      11,
		dirOriginObj:      0,
		dirChildDirZapobj: 30,
		dirUsedBytes:      1 << 20,
		dirQuota:          1 << 30,
		dirReserved:       1 << 10,
		dirPropsZapobj:    31,
		dirDelegZapobj:    32,
	})
	// dd_clones follows dd_flags and the five-slot used breakdown.
	binary.LittleEndian.PutUint64(data[(dirFlags+1+types.DslDirUsedBreakdownLen)*8:], 40)

	reader, err := NewDirReader(data, binary.LittleEndian)
	if err != nil {
		t.Fatalf("NewDirReader failed: %v", err)
	}

	checks := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"CreationTime", reader.CreationTime(), 1700000000},
		{"HeadDatasetObj", reader.HeadDatasetObj(), 21},
		{"ParentObj", reader.ParentObj(), 11},
		{"OriginObj", reader.OriginObj(), 0},
		{"ChildDirZapobj", reader.ChildDirZapobj(), 30},
		{"UsedBytes", reader.UsedBytes(), 1 << 20},
		{"Quota", reader.Quota(), 1 << 30},
		{"Reserved", reader.Reserved(), 1 << 10},
		{"PropsZapobj", reader.PropsZapobj(), 31},
		{"DelegZapobj", reader.DelegZapobj(), 32},
		{"ClonesObj", reader.ClonesObj(), 40},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestNewDirReaderTooSmall(t *testing.T) {
	if _, err := NewDirReader(make([]byte, 128), binary.LittleEndian); err == nil {
		t.Error("Expected error for truncated buffer")
	}
}

// dsFieldIndex maps the leading uint64 field order of dsl_dataset_phys_t.
const (
	dsDirObj = iota
	dsPrevSnapObj
	dsPrevSnapTxg
	dsNextSnapObj
	dsSnapnamesZapobj
	dsNumChildren
	dsCreationTime
	dsCreationTxg
	dsDeadlistObj
	dsReferencedBytes
	dsCompressedBytes
	dsUncompressedBytes
	dsUniqueBytes
	dsFsidGuid
	dsGuid
	dsFlags
)

func createTestDslDataset(set map[int]uint64) []byte {
	buf := make([]byte, types.DslDatasetPhysSize)
	for idx, v := range set {
		binary.LittleEndian.PutUint64(buf[idx*8:], v)
	}
	return buf
}

func TestNewDatasetReader(t *testing.T) {
	data := createTestDslDataset(map[int]uint64{
		dsDirObj:          12,
		dsPrevSnapObj:     50,
		dsPrevSnapTxg:     900,
		dsNextSnapObj:     0,
		dsSnapnamesZapobj: 52,
		dsNumChildren:     2,
		dsCreationTime:    1700000001,
		dsCreationTxg:     901,
		dsDeadlistObj:     53,
		dsGuid:            0xabcdef,
	})
	// The root block pointer slot stays a hole; mark its birth word so
	// the slot position is verifiable.
	bpOff := 16 * 8
	binary.LittleEndian.PutUint64(data[bpOff+80:], 901)

	reader, err := NewDatasetReader(data, binary.LittleEndian)
	if err != nil {
		t.Fatalf("NewDatasetReader failed: %v", err)
	}

	checks := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"DirObj", reader.DirObj(), 12},
		{"PrevSnapObj", reader.PrevSnapObj(), 50},
		{"PrevSnapTxg", reader.PrevSnapTxg(), 900},
		{"NextSnapObj", reader.NextSnapObj(), 0},
		{"SnapnamesZapobj", reader.SnapnamesZapobj(), 52},
		{"NumChildren", reader.NumChildren(), 2},
		{"CreationTime", reader.CreationTime(), 1700000001},
		{"CreationTxg", reader.CreationTxg(), 901},
		{"DeadlistObj", reader.DeadlistObj(), 53},
		{"Guid", reader.Guid(), 0xabcdef},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}

	slot := reader.RootBlkptrSlot()
	if len(slot) != types.SpaBlkptrSize {
		t.Fatalf("Expected root bp slot of %d bytes, got %d", types.SpaBlkptrSize, len(slot))
	}
	if got := binary.LittleEndian.Uint64(slot[80:]); got != 901 {
		t.Errorf("Root bp slot misplaced: birth word = %d, want 901", got)
	}
	if !reader.Dataset().DsBp.IsHole() {
		t.Error("Expected root bp to be a hole")
	}
}

func TestNewDatasetReaderErrorCases(t *testing.T) {
	// A root bp slot with an impossible compression value must fail.
	data := createTestDslDataset(nil)
	bpOff := 16 * 8
	// Non-empty DVA so the slot is not a hole, then an impossible
	// compression value in the property word.
	binary.LittleEndian.PutUint64(data[bpOff:], 1)
	binary.LittleEndian.PutUint64(data[bpOff+48:], uint64(types.CompressFunctions)<<32)

	if _, err := NewDatasetReader(data, binary.LittleEndian); err == nil {
		t.Error("Expected error for corrupt root block pointer")
	}

	if _, err := NewDatasetReader(make([]byte, 256), binary.LittleEndian); err == nil {
		t.Error("Expected error for truncated buffer")
	}
}
