package dnode

import (
	"encoding/binary"
	"testing"

	"github.com/deploymenttheory/go-zdb/internal/types"
)

// dnodeSpec drives the test slot builder.
type dnodeSpec struct {
	dnType      types.DmuObjectType
	indblkshift uint8
	nlevels     uint8
	nblkptr     uint8
	bonustype   types.DmuObjectType
	flags       uint8
	datablksec  uint16
	bonuslen    uint16
	extraSlots  uint8
	maxblkid    uint64
	used        uint64
}

func createTestDnode(spec dnodeSpec) []byte {
	buf := make([]byte, types.DnodeSize*(int(spec.extraSlots)+1))
	buf[0] = byte(spec.dnType)
	buf[1] = spec.indblkshift
	buf[2] = spec.nlevels
	buf[3] = spec.nblkptr
	buf[4] = byte(spec.bonustype)
	buf[5] = byte(types.ChecksumFletcher4)
	buf[6] = byte(types.CompressLz4)
	buf[7] = spec.flags
	binary.LittleEndian.PutUint16(buf[8:], spec.datablksec)
	binary.LittleEndian.PutUint16(buf[10:], spec.bonuslen)
	buf[12] = spec.extraSlots
	binary.LittleEndian.PutUint64(buf[16:], spec.maxblkid)
	binary.LittleEndian.PutUint64(buf[24:], spec.used)
	return buf
}

func TestNewReader(t *testing.T) {
	spec := dnodeSpec{
		dnType:      types.DmuOtDnode,
		indblkshift: 17,
		nlevels:     2,
		nblkptr:     3,
		bonustype:   types.DmuOtNone,
		flags:       types.DnodeFlagUsedBytes,
		datablksec:  32, // 16K
		maxblkid:    7,
		used:        123456,
	}
	reader, err := NewReader(createTestDnode(spec), binary.LittleEndian)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	if !reader.IsAllocated() {
		t.Error("Expected allocated dnode")
	}
	if got := reader.Type(); got != types.DmuOtDnode {
		t.Errorf("Expected type %d, got %d", types.DmuOtDnode, got)
	}
	if got := reader.Levels(); got != 2 {
		t.Errorf("Expected 2 levels, got %d", got)
	}
	if got := reader.DataBlockSize(); got != 16<<10 {
		t.Errorf("Expected data block size %d, got %d", 16<<10, got)
	}
	if got := reader.MaxBlockID(); got != 7 {
		t.Errorf("Expected max blkid 7, got %d", got)
	}
	if got := reader.UsedBytes(); got != 123456 {
		t.Errorf("Expected used bytes 123456, got %d", got)
	}
	if reader.HasSpill() {
		t.Error("Expected no spill pointer")
	}
}

func TestUsedBytesInSectors(t *testing.T) {
	spec := dnodeSpec{
		dnType: types.DmuOtPlainFileContents, nlevels: 1, nblkptr: 1,
		datablksec: 1,
		used:       10, // sectors when the used-bytes flag is clear
	}
	reader, err := NewReader(createTestDnode(spec), binary.LittleEndian)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if got := reader.UsedBytes(); got != 10*512 {
		t.Errorf("Expected used bytes %d, got %d", 10*512, got)
	}
}

func TestBonusBuffer(t *testing.T) {
	spec := dnodeSpec{
		dnType: types.DmuOtDslDir, nlevels: 1, nblkptr: 1,
		bonustype:  types.DmuOtDslDir,
		datablksec: 1,
		bonuslen:   types.DslDirPhysSize,
	}
	data := createTestDnode(spec)
	bonusStart := types.DnodeCoreSize + types.SpaBlkptrSize
	for i := 0; i < types.DslDirPhysSize; i++ {
		data[bonusStart+i] = byte(i)
	}

	reader, err := NewReader(data, binary.LittleEndian)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	bonus := reader.Bonus()
	if len(bonus) != types.DslDirPhysSize {
		t.Fatalf("Expected bonus length %d, got %d", types.DslDirPhysSize, len(bonus))
	}
	if bonus[0] != 0 || bonus[255] != 255 {
		t.Error("Bonus buffer does not start at the expected offset")
	}
}

func TestBlkptrSlots(t *testing.T) {
	spec := dnodeSpec{
		dnType: types.DmuOtObjectDirectory, nlevels: 1, nblkptr: 3,
		datablksec: 1,
	}
	data := createTestDnode(spec)
	data[types.DnodeCoreSize+types.SpaBlkptrSize] = 0xab // first byte of bp[1]

	reader, err := NewReader(data, binary.LittleEndian)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	slot, err := reader.BlkptrSlot(1)
	if err != nil {
		t.Fatalf("BlkptrSlot(1) failed: %v", err)
	}
	if len(slot) != types.SpaBlkptrSize {
		t.Errorf("Expected slot length %d, got %d", types.SpaBlkptrSize, len(slot))
	}
	if slot[0] != 0xab {
		t.Errorf("Expected slot marker 0xab, got %#x", slot[0])
	}

	if _, err := reader.BlkptrSlot(3); err == nil {
		t.Error("Expected error for out-of-range index")
	}
}

func TestSpillSlot(t *testing.T) {
	spec := dnodeSpec{
		dnType: types.DmuOtSa, nlevels: 1, nblkptr: 1,
		flags:      types.DnodeFlagSpillBlkptr,
		datablksec: 1,
	}
	data := createTestDnode(spec)
	data[types.DnodeSize-types.SpaBlkptrSize] = 0xcd

	reader, err := NewReader(data, binary.LittleEndian)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if !reader.HasSpill() {
		t.Fatal("Expected spill pointer")
	}
	spill, err := reader.SpillSlot()
	if err != nil {
		t.Fatalf("SpillSlot failed: %v", err)
	}
	if spill[0] != 0xcd {
		t.Errorf("Expected spill marker 0xcd, got %#x", spill[0])
	}
}

func TestMultiSlotDnode(t *testing.T) {
	spec := dnodeSpec{
		dnType: types.DmuOtDslDataset, nlevels: 1, nblkptr: 1,
		bonustype:  types.DmuOtDslDataset,
		datablksec: 1,
		bonuslen:   types.DslDatasetPhysSize,
		extraSlots: 1,
	}
	reader, err := NewReader(createTestDnode(spec), binary.LittleEndian)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if got := len(reader.Bonus()); got != types.DslDatasetPhysSize {
		t.Errorf("Expected bonus length %d, got %d", types.DslDatasetPhysSize, got)
	}
}

func TestFreeSlot(t *testing.T) {
	reader, err := NewReader(make([]byte, types.DnodeSize), binary.LittleEndian)
	if err != nil {
		t.Fatalf("NewReader failed on free slot: %v", err)
	}
	if reader.IsAllocated() {
		t.Error("Expected free slot")
	}
}

func TestNewReaderErrorCases(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "data too small",
			data: make([]byte, 256),
		},
		{
			name: "zero levels",
			data: createTestDnode(dnodeSpec{
				dnType: types.DmuOtDnode, nlevels: 0, nblkptr: 1, datablksec: 1,
			}),
		},
		{
			name: "too many block pointers",
			data: createTestDnode(dnodeSpec{
				dnType: types.DmuOtDnode, nlevels: 1, nblkptr: 4, datablksec: 1,
			}),
		},
		{
			name: "indirect shift too small",
			data: createTestDnode(dnodeSpec{
				dnType: types.DmuOtDnode, nlevels: 2, nblkptr: 1,
				indblkshift: 5, datablksec: 1,
			}),
		},
		{
			name: "bonus exceeds capacity",
			data: createTestDnode(dnodeSpec{
				dnType: types.DmuOtDslDir, nlevels: 1, nblkptr: 3,
				bonustype: types.DmuOtDslDir, datablksec: 1,
				bonuslen: 200,
			}),
		},
		{
			name: "slot run cut short",
			data: createTestDnode(dnodeSpec{
				dnType: types.DmuOtDslDataset, nlevels: 1, nblkptr: 1,
				datablksec: 1, extraSlots: 1,
			})[:types.DnodeSize],
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReader(tt.data, binary.LittleEndian); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}
