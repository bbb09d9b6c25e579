package services

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-zdb/internal/types"
)

// fakePool is an in-memory object source and block device for service
// tests. Object slots are keyed by id; physical blocks are keyed by
// their device byte offset, the way real reads address them.
type fakePool struct {
	slots   map[uint64][]byte
	slotErr map[uint64]error
	blocks  map[uint64][]byte
	maxID   uint64
	size    uint64

	// nextOff is the next free DVA byte offset handed to addBlock.
	nextOff uint64
}

func newFakePool() *fakePool {
	return &fakePool{
		slots:   make(map[uint64][]byte),
		slotErr: make(map[uint64]error),
		blocks:  make(map[uint64][]byte),
		size:    64 << 20,
		nextOff: 1 << 20,
	}
}

func (f *fakePool) ObjectSlot(ctx context.Context, id uint64) ([]byte, error) {
	if err := f.slotErr[id]; err != nil {
		return nil, err
	}
	if slot, ok := f.slots[id]; ok {
		return slot, nil
	}
	return make([]byte, types.DnodeSize), nil
}

func (f *fakePool) MaxObjectID(ctx context.Context) (uint64, error) {
	return f.maxID, nil
}

func (f *fakePool) Endian() binary.ByteOrder {
	return binary.LittleEndian
}

func (f *fakePool) ReadBlock(ctx context.Context, vdev, offset, length uint64) ([]byte, error) {
	data, ok := f.blocks[offset]
	if !ok {
		return nil, fmt.Errorf("%w: no block at device offset %#x", ErrIO, offset)
	}
	if length > uint64(len(data)) {
		return nil, fmt.Errorf("%w: read of %d bytes past block of %d", ErrIO, length, len(data))
	}
	return data[:length], nil
}

func (f *fakePool) Size(vdev uint64) (uint64, error) {
	return f.size, nil
}

// addBlock registers a physical block and returns the DVA byte offset a
// block pointer should carry to reach it.
func (f *fakePool) addBlock(data []byte) uint64 {
	off := f.nextOff
	f.blocks[off+types.VdevLabelStartSize] = data
	f.nextOff += (uint64(len(data)) + 511) &^ 511
	return off
}

// corruptBlock rewrites the block behind a DVA byte offset.
func (f *fakePool) corruptBlock(dvaOff uint64, data []byte) {
	f.blocks[dvaOff+types.VdevLabelStartSize] = data
}

// testBlkptr drives the raw block pointer slot builder.
type testBlkptr struct {
	level   uint8
	dmuType types.DmuObjectType
	comp    types.CompressType
	lsize   uint64
	psize   uint64
	offset  uint64 // DVA byte offset
	birth   uint64
	fill    uint64
}

func packBlkptrSlot(p testBlkptr) []byte {
	buf := make([]byte, types.SpaBlkptrSize)

	word0 := (p.psize >> types.SpaMinBlockShift) // asize in sectors
	binary.LittleEndian.PutUint64(buf[0:], word0)
	binary.LittleEndian.PutUint64(buf[8:], p.offset>>types.SpaMinBlockShift)

	var prop uint64
	prop |= (p.lsize>>types.SpaMinBlockShift - 1) & 0xffff
	prop |= ((p.psize>>types.SpaMinBlockShift - 1) & 0xffff) << 16
	prop |= uint64(p.comp) << 32
	prop |= uint64(types.ChecksumFletcher4) << 40
	prop |= uint64(p.dmuType) << 48
	prop |= uint64(p.level) << 56
	prop |= uint64(1) << 63 // little-endian writer
	binary.LittleEndian.PutUint64(buf[48:], prop)

	birth := p.birth
	if birth == 0 {
		birth = 100
	}
	fill := p.fill
	if fill == 0 {
		fill = 1
	}
	binary.LittleEndian.PutUint64(buf[80:], birth)
	binary.LittleEndian.PutUint64(buf[88:], fill)
	return buf
}

// setFletcher4 stamps the checksum words a verified read will check.
func setFletcher4(slot []byte, data []byte) {
	sum := fletcher4(data)
	for i, w := range sum {
		binary.LittleEndian.PutUint64(slot[96+8*i:], w)
	}
}

// testObject drives the dnode slot builder.
type testObject struct {
	id          uint64
	dnType      types.DmuObjectType
	bonustype   types.DmuObjectType
	bonus       []byte
	levels      uint8
	indblkshift uint8
	datablksec  uint16
	maxblkid    uint64
	used        uint64
	extraSlots  uint8
	blkptrs     [][]byte
	spill       []byte
}

// packDnodeSlot packs one dnode slot run.
func packDnodeSlot(o testObject) []byte {
	nblkptr := len(o.blkptrs)
	if nblkptr == 0 {
		nblkptr = 1
	}
	levels := o.levels
	if levels == 0 {
		levels = 1
	}
	datablksec := o.datablksec
	if datablksec == 0 {
		datablksec = 1
	}
	indblkshift := o.indblkshift
	if indblkshift == 0 {
		indblkshift = 17
	}

	buf := make([]byte, types.DnodeSize*(int(o.extraSlots)+1))
	buf[0] = byte(o.dnType)
	buf[1] = indblkshift
	buf[2] = levels
	buf[3] = byte(nblkptr)
	buf[4] = byte(o.bonustype)
	buf[5] = byte(types.ChecksumFletcher4)
	buf[6] = byte(types.CompressOff)
	buf[7] = types.DnodeFlagUsedBytes
	if o.spill != nil {
		buf[7] |= types.DnodeFlagSpillBlkptr
	}
	binary.LittleEndian.PutUint16(buf[8:], datablksec)
	binary.LittleEndian.PutUint16(buf[10:], uint16(len(o.bonus)))
	buf[12] = o.extraSlots
	binary.LittleEndian.PutUint64(buf[16:], o.maxblkid)
	binary.LittleEndian.PutUint64(buf[24:], o.used)

	for i, slot := range o.blkptrs {
		copy(buf[types.DnodeCoreSize+i*types.SpaBlkptrSize:], slot)
	}
	copy(buf[types.DnodeCoreSize+nblkptr*types.SpaBlkptrSize:], o.bonus)
	if o.spill != nil {
		copy(buf[len(buf)-types.SpaBlkptrSize:], o.spill)
	}
	return buf
}

// putObject installs one object in the pool.
func (f *fakePool) putObject(o testObject) {
	f.slots[o.id] = packDnodeSlot(o)
	if o.id+uint64(o.extraSlots) > f.maxID {
		f.maxID = o.id + uint64(o.extraSlots)
	}
}

// putDataObject installs an object whose level-0 blocks hold the given
// uncompressed contents. All blocks must share one size.
func (f *fakePool) putDataObject(o testObject, blocks ...[]byte) {
	bsize := len(blocks[0])
	slots := make([][]byte, len(blocks))
	for i, blk := range blocks {
		off := f.addBlock(blk)
		slots[i] = packBlkptrSlot(testBlkptr{
			dmuType: o.dnType,
			comp:    types.CompressOff,
			lsize:   uint64(bsize),
			psize:   uint64(bsize),
			offset:  off,
		})
	}
	o.datablksec = uint16(bsize >> types.SpaMinBlockShift)
	o.maxblkid = uint64(len(blocks) - 1)
	o.blkptrs = slots
	f.putObject(o)
}

// mzapPair is one microzap name/value entry in builder order.
type mzapPair struct {
	name  string
	value uint64
}

// buildMicrozap packs a single-block microzap.
func buildMicrozap(blockSize int, pairs ...mzapPair) []byte {
	buf := make([]byte, blockSize)
	binary.LittleEndian.PutUint64(buf[0:], types.ZbtMicro)
	binary.LittleEndian.PutUint64(buf[8:], 0x1234) // salt
	for i, p := range pairs {
		off := types.MzapHdrSize + i*types.MzapEntSize
		binary.LittleEndian.PutUint64(buf[off:], p.value)
		copy(buf[off+14:], p.name)
	}
	return buf
}

// putMicrozapObject installs a one-block microzap holding the pairs.
func (f *fakePool) putMicrozapObject(id uint64, pairs ...mzapPair) {
	f.putDataObject(testObject{id: id, dnType: types.DmuOtObjectDirectory},
		buildMicrozap(1024, pairs...))
}

// buildFatzapHeader packs a fatzap header block with an embedded
// pointer table whose every slot points at leaf block 1.
func buildFatzapHeader(blockSize int, numEntries, numLeafs uint64) []byte {
	buf := make([]byte, blockSize)
	fields := []uint64{
		types.ZbtHeader, // block type
		types.ZapMagic,
		0, // ptrtbl blk
		0, // ptrtbl numblks: embedded
		0, // ptrtbl shift
		0, // ptrtbl nextblk
		0, // ptrtbl blks_copied
		2, // freeblk
		numLeafs,
		numEntries,
		0x5a17, // salt
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	// Embedded pointer table occupies the block's second half.
	for off := blockSize / 2; off < blockSize; off += 8 {
		binary.LittleEndian.PutUint64(buf[off:], 1)
	}
	return buf
}

// buildLeaf packs one leaf block with single-chunk names and values in
// consecutive chunk triples, one bucket per entry.
func buildLeaf(blockSize int, pairs ...mzapPair) []byte {
	buf := make([]byte, blockSize)
	binary.LittleEndian.PutUint64(buf[0:], types.ZbtLeaf)
	binary.LittleEndian.PutUint32(buf[24:], types.ZapLeafMagic)
	binary.LittleEndian.PutUint16(buf[30:], uint16(len(pairs)))

	blockShift := 0
	for 1<<blockShift < blockSize {
		blockShift++
	}
	nbuckets := types.ZapLeafHashEntries(blockShift)
	for i := 0; i < nbuckets; i++ {
		binary.LittleEndian.PutUint16(buf[types.ZapLeafHdrSize+2*i:], types.ZapChainEnd)
	}
	chunksAt := types.ZapLeafHdrSize + 2*nbuckets

	chunk := func(id int) []byte {
		off := chunksAt + id*types.ZapLeafChunkSize
		return buf[off : off+types.ZapLeafChunkSize]
	}

	for i, p := range pairs {
		entry, nameChunk, valueChunk := 3*i, 3*i+1, 3*i+2
		nameBytes := append([]byte(p.name), 0)

		c := chunk(entry)
		c[0] = types.ZapChunkEntry
		c[1] = 8 // integer length
		binary.LittleEndian.PutUint16(c[2:], types.ZapChainEnd)
		binary.LittleEndian.PutUint16(c[4:], uint16(nameChunk))
		binary.LittleEndian.PutUint16(c[6:], uint16(len(nameBytes)))
		binary.LittleEndian.PutUint16(c[8:], uint16(valueChunk))
		binary.LittleEndian.PutUint16(c[10:], 1)
		binary.LittleEndian.PutUint64(c[16:], uint64(i)<<40)

		n := chunk(nameChunk)
		n[0] = types.ZapChunkArray
		copy(n[1:], nameBytes)
		binary.LittleEndian.PutUint16(n[22:], types.ZapChainEnd)

		v := chunk(valueChunk)
		v[0] = types.ZapChunkArray
		binary.BigEndian.PutUint64(v[1:], p.value)
		binary.LittleEndian.PutUint16(v[22:], types.ZapChainEnd)

		binary.LittleEndian.PutUint16(buf[types.ZapLeafHdrSize+2*i:], uint16(entry))
	}
	return buf
}

// putFatzapObject installs a two-block fatzap: header then one leaf.
func (f *fakePool) putFatzapObject(id uint64, pairs ...mzapPair) {
	blockSize := 1024
	f.putDataObject(testObject{id: id, dnType: types.DmuOtZapOther},
		buildFatzapHeader(blockSize, uint64(len(pairs)), 1),
		buildLeaf(blockSize, pairs...))
}

// DSL directory bonus field indexes, in on-disk u64 order.
const (
	tdirCreationTime = iota
	tdirHeadDataset
	tdirParent
	tdirOrigin
	tdirChildDirZap
	tdirUsed
	tdirCompressed
	tdirUncompressed
	tdirQuota
	tdirReserved
	tdirPropsZap
	tdirDelegZap
	tdirFlags
)

func dslDirBonus(vals map[int]uint64) []byte {
	buf := make([]byte, types.DslDirPhysSize)
	for idx, v := range vals {
		binary.LittleEndian.PutUint64(buf[idx*8:], v)
	}
	return buf
}

// DSL dataset bonus field indexes, in on-disk u64 order.
const (
	tdsDir = iota
	tdsPrevSnap
	tdsPrevSnapTxg
	tdsNextSnap
	tdsSnapnamesZap
	tdsNumChildren
	tdsCreationTime
	tdsCreationTxg
	tdsDeadlist
	tdsReferenced
	tdsCompressed
	tdsUncompressed
	tdsUnique
	tdsFsidGuid
	tdsGuid
	tdsFlags
)

func dslDatasetBonus(vals map[int]uint64, rootBp []byte) []byte {
	buf := make([]byte, types.DslDatasetPhysSize)
	for idx, v := range vals {
		binary.LittleEndian.PutUint64(buf[idx*8:], v)
	}
	if rootBp != nil {
		copy(buf[16*8:], rootBp)
	}
	return buf
}

func spacemapHeaderBonus(object, length uint64, alloc int64) []byte {
	buf := make([]byte, 64)
	binary.LittleEndian.PutUint64(buf[0:], object)
	binary.LittleEndian.PutUint64(buf[8:], length)
	binary.LittleEndian.PutUint64(buf[16:], uint64(alloc))
	return buf
}

// Space map log word builders, shift 0.
func smOneWord(offsetSectors, runSectors uint64, free bool) uint64 {
	w := (runSectors - 1) & 0x7fff
	if free {
		w |= uint64(1) << 15
	}
	w |= (offsetSectors & 0x7fffffffffff) << 16
	return w
}

func smTwoWord(offsetSectors, runSectors, vdev uint64, alloc bool) [2]uint64 {
	w0 := uint64(3) << 62
	w0 |= ((runSectors - 1) & 0x3ffffff) << 36
	w0 |= (vdev & 0xffffff) << 12
	w1 := offsetSectors
	if !alloc {
		w1 |= uint64(1) << 63
	}
	return [2]uint64{w0, w1}
}

func smDebug(action uint64, syncPass uint16, txg uint64) uint64 {
	w := uint64(1) << 63
	w |= (action & 7) << 60
	w |= uint64(syncPass&0x3ff) << 50
	w |= txg & 0x3ffffffffffff
	return w
}

func packWords(words ...uint64) []byte {
	buf := make([]byte, 8*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	return buf
}

// newTestServices wires the full service stack over a fake pool.
func newTestServices(f *fakePool) (*ObjectService, *ZapService, *SpacemapService, *DatasetService, *GraphService) {
	objects := NewObjectService(f, f, false, nil)
	zaps := NewZapService(objects)
	spacemaps := NewSpacemapService(objects)
	datasets := NewDatasetService(objects, zaps, nil)
	graph := NewGraphService(objects, zaps)
	return objects, zaps, spacemaps, datasets, graph
}
