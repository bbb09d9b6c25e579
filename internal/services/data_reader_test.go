package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-zdb/internal/parsers/blockpointer"
	"github.com/deploymenttheory/go-zdb/internal/parsers/dnode"
	"github.com/deploymenttheory/go-zdb/internal/types"
)

func openTestDnode(t *testing.T, f *fakePool, id uint64) *dnode.Reader {
	t.Helper()
	slot, err := f.ObjectSlot(context.Background(), id)
	require.NoError(t, err)
	dn, err := dnode.NewReader(slot, binary.LittleEndian)
	require.NoError(t, err)
	return dn
}

func fillBlock(size int, b byte) []byte {
	blk := make([]byte, size)
	for i := range blk {
		blk[i] = b
	}
	return blk
}

func TestDataReaderSingleLevel(t *testing.T) {
	f := newFakePool()
	b0 := fillBlock(512, 0xaa)
	b1 := fillBlock(512, 0xbb)
	f.putDataObject(testObject{id: 5, dnType: types.DmuOtPlainFileContents}, b0, b1)

	dr := NewDataReader(f, openTestDnode(t, f, 5), false)
	ctx := context.Background()

	got, err := dr.ReadBlock(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, b0, got)

	got, err = dr.ReadBlock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, b1, got)

	// Past the last block reads back as zeros.
	got, err = dr.ReadBlock(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 512), got)
}

func TestDataReaderIndirect(t *testing.T) {
	f := newFakePool()
	b0 := fillBlock(512, 0x11)
	b1 := fillBlock(512, 0x22)

	// indblkshift 10 gives 8 pointer slots per indirect block. Slots 0
	// and 1 are populated, slot 2 is a hole.
	indirect := make([]byte, 1024)
	copy(indirect[0:], packBlkptrSlot(testBlkptr{
		dmuType: types.DmuOtPlainFileContents,
		comp:    types.CompressOff,
		lsize:   512, psize: 512,
		offset: f.addBlock(b0),
	}))
	copy(indirect[types.SpaBlkptrSize:], packBlkptrSlot(testBlkptr{
		dmuType: types.DmuOtPlainFileContents,
		comp:    types.CompressOff,
		lsize:   512, psize: 512,
		offset: f.addBlock(b1),
	}))

	top := packBlkptrSlot(testBlkptr{
		level:   1,
		dmuType: types.DmuOtPlainFileContents,
		comp:    types.CompressOff,
		lsize:   1024, psize: 1024,
		offset: f.addBlock(indirect),
	})
	f.putObject(testObject{
		id:          7,
		dnType:      types.DmuOtPlainFileContents,
		levels:      2,
		indblkshift: 10,
		datablksec:  1,
		maxblkid:    7,
		blkptrs:     [][]byte{top},
	})

	dr := NewDataReader(f, openTestDnode(t, f, 7), false)
	ctx := context.Background()

	got, err := dr.ReadBlock(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, b0, got)

	got, err = dr.ReadBlock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, b1, got)

	// A zero slot inside the indirect block is a hole.
	got, err = dr.ReadBlock(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 512), got)
}

func TestDataReaderReadBytes(t *testing.T) {
	f := newFakePool()
	b0 := fillBlock(512, 0x01)
	b1 := fillBlock(512, 0x02)
	f.putDataObject(testObject{id: 3, dnType: types.DmuOtPlainFileContents}, b0, b1)

	dr := NewDataReader(f, openTestDnode(t, f, 3), false)

	got, err := dr.ReadBytes(context.Background(), 500, 24)
	require.NoError(t, err)
	require.Len(t, got, 24)
	assert.Equal(t, fillBlock(12, 0x01), got[:12])
	assert.Equal(t, fillBlock(12, 0x02), got[12:])

	got, err = dr.ReadBytes(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDataReaderLz4Block(t *testing.T) {
	f := newFakePool()
	logical := bytes.Repeat([]byte("zfs metadata "), 79)[:1024]

	compressed := make([]byte, lz4.CompressBlockBound(len(logical)))
	n, err := lz4.CompressBlock(logical, compressed, nil)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	payload := make([]byte, 512)
	require.LessOrEqual(t, 4+n, len(payload))
	binary.BigEndian.PutUint32(payload[0:4], uint32(n))
	copy(payload[4:], compressed[:n])

	f.putObject(testObject{
		id:         4,
		dnType:     types.DmuOtPlainFileContents,
		datablksec: 2,
		blkptrs: [][]byte{packBlkptrSlot(testBlkptr{
			dmuType: types.DmuOtPlainFileContents,
			comp:    types.CompressLz4,
			lsize:   1024, psize: 512,
			offset: f.addBlock(payload),
		})},
	})

	dr := NewDataReader(f, openTestDnode(t, f, 4), false)
	got, err := dr.ReadBlock(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, logical, got)
}

func TestDecompress(t *testing.T) {
	logical := bytes.Repeat([]byte("dataset "), 64)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	frame := enc.EncodeAll(logical, nil)
	require.NoError(t, enc.Close())

	zstdPayload := make([]byte, 8+len(frame))
	binary.BigEndian.PutUint32(zstdPayload[0:4], uint32(len(frame)))
	copy(zstdPayload[8:], frame)

	t.Run("off", func(t *testing.T) {
		got, err := decompress(append(logical, 0xff), types.CompressOff, uint64(len(logical)))
		require.NoError(t, err)
		assert.Equal(t, logical, got)
	})

	t.Run("off too short", func(t *testing.T) {
		_, err := decompress(logical[:10], types.CompressOff, uint64(len(logical)))
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("empty", func(t *testing.T) {
		got, err := decompress(nil, types.CompressEmpty, 256)
		require.NoError(t, err)
		assert.Equal(t, make([]byte, 256), got)
	})

	t.Run("zstd", func(t *testing.T) {
		got, err := decompress(zstdPayload, types.CompressZstd, uint64(len(logical)))
		require.NoError(t, err)
		assert.Equal(t, logical, got)
	})

	t.Run("zstd bad length", func(t *testing.T) {
		bad := make([]byte, len(zstdPayload))
		copy(bad, zstdPayload)
		binary.BigEndian.PutUint32(bad[0:4], uint32(len(bad)))
		_, err := decompress(bad, types.CompressZstd, uint64(len(logical)))
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("lz4 missing header", func(t *testing.T) {
		_, err := decompress([]byte{0x00}, types.CompressLz4, 512)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		_, err := decompress(logical, types.CompressGzip1, uint64(len(logical)))
		assert.ErrorIs(t, err, ErrUnsupported)
	})
}

// packEmbeddedBlkptr builds a slot whose payload lives in the pointer
// itself.
func packEmbeddedBlkptr(payload []byte, dmuType types.DmuObjectType) []byte {
	buf := make([]byte, types.SpaBlkptrSize)

	var prop uint64
	prop |= (uint64(len(payload)) - 1) & 0x1ffffff
	prop |= ((uint64(len(payload)) - 1) & 0x7f) << 25
	prop |= uint64(1) << 39
	prop |= uint64(types.CompressOff) << 32
	prop |= uint64(dmuType) << 48
	prop |= uint64(1) << 63
	binary.LittleEndian.PutUint64(buf[48:], prop)
	binary.LittleEndian.PutUint64(buf[80:], 55) // logical birth

	n := copy(buf[0:48], payload)
	n += copy(buf[56:80], payload[n:])
	copy(buf[88:], payload[n:])
	return buf
}

func TestReadBlockPointerEmbedded(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5a}, 90)
	bp, err := blockpointer.NewReader(packEmbeddedBlkptr(payload, types.DmuOtPackedNvlist), binary.LittleEndian)
	require.NoError(t, err)
	require.True(t, bp.IsEmbedded())

	got, err := ReadBlockPointer(context.Background(), newFakePool(), bp, false)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadBlockPointerEmbeddedUnknownType(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5a}, 16)
	slot := packEmbeddedBlkptr(payload, types.DmuOtPackedNvlist)

	// Flip the etype field to something other than BP_EMBEDDED_TYPE_DATA.
	prop := binary.LittleEndian.Uint64(slot[48:])
	prop |= uint64(2) << 40
	binary.LittleEndian.PutUint64(slot[48:], prop)

	bp, err := blockpointer.NewReader(slot, binary.LittleEndian)
	require.NoError(t, err)
	assert.EqualValues(t, 2, bp.EmbeddedType())

	_, err = ReadBlockPointer(context.Background(), newFakePool(), bp, false)
	assert.ErrorIs(t, err, ErrUnsupported, "non-data embedded payloads are not decodable")
}

func TestReadBlockPointerEncrypted(t *testing.T) {
	slot := packBlkptrSlot(testBlkptr{
		dmuType: types.DmuOtPlainFileContents,
		comp:    types.CompressOff,
		lsize:   512, psize: 512,
		offset: 1 << 20,
	})
	prop := binary.LittleEndian.Uint64(slot[48:])
	binary.LittleEndian.PutUint64(slot[48:], prop|uint64(1)<<61)

	bp, err := blockpointer.NewReader(slot, binary.LittleEndian)
	require.NoError(t, err)

	_, err = ReadBlockPointer(context.Background(), newFakePool(), bp, false)
	assert.ErrorIs(t, err, ErrKeyUnavailable)
	assert.ErrorIs(t, err, ErrIO)
}

func TestReadBlockPointerGangDvaSkipped(t *testing.T) {
	slot := packBlkptrSlot(testBlkptr{
		dmuType: types.DmuOtPlainFileContents,
		comp:    types.CompressOff,
		lsize:   512, psize: 512,
		offset: 1 << 20,
	})
	// Mark the only DVA as a gang header; no readable copy remains.
	word1 := binary.LittleEndian.Uint64(slot[8:])
	binary.LittleEndian.PutUint64(slot[8:], word1|uint64(1)<<63)

	bp, err := blockpointer.NewReader(slot, binary.LittleEndian)
	require.NoError(t, err)
	require.True(t, bp.IsGang())

	_, err = ReadBlockPointer(context.Background(), newFakePool(), bp, false)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestReadBlockPointerVerify(t *testing.T) {
	f := newFakePool()
	data := fillBlock(512, 0x77)
	slot := packBlkptrSlot(testBlkptr{
		dmuType: types.DmuOtPlainFileContents,
		comp:    types.CompressOff,
		lsize:   512, psize: 512,
		offset: f.addBlock(data),
	})
	setFletcher4(slot, data)

	bp, err := blockpointer.NewReader(slot, binary.LittleEndian)
	require.NoError(t, err)

	got, err := ReadBlockPointer(context.Background(), f, bp, true)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Flip a byte behind the checksum's back.
	corrupted := fillBlock(512, 0x77)
	corrupted[100] ^= 0xff
	f.corruptBlock(bp.Dvas()[0].Offset, corrupted)

	_, err = ReadBlockPointer(context.Background(), f, bp, true)
	assert.ErrorIs(t, err, ErrCorrupt)
}
