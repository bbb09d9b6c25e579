package zap

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-zdb/internal/types"
)

// FatzapHeaderReader provides parsing capabilities for zap_phys_t, the
// fatzap header occupying logical block zero.
type FatzapHeaderReader struct {
	header *types.ZapPhysT
	data   []byte
	endian binary.ByteOrder
}

// NewFatzapHeaderReader creates a new fatzap header reader over the
// object's first data block.
func NewFatzapHeaderReader(data []byte, endian binary.ByteOrder) (*FatzapHeaderReader, error) {
	if len(data) < 128 {
		return nil, fmt.Errorf("data too small for fatzap header: %d bytes", len(data))
	}
	if len(data)&(len(data)-1) != 0 {
		return nil, fmt.Errorf("fatzap block size %d is not a power of two", len(data))
	}

	hdr := &types.ZapPhysT{}
	offset := 0
	for _, field := range []*uint64{
		&hdr.ZapBlockType, &hdr.ZapMagic,
		&hdr.ZapPtrtbl.ZtBlk, &hdr.ZapPtrtbl.ZtNumblks, &hdr.ZapPtrtbl.ZtShift,
		&hdr.ZapPtrtbl.ZtNextblk, &hdr.ZapPtrtbl.ZtBlksCopied,
		&hdr.ZapFreeblk, &hdr.ZapNumLeafs, &hdr.ZapNumEntries,
		&hdr.ZapSalt, &hdr.ZapNormflags, &hdr.ZapFlags,
	} {
		*field = endian.Uint64(data[offset : offset+8])
		offset += 8
	}

	if hdr.ZapBlockType != types.ZbtHeader {
		return nil, fmt.Errorf("invalid fatzap block type: 0x%x", hdr.ZapBlockType)
	}
	if hdr.ZapMagic != types.ZapMagic {
		return nil, fmt.Errorf("invalid fatzap magic: 0x%x, want 0x%x", hdr.ZapMagic, uint64(types.ZapMagic))
	}

	return &FatzapHeaderReader{
		header: hdr,
		data:   data,
		endian: endian,
	}, nil
}

// Header returns the parsed zap_phys_t.
func (fr *FatzapHeaderReader) Header() *types.ZapPhysT {
	return fr.header
}

func (fr *FatzapHeaderReader) NumEntries() uint64 { return fr.header.ZapNumEntries }
func (fr *FatzapHeaderReader) NumLeafs() uint64   { return fr.header.ZapNumLeafs }
func (fr *FatzapHeaderReader) Salt() uint64       { return fr.header.ZapSalt }
func (fr *FatzapHeaderReader) NormFlags() uint64  { return fr.header.ZapNormflags }
func (fr *FatzapHeaderReader) Flags() uint64      { return fr.header.ZapFlags }
func (fr *FatzapHeaderReader) Magic() uint64      { return fr.header.ZapMagic }

// PointerTable returns the pointer table geometry.
func (fr *FatzapHeaderReader) PointerTable() types.ZapTablePhysT {
	return fr.header.ZapPtrtbl
}

// HasEmbeddedPointerTable reports whether the pointer table still lives
// in the second half of the header block.
func (fr *FatzapHeaderReader) HasEmbeddedPointerTable() bool {
	return fr.header.ZapPtrtbl.ZtNumblks == 0
}

// EmbeddedPointerTable returns the leaf block ids of the embedded
// pointer table.
func (fr *FatzapHeaderReader) EmbeddedPointerTable() ([]uint64, error) {
	if !fr.HasEmbeddedPointerTable() {
		return nil, fmt.Errorf("fatzap pointer table is external: %d blocks at block %d",
			fr.header.ZapPtrtbl.ZtNumblks, fr.header.ZapPtrtbl.ZtBlk)
	}
	half := len(fr.data) / 2
	table := make([]uint64, half/8)
	for i := range table {
		table[i] = fr.endian.Uint64(fr.data[half+i*8 : half+i*8+8])
	}
	return table, nil
}
