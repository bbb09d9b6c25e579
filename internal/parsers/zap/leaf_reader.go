package zap

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-zdb/internal/types"
)

// LeafReader provides parsing capabilities for zap_leaf_phys_t blocks.
// A leaf holds a hash table of chunk ids followed by a chunk array;
// entry chunks chain to array chunks carrying name and value bytes.
type LeafReader struct {
	header     *types.ZapLeafHeaderT
	data       []byte
	endian     binary.ByteOrder
	blockShift int
	numChunks  int
	hashOff    int
	chunkOff   int
}

// LeafEntry is one decoded fatzap entry. Value holds the raw array
// bytes; multi-byte integers are stored big-endian regardless of the
// pool's byte order.
type LeafEntry struct {
	Name    string
	IntSize uint8
	NumInts uint64
	Value   []byte
	Cd      uint16
	Hash    uint64
}

// NewLeafReader creates a new leaf reader over one leaf block.
func NewLeafReader(data []byte, endian binary.ByteOrder) (*LeafReader, error) {
	if len(data) < 512 || len(data)&(len(data)-1) != 0 {
		return nil, fmt.Errorf("invalid leaf block size: %d bytes", len(data))
	}

	hdr := &types.ZapLeafHeaderT{
		LhBlockType: endian.Uint64(data[0:8]),
		LhPad1:      endian.Uint64(data[8:16]),
		LhPrefix:    endian.Uint64(data[16:24]),
		LhMagic:     endian.Uint32(data[24:28]),
		LhNfree:     endian.Uint16(data[28:30]),
		LhNentries:  endian.Uint16(data[30:32]),
		LhPrefixLen: endian.Uint16(data[32:34]),
		LhFreelist:  endian.Uint16(data[34:36]),
		LhFlags:     data[36],
	}
	if hdr.LhBlockType != types.ZbtLeaf {
		return nil, fmt.Errorf("invalid leaf block type: 0x%x", hdr.LhBlockType)
	}
	if hdr.LhMagic != types.ZapLeafMagic {
		return nil, fmt.Errorf("invalid leaf magic: 0x%x, want 0x%x",
			hdr.LhMagic, uint32(types.ZapLeafMagic))
	}

	blockShift := 0
	for 1<<blockShift < len(data) {
		blockShift++
	}
	hashEntries := types.ZapLeafHashEntries(blockShift)

	return &LeafReader{
		header:     hdr,
		data:       data,
		endian:     endian,
		blockShift: blockShift,
		numChunks:  types.ZapLeafChunkCount(blockShift),
		hashOff:    types.ZapLeafHdrSize,
		chunkOff:   types.ZapLeafHdrSize + 2*hashEntries,
	}, nil
}

// Header returns the parsed leaf header.
func (lr *LeafReader) Header() *types.ZapLeafHeaderT {
	return lr.header
}

// NumEntries returns the entry count recorded in the header.
func (lr *LeafReader) NumEntries() uint16 {
	return lr.header.LhNentries
}

// Prefix returns the hash prefix this leaf covers and its bit length.
func (lr *LeafReader) Prefix() (uint64, uint16) {
	return lr.header.LhPrefix, lr.header.LhPrefixLen
}

func (lr *LeafReader) chunk(id uint16) ([]byte, error) {
	if int(id) >= lr.numChunks {
		return nil, fmt.Errorf("leaf chunk id %d out of range 0..%d", id, lr.numChunks-1)
	}
	off := lr.chunkOff + int(id)*types.ZapLeafChunkSize
	return lr.data[off : off+types.ZapLeafChunkSize], nil
}

// entryChunk parses an entry chunk.
func (lr *LeafReader) entryChunk(id uint16) (*types.ZapLeafEntryT, error) {
	c, err := lr.chunk(id)
	if err != nil {
		return nil, err
	}
	if c[0] != types.ZapChunkEntry {
		return nil, fmt.Errorf("leaf chunk %d is not an entry chunk: type %d", id, c[0])
	}
	return &types.ZapLeafEntryT{
		LeType:         c[0],
		LeValueIntlen:  c[1],
		LeNext:         lr.endian.Uint16(c[2:4]),
		LeNameChunk:    lr.endian.Uint16(c[4:6]),
		LeNameNumints:  lr.endian.Uint16(c[6:8]),
		LeValueChunk:   lr.endian.Uint16(c[8:10]),
		LeValueNumints: lr.endian.Uint16(c[10:12]),
		LeCd:           lr.endian.Uint16(c[12:14]),
		LeHash:         lr.endian.Uint64(c[16:24]),
	}, nil
}

// readArray follows an array chunk chain and collects n bytes.
func (lr *LeafReader) readArray(id uint16, n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	for n > 0 {
		if id == types.ZapChainEnd {
			return nil, fmt.Errorf("leaf array chain ended %d bytes short", n)
		}
		c, err := lr.chunk(id)
		if err != nil {
			return nil, err
		}
		if c[0] != types.ZapChunkArray {
			return nil, fmt.Errorf("leaf chunk %d is not an array chunk: type %d", id, c[0])
		}
		take := types.ZapLeafArrayLen
		if n < take {
			take = n
		}
		buf = append(buf, c[1:1+take]...)
		n -= take
		id = lr.endian.Uint16(c[22:24])
	}
	return buf, nil
}

// Entries decodes every entry in the leaf by walking the hash table
// buckets in order, so enumeration is deterministic for a given block.
func (lr *LeafReader) Entries() ([]LeafEntry, error) {
	hashEntries := types.ZapLeafHashEntries(lr.blockShift)
	entries := make([]LeafEntry, 0, lr.header.LhNentries)

	for bucket := 0; bucket < hashEntries; bucket++ {
		id := lr.endian.Uint16(lr.data[lr.hashOff+2*bucket : lr.hashOff+2*bucket+2])
		for steps := 0; id != types.ZapChainEnd; steps++ {
			// A chain longer than the chunk array is a cycle.
			if steps > lr.numChunks {
				return entries, fmt.Errorf("leaf entry chain does not terminate in bucket %d", bucket)
			}
			le, err := lr.entryChunk(id)
			if err != nil {
				return entries, err
			}
			entry, err := lr.decodeEntry(le)
			if err != nil {
				return entries, err
			}
			entries = append(entries, entry)
			id = le.LeNext
		}
	}
	return entries, nil
}

func (lr *LeafReader) decodeEntry(le *types.ZapLeafEntryT) (LeafEntry, error) {
	nameBytes, err := lr.readArray(le.LeNameChunk, int(le.LeNameNumints))
	if err != nil {
		return LeafEntry{}, fmt.Errorf("failed to read entry name: %w", err)
	}
	// The stored name includes its NUL terminator.
	if n := len(nameBytes); n > 0 && nameBytes[n-1] == 0 {
		nameBytes = nameBytes[:n-1]
	}

	intSize := int(le.LeValueIntlen)
	if intSize == 0 {
		return LeafEntry{}, fmt.Errorf("entry %q has zero value integer size", nameBytes)
	}
	value, err := lr.readArray(le.LeValueChunk, intSize*int(le.LeValueNumints))
	if err != nil {
		return LeafEntry{}, fmt.Errorf("failed to read entry value: %w", err)
	}

	return LeafEntry{
		Name:    string(nameBytes),
		IntSize: le.LeValueIntlen,
		NumInts: uint64(le.LeValueNumints),
		Value:   value,
		Cd:      le.LeCd,
		Hash:    le.LeHash,
	}, nil
}
