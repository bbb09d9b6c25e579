package zap

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-zdb/internal/types"
)

// MicrozapReader provides parsing capabilities for mzap_phys_t blocks.
// A microzap is a single block of 64-byte entries, each holding a short
// name and a single uint64 value.
type MicrozapReader struct {
	header  *types.MzapPhysT
	entries []MicrozapEntry
	endian  binary.ByteOrder
}

// MicrozapEntry is one decoded live entry.
type MicrozapEntry struct {
	Name  string
	Value uint64
	Cd    uint32
}

// NewMicrozapReader creates a new microzap reader over the object's
// single data block.
func NewMicrozapReader(data []byte, endian binary.ByteOrder) (*MicrozapReader, error) {
	if len(data) < 2*types.MzapEntSize {
		return nil, fmt.Errorf("data too small for microzap: %d bytes, need at least %d",
			len(data), 2*types.MzapEntSize)
	}

	hdr := &types.MzapPhysT{
		MzBlockType: endian.Uint64(data[0:8]),
		MzSalt:      endian.Uint64(data[8:16]),
		MzNormflags: endian.Uint64(data[16:24]),
	}
	if hdr.MzBlockType != types.ZbtMicro {
		return nil, fmt.Errorf("invalid microzap block type: 0x%x", hdr.MzBlockType)
	}

	// The first 64-byte chunk is the header; every following chunk is an
	// entry slot. Slots with an empty name are free.
	numChunks := len(data)/types.MzapEntSize - 1
	entries := make([]MicrozapEntry, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		off := (i + 1) * types.MzapEntSize
		name := data[off+14 : off+14+types.MzapNameLen]
		if name[0] == 0 {
			continue
		}
		if idx := bytes.IndexByte(name, 0); idx >= 0 {
			name = name[:idx]
		}
		entries = append(entries, MicrozapEntry{
			Name:  string(name),
			Value: endian.Uint64(data[off : off+8]),
			Cd:    endian.Uint32(data[off+8 : off+12]),
		})
	}

	return &MicrozapReader{
		header:  hdr,
		entries: entries,
		endian:  endian,
	}, nil
}

// Salt returns the hash salt recorded in the header.
func (mr *MicrozapReader) Salt() uint64 {
	return mr.header.MzSalt
}

// NormFlags returns the name normalization flags.
func (mr *MicrozapReader) NormFlags() uint64 {
	return mr.header.MzNormflags
}

// NumEntries returns the number of live entries.
func (mr *MicrozapReader) NumEntries() uint64 {
	return uint64(len(mr.entries))
}

// Entries returns the live entries in block order.
func (mr *MicrozapReader) Entries() []MicrozapEntry {
	return mr.entries
}
