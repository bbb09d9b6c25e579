// Package spacemap parses space map headers and entry logs: the record
// of allocations and frees a metaslab replays to reconstruct its free
// space.
package spacemap

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-zdb/internal/types"
)

// HeaderReader provides parsing capabilities for space_map_phys_t, kept
// in the space map object's bonus buffer.
type HeaderReader struct {
	header *types.SpaceMapPhysT
	endian binary.ByteOrder
}

// NewHeaderReader creates a new header reader over the bonus buffer. Old
// pools carry only the first three words; the histogram is zero there.
func NewHeaderReader(data []byte, endian binary.ByteOrder) (*HeaderReader, error) {
	if len(data) < types.SpaceMapSizeV0 {
		return nil, fmt.Errorf("data too small for space map header: %d bytes, need at least %d",
			len(data), types.SpaceMapSizeV0)
	}

	hdr := &types.SpaceMapPhysT{
		SmpObject: endian.Uint64(data[0:8]),
		SmpLength: endian.Uint64(data[8:16]),
		SmpAlloc:  int64(endian.Uint64(data[16:24])),
	}
	if len(data) >= 64+8*types.SpaceMapHistogramSize {
		for i := 0; i < 5; i++ {
			hdr.SmpPad[i] = endian.Uint64(data[24+i*8 : 32+i*8])
		}
		for i := 0; i < types.SpaceMapHistogramSize; i++ {
			hdr.SmpHistogram[i] = endian.Uint64(data[64+i*8 : 72+i*8])
		}
	}

	return &HeaderReader{header: hdr, endian: endian}, nil
}

// Header returns the parsed space map header.
func (hr *HeaderReader) Header() *types.SpaceMapPhysT {
	return hr.header
}

func (hr *HeaderReader) Object() uint64    { return hr.header.SmpObject }
func (hr *HeaderReader) Length() uint64    { return hr.header.SmpLength }
func (hr *HeaderReader) AllocBytes() int64 { return hr.header.SmpAlloc }

// LogReader decodes a space map entry log. Offsets and runs are scaled
// into bytes using the map's base offset and shift.
type LogReader struct {
	data   []byte
	endian binary.ByteOrder
	start  uint64
	shift  uint8
}

// NewLogReader creates a new log reader over the raw log bytes. start
// and shift come from the metaslab the map belongs to; for pool-level
// maps both are zero.
func NewLogReader(data []byte, endian binary.ByteOrder, start uint64, shift uint8) (*LogReader, error) {
	if shift > 63 {
		return nil, fmt.Errorf("invalid space map shift: %d", shift)
	}
	return &LogReader{
		data:   data,
		endian: endian,
		start:  start,
		shift:  shift,
	}, nil
}

// Decode parses the whole log. On a malformed log the entries decoded
// before the fault are returned together with the error.
func (lr *LogReader) Decode() ([]types.SpaceMapEntryT, error) {
	entries := make([]types.SpaceMapEntryT, 0, len(lr.data)/8)

	off := 0
	for off+8 <= len(lr.data) {
		word := lr.endian.Uint64(lr.data[off : off+8])
		off += 8

		switch {
		case word>>62 == types.SmPrefixTwoWord:
			if off+8 > len(lr.data) {
				return entries, fmt.Errorf("two-word entry at byte %d missing second word", off-8)
			}
			second := lr.endian.Uint64(lr.data[off : off+8])
			off += 8
			entries = append(entries, types.SpaceMapEntryT{
				TwoWord: true,
				Run:     ((word >> 36 & 0x3ffffff) + 1) << lr.shift,
				Vdev:    word >> 12 & 0xffffff,
				Alloc:   second>>63 == types.SmAlloc,
				Offset:  (second&^(uint64(1)<<63))<<lr.shift + lr.start,
			})

		case word>>63 == 1:
			entries = append(entries, types.SpaceMapEntryT{
				Debug:    true,
				Action:   uint8(word >> 60 & 0x7),
				SyncPass: uint16(word >> 50 & 0x3ff),
				Txg:      word & 0x3ffffffffffff,
			})

		default:
			entries = append(entries, types.SpaceMapEntryT{
				Run:    (word&0x7fff + 1) << lr.shift,
				Alloc:  word>>15&1 == types.SmAlloc,
				Offset: (word>>16&0x7fffffffffff)<<lr.shift + lr.start,
			})
		}
	}

	if off != len(lr.data) {
		return entries, fmt.Errorf("space map log has %d trailing bytes", len(lr.data)-off)
	}
	return entries, nil
}
