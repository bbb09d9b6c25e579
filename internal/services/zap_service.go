package services

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/deploymenttheory/go-zdb/internal/parsers/dnode"
	"github.com/deploymenttheory/go-zdb/internal/parsers/zap"
	"github.com/deploymenttheory/go-zdb/internal/types"
)

const (
	// Values larger than this are previewed from their first megabyte
	// and flagged truncated.
	maxZapValueBytes = 1 << 20

	// Integer array previews show at most this many numbers.
	maxPreviewInts = 8

	// Byte array previews show at most this many bytes of hex.
	maxPreviewBytes = 128
)

// ZapService reads ZAP objects: format detection, header geometry and
// paginated entry enumeration.
type ZapService struct {
	objects *ObjectService
}

// NewZapService creates a new ZAP service.
func NewZapService(objects *ObjectService) *ZapService {
	return &ZapService{objects: objects}
}

// ZapInfo describes a ZAP object's format and geometry.
type ZapInfo struct {
	Object     uint64         `json:"object"`
	Kind       string         `json:"kind"`
	NumEntries uint64         `json:"num_entries"`
	NumBlocks  uint64         `json:"num_blocks"`
	NumLeafs   uint64         `json:"num_leafs,omitempty"`
	BlockSize  int            `json:"block_size"`
	Magic      uint64         `json:"magic,omitempty"`
	Salt       uint64         `json:"salt"`
	NormFlags  uint64         `json:"normflags"`
	Flags      uint64         `json:"zap_flags,omitempty"`
	Ptrtbl     *ZapPtrtblInfo `json:"ptrtbl,omitempty"`
}

// ZapPtrtblInfo is the fatzap pointer table geometry.
type ZapPtrtblInfo struct {
	Blk      uint64 `json:"blk"`
	Numblks  uint64 `json:"numblks"`
	Shift    uint64 `json:"shift"`
	Embedded bool   `json:"embedded"`
}

// openZap opens an object and checks it is a ZAP.
func (s *ZapService) openZap(ctx context.Context, id uint64) (*dnode.Reader, *DataReader, []byte, error) {
	dn, err := s.objects.openDnode(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if !dn.Type().IsZap() {
		return nil, nil, nil, fmt.Errorf("%w: object %d is %s, not a ZAP",
			ErrInvalidArgument, id, dn.TypeName())
	}
	dr := s.objects.dataReader(dn)
	block0, err := dr.ReadBlock(ctx, 0)
	if err != nil {
		return nil, nil, nil, err
	}
	return dn, dr, block0, nil
}

// Info reports a ZAP object's format and geometry.
func (s *ZapService) Info(ctx context.Context, id uint64) (*ZapInfo, error) {
	dn, _, block0, err := s.openZap(ctx, id)
	if err != nil {
		return nil, err
	}
	endian := s.objects.source.Endian()

	kind, err := zap.Kind(block0, endian)
	if err != nil {
		return nil, fmt.Errorf("%w: object %d: %v", ErrCorrupt, id, err)
	}

	info := &ZapInfo{
		Object:    id,
		Kind:      kind.String(),
		NumBlocks: dn.MaxBlockID() + 1,
		BlockSize: int(dn.DataBlockSize()),
	}

	if kind == types.ZapKindMicro {
		mr, err := zap.NewMicrozapReader(block0, endian)
		if err != nil {
			return nil, fmt.Errorf("%w: object %d: %v", ErrCorrupt, id, err)
		}
		info.NumEntries = mr.NumEntries()
		info.Salt = mr.Salt()
		info.NormFlags = mr.NormFlags()
		return info, nil
	}

	fr, err := zap.NewFatzapHeaderReader(block0, endian)
	if err != nil {
		return nil, fmt.Errorf("%w: object %d: %v", ErrCorrupt, id, err)
	}
	pt := fr.PointerTable()
	info.NumEntries = fr.NumEntries()
	info.NumLeafs = fr.NumLeafs()
	info.Magic = fr.Magic()
	info.Salt = fr.Salt()
	info.NormFlags = fr.NormFlags()
	info.Flags = fr.Flags()
	info.Ptrtbl = &ZapPtrtblInfo{
		Blk:      pt.ZtBlk,
		Numblks:  pt.ZtNumblks,
		Shift:    pt.ZtShift,
		Embedded: fr.HasEmbeddedPointerTable(),
	}
	return info, nil
}

// ZapEntry is one decoded name/value pair.
type ZapEntry struct {
	Name           string  `json:"name"`
	IntegerLength  uint8   `json:"integer_length"`
	NumIntegers    uint64  `json:"num_integers"`
	ValuePreview   string  `json:"value_preview"`
	ValueU64       *uint64 `json:"value_u64,omitempty"`
	MaybeObjectRef bool    `json:"maybe_object_ref,omitempty"`
	TargetObj      uint64  `json:"target_obj,omitempty"`
	Truncated      bool    `json:"truncated,omitempty"`
}

// ZapEntryPage is one page of entries.
type ZapEntryPage struct {
	Object     uint64     `json:"object"`
	Entries    []ZapEntry `json:"entries"`
	NextCursor uint64     `json:"next_cursor"`
}

// Entries enumerates a page of ZAP entries. The cursor counts entries
// already consumed; enumeration order is deterministic for a given
// image. On a corrupt leaf the page collected so far is returned with
// the error.
func (s *ZapService) Entries(ctx context.Context, id uint64, cursor uint64, limit int) (*ZapEntryPage, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	dn, dr, block0, err := s.openZap(ctx, id)
	if err != nil {
		return nil, err
	}
	endian := s.objects.source.Endian()

	kind, err := zap.Kind(block0, endian)
	if err != nil {
		return nil, fmt.Errorf("%w: object %d: %v", ErrCorrupt, id, err)
	}

	page := &ZapEntryPage{Object: id, Entries: make([]ZapEntry, 0, limit)}
	seen := uint64(0)
	more := false

	visit := func(e ZapEntry) bool {
		seen++
		if seen <= cursor {
			return true
		}
		if len(page.Entries) == limit {
			more = true
			return false
		}
		page.Entries = append(page.Entries, e)
		return true
	}

	var walkErr error
	if kind == types.ZapKindMicro {
		walkErr = s.walkMicro(ctx, block0, endian, visit)
	} else {
		walkErr = s.walkFat(ctx, dn, dr, block0, endian, visit)
	}

	if more {
		page.NextCursor = cursor + uint64(len(page.Entries))
	}
	if walkErr != nil {
		return page, fmt.Errorf("%w: object %d: %v", ErrCorrupt, id, walkErr)
	}
	return page, nil
}

func (s *ZapService) walkMicro(ctx context.Context, block0 []byte, endian binary.ByteOrder, visit func(ZapEntry) bool) error {
	mr, err := zap.NewMicrozapReader(block0, endian)
	if err != nil {
		return err
	}
	for _, me := range mr.Entries() {
		v := me.Value
		e := ZapEntry{
			Name:          me.Name,
			IntegerLength: 8,
			NumIntegers:   1,
			ValuePreview:  strconv.FormatUint(v, 10),
			ValueU64:      &v,
		}
		s.probeObjectRef(ctx, &e)
		if !visit(e) {
			return nil
		}
	}
	return nil
}

func (s *ZapService) walkFat(ctx context.Context, dn *dnode.Reader, dr *DataReader, block0 []byte, endian binary.ByteOrder, visit func(ZapEntry) bool) error {
	fr, err := zap.NewFatzapHeaderReader(block0, endian)
	if err != nil {
		return err
	}

	blkids, err := s.leafBlockIDs(ctx, dr, fr, endian)
	if err != nil {
		return err
	}

	for _, blkid := range blkids {
		if blkid > dn.MaxBlockID() {
			return fmt.Errorf("pointer table references block %d beyond last block %d",
				blkid, dn.MaxBlockID())
		}
		block, err := dr.ReadBlock(ctx, blkid)
		if err != nil {
			return err
		}
		lr, err := zap.NewLeafReader(block, endian)
		if err != nil {
			return fmt.Errorf("leaf block %d: %v", blkid, err)
		}
		entries, err := lr.Entries()
		for _, le := range entries {
			e := s.decodeLeafEntry(le)
			s.probeObjectRef(ctx, &e)
			if !visit(e) {
				return nil
			}
		}
		if err != nil {
			return fmt.Errorf("leaf block %d: %v", blkid, err)
		}
	}
	return nil
}

// leafBlockIDs returns the distinct leaf block ids in pointer table
// order.
func (s *ZapService) leafBlockIDs(ctx context.Context, dr *DataReader, fr *zap.FatzapHeaderReader, endian binary.ByteOrder) ([]uint64, error) {
	var words []uint64
	if fr.HasEmbeddedPointerTable() {
		tbl, err := fr.EmbeddedPointerTable()
		if err != nil {
			return nil, err
		}
		words = tbl
	} else {
		pt := fr.PointerTable()
		for i := uint64(0); i < pt.ZtNumblks; i++ {
			block, err := dr.ReadBlock(ctx, pt.ZtBlk+i)
			if err != nil {
				return nil, err
			}
			for off := 0; off+8 <= len(block); off += 8 {
				words = append(words, endian.Uint64(block[off:off+8]))
			}
		}
	}

	blkids := make([]uint64, 0, fr.NumLeafs())
	seen := make(map[uint64]struct{}, fr.NumLeafs())
	for _, b := range words {
		if b == 0 {
			continue
		}
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		blkids = append(blkids, b)
	}
	return blkids, nil
}

func (s *ZapService) decodeLeafEntry(le zap.LeafEntry) ZapEntry {
	e := ZapEntry{
		Name:          le.Name,
		IntegerLength: le.IntSize,
		NumIntegers:   le.NumInts,
	}

	value := le.Value
	if len(value) > maxZapValueBytes {
		e.Truncated = true
		value = value[:maxZapValueBytes]
	}
	e.ValuePreview = valuePreview(le.IntSize, value)

	if le.IntSize == 8 && le.NumInts == 1 && len(le.Value) == 8 {
		v := binary.BigEndian.Uint64(le.Value)
		e.ValueU64 = &v
	}
	return e
}

// probeObjectRef marks single-integer values that resolve to a live
// object, the common "name points at object id" ZAP idiom.
func (s *ZapService) probeObjectRef(ctx context.Context, e *ZapEntry) {
	if e.ValueU64 == nil || *e.ValueU64 == 0 {
		return
	}
	maxID, err := s.objects.source.MaxObjectID(ctx)
	if err != nil || *e.ValueU64 > maxID {
		return
	}
	if _, err := s.objects.openDnode(ctx, *e.ValueU64); err != nil {
		return
	}
	e.MaybeObjectRef = true
	e.TargetObj = *e.ValueU64
}

// valuePreview renders a value for display: printable byte arrays as
// strings, other byte arrays as hex, integer arrays as their leading
// numbers.
func valuePreview(intSize uint8, value []byte) string {
	if len(value) == 0 {
		return ""
	}
	if intSize <= 1 {
		if isPrintable(value) {
			return string(value)
		}
		if len(value) > maxPreviewBytes {
			return hex.EncodeToString(value[:maxPreviewBytes]) + "..."
		}
		return hex.EncodeToString(value)
	}

	var parts []string
	for off := 0; off+int(intSize) <= len(value); off += int(intSize) {
		if len(parts) == maxPreviewInts {
			parts = append(parts, "...")
			break
		}
		var v uint64
		switch intSize {
		case 2:
			v = uint64(binary.BigEndian.Uint16(value[off : off+2]))
		case 4:
			v = uint64(binary.BigEndian.Uint32(value[off : off+4]))
		case 8:
			v = binary.BigEndian.Uint64(value[off : off+8])
		default:
			return hex.EncodeToString(value)
		}
		parts = append(parts, strconv.FormatUint(v, 10))
	}
	return strings.Join(parts, " ")
}

func isPrintable(b []byte) bool {
	for i, c := range b {
		if c == 0 && i == len(b)-1 {
			break
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
