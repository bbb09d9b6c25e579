package services

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/deploymenttheory/go-zdb/internal/parsers/dnode"
	"github.com/deploymenttheory/go-zdb/internal/parsers/spacemap"
	"github.com/deploymenttheory/go-zdb/internal/types"
)

// SpacemapService reads space map objects: header summaries, range
// histograms and filtered range listings.
type SpacemapService struct {
	objects *ObjectService
}

// NewSpacemapService creates a new space map service.
func NewSpacemapService(objects *ObjectService) *SpacemapService {
	return &SpacemapService{objects: objects}
}

// SpacemapSummary aggregates one space map's whole entry log.
type SpacemapSummary struct {
	Object      uint64            `json:"object"`
	Length      uint64            `json:"length"`
	HeaderAlloc int64             `json:"header_alloc"`
	NumEntries  uint64            `json:"num_entries"`
	AllocCount  uint64            `json:"alloc_count"`
	FreeCount   uint64            `json:"free_count"`
	DebugCount  uint64            `json:"debug_count"`
	AllocBytes  uint64            `json:"alloc_bytes"`
	FreeBytes   uint64            `json:"free_bytes"`
	NetBytes    int64             `json:"net_bytes"`
	TxgMin      uint64            `json:"txg_min,omitempty"`
	TxgMax      uint64            `json:"txg_max,omitempty"`
	Histogram   []HistogramBucket `json:"histogram,omitempty"`
}

// HistogramBucket counts ranges whose length falls in a power-of-two
// interval. Empty buckets are omitted.
type HistogramBucket struct {
	MinLength  uint64 `json:"min_length"`
	MaxLength  uint64 `json:"max_length"`
	AllocCount uint64 `json:"alloc_count"`
	FreeCount  uint64 `json:"free_count"`
}

// openSpacemap opens an object and checks it carries a space map.
func (s *SpacemapService) openSpacemap(ctx context.Context, id uint64) (*dnode.Reader, *spacemap.HeaderReader, error) {
	dn, err := s.objects.openDnode(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if dn.Type() != types.DmuOtSpaceMap && dn.BonusType() != types.DmuOtSpaceMapHeader {
		return nil, nil, fmt.Errorf("%w: object %d is %s, not a space map",
			ErrInvalidArgument, id, dn.TypeName())
	}
	hdr, err := spacemap.NewHeaderReader(dn.Bonus(), s.objects.source.Endian())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: object %d: %v", ErrCorrupt, id, err)
	}
	return dn, hdr, nil
}

// decodeLog reads and decodes the whole entry log. On a truncated or
// malformed log the entries decoded so far are returned with the error.
func (s *SpacemapService) decodeLog(ctx context.Context, dn *dnode.Reader, hdr *spacemap.HeaderReader) ([]types.SpaceMapEntryT, error) {
	length := hdr.Length()
	size := (dn.MaxBlockID() + 1) * uint64(dn.DataBlockSize())
	var sizeErr error
	if length > size {
		sizeErr = fmt.Errorf("log length %d exceeds object size %d", length, size)
		length = size
	}

	dr := s.objects.dataReader(dn)
	raw, err := dr.ReadBytes(ctx, 0, length)
	if err != nil {
		return nil, err
	}

	lr, err := spacemap.NewLogReader(raw, s.objects.source.Endian(), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	entries, err := lr.Decode()
	if err == nil {
		err = sizeErr
	}
	return entries, err
}

// Summary scans the whole log and aggregates it.
func (s *SpacemapService) Summary(ctx context.Context, id uint64) (*SpacemapSummary, error) {
	dn, hdr, err := s.openSpacemap(ctx, id)
	if err != nil {
		return nil, err
	}

	entries, decodeErr := s.decodeLog(ctx, dn, hdr)
	if entries == nil && decodeErr != nil {
		return nil, decodeErr
	}

	sum := &SpacemapSummary{
		Object:      id,
		Length:      hdr.Length(),
		HeaderAlloc: hdr.AllocBytes(),
	}

	var hist [64]HistogramBucket
	for _, e := range entries {
		sum.NumEntries++
		if e.Debug {
			sum.DebugCount++
			if e.Txg != 0 {
				if sum.TxgMin == 0 || e.Txg < sum.TxgMin {
					sum.TxgMin = e.Txg
				}
				if e.Txg > sum.TxgMax {
					sum.TxgMax = e.Txg
				}
			}
			continue
		}
		bucket := &hist[log2Bucket(e.Run)]
		if e.Alloc {
			sum.AllocCount++
			sum.AllocBytes += e.Run
			bucket.AllocCount++
		} else {
			sum.FreeCount++
			sum.FreeBytes += e.Run
			bucket.FreeCount++
		}
	}
	sum.NetBytes = int64(sum.AllocBytes) - int64(sum.FreeBytes)

	for i, b := range hist {
		if b.AllocCount == 0 && b.FreeCount == 0 {
			continue
		}
		b.MinLength = uint64(1) << i
		b.MaxLength = uint64(1)<<(i+1) - 1
		sum.Histogram = append(sum.Histogram, b)
	}

	if decodeErr != nil {
		return sum, fmt.Errorf("%w: object %d: %v", ErrCorrupt, id, decodeErr)
	}
	return sum, nil
}

// log2Bucket places a range length in its power-of-two histogram
// bucket.
func log2Bucket(length uint64) int {
	if length == 0 {
		return 0
	}
	return 63 - bits.LeadingZeros64(length)
}

// RangeQuery filters and pages a space map's range entries.
type RangeQuery struct {
	// Op is "all", "alloc" or "free".
	Op        string
	MinLength uint64

	// Txg bounds match ranges against the debug entry preceding them;
	// zero leaves the bound open.
	TxgMin uint64
	TxgMax uint64

	// Cursor counts matching ranges already consumed.
	Cursor uint64
	Limit  int
}

// SpacemapRange is one allocation or free record.
type SpacemapRange struct {
	Op       string `json:"op"`
	Offset   uint64 `json:"offset"`
	Length   uint64 `json:"length"`
	Vdev     uint64 `json:"vdev,omitempty"`
	Txg      uint64 `json:"txg,omitempty"`
	SyncPass uint16 `json:"sync_pass,omitempty"`
}

// SpacemapRangePage is one page of range records.
type SpacemapRangePage struct {
	Object     uint64          `json:"object"`
	Ranges     []SpacemapRange `json:"ranges"`
	NextCursor uint64          `json:"next_cursor"`
}

// Ranges lists the log's range entries with filtering and skip-count
// pagination. On a malformed log the matches collected before the fault
// are returned with the error.
func (s *SpacemapService) Ranges(ctx context.Context, id uint64, q RangeQuery) (*SpacemapRangePage, error) {
	if q.Op == "" {
		q.Op = "all"
	}
	if q.Op != "all" && q.Op != "alloc" && q.Op != "free" {
		return nil, fmt.Errorf("%w: op %q, want all, alloc or free", ErrInvalidArgument, q.Op)
	}
	limit, err := normalizeLimit(q.Limit)
	if err != nil {
		return nil, err
	}

	dn, hdr, err := s.openSpacemap(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, decodeErr := s.decodeLog(ctx, dn, hdr)
	if entries == nil && decodeErr != nil {
		return nil, decodeErr
	}

	page := &SpacemapRangePage{Object: id, Ranges: make([]SpacemapRange, 0, limit)}
	var (
		matched uint64
		more    bool
		curTxg  uint64
		curPass uint16
	)

	for _, e := range entries {
		if e.Debug {
			curTxg = e.Txg
			curPass = e.SyncPass
			continue
		}
		if q.Op == "alloc" && !e.Alloc || q.Op == "free" && e.Alloc {
			continue
		}
		if e.Run < q.MinLength {
			continue
		}
		if q.TxgMin != 0 && curTxg < q.TxgMin {
			continue
		}
		if q.TxgMax != 0 && (curTxg == 0 || curTxg > q.TxgMax) {
			continue
		}

		matched++
		if matched <= q.Cursor {
			continue
		}
		if len(page.Ranges) == limit {
			more = true
			break
		}
		op := "free"
		if e.Alloc {
			op = "alloc"
		}
		page.Ranges = append(page.Ranges, SpacemapRange{
			Op:       op,
			Offset:   e.Offset,
			Length:   e.Run,
			Vdev:     e.Vdev,
			Txg:      curTxg,
			SyncPass: curPass,
		})
	}

	if more {
		page.NextCursor = q.Cursor + uint64(len(page.Ranges))
	}
	if decodeErr != nil {
		return page, fmt.Errorf("%w: object %d: %v", ErrCorrupt, id, decodeErr)
	}
	return page, nil
}
