package services

import (
	"context"
	"fmt"

	"github.com/deploymenttheory/go-zdb/internal/parsers/blockpointer"
	"github.com/deploymenttheory/go-zdb/internal/types"
)

const (
	// At most this many ZAP-derived reference edges per object.
	maxZapEdges = 64

	// Block tree traversal ceiling when the caller sets none.
	defaultBlockTreeNodes = 10000
)

// GraphService derives the semantic object graph: labeled references
// recovered from decoded bonus buffers and ZAP values, plus physical
// block pointer trees.
type GraphService struct {
	objects *ObjectService
	zaps    *ZapService
}

// NewGraphService creates a new graph service.
func NewGraphService(objects *ObjectService, zaps *ZapService) *GraphService {
	return &GraphService{objects: objects, zaps: zaps}
}

// EdgesFrom returns every labeled edge leaving an object: bonus buffer
// references, and for ZAP objects the entries whose values resolve to
// live objects.
func (s *GraphService) EdgesFrom(ctx context.Context, id uint64) ([]SemanticEdge, error) {
	info, err := s.objects.GetObject(ctx, id)
	if err != nil {
		return nil, err
	}
	edges := info.Edges

	if info.IsZap {
		zapEdges, err := s.zapRefEdges(ctx, id)
		if err != nil {
			return edges, err
		}
		edges = append(edges, zapEdges...)
	}
	return edges, nil
}

func (s *GraphService) zapRefEdges(ctx context.Context, id uint64) ([]SemanticEdge, error) {
	var edges []SemanticEdge
	cursor := uint64(0)
	for {
		page, err := s.zaps.Entries(ctx, id, cursor, MaxListLimit)
		if page != nil {
			for _, e := range page.Entries {
				if !e.MaybeObjectRef {
					continue
				}
				edges = append(edges, SemanticEdge{From: id, To: e.TargetObj, Label: e.Name})
				if len(edges) == maxZapEdges {
					return edges, nil
				}
			}
		}
		if err != nil {
			return edges, err
		}
		if page.NextCursor == 0 {
			return edges, nil
		}
		cursor = page.NextCursor
	}
}

// BlockTreeNode is one visited block pointer in a traversal. Parent is
// the index of the referring node within the result, -1 for roots.
type BlockTreeNode struct {
	ID     int        `json:"id"`
	Parent int        `json:"parent"`
	Depth  int        `json:"depth"`
	Blkptr BlkptrInfo `json:"blkptr"`
}

// BlockTree is a breadth-first traversal of an object's indirection
// tree.
type BlockTree struct {
	Object    uint64          `json:"object"`
	Nodes     []BlockTreeNode `json:"nodes"`
	Truncated bool            `json:"truncated"`
}

// BlockTreeQuery bounds a traversal. Zero values mean unbounded depth
// and the default node ceiling.
type BlockTreeQuery struct {
	MaxDepth int
	MaxNodes int
}

// WalkBlockTree traverses an object's block pointer tree breadth-first,
// decoding indirect blocks as it descends. Holes terminate their
// branch; an unreadable indirect block degrades its node to an error
// entry and skips its children.
func (s *GraphService) WalkBlockTree(ctx context.Context, id uint64, q BlockTreeQuery) (*BlockTree, error) {
	if q.MaxNodes <= 0 {
		q.MaxNodes = defaultBlockTreeNodes
	}
	if q.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: max depth %d is negative", ErrInvalidArgument, q.MaxDepth)
	}

	dn, err := s.objects.openDnode(ctx, id)
	if err != nil {
		return nil, err
	}
	endian := s.objects.source.Endian()
	dr := s.objects.dataReader(dn)

	type workItem struct {
		slot   []byte
		parent int
		depth  int
		index  int
	}

	tree := &BlockTree{Object: id}
	var queue []workItem
	for i := 0; i < int(dn.NumBlkptrs()); i++ {
		slot, err := dn.BlkptrSlot(i)
		if err != nil {
			continue
		}
		queue = append(queue, workItem{slot: slot, parent: -1, index: i})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if len(tree.Nodes) == q.MaxNodes {
			tree.Truncated = true
			break
		}

		info := blkptrInfo(item.slot, endian, item.index, false)
		node := BlockTreeNode{
			ID:     len(tree.Nodes),
			Parent: item.parent,
			Depth:  item.depth,
			Blkptr: info,
		}
		tree.Nodes = append(tree.Nodes, node)

		if info.Error != "" || info.IsHole || info.IsEmbedded || info.Level == 0 {
			continue
		}
		if q.MaxDepth != 0 && item.depth+1 > q.MaxDepth {
			tree.Truncated = true
			continue
		}

		bp, err := blockpointer.NewReader(item.slot, endian)
		if err != nil {
			continue
		}
		block, err := dr.ReadBlkptr(ctx, bp)
		if err != nil {
			tree.Nodes[node.ID].Blkptr.Error = err.Error()
			continue
		}
		for off, idx := 0, 0; off+types.SpaBlkptrSize <= len(block); off, idx = off+types.SpaBlkptrSize, idx+1 {
			child := block[off : off+types.SpaBlkptrSize]
			if isZeroBlkptr(child) {
				continue
			}
			queue = append(queue, workItem{
				slot:   child,
				parent: node.ID,
				depth:  item.depth + 1,
				index:  idx,
			})
		}
	}
	return tree, nil
}

// isZeroBlkptr reports an entirely zero slot, which a hole at level>0
// produces for every unoccupied child position.
func isZeroBlkptr(slot []byte) bool {
	for _, b := range slot {
		if b != 0 {
			return false
		}
	}
	return true
}
