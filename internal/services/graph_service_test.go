package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-zdb/internal/types"
)

func TestEdgesFromBonus(t *testing.T) {
	f := newFakePool()
	buildTestMOS(f)
	_, _, _, _, graph := newTestServices(f)

	edges, err := graph.EdgesFrom(context.Background(), 10)
	require.NoError(t, err)

	labels := map[string]uint64{}
	for _, e := range edges {
		assert.Equal(t, uint64(10), e.From)
		labels[e.Label] = e.To
	}
	assert.Equal(t, map[string]uint64{
		"head_dataset_obj": 21,
		"child_dir_zapobj": 11,
	}, labels)
}

func TestEdgesFromZapValues(t *testing.T) {
	f := newFakePool()
	buildTestMOS(f)
	_, _, _, _, graph := newTestServices(f)

	// Object 11 is the child directory ZAP; both values resolve to live
	// DSL directory objects.
	edges, err := graph.EdgesFrom(context.Background(), 11)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, SemanticEdge{From: 11, To: 12, Label: "vol"}, edges[0])
	assert.Equal(t, SemanticEdge{From: 11, To: 13, Label: "home"}, edges[1])
}

func TestEdgesFromZapCap(t *testing.T) {
	f := newFakePool()
	pairs := make([]mzapPair, 0, maxZapEdges+6)
	for i := 0; i < maxZapEdges+6; i++ {
		target := uint64(100 + i)
		f.putObject(testObject{id: target, dnType: types.DmuOtPlainOther})
		pairs = append(pairs, mzapPair{name: fmt.Sprintf("ref%03d", i), value: target})
	}
	f.putDataObject(testObject{id: 50, dnType: types.DmuOtObjectDirectory},
		buildMicrozap(8192, pairs...))
	_, _, _, _, graph := newTestServices(f)

	edges, err := graph.EdgesFrom(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, edges, maxZapEdges)
}

func TestWalkBlockTreeFlat(t *testing.T) {
	f := newFakePool()
	regular := packBlkptrSlot(testBlkptr{
		dmuType: types.DmuOtPlainFileContents,
		comp:    types.CompressOff,
		lsize:   512, psize: 512,
		offset: f.addBlock(fillBlock(512, 0x01)),
	})
	hole := make([]byte, types.SpaBlkptrSize)
	f.putObject(testObject{
		id:      6,
		dnType:  types.DmuOtPlainFileContents,
		blkptrs: [][]byte{regular, hole},
	})
	_, _, _, _, graph := newTestServices(f)

	tree, err := graph.WalkBlockTree(context.Background(), 6, BlockTreeQuery{})
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 2)
	assert.False(t, tree.Truncated)

	assert.Equal(t, -1, tree.Nodes[0].Parent)
	assert.Equal(t, 0, tree.Nodes[0].Depth)
	assert.False(t, tree.Nodes[0].Blkptr.IsHole)
	assert.True(t, tree.Nodes[1].Blkptr.IsHole)
}

// putIndirectObject installs a two-level object whose single indirect
// block carries two level-0 pointers.
func (f *fakePool) putIndirectObject(id uint64) {
	indirect := make([]byte, 1024)
	for i := 0; i < 2; i++ {
		copy(indirect[i*types.SpaBlkptrSize:], packBlkptrSlot(testBlkptr{
			dmuType: types.DmuOtPlainFileContents,
			comp:    types.CompressOff,
			lsize:   512, psize: 512,
			offset: f.addBlock(fillBlock(512, byte(i+1))),
		}))
	}
	top := packBlkptrSlot(testBlkptr{
		level:   1,
		dmuType: types.DmuOtPlainFileContents,
		comp:    types.CompressOff,
		lsize:   1024, psize: 1024,
		offset: f.addBlock(indirect),
	})
	f.putObject(testObject{
		id:          id,
		dnType:      types.DmuOtPlainFileContents,
		levels:      2,
		indblkshift: 10,
		datablksec:  1,
		maxblkid:    7,
		blkptrs:     [][]byte{top},
	})
}

func TestWalkBlockTreeIndirect(t *testing.T) {
	f := newFakePool()
	f.putIndirectObject(7)
	_, _, _, _, graph := newTestServices(f)

	tree, err := graph.WalkBlockTree(context.Background(), 7, BlockTreeQuery{})
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 3)

	root := tree.Nodes[0]
	assert.Equal(t, uint8(1), root.Blkptr.Level)
	assert.Equal(t, -1, root.Parent)

	for _, n := range tree.Nodes[1:] {
		assert.Equal(t, root.ID, n.Parent)
		assert.Equal(t, 1, n.Depth)
		assert.Equal(t, uint8(0), n.Blkptr.Level)
	}
}

func TestWalkBlockTreeNodeCap(t *testing.T) {
	f := newFakePool()
	f.putIndirectObject(7)
	_, _, _, _, graph := newTestServices(f)

	tree, err := graph.WalkBlockTree(context.Background(), 7, BlockTreeQuery{MaxNodes: 1})
	require.NoError(t, err)
	assert.Len(t, tree.Nodes, 1)
	assert.True(t, tree.Truncated)
}

func TestWalkBlockTreeUnreadableIndirect(t *testing.T) {
	f := newFakePool()
	top := packBlkptrSlot(testBlkptr{
		level:   1,
		dmuType: types.DmuOtPlainFileContents,
		comp:    types.CompressOff,
		lsize:   1024, psize: 1024,
		offset: 32 << 20, // nothing registered there
	})
	f.putObject(testObject{
		id:          7,
		dnType:      types.DmuOtPlainFileContents,
		levels:      2,
		indblkshift: 10,
		datablksec:  1,
		blkptrs:     [][]byte{top},
	})
	_, _, _, _, graph := newTestServices(f)

	tree, err := graph.WalkBlockTree(context.Background(), 7, BlockTreeQuery{})
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 1)
	assert.NotEmpty(t, tree.Nodes[0].Blkptr.Error)
}

func TestWalkBlockTreeInvalidDepth(t *testing.T) {
	f := newFakePool()
	f.putObject(testObject{id: 2, dnType: types.DmuOtPlainFileContents})
	_, _, _, _, graph := newTestServices(f)

	_, err := graph.WalkBlockTree(context.Background(), 2, BlockTreeQuery{MaxDepth: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
