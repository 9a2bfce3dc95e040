package algs

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/pdat"
	"github.com/notargets/amrsync/xfer"
)

func newHierarchy(t *testing.T, maxLevels int) *hier.PatchHierarchy {
	t.Helper()
	ratios := make([]hier.IntVector, maxLevels-1)
	for i := range ratios {
		ratios[i] = hier.IntVector{2, 2}
	}
	h, err := hier.NewPatchHierarchy(2, maxLevels, ratios)
	require.NoError(t, err)
	return h
}

func TestTagBufferWidths(t *testing.T) {
	h := newHierarchy(t, 4)
	r, err := NewTagBufferWidthRequestor([]int{3, 1})
	require.NoError(t, err)
	self, fine, err := r.ComputeRequiredConnectorWidths(h)
	require.NoError(t, err)
	assert.Equal(t, []hier.IntVector{{3, 3}, {1, 1}, {1, 1}, {1, 1}}, self)
	assert.Equal(t, []hier.IntVector{{0, 0}, {0, 0}, {0, 0}}, fine)

	_, err = NewTagBufferWidthRequestor(nil)
	assert.True(t, errors.Is(err, hier.ErrPrecondition))
	_, err = NewTagBufferWidthRequestor([]int{2, -1})
	assert.True(t, errors.Is(err, hier.ErrPrecondition))
}

func TestWidthAggregationAcrossRequestors(t *testing.T) {
	h := newHierarchy(t, 3)
	desc := hier.NewPatchDescriptor()
	u := desc.Register("u", pdat.NewCellDataFactory(1, hier.IntVector{2, 2}))
	v := desc.Register("v", pdat.NewFaceDataFactory(1, hier.IntVector{1, 3}))
	items := xfer.NewRefineClasses(desc)
	_, err := items.Register(xfer.RefineItem{Dst: u, Src: u, Scratch: u})
	require.NoError(t, err)
	_, err = items.Register(xfer.RefineItem{Dst: v, Src: v, Scratch: v})
	require.NoError(t, err)
	tags, err := NewTagBufferWidthRequestor([]int{1})
	require.NoError(t, err)
	sum := NewPatchBoundaryNodeSum("sum", desc)

	requestors := []hier.ConnectorWidthRequestor{items, tags, sum}
	// Face ghosts {1,3} plus one for boundary data give {2,4}
	wantSelf := hier.IntVector{2, 4}
	wantFine := hier.IntVector{1, 2}
	for _, perm := range combin.Permutations(3, 3) {
		rs := []hier.ConnectorWidthRequestor{requestors[perm[0]], requestors[perm[1]], requestors[perm[2]]}
		self, fine, err := hier.AggregateConnectorWidths(h, rs...)
		require.NoError(t, err)
		for ln := range self {
			assert.Equal(t, wantSelf, self[ln], "perm %v level %d", perm, ln)
		}
		for ln := range fine {
			assert.Equal(t, wantFine, fine[ln], "perm %v pair %d", perm, ln)
		}
	}
}

// nodeGrid is one rank's view of a 2x2 grid of 4x4 boxes with a node
// component u summed by a PatchBoundaryNodeSum
type nodeGrid struct {
	h   *hier.PatchHierarchy
	sum *PatchBoundaryNodeSum
	u   int
}

func newNodeGrid(t *testing.T, owners []int, rank int) *nodeGrid {
	t.Helper()
	h := newHierarchy(t, 1)
	desc := hier.NewPatchDescriptor()
	u := desc.Register("u", pdat.NewNodeDataFactory(1, hier.Zero(2)))
	sum := NewPatchBoundaryNodeSum("u_sum", desc)
	require.NoError(t, sum.RegisterSum(u))
	h.RegisterConnectorWidthRequestor(sum)

	boxes, err := hier.AssignOwners([]hier.Box{
		hier.NewBox(hier.IntVector{0, 0}, hier.IntVector{3, 3}),
		hier.NewBox(hier.IntVector{4, 0}, hier.IntVector{7, 3}),
		hier.NewBox(hier.IntVector{0, 4}, hier.IntVector{3, 7}),
		hier.NewBox(hier.IntVector{4, 4}, hier.IntVector{7, 7}),
	}, 1, hier.BlockOwners)
	require.NoError(t, err)
	for i := range boxes {
		boxes[i].Owner = owners[i]
	}
	level, err := hier.NewPatchLevel(0, hier.One(2), boxes, rank, desc)
	require.NoError(t, err)
	require.NoError(t, level.AllocateData(u))
	for _, p := range level.LocalPatches() {
		p.Data(u).FillAll(float64(p.LocalID() + 1))
	}
	require.NoError(t, h.SetLevel(0, level))
	return &nodeGrid{h: h, sum: sum, u: u}
}

func (g *nodeGrid) value(id hier.LocalID, idx hier.IntVector) float64 {
	return g.h.Level(0).Patch(id).Data(g.u).(*pdat.NodeData).Array().Get(idx, 0)
}

func TestPatchBoundaryNodeSum(t *testing.T) {
	g := newNodeGrid(t, []int{0, 0, 0, 0}, 0)
	require.NoError(t, g.sum.ComputeSum(context.Background(), g.h, 0, nil))

	for id := hier.LocalID(0); id < 4; id++ {
		assert.Equal(t, 10.0, g.value(id, hier.IntVector{4, 4}), "centre node on box %d", id)
	}
	assert.Equal(t, 3.0, g.value(0, hier.IntVector{4, 1}), "edge shared by boxes 0 and 1")
	assert.Equal(t, 3.0, g.value(1, hier.IntVector{4, 1}))
	assert.Equal(t, 4.0, g.value(0, hier.IntVector{2, 4}), "edge shared by boxes 0 and 2")
	assert.Equal(t, 1.0, g.value(0, hier.IntVector{0, 0}), "domain corner")
	assert.Equal(t, 1.0, g.value(0, hier.IntVector{2, 2}), "interior")
	assert.Equal(t, 4.0, g.value(3, hier.IntVector{6, 6}), "interior")

	// Summing again adds the neighbours once more
	require.NoError(t, g.sum.ComputeSum(context.Background(), g.h, 0, nil))
	assert.Equal(t, 40.0, g.value(0, hier.IntVector{4, 4}))
	assert.False(t, g.h.Level(0).Patch(0).IsAllocated(g.u+1), "outernode source released")
}

func TestPatchBoundaryNodeSumTwoRanks(t *testing.T) {
	owners := []int{0, 1, 1, 0}
	single := newNodeGrid(t, []int{0, 0, 0, 0}, 0)
	require.NoError(t, single.sum.ComputeSum(context.Background(), single.h, 0, nil))

	net := xfer.NewLoopbackNetwork(2)
	grids := []*nodeGrid{newNodeGrid(t, owners, 0), newNodeGrid(t, owners, 1)}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	for r, g := range grids {
		eg.Go(func() error { return g.sum.ComputeSum(ctx, g.h, 0, net.Endpoint(r)) })
	}
	require.NoError(t, eg.Wait())

	for r, g := range grids {
		for _, p := range g.h.Level(0).LocalPatches() {
			want := single.h.Level(0).Patch(p.LocalID()).Data(single.u).(*pdat.NodeData).Array().Data()
			got := p.Data(g.u).(*pdat.NodeData).Array().Data()
			assert.Equal(t, want, got, "rank %d box %d", r, p.LocalID())
		}
	}
}

func TestRegisterSumRejectsCellData(t *testing.T) {
	desc := hier.NewPatchDescriptor()
	c := desc.Register("c", pdat.NewCellDataFactory(1, hier.Zero(2)))
	err := NewPatchBoundaryNodeSum("s", desc).RegisterSum(c)
	assert.True(t, errors.Is(err, hier.ErrPrecondition))
}
