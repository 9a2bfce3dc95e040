package hier

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/combin"
)

type fixedRequestor struct {
	self, fine []IntVector
}

func (f fixedRequestor) ComputeRequiredConnectorWidths(*PatchHierarchy) ([]IntVector, []IntVector, error) {
	return f.self, f.fine, nil
}

func testHierarchy(t *testing.T, dim, levels int) *PatchHierarchy {
	t.Helper()
	ratios := make([]IntVector, levels-1)
	for i := range ratios {
		ratios[i] = NewIntVector(dim, 2)
	}
	h, err := NewPatchHierarchy(dim, levels, ratios)
	require.NoError(t, err)
	return h
}

func TestAggregateConnectorWidthsOrderIndependent(t *testing.T) {
	h := testHierarchy(t, 3, 2)
	reqs := []ConnectorWidthRequestor{
		fixedRequestor{
			self: []IntVector{{2, 2, 3}, {1, 1, 1}},
			fine: []IntVector{{0, 1, 0}},
		},
		fixedRequestor{
			self: []IntVector{{1, 4, 2}, {0, 0, 5}},
			fine: []IntVector{{1, 0, 0}},
		},
		fixedRequestor{
			self: []IntVector{{0, 0, 0}, {0, 0, 0}},
			fine: []IntVector{{0, 0, 0}},
		},
	}
	perms := combin.Permutations(len(reqs), len(reqs))
	for _, p := range perms {
		ordered := make([]ConnectorWidthRequestor, len(p))
		for i, k := range p {
			ordered[i] = reqs[k]
		}
		self, fine, err := AggregateConnectorWidths(h, ordered...)
		require.NoError(t, err)
		assert.Equal(t, IntVector{2, 4, 3}, self[0], "order %v", p)
		assert.Equal(t, IntVector{1, 1, 5}, self[1], "order %v", p)
		assert.Equal(t, IntVector{1, 1, 0}, fine[0], "order %v", p)
	}
}

func TestConnectorWidthsFoldPerLevel(t *testing.T) {
	// Two requestors with per-level widths {2,2,3} and {1,4,2} on three
	// 1-D levels give {2,4,3}
	reqs := []ConnectorWidthRequestor{
		fixedRequestor{
			self: []IntVector{{2}, {2}, {3}},
			fine: []IntVector{{0}, {1}},
		},
		fixedRequestor{
			self: []IntVector{{1}, {4}, {2}},
			fine: []IntVector{{1}, {0}},
		},
	}
	for _, p := range combin.Permutations(2, 2) {
		h := testHierarchy(t, 1, 3)
		for _, k := range p {
			h.RegisterConnectorWidthRequestor(reqs[k])
		}
		desc := NewPatchDescriptor()
		for ln := 0; ln < 3; ln++ {
			b := NewBox(IntVector{0}, IntVector{4<<ln - 1})
			b.LocalID = 0
			level, err := NewPatchLevel(ln, h.RatioToLevelZero(ln), []Box{b}, 0, desc)
			require.NoError(t, err)
			require.NoError(t, h.SetLevel(ln, level))
		}

		for ln, want := range []IntVector{{2}, {4}, {3}} {
			w, err := h.ConnectorWidth(ln, ln)
			require.NoError(t, err)
			assert.Equal(t, want, w, "order %v level %d", p, ln)
			conn, err := h.FindConnector(ln, ln)
			require.NoError(t, err)
			assert.Equal(t, want, conn.Width(), "order %v level %d", p, ln)
		}
		for ln := 0; ln < 2; ln++ {
			conn, err := h.FindConnector(ln, ln+1)
			require.NoError(t, err)
			assert.Equal(t, IntVector{1}, conn.Width(), "order %v fine %d", p, ln)
			// Transposed width is in the finer index space
			conn, err = h.FindConnector(ln+1, ln)
			require.NoError(t, err)
			assert.Equal(t, IntVector{2}, conn.Width(), "order %v coarse %d", p, ln)
		}
	}
}

func TestAggregateConnectorWidthsBadLength(t *testing.T) {
	h := testHierarchy(t, 2, 3)
	_, _, err := AggregateConnectorWidths(h, fixedRequestor{
		self: []IntVector{{1, 1}},
		fine: []IntVector{{0, 0}, {0, 0}},
	})
	assert.True(t, errors.Is(err, ErrPrecondition))
}

func TestHierarchyConnectorWidth(t *testing.T) {
	h := testHierarchy(t, 2, 2)
	h.RegisterConnectorWidthRequestor(fixedRequestor{
		self: []IntVector{{2, 2}, {3, 1}},
		fine: []IntVector{{1, 2}},
	})
	w, err := h.ConnectorWidth(1, 1)
	require.NoError(t, err)
	assert.Equal(t, IntVector{3, 1}, w)
	w, err = h.ConnectorWidth(0, 1)
	require.NoError(t, err)
	assert.Equal(t, IntVector{1, 2}, w)
	w, err = h.ConnectorWidth(1, 0)
	require.NoError(t, err)
	assert.Equal(t, IntVector{2, 4}, w)
}

func TestPatchLevelValidation(t *testing.T) {
	desc := NewPatchDescriptor()
	boxes, err := AssignOwners([]Box{box2(0, 0, 3, 3), box2(2, 2, 5, 5)}, 1, BlockOwners)
	require.NoError(t, err)
	_, err = NewPatchLevel(0, One(2), boxes, 0, desc)
	assert.True(t, errors.Is(err, ErrPrecondition), "overlapping boxes accepted")

	boxes[1].LocalID = 0
	_, err = NewPatchLevel(0, One(2), boxes, 0, desc)
	assert.True(t, errors.Is(err, ErrPrecondition), "duplicate local id accepted")
}

func TestAssignOwners(t *testing.T) {
	in := make([]Box, 5)
	for i := range in {
		in[i] = NewBox(IntVector{4 * i}, IntVector{4*i + 3})
	}
	block, err := AssignOwners(in, 2, BlockOwners)
	require.NoError(t, err)
	rr, err := AssignOwners(in, 2, RoundRobinOwners)
	require.NoError(t, err)
	for i := range in {
		assert.Equal(t, LocalID(i), block[i].LocalID)
	}
	assert.Equal(t, []LocalID{0, 1, 2}, BoxesOwnedBy(block, 0))
	assert.Equal(t, []LocalID{3, 4}, BoxesOwnedBy(block, 1))
	assert.Equal(t, []LocalID{0, 2, 4}, BoxesOwnedBy(rr, 0))
}

func TestConnectorNeighbors(t *testing.T) {
	desc := NewPatchDescriptor()
	boxes, err := AssignOwners([]Box{
		box2(0, 0, 3, 3),
		box2(4, 0, 7, 3),
		box2(10, 0, 15, 3),
	}, 2, RoundRobinOwners)
	require.NoError(t, err)
	level, err := NewPatchLevel(0, One(2), boxes, 0, desc)
	require.NoError(t, err)
	assert.True(t, level.IsLocal(0))
	assert.False(t, level.IsLocal(1))
	assert.Len(t, level.LocalPatches(), 2)

	c, err := NewConnector(level, level, IntVector{1, 1}, Zero(2))
	require.NoError(t, err)
	ids := func(bs []Box) []LocalID {
		var out []LocalID
		for _, b := range bs {
			out = append(out, b.LocalID)
		}
		return out
	}
	assert.Equal(t, []LocalID{0, 1}, ids(c.Neighbors(0)))
	assert.Equal(t, []LocalID{0, 1}, ids(c.Neighbors(1)))
	assert.Equal(t, []LocalID{2}, ids(c.Neighbors(2)))

	// A period of 16 cells along x wraps box 2 onto box 0
	p, err := NewConnector(level, level, IntVector{1, 1}, IntVector{16, 0})
	require.NoError(t, err)
	nb := p.Neighbors(0)
	require.Len(t, nb, 3)
	// Sorted by owner first: box 2 (rank 0) comes before box 1 (rank 1)
	img := nb[1]
	assert.Equal(t, LocalID(2), img.LocalID)
	assert.NotEqual(t, ZeroPeriodicID, img.Periodic)
	assert.Equal(t, LocalID(1), nb[2].LocalID)
	off, err := p.PeriodicOffset(img)
	require.NoError(t, err)
	assert.Equal(t, IntVector{-16, 0}, off)
}

func TestConnectorAcrossLevels(t *testing.T) {
	desc := NewPatchDescriptor()
	coarseBoxes, err := AssignOwners([]Box{box2(0, 0, 7, 7)}, 1, BlockOwners)
	require.NoError(t, err)
	fineBoxes, err := AssignOwners([]Box{box2(4, 4, 7, 7), box2(20, 20, 23, 23)}, 1, BlockOwners)
	require.NoError(t, err)
	coarse, err := NewPatchLevel(0, One(2), coarseBoxes, 0, desc)
	require.NoError(t, err)
	fine, err := NewPatchLevel(1, NewIntVector(2, 2), fineBoxes, 0, desc)
	require.NoError(t, err)

	down, err := NewConnector(fine, coarse, IntVector{2, 2}, Zero(2))
	require.NoError(t, err)
	r, headFiner := down.Ratio()
	assert.False(t, headFiner)
	assert.Equal(t, IntVector{2, 2}, r)
	assert.Len(t, down.Neighbors(0), 1)
	assert.Empty(t, down.Neighbors(1))

	up, err := NewConnector(coarse, fine, IntVector{0, 0}, Zero(2))
	require.NoError(t, err)
	assert.Len(t, up.Neighbors(0), 1)
	assert.Equal(t, 1, up.NumRelationships())
}

func TestComponentSelector(t *testing.T) {
	cs := NewComponentSelector(3, 0)
	cs.Set(7)
	assert.True(t, cs.IsSet(3))
	assert.False(t, cs.IsSet(2))
	assert.Equal(t, []int{0, 3, 7}, cs.IDs())
	cs.Clear(3)
	assert.Equal(t, 2, cs.Count())
}
