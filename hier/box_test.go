package hier

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box2(l0, l1, u0, u1 int) Box {
	return NewBox(IntVector{l0, l1}, IntVector{u0, u1})
}

func TestFloorDiv(t *testing.T) {
	tests := []struct {
		fine, ratio, want int
	}{
		{-1, 2, -1},
		{-2, 2, -1},
		{-3, 2, -2},
		{0, 2, 0},
		{1, 2, 0},
		{7, 2, 3},
		{-4, 4, -1},
		{-5, 4, -2},
		{5, 3, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CoarseIndex(tt.fine, tt.ratio), "CoarseIndex(%d, %d)", tt.fine, tt.ratio)
	}
}

func TestIntersect(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Box
		want  Box
		empty bool
	}{
		{"overlapping", box2(0, 0, 4, 4), box2(2, 3, 6, 8), box2(2, 3, 4, 4), false},
		{"contained", box2(0, 0, 9, 9), box2(2, 2, 3, 3), box2(2, 2, 3, 3), false},
		{"touching corner", box2(0, 0, 3, 3), box2(3, 3, 5, 5), box2(3, 3, 3, 3), false},
		{"disjoint", box2(0, 0, 3, 3), box2(4, 0, 7, 3), Box{}, true},
		{"negative", box2(-4, -4, -1, -1), box2(-2, -6, 2, -3), box2(-2, -4, -1, -3), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ab, err := Intersect(tt.a, tt.b)
			require.NoError(t, err)
			ba, err := Intersect(tt.b, tt.a)
			require.NoError(t, err)
			assert.True(t, ab.Equal(ba), "intersection not commutative: %v vs %v", ab, ba)
			assert.Equal(t, tt.empty, ab.IsEmpty())
			if !tt.empty {
				assert.True(t, ab.Equal(tt.want), "got %v want %v", ab, tt.want)
				assert.True(t, tt.a.ContainsBox(ab))
				assert.True(t, tt.b.ContainsBox(ab))
			}
			assert.Equal(t, InvalidLocalID, ab.LocalID)
		})
	}
}

func TestIntersectErrors(t *testing.T) {
	_, err := Intersect(box2(0, 0, 1, 1), NewBox(IntVector{0}, IntVector{1}))
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	a, b := box2(0, 0, 1, 1), box2(0, 0, 1, 1)
	b.Block = 1
	_, err = Intersect(a, b)
	assert.True(t, errors.Is(err, ErrBlockMismatch))
}

func TestCoarsenRefine(t *testing.T) {
	boxes := []Box{
		box2(0, 0, 7, 3),
		box2(-4, -3, 5, 2),
		box2(-1, -1, -1, -1),
		NewBox(IntVector{-7, 2, 0}, IntVector{3, 9, 0}),
	}
	for _, b := range boxes {
		for _, r := range []int{1, 2, 3, 4} {
			ratio := NewIntVector(b.Dim(), r)
			fine, err := Refine(b, ratio)
			require.NoError(t, err)
			assert.Equal(t, b.NumCells()*ratio.Product(), fine.NumCells())
			back, err := Coarsen(fine, ratio)
			require.NoError(t, err)
			assert.True(t, back.Equal(b), "Coarsen(Refine(%v, %d)) = %v", b, r, back)
		}
	}

	c, err := Coarsen(NewBox(IntVector{-2}, IntVector{1}), IntVector{2})
	require.NoError(t, err)
	assert.Equal(t, IntVector{-1}, c.Lower)
	assert.Equal(t, IntVector{0}, c.Upper)

	_, err = Refine(box2(0, 0, 1, 1), IntVector{2, 0})
	assert.True(t, errors.Is(err, ErrPrecondition))
	_, err = Coarsen(box2(0, 0, 1, 1), IntVector{2})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestGrowShift(t *testing.T) {
	b := box2(0, 0, 3, 1)
	g, err := Grow(b, IntVector{1, 2})
	require.NoError(t, err)
	assert.True(t, g.Equal(box2(-1, -2, 4, 3)))

	e, err := Grow(EmptyBox(2), IntVector{3, 3})
	require.NoError(t, err)
	assert.True(t, e.IsEmpty())

	s, err := Shift(b, IntVector{-8, 4})
	require.NoError(t, err)
	assert.True(t, s.Equal(box2(-8, 4, -5, 5)))

	img, err := PeriodicImage(b, IntVector{16, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, PeriodicID(3), img.Periodic)
	assert.Equal(t, 16, img.Lower[0])

	_, err = Grow(b, IntVector{1})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestIterateOffset(t *testing.T) {
	b := box2(1, -1, 3, 0)
	var seen []IntVector
	b.Iterate(func(idx IntVector) {
		assert.Equal(t, len(seen), b.Offset(idx))
		seen = append(seen, idx.Clone())
	})
	require.Len(t, seen, b.NumCells())
	assert.Equal(t, IntVector{1, -1}, seen[0])
	assert.Equal(t, IntVector{2, -1}, seen[1], "axis 0 varies fastest")
	assert.Equal(t, IntVector{3, 0}, seen[5])

	EmptyBox(2).Iterate(func(IntVector) { t.Fatal("empty box iterated") })
}

func TestBoxIDOrder(t *testing.T) {
	ids := []BoxID{
		{Owner: 0, LocalID: 1, Periodic: 0},
		{Owner: 0, LocalID: 1, Periodic: 2},
		{Owner: 0, LocalID: 3, Periodic: 0},
		{Owner: 1, LocalID: 0, Periodic: 0},
	}
	for i := range ids {
		for j := range ids {
			assert.Equal(t, i < j, ids[i].Less(ids[j]), "%v < %v", ids[i], ids[j])
		}
	}
	assert.Equal(t, 0, ids[2].Compare(ids[2]))
	assert.Equal(t, 1, ids[3].Compare(ids[0]))
}

func TestPermute(t *testing.T) {
	v := IntVector{10, 20, 30}
	assert.Equal(t, IntVector{20, 30, 10}, v.Permute(1))
	assert.Equal(t, IntVector{30, 10, 20}, v.Permute(2))
	for axis := 0; axis < 3; axis++ {
		assert.Equal(t, v, v.Permute(axis).Unpermute(axis))
	}
}
