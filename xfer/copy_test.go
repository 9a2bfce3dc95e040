package xfer

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/pdat"
	"github.com/notargets/amrsync/utils"
)

// faceLevel builds one level with a face source and a face destination
// and fills the source of box id with value(id)
func faceLevel(t *testing.T, boxes []hier.Box, value func(hier.LocalID) float64) (*hier.PatchLevel, *RefineClasses, int) {
	t.Helper()
	desc := hier.NewPatchDescriptor()
	src := desc.Register("u", pdat.NewFaceDataFactory(1, hier.Zero(2)))
	dst := desc.Register("u_new", pdat.NewFaceDataFactory(1, hier.Zero(2)))
	level, err := hier.NewPatchLevel(0, hier.One(2), boxes, 0, desc)
	require.NoError(t, err)
	require.NoError(t, level.AllocateData(src, dst))
	for _, p := range level.LocalPatches() {
		p.Data(src).FillAll(value(p.LocalID()))
	}
	items := NewRefineClasses(desc)
	_, err = items.Register(RefineItem{Dst: dst, Src: src, Scratch: dst})
	require.NoError(t, err)
	return level, items, dst
}

func TestCopyLowestSourceBoxWins(t *testing.T) {
	left := hier.NewBox(hier.IntVector{0, 0}, hier.IntVector{3, 3})
	right := hier.NewBox(hier.IntVector{4, 0}, hier.IntVector{7, 3})
	tests := []struct {
		name          string
		leftID, right int
		want          float64
	}{
		{"left first", 0, 1, 10},
		{"right first", 1, 0, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, r := left, right
			l.LocalID, r.LocalID = hier.LocalID(tt.leftID), hier.LocalID(tt.right)
			values := map[hier.LocalID]float64{l.LocalID: 10, r.LocalID: 20}
			// Allocation order follows listing order; both orders must agree
			for _, perm := range combin.Permutations(2, 2) {
				boxes := []hier.Box{l, r}
				boxes = []hier.Box{boxes[perm[0]], boxes[perm[1]]}
				level, items, dst := faceLevel(t, boxes, func(id hier.LocalID) float64 { return values[id] })
				conn, err := hier.NewConnector(level, level, hier.One(2), hier.Zero(2))
				require.NoError(t, err)
				sched, err := NewRefineSchedule(level, level, conn, items, &CopyTransactionFactory{}, Options{})
				require.NoError(t, err)
				require.NoError(t, sched.Execute(context.Background()))
				for _, p := range level.LocalPatches() {
					fd := p.Data(dst).(*pdat.FaceData)
					for y := 0; y <= 3; y++ {
						assert.Equal(t, tt.want, fd.Array(0).Get(hier.IntVector{4, y}, 0),
							"perm %v box %d face (4,%d)", perm, p.LocalID(), y)
					}
				}
			}
		})
	}
}

func TestTransactionRefusesReuse(t *testing.T) {
	level, items, _ := faceLevel(t, []hier.Box{
		mkBox([]int{0, 0}, []int{3, 3}, 0, 0),
	}, func(hier.LocalID) float64 { return 1 })
	b := level.Boxes()[0]
	ov, err := pdat.FaceGeometry{}.CalculateOverlap(b, b, hier.Zero(2), hier.Box{})
	require.NoError(t, err)

	tx, err := (&CopyTransactionFactory{}).Allocate(level, level, ov, b, b, items, 0)
	require.NoError(t, err)
	assert.Equal(t, Copy, tx.Semantic())
	assert.Equal(t, 0, tx.SourceRank())
	require.NoError(t, tx.CopyLocalData())
	assert.True(t, errors.Is(tx.CopyLocalData(), ErrTransactionConsumed))
	assert.True(t, errors.Is(tx.PackStream(utils.NewMessageStream(0)), ErrTransactionConsumed))

	fresh, err := (&CopyTransactionFactory{}).Allocate(level, level, ov, b, b, items, 0)
	require.NoError(t, err)
	n, err := fresh.ComputeOutgoingMessageSize()
	require.NoError(t, err)
	s := utils.NewMessageStream(n)
	require.NoError(t, fresh.PackStream(s))
	assert.Equal(t, n, s.Size())
	assert.True(t, errors.Is(fresh.UnpackStream(utils.NewMessageStreamFrom(s.Bytes())), ErrTransactionConsumed))
}

func TestCopyFactoryPreconditions(t *testing.T) {
	level, items, _ := faceLevel(t, []hier.Box{
		mkBox([]int{0, 0}, []int{3, 3}, 0, 0),
	}, func(hier.LocalID) float64 { return 1 })
	b := level.Boxes()[0]
	ov, err := pdat.FaceGeometry{}.CalculateOverlap(b, b, hier.Zero(2), hier.Box{})
	require.NoError(t, err)
	f := &CopyTransactionFactory{}

	noID := b
	noID.LocalID = hier.InvalidLocalID
	ov3 := pdat.NewCellOverlap(nil, hier.Zero(3))
	tests := []struct {
		name string
		call func() error
	}{
		{"nil dst level", func() error { _, err := f.Allocate(nil, level, ov, b, b, items, 0); return err }},
		{"nil src level", func() error { _, err := f.Allocate(level, nil, ov, b, b, items, 0); return err }},
		{"nil overlap", func() error { _, err := f.Allocate(level, level, nil, b, b, items, 0); return err }},
		{"nil items", func() error { _, err := f.Allocate(level, level, ov, b, b, nil, 0); return err }},
		{"negative local id", func() error { _, err := f.Allocate(level, level, ov, noID, b, items, 0); return err }},
		{"dimension", func() error { _, err := f.Allocate(level, level, ov3, b, b, items, 0); return err }},
		{"item out of range", func() error { _, err := f.Allocate(level, level, ov, b, b, items, 1); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.call(), hier.ErrPrecondition))
		})
	}

	_, err = f.AllocateFill(level, level, ov, b, b, items, 0, hier.Box{}, true)
	assert.True(t, errors.Is(err, ErrUnsupported), "time interpolation")
}

func TestFactoryFor(t *testing.T) {
	f, err := FactoryFor(Copy)
	require.NoError(t, err)
	assert.Equal(t, Copy, f.Semantic())
	f, err = FactoryFor(BoundarySum)
	require.NoError(t, err)
	assert.Equal(t, BoundarySum, f.Semantic())
	_, err = FactoryFor(Semantic(9))
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestKeyOrder(t *testing.T) {
	k := func(dst, item, src int) Key {
		return Key{Dst: hier.BoxID{LocalID: hier.LocalID(dst)}, Item: item, Src: hier.BoxID{LocalID: hier.LocalID(src)}}
	}
	assert.True(t, k(0, 5, 0).Less(k(1, 0, 0)), "destination first")
	assert.True(t, k(0, 0, 0).Less(k(0, 1, 9)), "then item")
	assert.True(t, k(0, 0, 2).Less(k(0, 0, 1)), "then source descending")
	assert.False(t, k(0, 0, 1).Less(k(0, 0, 1)))
}

// coarseFine is one rank's view of a coarse level with one box and a
// fine level with one box, ratio 2, refining u into the fine scratch
type coarseFine struct {
	coarse, fine *hier.PatchLevel
	items        *RefineClasses
	u, scratch   int
}

func newCoarseFine(t *testing.T, rank, coarseOwner, fineOwner int) *coarseFine {
	t.Helper()
	desc := hier.NewPatchDescriptor()
	u := desc.Register("u", pdat.NewCellDataFactory(1, hier.Zero(2)))
	scratch := desc.Register("u_scratch", pdat.NewCellDataFactory(1, hier.One(2)))
	coarse, err := hier.NewPatchLevel(0, hier.One(2),
		[]hier.Box{mkBox([]int{0, 0}, []int{3, 3}, 0, coarseOwner)}, rank, desc)
	require.NoError(t, err)
	fine, err := hier.NewPatchLevel(1, hier.IntVector{2, 2},
		[]hier.Box{mkBox([]int{2, 2}, []int{5, 5}, 0, fineOwner)}, rank, desc)
	require.NoError(t, err)
	require.NoError(t, coarse.AllocateData(u))
	require.NoError(t, fine.AllocateData(u, scratch))
	for _, p := range coarse.LocalPatches() {
		cd := p.Data(u).(*pdat.CellData)
		cd.Array().Box().Iterate(func(idx hier.IntVector) {
			cd.Array().Set(idx, 0, float64(10*idx[0]+idx[1]))
		})
	}
	items := NewRefineClasses(desc)
	_, err = items.Register(RefineItem{Dst: u, Src: u, Scratch: scratch, Operator: pdat.NewConstantRefine(nil)})
	require.NoError(t, err)
	return &coarseFine{coarse: coarse, fine: fine, items: items, u: u, scratch: scratch}
}

func (cf *coarseFine) schedule(t *testing.T, comm Communicator) *Schedule {
	t.Helper()
	conn, err := hier.NewConnector(cf.fine, cf.coarse, hier.IntVector{2, 2}, hier.Zero(2))
	require.NoError(t, err)
	sched, err := NewRefineSchedule(cf.fine, cf.coarse, conn, cf.items, &CopyTransactionFactory{}, Options{Communicator: comm})
	require.NoError(t, err)
	return sched
}

func TestRefineScheduleFromCoarser(t *testing.T) {
	cf := newCoarseFine(t, 0, 0, 0)
	require.NoError(t, cf.schedule(t, nil).Execute(context.Background()))

	p := cf.fine.Patch(0)
	scratch := p.Data(cf.scratch).(*pdat.CellData)
	scratch.Array().Box().Iterate(func(idx hier.IntVector) {
		want := float64(10*hier.CoarseIndex(idx[0], 2) + hier.CoarseIndex(idx[1], 2))
		assert.Equal(t, want, scratch.Array().Get(idx, 0), "scratch %v", idx)
	})
	// Interior copied back into the destination
	u := p.Data(cf.u).(*pdat.CellData)
	assert.Equal(t, 12.0, u.Array().Get(hier.IntVector{3, 5}, 0))
	assert.Equal(t, 1.0, scratch.Array().Get(hier.IntVector{1, 2}, 0), "ghost cell")
}

func TestRefineScheduleFillBox(t *testing.T) {
	cf := newCoarseFine(t, 0, 0, 0)
	conn, err := hier.NewConnector(cf.fine, cf.coarse, hier.IntVector{2, 2}, hier.Zero(2))
	require.NoError(t, err)
	fill := hier.NewBox(hier.IntVector{2, 2}, hier.IntVector{3, 3})
	sched, err := NewRefineSchedule(cf.fine, cf.coarse, conn, cf.items, &CopyTransactionFactory{}, Options{
		FillBox: func(hier.Box) hier.Box { return fill },
	})
	require.NoError(t, err)
	scratch := cf.fine.Patch(0).Data(cf.scratch)
	scratch.FillAll(-1)
	require.NoError(t, sched.Execute(context.Background()))
	arr := scratch.(*pdat.CellData).Array()
	assert.Equal(t, 11.0, arr.Get(hier.IntVector{3, 3}, 0))
	assert.Equal(t, -1.0, arr.Get(hier.IntVector{4, 4}, 0))
}

func TestRefineScheduleFillBoxLimitsDestination(t *testing.T) {
	cf := newCoarseFine(t, 0, 0, 0)
	conn, err := hier.NewConnector(cf.fine, cf.coarse, hier.IntVector{2, 2}, hier.Zero(2))
	require.NoError(t, err)
	fill := hier.NewBox(hier.IntVector{2, 2}, hier.IntVector{3, 3})
	sched, err := NewRefineSchedule(cf.fine, cf.coarse, conn, cf.items, &CopyTransactionFactory{}, Options{
		FillBox: func(hier.Box) hier.Box { return fill },
	})
	require.NoError(t, err)
	p := cf.fine.Patch(0)
	p.Data(cf.scratch).FillAll(-1)
	p.Data(cf.u).FillAll(-7)
	require.NoError(t, sched.Execute(context.Background()))

	u := p.Data(cf.u).(*pdat.CellData).Array()
	u.Box().Iterate(func(idx hier.IntVector) {
		want := -7.0
		if fill.Contains(idx) {
			want = float64(10*hier.CoarseIndex(idx[0], 2) + hier.CoarseIndex(idx[1], 2))
		}
		assert.Equal(t, want, u.Get(idx, 0), "cell %v", idx)
	})
}
