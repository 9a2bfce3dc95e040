package xfer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/pdat"
)

func mkBox(lo, hi []int, id, owner int) hier.Box {
	b := hier.NewBox(hier.IntVector(lo), hier.IntVector(hi))
	b.LocalID = hier.LocalID(id)
	b.Owner = owner
	return b
}

// grid2x2 is four 4x4 boxes meeting at node (4,4). owners[i] owns box i.
func grid2x2(owners []int) []hier.Box {
	return []hier.Box{
		mkBox([]int{0, 0}, []int{3, 3}, 0, owners[0]),
		mkBox([]int{4, 0}, []int{7, 3}, 1, owners[1]),
		mkBox([]int{0, 4}, []int{3, 7}, 2, owners[2]),
		mkBox([]int{4, 4}, []int{7, 7}, 3, owners[3]),
	}
}

// sumSetup is one rank's view of a level with an outernode source and
// scratch component registered as one sum item
type sumSetup struct {
	level    *hier.PatchLevel
	items    *RefineClasses
	src, scr int
}

func newSumSetup(t *testing.T, boxes []hier.Box, rank int) *sumSetup {
	t.Helper()
	desc := hier.NewPatchDescriptor()
	src := desc.Register("onode_src", pdat.NewOuternodeDataFactory(2, 1))
	scr := desc.Register("onode_scratch", pdat.NewOuternodeDataFactory(2, 1))
	level, err := hier.NewPatchLevel(0, hier.One(2), boxes, rank, desc)
	require.NoError(t, err)
	require.NoError(t, level.AllocateData(src, scr))
	items := NewRefineClasses(desc)
	_, err = items.Register(RefineItem{Dst: scr, Src: src, Scratch: scr})
	require.NoError(t, err)
	return &sumSetup{level: level, items: items, src: src, scr: scr}
}

// fillSource sets every outer node of box id to value(id)
func (s *sumSetup) fillSource(value func(id hier.LocalID) float64) {
	for _, p := range s.level.LocalPatches() {
		p.Data(s.src).FillAll(value(p.LocalID()))
	}
}

func (s *sumSetup) schedule(t *testing.T, comm Communicator) *Schedule {
	t.Helper()
	conn, err := hier.NewConnector(s.level, s.level, hier.One(2), hier.Zero(2))
	require.NoError(t, err)
	sched, err := NewSumSchedule(s.level, conn, s.items, Options{Communicator: comm})
	require.NoError(t, err)
	return sched
}

func (s *sumSetup) scratch(id hier.LocalID) *pdat.OuternodeData {
	return s.level.Patch(id).Data(s.scr).(*pdat.OuternodeData)
}

// outernodeValues flattens every side of an outernode patch
func outernodeValues(on *pdat.OuternodeData) []float64 {
	var vals []float64
	for axis := 0; axis < on.Box().Dim(); axis++ {
		for _, upper := range []bool{false, true} {
			vals = append(vals, on.Side(axis, upper).Data()...)
		}
	}
	return vals
}
