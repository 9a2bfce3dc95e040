package pdat

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize bounds the transfers handed to one worker or one
// device partition
const DefaultChunkSize = 1024

// RefineBackend executes transfer plans: dst[Place[i]] = src[Pick[i]]
type RefineBackend interface {
	Name() string
	Gather(plan *TransferPlan, dst, src []float64) error
}

func checkPlanArrays(plan *TransferPlan, dst, src []float64) error {
	if len(src) != plan.SrcLen || len(dst) != plan.DstLen {
		return fmt.Errorf("plan for %d->%d values run on %d->%d", plan.SrcLen, plan.DstLen, len(src), len(dst))
	}
	return nil
}

// SequentialBackend runs plans in one loop on the calling goroutine
type SequentialBackend struct{}

func (SequentialBackend) Name() string { return "sequential" }

func (SequentialBackend) Gather(plan *TransferPlan, dst, src []float64) error {
	if err := checkPlanArrays(plan, dst, src); err != nil {
		return err
	}
	for i, p := range plan.Pick {
		dst[plan.Place[i]] = src[p]
	}
	return nil
}

// ParallelBackend splits each region of a plan into chunks and runs them on
// a bounded group of goroutines. Regions run one after another, so a
// location written by two regions ends with the later region's value, as
// in the sequential backend.
type ParallelBackend struct {
	Workers   int // Zero means GOMAXPROCS
	ChunkSize int // Zero means DefaultChunkSize
}

func (ParallelBackend) Name() string { return "parallel" }

func (b ParallelBackend) Gather(plan *TransferPlan, dst, src []float64) error {
	if err := checkPlanArrays(plan, dst, src); err != nil {
		return err
	}
	workers := b.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	size := b.ChunkSize
	if size < 1 {
		size = DefaultChunkSize
	}
	for _, r := range plan.Regions() {
		g, _ := errgroup.WithContext(context.Background())
		g.SetLimit(workers)
		for s := r[0]; s < r[1]; s += size {
			lo, hi := s, min(s+size, r[1])
			g.Go(func() error {
				for i := lo; i < hi; i++ {
					dst[plan.Place[i]] = src[plan.Pick[i]]
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// BackendByName returns a host backend; the device backend lives in the
// builder package because it needs an OCCA device
func BackendByName(name string) (RefineBackend, error) {
	switch name {
	case "", "sequential":
		return SequentialBackend{}, nil
	case "parallel":
		return ParallelBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown host backend %q", name)
	}
}
