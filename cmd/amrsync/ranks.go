package main

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/xfer"
)

// runRanks calls fn once per rank in its own goroutine. Ranks talk over a
// loopback network; a single rank gets no communicator.
func runRanks(ctx context.Context, nranks int, fn func(ctx context.Context, rank int, comm xfer.Communicator) error) error {
	if nranks < 1 {
		return errors.Wrapf(hier.ErrPrecondition, "need at least one rank, got %d", nranks)
	}
	if nranks == 1 {
		return fn(ctx, 0, nil)
	}
	net := xfer.NewLoopbackNetwork(nranks)
	g, ctx := errgroup.WithContext(ctx)
	for r := 0; r < nranks; r++ {
		g.Go(func() error {
			return errors.Wrapf(fn(ctx, r, net.Endpoint(r)), "rank %d", r)
		})
	}
	return g.Wait()
}
