package main

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cobra"

	"github.com/notargets/amrsync/algs"
	"github.com/notargets/amrsync/config"
	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/pdat"
	"github.com/notargets/amrsync/utils"
	"github.com/notargets/amrsync/xfer"
)

func newSumCmd(a *app) *cobra.Command {
	var ranks int
	cmd := &cobra.Command{
		Use:   "sum",
		Short: "Sum boundary node values of level 0 and print how many boxes share each node",
		Long: `sum fills a node component with ones on every box of level 0 and runs
the boundary node sum. Afterwards every node holds the number of boxes
that contain it, so the histogram shows how nodes are shared.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := runSum(cmd.Context(), a.cfg, ranks)
			if err != nil {
				return err
			}
			keys := make([]int, 0, len(counts))
			for k := range counts {
				keys = append(keys, k)
			}
			sort.Ints(keys)
			out := cmd.OutOrStdout()
			for _, k := range keys {
				fmt.Fprintf(out, "shared by %d: %d node values\n", k, counts[k])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&ranks, "ranks", 1, "number of loopback ranks")
	return cmd
}

// runSum returns, over all ranks, how many node values ended up equal to
// each sharing count
func runSum(ctx context.Context, cfg config.Config, nranks int) (map[int]int, error) {
	boxes, err := cfg.LevelZeroBoxes(nranks)
	if err != nil {
		return nil, err
	}
	var mu sync.Mutex
	counts := make(map[int]int)
	err = runRanks(ctx, nranks, func(ctx context.Context, rank int, comm xfer.Communicator) error {
		h, err := cfg.Hierarchy()
		if err != nil {
			return err
		}
		desc := hier.NewPatchDescriptor()
		u := desc.Register("u", pdat.NewNodeDataFactory(1, hier.Zero(cfg.Dim)))
		sum := algs.NewPatchBoundaryNodeSum("u_sum", desc)
		if err = sum.RegisterSum(u); err != nil {
			return err
		}
		h.RegisterConnectorWidthRequestor(sum)

		level, err := hier.NewPatchLevel(0, hier.One(cfg.Dim), boxes, rank, desc)
		if err != nil {
			return err
		}
		if err = level.AllocateData(u); err != nil {
			return err
		}
		for _, p := range level.LocalPatches() {
			p.Data(u).FillAll(1)
		}
		if err = h.SetLevel(0, level); err != nil {
			return err
		}
		if err = sum.ComputeSum(ctx, h, 0, comm); err != nil {
			return err
		}

		local := make(map[int]int)
		for _, p := range level.LocalPatches() {
			for _, v := range p.Data(u).(*pdat.NodeData).Array().Data() {
				local[int(v)]++
			}
		}
		mu.Lock()
		defer mu.Unlock()
		for k, n := range local {
			counts[k] += n
		}
		utils.Logger().WithField("rank", rank).Debugf("summed %d boxes", len(level.LocalPatches()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}
