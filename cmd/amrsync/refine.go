package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/amrsync/builder"
	"github.com/notargets/amrsync/config"
	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/pdat"
	"github.com/notargets/amrsync/utils"
	"github.com/notargets/amrsync/xfer"
)

func newRefineCmd(a *app) *cobra.Command {
	var (
		backend string
		ranks   int
	)
	cmd := &cobra.Command{
		Use:   "refine",
		Short: "Fill level 1 from level 0 with constant refinement and check the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if backend != "" {
				cfg.Backend = backend
			}
			res, err := runRefine(cmd.Context(), cfg, ranks)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend %s ranks %d transactions %d coarse sum %g fine sum %g ratio %d\n",
				cfg.Backend, ranks, res.Transactions, res.CoarseSum, res.FineSum, res.Ratio)
			if res.FineSum != res.CoarseSum*float64(res.Ratio) {
				return errors.New("refined level does not conserve the coarse data")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "sequential, parallel or device (overrides the config)")
	cmd.Flags().IntVar(&ranks, "ranks", 1, "number of loopback ranks")
	return cmd
}

// refineResult holds totals over all ranks, each transaction counted once.
// With constant refinement of a level that exactly covers its parent,
// FineSum is CoarseSum times Ratio.
type refineResult struct {
	Transactions int
	CoarseSum    float64
	FineSum      float64
	Ratio        int
}

// newBackend picks the refine back-end. The device back-end opens its own
// OCCA device; the returned func releases it.
func newBackend(cfg config.Config) (pdat.RefineBackend, func(), error) {
	if cfg.Backend != "device" {
		b, err := pdat.BackendByName(cfg.Backend)
		return b, func() {}, err
	}
	device, err := utils.NewDevice(cfg.DeviceProps)
	if err != nil {
		return nil, nil, err
	}
	return builder.NewDeviceBackend(device), func() { device.Free() }, nil
}

// coarseValue numbers cells uniquely so that misplaced copies show up in
// the sums
func coarseValue(idx hier.IntVector) float64 {
	v, stride := 0, 1
	for _, i := range idx {
		v += i * stride
		stride *= 1000
	}
	return float64(v)
}

func runRefine(ctx context.Context, cfg config.Config, nranks int) (*refineResult, error) {
	if cfg.MaxLevels < 2 {
		return nil, errors.Wrapf(hier.ErrPrecondition, "refine needs two levels, config has %d", cfg.MaxLevels)
	}
	coarseBoxes, err := cfg.LevelZeroBoxes(nranks)
	if err != nil {
		return nil, err
	}
	ratio := hier.IntVector(cfg.RatioToCoarser[0]).Clone()
	fineBoxes := make([]hier.Box, len(coarseBoxes))
	for i, b := range coarseBoxes {
		if fineBoxes[i], err = hier.Refine(b, ratio); err != nil {
			return nil, err
		}
	}

	var (
		mu  sync.Mutex
		res = &refineResult{Ratio: ratio.Product()}
	)
	start := time.Now()
	err = runRanks(ctx, nranks, func(ctx context.Context, rank int, comm xfer.Communicator) error {
		backend, release, err := newBackend(cfg)
		if err != nil {
			return err
		}
		defer release()

		h, err := cfg.Hierarchy()
		if err != nil {
			return err
		}
		desc := hier.NewPatchDescriptor()
		u := desc.Register("u", pdat.NewCellDataFactory(1, hier.Zero(cfg.Dim)))
		scratch := desc.Register("u_scratch", pdat.NewCellDataFactory(1, hier.One(cfg.Dim)))
		items := xfer.NewRefineClasses(desc)
		if _, err = items.Register(xfer.RefineItem{
			Dst: u, Src: u, Scratch: scratch, Operator: pdat.NewConstantRefine(backend),
		}); err != nil {
			return err
		}
		h.RegisterConnectorWidthRequestor(items)

		coarse, err := hier.NewPatchLevel(0, h.RatioToLevelZero(0), coarseBoxes, rank, desc)
		if err != nil {
			return err
		}
		fine, err := hier.NewPatchLevel(1, h.RatioToLevelZero(1), fineBoxes, rank, desc)
		if err != nil {
			return err
		}
		if err = coarse.AllocateData(u); err != nil {
			return err
		}
		if err = fine.AllocateData(u, scratch); err != nil {
			return err
		}
		defer fine.DeallocateData(scratch)
		var coarseSum, fineSum []float64
		for _, p := range coarse.LocalPatches() {
			arr := p.Data(u).(*pdat.CellData).Array()
			arr.Box().Iterate(func(idx hier.IntVector) { arr.Set(idx, 0, coarseValue(idx)) })
			coarseSum = append(coarseSum, floats.Sum(arr.Data()))
		}
		if err = h.SetLevel(0, coarse); err != nil {
			return err
		}
		if err = h.SetLevel(1, fine); err != nil {
			return err
		}

		conn, err := h.FindConnector(1, 0)
		if err != nil {
			return err
		}
		sched, err := xfer.NewRefineSchedule(fine, coarse, conn, items, &xfer.CopyTransactionFactory{},
			xfer.Options{Communicator: comm})
		if err != nil {
			return err
		}
		if err = sched.Execute(ctx); err != nil {
			return err
		}
		for _, p := range fine.LocalPatches() {
			fineSum = append(fineSum, floats.Sum(p.Data(u).(*pdat.CellData).Array().Data()))
		}

		// Transactions with a remote destination are counted by their owner
		local := 0
		for _, k := range sched.Keys() {
			if k.Dst.Owner == rank {
				local++
			}
		}
		mu.Lock()
		defer mu.Unlock()
		res.Transactions += local
		res.CoarseSum += floats.Sum(coarseSum)
		res.FineSum += floats.Sum(fineSum)
		return nil
	})
	if err != nil {
		return nil, err
	}
	utils.Logger().WithFields(logrus.Fields{
		"backend":      cfg.Backend,
		"ranks":        nranks,
		"transactions": res.Transactions,
		"elapsed":      time.Since(start),
	}).Info("refine done")
	return res, nil
}
