package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notargets/amrsync/algs"
	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/pdat"
	"github.com/notargets/amrsync/xfer"
)

func newWidthsCmd(a *app) *cobra.Command {
	var cellGhosts, faceGhosts int
	cmd := &cobra.Command{
		Use:   "widths",
		Short: "Print the connector widths requested by the registered algorithms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWidths(cmd, cellGhosts, faceGhosts)
		},
	}
	cmd.Flags().IntVar(&cellGhosts, "cell-ghosts", 1, "ghost width of the refined cell component")
	cmd.Flags().IntVar(&faceGhosts, "face-ghosts", 1, "ghost width of the refined face component")
	return cmd
}

func (a *app) runWidths(cmd *cobra.Command, cellGhosts, faceGhosts int) error {
	h, err := a.cfg.Hierarchy()
	if err != nil {
		return err
	}
	dim := a.cfg.Dim
	desc := hier.NewPatchDescriptor()
	u := desc.Register("u", pdat.NewCellDataFactory(1, hier.NewIntVector(dim, cellGhosts)))
	v := desc.Register("v", pdat.NewFaceDataFactory(1, hier.NewIntVector(dim, faceGhosts)))
	w := desc.Register("w", pdat.NewNodeDataFactory(1, hier.Zero(dim)))

	items := xfer.NewRefineClasses(desc)
	for _, id := range []int{u, v} {
		if _, err = items.Register(xfer.RefineItem{Dst: id, Src: id, Scratch: id}); err != nil {
			return err
		}
	}
	tags, err := algs.NewTagBufferWidthRequestor(a.cfg.TagBuffer)
	if err != nil {
		return err
	}
	sum := algs.NewPatchBoundaryNodeSum("w_sum", desc)
	if err = sum.RegisterSum(w); err != nil {
		return err
	}
	h.RegisterConnectorWidthRequestor(items)
	h.RegisterConnectorWidthRequestor(tags)
	h.RegisterConnectorWidthRequestor(sum)

	self, fine, err := h.ConnectorWidths()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for ln := range self {
		fmt.Fprintf(out, "level %d self %v", ln, self[ln])
		if ln < len(fine) {
			fmt.Fprintf(out, " fine %v", fine[ln])
		}
		fmt.Fprintln(out)
	}
	return nil
}
