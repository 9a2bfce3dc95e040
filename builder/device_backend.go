package builder

import (
	"fmt"

	"github.com/notargets/gocca"

	"github.com/notargets/amrsync/pdat"
	"github.com/notargets/amrsync/utils"
)

const gatherKernelName = "gatherTransfer"

// gatherKernel reads one coarse value per fine location. Each partition
// is one chunk of a transfer plan; the scatter by place happens on the
// host so region order is kept.
const gatherKernel = `
@kernel void gatherTransfer(const int_t* K,
                            const real_t* src,
                            const int_t* pick_global,
                            const int_t* pick_offsets,
                            real_t* gathered_global,
                            const int_t* gathered_offsets) {
  for (int part = 0; part < NPART; ++part; @outer) {
    const int_t* pick = pick_PART(part);
    real_t* gathered = gathered_PART(part);
    for (int elem = 0; elem < KpartMax; ++elem; @inner) {
      if (elem < K[part]) {
        gathered[elem] = src[pick[elem]];
      }
    }
  }
}
`

// DeviceBackend runs the gather half of a transfer plan on an OCCA device
type DeviceBackend struct {
	Device    *gocca.OCCADevice
	ChunkSize int // Zero means pdat.DefaultChunkSize
}

func NewDeviceBackend(device *gocca.OCCADevice) *DeviceBackend {
	return &DeviceBackend{Device: device}
}

func (b *DeviceBackend) Name() string { return "device" }

func (b *DeviceBackend) chunkSize() int {
	size := b.ChunkSize
	if size < 1 {
		size = pdat.DefaultChunkSize
	}
	return min(size, MaxInnerLoop)
}

// Gather implements pdat.RefineBackend
func (b *DeviceBackend) Gather(plan *pdat.TransferPlan, dst, src []float64) error {
	if b.Device == nil {
		return fmt.Errorf("device backend has no device")
	}
	if len(src) != plan.SrcLen || len(dst) != plan.DstLen {
		return fmt.Errorf("plan for %d->%d values run on %d->%d", plan.SrcLen, plan.DstLen, len(src), len(dst))
	}
	if plan.Len() == 0 {
		return nil
	}

	chunks := plan.Chunks(b.chunkSize())
	k := make([]int, len(chunks))
	for i, c := range chunks {
		k[i] = c[1] - c[0]
	}

	kb := NewBuilder(b.Device, Config{K: k, FloatType: Float64, IntType: INT64})
	defer kb.Free()

	n := int64(plan.Len())
	err := kb.AllocateArrays([]ArraySpec{
		{Name: "pick", Size: n * 8, DataType: INT64, Alignment: NoAlignment},
		{Name: "gathered", Size: n * 8, DataType: Float64, Alignment: CacheLineAlign},
	})
	if err != nil {
		return err
	}
	// Chunks are contiguous and in plan order
	pick := make([]int64, plan.Len())
	for i, p := range plan.Pick {
		pick[i] = int64(p)
	}
	if err = CopyArrayFromHost(kb, "pick", pick); err != nil {
		return err
	}
	if err = kb.AllocateShared("src", src); err != nil {
		return err
	}

	if _, err = kb.BuildKernel(gatherKernel, gatherKernelName); err != nil {
		return err
	}
	if err = kb.RunKernel(gatherKernelName, "src", "pick", "gathered"); err != nil {
		return fmt.Errorf("kernel execution failed: %w", err)
	}
	b.Device.Finish()

	gathered, err := CopyArrayToHost[float64](kb, "gathered")
	if err != nil {
		return err
	}
	for i, v := range gathered {
		dst[plan.Place[i]] = v
	}
	utils.Logger().WithField("mode", b.Device.Mode()).
		WithField("partitions", len(k)).
		Tracef("device gather of %d values", len(gathered))
	return nil
}
