package xfer

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/pdat"
	"github.com/notargets/amrsync/utils"
)

// Options tune a schedule
type Options struct {
	// Communicator reaches the other ranks. Nil means every box the
	// schedule touches must be owned by the calling rank.
	Communicator Communicator
	// Time is handed to the factory's scratch pre and post processing
	Time float64
	// FillBox, when set, returns the cells of a destination box to fill.
	// Copy transactions are restricted to it.
	FillBox func(dst hier.Box) hier.Box
}

// request is everything needed to allocate one transaction
type request struct {
	dst, src hier.Box
	ov       hier.BoxOverlap
	item     int
	key      Key
}

// Schedule moves every item of a RefineClasses table from a source level
// into a destination level. It stores allocation requests, not
// transactions, and allocates fresh transactions on every Execute, so it
// can be run any number of times.
type Schedule struct {
	dstLevel, srcLevel *hier.PatchLevel
	items              *RefineClasses
	factory            TransactionFactory
	opts               Options
	comm               Communicator
	rank               int
	requests           []request // Sorted by key
}

// NewRefineSchedule finds, from the connector's neighbours, every overlap
// between a destination box and a source box that involves this rank.
// The connector must go from dstLevel to srcLevel; the source level is
// either the same resolution as the destination or coarser.
func NewRefineSchedule(dstLevel, srcLevel *hier.PatchLevel, conn *hier.Connector, items *RefineClasses,
	factory TransactionFactory, opts Options) (*Schedule, error) {
	if dstLevel == nil || srcLevel == nil || conn == nil || items == nil || factory == nil {
		return nil, errors.Wrap(hier.ErrPrecondition, "new schedule: nil argument")
	}
	if conn.Base() != dstLevel || conn.Head() != srcLevel {
		return nil, errors.Wrapf(hier.ErrPrecondition, "new schedule: connector does not go from level %d to level %d",
			dstLevel.Number, srcLevel.Number)
	}
	if dstLevel.Rank != srcLevel.Rank {
		return nil, errors.Wrapf(hier.ErrPrecondition, "new schedule: levels seen by ranks %d and %d",
			dstLevel.Rank, srcLevel.Rank)
	}
	comm := opts.Communicator
	if comm == nil {
		comm = selfCommunicator{rank: dstLevel.Rank}
	}
	if comm.Rank() != dstLevel.Rank {
		return nil, errors.Wrapf(hier.ErrPrecondition, "new schedule: communicator rank %d, level rank %d",
			comm.Rank(), dstLevel.Rank)
	}
	s := &Schedule{
		dstLevel: dstLevel,
		srcLevel: srcLevel,
		items:    items,
		factory:  factory,
		opts:     opts,
		comm:     comm,
		rank:     dstLevel.Rank,
	}
	if err := s.findOverlaps(conn); err != nil {
		return nil, err
	}
	utils.Logger().WithFields(logrus.Fields{
		"semantic": factory.Semantic(),
		"rank":     s.rank,
		"dst":      dstLevel.Number,
		"src":      srcLevel.Number,
	}).Debugf("schedule holds %d transactions", len(s.requests))
	return s, nil
}

// NewSumSchedule builds a boundary sum schedule on one level
func NewSumSchedule(level *hier.PatchLevel, conn *hier.Connector, items *RefineClasses, opts Options) (*Schedule, error) {
	return NewRefineSchedule(level, level, conn, items, &OuternodeSumTransactionFactory{}, opts)
}

func (s *Schedule) findOverlaps(conn *hier.Connector) error {
	ratio, srcFiner := conn.Ratio()
	dim := ratio.Dim()
	sameResolution := ratio.Equal(hier.One(dim))
	if srcFiner && !sameResolution {
		return errors.Wrapf(hier.ErrPrecondition, "new schedule: source level %d is finer than destination level %d",
			s.srcLevel.Number, s.dstLevel.Number)
	}
	desc := s.dstLevel.Descriptor()
	for _, b := range s.dstLevel.Boxes() {
		for _, nb := range conn.Neighbors(b.LocalID) {
			if b.Owner != s.rank && nb.Owner != s.rank {
				continue
			}
			shift, err := conn.PeriodicOffset(nb)
			if err != nil {
				return err
			}
			src := nb
			if !sameResolution {
				if src, err = hier.Refine(nb, ratio); err != nil {
					return err
				}
				if shift, err = shift.Mul(ratio); err != nil {
					return err
				}
			}
			for id := 0; id < s.items.NumItems(); id++ {
				item, _ := s.items.Item(id)
				f, err := desc.Factory(item.Scratch)
				if err != nil {
					return err
				}
				ghost, err := hier.Grow(b, f.Ghosts())
				if err != nil {
					return err
				}
				ov, err := f.Geometry().CalculateOverlap(ghost, src, shift, hier.Box{})
				if err != nil {
					return errors.Wrapf(err, "overlap of %v and %v", b.ID(), nb.ID())
				}
				if ov.IsOverlapEmpty() {
					continue
				}
				s.requests = append(s.requests, request{
					dst:  b,
					src:  nb,
					ov:   ov,
					item: id,
					key:  Key{Dst: b.ID(), Item: id, Src: nb.ID()},
				})
			}
		}
	}
	sort.SliceStable(s.requests, func(i, j int) bool { return s.requests[i].key.Less(s.requests[j].key) })
	return nil
}

// NumTransactions is the number of transactions each Execute allocates
func (s *Schedule) NumTransactions() int { return len(s.requests) }

// Keys returns the transaction keys in application order
func (s *Schedule) Keys() []Key {
	keys := make([]Key, len(s.requests))
	for i, r := range s.requests {
		keys[i] = r.key
	}
	return keys
}

func (s *Schedule) allocate() ([]Transaction, error) {
	txs := make([]Transaction, len(s.requests))
	for i, r := range s.requests {
		fill := hier.Box{}
		if s.opts.FillBox != nil {
			fill = s.opts.FillBox(r.dst)
		}
		t, err := s.factory.AllocateFill(s.dstLevel, s.srcLevel, r.ov, r.dst, r.src, s.items, r.item, fill, false)
		if err != nil {
			return nil, errors.Wrapf(err, "allocate %v", r.key)
		}
		txs[i] = t
	}
	return txs, nil
}

// Execute runs the schedule: scratch preprocessing, sends to remote
// destinations, then every transaction with a local destination in key
// order, the scratch to destination copy and postprocessing.
func (s *Schedule) Execute(ctx context.Context) error {
	start := time.Now()
	log := utils.Logger().WithFields(logrus.Fields{
		"schedule": uuid.NewString(),
		"semantic": s.factory.Semantic(),
		"rank":     s.rank,
	})

	selector := s.items.ScratchSelector()
	if err := s.factory.PreprocessScratchSpace(s.dstLevel, s.opts.Time, selector); err != nil {
		return err
	}
	txs, err := s.allocate()
	if err != nil {
		return err
	}

	sends := make(map[int][]int)
	recvs := make(map[int][]int)
	for i, t := range txs {
		switch {
		case t.SourceRank() == s.rank && t.DestinationRank() != s.rank:
			sends[t.DestinationRank()] = append(sends[t.DestinationRank()], i)
		case t.DestinationRank() == s.rank && t.SourceRank() != s.rank:
			recvs[t.SourceRank()] = append(recvs[t.SourceRank()], i)
		}
	}
	if err = s.send(ctx, txs, sends); err != nil {
		return err
	}
	incoming, err := s.receive(ctx, txs, recvs)
	if err != nil {
		return err
	}

	applied := 0
	for i, t := range txs {
		if t.DestinationRank() != s.rank {
			continue
		}
		if t.SourceRank() == s.rank {
			err = t.CopyLocalData()
		} else {
			in := utils.NewMessageStreamFrom(incoming[i])
			if err = t.UnpackStream(in); err == nil && in.Remaining() != 0 {
				err = errors.Wrapf(hier.ErrPrecondition, "%v left %d bytes unread", t.Key(), in.Remaining())
			}
		}
		if err != nil {
			return err
		}
		applied++
	}

	if err = s.copyScratchToDestination(); err != nil {
		return err
	}
	if err = s.factory.PostprocessScratchSpace(s.dstLevel, s.opts.Time, selector); err != nil {
		return err
	}
	elapsed := time.Since(start)
	scheduleDuration.Observe(elapsed.Seconds())
	log.WithFields(logrus.Fields{
		"transactions": len(txs),
		"applied":      applied,
		"peers":        len(sends) + len(recvs),
	}).Debugf("schedule executed in %v", elapsed)
	return nil
}

func sortedPeers(m map[int][]int) []int {
	peers := make([]int, 0, len(m))
	for p := range m {
		peers = append(peers, p)
	}
	sort.Ints(peers)
	return peers
}

// send packs one stream per peer, transactions in key order
func (s *Schedule) send(ctx context.Context, txs []Transaction, sends map[int][]int) error {
	for _, peer := range sortedPeers(sends) {
		size := 0
		for _, i := range sends[peer] {
			n, err := txs[i].ComputeOutgoingMessageSize()
			if err != nil {
				return err
			}
			size += n
		}
		ms := utils.NewMessageStream(size)
		for _, i := range sends[peer] {
			if err := txs[i].PackStream(ms); err != nil {
				return err
			}
		}
		if err := s.comm.Send(ctx, peer, ms.Bytes()); err != nil {
			return errors.Wrapf(err, "send to rank %d", peer)
		}
		streamBytes.WithLabelValues("out").Add(float64(ms.Size()))
	}
	return nil
}

// receive takes one stream per peer and splits it into the pieces of the
// transactions it carries, keyed by transaction index
func (s *Schedule) receive(ctx context.Context, txs []Transaction, recvs map[int][]int) (map[int][]byte, error) {
	incoming := make(map[int][]byte)
	for _, peer := range sortedPeers(recvs) {
		msg, err := s.comm.Recv(ctx, peer)
		if err != nil {
			return nil, errors.Wrapf(err, "receive from rank %d", peer)
		}
		streamBytes.WithLabelValues("in").Add(float64(len(msg)))
		off := 0
		for _, i := range recvs[peer] {
			t := txs[i]
			if !t.CanEstimateIncomingMessageSize() {
				return nil, errors.Wrapf(ErrUnsupported, "%v cannot size its incoming stream", t.Key())
			}
			n, err := t.ComputeIncomingMessageSize()
			if err != nil {
				return nil, err
			}
			if off+n > len(msg) {
				return nil, errors.Wrapf(utils.ErrStreamUnderflow, "message from rank %d: %d bytes, need %d",
					peer, len(msg), off+n)
			}
			incoming[i] = msg[off : off+n]
			off += n
		}
		if off != len(msg) {
			return nil, errors.Wrapf(hier.ErrPrecondition, "message from rank %d: %d bytes, used %d", peer, len(msg), off)
		}
	}
	return incoming, nil
}

// copyScratchToDestination copies each item's scratch into its
// destination component on every local patch when the two differ. A fill
// box limits the copy to the cells that were filled.
func (s *Schedule) copyScratchToDestination() error {
	desc := s.dstLevel.Descriptor()
	for id := 0; id < s.items.NumItems(); id++ {
		item, _ := s.items.Item(id)
		if item.Scratch == item.Dst {
			continue
		}
		f, err := desc.Factory(item.Dst)
		if err != nil {
			return err
		}
		for _, p := range s.dstLevel.LocalPatches() {
			dst, scratch := p.Data(item.Dst), p.Data(item.Scratch)
			if dst == nil || scratch == nil {
				return errors.Wrapf(hier.ErrPrecondition, "level %d box %d: item %d not allocated",
					s.dstLevel.Number, p.LocalID(), id)
			}
			ov, err := f.Geometry().CalculateOverlap(dst.GhostBox(), scratch.GhostBox(), hier.Zero(p.Box().Dim()), hier.Box{})
			if err != nil {
				return err
			}
			if s.opts.FillBox != nil {
				if ov, err = pdat.RestrictOverlap(ov, s.opts.FillBox(p.Box())); err != nil {
					return errors.Wrapf(err, "level %d box %d item %d", s.dstLevel.Number, p.LocalID(), id)
				}
			}
			if err = dst.Copy(scratch, ov); err != nil {
				return errors.Wrapf(err, "level %d box %d item %d", s.dstLevel.Number, p.LocalID(), id)
			}
		}
	}
	return nil
}
