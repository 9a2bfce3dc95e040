package xfer

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/notargets/amrsync/hier"
)

// Communicator is the point-to-point transport a schedule uses. Messages
// between one pair of ranks arrive in the order they were sent.
type Communicator interface {
	Rank() int
	Size() int
	Send(ctx context.Context, to int, msg []byte) error
	Recv(ctx context.Context, from int) ([]byte, error)
}

// mailbox is an unbounded queue of messages from one rank to another
type mailbox struct {
	mu    sync.Mutex
	queue [][]byte
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) put(msg []byte) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

func (m *mailbox) take(ctx context.Context) ([]byte, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			msg := m.queue[0]
			m.queue = m.queue[1:]
			more := len(m.queue) > 0
			m.mu.Unlock()
			if more {
				select {
				case m.ready <- struct{}{}:
				default:
				}
			}
			return msg, nil
		}
		m.mu.Unlock()
		select {
		case <-m.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// LoopbackNetwork connects n in-process ranks. Sends never block.
type LoopbackNetwork struct {
	size  int
	boxes [][]*mailbox // boxes[from][to]
}

func NewLoopbackNetwork(n int) *LoopbackNetwork {
	if n < 1 {
		panic("NewLoopbackNetwork: need at least one rank")
	}
	net := &LoopbackNetwork{size: n, boxes: make([][]*mailbox, n)}
	for from := range net.boxes {
		net.boxes[from] = make([]*mailbox, n)
		for to := range net.boxes[from] {
			net.boxes[from][to] = newMailbox()
		}
	}
	return net
}

// Endpoint returns the communicator of one rank
func (n *LoopbackNetwork) Endpoint(rank int) Communicator {
	if rank < 0 || rank >= n.size {
		panic("LoopbackNetwork.Endpoint: rank out of range")
	}
	return &loopbackEndpoint{net: n, rank: rank}
}

type loopbackEndpoint struct {
	net  *LoopbackNetwork
	rank int
}

func (e *loopbackEndpoint) Rank() int { return e.rank }

func (e *loopbackEndpoint) Size() int { return e.net.size }

func (e *loopbackEndpoint) checkPeer(peer int) error {
	if peer < 0 || peer >= e.net.size {
		return errors.Wrapf(hier.ErrPrecondition, "rank %d: peer %d out of range", e.rank, peer)
	}
	return nil
}

func (e *loopbackEndpoint) Send(ctx context.Context, to int, msg []byte) error {
	if err := e.checkPeer(to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.net.boxes[e.rank][to].put(append([]byte(nil), msg...))
	return nil
}

func (e *loopbackEndpoint) Recv(ctx context.Context, from int) ([]byte, error) {
	if err := e.checkPeer(from); err != nil {
		return nil, err
	}
	return e.net.boxes[from][e.rank].take(ctx)
}

// selfCommunicator is the single-rank transport used when a schedule is
// given none
type selfCommunicator struct {
	rank int
}

func (s selfCommunicator) Rank() int { return s.rank }

func (s selfCommunicator) Size() int { return s.rank + 1 }

func (s selfCommunicator) Send(ctx context.Context, to int, msg []byte) error {
	return errors.Wrapf(hier.ErrPrecondition, "rank %d has no communicator to reach rank %d", s.rank, to)
}

func (s selfCommunicator) Recv(ctx context.Context, from int) ([]byte, error) {
	return nil, errors.Wrapf(hier.ErrPrecondition, "rank %d has no communicator to reach rank %d", s.rank, from)
}
