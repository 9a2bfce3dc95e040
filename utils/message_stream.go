package utils

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ErrStreamUnderflow is returned when a read runs past the end of a stream
var ErrStreamUnderflow = errors.New("message stream underflow")

// Float64Bytes is the packed size of one float64 value
const Float64Bytes = 8

// MessageStream is a byte buffer that transactions pack into on the
// sending side and unpack from on the receiving side. Values are written
// little-endian so both ends agree regardless of host.
type MessageStream struct {
	buf []byte
	pos int
}

// NewMessageStream creates an empty stream with the given capacity in bytes
func NewMessageStream(capacity int) *MessageStream {
	return &MessageStream{buf: make([]byte, 0, capacity)}
}

// NewMessageStreamFrom wraps received bytes for unpacking
func NewMessageStreamFrom(b []byte) *MessageStream {
	return &MessageStream{buf: b}
}

// PackFloat64s appends values to the stream
func (s *MessageStream) PackFloat64s(values []float64) {
	for _, v := range values {
		s.buf = binary.LittleEndian.AppendUint64(s.buf, math.Float64bits(v))
	}
}

// PackFloat64 appends a single value
func (s *MessageStream) PackFloat64(v float64) {
	s.buf = binary.LittleEndian.AppendUint64(s.buf, math.Float64bits(v))
}

// UnpackFloat64s fills values from the current read position
func (s *MessageStream) UnpackFloat64s(values []float64) error {
	need := len(values) * Float64Bytes
	if s.pos+need > len(s.buf) {
		return errors.Wrapf(ErrStreamUnderflow, "need %d bytes, have %d", need, len(s.buf)-s.pos)
	}
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(s.buf[s.pos:]))
		s.pos += Float64Bytes
	}
	return nil
}

// UnpackFloat64 reads a single value
func (s *MessageStream) UnpackFloat64() (float64, error) {
	if s.pos+Float64Bytes > len(s.buf) {
		return 0, errors.Wrapf(ErrStreamUnderflow, "need %d bytes, have %d", Float64Bytes, len(s.buf)-s.pos)
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(s.buf[s.pos:]))
	s.pos += Float64Bytes
	return v, nil
}

// Bytes returns the packed contents
func (s *MessageStream) Bytes() []byte { return s.buf }

// Size returns the number of packed bytes
func (s *MessageStream) Size() int { return len(s.buf) }

// Remaining returns the number of bytes not yet unpacked
func (s *MessageStream) Remaining() int { return len(s.buf) - s.pos }
