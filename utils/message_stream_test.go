package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageStream_RoundTripPreservesBits(t *testing.T) {
	values := []float64{0, -0.0, 1.5, math.Inf(-1), math.SmallestNonzeroFloat64, 1.0 / 3.0}

	s := NewMessageStream(len(values) * Float64Bytes)
	s.PackFloat64s(values)
	s.PackFloat64(42)
	assert.Equal(t, (len(values)+1)*Float64Bytes, s.Size())

	r := NewMessageStreamFrom(s.Bytes())
	got := make([]float64, len(values))
	require.NoError(t, r.UnpackFloat64s(got))
	for i := range values {
		assert.Equal(t, math.Float64bits(values[i]), math.Float64bits(got[i]), "value %d", i)
	}
	last, err := r.UnpackFloat64()
	require.NoError(t, err)
	assert.Equal(t, 42.0, last)
	assert.Equal(t, 0, r.Remaining())
}

func TestMessageStream_Underflow(t *testing.T) {
	r := NewMessageStreamFrom(make([]byte, 12))
	_, err := r.UnpackFloat64()
	require.NoError(t, err)
	_, err = r.UnpackFloat64()
	assert.ErrorIs(t, err, ErrStreamUnderflow)

	buf := make([]float64, 2)
	assert.ErrorIs(t, NewMessageStreamFrom(nil).UnpackFloat64s(buf), ErrStreamUnderflow)
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, "debug", Logger().GetLevel().String())
	require.NoError(t, SetLogLevel("info"))
	assert.Error(t, SetLogLevel("loud"))
}
