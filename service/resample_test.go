package service

import (
	"testing"

	"github.com/TIANLI0/D2Nodes/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleBilinearConstantField(t *testing.T) {
	out, err := ResampleBilinear(filled(6, 0.4), 2, 3, 5, 7)
	require.NoError(t, err)
	require.Len(t, out, 35)
	for _, v := range out {
		assert.InDelta(t, 0.4, v, 1e-6)
	}
}

func TestResampleBilinearHalvesRows(t *testing.T) {
	src := []float32{
		0, 1, 2, 3,
		0, 1, 2, 3,
	}
	out, err := ResampleBilinear(src, 2, 4, 2, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.5, 2.5, 0.5, 2.5}, out, 1e-6)
}

func TestResampleBilinearIdentityCopies(t *testing.T) {
	src := []float32{1, 2, 3, 4}
	out, err := ResampleBilinear(src, 2, 2, 2, 2)
	require.NoError(t, err)
	out[0] = 9
	assert.Equal(t, float32(1), src[0])
}

func TestResampleBilinearRejectsBadSizes(t *testing.T) {
	_, err := ResampleBilinear(filled(4, 1), 2, 2, 0, 3)
	assert.ErrorIs(t, err, ErrResample)

	_, err = ResampleBilinear(filled(3, 1), 2, 2, 4, 4)
	assert.ErrorIs(t, err, ErrResample)
}

func TestCompositeResizesMismatchedMask(t *testing.T) {
	color := tensor.New(2, 6, 8, 3)
	mask := tensor.Full(0.6, 3, 4)

	out, err := NewAlphaCompositor(nil).Composite(color, mask, false)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 6, 8, 4}, out.Shape())
	for _, v := range alphaPlane(t, out, 1) {
		assert.InDelta(t, 0.6, v, 1e-6)
	}
}
