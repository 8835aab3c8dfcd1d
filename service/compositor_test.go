package service

import (
	"testing"

	"github.com/TIANLI0/D2Nodes/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTensor(t *testing.T, data []float32, shape ...int) *tensor.Tensor {
	t.Helper()
	out, err := tensor.FromData(data, shape...)
	require.NoError(t, err)
	return out
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%97) / 96
	}
	return out
}

func alphaPlane(t *testing.T, out *tensor.Tensor, i int) []float32 {
	t.Helper()
	h, w := out.Dim(1), out.Dim(2)
	plane := make([]float32, 0, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			plane = append(plane, out.At(i, y, x, 3))
		}
	}
	return plane
}

func TestCompositeSingleMaskScenario(t *testing.T) {
	color := tensor.New(2, 4, 4, 3)
	mask := tensor.Full(1, 4, 4)

	out, err := NewAlphaCompositor(nil).Composite(color, mask, false)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 4, 4}, out.Shape())

	for i := 0; i < 2; i++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				for c := 0; c < 3; c++ {
					assert.Zero(t, out.At(i, y, x, c))
				}
				assert.Equal(t, float32(1), out.At(i, y, x, 3))
			}
		}
	}
}

func TestCompositeSharedMaskAcrossBatch(t *testing.T) {
	color := mustTensor(t, ramp(3*2*5*3), 3, 2, 5, 3)
	mask := mustTensor(t, ramp(10), 2, 5)

	for _, invert := range []bool{false, true} {
		out, err := NewAlphaCompositor(nil).Composite(color, mask, invert)
		require.NoError(t, err)
		require.Equal(t, []int{3, 2, 5, 4}, out.Shape())

		want := append([]float32(nil), mask.Data()...)
		if invert {
			for i := range want {
				want[i] = 1 - want[i]
			}
		}
		for i := 0; i < 3; i++ {
			assert.Equal(t, want, alphaPlane(t, out, i))
		}
	}
}

func TestCompositeBatchedMaskPassesThrough(t *testing.T) {
	color := mustTensor(t, ramp(2*3*3*3), 2, 3, 3, 3)
	maskData := ramp(2 * 3 * 3)
	mask := mustTensor(t, append([]float32(nil), maskData...), 2, 3, 3)

	out, err := NewAlphaCompositor(nil).Composite(color, mask, false)
	require.NoError(t, err)

	assert.Equal(t, maskData[:9], alphaPlane(t, out, 0))
	assert.Equal(t, maskData[9:], alphaPlane(t, out, 1))
	for p := 0; p < 2*3*3; p++ {
		assert.Equal(t, color.Data()[p*3:p*3+3], out.Data()[p*4:p*4+3])
	}
	assert.Equal(t, maskData, mask.Data(), "input mask must not be mutated")
}

func TestCompositeChannelMaskScenario(t *testing.T) {
	color := tensor.New(2, 4, 4, 3)
	data := append(filled(16, 0.2), filled(16, 0.8)...)
	mask := mustTensor(t, data, 2, 1, 4, 4)
	lo, hi := float32(0.2), float32(0.8)

	tests := []struct {
		name   string
		invert bool
		first  float32
		second float32
	}{
		{name: "plain", invert: false, first: lo, second: hi},
		{name: "inverted", invert: true, first: 1 - lo, second: 1 - hi},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewAlphaCompositor(nil).Composite(color, mask, tt.invert)
			require.NoError(t, err)
			assert.Equal(t, filled(16, tt.first), alphaPlane(t, out, 0))
			assert.Equal(t, filled(16, tt.second), alphaPlane(t, out, 1))
		})
	}
}

func TestCompositeAcceptsMaskRanks(t *testing.T) {
	color := tensor.New(2, 3, 3, 4)

	tests := []struct {
		name  string
		shape []int
	}{
		{name: "single", shape: []int{3, 3}},
		{name: "batched", shape: []int{2, 3, 3}},
		{name: "broadcast", shape: []int{1, 3, 3}},
		{name: "channel", shape: []int{2, 1, 3, 3}},
		{name: "channel broadcast", shape: []int{1, 1, 3, 3}},
		{name: "double channel", shape: []int{2, 1, 1, 3, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask := tensor.Full(0.5, tt.shape...)
			out, err := NewAlphaCompositor(nil).Composite(color, mask, false)
			require.NoError(t, err)
			assert.Equal(t, []int{2, 3, 3, 4}, out.Shape())
			assert.Equal(t, filled(9, 0.5), alphaPlane(t, out, 1))
		})
	}
}

func TestCompositeDropsInputAlpha(t *testing.T) {
	color := tensor.Full(0.25, 1, 2, 2, 4)
	mask := tensor.Full(0.75, 2, 2)

	out, err := NewAlphaCompositor(nil).Composite(color, mask, false)
	require.NoError(t, err)
	for p := 0; p < 4; p++ {
		assert.Equal(t, []float32{0.25, 0.25, 0.25, 0.75}, out.Data()[p*4:p*4+4])
	}
}

func TestCompositeErrors(t *testing.T) {
	tests := []struct {
		name    string
		color   *tensor.Tensor
		mask    *tensor.Tensor
		wantErr error
	}{
		{name: "image rank", color: tensor.New(4, 4, 3), mask: tensor.New(4, 4), wantErr: ErrImageShape},
		{name: "image channels", color: tensor.New(1, 4, 4, 2), mask: tensor.New(4, 4), wantErr: ErrChannelCount},
		{name: "image rank 5", color: tensor.New(1, 1, 4, 4, 3), mask: tensor.New(4, 4), wantErr: ErrImageShape},
		{name: "batch mismatch", color: tensor.New(2, 4, 4, 3), mask: tensor.New(3, 4, 4), wantErr: ErrMaskBatchMismatch},
		{name: "non conforming rank 1", color: tensor.New(2, 4, 4, 3), mask: tensor.New(7), wantErr: ErrUnsupportedMaskShape},
		{name: "non conforming rank 6", color: tensor.New(2, 4, 4, 3), mask: tensor.New(1, 1, 1, 1, 3, 3), wantErr: ErrUnsupportedMaskShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAlphaCompositor(nil).Composite(tt.color, tt.mask, false)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDoubleInversionRestoresMask(t *testing.T) {
	mask := mustTensor(t, []float32{0, 0.25, 0.5, 1}, 2, 2)
	orig := append([]float32(nil), mask.Data()...)

	InvertMask(mask)
	InvertMask(mask)
	assert.Equal(t, orig, mask.Data())
}
