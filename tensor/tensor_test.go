package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestFromDataRejectsWrongLength(t *testing.T) {
	_, err := FromData(seq(5), 2, 3)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestReshape(t *testing.T) {
	base, err := FromData(seq(24), 2, 3, 4)
	require.NoError(t, err)

	tests := []struct {
		name    string
		shape   []int
		want    []int
		wantErr bool
	}{
		{name: "explicit", shape: []int{6, 4}, want: []int{6, 4}},
		{name: "inferred", shape: []int{2, 1, -1, 4}, want: []int{2, 1, 3, 4}},
		{name: "bad volume", shape: []int{5, 5}, wantErr: true},
		{name: "inferred not divisible", shape: []int{-1, 5}, wantErr: true},
		{name: "two inferred", shape: []int{-1, -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := base.Reshape(tt.shape...)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrShapeMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Shape())
			assert.Equal(t, base.Data(), out.Data())
		})
	}
}

func TestSqueezeUnsqueeze(t *testing.T) {
	base := New(2, 1, 4, 4)

	sq, err := base.Squeeze(1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 4}, sq.Shape())

	same, err := base.Squeeze(0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 4, 4}, same.Shape())

	un, err := sq.Unsqueeze(0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4, 4}, un.Shape())

	_, err = base.Squeeze(4)
	assert.ErrorIs(t, err, ErrAxisOutOfRange)
}

func TestExpand(t *testing.T) {
	single, err := FromData([]float32{1, 2, 3, 4}, 1, 2, 2)
	require.NoError(t, err)

	out, err := single.Expand(3)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 2}, out.Shape())
	assert.Equal(t, float32(4), out.At(2, 1, 1))

	out.Set(9, 0, 0, 0)
	assert.Equal(t, float32(1), single.At(0, 0, 0))

	_, err = New(2, 2, 2).Expand(4)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestIndexAndStack(t *testing.T) {
	base, err := FromData(seq(12), 3, 2, 2)
	require.NoError(t, err)

	second, err := base.Index(1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, second.Shape())
	assert.Equal(t, []float32{4, 5, 6, 7}, second.Data())

	parts := make([]*Tensor, 3)
	for i := range parts {
		parts[i], err = base.Index(i)
		require.NoError(t, err)
	}
	stacked, err := Stack(parts...)
	require.NoError(t, err)
	assert.Equal(t, base.Shape(), stacked.Shape())
	assert.Equal(t, base.Data(), stacked.Data())

	_, err = Stack(New(2, 2), New(2, 3))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Stack()
	assert.ErrorIs(t, err, ErrEmptyStack)

	_, err = base.Index(3)
	assert.ErrorIs(t, err, ErrAxisOutOfRange)
}

func TestShapeLimits(t *testing.T) {
	tests := []struct {
		name  string
		data  []float32
		shape []int
		want  error
	}{
		{name: "product wraps to zero", shape: []int{1 << 62, 4, 1, 4}, want: ErrTooLarge},
		{name: "product wraps past int", data: seq(3), shape: []int{1 << 62, 4, 1, 3}, want: ErrTooLarge},
		{name: "over element limit", shape: []int{MaxElements, 2}, want: ErrTooLarge},
		{name: "negative dim", data: seq(4), shape: []int{-2, -2}, want: ErrShapeMismatch},
		{name: "zero dim", shape: []int{0, 4}, want: ErrShapeMismatch},
		{name: "no dims", shape: []int{}, want: ErrShapeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromData(tt.data, tt.shape...)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewPanicsOnInvalidShape(t *testing.T) {
	assert.Panics(t, func() { New(-1, 3) })
	assert.Panics(t, func() { New(1<<62, 4) })
}

func TestExpandRejectsOversizedBatch(t *testing.T) {
	mask, err := FromData(seq(4), 1, 4, 1)
	require.NoError(t, err)

	_, err = mask.Expand(1 << 62)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = mask.Expand(0)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestReshapeRejectsOverflowingShape(t *testing.T) {
	base, err := FromData(seq(4), 4)
	require.NoError(t, err)

	_, err = base.Reshape(1<<62, 4, 1<<62)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestCloneAndStackSingleElement(t *testing.T) {
	one, err := FromData([]float32{7}, 1, 1)
	require.NoError(t, err)

	c := one.Clone()
	c.Set(1, 0, 0)
	assert.Equal(t, float32(7), one.At(0, 0))

	out, err := Stack(one, c)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1}, out.Shape())
	assert.Equal(t, []float32{7, 1}, out.Data())

	wide, err := one.Expand(3)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, wide.Shape())
	assert.Equal(t, []float32{7, 7, 7}, wide.Data())
}
