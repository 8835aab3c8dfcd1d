// Package tensor 节点之间传递的 float32 多维数组，存储和数据搬运基于 gorgonia 的 Dense
package tensor

import (
	"errors"
	"fmt"

	gt "gorgonia.org/tensor"
)

var (
	ErrShapeMismatch  = errors.New("tensor shape mismatch")
	ErrAxisOutOfRange = errors.New("tensor axis out of range")
	ErrEmptyStack     = errors.New("nothing to stack")
	ErrTooLarge       = errors.New("tensor too large")
)

// MaxElements 单个张量允许的最大元素数（1 GiB float32）
const MaxElements = 1 << 28

// Tensor 行优先存储的 float32 多维数组，形状以 shape 为准
type Tensor struct {
	shape []int
	data  []float32
	dense *gt.Dense
}

// CheckShape 校验形状并返回元素数，维度必须为正且总数不超过 MaxElements
func CheckShape(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrShapeMismatch)
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: invalid shape %v", ErrShapeMismatch, shape)
		}
		if n > MaxElements/d {
			return 0, fmt.Errorf("%w: shape %v exceeds %d elements", ErrTooLarge, shape, MaxElements)
		}
		n *= d
	}
	return n, nil
}

// wrap 构建与 data 共用存储的 Dense
func wrap(shape []int, data []float32) *Tensor {
	return &Tensor{
		shape: append([]int(nil), shape...),
		data:  data,
		dense: gt.New(gt.WithShape(shape...), gt.WithBacking(data)),
	}
}

// float32s 取出 Dense 运算结果的数据，单元素结果可能以标量返回
func float32s(v any) ([]float32, bool) {
	switch d := v.(type) {
	case []float32:
		return d, true
	case float32:
		return []float32{d}, true
	}
	return nil, false
}

// New 创建全零张量，形状无效时 panic
func New(shape ...int) *Tensor {
	n, err := CheckShape(shape)
	if err != nil {
		panic(err)
	}
	return wrap(shape, make([]float32, n))
}

// Full 创建以 value 填充的张量
func Full(value float32, shape ...int) *Tensor {
	t := New(shape...)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// FromData 使用已有数据创建张量，数据不复制
func FromData(data []float32, shape ...int) (*Tensor, error) {
	n, err := CheckShape(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	return wrap(shape, data), nil
}

func (t *Tensor) Rank() int { return len(t.shape) }

func (t *Tensor) Len() int { return len(t.data) }

// Dim 返回第 i 维大小，负数从末尾计
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }

// Data 返回底层数据，调用方不得修改
func (t *Tensor) Data() []float32 { return t.data }

func (t *Tensor) At(idx ...int) float32 { return t.data[t.offset(idx)] }

func (t *Tensor) Set(v float32, idx ...int) { t.data[t.offset(idx)] = v }

func (t *Tensor) Clone() *Tensor {
	data, ok := float32s(t.dense.Clone().(*gt.Dense).Data())
	if !ok || len(data) != len(t.data) {
		data = append([]float32(nil), t.data...)
	}
	return wrap(t.shape, data)
}

// Reshape 返回共享数据的新视图，最多允许一个 -1
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	out := append([]int(nil), shape...)
	size := t.Len()
	infer := -1
	known := 1
	for i, d := range out {
		switch {
		case d == -1 && infer < 0:
			infer = i
		case d <= 0 || known > size/d:
			return nil, fmt.Errorf("%w: cannot reshape %v into %v", ErrShapeMismatch, t.shape, shape)
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if size%known != 0 {
			return nil, fmt.Errorf("%w: cannot reshape %v into %v", ErrShapeMismatch, t.shape, shape)
		}
		out[infer] = size / known
	}
	if n, err := CheckShape(out); err != nil || n != size {
		return nil, fmt.Errorf("%w: cannot reshape %v into %v", ErrShapeMismatch, t.shape, shape)
	}
	return wrap(out, t.data), nil
}

// Squeeze 去掉大小为 1 的轴，轴大小不为 1 时原样返回
func (t *Tensor) Squeeze(axis int) (*Tensor, error) {
	if axis < 0 || axis >= len(t.shape) {
		return nil, fmt.Errorf("%w: squeeze axis %d of %v", ErrAxisOutOfRange, axis, t.shape)
	}
	if t.shape[axis] != 1 || len(t.shape) == 1 {
		return t, nil
	}
	out := append(append([]int(nil), t.shape[:axis]...), t.shape[axis+1:]...)
	return wrap(out, t.data), nil
}

// Unsqueeze 在 axis 处插入大小为 1 的轴
func (t *Tensor) Unsqueeze(axis int) (*Tensor, error) {
	if axis < 0 || axis > len(t.shape) {
		return nil, fmt.Errorf("%w: unsqueeze axis %d of %v", ErrAxisOutOfRange, axis, t.shape)
	}
	out := make([]int, 0, len(t.shape)+1)
	out = append(out, t.shape[:axis]...)
	out = append(out, 1)
	out = append(out, t.shape[axis:]...)
	return wrap(out, t.data), nil
}

// Expand 把首轴从 1 广播到 n，结果是独立副本
func (t *Tensor) Expand(n int) (*Tensor, error) {
	if len(t.shape) == 0 || t.shape[0] != 1 || n < 1 {
		return nil, fmt.Errorf("%w: cannot expand %v to leading size %d", ErrShapeMismatch, t.shape, n)
	}
	out := t.Shape()
	out[0] = n
	size, err := CheckShape(out)
	if err != nil {
		return nil, err
	}
	if n == 1 {
		return t.Clone(), nil
	}

	repeated, err := gt.Repeat(t.dense, 0, n)
	if err != nil {
		return nil, fmt.Errorf("expand %v: %w", t.shape, err)
	}
	data, ok := float32s(repeated.Data())
	if !ok || len(data) != size {
		return nil, fmt.Errorf("%w: expand %v produced %d values", ErrShapeMismatch, t.shape, len(data))
	}
	return wrap(out, data), nil
}

// Index 复制首轴上的第 i 个子数组
func (t *Tensor) Index(i int) (*Tensor, error) {
	if len(t.shape) < 2 || i < 0 || i >= t.shape[0] {
		return nil, fmt.Errorf("%w: index %d of %v", ErrAxisOutOfRange, i, t.shape)
	}
	step := t.Len() / t.shape[0]
	data := append([]float32(nil), t.data[i*step:(i+1)*step]...)
	return wrap(t.shape[1:], data), nil
}

// Stack 沿新的首轴堆叠形状相同的张量
func Stack(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, ErrEmptyStack
	}
	inner := ts[0].shape
	for i, t := range ts {
		if !equalShape(t.shape, inner) {
			return nil, fmt.Errorf("%w: element %d has shape %v, want %v", ErrShapeMismatch, i, t.shape, inner)
		}
	}
	out := append([]int{len(ts)}, inner...)
	size, err := CheckShape(out)
	if err != nil {
		return nil, err
	}
	if len(ts) == 1 {
		return wrap(out, append([]float32(nil), ts[0].data...)), nil
	}

	others := make([]*gt.Dense, 0, len(ts)-1)
	for _, t := range ts[1:] {
		others = append(others, t.dense)
	}
	stacked, err := ts[0].dense.Stack(0, others...)
	if err != nil {
		return nil, fmt.Errorf("stack %d tensors of %v: %w", len(ts), inner, err)
	}
	data, ok := float32s(stacked.Data())
	if !ok || len(data) != size {
		return nil, fmt.Errorf("%w: stack produced %d values, want %d", ErrShapeMismatch, len(data), size)
	}
	return wrap(out, data), nil
}

// SharesData 判断两个张量是否共用同一块底层数据
func (t *Tensor) SharesData(o *Tensor) bool {
	if len(t.data) == 0 || len(o.data) == 0 {
		return false
	}
	return &t.data[0] == &o.data[0]
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.shape)
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank %d", len(idx), len(t.shape)))
	}
	off := 0
	for i, v := range idx {
		off = off*t.shape[i] + v
	}
	return off
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
