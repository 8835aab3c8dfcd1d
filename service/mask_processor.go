package service

import (
	"fmt"

	"github.com/TIANLI0/D2Nodes/tensor"
	"github.com/TIANLI0/D2Nodes/utils"
	"go.uber.org/zap"
)

// MaskShapeKind 输入掩码形状的分类
type MaskShapeKind int

const (
	MaskSingle        MaskShapeKind = iota // (H, W)
	MaskBatched                            // (N, H, W)
	MaskBroadcast                          // (M, H, W)，M != N
	MaskChannel                            // (N, 1, H, W)
	MaskDoubleChannel                      // (N, 1, 1, H, W)
	MaskUnsupported
)

func (k MaskShapeKind) String() string {
	switch k {
	case MaskSingle:
		return "single"
	case MaskBatched:
		return "batched"
	case MaskBroadcast:
		return "broadcast"
	case MaskChannel:
		return "channel"
	case MaskDoubleChannel:
		return "double_channel"
	default:
		return "unsupported"
	}
}

// MaskShape 分类结果，Batch/Height/Width 为去掉单例轴后的尺寸
type MaskShape struct {
	Kind   MaskShapeKind
	Batch  int
	Height int
	Width  int
}

// ClassifyMask 按秩和首维是否等于 batch 对掩码分类
func ClassifyMask(shape []int, batch int) MaskShape {
	switch len(shape) {
	case 2:
		return MaskShape{Kind: MaskSingle, Batch: 1, Height: shape[0], Width: shape[1]}
	case 3:
		kind := MaskBroadcast
		if shape[0] == batch {
			kind = MaskBatched
		}
		return MaskShape{Kind: kind, Batch: shape[0], Height: shape[1], Width: shape[2]}
	case 4:
		if shape[1] == 1 {
			return MaskShape{Kind: MaskChannel, Batch: shape[0], Height: shape[2], Width: shape[3]}
		}
	case 5:
		if shape[1] == 1 && shape[2] == 1 {
			return MaskShape{Kind: MaskDoubleChannel, Batch: shape[0], Height: shape[3], Width: shape[4]}
		}
	}
	return MaskShape{Kind: MaskUnsupported}
}

// MaskProcessor 负责把任意受支持形状的掩码规整为 N x H x W
type MaskProcessor struct{}

func NewMaskProcessor() *MaskProcessor {
	return &MaskProcessor{}
}

// Normalize 返回 batch x height x width 的新掩码，不修改输入
func (mp *MaskProcessor) Normalize(mask *tensor.Tensor, batch, height, width int) (*tensor.Tensor, error) {
	shape := ClassifyMask(mask.Shape(), batch)

	var (
		m   *tensor.Tensor
		err error
	)
	switch shape.Kind {
	case MaskSingle:
		m, err = mask.Unsqueeze(0)
	case MaskBatched, MaskBroadcast:
		m = mask
	case MaskChannel:
		m, err = mask.Squeeze(1)
	case MaskDoubleChannel:
		m, err = mask.Squeeze(1)
		if err == nil {
			m, err = m.Squeeze(1)
		}
	default:
		m, err = mp.reinterpret(mask, batch, width)
	}
	if err != nil {
		return nil, err
	}

	m, err = mp.resize(m, height, width)
	if err != nil {
		return nil, err
	}

	switch m.Dim(0) {
	case batch:
		if m.SharesData(mask) {
			return m.Clone(), nil
		}
		return m, nil
	case 1:
		return m.Expand(batch)
	default:
		return nil, fmt.Errorf("%w: mask has %d entries, batch has %d", ErrMaskBatchMismatch, m.Dim(0), batch)
	}
}

// reinterpret 对无法识别的形状按 batch x rows x width 重新解释，元素数不能整除时拒绝
func (mp *MaskProcessor) reinterpret(mask *tensor.Tensor, batch, width int) (*tensor.Tensor, error) {
	utils.Logger.Warn("unexpected mask shape, resampling to image size",
		zap.Ints("mask_shape", mask.Shape()),
		zap.Int("batch", batch),
		zap.Int("width", width))

	if batch <= 0 || width <= 0 || mask.Len() == 0 || mask.Len()%(batch*width) != 0 {
		return nil, fmt.Errorf("%w: %v cannot be viewed as %d x rows x %d", ErrUnsupportedMaskShape, mask.Shape(), batch, width)
	}
	return mask.Reshape(batch, -1, width)
}

// resize 逐张把 M x h x w 掩码重采样到 height x width
func (mp *MaskProcessor) resize(m *tensor.Tensor, height, width int) (*tensor.Tensor, error) {
	h, w := m.Dim(1), m.Dim(2)
	if h == height && w == width {
		return m, nil
	}

	utils.Logger.Debug("resampling mask",
		zap.Ints("from", []int{h, w}),
		zap.Ints("to", []int{height, width}))

	n := m.Dim(0)
	plane := h * w
	out := make([]float32, 0, n*height*width)
	for i := 0; i < n; i++ {
		resized, err := ResampleBilinear(m.Data()[i*plane:(i+1)*plane], h, w, height, width)
		if err != nil {
			return nil, err
		}
		out = append(out, resized...)
	}
	return tensor.FromData(out, n, height, width)
}
