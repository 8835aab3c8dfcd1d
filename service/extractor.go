package service

import (
	"fmt"

	"github.com/TIANLI0/D2Nodes/tensor"
)

// OpaqueValue 完全不透明时的掩码值
const OpaqueValue float32 = 1.0

// AlphaExtractor 从图像中拆出 alpha 掩码和 RGB 图像
type AlphaExtractor struct{}

func NewAlphaExtractor() *AlphaExtractor {
	return &AlphaExtractor{}
}

// Extract 处理单张 H x W x C 图像，无 alpha 时返回全不透明掩码
func (e *AlphaExtractor) Extract(img *tensor.Tensor) (mask, rgb *tensor.Tensor, err error) {
	if img.Rank() != 3 {
		return nil, nil, fmt.Errorf("%w: got %v, want H x W x C", ErrImageShape, img.Shape())
	}
	h, w, c := img.Dim(0), img.Dim(1), img.Dim(2)

	switch c {
	case 3:
		return tensor.Full(OpaqueValue, h, w), img.Clone(), nil
	case 4:
		src := img.Data()
		mask = tensor.New(h, w)
		rgb = tensor.New(h, w, 3)
		m, dst := mask.Data(), rgb.Data()
		for p := 0; p < h*w; p++ {
			copy(dst[p*3:p*3+3], src[p*4:p*4+3])
			m[p] = src[p*4+3]
		}
		return mask, rgb, nil
	default:
		return nil, nil, fmt.Errorf("%w: %d", ErrChannelCount, c)
	}
}

// ExtractBatch 逐张提取后按原顺序重新堆叠
func (e *AlphaExtractor) ExtractBatch(batch *tensor.Tensor) (masks, rgbs *tensor.Tensor, err error) {
	n, _, _, _, err := imageDims(batch)
	if err != nil {
		return nil, nil, err
	}

	maskList := make([]*tensor.Tensor, 0, n)
	rgbList := make([]*tensor.Tensor, 0, n)
	for i := 0; i < n; i++ {
		img, err := batch.Index(i)
		if err != nil {
			return nil, nil, err
		}
		mask, rgb, err := e.Extract(img)
		if err != nil {
			return nil, nil, fmt.Errorf("image %d: %w", i, err)
		}
		maskList = append(maskList, mask)
		rgbList = append(rgbList, rgb)
	}

	if masks, err = tensor.Stack(maskList...); err != nil {
		return nil, nil, err
	}
	if rgbs, err = tensor.Stack(rgbList...); err != nil {
		return nil, nil, err
	}
	return masks, rgbs, nil
}
