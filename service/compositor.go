package service

import (
	"fmt"

	"github.com/TIANLI0/D2Nodes/tensor"
)

// AlphaCompositor 把掩码写入图像批次的 alpha 通道
type AlphaCompositor struct {
	masks *MaskProcessor
}

func NewAlphaCompositor(masks *MaskProcessor) *AlphaCompositor {
	if masks == nil {
		masks = NewMaskProcessor()
	}
	return &AlphaCompositor{masks: masks}
}

// Composite 返回 N x H x W x 4 的新批次，RGB 复制自 color，alpha 为规整后的掩码
func (c *AlphaCompositor) Composite(color, mask *tensor.Tensor, invert bool) (*tensor.Tensor, error) {
	batch, height, width, channels, err := imageDims(color)
	if err != nil {
		return nil, err
	}

	alpha, err := c.masks.Normalize(mask, batch, height, width)
	if err != nil {
		return nil, fmt.Errorf("normalize mask: %w", err)
	}
	if invert {
		InvertMask(alpha)
	}

	src := color.Data()
	a := alpha.Data()
	out := tensor.New(batch, height, width, 4)
	dst := out.Data()
	for p := 0; p < batch*height*width; p++ {
		copy(dst[p*4:p*4+3], src[p*channels:p*channels+3])
		dst[p*4+3] = a[p]
	}
	return out, nil
}

// InvertMask 原地把掩码值替换为 1 - v
func InvertMask(mask *tensor.Tensor) {
	data := mask.Data()
	for i, v := range data {
		data[i] = 1 - v
	}
}

// imageDims 校验 N x H x W x {3,4} 图像批次并返回各维大小
func imageDims(batch *tensor.Tensor) (n, h, w, c int, err error) {
	if batch.Rank() != 4 {
		return 0, 0, 0, 0, fmt.Errorf("%w: got %v", ErrImageShape, batch.Shape())
	}
	n, h, w, c = batch.Dim(0), batch.Dim(1), batch.Dim(2), batch.Dim(3)
	if c != 3 && c != 4 {
		return 0, 0, 0, 0, fmt.Errorf("%w: %d", ErrChannelCount, c)
	}
	if n == 0 || h == 0 || w == 0 {
		return 0, 0, 0, 0, fmt.Errorf("%w: got %v", ErrImageShape, batch.Shape())
	}
	return n, h, w, c, nil
}
