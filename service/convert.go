package service

import (
	"fmt"
	"image"

	"github.com/TIANLI0/D2Nodes/tensor"
	"github.com/disintegration/imaging"
)

// ToByte 把 [0,1] 浮点值转换为 8 位，越界值先截断
func ToByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

// TensorToNRGBA 把 H x W x {3,4} 图像转换为 NRGBA，3 通道时 alpha 为 255
func TensorToNRGBA(img *tensor.Tensor) (*image.NRGBA, error) {
	if img.Rank() != 3 {
		return nil, fmt.Errorf("%w: got %v, want H x W x C", ErrImageShape, img.Shape())
	}
	h, w, c := img.Dim(0), img.Dim(1), img.Dim(2)
	if c != 3 && c != 4 {
		return nil, fmt.Errorf("%w: %d", ErrChannelCount, c)
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	src := img.Data()
	for p := 0; p < h*w; p++ {
		px := out.Pix[p*4 : p*4+4]
		px[0] = ToByte(src[p*c])
		px[1] = ToByte(src[p*c+1])
		px[2] = ToByte(src[p*c+2])
		px[3] = 255
		if c == 4 {
			px[3] = ToByte(src[p*c+3])
		}
	}
	return out, nil
}

// MaskToNRGBA 把 H x W 掩码转换为不透明的灰度 RGB 图像
func MaskToNRGBA(mask *tensor.Tensor) (*image.NRGBA, error) {
	if mask.Rank() != 2 {
		return nil, fmt.Errorf("%w: mask %v, want H x W", ErrImageShape, mask.Shape())
	}
	h, w := mask.Dim(0), mask.Dim(1)
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for p, v := range mask.Data() {
		g := ToByte(v)
		out.Pix[p*4] = g
		out.Pix[p*4+1] = g
		out.Pix[p*4+2] = g
		out.Pix[p*4+3] = 255
	}
	return out, nil
}

// ImageToTensor 把解码后的图像转换为 H x W x C 张量，不透明图像为 3 通道
func ImageToTensor(img image.Image) *tensor.Tensor {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	w, h := b.Dx(), b.Dy()

	c := 4
	if nrgba.Opaque() {
		c = 3
	}

	out := tensor.New(h, w, c)
	dst := out.Data()
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			p := (y*w + x) * c
			for ch := 0; ch < c; ch++ {
				dst[p+ch] = float32(row[x*4+ch]) / 255
			}
		}
	}
	return out
}

// StackImages 把多张图像堆叠为批次，尺寸不同或通道数不同时报错
func StackImages(imgs []image.Image) (*tensor.Tensor, error) {
	if len(imgs) == 0 {
		return nil, ErrEmptyBatch
	}
	ts := make([]*tensor.Tensor, len(imgs))
	withAlpha := false
	for i, img := range imgs {
		b := img.Bounds()
		if _, err := tensor.CheckShape([]int{len(imgs), b.Dy(), b.Dx(), 4}); err != nil {
			return nil, fmt.Errorf("%w: image %d: %v", ErrImageShape, i, err)
		}
		ts[i] = ImageToTensor(img)
		if ts[i].Dim(2) == 4 {
			withAlpha = true
		}
	}
	if withAlpha {
		for i, t := range ts {
			if t.Dim(2) == 3 {
				ts[i] = addOpaqueAlpha(t)
			}
		}
	}
	return tensor.Stack(ts...)
}

// OpaqueAlpha 为 N x H x W x 3 批次追加值为 OpaqueValue 的 alpha 通道，4 通道批次原样复制
func OpaqueAlpha(batch *tensor.Tensor) (*tensor.Tensor, error) {
	n, h, w, c, err := imageDims(batch)
	if err != nil {
		return nil, err
	}
	if c == 4 {
		return batch.Clone(), nil
	}
	rows, err := batch.Reshape(n*h, w, c)
	if err != nil {
		return nil, err
	}
	return addOpaqueAlpha(rows).Reshape(n, h, w, 4)
}

func addOpaqueAlpha(rgb *tensor.Tensor) *tensor.Tensor {
	h, w := rgb.Dim(0), rgb.Dim(1)
	out := tensor.New(h, w, 4)
	src, dst := rgb.Data(), out.Data()
	for p := 0; p < h*w; p++ {
		copy(dst[p*4:p*4+3], src[p*3:p*3+3])
		dst[p*4+3] = OpaqueValue
	}
	return out
}
