package service

import (
	"fmt"
	"image"
	"runtime"
	"unsafe"

	"gocv.io/x/gocv"
)

// ResampleBilinear 对单通道 float32 缓冲区做双线性重采样（半像素对齐）
func ResampleBilinear(src []float32, srcH, srcW, dstH, dstW int) ([]float32, error) {
	if srcH <= 0 || srcW <= 0 || dstH <= 0 || dstW <= 0 {
		return nil, fmt.Errorf("%w: %dx%d -> %dx%d", ErrResample, srcH, srcW, dstH, dstW)
	}
	if len(src) != srcH*srcW {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrResample, len(src), srcH, srcW)
	}
	if srcH == dstH && srcW == dstW {
		return append([]float32(nil), src...), nil
	}

	raw := unsafe.Slice((*byte)(unsafe.Pointer(&src[0])), len(src)*4)
	mat, err := gocv.NewMatFromBytes(srcH, srcW, gocv.MatTypeCV32F, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResample, err)
	}
	defer mat.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	gocv.Resize(mat, &dst, image.Point{X: dstW, Y: dstH}, 0, 0, gocv.InterpolationLinear)
	runtime.KeepAlive(src)

	if dst.Rows() != dstH || dst.Cols() != dstW {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrResample, dst.Rows(), dst.Cols(), dstH, dstW)
	}

	data, err := dst.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResample, err)
	}
	return append([]float32(nil), data...), nil
}
