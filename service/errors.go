package service

import "errors"

var (
	// 张量形状错误
	ErrImageShape           = errors.New("image batch must have shape N x H x W x C")
	ErrChannelCount         = errors.New("unsupported channel count")
	ErrUnsupportedMaskShape = errors.New("unsupported mask shape")
	ErrMaskBatchMismatch    = errors.New("mask batch size does not match image batch")
	ErrResample             = errors.New("resample failed")

	// 导出错误
	ErrEmptyBatch     = errors.New("image batch is empty")
	ErrInvalidOptions = errors.New("invalid export options")
)
