// Package psd 写出 8 位 RGB 分层 PSD 文件
package psd

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
)

var (
	ErrEmptyDocument = errors.New("psd: document has no layers")
	ErrLayerSize     = errors.New("psd: layer size does not match canvas")
	ErrCanvasSize    = errors.New("psd: invalid canvas size")
	ErrTooLarge      = errors.New("psd: layer data exceeds the PSD size limit")
)

// MaxDimension PSD（非 PSB）允许的最大宽高
const MaxDimension = 30000

// maxSectionLen 图层与蒙版信息段的长度字段为 32 位
var maxSectionLen uint64 = math.MaxUint32

// Layer 一个命名的像素图层，alpha 写入透明度通道
type Layer struct {
	Name   string
	Pixels *image.NRGBA
}

// Document 按从下到上的顺序保存图层
type Document struct {
	Width  int
	Height int
	Layers []Layer
}

func NewDocument(width, height int) *Document {
	return &Document{Width: width, Height: height}
}

// Append 把图层放到最上方
func (d *Document) Append(layer Layer) error {
	b := layer.Pixels.Bounds()
	if b.Dx() != d.Width || b.Dy() != d.Height {
		return fmt.Errorf("%w: layer %q is %dx%d, canvas is %dx%d",
			ErrLayerSize, layer.Name, b.Dx(), b.Dy(), d.Width, d.Height)
	}
	d.Layers = append(d.Layers, layer)
	return nil
}

// Top 返回最上方图层
func (d *Document) Top() (Layer, bool) {
	if len(d.Layers) == 0 {
		return Layer{}, false
	}
	return d.Layers[len(d.Layers)-1], true
}

func (d *Document) validate() error {
	if d.Width <= 0 || d.Height <= 0 || d.Width > MaxDimension || d.Height > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrCanvasSize, d.Width, d.Height)
	}
	if len(d.Layers) == 0 {
		return ErrEmptyDocument
	}
	if n := d.sectionLen(); n > maxSectionLen {
		return fmt.Errorf("%w: %d layers of %dx%d need %d bytes", ErrTooLarge, len(d.Layers), d.Width, d.Height, n)
	}
	return nil
}

// sectionLen 计算图层与蒙版信息段长度字段的值
func (d *Document) sectionLen() uint64 {
	records := uint64(0)
	for _, l := range d.Layers {
		records += uint64(len(layerRecord(l, d.Width, d.Height)))
	}
	plane := uint64(d.Width) * uint64(d.Height)
	channels := uint64(len(d.Layers)) * uint64(len(channelIDs)) * (2 + plane)
	info := 2 + records + channels
	info += info % 2
	return 4 + info + 4
}

// Save 编码并写入 path，写入失败时删除残留文件
func Save(path string, doc *Document) (err error) {
	if err := doc.validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	return Encode(file, doc)
}
