package psd

import (
	"bufio"
	"encoding/binary"
	"image"
	"io"
	"unicode/utf16"
)

const (
	colorModeRGB   = 3
	compressionRaw = 0
)

// 通道顺序：透明度、R、G、B
var channelIDs = [4]int16{-1, 0, 1, 2}

// Encode 把文档编码为 PSD 写入 w，合成图像为最上方图层叠加在白色背景上的结果
func Encode(w io.Writer, doc *Document) error {
	if err := doc.validate(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}

	e.header(doc)
	e.u32(0) // color mode data
	e.u32(0) // image resources
	e.layerAndMaskInfo(doc)
	e.mergedImage(doc)

	if e.err != nil {
		return e.err
	}
	return bw.Flush()
}

type encoder struct {
	w   io.Writer
	err error
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *encoder) u8(v uint8) { e.write([]byte{v}) }

func (e *encoder) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.write(b[:])
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.write(b[:])
}

func (e *encoder) header(doc *Document) {
	e.write([]byte("8BPS"))
	e.u16(1)
	e.write(make([]byte, 6))
	e.u16(3) // channels
	e.u32(uint32(doc.Height))
	e.u32(uint32(doc.Width))
	e.u16(8) // depth
	e.u16(colorModeRGB)
}

func (e *encoder) layerAndMaskInfo(doc *Document) {
	records := make([][]byte, len(doc.Layers))
	recordsLen := 0
	for i, l := range doc.Layers {
		records[i] = layerRecord(l, doc.Width, doc.Height)
		recordsLen += len(records[i])
	}

	plane := doc.Width * doc.Height
	channelDataLen := len(doc.Layers) * len(channelIDs) * (2 + plane)

	infoLen := 2 + recordsLen + channelDataLen
	pad := infoLen % 2
	infoLen += pad

	e.u32(uint32(4 + infoLen + 4))
	e.u32(uint32(infoLen))
	e.u16(uint16(len(doc.Layers)))
	for _, r := range records {
		e.write(r)
	}

	buf := make([]byte, plane)
	for _, l := range doc.Layers {
		for _, id := range channelIDs {
			e.u16(compressionRaw)
			e.write(channelPlane(l.Pixels, id, buf))
		}
	}
	if pad == 1 {
		e.u8(0)
	}
	e.u32(0) // global layer mask info
}

func (e *encoder) mergedImage(doc *Document) {
	top, _ := doc.Top()
	buf := make([]byte, doc.Width*doc.Height)
	e.u16(compressionRaw)
	for _, id := range channelIDs[1:] {
		e.write(overWhite(top.Pixels, id, buf))
	}
}

// overWhite 展开一个颜色通道，并按 alpha 与白色混合
func overWhite(img *image.NRGBA, id int16, buf []byte) []byte {
	b := img.Bounds()
	w := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			v, a := uint32(row[x*4+int(id)]), uint32(row[x*4+3])
			buf[y*w+x] = uint8((v*a + 255*(255-a) + 127) / 255)
		}
	}
	return buf
}

// layerRecord 生成单个图层记录
func layerRecord(l Layer, width, height int) []byte {
	var rec []byte
	put16 := func(v uint16) { rec = binary.BigEndian.AppendUint16(rec, v) }
	put32 := func(v uint32) { rec = binary.BigEndian.AppendUint32(rec, v) }

	put32(0)              // top
	put32(0)              // left
	put32(uint32(height)) // bottom
	put32(uint32(width))  // right

	put16(uint16(len(channelIDs)))
	chanLen := uint32(2 + width*height)
	for _, id := range channelIDs {
		put16(uint16(id))
		put32(chanLen)
	}

	rec = append(rec, "8BIMnorm"...)
	rec = append(rec, 255, 0, 0x08, 0) // opacity, clipping, flags, filler

	extra := extraData(l.Name)
	put32(uint32(len(extra)))
	return append(rec, extra...)
}

// extraData 包含空的蒙版、混合范围、Pascal 名称和 luni 名称块
func extraData(name string) []byte {
	var b []byte
	b = binary.BigEndian.AppendUint32(b, 0) // layer mask
	b = binary.BigEndian.AppendUint32(b, 0) // blending ranges

	legacy := pascalName(name)
	b = append(b, byte(len(legacy)))
	b = append(b, legacy...)
	for n := len(legacy) + 1; n%4 != 0; n++ {
		b = append(b, 0)
	}

	units := utf16.Encode([]rune(name))
	var luni []byte
	luni = binary.BigEndian.AppendUint32(luni, uint32(len(units)))
	for _, u := range units {
		luni = binary.BigEndian.AppendUint16(luni, u)
	}
	for len(luni)%4 != 0 {
		luni = append(luni, 0)
	}
	b = append(b, "8BIMluni"...)
	b = binary.BigEndian.AppendUint32(b, uint32(len(luni)))
	return append(b, luni...)
}

// pascalName 旧式图层名只保留 ASCII，最长 255 字节
func pascalName(name string) []byte {
	out := make([]byte, 0, len(name))
	for _, r := range name {
		if len(out) == 255 {
			break
		}
		if r < 0x20 || r > 0x7e {
			r = '_'
		}
		out = append(out, byte(r))
	}
	return out
}

// channelPlane 把 NRGBA 的一个通道展开到 buf
func channelPlane(img *image.NRGBA, id int16, buf []byte) []byte {
	offset := int(id)
	if id < 0 {
		offset = 3
	}
	b := img.Bounds()
	w := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			buf[y*w+x] = row[x*4+offset]
		}
	}
	return buf
}
