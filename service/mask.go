package service

import (
	"fmt"
	"image"
	"image/color"
)

// Mask 单通道前景概率掩码，按行存储，每像素一字节
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

func (m *Mask) At(x, y int) uint8 {
	return m.Pix[y*m.Width+x]
}

func (m *Mask) Set(x, y int, v uint8) {
	m.Pix[y*m.Width+x] = v
}

// Valid 检查尺寸与像素缓冲是否一致
func (m *Mask) Valid() error {
	if m == nil {
		return fmt.Errorf("mask is nil")
	}
	if m.Width < 1 || m.Height < 1 {
		return fmt.Errorf("mask has invalid size %dx%d", m.Width, m.Height)
	}
	if len(m.Pix) != m.Width*m.Height {
		return fmt.Errorf("mask buffer has %d bytes, want %d", len(m.Pix), m.Width*m.Height)
	}
	return nil
}

// Gray 转换为 8 位灰度图，用于无损编码
func (m *Mask) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+m.Width], m.Pix[y*m.Width:(y+1)*m.Width])
	}
	return img
}

// MaskFromImage 从图像提取掩码：灰度图取亮度，其余取 alpha 通道
func MaskFromImage(img image.Image) *Mask {
	b := img.Bounds()
	m := NewMask(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < m.Height; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(m.Pix[y*m.Width:(y+1)*m.Width], src.Pix[off:off+m.Width])
		}
		return m
	case *image.NRGBA:
		for y := 0; y < m.Height; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < m.Width; x++ {
				m.Pix[y*m.Width+x] = src.Pix[off+x*4+3]
			}
		}
		return m
	}

	gray := img.ColorModel() == color.GrayModel || img.ColorModel() == color.Gray16Model
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			if gray {
				m.Pix[y*m.Width+x] = color.GrayModel.Convert(c).(color.Gray).Y
				continue
			}
			_, _, _, a := c.RGBA()
			m.Pix[y*m.Width+x] = uint8(a >> 8)
		}
	}
	return m
}
