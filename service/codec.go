package service

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // 注册 WebP 解码器
)

// DecodeImage 解码常见栅格格式，并按 EXIF 方向校正
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() < 1 || b.Dy() < 1 {
		return nil, fmt.Errorf("image has invalid size %dx%d", b.Dx(), b.Dy())
	}
	return img, nil
}

// EncodeMaskPNG 将掩码编码为 8 位灰度 PNG
func EncodeMaskPNG(mask *Mask) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, mask.Gray(), imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
