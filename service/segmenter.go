package service

import (
	"context"
	"image"
)

// Segmenter 外部分割模型：输入解码后的图像，输出同尺寸的前景概率掩码。
// 输入无法处理时必须返回错误，不得返回全零掩码。
type Segmenter interface {
	ProduceMask(ctx context.Context, img image.Image) (*Mask, error)
}

// SegmenterFunc 允许普通函数作为 Segmenter
type SegmenterFunc func(ctx context.Context, img image.Image) (*Mask, error)

func (f SegmenterFunc) ProduceMask(ctx context.Context, img image.Image) (*Mask, error) {
	return f(ctx, img)
}
