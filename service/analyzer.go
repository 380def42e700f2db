package service

import (
	"github.com/NotanProEnhanced/madewithwords-segmentation/model"
)

// ForegroundThreshold 前景阈值，容忍软边缘
const ForegroundThreshold = 16

// MaskAnalyzer 计算前景边界框与覆盖率
type MaskAnalyzer struct{}

func NewMaskAnalyzer() *MaskAnalyzer {
	return &MaskAnalyzer{}
}

// Analyze 单次扫描掩码，返回前景边界框和覆盖率
func (a *MaskAnalyzer) Analyze(mask *Mask) (model.BBox, float64) {
	if err := mask.Valid(); err != nil {
		panic("service: analyze: " + err.Error())
	}

	w, h := mask.Width, mask.Height
	minX, minY := w, h
	maxX, maxY := -1, -1
	fg := 0

	for y := 0; y < h; y++ {
		row := mask.Pix[y*w : (y+1)*w]
		for x, v := range row {
			if v <= ForegroundThreshold {
				continue
			}
			fg++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			maxY = y
		}
	}

	if fg == 0 {
		return model.BBox{}, 0
	}

	bbox := model.BBox{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX + 1,
		Height: maxY - minY + 1,
	}
	return bbox, float64(fg) / float64(w*h)
}
