package service

import (
	"github.com/NotanProEnhanced/madewithwords-segmentation/model"
)

const (
	minCoverage     = 1e-4
	healthyCoverage = 0.35
	tinyCoverage    = 0.06
	tinyPenalty     = 0.35
	hugeCoverage    = 0.75
	hugePenalty     = 0.55
	baseFloor       = 0.25
	baseRange       = 0.55
	nearEdge        = 2
	farEdge         = 3
)

// borderPenalty 按接触边数索引
var borderPenalty = [5]float64{1.0, 0.90, 0.78, 0.62, 0.48}

// ConfidenceScorer 根据覆盖率与边界接触计算置信度
type ConfidenceScorer struct{}

func NewConfidenceScorer() *ConfidenceScorer {
	return &ConfidenceScorer{}
}

// Score 返回 [0,1] 内的置信度
func (s *ConfidenceScorer) Score(width, height int, bbox model.BBox, coverage float64) float64 {
	if coverage <= minCoverage {
		return 0
	}

	sizeScore := min(1.0, coverage/healthyCoverage)
	conf := baseFloor + baseRange*sizeScore

	switch {
	case coverage < tinyCoverage:
		conf *= tinyPenalty
	case coverage > hugeCoverage:
		conf *= hugePenalty
	}

	conf *= borderPenalty[borderTouches(width, height, bbox)]

	return max(0.0, min(1.0, conf))
}

// borderTouches 统计边界框贴近图像边缘的边数
func borderTouches(width, height int, bbox model.BBox) int {
	touch := 0
	if bbox.X <= nearEdge {
		touch++
	}
	if bbox.Y <= nearEdge {
		touch++
	}
	if bbox.X+bbox.Width >= width-farEdge {
		touch++
	}
	if bbox.Y+bbox.Height >= height-farEdge {
		touch++
	}
	return touch
}

// Analysis 单张掩码的分析结果，创建后不再修改
type Analysis struct {
	BBox       model.BBox
	Coverage   float64
	Confidence float64
}

// Evaluate 分析掩码并评分
func Evaluate(analyzer *MaskAnalyzer, scorer *ConfidenceScorer, mask *Mask) Analysis {
	bbox, coverage := analyzer.Analyze(mask)
	return Analysis{
		BBox:       bbox,
		Coverage:   coverage,
		Confidence: scorer.Score(mask.Width, mask.Height, bbox, coverage),
	}
}
