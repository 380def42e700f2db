package grabcut

import (
	"gocv.io/x/gocv"
)

type sceneLevel string

const (
	levelSimple  sceneLevel = "simple"
	levelMedium  sceneLevel = "medium"
	levelComplex sceneLevel = "complex"
)

// sceneInfo 场景复杂度
type sceneInfo struct {
	Level         sceneLevel
	EdgeDensity   float64
	ColorVariance float64
}

// iterations 按复杂度调整 GrabCut 迭代次数
func (si sceneInfo) iterations(base int) int {
	switch si.Level {
	case levelSimple:
		return max(3, base-2)
	case levelComplex:
		return base + 2
	default:
		return base
	}
}

// kernelSize 形态学核大小
func (si sceneInfo) kernelSize() int {
	if si.Level == levelComplex {
		return 5
	}
	return 3
}

// complexityAnalyzer 通过边缘密度和 Lab 颜色离散度判断场景复杂度
type complexityAnalyzer struct{}

func (ca *complexityAnalyzer) Analyze(img *gocv.Mat) sceneInfo {
	edgeDensity := ca.edgeDensity(img)
	colorVariance := ca.colorVariance(img)

	level := levelMedium
	switch {
	case edgeDensity < 0.05 && colorVariance < 30:
		level = levelSimple
	case edgeDensity > 0.15 || colorVariance > 60:
		level = levelComplex
	}

	return sceneInfo{
		Level:         level,
		EdgeDensity:   edgeDensity,
		ColorVariance: colorVariance,
	}
}

func (ca *complexityAnalyzer) edgeDensity(img *gocv.Mat) float64 {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*img, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 50, 150)

	return float64(gocv.CountNonZero(edges)) / float64(img.Rows()*img.Cols())
}

// colorVariance 三个 Lab 通道标准差的均值
func (ca *complexityAnalyzer) colorVariance(img *gocv.Mat) float64 {
	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(*img, &lab, gocv.ColorBGRToLab)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(lab, &mean, &stddev)

	if stddev.Rows() == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < stddev.Rows(); i++ {
		sum += stddev.GetDoubleAt(i, 0)
	}
	return sum / float64(stddev.Rows())
}
