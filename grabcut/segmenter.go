// Package grabcut 基于 OpenCV GrabCut 的前景分割
package grabcut

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/NotanProEnhanced/madewithwords-segmentation/config"
	"github.com/NotanProEnhanced/madewithwords-segmentation/service"
	"github.com/NotanProEnhanced/madewithwords-segmentation/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// minSide 小于该边长的图像无法放下背景边框
const minSide = 16

// Segmenter 实现 service.Segmenter
type Segmenter struct {
	iterations   int
	borderSize   int
	maxDimension int
	keepLargest  bool
	semaphore    chan struct{}
	queueTimeout time.Duration
	complexity   *complexityAnalyzer
	saliency     *saliencyDetector
	refiner      *maskRefiner
}

var _ service.Segmenter = (*Segmenter)(nil)

func New(cfg *config.GrabCutConfig) *Segmenter {
	return &Segmenter{
		iterations:   cfg.Iterations,
		borderSize:   cfg.BorderSize,
		maxDimension: cfg.MaxDimension,
		keepLargest:  cfg.KeepLargest,
		semaphore:    make(chan struct{}, max(1, cfg.MaxConcurrent)),
		queueTimeout: cfg.QueueTimeout,
		complexity:   &complexityAnalyzer{},
		saliency:     &saliencyDetector{},
		refiner:      &maskRefiner{},
	}
}

// ProduceMask 生成与输入同尺寸的 0/255 前景掩码
func (s *Segmenter) ProduceMask(ctx context.Context, img image.Image) (*service.Mask, error) {
	// 并发控制
	waitCtx, cancel := context.WithTimeout(ctx, s.queueTimeout)
	defer cancel()

	select {
	case s.semaphore <- struct{}{}:
		defer func() { <-s.semaphore }()
	case <-waitCtx.Done():
		return nil, fmt.Errorf("grabcut queue is full: %w", waitCtx.Err())
	}

	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer src.Close()

	width, height := src.Cols(), src.Rows()
	if width < minSide || height < minSide {
		return nil, fmt.Errorf("image %dx%d is too small for grabcut", width, height)
	}

	scaled, scale := s.smartResize(&src)
	defer scaled.Close()

	fg := s.segment(&scaled)
	defer func() { fg.Close() }()

	// 还原到原始尺寸
	if scale != 1.0 {
		resized := gocv.NewMat()
		gocv.Resize(fg, &resized, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationLinear)
		gocv.Threshold(resized, &resized, 127, 255, gocv.ThresholdBinary)
		fg.Close()
		fg = resized
	}

	if s.keepLargest {
		largest := s.refiner.KeepLargest(&fg)
		fg.Close()
		fg = largest
	}

	return toMask(&fg, width, height)
}

// segment 在缩放后的图像上执行 GrabCut，返回 0/255 掩码
func (s *Segmenter) segment(img *gocv.Mat) gocv.Mat {
	width, height := img.Cols(), img.Rows()

	scene := s.complexity.Analyze(img)
	utils.Logger.Debug("scene analyzed",
		zap.String("level", string(scene.Level)),
		zap.Float64("edge_density", scene.EdgeDensity),
		zap.Float64("color_variance", scene.ColorVariance))

	labels := gocv.NewMat()
	seeded := false
	if scene.Level != levelSimple {
		saliency := s.saliency.Detect(img)
		seed, ok := s.saliency.Seed(&saliency)
		saliency.Close()
		if ok {
			labels.Close()
			labels, seeded = seed, true
		} else {
			seed.Close()
		}
	}
	defer labels.Close()

	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	iterations := scene.iterations(s.iterations)
	if seeded {
		gocv.GrabCut(*img, &labels, image.Rectangle{}, &bgdModel, &fgdModel, iterations, gocv.GCInitWithMask)
		gocv.GrabCut(*img, &labels, image.Rectangle{}, &bgdModel, &fgdModel, 2, gocv.GCInitWithMask)
	} else {
		gocv.GrabCut(*img, &labels, s.initRect(width, height), &bgdModel, &fgdModel, iterations, gocv.GCInitWithRect)
	}

	fg := s.refiner.Foreground(&labels)

	smoothed := s.refiner.Smooth(&fg, scene.kernelSize())
	fg.Close()
	fg = smoothed

	if scene.Level != levelSimple {
		feathered := s.refiner.Feather(&fg)
		fg.Close()
		fg = feathered
	}
	return fg
}

// initRect 矩形初始化区域，边框宽度不超过短边的四分之一
func (s *Segmenter) initRect(width, height int) image.Rectangle {
	border := s.borderSize
	if border < 10 {
		border = int(float64(width) * 0.05)
	}
	border = min(border, min(width, height)/4)
	return image.Rect(border, border, width-border, height-border)
}

// smartResize 最长边超过 maxDimension 时等比缩小
func (s *Segmenter) smartResize(img *gocv.Mat) (gocv.Mat, float64) {
	width, height := img.Cols(), img.Rows()
	maxDim := max(width, height)
	if s.maxDimension <= 0 || maxDim <= s.maxDimension {
		return img.Clone(), 1.0
	}

	scale := float64(s.maxDimension) / float64(maxDim)
	size := image.Point{
		X: max(minSide, int(float64(width)*scale)),
		Y: max(minSide, int(float64(height)*scale)),
	}

	resized := gocv.NewMat()
	gocv.Resize(*img, &resized, size, 0, 0, gocv.InterpolationArea)
	return resized, scale
}

func toMask(fg *gocv.Mat, width, height int) (*service.Mask, error) {
	if fg.Cols() != width || fg.Rows() != height {
		return nil, fmt.Errorf("grabcut mask is %dx%d, want %dx%d", fg.Cols(), fg.Rows(), width, height)
	}
	data := fg.ToBytes()
	if len(data) != width*height {
		return nil, fmt.Errorf("grabcut mask has %d bytes, want %d", len(data), width*height)
	}
	mask := service.NewMask(width, height)
	copy(mask.Pix, data)
	return mask, nil
}
