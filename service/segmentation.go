package service

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/NotanProEnhanced/madewithwords-segmentation/config"
	"github.com/NotanProEnhanced/madewithwords-segmentation/model"
	"github.com/NotanProEnhanced/madewithwords-segmentation/utils"
	"go.uber.org/zap"
)

// SegmentationService 串联分割模型、掩码分析、置信度评分和掩码存储
type SegmentationService struct {
	name      string
	model     string
	segmenter Segmenter
	analyzer  *MaskAnalyzer
	scorer    *ConfidenceScorer
	store     MaskStore
	metrics   *Metrics
}

// Status 服务状态
type Status struct {
	Service    string
	Model      string
	TTLSeconds int64
	Entries    int
}

func NewSegmentationService(cfg *config.ServiceConfig, segmenter Segmenter, store MaskStore, metrics *Metrics) *SegmentationService {
	return &SegmentationService{
		name:      cfg.Name,
		model:     cfg.Model,
		segmenter: segmenter,
		analyzer:  NewMaskAnalyzer(),
		scorer:    NewConfidenceScorer(),
		store:     store,
		metrics:   metrics,
	}
}

// Segment 分割图片并保存掩码，返回掩码ID与分析结果
func (s *SegmentationService) Segment(ctx context.Context, data []byte) (result *model.SegmentResult, err error) {
	startTime := time.Now()
	defer func() {
		var coverage, confidence float64
		if result != nil {
			coverage, confidence = result.Coverage, result.Confidence
		}
		s.metrics.observeSegment(err, time.Since(startTime), coverage, confidence)
	}()

	if len(data) == 0 {
		return nil, newError(KindEmptyInput, "segment", "empty upload", nil)
	}

	img, err := DecodeImage(data)
	if err != nil {
		return nil, newError(KindDecode, "segment", "cannot decode image", err)
	}
	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	utils.Logger.Info("processing image",
		zap.String("md5", utils.BytesMD5(data)),
		zap.Int("width", width),
		zap.Int("height", height))

	mask, err := s.produceMask(ctx, img)
	if err != nil {
		return nil, newError(KindProcessingFailed, "segment", "mask production failed", err)
	}
	if mask.Width != width || mask.Height != height {
		return nil, newError(KindProcessingFailed, "segment", "mask production failed",
			fmt.Errorf("mask is %dx%d, image is %dx%d", mask.Width, mask.Height, width, height))
	}

	analysis := Evaluate(s.analyzer, s.scorer, mask)

	png, err := EncodeMaskPNG(mask)
	if err != nil {
		return nil, newError(KindProcessingFailed, "segment", "mask encoding failed", err)
	}

	id, err := s.store.Put(ctx, png)
	if err != nil {
		return nil, newError(KindProcessingFailed, "segment", "mask storage failed", err)
	}

	elapsed := time.Since(startTime)
	utils.Logger.Info("image segmented",
		zap.String("mask_id", id),
		zap.Duration("duration", elapsed),
		zap.Float64("coverage", analysis.Coverage),
		zap.Float64("confidence", analysis.Confidence),
		zap.Bool("foreground", !analysis.BBox.Empty()))

	return &model.SegmentResult{
		MaskID:     id,
		BBox:       analysis.BBox,
		Coverage:   analysis.Coverage,
		Confidence: analysis.Confidence,
		Width:      width,
		Height:     height,
		Model:      s.model,
		ElapsedMs:  elapsed.Milliseconds(),
	}, nil
}

// FetchMask 读取已编码的掩码
func (s *SegmentationService) FetchMask(ctx context.Context, id string) (data []byte, err error) {
	defer func() { s.metrics.observeFetch(err) }()

	if id == "" {
		return nil, newError(KindNotFound, "fetch", "mask id is empty", nil)
	}
	return s.store.Get(ctx, id)
}

// Status 返回服务标识与 TTL
func (s *SegmentationService) Status(ctx context.Context) Status {
	entries, err := s.store.Len(ctx)
	if err != nil {
		utils.Logger.Warn("failed to count stored masks", zap.Error(err))
	}
	return Status{
		Service:    s.name,
		Model:      s.model,
		TTLSeconds: int64(s.store.TTL() / time.Second),
		Entries:    entries,
	}
}

// produceMask 调用外部模型，模型内部 panic 转为错误
func (s *SegmentationService) produceMask(ctx context.Context, img image.Image) (mask *Mask, err error) {
	defer func() {
		if r := recover(); r != nil {
			utils.Logger.Error("segmenter panicked", zap.Any("panic", r))
			mask, err = nil, fmt.Errorf("segmenter panic: %v", r)
		}
	}()

	mask, err = s.segmenter.ProduceMask(ctx, img)
	if err != nil {
		return nil, err
	}
	if err := mask.Valid(); err != nil {
		return nil, err
	}
	return mask, nil
}
