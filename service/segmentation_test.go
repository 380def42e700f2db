package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/NotanProEnhanced/madewithwords-segmentation/config"
	"github.com/NotanProEnhanced/madewithwords-segmentation/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// cutoutPNG 透明背景上的不透明矩形
func cutoutPNG(t *testing.T, w, h int, fg image.Rectangle) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := fg.Min.Y; y < fg.Max.Y; y++ {
		for x := fg.Min.X; x < fg.Max.X; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

// alphaSegmenter 直接使用输入图像的 alpha 通道作为掩码
var alphaSegmenter = SegmenterFunc(func(_ context.Context, img image.Image) (*Mask, error) {
	return MaskFromImage(img), nil
})

func newTestService(seg Segmenter) (*SegmentationService, *Metrics) {
	metrics := NewMetrics(prometheus.NewRegistry())
	store := NewMemoryStore(DefaultMaskTTL, WithEvictionHook(metrics.ObserveEvictions))
	cfg := &config.ServiceConfig{Name: "segmentation", Model: "test-model"}
	return NewSegmentationService(cfg, seg, store, metrics), metrics
}

func TestSegmentStoresMask(t *testing.T) {
	ctx := context.Background()
	svc, metrics := newTestService(alphaSegmenter)

	data := cutoutPNG(t, 100, 80, image.Rect(20, 10, 70, 66))
	res, err := svc.Segment(ctx, data)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}

	wantBox := model.BBox{X: 20, Y: 10, Width: 50, Height: 56}
	if res.BBox != wantBox {
		t.Fatalf("bbox = %+v, want %+v", res.BBox, wantBox)
	}
	wantCoverage := float64(50*56) / float64(100*80)
	if math.Abs(res.Coverage-wantCoverage) > 1e-12 {
		t.Fatalf("coverage = %v, want %v", res.Coverage, wantCoverage)
	}
	if res.Confidence != NewConfidenceScorer().Score(100, 80, wantBox, wantCoverage) {
		t.Fatalf("confidence = %v", res.Confidence)
	}
	if res.Width != 100 || res.Height != 80 || res.Model != "test-model" {
		t.Fatalf("unexpected descriptor %+v", res)
	}

	payload, err := svc.FetchMask(ctx, res.MaskID)
	if err != nil {
		t.Fatalf("FetchMask: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("stored mask is not a PNG: %v", err)
	}
	gray, ok := decoded.(*image.Gray)
	if !ok {
		t.Fatalf("stored mask is %T, want *image.Gray", decoded)
	}
	if gray.GrayAt(20, 10).Y != 255 || gray.GrayAt(19, 10).Y != 0 || gray.GrayAt(69, 65).Y != 255 {
		t.Fatalf("stored mask pixels do not match the cut-out")
	}

	if got := testutil.ToFloat64(metrics.requests.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok requests = %v", got)
	}
	if got := testutil.ToFloat64(metrics.fetches.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok fetches = %v", got)
	}
}

func TestSegmentNothingDetected(t *testing.T) {
	svc, _ := newTestService(alphaSegmenter)

	res, err := svc.Segment(context.Background(), cutoutPNG(t, 32, 32, image.Rectangle{}))
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if !res.BBox.Empty() || res.Coverage != 0 || res.Confidence != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.MaskID == "" {
		t.Fatalf("empty masks are still stored")
	}
}

func TestSegmentFailures(t *testing.T) {
	valid := cutoutPNG(t, 16, 16, image.Rect(4, 4, 12, 12))

	cases := []struct {
		name string
		seg  Segmenter
		data []byte
		want error
	}{
		{"empty input", alphaSegmenter, nil, ErrEmptyInput},
		{"not an image", alphaSegmenter, []byte("definitely not an image"), ErrDecode},
		{"truncated png", alphaSegmenter, valid[:len(valid)/2], ErrDecode},
		{"segmenter error", SegmenterFunc(func(context.Context, image.Image) (*Mask, error) {
			return nil, errors.New("model crashed")
		}), valid, ErrProcessingFailed},
		{"segmenter panic", SegmenterFunc(func(context.Context, image.Image) (*Mask, error) {
			panic("boom")
		}), valid, ErrProcessingFailed},
		{"nil mask", SegmenterFunc(func(context.Context, image.Image) (*Mask, error) {
			return nil, nil
		}), valid, ErrProcessingFailed},
		{"size mismatch", SegmenterFunc(func(context.Context, image.Image) (*Mask, error) {
			return NewMask(8, 8), nil
		}), valid, ErrProcessingFailed},
		{"short buffer", SegmenterFunc(func(context.Context, image.Image) (*Mask, error) {
			return &Mask{Width: 16, Height: 16, Pix: make([]uint8, 10)}, nil
		}), valid, ErrProcessingFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, metrics := newTestService(tc.seg)
			res, err := svc.Segment(context.Background(), tc.data)
			if res != nil {
				t.Fatalf("result = %+v, want nil", res)
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			code := KindOf(tc.want).Code()
			if got := testutil.ToFloat64(metrics.requests.WithLabelValues(code)); got != 1 {
				t.Fatalf("%s requests = %v", code, got)
			}
			if n, _ := svc.store.Len(context.Background()); n != 0 {
				t.Fatalf("failed request stored %d masks", n)
			}
		})
	}
}

func TestSegmentFailureKeepsOtherEntries(t *testing.T) {
	ctx := context.Background()
	fail := false
	seg := SegmenterFunc(func(ctx context.Context, img image.Image) (*Mask, error) {
		if fail {
			return nil, errors.New("model crashed")
		}
		return alphaSegmenter(ctx, img)
	})
	svc, _ := newTestService(seg)

	res, err := svc.Segment(ctx, cutoutPNG(t, 20, 20, image.Rect(5, 5, 15, 15)))
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	fail = true
	if _, err := svc.Segment(ctx, cutoutPNG(t, 20, 20, image.Rect(5, 5, 15, 15))); err == nil {
		t.Fatalf("expected failure")
	}
	if _, err := svc.FetchMask(ctx, res.MaskID); err != nil {
		t.Fatalf("earlier mask lost: %v", err)
	}
}

func TestFetchMaskNotFound(t *testing.T) {
	svc, metrics := newTestService(alphaSegmenter)

	for _, id := range []string{"", "0123456789abcdef0123456789abcdef"} {
		if _, err := svc.FetchMask(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("FetchMask(%q) err = %v, want ErrNotFound", id, err)
		}
	}
	if got := testutil.ToFloat64(metrics.fetches.WithLabelValues("mask_not_found_or_expired")); got != 2 {
		t.Fatalf("not found fetches = %v", got)
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(alphaSegmenter)
	if _, err := svc.Segment(ctx, cutoutPNG(t, 8, 8, image.Rect(2, 2, 6, 6))); err != nil {
		t.Fatalf("Segment: %v", err)
	}

	st := svc.Status(ctx)
	want := Status{Service: "segmentation", Model: "test-model", TTLSeconds: 1200, Entries: 1}
	if st != want {
		t.Fatalf("Status = %+v, want %+v", st, want)
	}
}

func TestErrorFormatting(t *testing.T) {
	err := newError(KindDecode, "segment", "cannot decode image", errors.New("unexpected EOF"))
	if got, want := err.Error(), "segment: cannot decode image: unexpected EOF"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("decode error matched ErrNotFound")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatalf("plain error has a kind")
	}
}
