package grabcut

import (
	"image"

	"gocv.io/x/gocv"
)

// GrabCut 掩码取值
const (
	gcBackground   = 0
	gcForeground   = 1
	gcProbBackgrnd = 2
	gcProbForegrnd = 3
)

// saliencyDetector 基于梯度幅值的显著性检测，用于生成 GrabCut 种子
type saliencyDetector struct{}

// Detect 返回 Otsu 二值化后的显著性图
func (sd *saliencyDetector) Detect(img *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*img, &gray, gocv.ColorBGRToGray)

	gradX := gocv.NewMat()
	defer gradX.Close()
	gradY := gocv.NewMat()
	defer gradY.Close()
	gocv.Sobel(gray, &gradX, gocv.MatTypeCV16S, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &gradY, gocv.MatTypeCV16S, 0, 1, 3, 1, 0, gocv.BorderDefault)

	absX := gocv.NewMat()
	defer absX.Close()
	absY := gocv.NewMat()
	defer absY.Close()
	gocv.ConvertScaleAbs(gradX, &absX, 1, 0)
	gocv.ConvertScaleAbs(gradY, &absY, 1, 0)

	magnitude := gocv.NewMat()
	defer magnitude.Close()
	gocv.AddWeighted(absX, 0.5, absY, 0.5, 0, &magnitude)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(magnitude, &blurred, image.Point{X: 21, Y: 21}, 0, 0, gocv.BorderDefault)

	saliency := gocv.NewMat()
	gocv.Threshold(blurred, &saliency, 0, 255, gocv.ThresholdOtsu)
	return saliency
}

// salientRect 最大显著连通域的外接矩形，外扩 5%
func (sd *saliencyDetector) salientRect(saliency *gocv.Mat) (image.Rectangle, bool) {
	width, height := saliency.Cols(), saliency.Rows()

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 21, Y: 21})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(*saliency, &dilated, kernel)

	contours := gocv.FindContours(dilated, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return image.Rectangle{}, false
	}

	var best image.Rectangle
	bestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); area > bestArea {
			bestArea = area
			best = gocv.BoundingRect(contours.At(i))
		}
	}

	pad := int(float64(best.Dx()) * 0.05)
	best = image.Rect(best.Min.X-pad, best.Min.Y-pad, best.Max.X+pad, best.Max.Y+pad).
		Intersect(image.Rect(0, 0, width, height))
	return best, !best.Empty()
}

// Seed 构造 GrabCut 初始掩码：边框为确定背景，显著区域为可能前景，其余为可能背景。
// 没有任何前景种子时返回 false，调用方应改用矩形初始化。
func (sd *saliencyDetector) Seed(saliency *gocv.Mat) (gocv.Mat, bool) {
	width, height := saliency.Cols(), saliency.Rows()
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(gcProbBackgrnd, 0, 0, 0), height, width, gocv.MatTypeCV8U)

	rect, ok := sd.salientRect(saliency)
	if !ok {
		return mask, false
	}

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 11, Y: 11})
	defer kernel.Close()
	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(*saliency, &dilated, kernel)

	band := int(float64(width) * 0.03)
	seeds := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			switch {
			case x < band || x >= width-band || y < band || y >= height-band:
				mask.SetUCharAt(y, x, gcBackground)
			case image.Pt(x, y).In(rect) && dilated.GetUCharAt(y, x) > 128:
				mask.SetUCharAt(y, x, gcProbForegrnd)
				seeds++
			}
		}
	}
	return mask, seeds > 0
}
