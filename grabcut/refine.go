package grabcut

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// maskRefiner 将 GrabCut 标签转换为 0/255 前景掩码并做形态学修整
type maskRefiner struct{}

// Foreground 确定前景与可能前景置为 255
func (mr *maskRefiner) Foreground(labels *gocv.Mat) gocv.Mat {
	fg := gocv.NewMat()
	sure := gocv.NewMatFromScalar(gocv.NewScalar(gcForeground, 0, 0, 0), gocv.MatTypeCV8U)
	defer sure.Close()
	gocv.Compare(*labels, sure, &fg, gocv.CompareEQ)

	probable := gocv.NewMat()
	defer probable.Close()
	prob := gocv.NewMatFromScalar(gocv.NewScalar(gcProbForegrnd, 0, 0, 0), gocv.MatTypeCV8U)
	defer prob.Close()
	gocv.Compare(*labels, prob, &probable, gocv.CompareEQ)

	combined := gocv.NewMat()
	gocv.BitwiseOr(fg, probable, &combined)
	fg.Close()
	return combined
}

// Smooth 开运算去噪点，闭运算填小洞
func (mr *maskRefiner) Smooth(mask *gocv.Mat, kernelSize int) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: kernelSize, Y: kernelSize})
	defer kernel.Close()

	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyEx(*mask, &opened, gocv.MorphOpen, kernel)

	closed := gocv.NewMat()
	gocv.MorphologyEx(opened, &closed, gocv.MorphClose, kernel)
	return closed
}

// Feather 轻微膨胀后模糊再二值化，去除锯齿边
func (mr *maskRefiner) Feather(mask *gocv.Mat) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 2, Y: 2})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(*mask, &dilated, kernel)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(dilated, &blurred, image.Point{X: 3, Y: 3}, 0, 0, gocv.BorderDefault)

	out := gocv.NewMat()
	gocv.Threshold(blurred, &out, 127, 255, gocv.ThresholdBinary)
	return out
}

// KeepLargest 只保留面积最大的连通区域
func (mr *maskRefiner) KeepLargest(mask *gocv.Mat) gocv.Mat {
	contours := gocv.FindContours(*mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return mask.Clone()
	}

	largest, largestArea := 0, 0.0
	for i := 0; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); area > largestArea {
			largest, largestArea = i, area
		}
	}

	out := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), mask.Rows(), mask.Cols(), gocv.MatTypeCV8U)
	gocv.DrawContours(&out, contours, largest, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)
	return out
}
