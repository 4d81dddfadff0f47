//go:build opencv

package correction

import (
	"image"

	"gocv.io/x/gocv"
)

var borderTypes = map[BoundaryMode]gocv.BorderType{
	ModeNearest:  gocv.BorderReplicate,
	ModeReflect:  gocv.BorderReflect,
	ModeMirror:   gocv.BorderReflect101,
	ModeConstant: gocv.BorderConstant,
}

// blurPlane runs the filter through OpenCV. Wrap-around borders are not
// available to cv::GaussianBlur and fall back to the Go implementation.
func blurPlane(plane []float64, width, height int, sigma, truncate float64, mode BoundaryMode) []float64 {
	border, ok := borderTypes[mode]
	if !ok {
		return separableBlur(plane, width, height, sigma, truncate, mode)
	}

	src := gocv.NewMatWithSize(height, width, gocv.MatTypeCV64F)
	defer src.Close()
	data, err := src.DataPtrFloat64()
	if err != nil {
		return separableBlur(plane, width, height, sigma, truncate, mode)
	}
	copy(data, plane)

	dst := gocv.NewMat()
	defer dst.Close()

	ksize := 2*int(truncate*sigma+0.5) + 1
	gocv.GaussianBlur(src, &dst, image.Pt(ksize, ksize), sigma, sigma, border)

	out, err := dst.DataPtrFloat64()
	if err != nil {
		return separableBlur(plane, width, height, sigma, truncate, mode)
	}
	return append([]float64(nil), out...)
}
