//go:build !opencv

package correction

func blurPlane(plane []float64, width, height int, sigma, truncate float64, mode BoundaryMode) []float64 {
	return separableBlur(plane, width, height, sigma, truncate, mode)
}
