package correction

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// fftMinRadius is the kernel radius from which lines are convolved in the
// frequency domain. Below it the direct sum is faster.
const fftMinRadius = 32

// gaussianKernel returns the normalised 1-D Gaussian of the given sigma,
// truncated at radius = int(truncate*sigma + 0.5).
func gaussianKernel(sigma, truncate float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// extend maps an index outside [0, n) back into the line according to mode.
// It returns -1 when the sample should take the constant value 0.
func extend(i, n int, mode BoundaryMode) int {
	if i >= 0 && i < n {
		return i
	}
	switch mode {
	case ModeNearest:
		if i < 0 {
			return 0
		}
		return n - 1
	case ModeReflect:
		period := 2 * n
		i = mod(i, period)
		if i >= n {
			i = period - 1 - i
		}
		return i
	case ModeMirror:
		if n == 1 {
			return 0
		}
		period := 2*n - 2
		i = mod(i, period)
		if i >= n {
			i = period - i
		}
		return i
	case ModeWrap:
		return mod(i, n)
	default:
		return -1
	}
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// lineFilter convolves one padded line of length n+2r into n outputs.
type lineFilter interface {
	filter(padded, out []float64)
}

// directFilter sums the kernel over each window.
type directFilter struct {
	kernel []float64
}

func (f directFilter) filter(padded, out []float64) {
	for i := range out {
		out[i] = floats.Dot(f.kernel, padded[i:i+len(f.kernel)])
	}
}

func newLineFilter(n int, kernel []float64) lineFilter {
	if radius := len(kernel) / 2; radius >= fftMinRadius {
		return newFFTFilter(n, kernel)
	}
	return directFilter{kernel: kernel}
}

// separableBlur filters plane (width x height, row-major) along x and then
// along y with the same 1-D Gaussian.
func separableBlur(plane []float64, width, height int, sigma, truncate float64, mode BoundaryMode) []float64 {
	kernel := gaussianKernel(sigma, truncate)
	radius := len(kernel) / 2

	tmp := make([]float64, len(plane))
	convolveLines(plane, tmp, width, height, 1, width, kernel, radius, mode)

	out := make([]float64, len(plane))
	convolveLines(tmp, out, height, width, width, 1, kernel, radius, mode)
	return out
}

// convolveLines filters count lines of length n. Consecutive samples of a
// line are step apart and consecutive lines start stride apart.
func convolveLines(src, dst []float64, n, count, step, stride int, kernel []float64, radius int, mode BoundaryMode) {
	f := newLineFilter(n, kernel)
	padded := make([]float64, n+2*radius)
	out := make([]float64, n)

	for line := 0; line < count; line++ {
		base := line * stride
		for i := range padded {
			j := extend(i-radius, n, mode)
			if j < 0 {
				padded[i] = 0
				continue
			}
			padded[i] = src[base+j*step]
		}
		f.filter(padded, out)
		for i, v := range out {
			dst[base+i*step] = v
		}
	}
}

// Blur returns plane filtered with a Gaussian of the given sigma. The work
// is done by the build's blur backend.
func Blur(plane []float64, width, height int, sigma, truncate float64, mode BoundaryMode) []float64 {
	return blurPlane(plane, width, height, sigma, truncate, mode)
}
