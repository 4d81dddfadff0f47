package correction

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// fftFilter convolves lines with a fixed kernel by multiplying spectra.
// The transform length leaves room for the full linear convolution of a
// padded line, so the circular product never wraps into the output.
type fftFilter struct {
	fft    *fourier.FFT
	radius int
	scale  float64

	kernel []complex128
	seq    []float64
	coeff  []complex128
}

func newFFTFilter(n int, kernel []float64) *fftFilter {
	radius := len(kernel) / 2
	size := n + 4*radius

	f := &fftFilter{
		fft:    fourier.NewFFT(size),
		radius: radius,
		seq:    make([]float64, size),
		coeff:  make([]complex128, size/2+1),
	}

	// Inverse scale, measured once from a unit impulse.
	f.seq[0] = 1
	f.coeff = f.fft.Coefficients(f.coeff, f.seq)
	f.seq = f.fft.Sequence(f.seq, f.coeff)
	f.scale = 1 / f.seq[0]

	for i := range f.seq {
		f.seq[i] = 0
	}
	copy(f.seq, kernel)
	f.kernel = f.fft.Coefficients(nil, f.seq)

	return f
}

func (f *fftFilter) filter(padded, out []float64) {
	for i := range f.seq {
		f.seq[i] = 0
	}
	copy(f.seq, padded)

	f.coeff = f.fft.Coefficients(f.coeff, f.seq)
	for i, k := range f.kernel {
		f.coeff[i] *= k
	}
	f.seq = f.fft.Sequence(f.seq, f.coeff)

	// The kernel is symmetric, so the full convolution at i+2r is the
	// centred window starting at padded[i].
	offset := 2 * f.radius
	for i := range out {
		out[i] = f.seq[i+offset] * f.scale
	}
}
