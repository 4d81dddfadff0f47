// Package correction flattens uneven illumination in a single channel by
// removing a heavily blurred copy of the channel from itself.
//
// The blur is a Gaussian filter matching scipy.ndimage.gaussian_filter:
// the kernel is truncated at Truncate standard deviations and the image is
// extended past its edges according to a BoundaryMode. The default mode,
// nearest, repeats the edge pixel so borders neither wrap around nor fade to
// zero.
//
// Larger sigmas remove lower-frequency illumination gradients but erode
// large foreground features. The trade-off depends on the data set and is
// not calibrated automatically.
package correction

import (
	"errors"
	"fmt"

	"channelmerge/pkg/imageio"
)

// Method selects how the blurred background is removed.
type Method string

const (
	// MethodSubtract computes original - background, saturating at zero.
	MethodSubtract Method = "subtract"
	// MethodDivide computes round(original / background), zero where the
	// background is zero, saturating at the sample maximum.
	MethodDivide Method = "divide"
)

// BoundaryMode selects how the image is extended past its edges.
type BoundaryMode string

const (
	ModeNearest  BoundaryMode = "nearest"  // a a a | a b c d | d d d
	ModeReflect  BoundaryMode = "reflect"  // c b a | a b c d | d c b
	ModeMirror   BoundaryMode = "mirror"   // d c b | a b c d | c b a
	ModeWrap     BoundaryMode = "wrap"     // b c d | a b c d | a b c
	ModeConstant BoundaryMode = "constant" // 0 0 0 | a b c d | 0 0 0
)

// DefaultTruncate is the kernel radius in standard deviations.
const DefaultTruncate = 4.0

// ErrUnsupportedMethod is wrapped by UnsupportedMethodError.
var ErrUnsupportedMethod = errors.New("unsupported correction method")

// ErrUnsupportedMode is returned for unknown boundary modes.
var ErrUnsupportedMode = errors.New("unsupported boundary mode")

// UnsupportedMethodError names a correction method that does not exist.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("%v: %q (want %q or %q)", ErrUnsupportedMethod, e.Method, MethodSubtract, MethodDivide)
}

func (e *UnsupportedMethodError) Unwrap() error { return ErrUnsupportedMethod }

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodSubtract, MethodDivide:
		return m, nil
	default:
		return "", &UnsupportedMethodError{Method: s}
	}
}

// ParseMode validates a boundary mode name.
func ParseMode(s string) (BoundaryMode, error) {
	switch m := BoundaryMode(s); m {
	case ModeNearest, ModeReflect, ModeMirror, ModeWrap, ModeConstant:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
	}
}

// Params configures Correct.
type Params struct {
	// Sigma is the standard deviation of the blur in pixels. Zero disables
	// correction and Correct returns its input unchanged.
	Sigma float64

	Mode     BoundaryMode
	Method   Method
	Truncate float64
}

// DefaultParams returns subtract correction with nearest-edge extension.
func DefaultParams(sigma float64) Params {
	return Params{
		Sigma:    sigma,
		Mode:     ModeNearest,
		Method:   MethodSubtract,
		Truncate: DefaultTruncate,
	}
}

// Validate checks the parameters without touching any pixels.
func (p Params) Validate() error {
	if p.Sigma < 0 {
		return fmt.Errorf("sigma must be non-negative, got %g", p.Sigma)
	}
	if _, err := ParseMethod(string(p.Method)); err != nil {
		return err
	}
	if _, err := ParseMode(string(p.Mode)); err != nil {
		return err
	}
	if p.Truncate <= 0 {
		return fmt.Errorf("truncate must be positive, got %g", p.Truncate)
	}
	return nil
}

// Correct applies illumination correction to every plane of src
// independently and returns a new buffer of the same shape and depth.
func Correct(src *imageio.Buffer, p Params) (*imageio.Buffer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Sigma == 0 {
		return src, nil
	}

	out := src.ZerosLike()
	for plane := 0; plane < src.Planes; plane++ {
		original := src.Plane(plane)
		background := Blur(original, src.Width, src.Height, p.Sigma, p.Truncate, p.Mode)

		switch p.Method {
		case MethodSubtract:
			subtract(original, background)
		case MethodDivide:
			divide(original, background, float64(src.Depth.Max()))
		}
		out.SetPlane(plane, original)
	}
	return out, nil
}

// subtract stores x - y in x. The background is rounded to the sample grid
// first so the result is an exact integer difference.
func subtract(x, y []float64) {
	for i := range x {
		x[i] -= roundSample(y[i])
	}
}

// divide stores round(x / y) in x, or 0 where round(y) is 0.
func divide(x, y []float64, limit float64) {
	for i := range x {
		d := roundSample(y[i])
		if d == 0 {
			x[i] = 0
			continue
		}
		q := x[i] / d
		if q > limit {
			q = limit
		}
		x[i] = q
	}
}

func roundSample(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return float64(int64(v + 0.5))
}
