// Package imageio holds the pixel buffer shared by the correction and
// composition stages and the codec that moves it to and from disk.
package imageio

import (
	"errors"
	"fmt"
	"strings"
)

// Depth is the number of bits per sample.
type Depth int

const (
	Depth8  Depth = 8
	Depth16 Depth = 16
)

// Max returns the largest sample value representable at d.
func (d Depth) Max() uint16 {
	if d == Depth8 {
		return 0xff
	}
	return 0xffff
}

func (d Depth) String() string {
	switch d {
	case Depth8:
		return "uint8"
	case Depth16:
		return "uint16"
	default:
		return fmt.Sprintf("depth(%d)", int(d))
	}
}

// Shape describes the dimensions and sample type of a buffer.
type Shape struct {
	Height int
	Width  int
	Planes int
	Depth  Depth
}

func (s Shape) String() string {
	if s.Planes == 1 {
		return fmt.Sprintf("(%d, %d) %s", s.Height, s.Width, s.Depth)
	}
	return fmt.Sprintf("(%d, %d, %d) %s", s.Height, s.Width, s.Planes, s.Depth)
}

// Buffer is a 2-D (Planes == 1) or 3-D pixel buffer. Samples are stored
// row-major with planes interleaved: the sample for plane p at (x, y) is
// Pix[(y*Width+x)*Planes+p]. 8-bit buffers keep their samples in the low
// byte of each element.
type Buffer struct {
	Width  int
	Height int
	Planes int
	Depth  Depth
	Pix    []uint16
}

// New allocates a zero-filled buffer.
func New(width, height, planes int, depth Depth) *Buffer {
	return &Buffer{
		Width:  width,
		Height: height,
		Planes: planes,
		Depth:  depth,
		Pix:    make([]uint16, width*height*planes),
	}
}

// Shape returns the buffer's shape.
func (b *Buffer) Shape() Shape {
	return Shape{Height: b.Height, Width: b.Width, Planes: b.Planes, Depth: b.Depth}
}

// ZerosLike returns an all-zero buffer with the same shape and depth as b.
func (b *Buffer) ZerosLike() *Buffer {
	return New(b.Width, b.Height, b.Planes, b.Depth)
}

// Clone returns a deep copy of b.
func (b *Buffer) Clone() *Buffer {
	c := *b
	c.Pix = append([]uint16(nil), b.Pix...)
	return &c
}

// Plane copies plane p out as float64 samples.
func (b *Buffer) Plane(p int) []float64 {
	out := make([]float64, b.Width*b.Height)
	for i := range out {
		out[i] = float64(b.Pix[i*b.Planes+p])
	}
	return out
}

// SetPlane writes float64 samples into plane p, rounding to the nearest
// integer and saturating to the depth's range.
func (b *Buffer) SetPlane(p int, samples []float64) {
	limit := float64(b.Depth.Max())
	for i, v := range samples {
		switch {
		case v <= 0:
			v = 0
		case v >= limit:
			v = limit
		default:
			v += 0.5
		}
		b.Pix[i*b.Planes+p] = uint16(v)
	}
}

// ErrShapeMismatch is wrapped by ShapeError.
var ErrShapeMismatch = errors.New("buffers do not share a shape")

// ShapeError reports the shapes of buffers that could not be stacked.
type ShapeError struct {
	Shapes []Shape
}

func (e *ShapeError) Error() string {
	parts := make([]string, len(e.Shapes))
	for i, s := range e.Shapes {
		parts[i] = s.String()
	}
	return fmt.Sprintf("%v: %s", ErrShapeMismatch, strings.Join(parts, ", "))
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

// Stack places single-plane buffers side by side along a new trailing axis.
// All inputs must be 2-D and share height, width and depth.
func Stack(planes ...*Buffer) (*Buffer, error) {
	if len(planes) == 0 {
		return nil, errors.New("stack: no buffers")
	}

	first := planes[0].Shape()
	shapes := make([]Shape, len(planes))
	ok := true
	for i, p := range planes {
		shapes[i] = p.Shape()
		if shapes[i] != first || shapes[i].Planes != 1 {
			ok = false
		}
	}
	if !ok {
		return nil, &ShapeError{Shapes: shapes}
	}

	out := New(first.Width, first.Height, len(planes), first.Depth)
	n := len(planes)
	for p, src := range planes {
		for i, v := range src.Pix {
			out.Pix[i*n+p] = v
		}
	}
	return out, nil
}
