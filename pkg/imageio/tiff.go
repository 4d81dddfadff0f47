package imageio

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/tiff"
)

// Codec reads and writes pixel buffers.
type Codec interface {
	Read(path string) (*Buffer, error)
	Write(path string, b *Buffer) error
}

// ErrUnsupportedLayout is returned for images that are neither single-plane
// gray nor three-plane RGB.
var ErrUnsupportedLayout = errors.New("unsupported pixel layout")

// Compression names accepted by NewTIFFCodec.
const (
	CompressionNone    = "none"
	CompressionDeflate = "deflate"
)

// TIFFCodec stores buffers as baseline TIFF. Gray buffers become 8- or
// 16-bit single-sample images; three-plane buffers become RGB images with
// an opaque alpha sample, which is dropped again on read.
type TIFFCodec struct {
	opts *tiff.Options
}

// NewTIFFCodec returns a codec writing with the named compression.
func NewTIFFCodec(compression string) (*TIFFCodec, error) {
	switch compression {
	case "", CompressionNone:
		return &TIFFCodec{opts: &tiff.Options{Compression: tiff.Uncompressed}}, nil
	case CompressionDeflate:
		return &TIFFCodec{opts: &tiff.Options{Compression: tiff.Deflate}}, nil
	default:
		return nil, fmt.Errorf("unsupported TIFF compression %q", compression)
	}
}

// Read decodes the TIFF at path.
func (c *TIFFCodec) Read(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, err := tiff.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	b, err := FromImage(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Write encodes b as TIFF at path, replacing any existing file.
func (c *TIFFCodec) Write(path string, b *Buffer) error {
	img, err := b.Image()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating image: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := tiff.Encode(w, img, c.opts); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// FromImage converts a decoded image into a buffer, preserving its sample
// depth.
func FromImage(img image.Image) (*Buffer, error) {
	r := img.Bounds()
	w, h := r.Dx(), r.Dy()

	switch m := img.(type) {
	case *image.Gray:
		b := New(w, h, 1, Depth8)
		for y := 0; y < h; y++ {
			row := m.Pix[y*m.Stride : y*m.Stride+w]
			for x, v := range row {
				b.Pix[y*w+x] = uint16(v)
			}
		}
		return b, nil

	case *image.Gray16:
		b := New(w, h, 1, Depth16)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				b.Pix[y*w+x] = m.Gray16At(r.Min.X+x, r.Min.Y+y).Y
			}
		}
		return b, nil

	case *image.NRGBA:
		return fromRGB8(w, h, m.Pix, m.Stride), nil
	case *image.RGBA:
		return fromRGB8(w, h, m.Pix, m.Stride), nil

	case *image.NRGBA64:
		return fromRGB16(w, h, func(x, y int) color.RGBA64 {
			c := m.NRGBA64At(r.Min.X+x, r.Min.Y+y)
			return color.RGBA64{R: c.R, G: c.G, B: c.B, A: c.A}
		}), nil
	case *image.RGBA64:
		return fromRGB16(w, h, func(x, y int) color.RGBA64 {
			return m.RGBA64At(r.Min.X+x, r.Min.Y+y)
		}), nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedLayout, img)
	}
}

// fromRGB8 reads the colour samples of an 8-bit 4-sample image, ignoring alpha.
// Premultiplied and straight alpha agree for the opaque images this tool writes.
func fromRGB8(w, h int, pix []uint8, stride int) *Buffer {
	b := New(w, h, 3, Depth8)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := pix[y*stride+x*4:]
			dst := b.Pix[(y*w+x)*3:]
			dst[0], dst[1], dst[2] = uint16(src[0]), uint16(src[1]), uint16(src[2])
		}
	}
	return b
}

func fromRGB16(w, h int, at func(x, y int) color.RGBA64) *Buffer {
	b := New(w, h, 3, Depth16)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := at(x, y)
			dst := b.Pix[(y*w+x)*3:]
			dst[0], dst[1], dst[2] = c.R, c.G, c.B
		}
	}
	return b
}

// Image converts b into an image the TIFF encoder understands.
func (b *Buffer) Image() (image.Image, error) {
	rect := image.Rect(0, 0, b.Width, b.Height)

	switch {
	case b.Planes == 1 && b.Depth == Depth8:
		img := image.NewGray(rect)
		for i, v := range b.Pix {
			img.Pix[i] = uint8(v)
		}
		return img, nil

	case b.Planes == 1 && b.Depth == Depth16:
		img := image.NewGray16(rect)
		for i, v := range b.Pix {
			img.Pix[2*i] = uint8(v >> 8)
			img.Pix[2*i+1] = uint8(v)
		}
		return img, nil

	case b.Planes == 3 && b.Depth == Depth8:
		img := image.NewNRGBA(rect)
		for i := 0; i < b.Width*b.Height; i++ {
			px := b.Pix[i*3:]
			img.Pix[i*4+0] = uint8(px[0])
			img.Pix[i*4+1] = uint8(px[1])
			img.Pix[i*4+2] = uint8(px[2])
			img.Pix[i*4+3] = 0xff
		}
		return img, nil

	case b.Planes == 3 && b.Depth == Depth16:
		img := image.NewNRGBA64(rect)
		for y := 0; y < b.Height; y++ {
			for x := 0; x < b.Width; x++ {
				px := b.Pix[(y*b.Width+x)*3:]
				img.SetNRGBA64(x, y, color.NRGBA64{R: px[0], G: px[1], B: px[2], A: 0xffff})
			}
		}
		return img, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLayout, b.Shape())
	}
}
