// Package compose reads the channels of a combination, corrects each one
// for uneven illumination and stacks them into an RGB image.
package compose

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/stat"

	"channelmerge/internal/models"
	"channelmerge/pkg/correction"
	"channelmerge/pkg/imageio"
	"channelmerge/pkg/naming"
)

// ShapeMismatchError reports a combination whose channels cannot be
// stacked because their dimensions or sample types differ.
type ShapeMismatchError struct {
	UID    string
	Files  []string
	Shapes []imageio.Shape
}

func (e *ShapeMismatchError) Error() string {
	parts := make([]string, len(e.Files))
	for i := range e.Files {
		parts[i] = fmt.Sprintf("%s %s", e.Files[i], e.Shapes[i])
	}
	return fmt.Sprintf("combination %s: channels differ in shape or type: %s", e.UID, strings.Join(parts, ", "))
}

func (e *ShapeMismatchError) Unwrap() error { return imageio.ErrShapeMismatch }

// ChannelStats summarises one corrected plane.
type ChannelStats struct {
	Channel     models.ChannelTag
	Source      string
	Placeholder bool
	Mean        float64
	StdDev      float64
}

// CompositeImage is one finished output, ready to be written.
type CompositeImage struct {
	UID           string
	AcquisitionID string

	// OutputName is the file name the image is written under
	OutputName string

	Image *imageio.Buffer
	Stats []ChannelStats
}

// Options configures the naming of outputs.
type Options struct {
	// Suffix follows the id in RGB output names
	Suffix string

	// GraySuffix follows the id in single-channel output names
	GraySuffix string

	// Ext is the output extension including the dot
	Ext string
}

// DefaultOptions returns the <id>-rgb[-n].tif naming scheme.
func DefaultOptions() Options {
	return Options{Suffix: "rgb", GraySuffix: "gray", Ext: ".tif"}
}

// Compositor turns planned combinations into corrected images.
type Compositor struct {
	dir    string
	codec  imageio.Codec
	params correction.Params
	opts   Options
}

// NewCompositor creates a compositor reading channel files from dir.
// Invalid correction parameters are rejected here so no image is read
// with settings that cannot be applied.
func NewCompositor(dir string, codec imageio.Codec, params correction.Params, opts Options) (*Compositor, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Compositor{dir: dir, codec: codec, params: params, opts: opts}, nil
}

// Composite reads the red, green and blue files of comb, corrects each
// channel independently and stacks them in RGB order.
func (c *Compositor) Composite(comb models.Combination) (*CompositeImage, error) {
	files := comb.Files()
	channels := make([]*imageio.Buffer, len(files))
	for i, f := range files {
		b, err := c.codec.Read(filepath.Join(c.dir, f.Name))
		if err != nil {
			return nil, fmt.Errorf("combination %s: reading %s channel: %w", comb.UID, f.Tag, err)
		}
		channels[i] = b
	}

	if err := checkShapes(comb.UID, files, channels); err != nil {
		return nil, err
	}

	stats := make([]ChannelStats, len(files))
	for i, f := range files {
		corrected, err := correction.Correct(channels[i], c.params)
		if err != nil {
			return nil, fmt.Errorf("combination %s: correcting %s channel: %w", comb.UID, f.Tag, err)
		}
		channels[i] = corrected
		stats[i] = planeStats(f, corrected)
	}

	rgb, err := imageio.Stack(channels...)
	if err != nil {
		return nil, fmt.Errorf("combination %s: %w", comb.UID, err)
	}

	return &CompositeImage{
		UID:           comb.UID,
		AcquisitionID: comb.AcquisitionID,
		OutputName:    naming.OutputName(comb.UID, c.opts.Suffix, c.opts.Ext),
		Image:         rgb,
		Stats:         stats,
	}, nil
}

// Passthrough corrects the single file of p and returns it as a grayscale
// image.
func (c *Compositor) Passthrough(p models.Passthrough) (*CompositeImage, error) {
	b, err := c.codec.Read(filepath.Join(c.dir, p.File.Name))
	if err != nil {
		return nil, fmt.Errorf("passthrough %s: %w", p.UID, err)
	}
	if b.Planes != 1 {
		return nil, &ShapeMismatchError{UID: p.UID, Files: []string{p.File.Name}, Shapes: []imageio.Shape{b.Shape()}}
	}

	corrected, err := correction.Correct(b, c.params)
	if err != nil {
		return nil, fmt.Errorf("passthrough %s: %w", p.UID, err)
	}

	return &CompositeImage{
		UID:           p.UID,
		AcquisitionID: p.AcquisitionID,
		OutputName:    naming.OutputName(p.UID, c.opts.GraySuffix, c.opts.Ext),
		Image:         corrected,
		Stats:         []ChannelStats{planeStats(p.File, corrected)},
	}, nil
}

// checkShapes requires every channel to be a single plane of one common
// shape and depth.
func checkShapes(uid string, files []models.ChannelFile, channels []*imageio.Buffer) error {
	first := channels[0].Shape()
	ok := true
	for _, b := range channels {
		if b.Planes != 1 || b.Shape() != first {
			ok = false
			break
		}
	}
	if ok {
		return nil
	}

	err := &ShapeMismatchError{UID: uid}
	for i, b := range channels {
		err.Files = append(err.Files, files[i].Name)
		err.Shapes = append(err.Shapes, b.Shape())
	}
	return err
}

func planeStats(f models.ChannelFile, b *imageio.Buffer) ChannelStats {
	samples := b.Plane(0)
	mean, std := stat.MeanStdDev(samples, nil)
	return ChannelStats{
		Channel:     f.Tag,
		Source:      f.Name,
		Placeholder: f.Placeholder,
		Mean:        mean,
		StdDev:      std,
	}
}

// IsShapeMismatch reports whether err stems from channels that could not
// be stacked.
func IsShapeMismatch(err error) bool {
	return errors.Is(err, imageio.ErrShapeMismatch)
}
