package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channelmerge/pkg/compose"
	"channelmerge/pkg/correction"
	"channelmerge/pkg/grouping"
	"channelmerge/pkg/imageio"
)

// countingCodec records how often the wrapped codec is used.
type countingCodec struct {
	inner  imageio.Codec
	reads  atomic.Int64
	writes atomic.Int64
}

func (c *countingCodec) Read(path string) (*imageio.Buffer, error) {
	c.reads.Add(1)
	return c.inner.Read(path)
}

func (c *countingCodec) Write(path string, b *imageio.Buffer) error {
	c.writes.Add(1)
	return c.inner.Write(path, b)
}

func newCodec(t *testing.T) *countingCodec {
	t.Helper()
	tiff, err := imageio.NewTIFFCodec(imageio.CompressionNone)
	require.NoError(t, err)
	return &countingCodec{inner: tiff}
}

// writeChannel writes a single-plane image with a bright spot on a
// sloped background.
func writeChannel(t *testing.T, codec imageio.Codec, dir, name string, depth imageio.Depth) {
	t.Helper()
	const w, h = 24, 16
	b := imageio.New(w, h, 1, depth)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint16(10 + x + y)
			if x > 10 && x < 14 && y > 6 && y < 10 {
				v = 200
			}
			b.Pix[y*w+x] = v
		}
	}
	require.NoError(t, codec.Write(filepath.Join(dir, name), b))
}

func testParams(in string) *Params {
	return &Params{
		InputDir:          in,
		OutputDir:         filepath.Join(in, "merged_corrected"),
		Extension:         ".tif",
		PlaceholderMarker: grouping.DefaultMarker,
		Workers:           2,
		Passthrough:       true,
		Correction:        correction.DefaultParams(3),
		Compose:           compose.DefaultOptions(),
	}
}

func placeholders(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*"+grouping.DefaultMarker))
	require.NoError(t, err)
	return matches
}

func TestProcess_EndToEnd(t *testing.T) {
	in := t.TempDir()
	codec := newCodec(t)
	writeChannel(t, codec, in, "01 red.tif", imageio.Depth8)
	writeChannel(t, codec, in, "01-green.tif", imageio.Depth8)
	writeChannel(t, codec, in, "01-blue.tif", imageio.Depth8)
	writeChannel(t, codec, in, "02-red.tif", imageio.Depth16)
	writeChannel(t, codec, in, "02-green.tif", imageio.Depth16)
	writeChannel(t, codec, in, "02-bf.tif", imageio.Depth16)
	writeChannel(t, codec, in, "03-blue.tif", imageio.Depth8)
	writeChannel(t, codec, in, "04-red.tif", imageio.Depth8)
	writeChannel(t, codec, in, "04-green.tif", imageio.Depth16)
	writeChannel(t, codec, in, "04-blue.tif", imageio.Depth8)
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("ignored"), 0o644))

	params := testParams(in)
	summary, err := NewMerger(params, codec, zerolog.Nop()).Process(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 10, summary.Discovered)
	assert.Equal(t, 1, summary.Renamed)
	assert.FileExists(t, filepath.Join(in, "01-red.tif"))
	assert.Equal(t, []string{"02-bf.tif"}, summary.Brightfield)
	assert.Equal(t, []string{"02-b.dummy"}, summary.Placeholders)

	assert.Equal(t, []string{"01-rgb.tif", "02-rgb.tif", "03-gray.tif"}, summary.Written)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "04", summary.Failed[0].UID)
	assert.Len(t, summary.ShapeMismatches(), 1)

	rgb, err := codec.Read(filepath.Join(params.OutputDir, "02-rgb.tif"))
	require.NoError(t, err)
	assert.Equal(t, imageio.Shape{Height: 16, Width: 24, Planes: 3, Depth: imageio.Depth16}, rgb.Shape())
	var spot, blue uint16
	for i := 0; i < rgb.Width*rgb.Height; i++ {
		blue |= rgb.Pix[i*3+2]
		spot = max(spot, rgb.Pix[i*3])
	}
	assert.Zero(t, blue)
	assert.Greater(t, spot, uint16(50))

	gray, err := codec.Read(filepath.Join(params.OutputDir, "03-gray.tif"))
	require.NoError(t, err)
	assert.Equal(t, 1, gray.Planes)

	assert.Empty(t, placeholders(t, in))
	assert.NoFileExists(t, filepath.Join(params.OutputDir, "04-rgb.tif"))
}

func TestProcess_ClassificationFailsBeforeImageIO(t *testing.T) {
	in := t.TempDir()
	for _, name := range []string{"01-red.tif", "01.tif", "02-green.tif", "02-.tif", "red.tif"} {
		require.NoError(t, os.WriteFile(filepath.Join(in, name), []byte("not decoded"), 0o644))
	}

	codec := newCodec(t)
	params := testParams(in)
	summary, err := NewMerger(params, codec, zerolog.Nop()).Process(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, grouping.ErrUnclassifiable))
	var classErr *grouping.ClassificationError
	require.ErrorAs(t, err, &classErr)
	assert.ElementsMatch(t, []string{"01.tif", "02-.tif", "red.tif"}, classErr.Files)

	assert.Zero(t, codec.reads.Load())
	assert.Zero(t, codec.writes.Load())
	assert.NoDirExists(t, params.OutputDir)
	assert.Empty(t, summary.Written)
}

func TestProcess_CleanupAfterCancel(t *testing.T) {
	in := t.TempDir()
	codec := newCodec(t)
	writeChannel(t, codec, in, "05-red.tif", imageio.Depth8)
	writeChannel(t, codec, in, "05-blue.tif", imageio.Depth8)
	require.NoError(t, os.WriteFile(filepath.Join(in, "99-r.dummy"), []byte("stale"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := NewMerger(testParams(in), codec, zerolog.Nop()).Process(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"05-g.dummy"}, summary.Placeholders)
	assert.Empty(t, summary.Written)
	assert.Empty(t, placeholders(t, in))
}

func TestProcess_NoInputs(t *testing.T) {
	in := t.TempDir()
	_, err := NewMerger(testParams(in), newCodec(t), zerolog.Nop()).Process(context.Background())
	assert.ErrorIs(t, err, ErrNoInputs)
}

func TestProcess_RejectsBadCorrection(t *testing.T) {
	params := testParams(t.TempDir())
	params.Correction.Method = "multiply"
	_, err := NewMerger(params, newCodec(t), zerolog.Nop()).Process(context.Background())
	assert.ErrorIs(t, err, correction.ErrUnsupportedMethod)
}

func TestProcess_PassthroughDisabled(t *testing.T) {
	in := t.TempDir()
	codec := newCodec(t)
	writeChannel(t, codec, in, "03-blue.tif", imageio.Depth8)

	params := testParams(in)
	params.Passthrough = false
	summary, err := NewMerger(params, codec, zerolog.Nop()).Process(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Written)
	assert.Contains(t, summary.Skipped, "03")
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"01-red.tif", "01-blue.tif"}, dedupe([]string{"01-red.tif", "01-blue.tif", "01-red.tif"}))
	assert.Empty(t, dedupe(nil))
}
