package grouping

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channelmerge/internal/models"
	"channelmerge/pkg/imageio"
)

func names(files []models.ChannelFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

func TestGroupByID_ExactIDs(t *testing.T) {
	groups := GroupByID([]string{
		"101-red.tif", "01-blue.tif", "01-red.tif", "01-green.tif", "02-red.tif",
	})

	require.Len(t, groups, 3)
	assert.Equal(t, "01", groups[0].ID)
	assert.Equal(t, []string{"01-blue.tif", "01-green.tif", "01-red.tif"}, groups[0].Files)
	assert.Equal(t, "02", groups[1].ID)
	assert.Equal(t, "101", groups[2].ID)
	assert.Equal(t, []string{"101-red.tif"}, groups[2].Files)
}

func TestGroupByID_LexicalOrder(t *testing.T) {
	groups := GroupByID([]string{"9-red.tif", "10-red.tif", "1-red.tif"})
	ids := []string{groups[0].ID, groups[1].ID, groups[2].ID}
	assert.Equal(t, []string{"1", "10", "9"}, ids)
}

func TestSplitBrightfield(t *testing.T) {
	kept, bf := SplitBrightfield([]string{"01-red.tif", "01-bf.tif", "01-blue.tif", "02-BF-2.tif"})
	assert.Equal(t, []string{"01-red.tif", "01-blue.tif"}, kept)
	assert.Equal(t, []string{"01-bf.tif", "02-BF-2.tif"}, bf)

	c := Classify(GroupByID(kept))
	for _, acq := range c.Acquisitions {
		for _, tag := range models.RGBOrder {
			for _, f := range acq.Channel(tag) {
				assert.NotContains(t, f.Name, "bf")
			}
		}
	}
}

func TestClassify(t *testing.T) {
	c := Classify(GroupByID([]string{
		"01-red.tif", "01-Green.tif", "01-blue-2.tif", "01-blue.tif", "01-dapi.tif",
	}))
	require.NoError(t, c.Err())
	require.Len(t, c.Acquisitions, 1)

	acq := c.Acquisitions[0]
	assert.Equal(t, []string{"01-red.tif"}, names(acq.Red))
	assert.Equal(t, []string{"01-Green.tif"}, names(acq.Green))
	assert.Equal(t, []string{"01-blue-2.tif", "01-blue.tif"}, names(acq.Blue))
	assert.Equal(t, []string{"01-dapi.tif"}, names(acq.Unknown))
	assert.Equal(t, models.Blue, acq.Blue[0].Tag)
}

func TestClassify_BatchesEveryBadFile(t *testing.T) {
	c := Classify(GroupByID([]string{
		"01-red.tif", "01.tif", "02-green.tif", "02-.tif", "03red.tif",
	}))

	err := c.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnclassifiable))

	var classErr *ClassificationError
	require.ErrorAs(t, err, &classErr)
	assert.ElementsMatch(t, []string{"01.tif", "02-.tif", "03red.tif"}, classErr.Files)
	assert.Contains(t, err.Error(), "3 filename(s)")
	for _, f := range classErr.Files {
		assert.Contains(t, err.Error(), f)
	}
}

func TestCombinations_ProductInRGBOrder(t *testing.T) {
	c := Classify(GroupByID([]string{"02-blue.tif", "02-green.tif", "02-red-2.tif", "02-red.tif"}))
	require.NoError(t, c.Err())

	combos := Combinations(c.Acquisitions[0])
	require.Len(t, combos, 2)

	assert.Equal(t, "02", combos[0].UID)
	assert.Equal(t, "02-2", combos[1].UID)
	for _, combo := range combos {
		files := combo.Files()
		assert.Equal(t, models.Red, files[0].Tag)
		assert.Equal(t, models.Green, files[1].Tag)
		assert.Equal(t, models.Blue, files[2].Tag)
		assert.Equal(t, "02-green.tif", combo.Green.Name)
		assert.Equal(t, "02-blue.tif", combo.Blue.Name)
	}
	assert.Equal(t, "02-red-2.tif", combos[0].Red.Name)
	assert.Equal(t, "02-red.tif", combos[1].Red.Name)
}

func TestCombinations_FullProduct(t *testing.T) {
	acq := models.Acquisition{ID: "5"}
	for _, n := range []string{"5-r.tif", "5-r-2.tif"} {
		acq.Add(models.ChannelFile{Name: n, Tag: models.Red})
	}
	for _, n := range []string{"5-g.tif", "5-g-2.tif", "5-g-3.tif"} {
		acq.Add(models.ChannelFile{Name: n, Tag: models.Green})
	}
	acq.Add(models.ChannelFile{Name: "5-b.tif", Tag: models.Blue})
	acq.Add(models.ChannelFile{Name: "5-b-2.tif", Tag: models.Blue})

	combos := Combinations(acq)
	require.Len(t, combos, 12)
	assert.Equal(t, "5-12", combos[11].UID)
	assert.Equal(t, "5-r.tif", combos[0].Red.Name)
	assert.Equal(t, "5-r-2.tif", combos[6].Red.Name)
}

type fakeStager struct {
	calls []models.ChannelTag
	err   error
}

func (f *fakeStager) Stage(id string, tag models.ChannelTag, template models.ChannelFile) (models.ChannelFile, error) {
	f.calls = append(f.calls, tag)
	if f.err != nil {
		return models.ChannelFile{}, f.err
	}
	return models.ChannelFile{Name: id + "-" + tag.Letter() + ".dummy", Tag: tag, Placeholder: true}, nil
}

func TestEnumerate_Policies(t *testing.T) {
	c := Classify(GroupByID([]string{
		"01-red.tif", "01-green.tif", "01-blue.tif",
		"02-red.tif", "02-green.tif",
		"03-blue.tif", "03-blue-2.tif",
		"04-dapi.tif",
	}))
	require.NoError(t, c.Err())

	stager := &fakeStager{}
	plan := NewEnumerator(stager, true, zerolog.Nop()).Enumerate(c.Acquisitions)

	require.Len(t, plan.Combinations, 2)
	assert.Equal(t, "01", plan.Combinations[0].UID)
	assert.Equal(t, "02", plan.Combinations[1].UID)
	assert.True(t, plan.Combinations[1].Blue.Placeholder)
	assert.Equal(t, "02-b.dummy", plan.Combinations[1].Blue.Name)
	assert.Equal(t, []models.ChannelTag{models.Blue}, stager.calls)

	require.Len(t, plan.Passthroughs, 2)
	assert.Equal(t, "03", plan.Passthroughs[0].UID)
	assert.Equal(t, "03-2", plan.Passthroughs[1].UID)

	assert.Contains(t, plan.Skipped, "04")
	assert.Equal(t, 4, plan.Outputs())
}

func TestEnumerate_PassthroughDisabled(t *testing.T) {
	c := Classify(GroupByID([]string{"03-blue.tif"}))
	plan := NewEnumerator(&fakeStager{}, false, zerolog.Nop()).Enumerate(c.Acquisitions)
	assert.Empty(t, plan.Passthroughs)
	assert.Contains(t, plan.Skipped, "03")
}

func TestEnumerate_StageFailureSkipsOnlyThatAcquisition(t *testing.T) {
	c := Classify(GroupByID([]string{
		"01-red.tif", "01-green.tif",
		"02-red.tif", "02-green.tif", "02-blue.tif",
	}))
	stager := &fakeStager{err: errors.New("disk full")}
	plan := NewEnumerator(stager, true, zerolog.Nop()).Enumerate(c.Acquisitions)

	require.Len(t, plan.Combinations, 1)
	assert.Equal(t, "02", plan.Combinations[0].UID)
	assert.Contains(t, plan.Skipped["01"], "disk full")
}

func writeGray16(t *testing.T, codec imageio.Codec, path string, width, height int) {
	t.Helper()
	b := imageio.New(width, height, 1, imageio.Depth16)
	for i := range b.Pix {
		b.Pix[i] = uint16(i + 1)
	}
	require.NoError(t, codec.Write(path, b))
}

func TestStager_PlaceholderMatchesTemplate(t *testing.T) {
	dir := t.TempDir()
	codec, err := imageio.NewTIFFCodec(imageio.CompressionNone)
	require.NoError(t, err)
	writeGray16(t, codec, filepath.Join(dir, "07-red.tif"), 6, 4)
	writeGray16(t, codec, filepath.Join(dir, "07-green.tif"), 6, 4)

	stager := NewStager(dir, DefaultMarker, codec, zerolog.Nop())
	c := Classify(GroupByID([]string{"07-red.tif", "07-green.tif"}))
	plan := NewEnumerator(stager, true, zerolog.Nop()).Enumerate(c.Acquisitions)

	require.Len(t, plan.Combinations, 1)
	blue := plan.Combinations[0].Blue
	assert.True(t, blue.Placeholder)
	assert.Equal(t, models.Blue, blue.Tag)
	assert.Equal(t, []string{"07-b.dummy"}, stager.Staged())

	placeholder, err := codec.Read(filepath.Join(dir, blue.Name))
	require.NoError(t, err)
	red, err := codec.Read(filepath.Join(dir, "07-red.tif"))
	require.NoError(t, err)
	assert.Equal(t, red.Shape(), placeholder.Shape())
	for _, v := range placeholder.Pix {
		require.Zero(t, v)
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "99-g.dummy"), []byte("stale"), 0o644))
	require.NoError(t, stager.Cleanup())
	leftovers, err := filepath.Glob(filepath.Join(dir, "*.dummy"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
	assert.FileExists(t, filepath.Join(dir, "07-red.tif"))
	assert.Empty(t, stager.Staged())
}
