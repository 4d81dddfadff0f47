package grouping

import (
	"errors"
	"fmt"
	"strings"

	"channelmerge/internal/models"
	"channelmerge/pkg/naming"
)

// ErrUnclassifiable is wrapped by ClassificationError.
var ErrUnclassifiable = errors.New("unable to infer color channel")

// ClassificationError lists every file whose channel token could not be
// extracted, across all acquisitions of a run.
type ClassificationError struct {
	Files []string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf(
		"%v from %d filename(s): %s; the names need a \"-\" separated channel token "+
			"(<id>-<channel>[-<n>]); resolve any rename conflicts by hand",
		ErrUnclassifiable, len(e.Files), strings.Join(e.Files, ", "))
}

func (e *ClassificationError) Unwrap() error { return ErrUnclassifiable }

// Classification is the outcome of classifying every group of a run.
type Classification struct {
	Acquisitions []models.Acquisition

	// Unclassifiable holds the files with a missing or empty channel token
	Unclassifiable []string
}

// Err returns a *ClassificationError when any file could not be
// classified, nil otherwise.
func (c *Classification) Err() error {
	if len(c.Unclassifiable) == 0 {
		return nil
	}
	return &ClassificationError{Files: c.Unclassifiable}
}

// Classify assigns each file to a channel by the first letter of the token
// after its id. Files without a token do not stop classification: they are
// collected so every problem in the directory is reported at once.
func Classify(groups []Group) *Classification {
	result := &Classification{}

	for _, g := range groups {
		acq := models.Acquisition{ID: g.ID}
		for _, name := range g.Files {
			p := naming.Parse(name)
			if !p.HasToken || p.Token == "" {
				result.Unclassifiable = append(result.Unclassifiable, name)
				continue
			}
			acq.Add(models.ChannelFile{Name: name, Tag: models.TagFromToken(p.Token)})
		}
		result.Acquisitions = append(result.Acquisitions, acq)
	}

	return result
}
