package grouping

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"channelmerge/internal/models"
	"channelmerge/pkg/imageio"
)

// DefaultMarker is the extension given to staged placeholder files.
const DefaultMarker = ".dummy"

// Stager writes all-zero placeholder channels next to the input files and
// removes them again once composition is over.
type Stager struct {
	dir    string
	marker string
	codec  imageio.Codec
	log    zerolog.Logger

	mu     sync.Mutex
	staged []string
}

// NewStager creates a stager writing <id>-<letter><marker> files into dir.
func NewStager(dir, marker string, codec imageio.Codec, log zerolog.Logger) *Stager {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Stager{dir: dir, marker: marker, codec: codec, log: log}
}

// Stage creates the placeholder for the missing channel tag of acquisition
// id. The placeholder copies the shape and depth of template.
func (s *Stager) Stage(id string, tag models.ChannelTag, template models.ChannelFile) (models.ChannelFile, error) {
	model, err := s.codec.Read(filepath.Join(s.dir, template.Name))
	if err != nil {
		return models.ChannelFile{}, fmt.Errorf("reading placeholder template: %w", err)
	}

	name := id + "-" + tag.Letter() + s.marker
	if err := s.codec.Write(filepath.Join(s.dir, name), model.ZerosLike()); err != nil {
		return models.ChannelFile{}, fmt.Errorf("writing placeholder: %w", err)
	}

	s.mu.Lock()
	s.staged = append(s.staged, name)
	s.mu.Unlock()

	s.log.Debug().
		Str("acquisition", id).
		Str("channel", tag.String()).
		Str("template", template.Name).
		Str("placeholder", name).
		Msg("staged placeholder channel")

	return models.ChannelFile{Name: name, Tag: tag, Placeholder: true}, nil
}

// Cleanup deletes every file carrying the placeholder marker in the
// directory, including leftovers from earlier interrupted runs. It keeps
// going after a failed removal and reports all failures together.
func (s *Stager) Cleanup() error {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+s.marker))
	if err != nil {
		return fmt.Errorf("listing placeholders: %w", err)
	}

	var errs []error
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("could not remove placeholder")
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	s.staged = nil
	s.mu.Unlock()

	return errors.Join(errs...)
}

// Staged returns the names of the placeholders written so far.
func (s *Stager) Staged() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.staged...)
}
