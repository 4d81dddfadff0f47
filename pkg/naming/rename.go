package naming

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Collision records a rename that was skipped because the destination
// already existed.
type Collision struct {
	From string
	To   string
}

// Report summarises a RenameAll pass.
type Report struct {
	// Names holds the normalized name of every input, in input order
	Names []string

	Renamed    int
	Collisions []Collision
}

// Renamer brings the files of one directory into canonical form.
type Renamer struct {
	dir string
	log zerolog.Logger
}

// NewRenamer creates a renamer working inside dir.
func NewRenamer(dir string, log zerolog.Logger) *Renamer {
	return &Renamer{dir: dir, log: log}
}

// RenameAll normalizes every name and renames the file on disk to match.
// Existing files are never overwritten: when the destination already
// exists the rename is skipped, a warning is logged and the collision is
// recorded. The normalized name is reported either way.
func (r *Renamer) RenameAll(names []string) (*Report, error) {
	report := &Report{Names: make([]string, len(names))}

	for i, old := range names {
		normalized := Normalize(old)
		report.Names[i] = normalized
		if normalized == old {
			continue
		}

		renamed, err := r.safeRename(old, normalized)
		if err != nil {
			return nil, err
		}
		if !renamed {
			report.Collisions = append(report.Collisions, Collision{From: old, To: normalized})
			r.log.Warn().
				Str("from", old).
				Str("to", normalized).
				Msg("rename skipped, destination already exists; the existing file is used as-is")
			continue
		}
		report.Renamed++
		r.log.Debug().Str("from", old).Str("to", normalized).Msg("renamed")
	}

	return report, nil
}

// safeRename renames old to new unless new exists.
func (r *Renamer) safeRename(old, new string) (bool, error) {
	src := filepath.Join(r.dir, old)
	dst := filepath.Join(r.dir, new)

	if _, err := os.Lstat(dst); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking %s: %w", new, err)
	}

	if err := os.Rename(src, dst); err != nil {
		return false, fmt.Errorf("renaming %s to %s: %w", old, new, err)
	}
	return true, nil
}
