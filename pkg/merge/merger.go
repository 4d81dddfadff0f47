// Package merge runs the whole channel-merge pipeline over one directory.
//
// The run consists of several steps:
//  1. Discovering the channel files of the input directory
//  2. Renaming them into canonical form
//  3. Excluding brightfield scans and grouping the rest by acquisition id
//  4. Classifying every file, stopping before any image I/O if one fails
//  5. Staging placeholders for two-channel acquisitions and enumerating
//     the red, green and blue combinations
//  6. Correcting, composing and writing every combination in parallel
//  7. Removing the staged placeholders, whatever happened before
package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"channelmerge/internal/models"
	"channelmerge/pkg/compose"
	"channelmerge/pkg/correction"
	"channelmerge/pkg/grouping"
	"channelmerge/pkg/imageio"
	"channelmerge/pkg/naming"
)

// ErrNoInputs is returned when the input directory holds no channel files.
var ErrNoInputs = errors.New("no channel images found")

// Params holds everything one run needs to know.
type Params struct {
	// InputDir is the directory holding the grayscale channel files. Files
	// are renamed in place and placeholders are staged here.
	InputDir string

	// OutputDir receives the composites; it is created when missing
	OutputDir string

	// Extension selects the channel files, compared case-insensitively
	Extension string

	// PlaceholderMarker is the extension of staged placeholder files
	PlaceholderMarker string

	// Workers bounds how many outputs are composed at once
	Workers int

	// Passthrough writes single-channel acquisitions as grayscale images
	Passthrough bool

	Correction correction.Params
	Compose    compose.Options
}

// Failure records an output that could not be produced.
type Failure struct {
	UID string
	Err error
}

// Summary describes the outcome of a run.
type Summary struct {
	RunID string

	Discovered  int
	Renamed     int
	Collisions  []naming.Collision
	Brightfield []string

	Acquisitions int
	Placeholders []string

	// Written lists output file names, sorted
	Written []string

	// Skipped maps acquisition ids that produced nothing to the reason
	Skipped map[string]string

	// Failed lists outputs that were skipped because of an error, by UID
	Failed []Failure

	Duration time.Duration
}

// ShapeMismatches returns the failures caused by channels that could not
// be stacked.
func (s *Summary) ShapeMismatches() []Failure {
	var out []Failure
	for _, f := range s.Failed {
		if compose.IsShapeMismatch(f.Err) {
			out = append(out, f)
		}
	}
	return out
}

// Merger runs the pipeline.
type Merger struct {
	params *Params
	codec  imageio.Codec
	log    zerolog.Logger
}

// NewMerger creates a merger. The codec is used for placeholders, channel
// reads and composite writes.
func NewMerger(params *Params, codec imageio.Codec, log zerolog.Logger) *Merger {
	return &Merger{params: params, codec: codec, log: log}
}

// Process runs every step on the input directory. A classification
// failure is returned as a *grouping.ClassificationError before any image
// is read or written. Errors composing a single output are logged and
// recorded in the summary; they do not stop the run.
func (m *Merger) Process(ctx context.Context) (summary *Summary, err error) {
	start := time.Now()
	summary = &Summary{RunID: uuid.NewString(), Skipped: make(map[string]string)}
	log := m.log.With().Str("run", summary.RunID).Logger()
	defer func() { summary.Duration = time.Since(start) }()

	if err := m.params.Correction.Validate(); err != nil {
		return summary, err
	}

	// Step 1: Discover channel files
	log.Info().Str("dir", m.params.InputDir).Msg("step 1: discovering channel files")
	names, err := m.discover()
	if err != nil {
		return summary, err
	}
	summary.Discovered = len(names)

	// Step 2: Rename into canonical form
	log.Info().Int("files", len(names)).Msg("step 2: normalizing filenames")
	report, err := naming.NewRenamer(m.params.InputDir, log).RenameAll(names)
	if err != nil {
		return summary, fmt.Errorf("normalizing filenames: %w", err)
	}
	summary.Renamed = report.Renamed
	summary.Collisions = report.Collisions
	names = dedupe(report.Names)

	// Step 3: Exclude brightfield and group
	kept, brightfield := grouping.SplitBrightfield(names)
	summary.Brightfield = brightfield
	for _, name := range brightfield {
		log.Warn().Str("file", name).Msg("brightfield scan excluded from merge")
	}
	groups := grouping.GroupByID(kept)
	summary.Acquisitions = len(groups)
	log.Info().Int("acquisitions", len(groups)).Int("excluded", len(brightfield)).Msg("step 3: grouped by acquisition id")

	// Step 4: Classify every file before touching any pixels
	classification := grouping.Classify(groups)
	if err := classification.Err(); err != nil {
		log.Error().Strs("files", classification.Unclassifiable).Msg("step 4: channel classification failed")
		return summary, err
	}
	log.Info().Msg("step 4: channels classified")

	// Step 5: Stage placeholders and enumerate combinations
	stager := grouping.NewStager(m.params.InputDir, m.params.PlaceholderMarker, m.codec, log)
	defer func() {
		if cerr := stager.Cleanup(); cerr != nil {
			log.Warn().Err(cerr).Msg("placeholder cleanup incomplete")
		}
	}()

	plan := grouping.NewEnumerator(stager, m.params.Passthrough, log).Enumerate(classification.Acquisitions)
	summary.Placeholders = stager.Staged()
	for id, reason := range plan.Skipped {
		summary.Skipped[id] = reason
	}
	log.Info().
		Int("combinations", len(plan.Combinations)).
		Int("passthrough", len(plan.Passthroughs)).
		Int("placeholders", len(summary.Placeholders)).
		Msg("step 5: combinations enumerated")

	// Step 6: Compose and write
	if err := os.MkdirAll(m.params.OutputDir, 0755); err != nil {
		return summary, fmt.Errorf("creating output directory: %w", err)
	}
	log.Info().Str("outdir", m.params.OutputDir).Int("workers", m.workers()).Msg("step 6: composing outputs")
	if err := m.composeAll(ctx, plan, summary, log); err != nil {
		return summary, err
	}

	log.Info().
		Int("written", len(summary.Written)).
		Int("failed", len(summary.Failed)).
		Dur("elapsed", time.Since(start)).
		Msg("merge complete")

	return summary, nil
}

// discover lists the regular files of the input directory carrying the
// configured extension, sorted by name.
func (m *Merger) discover() ([]string, error) {
	entries, err := os.ReadDir(m.params.InputDir)
	if err != nil {
		return nil, fmt.Errorf("reading input directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), m.params.Extension) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no *%s files in %s", ErrNoInputs, m.params.Extension, m.params.InputDir)
	}

	sort.Strings(names)
	return names, nil
}

func (m *Merger) workers() int {
	if m.params.Workers < 1 {
		return 1
	}
	return m.params.Workers
}

// job is one output to produce.
type job struct {
	uid string
	run func(*compose.Compositor) (*compose.CompositeImage, error)
}

func (m *Merger) composeAll(ctx context.Context, plan *models.Plan, summary *Summary, log zerolog.Logger) error {
	compositor, err := compose.NewCompositor(m.params.InputDir, m.codec, m.params.Correction, m.params.Compose)
	if err != nil {
		return err
	}

	jobs := make([]job, 0, plan.Outputs())
	for _, c := range plan.Combinations {
		c := c
		jobs = append(jobs, job{uid: c.UID, run: func(cp *compose.Compositor) (*compose.CompositeImage, error) { return cp.Composite(c) }})
	}
	for _, p := range plan.Passthroughs {
		p := p
		jobs = append(jobs, job{uid: p.UID, run: func(cp *compose.Compositor) (*compose.CompositeImage, error) { return cp.Passthrough(p) }})
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers())

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			name, err := m.produce(compositor, j, log)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed = append(summary.Failed, Failure{UID: j.uid, Err: err})
				log.Warn().Err(err).Str("uid", j.uid).Msg("output skipped")
				return nil
			}
			summary.Written = append(summary.Written, name)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("composing outputs: %w", err)
	}

	sort.Strings(summary.Written)
	sort.Slice(summary.Failed, func(i, j int) bool { return summary.Failed[i].UID < summary.Failed[j].UID })
	return nil
}

// produce composes one output and writes it to the output directory.
func (m *Merger) produce(cp *compose.Compositor, j job, log zerolog.Logger) (string, error) {
	img, err := j.run(cp)
	if err != nil {
		return "", err
	}

	path := filepath.Join(m.params.OutputDir, img.OutputName)
	if err := m.codec.Write(path, img.Image); err != nil {
		return "", fmt.Errorf("writing %s: %w", img.OutputName, err)
	}

	for _, s := range img.Stats {
		log.Debug().
			Str("uid", img.UID).
			Str("channel", s.Channel.String()).
			Str("source", s.Source).
			Bool("placeholder", s.Placeholder).
			Float64("mean", s.Mean).
			Float64("std", s.StdDev).
			Msg("corrected channel")
	}
	log.Info().Str("uid", img.UID).Str("file", img.OutputName).Msg("composite written")

	return img.OutputName, nil
}

// dedupe drops repeated names, keeping first occurrences. Two raw names
// can normalize to the same canonical file when a rename was skipped.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0:0]
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
