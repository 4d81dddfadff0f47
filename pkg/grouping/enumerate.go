package grouping

import (
	"fmt"

	"github.com/rs/zerolog"

	"channelmerge/internal/models"
	"channelmerge/pkg/naming"
)

// PlaceholderStager creates the stand-in file for a missing channel.
type PlaceholderStager interface {
	Stage(id string, tag models.ChannelTag, template models.ChannelFile) (models.ChannelFile, error)
}

// Enumerator builds the merge plan from classified acquisitions.
type Enumerator struct {
	stager      PlaceholderStager
	passthrough bool
	log         zerolog.Logger
}

// NewEnumerator creates an enumerator. With passthrough set, acquisitions
// holding a single channel are planned as grayscale outputs instead of
// being skipped.
func NewEnumerator(stager PlaceholderStager, passthrough bool, log zerolog.Logger) *Enumerator {
	return &Enumerator{stager: stager, passthrough: passthrough, log: log}
}

// Enumerate plans the outputs of every acquisition:
//
//   - three populated channels: every red x green x blue combination
//   - two populated channels: the missing one is filled with a placeholder,
//     then as above
//   - one populated channel: each file passes through as grayscale
//   - none: skipped
//
// A failure to stage a placeholder skips that acquisition only.
func (e *Enumerator) Enumerate(acquisitions []models.Acquisition) *models.Plan {
	plan := &models.Plan{Skipped: make(map[string]string)}

	for _, acq := range acquisitions {
		log := e.log.With().Str("acquisition", acq.ID).Logger()
		for _, f := range acq.Unknown {
			log.Warn().Str("file", f.Name).Msg("channel token does not start with r, g or b; file ignored")
		}

		populated := acq.Populated()
		switch len(populated) {
		case 0:
			plan.Skipped[acq.ID] = "no red, green or blue channel"
			log.Warn().Msg("acquisition skipped: no red, green or blue channel")

		case 1:
			if !e.passthrough {
				plan.Skipped[acq.ID] = fmt.Sprintf("only a %s channel", populated[0])
				log.Warn().Str("channel", populated[0].String()).Msg("acquisition skipped: single channel")
				continue
			}
			for i, f := range acq.Channel(populated[0]) {
				plan.Passthroughs = append(plan.Passthroughs, models.Passthrough{
					UID:           naming.UID(acq.ID, i+1),
					AcquisitionID: acq.ID,
					File:          f,
				})
			}

		case 2:
			missing := acq.Missing()[0]
			template := acq.Channel(populated[0])[0]
			placeholder, err := e.stager.Stage(acq.ID, missing, template)
			if err != nil {
				plan.Skipped[acq.ID] = err.Error()
				log.Warn().Err(err).Str("channel", missing.String()).Msg("acquisition skipped: placeholder failed")
				continue
			}
			acq.Add(placeholder)
			plan.Combinations = append(plan.Combinations, Combinations(acq)...)

		default:
			plan.Combinations = append(plan.Combinations, Combinations(acq)...)
		}
	}

	return plan
}

// Combinations returns the Cartesian product of the acquisition's red,
// green and blue lists, red varying slowest. UIDs follow generation order.
// An empty channel list yields no combinations.
func Combinations(acq models.Acquisition) []models.Combination {
	var combos []models.Combination
	for _, r := range acq.Red {
		for _, g := range acq.Green {
			for _, b := range acq.Blue {
				combos = append(combos, models.Combination{
					UID:           naming.UID(acq.ID, len(combos)+1),
					AcquisitionID: acq.ID,
					Red:           r,
					Green:         g,
					Blue:          b,
				})
			}
		}
	}
	return combos
}
