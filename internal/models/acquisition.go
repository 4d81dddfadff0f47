package models

import "strings"

// ChannelTag identifies the color channel a grayscale file is meant to fill.
type ChannelTag int

const (
	Unknown ChannelTag = iota
	Red
	Green
	Blue
)

// RGBOrder is the plane order of every composite. Code that walks the
// channels of an acquisition or combination iterates this slice rather
// than relying on the alphabetical order of the channel letters.
var RGBOrder = []ChannelTag{Red, Green, Blue}

func (t ChannelTag) String() string {
	switch t {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	default:
		return "unknown"
	}
}

// Letter returns the single-letter form used in placeholder filenames.
func (t ChannelTag) Letter() string {
	switch t {
	case Red:
		return "r"
	case Green:
		return "g"
	case Blue:
		return "b"
	default:
		return "x"
	}
}

// TagFromToken infers the channel from the first character of a channel
// token: r, g and b (case-insensitive) map to Red, Green and Blue, anything
// else is Unknown.
func TagFromToken(token string) ChannelTag {
	if token == "" {
		return Unknown
	}
	switch strings.ToLower(token[:1]) {
	case "r":
		return Red
	case "g":
		return Green
	case "b":
		return Blue
	default:
		return Unknown
	}
}

// ChannelFile is one file assigned to a channel of an acquisition.
type ChannelFile struct {
	// Name is the file's base name inside the input directory
	Name string

	// Tag is the channel the file was classified as
	Tag ChannelTag

	// Placeholder marks a staged all-zero file standing in for a missing channel
	Placeholder bool
}

// Acquisition is one logical multi-channel scan: every file sharing the
// same leading id, split by channel.
type Acquisition struct {
	// ID is the leading id shared by the acquisition's files, compared as text
	ID string

	Red   []ChannelFile
	Green []ChannelFile
	Blue  []ChannelFile

	// Unknown holds files whose token does not start with r, g or b
	Unknown []ChannelFile
}

// Channel returns the file list for tag.
func (a *Acquisition) Channel(tag ChannelTag) []ChannelFile {
	switch tag {
	case Red:
		return a.Red
	case Green:
		return a.Green
	case Blue:
		return a.Blue
	default:
		return a.Unknown
	}
}

// Add appends f to the list matching its tag.
func (a *Acquisition) Add(f ChannelFile) {
	switch f.Tag {
	case Red:
		a.Red = append(a.Red, f)
	case Green:
		a.Green = append(a.Green, f)
	case Blue:
		a.Blue = append(a.Blue, f)
	default:
		a.Unknown = append(a.Unknown, f)
	}
}

// Populated returns the RGB channels that have at least one file, in RGB order.
func (a *Acquisition) Populated() []ChannelTag {
	var tags []ChannelTag
	for _, tag := range RGBOrder {
		if len(a.Channel(tag)) > 0 {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Missing returns the RGB channels that have no file, in RGB order.
func (a *Acquisition) Missing() []ChannelTag {
	var tags []ChannelTag
	for _, tag := range RGBOrder {
		if len(a.Channel(tag)) == 0 {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Combination is one red, green and blue selection from an acquisition.
type Combination struct {
	// UID is the acquisition id for the first combination and <id>-<n> after it
	UID           string
	AcquisitionID string

	Red   ChannelFile
	Green ChannelFile
	Blue  ChannelFile
}

// Files returns the members of the combination in RGB order.
func (c Combination) Files() []ChannelFile {
	return []ChannelFile{c.Red, c.Green, c.Blue}
}

// Passthrough is a single file from an acquisition with only one populated
// channel. It is corrected and written as a grayscale image.
type Passthrough struct {
	UID           string
	AcquisitionID string
	File          ChannelFile
}

// Plan is everything the compositor has to produce for one run.
type Plan struct {
	Combinations []Combination
	Passthroughs []Passthrough

	// Skipped lists acquisitions that yield no output, keyed by id with the reason
	Skipped map[string]string
}

// Outputs returns the number of images the plan will produce.
func (p *Plan) Outputs() int {
	return len(p.Combinations) + len(p.Passthroughs)
}
