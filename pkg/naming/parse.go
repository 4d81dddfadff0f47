package naming

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Parsed holds the parts of a canonical filename.
type Parsed struct {
	// ID is everything before the first hyphen
	ID string

	// Token is the segment right after the id; empty when missing
	Token string

	// Sequence is the trailing repeat-scan number, if any
	Sequence string

	Ext string

	// HasToken is false when the name has no second segment at all
	HasToken bool
}

// Parse splits a canonical filename into id, channel token and sequence.
// It does not normalize; call Normalize first for raw names.
func Parse(name string) Parsed {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	parts := strings.Split(stem, Separator)

	p := Parsed{ID: parts[0], Ext: ext}
	if len(parts) < 2 {
		return p
	}
	p.HasToken = true
	p.Token = parts[1]
	if last := parts[len(parts)-1]; len(parts) > 2 && isNumeric(last) {
		p.Sequence = last
	}
	return p
}

// AcquisitionID returns the text before the first hyphen of name.
func AcquisitionID(name string) string {
	return Parse(name).ID
}

// IsBrightfield reports whether the channel token names a brightfield scan.
// Brightfield files are never merged into composites.
func IsBrightfield(name string) bool {
	return strings.Contains(strings.ToLower(Parse(name).Token), "bf")
}

// UID returns the unique-combination identifier for the n-th (1-based)
// output of an acquisition: the id itself for the first, <id>-<n> after.
func UID(id string, n int) string {
	if n <= 1 {
		return id
	}
	return id + Separator + strconv.Itoa(n)
}

// OutputName derives the output filename of a UID: <id>-<suffix><ext> for
// a bare id and <id>-<suffix>-<n><ext> for <id>-<n>.
func OutputName(uid, suffix, ext string) string {
	if id, n, ok := strings.Cut(uid, Separator); ok {
		return strings.Join([]string{id, suffix, n}, Separator) + ext
	}
	return uid + Separator + suffix + ext
}
