// Package naming rewrites human-typed micrograph filenames into the canonical
// form <id>-<token>[-<sequence>].<ext>, renames files on disk to match, and
// parses canonical names back into their parts.
package naming

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Separator delimits the id, channel token and sequence number.
const Separator = "-"

// Normalize returns the canonical form of a raw filename:
//
//   - the name is put in Unicode NFC, so names typed on systems that store
//     decomposed accents compare equal to their composed form
//   - whitespace runs become a single hyphen, and runs of hyphens collapse
//     to one (01 - red.tif becomes 01-red.tif)
//   - a digit run glued to the end of the stem is split off with a hyphen
//     (01-blue2.tif becomes 01-blue-2.tif)
//   - a leading id glued to the channel token is split off with a hyphen
//     (01blue-2.tif becomes 01-blue-2.tif)
//
// Normalize is idempotent.
func Normalize(name string) string {
	name = norm.NFC.String(name)
	name = collapseSeparators(strings.Join(strings.Fields(name), Separator))

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	stem = separateSequence(stem)
	stem = separateID(stem)

	return stem + ext
}

// separateSequence guarantees a trailing digit run is hyphen-delimited.
// A stem made only of digits has no token to separate from and is left alone.
func separateSequence(stem string) string {
	digits := trailingDigits(stem)
	if digits == "" || digits == stem {
		return stem
	}
	rest := strings.TrimRight(strings.TrimSuffix(stem, digits), Separator)
	if rest == "" {
		return stem
	}
	return rest + Separator + digits
}

// separateID splits a leading digit run from the non-digit characters that
// follow it in the first hyphen-delimited segment.
func separateID(stem string) string {
	head, tail, hasTail := strings.Cut(stem, Separator)
	digits := leadingDigits(head)
	if digits == "" || digits == head {
		return stem
	}
	parts := []string{digits, strings.TrimPrefix(head, digits)}
	if hasTail {
		parts = append(parts, tail)
	}
	return strings.Join(parts, Separator)
}

func collapseSeparators(s string) string {
	double := Separator + Separator
	for strings.Contains(s, double) {
		s = strings.ReplaceAll(s, double, Separator)
	}
	return s
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i]
}

func trailingDigits(s string) string {
	i := len(s)
	for i > 0 && isDigit(s[i-1]) {
		i--
	}
	return s[i:]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNumeric(s string) bool {
	return s != "" && leadingDigits(s) == s
}
