// Package grouping turns a directory of canonical filenames into
// acquisitions, classifies each file's channel and enumerates the red,
// green and blue combinations to merge.
package grouping

import (
	"sort"

	"channelmerge/pkg/naming"
)

// Group is the set of files sharing one acquisition id.
type Group struct {
	ID    string
	Files []string
}

// SplitBrightfield separates brightfield files from the rest, keeping
// input order in both lists.
func SplitBrightfield(names []string) (kept, brightfield []string) {
	for _, name := range names {
		if naming.IsBrightfield(name) {
			brightfield = append(brightfield, name)
			continue
		}
		kept = append(kept, name)
	}
	return kept, brightfield
}

// GroupByID partitions names by the text before their first hyphen. Ids
// are compared as strings, so 101-red.tif never joins acquisition 01.
// Groups are ordered by id and files within a group are sorted; both
// orders are lexical.
func GroupByID(names []string) []Group {
	byID := make(map[string][]string)
	for _, name := range names {
		id := naming.AcquisitionID(name)
		byID[id] = append(byID[id], name)
	}

	groups := make([]Group, 0, len(byID))
	for id, files := range byID {
		sort.Strings(files)
		groups = append(groups, Group{ID: id, Files: files})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups
}
