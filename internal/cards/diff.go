package cards

import "sort"

// Patch is the change needed to turn one rendered set into the next.
// Removed and Added are sets; their order carries no meaning and is sorted
// only to keep patches comparable.
type Patch struct {
	Removed []string
	Added   []string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return len(p.Removed) == 0 && len(p.Added) == 0
}

// Diff computes rendered − names and names − rendered. Duplicates in names
// collapse to one entry.
func Diff(rendered, names []string) Patch {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	have := make(map[string]struct{}, len(rendered))
	for _, n := range rendered {
		have[n] = struct{}{}
	}

	var p Patch
	for n := range have {
		if _, ok := want[n]; !ok {
			p.Removed = append(p.Removed, n)
		}
	}
	for n := range want {
		if _, ok := have[n]; !ok {
			p.Added = append(p.Added, n)
		}
	}
	sort.Strings(p.Removed)
	sort.Strings(p.Added)
	return p
}
