package index

import (
	"github.com/pmezard/go-difflib/difflib"
)

// ChangeKind classifies a Change.
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Removed  ChangeKind = "removed"
	Modified ChangeKind = "modified"
)

// Change is one symbol that differs between two generations.
type Change struct {
	DocID string     `json:"doc_id"`
	Kind  ChangeKind `json:"change"`
	Patch string     `json:"patch,omitempty"`
}

// Compare lists the symbols added, removed, or whose fragment text changed
// from prev to next. Added and modified symbols follow next's order;
// removed symbols follow prev's and come last.
func Compare(prev, next *Index) []Change {
	if prev == nil {
		prev = Empty()
	}
	if next == nil {
		next = Empty()
	}

	var changes []Change
	for _, id := range next.order {
		ne := next.entries[id]
		pe, ok := prev.entries[id]
		if !ok {
			changes = append(changes, Change{DocID: id, Kind: Added, Patch: patch(id, "", ne.Fragment(false))})
			continue
		}
		before, after := pe.Fragment(false), ne.Fragment(false)
		if before != after {
			changes = append(changes, Change{DocID: id, Kind: Modified, Patch: patch(id, before, after)})
		}
	}
	for _, id := range prev.order {
		if _, ok := next.entries[id]; !ok {
			changes = append(changes, Change{DocID: id, Kind: Removed, Patch: patch(id, prev.entries[id].Fragment(false), "")})
		}
	}
	return changes
}

func patch(id, before, after string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + id,
		ToFile:   "b/" + id,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}
