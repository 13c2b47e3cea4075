package graph

import "github.com/abramin/codegraph/internal/tree"

// SkipReason explains why a tree node produced no node or edge.
type SkipReason string

const (
	SkipNone              SkipReason = ""
	SkipEmptyName         SkipReason = "empty_name"
	SkipNoLocation        SkipReason = "no_location"
	SkipNotProjectFile    SkipReason = "not_project_file"
	SkipSystemHeader      SkipReason = "system_header"
	SkipReservedName      SkipReason = "reserved_name"
	SkipUninterestingKind SkipReason = "uninteresting_kind"
	SkipSystemInclude     SkipReason = "system_include"
	SkipNoEnclosingStruct SkipReason = "no_enclosing_struct"
	SkipNoEnclosingFunc   SkipReason = "no_enclosing_function"
	SkipNoEnclosingEntity SkipReason = "no_enclosing_entity"
	SkipUnresolvedCall    SkipReason = "unresolved_call"
	SkipUnresolvedTypeRef SkipReason = "unresolved_type"
)

// Skip records one node the builder passed over.
type Skip struct {
	Reason SkipReason `json:"reason"`
	Kind   tree.Kind  `json:"kind"`
	Name   string     `json:"name"`
	File   string     `json:"file,omitempty"`
	Line   int        `json:"line,omitempty"`
}

func newSkip(reason SkipReason, n *tree.Node) Skip {
	return Skip{
		Reason: reason,
		Kind:   n.Kind,
		Name:   n.Spelling,
		File:   n.File(),
		Line:   n.Line(),
	}
}

// Diagnostics collects skips for one build. Uninteresting kinds are only
// counted, every other reason is itemized as well.
type Diagnostics struct {
	Skips  []Skip             `json:"skips"`
	Counts map[SkipReason]int `json:"counts"`
}

func newDiagnostics() *Diagnostics {
	return &Diagnostics{Counts: make(map[SkipReason]int)}
}

func (d *Diagnostics) add(reason SkipReason, n *tree.Node) {
	d.Counts[reason]++
	if reason == SkipUninterestingKind {
		return
	}
	d.Skips = append(d.Skips, newSkip(reason, n))
}

func (d *Diagnostics) merge(other *Diagnostics) {
	for reason, n := range other.Counts {
		d.Counts[reason] += n
	}
	d.Skips = append(d.Skips, other.Skips...)
}

// Total returns the number of skipped nodes across all reasons.
func (d *Diagnostics) Total() int {
	total := 0
	for _, n := range d.Counts {
		total += n
	}
	return total
}
