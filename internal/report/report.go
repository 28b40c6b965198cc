// Package report aggregates per-plugin outcomes of a sync run and renders
// them for the terminal. The report is complete (one entry per scheduled
// unit) and stable: entries follow the declaration order of the plugin tree,
// with removals of orphaned records after them in name order.
package report

import "sort"

// Action is what happened to a plugin during the run.
type Action string

const (
	ActionInstalled Action = "installed"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionRemoved   Action = "removed"
)

// FailureKind classifies a per-plugin failure.
type FailureKind string

const (
	// KindFetch covers network or auth failures during clone or fetch.
	KindFetch FailureKind = "fetch"
	// KindDiverged means the clone's history diverged and a fast-forward
	// was refused.
	KindDiverged FailureKind = "diverged-history"
	// KindFilesystem covers permission, removal and linking failures,
	// including missing local plugin directories.
	KindFilesystem FailureKind = "filesystem"
)

// Success is one completed unit.
type Success struct {
	Name   string
	Action Action
	// Changelog holds the commit summaries an update brought in, oldest
	// first. Empty for installs, removals and unchanged plugins.
	Changelog []string
}

// Failure is one failed unit. The failure is isolated: it never stopped
// other units or the loader script generation.
type Failure struct {
	Name    string
	Kind    FailureKind
	Message string
}

// Report is the structured result of one run.
type Report struct {
	RunID     string
	Successes []Success
	Failures  []Failure
}

// Empty reports whether the run had nothing to tell.
func (r *Report) Empty() bool {
	return len(r.Successes) == 0 && len(r.Failures) == 0
}

// Failed reports whether any unit failed.
func (r *Report) Failed() bool {
	return len(r.Failures) > 0
}

// Sort fixes the iteration order: tree declaration order first (per the
// given name sequence), then anything else (removed orphans) by name.
func (r *Report) Sort(declared []string) {
	pos := make(map[string]int, len(declared))
	for i, name := range declared {
		pos[name] = i
	}

	rank := func(name string) (int, string) {
		if i, ok := pos[name]; ok {
			return i, ""
		}
		return len(declared), name
	}

	sort.SliceStable(r.Successes, func(i, j int) bool {
		pi, ni := rank(r.Successes[i].Name)
		pj, nj := rank(r.Successes[j].Name)
		if pi != pj {
			return pi < pj
		}
		return ni < nj
	})
	sort.SliceStable(r.Failures, func(i, j int) bool {
		pi, ni := rank(r.Failures[i].Name)
		pj, nj := rank(r.Failures[j].Name)
		if pi != pj {
			return pi < pj
		}
		return ni < nj
	})
}
