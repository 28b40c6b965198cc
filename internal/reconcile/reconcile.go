// Package reconcile diffs the declared plugin forest against the recorded
// install state and classifies every node, so the worker manager knows what
// to clone, update or remove.
package reconcile

import (
	"os"
	"sort"

	"github.com/alforje/alforje/internal/setup"
	"github.com/alforje/alforje/internal/state"
	"github.com/alforje/alforje/internal/tree"
)

// Class is the per-node classification.
type Class int

const (
	// New means the plugin must be cloned: no record exists, the declared
	// URL changed since the record was written, or the clone went missing.
	New Class = iota
	// Unchanged means nothing to do for this node.
	Unchanged
	// NeedsUpdate means an existing clone should be fetched and
	// fast-forwarded.
	NeedsUpdate
	// MissingLocal marks a local-directory plugin whose path does not
	// exist on disk. Diagnosed, never installable, never retried.
	MissingLocal
)

func (c Class) String() string {
	switch c {
	case New:
		return "new"
	case Unchanged:
		return "unchanged"
	case NeedsUpdate:
		return "needs-update"
	case MissingLocal:
		return "missing-local"
	default:
		return "unknown"
	}
}

// Item is one classified node from the current configuration.
type Item struct {
	Node  *tree.Node
	Class Class
	// RepoPath is where the plugin's code lives (or will live).
	RepoPath string
	// PrevRevision is the recorded revision, for changelog computation.
	// Empty when no usable record exists.
	PrevRevision string
}

// Orphan is a record with no corresponding node in the current tree.
type Orphan struct {
	Record state.Record
	// Local records were never owned by alforje; their directories are
	// left untouched and only the record is dropped.
	Local bool
}

// Plan is the reconciliation result: items in declaration order, orphans in
// name order.
type Plan struct {
	Items   []Item
	Orphans []Orphan
}

// Units counts the items the worker manager will schedule work for.
func (p *Plan) Units() int {
	n := len(p.Orphans)
	for _, it := range p.Items {
		switch it.Class {
		case New, NeedsUpdate, MissingLocal:
			n++
		}
	}
	return n
}

// UnitNames lists the scheduled units in the order Units counts them,
// items first, then orphans.
func (p *Plan) UnitNames() []string {
	var names []string
	for _, it := range p.Items {
		switch it.Class {
		case New, NeedsUpdate, MissingLocal:
			names = append(names, it.Node.Name)
		}
	}
	for _, o := range p.Orphans {
		names = append(names, o.Record.Name)
	}
	return names
}

// Options tunes classification.
type Options struct {
	// UpdateRemote classifies healthy existing clones as NeedsUpdate so
	// they are fetched and fast-forwarded. When false, a clone whose
	// record matches the declared URL is Unchanged and no network I/O
	// happens for it.
	UpdateRemote bool
}

// Reconcile classifies every node of the forest against the previous records
// and collects orphaned records. Disablement is assumed to be propagated
// already; effectively disabled nodes are classified like any other so a
// disabled plugin is still fetched and ready the moment it is re-enabled.
// Pure aside from os.Stat existence checks, and idempotent for a fixed
// (forest, records, filesystem) triple.
func Reconcile(forest tree.Forest, records map[string]state.Record, paths setup.Paths, opts Options) *Plan {
	plan := &Plan{}
	seen := make(map[string]bool)

	forest.Walk(func(n, _ *tree.Node) bool {
		seen[n.Name] = true
		plan.Items = append(plan.Items, classify(n, records, paths, opts))
		return true
	})

	for name, r := range records {
		if seen[name] {
			continue
		}
		plan.Orphans = append(plan.Orphans, Orphan{
			Record: r,
			Local:  tree.ParseLocation(r.Location).Local,
		})
	}
	sort.Slice(plan.Orphans, func(i, j int) bool {
		return plan.Orphans[i].Record.Name < plan.Orphans[j].Record.Name
	})

	return plan
}

func classify(n *tree.Node, records map[string]state.Record, paths setup.Paths, opts Options) Item {
	item := Item{Node: n, RepoPath: paths.RepoPath(n.Name, n.Location)}

	if n.Location.Local {
		if dirExists(item.RepoPath) {
			item.Class = Unchanged
		} else {
			item.Class = MissingLocal
		}
		return item
	}

	prev, ok := records[n.Name]
	switch {
	case !ok:
		item.Class = New
	case prev.Location != n.Location.Raw:
		// A changed URL forces a full re-clone; fetching into the old
		// clone would mix unrelated histories.
		item.Class = New
	case !dirExists(item.RepoPath):
		// Record exists but the clone is gone; re-derive it.
		item.Class = New
	case opts.UpdateRemote:
		item.Class = NeedsUpdate
		item.PrevRevision = prev.Revision
	default:
		item.Class = Unchanged
		item.PrevRevision = prev.Revision
	}
	return item
}

func dirExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
