// Package tree holds the in-memory plugin forest alforje reconciles and
// generates the loader script from. The forest is built once per run from the
// parsed configuration and owns its nodes; parent links exist only as
// traversal arguments, never as stored back-references.
package tree

import (
	"fmt"
	"strings"
)

// Location says where a plugin's code lives: the URL of a remote git
// repository, or a directory already on disk.
type Location struct {
	// Raw is the location string exactly as declared in the configuration.
	Raw string
	// Local reports whether Raw names a local directory instead of a
	// remote repository.
	Local bool
}

// ParseLocation classifies a declared location string. Anything that is not
// an https://, http:// or git@ address is taken to be a local directory.
func ParseLocation(raw string) Location {
	remote := strings.HasPrefix(raw, "https://") ||
		strings.HasPrefix(raw, "http://") ||
		strings.HasPrefix(raw, "git@")
	return Location{Raw: raw, Local: !remote}
}

// Node is one configured plugin. Name doubles as the kak module name.
type Node struct {
	Name     string
	Location Location
	// Config is the user's kak snippet for this plugin, passed through
	// verbatim and never parsed.
	Config   string
	Disabled bool
	// DisabledEffective is Disabled OR any ancestor's DisabledEffective.
	// Computed by Forest.PropagateDisabled; valid only after that pass.
	DisabledEffective bool
	// Children in declaration order. Sibling order is load order.
	Children []*Node
}

// HasEnabledChildren reports whether any direct child survives disablement
// propagation. The script generator uses this to decide whether a node needs
// the provide-module fallback so its ModuleLoaded event always fires.
func (n *Node) HasEnabledChildren() bool {
	for _, c := range n.Children {
		if !c.DisabledEffective {
			return true
		}
	}
	return false
}

// Forest is the ordered set of root plugins.
type Forest []*Node

// PropagateDisabled computes DisabledEffective for every node in a single
// pre-order pass: a node is effectively disabled when it is declared disabled
// or its parent is effectively disabled. Roots have no parent, so effective
// equals declared.
func (f Forest) PropagateDisabled() {
	for _, root := range f {
		propagate(root, false)
	}
}

func propagate(n *Node, parentDisabled bool) {
	n.DisabledEffective = n.Disabled || parentDisabled
	for _, c := range n.Children {
		propagate(c, n.DisabledEffective)
	}
}

// Walk visits every node in pre-order (parent before children, siblings in
// declaration order), passing the transient parent pointer. A false return
// from visit prunes that node's subtree.
func (f Forest) Walk(visit func(n, parent *Node) bool) {
	for _, root := range f {
		walk(root, nil, visit)
	}
}

func walk(n, parent *Node, visit func(n, parent *Node) bool) {
	if !visit(n, parent) {
		return
	}
	for _, c := range n.Children {
		walk(c, n, visit)
	}
}

// Names returns every plugin name in declaration (pre-order) order.
func (f Forest) Names() []string {
	var names []string
	f.Walk(func(n, _ *Node) bool {
		names = append(names, n.Name)
		return true
	})
	return names
}

// Find returns the node with the given name, or nil.
func (f Forest) Find(name string) *Node {
	var found *Node
	f.Walk(func(n, _ *Node) bool {
		if found != nil {
			return false
		}
		if n.Name == name {
			found = n
			return false
		}
		return true
	})
	return found
}

// Validate checks the forest-wide invariants: names must be unique and every
// node must declare a location. A violation is a configuration error that
// aborts the run before any work is scheduled.
func (f Forest) Validate() error {
	seen := make(map[string]bool)
	var dups, missing []string

	f.Walk(func(n, _ *Node) bool {
		if seen[n.Name] {
			dups = append(dups, n.Name)
		}
		seen[n.Name] = true
		if n.Location.Raw == "" {
			missing = append(missing, n.Name)
		}
		return true
	})

	switch {
	case len(dups) > 0 && len(missing) > 0:
		return fmt.Errorf("duplicate plugin names: %s; plugins without a location: %s",
			strings.Join(dups, ", "), strings.Join(missing, ", "))
	case len(dups) > 0:
		return fmt.Errorf("duplicate plugin names: %s", strings.Join(dups, ", "))
	case len(missing) > 0:
		return fmt.Errorf("plugins without a location: %s", strings.Join(missing, ", "))
	}
	return nil
}
