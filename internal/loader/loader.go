// Package loader generates alforje.kak, the script Kakoune sources at
// startup to load plugin modules asynchronously in dependency order.
//
// The ordering protocol is encoded entirely as script text: a root's module
// is required right away, while a child's require is registered inside a
// one-shot ModuleLoaded hook on its parent, so the child's load request is
// only issued once the parent has finished loading. Unrelated subtrees load
// concurrently with no ordering between them. The generator is a pure
// function of the tree; install outcomes never influence it, since a plugin
// that failed to install simply won't be found by Kakoune and is reported
// there.
package loader

import (
	"fmt"
	"os"
	"strings"

	"github.com/alforje/alforje/internal/tree"
)

// Generate renders the loader script for the forest. Effectively disabled
// nodes and their subtrees emit nothing. Deterministic: same tree, same
// script.
func Generate(forest tree.Forest) string {
	var out strings.Builder
	out.WriteString("hook global KakBegin .* %🧺\n\n")

	forest.Walk(func(n, parent *tree.Node) bool {
		if n.DisabledEffective {
			return false
		}
		emit(&out, n, parent)
		return true
	})

	out.WriteString("🧺\n")
	return out.String()
}

// Write regenerates the loader script file in full. Never patched
// incrementally, so the script always matches the current configuration.
func Write(path string, forest tree.Forest) error {
	if err := os.WriteFile(path, []byte(Generate(forest)), 0o644); err != nil {
		return fmt.Errorf("write loader script: %w", err)
	}
	return nil
}

func emit(out *strings.Builder, n, parent *tree.Node) {
	// Only a remote parent has a module whose ModuleLoaded event can gate
	// this node. Local plugins are sourced through autoload before the
	// script runs, so everything under them is requested immediately.
	gate := ""
	if parent != nil && !parent.Location.Local {
		gate = parent.Name
	}

	if n.Location.Local {
		// No module to require; the snippet runs right away.
		if n.Config != "" {
			fmt.Fprintf(out, "%s\n", n.Config)
		}
		return
	}

	withChildren := n.HasEnabledChildren()

	switch {
	case gate == "" && !withChildren:
		fmt.Fprintf(out, "try %%[ require-module %s ]\n%s\n", n.Name, n.Config)

	case gate == "" && withChildren:
		// The provide-module fallback guarantees the ModuleLoaded event
		// fires even when the plugin defines no module of its own, so
		// children still load.
		fmt.Fprintf(out, "try %%[ require-module %s ] catch %%[\n    provide-module %s ''\n    require-module %s\n]\n%s\n",
			n.Name, n.Name, n.Name, n.Config)

	case gate != "" && !withChildren:
		fmt.Fprintf(out, "hook -once global ModuleLoaded %s %%[\n    try %%[ require-module %s ]\n    %s\n]\n",
			gate, n.Name, n.Config)

	default:
		fmt.Fprintf(out, "hook -once global ModuleLoaded %s %%[\n    try %%[ require-module %s ] catch %%[\n        provide-module %s ''\n        require-module %s\n    ]\n    %s\n]\n",
			gate, n.Name, n.Name, n.Name, n.Config)
	}
}
