// Package doctor validates the alforje configuration and environment.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/alforje/alforje/internal/config"
	"github.com/alforje/alforje/internal/setup"
	"github.com/alforje/alforje/internal/state"
	"github.com/alforje/alforje/internal/tree"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Plugin   string `json:"plugin,omitempty"`
}

// Doctor checks that a sync run would have what it needs: a parseable
// configuration, git on PATH, reachable local plugin directories, and a
// healthy state database.
type Doctor struct {
	paths    setup.Paths
	lookPath func(string) (string, error)
}

// New creates a Doctor for the resolved paths.
func New(paths setup.Paths) *Doctor {
	return &Doctor{paths: paths, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.checkGit(r)
	d.checkWritable(r)
	forest := d.checkConfig(r)
	if forest != nil {
		d.checkLocalPaths(r, forest)
		d.checkDisabledShadowing(r, forest)
		d.checkOrphanClones(r, forest, d.checkState(ctx, r))
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, plugin, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Plugin: plugin, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, plugin, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Plugin: plugin, Message: msg})
}

// checkGit verifies the git binary is reachable.
func (d *Doctor) checkGit(r *Result) {
	if _, err := d.lookPath("git"); err != nil {
		d.addError(r, "environment", "", "git not found in PATH")
	}
}

// checkWritable verifies a sync run could create its output directories. The
// probe creates the directories themselves, which a sync would do anyway.
func (d *Doctor) checkWritable(r *Result) {
	for _, dir := range []string{d.paths.DataDir, d.paths.AutoloadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			d.addError(r, "environment", "",
				fmt.Sprintf("cannot create %s: %v", dir, err))
			continue
		}
		probe := filepath.Join(dir, ".alforje-doctor")
		if err := os.WriteFile(probe, nil, 0o644); err != nil {
			d.addError(r, "environment", "",
				fmt.Sprintf("directory %s is not writable: %v", dir, err))
			continue
		}
		_ = os.Remove(probe)
	}
}

// checkConfig loads the configuration and reports parse and validation
// failures. Returns nil when the file is unusable.
func (d *Doctor) checkConfig(r *Result) tree.Forest {
	if _, err := os.Stat(d.paths.ConfigFile); err != nil {
		d.addError(r, "config", "",
			fmt.Sprintf("configuration file %s not found", d.paths.ConfigFile))
		return nil
	}

	forest, err := config.Load(d.paths.ConfigFile)
	if err != nil {
		d.addError(r, "config", "", err.Error())
		return nil
	}
	return forest
}

// checkLocalPaths verifies that every local plugin's directory exists.
func (d *Doctor) checkLocalPaths(r *Result, forest tree.Forest) {
	forest.Walk(func(n, _ *tree.Node) bool {
		if !n.Location.Local {
			return true
		}
		dir := d.paths.RepoPath(n.Name, n.Location)
		info, err := os.Stat(dir)
		switch {
		case err != nil:
			d.addError(r, "local_paths", n.Name,
				fmt.Sprintf("local plugin directory %s does not exist", dir))
		case !info.IsDir():
			d.addError(r, "local_paths", n.Name,
				fmt.Sprintf("local plugin path %s is not a directory", dir))
		}
		return true
	})
}

// checkDisabledShadowing warns when an enabled declaration sits under a
// disabled ancestor and will never load.
func (d *Doctor) checkDisabledShadowing(r *Result, forest tree.Forest) {
	forest.Walk(func(n, _ *tree.Node) bool {
		if n.DisabledEffective && !n.Disabled {
			d.addWarning(r, "disabled", n.Name,
				fmt.Sprintf("plugin %q is enabled but has a disabled ancestor, so it will not load", n.Name))
		}
		return true
	})
}

// checkState opens the state database and reports integrity problems. The
// database is re-derivable, so nothing here is fatal.
func (d *Doctor) checkState(ctx context.Context, r *Result) map[string]state.Record {
	if _, err := os.Stat(d.paths.StatePath); err != nil {
		return nil
	}

	records, err := state.NewStore(d.paths.StatePath).Load(ctx)
	if err != nil {
		d.addWarning(r, "state", "",
			fmt.Sprintf("state database unreadable, next run will rebuild it: %v", err))
		return nil
	}
	return records
}

// checkOrphanClones warns about recorded plugins no longer in the
// configuration; a sync will remove them.
func (d *Doctor) checkOrphanClones(r *Result, forest tree.Forest, records map[string]state.Record) {
	for name := range records {
		if forest.Find(name) == nil {
			d.addWarning(r, "orphans", name,
				fmt.Sprintf("plugin %q is installed but no longer configured; sync will remove it", name))
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Everything looks good.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n",
			len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Plugin != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Plugin, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Plugin != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Plugin, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
