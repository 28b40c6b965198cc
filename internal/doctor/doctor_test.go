package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alforje/alforje/internal/setup"
	"github.com/alforje/alforje/internal/state"
)

func fixturePaths(t *testing.T) setup.Paths {
	t.Helper()
	root := t.TempDir()
	return setup.Paths{
		ConfigFile:  filepath.Join(root, "alforje.yaml"),
		DataDir:     filepath.Join(root, "share"),
		AutoloadDir: filepath.Join(root, "autoload"),
		PluginsDir:  filepath.Join(root, "autoload", "alforje"),
		ScriptPath:  filepath.Join(root, "autoload", "alforje", "alforje.kak"),
		StatePath:   filepath.Join(root, "state.db"),
		LockPath:    filepath.Join(root, "alforje.lock"),
	}
}

func writeConfig(t *testing.T, paths setup.Paths, content string) {
	t.Helper()
	if err := os.WriteFile(paths.ConfigFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func newTestDoctor(paths setup.Paths) *Doctor {
	d := New(paths)
	d.lookPath = func(string) (string, error) { return "/usr/bin/git", nil }
	return d
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	paths := fixturePaths(t)
	writeConfig(t, paths, "luar:\n  location: https://github.com/gustavo-hms/luar\n")

	r := newTestDoctor(paths).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_MissingGit(t *testing.T) {
	t.Parallel()
	paths := fixturePaths(t)
	writeConfig(t, paths, "luar:\n  location: https://github.com/gustavo-hms/luar\n")

	d := New(paths)
	d.lookPath = func(string) (string, error) { return "", fmt.Errorf("not found") }

	r := d.Validate(context.Background())
	if r.Valid {
		t.Fatalf("expected invalid")
	}
	if !hasIssue(r.Errors, "environment") {
		t.Fatalf("expected environment error, got: %v", r.Errors)
	}
}

func TestValidate_MissingConfigFile(t *testing.T) {
	t.Parallel()
	paths := fixturePaths(t)

	r := newTestDoctor(paths).Validate(context.Background())
	if r.Valid {
		t.Fatalf("expected invalid")
	}
	if !hasIssue(r.Errors, "config") {
		t.Fatalf("expected config error, got: %v", r.Errors)
	}
}

func TestValidate_UnparseableConfig(t *testing.T) {
	t.Parallel()
	paths := fixturePaths(t)
	writeConfig(t, paths, "luar:\n  disabled: sometimes\n  location: https://github.com/gustavo-hms/luar\n")

	r := newTestDoctor(paths).Validate(context.Background())
	if r.Valid {
		t.Fatalf("expected invalid")
	}
}

func TestValidate_MissingLocalDirectory(t *testing.T) {
	t.Parallel()
	paths := fixturePaths(t)
	writeConfig(t, paths, "scratch:\n  location: /nonexistent/scratch\n")

	r := newTestDoctor(paths).Validate(context.Background())
	if r.Valid {
		t.Fatalf("expected invalid")
	}
	if !hasIssue(r.Errors, "local_paths") {
		t.Fatalf("expected local_paths error, got: %v", r.Errors)
	}
}

func TestValidate_ShadowedEnabledChild(t *testing.T) {
	t.Parallel()
	paths := fixturePaths(t)
	writeConfig(t, paths, strings.Join([]string{
		"parent:",
		"  location: https://github.com/example/parent",
		"  disabled: true",
		"  child:",
		"    location: https://github.com/example/child",
		"",
	}, "\n"))

	r := newTestDoctor(paths).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if !hasIssue(r.Warnings, "disabled") {
		t.Fatalf("expected disabled warning, got: %v", r.Warnings)
	}
}

func TestValidate_OrphanedInstall(t *testing.T) {
	t.Parallel()
	paths := fixturePaths(t)
	writeConfig(t, paths, "luar:\n  location: https://github.com/gustavo-hms/luar\n")

	ctx := context.Background()
	store := state.NewStore(paths.StatePath)
	err := store.Rewrite(ctx, map[string]state.Record{
		"gone": {Name: "gone", Path: filepath.Join(paths.DataDir, "gone"), Location: "https://github.com/example/gone"},
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}

	r := newTestDoctor(paths).Validate(ctx)
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if !hasIssue(r.Warnings, "orphans") {
		t.Fatalf("expected orphan warning, got: %v", r.Warnings)
	}
}

func TestValidate_UnwritableDataDir(t *testing.T) {
	t.Parallel()
	paths := fixturePaths(t)
	writeConfig(t, paths, "luar:\n  location: https://github.com/gustavo-hms/luar\n")

	// A regular file where the data directory should go makes MkdirAll fail.
	blocker := filepath.Join(filepath.Dir(paths.DataDir), "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	paths.DataDir = filepath.Join(blocker, "data")

	r := newTestDoctor(paths).Validate(context.Background())
	if r.Valid {
		t.Fatalf("expected invalid")
	}
	if !hasIssue(r.Errors, "environment") {
		t.Fatalf("expected environment error, got: %v", r.Errors)
	}
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()

	ok := &Result{Valid: true}
	if got := FormatHuman(ok); got != "Everything looks good.\n" {
		t.Fatalf("unexpected output: %q", got)
	}

	bad := &Result{
		Errors:   []Issue{{Category: "config", Message: "broken"}},
		Warnings: []Issue{{Category: "orphans", Plugin: "gone", Message: "stale"}},
	}
	out := FormatHuman(bad)
	if !strings.Contains(out, "ERROR [config] broken") {
		t.Fatalf("missing error line: %q", out)
	}
	if !strings.Contains(out, "WARN  [orphans] gone: stale") {
		t.Fatalf("missing warning line: %q", out)
	}
}

func hasIssue(issues []Issue, category string) bool {
	for _, i := range issues {
		if i.Category == category {
			return true
		}
	}
	return false
}
