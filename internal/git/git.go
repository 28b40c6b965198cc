// Package git wraps the git subprocess invocations alforje needs. All
// repository I/O in the worker manager goes through the Runner interface so
// tests can substitute a mock.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/alforje/alforje/internal/log"
)

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks github.com/alforje/alforje/internal/git Runner

// ErrDiverged reports that an update could not fast-forward because the
// clone's history diverged from upstream. The clone is left untouched.
var ErrDiverged = errors.New("history diverged, fast-forward not possible")

// Runner executes git operations against one repository at a time.
type Runner interface {
	// Clone checks out url into dir.
	Clone(ctx context.Context, url, dir string) error
	// Fetch downloads upstream refs for the clone at dir.
	Fetch(ctx context.Context, dir string) error
	// MergeFastForward advances the clone at dir to FETCH_HEAD, failing
	// with ErrDiverged when a fast-forward is impossible.
	MergeFastForward(ctx context.Context, dir string) error
	// Head returns the current head revision of the clone at dir.
	Head(ctx context.Context, dir string) (string, error)
	// Log returns the commit summaries between two revisions, oldest
	// first.
	Log(ctx context.Context, dir, oldRev, newRev string) ([]string, error)
}

// maxStderrBytes caps the git stderr carried into error messages.
const maxStderrBytes = 4 * 1024

// ExecRunner runs the real git binary.
type ExecRunner struct {
	logger *slog.Logger
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner creates a Runner backed by the git binary on PATH.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{logger: log.WithComponent("git")}
}

func (r *ExecRunner) Clone(ctx context.Context, url, dir string) error {
	if !strings.HasSuffix(url, ".git") {
		url += ".git"
	}
	_, err := r.run(ctx, "", "clone", url, dir)
	return err
}

func (r *ExecRunner) Fetch(ctx context.Context, dir string) error {
	_, err := r.run(ctx, dir, "fetch", "--quiet")
	return err
}

func (r *ExecRunner) MergeFastForward(ctx context.Context, dir string) error {
	_, err := r.run(ctx, dir, "merge", "--ff-only", "FETCH_HEAD")
	if err != nil && isDivergedError(err) {
		return fmt.Errorf("%w: %v", ErrDiverged, err)
	}
	return err
}

func (r *ExecRunner) Head(ctx context.Context, dir string) (string, error) {
	out, err := r.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *ExecRunner) Log(ctx context.Context, dir, oldRev, newRev string) ([]string, error) {
	out, err := r.run(ctx, dir, "log", oldRev+".."+newRev, "--oneline", "--no-decorate", "--reverse")
	if err != nil {
		return nil, err
	}

	var entries []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			entries = append(entries, line)
		}
	}
	return entries, nil
}

// run executes git with args, returning stdout. dir is the working directory,
// or empty for the process default.
func (r *ExecRunner) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running git", "args", args, "dir", dir)

	if err := cmd.Run(); err != nil {
		msg := truncate(strings.TrimSpace(stderr.String()))
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("git %s exited with status %d: %s", args[0], exitErr.ExitCode(), msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return stdout.String(), nil
}

func isDivergedError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fast-forward") ||
		strings.Contains(msg, "unrelated histories")
}

func truncate(s string) string {
	if len(s) > maxStderrBytes {
		return s[:maxStderrBytes]
	}
	return s
}
