// Package manager executes a reconciliation plan: one concurrent unit of
// work per plugin needing install, update or removal. Units are independent;
// install order across plugins is irrelevant because load order is encoded
// separately by the loader script. After all units have joined, the state
// store is rewritten atomically, so an interrupted run never leaves
// half-applied state behind.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/alforje/alforje/internal/git"
	"github.com/alforje/alforje/internal/log"
	"github.com/alforje/alforje/internal/reconcile"
	"github.com/alforje/alforje/internal/report"
	"github.com/alforje/alforje/internal/setup"
	"github.com/alforje/alforje/internal/state"
	"github.com/alforje/alforje/internal/tree"
)

// Event is a progress notification for one unit of work.
type Event struct {
	Name string
	// Status is "started", or a terminal report.Action, or "failed".
	Status string
}

// Manager runs reconciliation plans.
type Manager struct {
	runner  git.Runner
	store   *state.Store
	paths   setup.Paths
	logger  *slog.Logger
	onEvent func(Event)
}

// Option configures a Manager.
type Option func(*Manager)

// WithEvents registers a callback invoked for every unit start and outcome.
// Callbacks may fire concurrently from unit goroutines.
func WithEvents(fn func(Event)) Option {
	return func(m *Manager) { m.onEvent = fn }
}

// New creates a Manager.
func New(runner git.Runner, store *state.Store, paths setup.Paths, opts ...Option) *Manager {
	m := &Manager{
		runner: runner,
		store:  store,
		paths:  paths,
		logger: log.WithComponent("manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// outcomes collects unit results. Append-only under one mutex; units never
// wait on each other.
type outcomes struct {
	mu        sync.Mutex
	successes []report.Success
	failures  []report.Failure
	records   map[string]state.Record
}

func (o *outcomes) success(s report.Success, rec *state.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.successes = append(o.successes, s)
	if rec != nil {
		o.records[rec.Name] = *rec
	}
}

func (o *outcomes) failure(f report.Failure, rec *state.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, f)
	if rec != nil {
		o.records[rec.Name] = *rec
	}
}

func (o *outcomes) keep(rec state.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records[rec.Name] = rec
}

// Run executes the plan and rewrites the state store from the union of
// carried-over records and unit results. The returned report is complete:
// every scheduled unit contributed exactly one outcome. When ctx is
// cancelled, in-flight units are abandoned and the state store is left
// untouched.
func (m *Manager) Run(ctx context.Context, forest tree.Forest, plan *reconcile.Plan, previous map[string]state.Record) (*report.Report, error) {
	runID := uuid.NewString()
	logger := m.logger.With("run_id", runID)
	logger.Info("run started", "units", plan.Units())

	out := &outcomes{records: make(map[string]state.Record)}

	var wg sync.WaitGroup
	for _, item := range plan.Items {
		switch item.Class {
		case reconcile.Unchanged:
			m.carryRecord(out, item, previous)
		case reconcile.MissingLocal:
			wg.Add(1)
			go func(it reconcile.Item) {
				defer wg.Done()
				m.emit(Event{Name: it.Node.Name, Status: "started"})
				m.missingLocal(out, it)
			}(item)
		case reconcile.New:
			wg.Add(1)
			go func(it reconcile.Item) {
				defer wg.Done()
				m.emit(Event{Name: it.Node.Name, Status: "started"})
				m.install(ctx, out, it)
			}(item)
		case reconcile.NeedsUpdate:
			wg.Add(1)
			go func(it reconcile.Item) {
				defer wg.Done()
				m.emit(Event{Name: it.Node.Name, Status: "started"})
				m.update(ctx, out, it, previous[it.Node.Name])
			}(item)
		}
	}

	for _, orphan := range plan.Orphans {
		wg.Add(1)
		go func(o reconcile.Orphan) {
			defer wg.Done()
			m.emit(Event{Name: o.Record.Name, Status: "started"})
			m.remove(out, o)
		}(orphan)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		logger.Warn("run interrupted, state store left untouched")
		rep := &report.Report{RunID: runID, Successes: out.successes, Failures: out.failures}
		rep.Sort(forest.Names())
		return rep, err
	}

	// Activation runs before the report is assembled so a failed symlink
	// shows up as a unit failure rather than just a log line.
	m.activate(out, plan)

	rep := &report.Report{
		RunID:     runID,
		Successes: out.successes,
		Failures:  out.failures,
	}

	if err := m.store.Rewrite(ctx, out.records); err != nil {
		rep.Sort(forest.Names())
		return rep, fmt.Errorf("persist state: %w", err)
	}

	rep.Sort(forest.Names())
	logger.Info("run finished", "successes", len(rep.Successes), "failures", len(rep.Failures))
	return rep, nil
}

// carryRecord preserves the record of a plugin needing no work, refreshing
// the fields derived from configuration.
func (m *Manager) carryRecord(out *outcomes, item reconcile.Item, previous map[string]state.Record) {
	rec, ok := previous[item.Node.Name]
	if !ok {
		rec = state.Record{Name: item.Node.Name}
	}
	rec.Path = item.RepoPath
	rec.Location = item.Node.Location.Raw
	rec.Disabled = item.Node.DisabledEffective
	out.keep(rec)
}

func (m *Manager) missingLocal(out *outcomes, item reconcile.Item) {
	name := item.Node.Name
	log.WithPlugin(name).Error("local plugin directory does not exist", "path", item.RepoPath)
	out.failure(report.Failure{
		Name:    name,
		Kind:    report.KindFilesystem,
		Message: fmt.Sprintf("the path %s does not exist", item.RepoPath),
	}, nil)
	m.emit(Event{Name: name, Status: "failed"})
}

func (m *Manager) install(ctx context.Context, out *outcomes, item reconcile.Item) {
	name := item.Node.Name
	logger := log.WithPlugin(name)

	// A stale clone may sit at this path when the declared URL changed or
	// the previous install failed halfway. Full re-clone, never mix
	// histories.
	if err := os.RemoveAll(item.RepoPath); err != nil {
		out.failure(report.Failure{
			Name:    name,
			Kind:    report.KindFilesystem,
			Message: fmt.Sprintf("could not clear %s: %v", item.RepoPath, err),
		}, nil)
		m.emit(Event{Name: name, Status: "failed"})
		return
	}

	if err := m.runner.Clone(ctx, item.Node.Location.Raw, item.RepoPath); err != nil {
		logger.Error("clone failed", "error", err)
		out.failure(report.Failure{
			Name:    name,
			Kind:    report.KindFetch,
			Message: fmt.Sprintf("could not clone: %v", err),
		}, nil)
		m.emit(Event{Name: name, Status: "failed"})
		return
	}

	head, err := m.runner.Head(ctx, item.RepoPath)
	if err != nil {
		logger.Error("rev-parse failed after clone", "error", err)
		out.failure(report.Failure{
			Name:    name,
			Kind:    report.KindFetch,
			Message: fmt.Sprintf("could not read revision: %v", err),
		}, nil)
		m.emit(Event{Name: name, Status: "failed"})
		return
	}

	logger.Info("installed", "revision", head)
	out.success(report.Success{Name: name, Action: report.ActionInstalled}, &state.Record{
		Name:     name,
		Path:     item.RepoPath,
		Revision: head,
		Disabled: item.Node.DisabledEffective,
		Location: item.Node.Location.Raw,
	})
	m.emit(Event{Name: name, Status: string(report.ActionInstalled)})
}

func (m *Manager) update(ctx context.Context, out *outcomes, item reconcile.Item, prev state.Record) {
	name := item.Node.Name
	logger := log.WithPlugin(name)

	// On any failure the existing clone and its record stay as they are:
	// the unit is retried on the next run.
	prev.Path = item.RepoPath
	prev.Location = item.Node.Location.Raw
	prev.Disabled = item.Node.DisabledEffective

	if err := m.runner.Fetch(ctx, item.RepoPath); err != nil {
		logger.Error("fetch failed", "error", err)
		out.failure(report.Failure{
			Name:    name,
			Kind:    report.KindFetch,
			Message: fmt.Sprintf("could not fetch: %v", err),
		}, &prev)
		m.emit(Event{Name: name, Status: "failed"})
		return
	}

	if err := m.runner.MergeFastForward(ctx, item.RepoPath); err != nil {
		kind := report.KindFetch
		if errors.Is(err, git.ErrDiverged) {
			kind = report.KindDiverged
		}
		logger.Error("fast-forward failed", "error", err)
		out.failure(report.Failure{
			Name:    name,
			Kind:    kind,
			Message: fmt.Sprintf("could not update: %v", err),
		}, &prev)
		m.emit(Event{Name: name, Status: "failed"})
		return
	}

	head, err := m.runner.Head(ctx, item.RepoPath)
	if err != nil {
		logger.Error("rev-parse failed", "error", err)
		out.failure(report.Failure{
			Name:    name,
			Kind:    report.KindFetch,
			Message: fmt.Sprintf("could not read revision: %v", err),
		}, &prev)
		m.emit(Event{Name: name, Status: "failed"})
		return
	}

	rec := prev
	rec.Revision = head

	if head == item.PrevRevision {
		out.success(report.Success{Name: name, Action: report.ActionUnchanged}, &rec)
		m.emit(Event{Name: name, Status: string(report.ActionUnchanged)})
		return
	}

	var changelog []string
	if item.PrevRevision != "" {
		changelog, err = m.runner.Log(ctx, item.RepoPath, item.PrevRevision, head)
		if err != nil {
			// The update itself landed; keep the new revision and
			// report the changelog failure.
			logger.Error("changelog failed", "error", err)
			out.failure(report.Failure{
				Name:    name,
				Kind:    report.KindFetch,
				Message: fmt.Sprintf("could not list changes: %v", err),
			}, &rec)
			m.emit(Event{Name: name, Status: "failed"})
			return
		}
	}

	logger.Info("updated", "revision", head, "commits", len(changelog))
	out.success(report.Success{Name: name, Action: report.ActionUpdated, Changelog: changelog}, &rec)
	m.emit(Event{Name: name, Status: string(report.ActionUpdated)})
}

func (m *Manager) remove(out *outcomes, orphan reconcile.Orphan) {
	name := orphan.Record.Name
	logger := log.WithPlugin(name)

	if orphan.Local {
		// Local directories were never ours; only the record goes.
		logger.Info("forgot local plugin")
		out.success(report.Success{Name: name, Action: report.ActionRemoved}, nil)
		m.emit(Event{Name: name, Status: string(report.ActionRemoved)})
		return
	}

	if err := os.RemoveAll(orphan.Record.Path); err != nil {
		logger.Error("removal failed", "error", err)
		// Keep the record so the removal is retried next run.
		out.failure(report.Failure{
			Name:    name,
			Kind:    report.KindFilesystem,
			Message: fmt.Sprintf("could not remove %s: %v", orphan.Record.Path, err),
		}, &orphan.Record)
		m.emit(Event{Name: name, Status: "failed"})
		return
	}

	logger.Info("removed", "path", orphan.Record.Path)
	out.success(report.Success{Name: name, Action: report.ActionRemoved}, nil)
	m.emit(Event{Name: name, Status: string(report.ActionRemoved)})
}

// activate creates the autoload symlink for every enabled plugin that ended
// the run with a usable repository. The plugins directory was recreated at
// the start of the run, so links never collide.
func (m *Manager) activate(out *outcomes, plan *reconcile.Plan) {
	for _, item := range plan.Items {
		if item.Node.DisabledEffective {
			continue
		}
		if _, ok := out.records[item.Node.Name]; !ok {
			// No usable artifact: missing local path or failed install.
			continue
		}
		link := m.paths.LinkPath(item.Node.Name)
		if err := os.Symlink(item.RepoPath, link); err != nil && !os.IsExist(err) {
			log.WithPlugin(item.Node.Name).Error("activation failed", "error", err)
			out.failure(report.Failure{
				Name:    item.Node.Name,
				Kind:    report.KindFilesystem,
				Message: fmt.Sprintf("could not activate: %v", err),
			}, nil)
		}
	}
}

func (m *Manager) emit(e Event) {
	if m.onEvent != nil {
		m.onEvent(e)
	}
}
