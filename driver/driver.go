/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package driver runs the per-project build pipeline over a project build
// order: computing which projects need work, dispatching Build/UpdateBundle/
// UpdateOutputFileStamps action handles, writing their outputs, and
// propagating invalidation to projects that reference what just changed.
package driver

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"projectbuild.dev/tsbuild/compiler"
	"projectbuild.dev/tsbuild/config"
	"projectbuild.dev/tsbuild/graph"
	"projectbuild.dev/tsbuild/invalidate"
	"projectbuild.dev/tsbuild/status"
)

// ExitStatus is the outcome of a one-shot Build call.
type ExitStatus int

const (
	Success ExitStatus = iota
	DiagnosticsPresentOutputsGenerated
	DiagnosticsPresentOutputsSkipped
	InvalidProjectOutputsSkipped
)

func (s ExitStatus) String() string {
	switch s {
	case Success:
		return "Success"
	case DiagnosticsPresentOutputsGenerated:
		return "DiagnosticsPresent_OutputsGenerated"
	case DiagnosticsPresentOutputsSkipped:
		return "DiagnosticsPresent_OutputsSkipped"
	case InvalidProjectOutputsSkipped:
		return "InvalidProject_OutputsSkipped"
	default:
		return "Unknown"
	}
}

// Reporter receives everything the driver has to say about a build: fatal
// config diagnostics, compiler-stage diagnostics, verbose-gated status
// lines, and the closing summary. Kept as an interface here so the report
// package's slog-backed implementation can be swapped for a silent one in
// tests without the driver depending on it.
type Reporter interface {
	RecordConfigDiagnostic(projectKey string, diag config.Diagnostic)
	RecordCompilerDiagnostics(projectKey string, diags []compiler.Diagnostic)
	StatusLine(projectKey string, message string)
	Summary(order []string)
}

// WatchRewirer is implemented by the watch package. The driver calls it
// when a pending entry's reload level calls for rewiring watchers, but
// never constructs or owns one itself; in one-shot build mode it stays nil
// and these calls are skipped entirely.
type WatchRewirer interface {
	RewireAll(projectKey string)
	RewireInputs(projectKey string)
}

// Options carries the CLI-visible flags that change how the driver treats
// otherwise-identical statuses.
type Options struct {
	Dry     bool
	Force   bool
	Verbose bool
}

// StepResult is what one BuildNextProject call did, or nil if the queue was
// empty.
type StepResult struct {
	ProjectKey string
	Kind       invalidate.Kind
	Skipped    bool
	SkipReason string
	Err        error
}

// Driver runs the build pipeline. It owns no state that outlives a single
// engine.State; everything it touches (paths, graph, eval, queue) is
// supplied by the caller and shared with the rest of the engine.
type Driver struct {
	fsys    *CachingFileSystem
	paths   *config.PathCache
	graph   *graph.Graph
	eval    *status.Evaluator
	queue   *invalidate.PendingQueue
	builder compiler.Builder

	reporter Reporter
	rewirer  WatchRewirer
	now      func() time.Time
	opts     Options

	mu       sync.Mutex
	programs map[string]compiler.Program
}

// New creates a Driver. fsys must be the same CachingFileSystem instance
// that backs paths, and should be the one the evaluator and builder were
// constructed with too, so Enable/Disable actually takes effect for every
// component that reads through it.
func New(fsys *CachingFileSystem, paths *config.PathCache, g *graph.Graph, eval *status.Evaluator, queue *invalidate.PendingQueue, builder compiler.Builder, reporter Reporter, now func() time.Time, opts Options) *Driver {
	return &Driver{
		fsys:     fsys,
		paths:    paths,
		graph:    g,
		eval:     eval,
		queue:    queue,
		builder:  builder,
		reporter: reporter,
		now:      now,
		opts:     opts,
		programs: make(map[string]compiler.Program),
	}
}

// SetWatchRewirer installs the watch orchestrator's rewiring hook. Called
// by the engine only when entering watch mode.
func (d *Driver) SetWatchRewirer(r WatchRewirer) {
	d.rewirer = r
}

// ComputeOrder resolves roots to a build order, restricted to project's
// transitive closure when project is non-empty, surfacing any cycle
// diagnostics found along the way regardless of which order is returned.
func (d *Driver) ComputeOrder(roots []string, project string) ([]string, []config.Diagnostic, error) {
	full, diags := d.graph.BuildOrder(roots)
	if project == "" {
		return full, diags, nil
	}
	restricted, err := d.graph.BuildOrderFor(roots, project)
	if err != nil {
		return nil, diags, err
	}
	return restricted, diags, nil
}

// Build runs a one-shot build to completion over order: it seeds the
// pending queue, enables the scoped read cache for the duration of the
// call, repeatedly steps BuildNextProject until the queue drains, then
// emits the summary.
func (d *Driver) Build(ctx context.Context, roots []string, project string) (ExitStatus, error) {
	order, diags, err := d.ComputeOrder(roots, project)
	if err != nil {
		return InvalidProjectOutputsSkipped, err
	}

	for _, diag := range diags {
		d.reporter.RecordConfigDiagnostic(diag.File, diag)
	}

	d.fsys.Enable()
	defer d.fsys.Disable()
	d.queue.SeedAll(order, invalidate.None)

	anyFailed := len(diags) > 0
	anySucceeded := false
	for {
		if err := ctx.Err(); err != nil {
			return DiagnosticsPresentOutputsSkipped, err
		}
		result, err := d.BuildNextProject(ctx, order)
		if result == nil {
			break
		}
		switch {
		case result.Skipped:
			// no effect on success/failure tallying
		case err != nil:
			anyFailed = true
		default:
			anySucceeded = true
		}
	}

	d.reporter.Summary(order)

	switch {
	case !anyFailed:
		return Success, nil
	case anySucceeded:
		return DiagnosticsPresentOutputsGenerated, nil
	default:
		return DiagnosticsPresentOutputsSkipped, nil
	}
}

// BuildNextProject performs one dispatch step: find the first project in
// order with a pending entry, classify its status, and run (or skip) the
// action that classification calls for. Returns nil, nil once no project in
// order is pending.
func (d *Driver) BuildNextProject(ctx context.Context, order []string) (*StepResult, error) {
	key, level, ok := d.nextPending(order)
	if !ok {
		return nil, nil
	}

	switch level {
	case invalidate.Full:
		if d.rewirer != nil {
			d.rewirer.RewireAll(key)
		}
	case invalidate.Partial:
		if d.rewirer != nil {
			d.rewirer.RewireInputs(key)
		}
	}

	resolved, ok := d.paths.ResolvedPath(key)
	if !ok {
		resolved = key
	}
	cfg, diag := d.paths.Parse(key, resolved)

	s := d.eval.Evaluate(key, resolved)

	var emptyInputs bool
	if cfg != nil {
		if inputs, err := config.ExpandInputs(d.fsys, cfg); err == nil {
			emptyInputs = len(inputs.Files) == 0
		}
	}
	incremental := cfg != nil && cfg.IsIncremental()

	kind, skip, skipReason := invalidate.Classify(s, invalidate.DecideOptions{
		Forced:        d.opts.Force,
		EmptyInputs:   emptyInputs,
		ConfigErrored: diag != nil,
		Incremental:   incremental,
	})

	if skip {
		d.queue.Clear(key)
		if d.opts.Verbose {
			d.reporter.StatusLine(key, skipReason)
		}
		return &StepResult{ProjectKey: key, Skipped: true, SkipReason: skipReason}, nil
	}

	action := invalidate.New(kind, key, func(ctx context.Context) error {
		switch kind {
		case invalidate.Build:
			return d.runBuild(ctx, key, cfg, diag)
		case invalidate.UpdateBundle:
			return d.runUpdateBundle(ctx, key, cfg)
		case invalidate.UpdateOutputFileStamps:
			return d.runUpdateOutputFileStamps(ctx, key, cfg)
		}
		return nil
	})

	err := action.Done(ctx)
	d.queue.Clear(key)
	return &StepResult{ProjectKey: key, Kind: kind, Err: err}, err
}

func (d *Driver) nextPending(order []string) (key string, level invalidate.ReloadLevel, ok bool) {
	for _, k := range order {
		if lvl, pending := d.queue.Level(k); pending {
			return k, lvl, true
		}
	}
	return "", invalidate.None, false
}

// runBuild is the Build action: invoke the Program Builder, collect staged
// diagnostics, emit, and write or stamp every expected output.
func (d *Driver) runBuild(ctx context.Context, key string, cfg *config.ParsedConfig, diag *config.Diagnostic) error {
	if diag != nil {
		d.reporter.RecordConfigDiagnostic(key, *diag)
		return fmt.Errorf("%s: %s", key, diag.Message)
	}
	if d.opts.Dry {
		d.reporter.StatusLine(key, "would build "+key)
		return nil
	}

	inputs, err := config.ExpandInputs(d.fsys, cfg)
	if err != nil {
		return err
	}
	if len(inputs.Files) == 0 {
		return nil
	}

	d.mu.Lock()
	old := d.programs[key]
	d.mu.Unlock()

	prog, err := d.builder.CreateProgram(cfg, old, nil)
	if err != nil {
		return err
	}

	early := prog.Diagnostics(compiler.ConfigFile)
	early = append(early, prog.Diagnostics(compiler.Options)...)
	early = append(early, prog.Diagnostics(compiler.Global)...)
	early = append(early, prog.Diagnostics(compiler.Syntactic)...)
	if len(early) > 0 {
		d.reporter.RecordCompilerDiagnostics(key, early)
		return fmt.Errorf("%s: failed before emit", key)
	}
	if semantic := prog.Diagnostics(compiler.Semantic); len(semantic) > 0 {
		d.reporter.RecordCompilerDiagnostics(key, semantic)
		return fmt.Errorf("%s: semantic errors", key)
	}

	prog.BackupState()
	emitted, declDiags, err := prog.Emit()
	if err != nil {
		return err
	}
	if len(declDiags) > 0 {
		prog.RestoreState()
		d.reporter.RecordCompilerDiagnostics(key, declDiags)
		return fmt.Errorf("%s: declaration emit failed", key)
	}

	// A declaration file whose content is byte-identical to what's already
	// on disk is left untouched rather than rewritten, so its mtime stays
	// put and queueReferencingProjects's downstream evaluation sees no
	// decl-content change to react to. declChanged tracks the opposite
	// case, so a real content change can be forced through the evaluator
	// below even when the build's clock doesn't advance between this
	// project and whatever gets evaluated next.
	declChanged := false
	emittedPaths := make(map[string]bool, len(emitted))
	for _, ef := range emitted {
		emittedPaths[ef.Path] = true
		if ef.IsDeclaration {
			if existing, readErr := d.fsys.ReadFile(ef.Path); readErr == nil && bytes.Equal(existing, ef.Content) {
				continue
			}
			declChanged = true
		}
		if err := d.writeFile(ef.Path, ef.Content); err != nil {
			return err
		}
	}

	now := d.now()
	for _, out := range config.ExpectedOutputs(cfg) {
		if emittedPaths[out.Path] {
			continue
		}
		_ = d.touch(out.Path, now)
	}

	d.mu.Lock()
	d.programs[key] = prog
	d.mu.Unlock()

	if declChanged {
		d.eval.ForceDeclChanged(key)
	}
	d.eval.Invalidate(key)
	d.queueReferencingProjects(key)
	return nil
}

// runUpdateBundle is the UpdateBundle action: reuse a persisted program to
// regenerate non-declaration outputs only. If build-info can't be read, it
// falls back to a full Build, matching the "transparently converts" rule.
func (d *Driver) runUpdateBundle(ctx context.Context, key string, cfg *config.ParsedConfig) error {
	if d.opts.Dry {
		d.reporter.StatusLine(key, "would update bundle for "+key)
		return nil
	}

	buildInfoPath := config.BuildInfoPath(cfg)
	if buildInfoPath == "" {
		return d.runBuild(ctx, key, cfg, nil)
	}
	if _, err := d.fsys.ReadFile(buildInfoPath); err != nil {
		return d.runBuild(ctx, key, cfg, nil)
	}

	d.mu.Lock()
	prog := d.programs[key]
	d.mu.Unlock()
	if prog == nil {
		var err error
		prog, err = d.builder.CreateProgram(cfg, nil, nil)
		if err != nil {
			return err
		}
	}

	emitted, declDiags, err := prog.Emit()
	if err != nil {
		return err
	}
	if len(declDiags) > 0 {
		d.reporter.RecordCompilerDiagnostics(key, declDiags)
		return fmt.Errorf("%s: declaration emit failed during bundle update", key)
	}

	now := d.now()
	for _, ef := range emitted {
		if ef.IsDeclaration {
			continue
		}
		if err := d.writeFile(ef.Path, ef.Content); err != nil {
			return err
		}
	}
	for _, out := range config.ExpectedOutputs(cfg) {
		if out.IsDeclaration {
			continue
		}
		_ = d.touch(out.Path, now)
	}

	d.mu.Lock()
	d.programs[key] = prog
	d.mu.Unlock()

	d.eval.Invalidate(key)
	d.queueReferencingProjects(key)
	return nil
}

// runUpdateOutputFileStamps is the UpdateOutputFileStamps action: nothing
// changed except a downstream project's declaration identity, so every
// existing output just needs a fresh timestamp.
func (d *Driver) runUpdateOutputFileStamps(ctx context.Context, key string, cfg *config.ParsedConfig) error {
	if d.opts.Dry {
		d.reporter.StatusLine(key, "would update output timestamps for "+key)
		return nil
	}

	now := d.now()
	for _, out := range config.ExpectedOutputs(cfg) {
		if err := d.touch(out.Path, now); err != nil {
			return err
		}
	}

	d.eval.Invalidate(key)
	d.queueReferencingProjects(key)
	return nil
}

// queueReferencingProjects invalidates the cached status of every project
// that directly references key and is itself composite, then re-enqueues it
// at reload level None. Because the evaluator always re-derives status from
// disk rather than patching a cached value in place, invalidating is
// sufficient: the next Evaluate call naturally rediscovers whichever of
// UpToDateWithUpstreamTypes/OutOfDateWithPrepend/OutOfDateWithUpstream now
// applies, and clears a stale UpstreamBlocked the same way.
func (d *Driver) queueReferencingProjects(key string) {
	for _, depKey := range d.graph.Dependents(key) {
		depResolved, ok := d.paths.ResolvedPath(depKey)
		if !ok {
			depResolved = depKey
		}
		depCfg, diag := d.paths.Parse(depKey, depResolved)
		if diag != nil || depCfg == nil || !depCfg.IsComposite() {
			continue
		}
		d.eval.Invalidate(depKey)
		d.queue.Raise(depKey, invalidate.None)
	}
}

func (d *Driver) writeFile(p string, content []byte) error {
	if err := d.fsys.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}
	return d.fsys.WriteFile(p, content, 0o644)
}

func (d *Driver) touch(p string, t time.Time) error {
	if !d.fsys.Exists(p) {
		return nil
	}
	return d.fsys.Chtimes(p, t, t)
}
