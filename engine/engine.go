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

// Package engine owns the one mutable State a CLI invocation needs: the
// path/config cache, build-order graph, status evaluator, pending queue,
// driver, watch orchestrator, and reporter, all sharing the one
// CachingFileSystem wrapped around the real host file system. The build,
// watch and clean subcommands are thin wrappers that builds an Options, constructs a State,
// and calls one of its methods.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"projectbuild.dev/tsbuild/compiler"
	"projectbuild.dev/tsbuild/config"
	"projectbuild.dev/tsbuild/driver"
	"projectbuild.dev/tsbuild/fs"
	"projectbuild.dev/tsbuild/graph"
	"projectbuild.dev/tsbuild/internal/version"
	"projectbuild.dev/tsbuild/invalidate"
	"projectbuild.dev/tsbuild/report"
	"projectbuild.dev/tsbuild/status"
	"projectbuild.dev/tsbuild/watch"
)

// State is the single owner of every build-session component. Nothing here
// is a package-level global; a cmd/ subcommand that wants a second,
// independent build session (there isn't one today) could construct a
// second State.
type State struct {
	fsys     *driver.CachingFileSystem
	paths    *config.PathCache
	graph    *graph.Graph
	eval     *status.Evaluator
	queue    *invalidate.PendingQueue
	reporter *report.Reporter
	driver   *driver.Driver
	watcher  *watch.Orchestrator
	log      *slog.Logger
}

// New wires a State over the real host file system. opts carries the
// CLI-visible Dry/Force/Verbose flags straight through to the driver.
func New(opts driver.Options, log *slog.Logger) *State {
	return newState(fs.NewOSFileSystem(), opts, log)
}

// newState wires a State over fsys. Split out from New so tests can wire a
// State over an in-memory file system without touching disk.
func newState(fsys fs.FileSystem, opts driver.Options, log *slog.Logger) *State {
	if log == nil {
		log = slog.Default()
	}
	cfs := driver.NewCachingFileSystem(fsys)
	paths := config.NewPathCache(cfs, runtime.GOOS == "windows" || runtime.GOOS == "darwin")
	g := graph.New(paths)
	eval := status.New(cfs, paths, version.GetVersion())
	queue := invalidate.NewPendingQueue()
	rep := report.New(log)
	builder := compiler.NewReferenceBuilder(cfs)
	d := driver.New(cfs, paths, g, eval, queue, builder, rep, time.Now, opts)

	return &State{
		fsys:     cfs,
		paths:    paths,
		graph:    g,
		eval:     eval,
		queue:    queue,
		reporter: rep,
		driver:   d,
		log:      log,
	}
}

// resolveRoots turns CLI-given project names (directories or explicit
// config file paths) into canonical keys the graph and driver operate on.
func (s *State) resolveRoots(names []string) []string {
	roots := make([]string, 0, len(names))
	for _, name := range names {
		resolved := s.paths.Resolve(name)
		roots = append(roots, s.paths.Key(resolved))
	}
	return roots
}

// Build runs a one-shot build over the transitive closure of names and
// reports whether anything failed.
func (s *State) Build(ctx context.Context, names []string) (driver.ExitStatus, error) {
	roots := s.resolveRoots(names)
	return s.driver.Build(ctx, roots, "")
}

// Watch builds names once, then watches every project's config file,
// wildcard input directories, and resolved input files, rebuilding whatever
// the watch orchestrator raises until ctx is canceled.
func (s *State) Watch(ctx context.Context, names []string) error {
	roots := s.resolveRoots(names)

	orchestrator, err := watch.New(s.fsys, s.paths, s.queue, s.log)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer func() { _ = orchestrator.Close() }()
	s.watcher = orchestrator
	s.driver.SetWatchRewirer(orchestrator)

	orchestrator.OnFullReload = func(projectKey string) {
		s.graph.Invalidate()
	}

	if _, err := s.driver.Build(ctx, roots, ""); err != nil {
		s.log.Error("initial build failed", "error", err)
	}

	order, _, err := s.driver.ComputeOrder(roots, "")
	if err != nil {
		return fmt.Errorf("computing build order: %w", err)
	}
	for _, key := range order {
		orchestrator.RewireAll(key)
	}

	rebuild := make(chan struct{}, 1)
	orchestrator.Flush = func(ctx context.Context) {
		select {
		case rebuild <- struct{}{}:
		default:
		}
	}

	go orchestrator.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-rebuild:
			order, diags, err := s.driver.ComputeOrder(roots, "")
			if err != nil {
				s.log.Error("recomputing build order", "error", err)
				continue
			}
			for _, diag := range diags {
				s.log.Warn("reference cycle", "project", diag.File, "message", diag.Message)
			}
			for {
				result, err := s.driver.BuildNextProject(ctx, order)
				if result == nil {
					break
				}
				if err != nil {
					s.log.Error("rebuild failed", "project", result.ProjectKey, "error", err)
				}
			}
		}
	}
}

// Clean removes every expected output file and build-info file for the
// transitive closure of names, without running the compiler.
func (s *State) Clean(names []string) error {
	roots := s.resolveRoots(names)
	order, _, err := s.driver.ComputeOrder(roots, "")
	if err != nil {
		return fmt.Errorf("computing build order: %w", err)
	}

	for _, key := range order {
		resolved, ok := s.paths.ResolvedPath(key)
		if !ok {
			continue
		}
		cfg, diag := s.paths.Parse(key, resolved)
		if diag != nil {
			continue
		}
		for _, out := range config.ExpectedOutputs(cfg) {
			if s.fsys.Exists(out.Path) {
				if err := s.fsys.Remove(out.Path); err != nil {
					return fmt.Errorf("removing %s: %w", out.Path, err)
				}
			}
		}
		if info := config.BuildInfoPath(cfg); info != "" && s.fsys.Exists(info) {
			if err := s.fsys.Remove(info); err != nil {
				return fmt.Errorf("removing %s: %w", info, err)
			}
		}
	}
	return nil
}

// Failed reports whether any Build run on this State so far recorded a
// diagnostic.
func (s *State) Failed() bool {
	return s.reporter.Failed()
}
