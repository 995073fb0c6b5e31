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

// Package watch turns raw fsnotify events into invalidate.ReloadLevel queue
// entries: a project's own config file changing is a Full reload, a file
// appearing or disappearing under one of its wildcard input directories is
// a Partial reload (re-expand the glob), and an edit to a file already
// known as an input — whether matched by a wildcard or named explicitly in
// Files — just needs the project re-evaluated. Output paths are recognized
// and ignored so the build loop never re-triggers itself.
package watch

import (
	"context"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"projectbuild.dev/tsbuild/config"
	"projectbuild.dev/tsbuild/fs"
	"projectbuild.dev/tsbuild/invalidate"
)

// debounceWindow coalesces a burst of filesystem events (a save that fires
// write-then-rename, a directory copy) into a single rebuild pass.
const debounceWindow = 250 * time.Millisecond

type role int

const (
	configDirRole role = iota
	wildcardDirRole
	inputFileRole
)

// Orchestrator watches every active project's config file directory,
// wildcard input directories, and the directories containing its resolved
// input files (wildcard-matched or explicit), and raises the pending queue
// accordingly.
type Orchestrator struct {
	fsys    fs.FileSystem
	paths   *config.PathCache
	queue   *invalidate.PendingQueue
	watcher *fsnotify.Watcher
	log     *slog.Logger

	// Flush is invoked once a debounce window of silence passes after one
	// or more events were classified and queued. The engine wires this to
	// a BuildNextProject loop; left as a field rather than a constructor
	// argument so tests can substitute a counting stub.
	Flush func(ctx context.Context)

	// OnFullReload is called whenever a project's own config file changes,
	// after its parse cache entry has been invalidated, so the engine can
	// invalidate the build-order graph in turn. References inside the
	// config file may have changed; the graph has no way to know that on
	// its own.
	OnFullReload func(projectKey string)

	mu                  sync.Mutex
	projectConfigDir    map[string]string
	projectConfigPath   map[string]string
	projectWildcardDirs map[string][]string
	projectInputFiles   map[string][]string
	projectInputDirs    map[string][]string
	dirProjects         map[string][]watchedDir
	dirRefCount         map[string]int
	timer               *time.Timer
}

type watchedDir struct {
	projectKey string
	role       role
}

// New creates an Orchestrator backed by fsys for wildcard expansion and
// paths for config lookups, both shared with the rest of the engine.
func New(fsys fs.FileSystem, paths *config.PathCache, queue *invalidate.PendingQueue, log *slog.Logger) (*Orchestrator, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		fsys:                fsys,
		paths:               paths,
		queue:               queue,
		watcher:             w,
		log:                 log,
		projectConfigDir:    make(map[string]string),
		projectConfigPath:   make(map[string]string),
		projectWildcardDirs: make(map[string][]string),
		projectInputFiles:   make(map[string][]string),
		projectInputDirs:    make(map[string][]string),
		dirProjects:         make(map[string][]watchedDir),
		dirRefCount:         make(map[string]int),
	}, nil
}

// Close releases the underlying fsnotify watcher.
func (o *Orchestrator) Close() error {
	return o.watcher.Close()
}

// RewireAll re-establishes every watch project needs: its config file's
// directory, and (once re-parsed) its wildcard and explicit input
// directories. This is what the driver calls on a Full reload, and what the
// engine calls once up front for every project entering watch mode.
func (o *Orchestrator) RewireAll(projectKey string) {
	resolved, ok := o.paths.ResolvedPath(projectKey)
	if !ok {
		return
	}

	o.mu.Lock()
	o.unwireConfigDirLocked(projectKey)
	o.unwireWildcardDirsLocked(projectKey)
	o.unwireInputFilesLocked(projectKey)

	dir := path.Dir(resolved)
	o.addDirLocked(dir, watchedDir{projectKey: projectKey, role: configDirRole})
	o.projectConfigDir[projectKey] = dir
	o.projectConfigPath[projectKey] = resolved
	o.mu.Unlock()

	cfg, diag := o.paths.Parse(projectKey, resolved)
	if diag != nil {
		return
	}
	o.rewireWildcardDirs(projectKey, cfg)
}

// RewireInputs re-expands only project's wildcard and explicit input
// directories, leaving its config-file watch untouched. This is what the
// driver calls on a Partial reload.
func (o *Orchestrator) RewireInputs(projectKey string) {
	resolved, ok := o.paths.ResolvedPath(projectKey)
	if !ok {
		return
	}
	cfg, diag := o.paths.Parse(projectKey, resolved)
	if diag != nil {
		return
	}
	o.rewireWildcardDirs(projectKey, cfg)
}

// rewireWildcardDirs re-expands cfg's inputs and re-wires watches on both
// its wildcard roots (for Create/Remove/Rename of new matches) and the
// directories containing its resolved input files, wildcard-matched or
// named explicitly in Files (for edits to files already known as inputs).
func (o *Orchestrator) rewireWildcardDirs(projectKey string, cfg *config.ParsedConfig) {
	inputs, err := config.ExpandInputs(o.fsys, cfg)
	if err != nil {
		if o.log != nil {
			o.log.Warn("failed to expand inputs for watching", "project", projectKey, "error", err)
		}
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.unwireWildcardDirsLocked(projectKey)
	o.unwireInputFilesLocked(projectKey)

	o.projectWildcardDirs[projectKey] = append([]string(nil), inputs.WildcardDirs...)
	for _, d := range inputs.WildcardDirs {
		o.addDirLocked(d, watchedDir{projectKey: projectKey, role: wildcardDirRole})
	}

	o.projectInputFiles[projectKey] = append([]string(nil), inputs.Files...)
	dirs := make(map[string]bool, len(inputs.Files))
	for _, f := range inputs.Files {
		dirs[path.Dir(f)] = true
	}
	inputDirs := make([]string, 0, len(dirs))
	for d := range dirs {
		inputDirs = append(inputDirs, d)
	}
	o.projectInputDirs[projectKey] = inputDirs
	for _, d := range inputDirs {
		o.addDirLocked(d, watchedDir{projectKey: projectKey, role: inputFileRole})
	}
}

func (o *Orchestrator) addDirLocked(dir string, w watchedDir) {
	o.dirProjects[dir] = append(o.dirProjects[dir], w)
	o.dirRefCount[dir]++
	if o.dirRefCount[dir] == 1 {
		if err := o.watcher.Add(dir); err != nil && o.log != nil {
			o.log.Warn("failed to watch directory", "dir", dir, "error", err)
		}
	}
}

func (o *Orchestrator) removeDirLocked(dir string, projectKey string, r role) {
	owners := o.dirProjects[dir]
	for i, w := range owners {
		if w.projectKey == projectKey && w.role == r {
			owners = append(owners[:i], owners[i+1:]...)
			break
		}
	}
	if len(owners) == 0 {
		delete(o.dirProjects, dir)
	} else {
		o.dirProjects[dir] = owners
	}

	if o.dirRefCount[dir] <= 0 {
		return
	}
	o.dirRefCount[dir]--
	if o.dirRefCount[dir] == 0 {
		delete(o.dirRefCount, dir)
		_ = o.watcher.Remove(dir)
	}
}

func (o *Orchestrator) unwireConfigDirLocked(projectKey string) {
	if dir, ok := o.projectConfigDir[projectKey]; ok {
		o.removeDirLocked(dir, projectKey, configDirRole)
		delete(o.projectConfigDir, projectKey)
		delete(o.projectConfigPath, projectKey)
	}
}

func (o *Orchestrator) unwireWildcardDirsLocked(projectKey string) {
	for _, d := range o.projectWildcardDirs[projectKey] {
		o.removeDirLocked(d, projectKey, wildcardDirRole)
	}
	delete(o.projectWildcardDirs, projectKey)
}

func (o *Orchestrator) unwireInputFilesLocked(projectKey string) {
	for _, d := range o.projectInputDirs[projectKey] {
		o.removeDirLocked(d, projectKey, inputFileRole)
	}
	delete(o.projectInputDirs, projectKey)
	delete(o.projectInputFiles, projectKey)
}

// Run drains fsnotify events until ctx is canceled, classifying each one
// and scheduling a debounced Flush. It blocks; callers run it in its own
// goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.watcher.Events:
			if !ok {
				return
			}
			o.handleEvent(ctx, ev)
		case err, ok := <-o.watcher.Errors:
			if !ok {
				return
			}
			if o.log != nil {
				o.log.Error("watch error", "error", err)
			}
		}
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev fsnotify.Event) {
	o.mu.Lock()
	owners := append([]watchedDir(nil), o.dirProjects[path.Dir(ev.Name)]...)
	o.mu.Unlock()

	raised := false
	for _, w := range owners {
		level, ignore := o.classify(w, ev)
		if ignore {
			continue
		}
		o.queue.Raise(w.projectKey, level)
		raised = true
	}
	if raised {
		o.scheduleFlush(ctx)
	}
}

func (o *Orchestrator) classify(w watchedDir, ev fsnotify.Event) (invalidate.ReloadLevel, bool) {
	switch w.role {
	case configDirRole:
		o.mu.Lock()
		configPath := o.projectConfigPath[w.projectKey]
		o.mu.Unlock()
		if ev.Name != configPath {
			return invalidate.None, true
		}
		o.paths.Invalidate(w.projectKey)
		if o.OnFullReload != nil {
			o.OnFullReload(w.projectKey)
		}
		return invalidate.Full, false
	case wildcardDirRole:
		resolved, ok := o.paths.ResolvedPath(w.projectKey)
		if !ok {
			return invalidate.None, true
		}
		cfg, diag := o.paths.Parse(w.projectKey, resolved)
		if diag != nil {
			return invalidate.None, true
		}
		if config.IsOutputPath(cfg, ev.Name) {
			return invalidate.None, true
		}
		if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
			return invalidate.Partial, false
		}
		return invalidate.None, false
	case inputFileRole:
		o.mu.Lock()
		files := o.projectInputFiles[w.projectKey]
		o.mu.Unlock()
		for _, f := range files {
			if f == ev.Name {
				return invalidate.None, false
			}
		}
		return invalidate.None, true
	default:
		return invalidate.None, true
	}
}

func (o *Orchestrator) scheduleFlush(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(debounceWindow, func() {
		if o.Flush != nil {
			o.Flush(ctx)
		}
	})
}
