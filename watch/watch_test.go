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

package watch

import (
	"testing"

	"github.com/fsnotify/fsnotify"

	"projectbuild.dev/tsbuild/config"
	"projectbuild.dev/tsbuild/internal/mapfs"
	"projectbuild.dev/tsbuild/invalidate"
)

// setupProject writes a minimal project to an in-memory file system and
// registers it with a fresh PathCache, returning everything a test needs to
// build an Orchestrator against it.
func setupProject(t *testing.T, include []string, outDir string) (*mapfs.MapFileSystem, *config.PathCache, string, string) {
	t.Helper()
	fsys := mapfs.New()
	body := `{"compilerOptions": {"outDir": "` + outDir + `"}`
	if len(include) > 0 {
		body += `, "include": [`
		for i, pat := range include {
			if i > 0 {
				body += `, `
			}
			body += `"` + pat + `"`
		}
		body += `]`
	}
	body += `}`
	fsys.AddFile("/repo/proj/tsbuild.json", body, 0o644)
	fsys.AddFile("/repo/proj/src/index.ts", "export const x = 1\n", 0o644)

	paths := config.NewPathCache(fsys, false)
	resolved := paths.Resolve("/repo/proj")
	key := paths.Key(resolved)
	return fsys, paths, key, resolved
}

// setupFilesProject writes a project whose inputs are an explicit "files"
// list with no "include" patterns, the configuration shape ExpandInputs
// leaves WildcardDirs empty for.
func setupFilesProject(t *testing.T) (*mapfs.MapFileSystem, *config.PathCache, string, string) {
	t.Helper()
	fsys := mapfs.New()
	fsys.AddFile("/repo/proj/tsbuild.json", `{"files": ["src/index.ts"], "compilerOptions": {"outDir": "dist"}}`, 0o644)
	fsys.AddFile("/repo/proj/src/index.ts", "export const x = 1\n", 0o644)

	paths := config.NewPathCache(fsys, false)
	resolved := paths.Resolve("/repo/proj")
	key := paths.Key(resolved)
	return fsys, paths, key, resolved
}

func newTestOrchestrator(t *testing.T, fsys *mapfs.MapFileSystem, paths *config.PathCache) *Orchestrator {
	t.Helper()
	o, err := New(fsys, paths, invalidate.NewPendingQueue(), nil)
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestRewireAllWatchesConfigDir(t *testing.T) {
	fsys, paths, key, _ := setupProject(t, nil, "dist")
	o := newTestOrchestrator(t, fsys, paths)

	o.RewireAll(key)

	if got := o.projectConfigDir[key]; got != "/repo/proj" {
		t.Errorf("projectConfigDir = %q, want /repo/proj", got)
	}
	if o.dirRefCount["/repo/proj"] != 1 {
		t.Errorf("dirRefCount[/repo/proj] = %d, want 1", o.dirRefCount["/repo/proj"])
	}
}

func TestRewireAllSharesDirWhenWildcardRootEqualsConfigDir(t *testing.T) {
	fsys, paths, key, _ := setupProject(t, []string{"*.ts"}, "dist")
	o := newTestOrchestrator(t, fsys, paths)

	o.RewireAll(key)

	// The include pattern has no subdirectory prefix, so its wildcard root
	// is the project directory itself: the same directory is now watched
	// for both the config-dir role and the wildcard-dir role.
	if o.dirRefCount["/repo/proj"] != 2 {
		t.Errorf("dirRefCount[/repo/proj] = %d, want 2", o.dirRefCount["/repo/proj"])
	}
	roles := o.dirProjects["/repo/proj"]
	if len(roles) != 2 {
		t.Fatalf("expected 2 owners of /repo/proj, got %d: %v", len(roles), roles)
	}
}

func TestUnwireDropsRefCountToZero(t *testing.T) {
	fsys, paths, key, _ := setupProject(t, nil, "dist")
	o := newTestOrchestrator(t, fsys, paths)
	o.RewireAll(key)

	o.mu.Lock()
	o.unwireConfigDirLocked(key)
	o.unwireWildcardDirsLocked(key)
	o.mu.Unlock()

	if _, ok := o.dirRefCount["/repo/proj"]; ok {
		t.Errorf("expected /repo/proj to be fully unwired")
	}
	if _, ok := o.projectConfigDir[key]; ok {
		t.Errorf("expected projectConfigDir entry to be removed")
	}
}

func TestRewireInputsLeavesConfigDirUntouched(t *testing.T) {
	fsys, paths, key, _ := setupProject(t, []string{"src/**/*.ts"}, "dist")
	o := newTestOrchestrator(t, fsys, paths)
	o.RewireAll(key)

	before := o.dirRefCount["/repo/proj"]
	o.RewireInputs(key)
	after := o.dirRefCount["/repo/proj"]

	if before != after {
		t.Errorf("RewireInputs changed config dir ref count: %d -> %d", before, after)
	}
	if dirs := o.projectWildcardDirs[key]; len(dirs) != 1 || dirs[0] != "/repo/proj/src" {
		t.Errorf("projectWildcardDirs = %v, want [/repo/proj/src]", dirs)
	}
}

func TestClassifyConfigFileChangeTriggersFullReload(t *testing.T) {
	fsys, paths, key, resolved := setupProject(t, nil, "dist")
	o := newTestOrchestrator(t, fsys, paths)
	o.RewireAll(key)

	var notified string
	o.OnFullReload = func(projectKey string) { notified = projectKey }

	level, ignore := o.classify(watchedDir{projectKey: key, role: configDirRole}, fsnotify.Event{Name: resolved, Op: fsnotify.Write})
	if ignore {
		t.Fatal("expected config file change to not be ignored")
	}
	if level != invalidate.Full {
		t.Errorf("level = %v, want Full", level)
	}
	if notified != key {
		t.Errorf("OnFullReload called with %q, want %q", notified, key)
	}
}

func TestClassifyIgnoresUnrelatedFileInConfigDir(t *testing.T) {
	fsys, paths, key, _ := setupProject(t, nil, "dist")
	o := newTestOrchestrator(t, fsys, paths)
	o.RewireAll(key)

	_, ignore := o.classify(watchedDir{projectKey: key, role: configDirRole}, fsnotify.Event{Name: "/repo/proj/README.md", Op: fsnotify.Write})
	if !ignore {
		t.Error("expected an unrelated file in the config directory to be ignored")
	}
}

func TestClassifyWildcardCreateTriggersPartialReload(t *testing.T) {
	fsys, paths, key, _ := setupProject(t, []string{"src/**/*.ts"}, "dist")
	o := newTestOrchestrator(t, fsys, paths)
	o.RewireAll(key)

	level, ignore := o.classify(watchedDir{projectKey: key, role: wildcardDirRole}, fsnotify.Event{Name: "/repo/proj/src/new.ts", Op: fsnotify.Create})
	if ignore {
		t.Fatal("expected a new file under a wildcard directory to not be ignored")
	}
	if level != invalidate.Partial {
		t.Errorf("level = %v, want Partial", level)
	}
}

func TestClassifyWildcardWriteIsNoneLevel(t *testing.T) {
	fsys, paths, key, _ := setupProject(t, []string{"src/**/*.ts"}, "dist")
	o := newTestOrchestrator(t, fsys, paths)
	o.RewireAll(key)

	level, ignore := o.classify(watchedDir{projectKey: key, role: wildcardDirRole}, fsnotify.Event{Name: "/repo/proj/src/index.ts", Op: fsnotify.Write})
	if ignore {
		t.Fatal("expected an edit to an existing input to not be ignored")
	}
	if level != invalidate.None {
		t.Errorf("level = %v, want None", level)
	}
}

func TestRewireAllWatchesExplicitInputFileDir(t *testing.T) {
	fsys, paths, key, _ := setupFilesProject(t)
	o := newTestOrchestrator(t, fsys, paths)

	o.RewireAll(key)

	if dirs := o.projectInputDirs[key]; len(dirs) != 1 || dirs[0] != "/repo/proj/src" {
		t.Errorf("projectInputDirs = %v, want [/repo/proj/src]", dirs)
	}
	if files := o.projectInputFiles[key]; len(files) != 1 || files[0] != "/repo/proj/src/index.ts" {
		t.Errorf("projectInputFiles = %v, want [/repo/proj/src/index.ts]", files)
	}
	if o.dirRefCount["/repo/proj/src"] != 1 {
		t.Errorf("dirRefCount[/repo/proj/src] = %d, want 1", o.dirRefCount["/repo/proj/src"])
	}
}

func TestClassifyInputFileWriteIsNoneLevel(t *testing.T) {
	fsys, paths, key, _ := setupFilesProject(t)
	o := newTestOrchestrator(t, fsys, paths)
	o.RewireAll(key)

	level, ignore := o.classify(watchedDir{projectKey: key, role: inputFileRole}, fsnotify.Event{Name: "/repo/proj/src/index.ts", Op: fsnotify.Write})
	if ignore {
		t.Fatal("expected an edit to a known explicit input file to not be ignored")
	}
	if level != invalidate.None {
		t.Errorf("level = %v, want None", level)
	}
}

func TestClassifyIgnoresUnrelatedFileInInputFileDir(t *testing.T) {
	fsys, paths, key, _ := setupFilesProject(t)
	o := newTestOrchestrator(t, fsys, paths)
	o.RewireAll(key)

	_, ignore := o.classify(watchedDir{projectKey: key, role: inputFileRole}, fsnotify.Event{Name: "/repo/proj/src/unrelated.ts", Op: fsnotify.Write})
	if !ignore {
		t.Error("expected a write to an untracked file in the same directory to be ignored")
	}
}

func TestClassifyIgnoresOutputPath(t *testing.T) {
	fsys, paths, key, _ := setupProject(t, []string{"src/**/*.ts"}, "dist")
	o := newTestOrchestrator(t, fsys, paths)
	o.RewireAll(key)

	_, ignore := o.classify(watchedDir{projectKey: key, role: wildcardDirRole}, fsnotify.Event{Name: "/repo/proj/dist/src/index.js", Op: fsnotify.Create})
	if !ignore {
		t.Error("expected a generated output path to be ignored")
	}
}
