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
package status_test

import (
	"testing"
	"time"

	"projectbuild.dev/tsbuild/config"
	"projectbuild.dev/tsbuild/internal/mapfs"
	"projectbuild.dev/tsbuild/status"
)

func newProject(t *testing.T, fsys *mapfs.MapFileSystem, paths *config.PathCache, dir string) (key, resolved string) {
	t.Helper()
	resolved = paths.Resolve(dir)
	key = paths.Key(resolved)
	return key, resolved
}

func TestEvaluateUnbuildableOnMissingInput(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/a/tsbuild.json", `{"files":["a.ts"]}`, 0o644)
	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/a")
	s := eval.Evaluate(key, resolved)
	if s.Kind != status.Unbuildable {
		t.Fatalf("Kind = %v, want Unbuildable", s.Kind)
	}
}

func TestEvaluateContainerOnly(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/a/tsbuild.json", `{"references":["../b"]}`, 0o644)
	fsys.AddFile("/repo/b/tsbuild.json", `{"files":["b.ts"]}`, 0o644)
	fsys.AddFile("/repo/b/b.ts", "export const b = 1;", 0o644)
	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/a")
	s := eval.Evaluate(key, resolved)
	if s.Kind != status.ContainerOnly {
		t.Fatalf("Kind = %v, want ContainerOnly", s.Kind)
	}
}

func TestEvaluateUpToDateNoOutputsDeclared(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/a/tsbuild.json", `{"files":["a.ts"],"compilerOptions":{"noEmit":true}}`, 0o644)
	fsys.AddFile("/repo/a/a.ts", "export const a = 1;", 0o644)
	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/a")
	s := eval.Evaluate(key, resolved)
	if s.Kind != status.UpToDate {
		t.Fatalf("Kind = %v, want UpToDate", s.Kind)
	}
}

func TestEvaluateOutputMissing(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/a/tsbuild.json", `{"files":["a.ts"],"compilerOptions":{"outDir":"dist"}}`, 0o644)
	fsys.AddFile("/repo/a/a.ts", "export const a = 1;", 0o644)
	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/a")
	s := eval.Evaluate(key, resolved)
	if s.Kind != status.OutputMissing {
		t.Fatalf("Kind = %v, want OutputMissing", s.Kind)
	}
}

func TestEvaluateOutOfDateWithSelfWhenInputNewerThanOutput(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/a/tsbuild.json", `{"files":["a.ts"],"compilerOptions":{"outDir":"dist"}}`, 0o644)
	fsys.AddFile("/repo/a/a.ts", "export const a = 1;", 0o644)
	fsys.AddFile("/repo/a/dist/a.js", "export const a = 1;", 0o644)
	fsys.Touch("/repo/a/dist/a.js", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	fsys.Touch("/repo/a/a.ts", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/a")
	s := eval.Evaluate(key, resolved)
	if s.Kind != status.OutOfDateWithSelf {
		t.Fatalf("Kind = %v, want OutOfDateWithSelf", s.Kind)
	}
}

func TestEvaluateUpToDateWhenOutputNewerThanInput(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/a/tsbuild.json", `{"files":["a.ts"],"compilerOptions":{"outDir":"dist"}}`, 0o644)
	fsys.AddFile("/repo/a/a.ts", "export const a = 1;", 0o644)
	fsys.Touch("/repo/a/a.ts", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/a/dist/a.js", "export const a = 1;", 0o644)
	fsys.Touch("/repo/a/dist/a.js", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/a")
	s := eval.Evaluate(key, resolved)
	if s.Kind != status.UpToDate {
		t.Fatalf("Kind = %v, want UpToDate", s.Kind)
	}
}

func TestEvaluateUpstreamBlocked(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/b/tsbuild.json", `{"files":["missing-input.ts"]}`, 0o644)
	fsys.AddFile("/repo/a/tsbuild.json", `{"files":["a.ts"],"references":["../b"],"compilerOptions":{"outDir":"dist"}}`, 0o644)
	fsys.AddFile("/repo/a/a.ts", "export const a = 1;", 0o644)
	fsys.Touch("/repo/a/a.ts", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/a/dist/a.js", "export const a = 1;", 0o644)
	fsys.Touch("/repo/a/dist/a.js", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/a")
	s := eval.Evaluate(key, resolved)
	if s.Kind != status.UpstreamBlocked {
		t.Fatalf("Kind = %v, want UpstreamBlocked", s.Kind)
	}
}

func TestEvaluateOutOfDateWithUpstreamWhenUpstreamInputsNewer(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/b/tsbuild.json", `{"files":["b.ts"],"compilerOptions":{"composite":true,"outDir":"dist"}}`, 0o644)
	fsys.AddFile("/repo/b/b.ts", "export const b = 1;", 0o644)
	fsys.Touch("/repo/b/b.ts", time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/b/dist/b.js", "export const b = 1;", 0o644)
	fsys.Touch("/repo/b/dist/b.js", time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC))
	// b is composite, so it emits declarations too; make the .d.ts content
	// itself look changed (after a's oldest output) so a sees a real
	// upstream type change rather than a pseudo-up-to-date one.
	fsys.AddFile("/repo/b/dist/b.d.ts", "export declare const b: number;", 0o644)
	fsys.Touch("/repo/b/dist/b.d.ts", time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC))

	fsys.AddFile("/repo/a/tsbuild.json", `{"files":["a.ts"],"references":["../b"],"compilerOptions":{"outDir":"dist"}}`, 0o644)
	fsys.AddFile("/repo/a/a.ts", "export const a = 1;", 0o644)
	fsys.Touch("/repo/a/a.ts", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/a/dist/a.js", "export const a = 1;", 0o644)
	fsys.Touch("/repo/a/dist/a.js", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/a")
	s := eval.Evaluate(key, resolved)
	if s.Kind != status.OutOfDateWithUpstream {
		t.Fatalf("Kind = %v, want OutOfDateWithUpstream", s.Kind)
	}
}

func TestEvaluatePseudoUpToDateWithUpstreamTypes(t *testing.T) {
	fsys := mapfs.New()
	// Upstream's inputs changed after our output, but its declaration
	// output did not, so downstream should only need a timestamp bump.
	fsys.AddFile("/repo/b/tsbuild.json", `{"files":["b.ts"],"compilerOptions":{"composite":true,"declaration":true,"outDir":"dist"}}`, 0o644)
	fsys.AddFile("/repo/b/b.ts", "export const b = 1;", 0o644)
	fsys.Touch("/repo/b/b.ts", time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/b/dist/b.js", "export const b = 1;", 0o644)
	fsys.Touch("/repo/b/dist/b.js", time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/b/dist/b.d.ts", "export declare const b: number;", 0o644)
	fsys.Touch("/repo/b/dist/b.d.ts", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	fsys.AddFile("/repo/a/tsbuild.json", `{"files":["a.ts"],"references":["../b"],"compilerOptions":{"outDir":"dist"}}`, 0o644)
	fsys.AddFile("/repo/a/a.ts", "export const a = 1;", 0o644)
	fsys.Touch("/repo/a/a.ts", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/a/dist/a.js", "export const a = 1;", 0o644)
	fsys.Touch("/repo/a/dist/a.js", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/a")
	s := eval.Evaluate(key, resolved)
	if s.Kind != status.UpToDateWithUpstreamTypes {
		t.Fatalf("Kind = %v, want UpToDateWithUpstreamTypes", s.Kind)
	}
}

func TestEvaluatePrependUpstreamYieldsOutOfDateWithPrepend(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/b/tsbuild.json", `{"files":["b.ts"],"compilerOptions":{"composite":true,"declaration":true,"outDir":"dist"}}`, 0o644)
	fsys.AddFile("/repo/b/b.ts", "export const b = 1;", 0o644)
	fsys.Touch("/repo/b/b.ts", time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/b/dist/b.js", "export const b = 1;", 0o644)
	fsys.Touch("/repo/b/dist/b.js", time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/b/dist/b.d.ts", "export declare const b: number;", 0o644)
	fsys.Touch("/repo/b/dist/b.d.ts", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	fsys.AddFile("/repo/a/tsbuild.json", `{"files":["a.ts"],"references":[{"path":"../b","prepend":true}],"compilerOptions":{"outDir":"dist"}}`, 0o644)
	fsys.AddFile("/repo/a/a.ts", "export const a = 1;", 0o644)
	fsys.Touch("/repo/a/a.ts", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/a/dist/a.js", "export const a = 1;", 0o644)
	fsys.Touch("/repo/a/dist/a.js", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/a")
	s := eval.Evaluate(key, resolved)
	if s.Kind != status.OutOfDateWithPrepend {
		t.Fatalf("Kind = %v, want OutOfDateWithPrepend", s.Kind)
	}
}

func TestEvaluateCycleDoesNotInfiniteLoop(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/a/tsbuild.json", `{"files":["a.ts"],"references":["../b"]}`, 0o644)
	fsys.AddFile("/repo/a/a.ts", "export const a = 1;", 0o644)
	fsys.AddFile("/repo/b/tsbuild.json", `{"files":["b.ts"],"references":["../a"]}`, 0o644)
	fsys.AddFile("/repo/b/b.ts", "export const b = 1;", 0o644)

	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/a")
	s := eval.Evaluate(key, resolved)
	if s.Kind == status.ComputingUpstream {
		t.Fatal("ComputingUpstream must never be observable outside the evaluator")
	}
}

func TestEvaluateBuildInfoVersionMismatch(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/a/tsbuild.json", `{"files":["a.ts"],"compilerOptions":{"composite":true,"outDir":"dist"}}`, 0o644)
	fsys.AddFile("/repo/a/a.ts", "export const a = 1;", 0o644)
	fsys.Touch("/repo/a/a.ts", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/a/dist/a.js", "export const a = 1;", 0o644)
	fsys.Touch("/repo/a/dist/a.js", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/a/dist/a.d.ts", "export declare const a: number;", 0o644)
	fsys.Touch("/repo/a/dist/a.d.ts", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/a/dist/tsbuild.json.tsbuildinfo", `{"version":"0.9.0"}`, 0o644)

	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/a")
	s := eval.Evaluate(key, resolved)
	if s.Kind != status.TsVersionOutputOfDate {
		t.Fatalf("Kind = %v, want TsVersionOutputOfDate", s.Kind)
	}
	if s.RecordedVersion != "0.9.0" {
		t.Errorf("RecordedVersion = %q, want 0.9.0", s.RecordedVersion)
	}
}

func TestForceDeclChangedSetsMaximumDateOnNextEvaluate(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/b/tsbuild.json", `{"files":["b.ts"],"compilerOptions":{"outDir":"dist"}}`, 0o644)
	fsys.AddFile("/repo/b/b.ts", "export const b = 1;", 0o644)
	fsys.Touch("/repo/b/b.ts", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	fsys.AddFile("/repo/b/dist/b.js", "export const b = 1;", 0o644)
	fsys.Touch("/repo/b/dist/b.js", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/b")

	first := eval.Evaluate(key, resolved)
	if first.Kind != status.UpToDate {
		t.Fatalf("Kind = %v, want UpToDate before forcing", first.Kind)
	}
	if !first.NewestDeclContentChangedTime.Equal(status.MinimumDate) {
		t.Errorf("NewestDeclContentChangedTime = %v, want MinimumDate (no declaration output)", first.NewestDeclContentChangedTime)
	}

	// Signal a declaration content change without advancing the clock at
	// all, reproducing the same-pass build/evaluate race a simulated clock
	// that only moves on explicit request can hit.
	eval.ForceDeclChanged(key)
	eval.Invalidate(key)

	second := eval.Evaluate(key, resolved)
	if second.Kind != status.UpToDate {
		t.Fatalf("Kind = %v, want UpToDate after forcing", second.Kind)
	}
	if !second.NewestDeclContentChangedTime.Equal(status.MaximumDate) {
		t.Errorf("NewestDeclContentChangedTime = %v, want MaximumDate after ForceDeclChanged", second.NewestDeclContentChangedTime)
	}
}

func TestEvaluateIsMemoized(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/a/tsbuild.json", `{"files":["a.ts"],"compilerOptions":{"noEmit":true}}`, 0o644)
	fsys.AddFile("/repo/a/a.ts", "export const a = 1;", 0o644)
	paths := config.NewPathCache(fsys, false)
	eval := status.New(fsys, paths, "1.0.0")

	key, resolved := newProject(t, fsys, paths, "/repo/a")
	first := eval.Evaluate(key, resolved)

	fsys.AddFile("/repo/a/tsbuild.json", `{"files":["a.ts","missing.ts"]}`, 0o644)
	second := eval.Evaluate(key, resolved)
	if second.Kind != first.Kind {
		t.Errorf("expected memoized status unchanged: %v vs %v", first.Kind, second.Kind)
	}

	eval.Invalidate(key)
	paths.Invalidate(key)
	third := eval.Evaluate(key, resolved)
	if third.Kind != status.Unbuildable {
		t.Errorf("expected fresh evaluation after invalidate to see missing.ts, got %v", third.Kind)
	}
}
