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

package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"projectbuild.dev/tsbuild/driver"
	"projectbuild.dev/tsbuild/internal/mapfs"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupSingleProject(fsys *mapfs.MapFileSystem) {
	fsys.AddFile("/repo/proj/tsbuild.json", `{
		"files": ["src/index.ts"],
		"compilerOptions": {"outDir": "dist", "declaration": true}
	}`, 0o644)
	fsys.AddFile("/repo/proj/src/index.ts", "export const x = 1\n", 0o644)
}

func TestStateBuildRunsToSuccess(t *testing.T) {
	fsys := mapfs.New()
	setupSingleProject(fsys)
	s := newState(fsys, driver.Options{}, discardLog())

	exit, err := s.Build(context.Background(), []string{"/repo/proj"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exit != driver.Success {
		t.Fatalf("exit = %v, want Success", exit)
	}
	if !fsys.Exists("/repo/proj/dist/src/index.js") {
		t.Error("expected output to exist after build")
	}
	if s.Failed() {
		t.Error("Failed() should be false after a clean build")
	}
}

func TestStateCleanRemovesOutputs(t *testing.T) {
	fsys := mapfs.New()
	setupSingleProject(fsys)
	s := newState(fsys, driver.Options{}, discardLog())

	if _, err := s.Build(context.Background(), []string{"/repo/proj"}); err != nil {
		t.Fatalf("build: unexpected error: %v", err)
	}
	if !fsys.Exists("/repo/proj/dist/src/index.js") {
		t.Fatal("expected output to exist before clean")
	}

	if err := s.Clean([]string{"/repo/proj"}); err != nil {
		t.Fatalf("clean: unexpected error: %v", err)
	}
	if fsys.Exists("/repo/proj/dist/src/index.js") {
		t.Error("expected output to be removed after clean")
	}
	if fsys.Exists("/repo/proj/dist/src/index.d.ts") {
		t.Error("expected declaration output to be removed after clean")
	}
	// The source file and config are not outputs and must survive.
	if !fsys.Exists("/repo/proj/src/index.ts") {
		t.Error("clean must not remove source inputs")
	}
}

func TestStateWatchExitsPromptlyOnCancel(t *testing.T) {
	fsys := mapfs.New()
	setupSingleProject(fsys)
	s := newState(fsys, driver.Options{}, discardLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, []string{"/repo/proj"}) }()

	// Give Watch time to perform its initial build and start watching
	// before asking it to stop.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned an error on cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after its context was canceled")
	}
}
