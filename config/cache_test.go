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
package config_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"projectbuild.dev/tsbuild/config"
	"projectbuild.dev/tsbuild/internal/mapfs"
)

func TestMemoryCacheGet(t *testing.T) {
	cache := config.NewMemoryCache()

	entry, ok := cache.Get("/nonexistent/tsbuild.json")
	if ok {
		t.Error("Expected cache miss for nonexistent path")
	}
	if entry != nil {
		t.Error("Expected nil entry for cache miss")
	}
}

func TestMemoryCacheSet(t *testing.T) {
	cache := config.NewMemoryCache()

	entry := &config.Entry{Config: &config.ParsedConfig{ConfigFilePath: "/a/tsbuild.json"}}
	cache.Set("/a/tsbuild.json", entry)

	got, ok := cache.Get("/a/tsbuild.json")
	if !ok {
		t.Error("Expected cache hit after Set")
	}
	if got.Config.ConfigFilePath != "/a/tsbuild.json" {
		t.Errorf("Expected ConfigFilePath '/a/tsbuild.json', got %q", got.Config.ConfigFilePath)
	}
}

func TestMemoryCacheInvalidate(t *testing.T) {
	cache := config.NewMemoryCache()

	cache.Set("/a/tsbuild.json", &config.Entry{Config: &config.ParsedConfig{}})
	if _, ok := cache.Get("/a/tsbuild.json"); !ok {
		t.Fatal("Expected cache hit before invalidation")
	}

	cache.Invalidate("/a/tsbuild.json")

	if _, ok := cache.Get("/a/tsbuild.json"); ok {
		t.Error("Expected cache miss after invalidation")
	}
}

func TestMemoryCacheInvalidateNonexistent(t *testing.T) {
	cache := config.NewMemoryCache()
	cache.Invalidate("/nonexistent/tsbuild.json")
}

func TestMemoryCacheConcurrency(t *testing.T) {
	cache := config.NewMemoryCache()

	done := make(chan bool)
	for range 100 {
		go func() {
			key := "/a/tsbuild.json"
			cache.Set(key, &config.Entry{Config: &config.ParsedConfig{}})
			cache.Get(key)
			cache.Invalidate(key)
			done <- true
		}()
	}

	for range 100 {
		<-done
	}
}

func TestCacheInterface(t *testing.T) {
	var _ config.Cache = (*config.MemoryCache)(nil)
}

func TestMemoryCacheGetOrLoad(t *testing.T) {
	cache := config.NewMemoryCache()

	var loadCount atomic.Int32
	loader := func() *config.Entry {
		loadCount.Add(1)
		return &config.Entry{Config: &config.ParsedConfig{ConfigFilePath: "loaded"}}
	}

	entry := cache.GetOrLoad("/a/tsbuild.json", loader)
	if entry.Config.ConfigFilePath != "loaded" {
		t.Errorf("Expected 'loaded', got %q", entry.Config.ConfigFilePath)
	}
	if loadCount.Load() != 1 {
		t.Errorf("Expected loader to be called once, called %d times", loadCount.Load())
	}

	entry = cache.GetOrLoad("/a/tsbuild.json", loader)
	if entry.Config.ConfigFilePath != "loaded" {
		t.Errorf("Expected 'loaded', got %q", entry.Config.ConfigFilePath)
	}
	if loadCount.Load() != 1 {
		t.Errorf("Expected loader to still be called once, called %d times", loadCount.Load())
	}
}

func TestMemoryCacheGetOrLoadConcurrent(t *testing.T) {
	cache := config.NewMemoryCache()

	var loadCount atomic.Int32
	loader := func() *config.Entry {
		loadCount.Add(1)
		return &config.Entry{Config: &config.ParsedConfig{ConfigFilePath: "loaded"}}
	}

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.GetOrLoad("/same/tsbuild.json", loader)
		}()
	}
	wg.Wait()

	if loadCount.Load() != 1 {
		t.Errorf("Expected loader to be called exactly once, called %d times", loadCount.Load())
	}
}

func TestMemoryCacheInvalidateAllowsReload(t *testing.T) {
	cache := config.NewMemoryCache()

	var loadCount atomic.Int32
	loader := func() *config.Entry {
		n := loadCount.Add(1)
		version := "1"
		if n > 1 {
			version = "2"
		}
		return &config.Entry{Config: &config.ParsedConfig{ConfigFilePath: version}}
	}

	entry := cache.GetOrLoad("/a/tsbuild.json", loader)
	if entry.Config.ConfigFilePath != "1" {
		t.Errorf("Expected '1', got %q", entry.Config.ConfigFilePath)
	}

	cache.Invalidate("/a/tsbuild.json")

	entry = cache.GetOrLoad("/a/tsbuild.json", loader)
	if entry.Config.ConfigFilePath != "2" {
		t.Errorf("Expected '2' after invalidate, got %q", entry.Config.ConfigFilePath)
	}
	if loadCount.Load() != 2 {
		t.Errorf("Expected 2 loads after invalidate, got %d", loadCount.Load())
	}
}

func TestPathCacheResolveAppendsDefaultConfigName(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/pkg/tsbuild.json", `{"compilerOptions":{"composite":true}}`, 0o644)
	pc := config.NewPathCache(fsys, false)

	if got := pc.Resolve("/repo/pkg"); got != "/repo/pkg/tsbuild.json" {
		t.Errorf("Resolve(dir) = %q, want /repo/pkg/tsbuild.json", got)
	}
	if got := pc.Resolve("/repo/pkg/tsbuild.json"); got != "/repo/pkg/tsbuild.json" {
		t.Errorf("Resolve(file) = %q, want /repo/pkg/tsbuild.json", got)
	}
}

func TestPathCacheKeyCaseFolding(t *testing.T) {
	fsys := mapfs.New()
	insensitive := config.NewPathCache(fsys, true)
	sensitive := config.NewPathCache(fsys, false)

	if got := insensitive.Key("/Repo/Pkg/tsbuild.json"); got != "/repo/pkg/tsbuild.json" {
		t.Errorf("case-insensitive Key = %q, want folded", got)
	}
	if got := sensitive.Key("/Repo/Pkg/tsbuild.json"); got != "/Repo/Pkg/tsbuild.json" {
		t.Errorf("case-sensitive Key = %q, want unfolded", got)
	}
}

func TestPathCacheParseCachesAndInvalidates(t *testing.T) {
	fsys := mapfs.New()
	fsys.AddFile("/repo/pkg/tsbuild.json", `{"compilerOptions":{"composite":true}}`, 0o644)
	pc := config.NewPathCache(fsys, false)

	resolved := pc.Resolve("/repo/pkg")
	key := pc.Key(resolved)

	cfg, diag := pc.Parse(key, resolved)
	if diag != nil {
		t.Fatalf("unexpected diagnostic: %v", diag)
	}
	if !cfg.IsComposite() {
		t.Error("expected composite project")
	}

	fsys.AddFile("/repo/pkg/tsbuild.json", `{"compilerOptions":{}}`, 0o644)
	cfg, diag = pc.Parse(key, resolved)
	if diag != nil {
		t.Fatalf("unexpected diagnostic: %v", diag)
	}
	if !cfg.IsComposite() {
		t.Error("expected cached composite project before invalidation")
	}

	pc.Invalidate(key)
	cfg, diag = pc.Parse(key, resolved)
	if diag != nil {
		t.Fatalf("unexpected diagnostic: %v", diag)
	}
	if cfg.IsComposite() {
		t.Error("expected fresh parse to reflect non-composite project after invalidation")
	}
}

func TestPathCacheParseMissingFileIsDiagnostic(t *testing.T) {
	fsys := mapfs.New()
	pc := config.NewPathCache(fsys, false)

	resolved := pc.Resolve("/repo/missing")
	key := pc.Key(resolved)

	cfg, diag := pc.Parse(key, resolved)
	if cfg != nil {
		t.Error("expected nil config for missing file")
	}
	if diag == nil {
		t.Fatal("expected diagnostic for missing file")
	}
	if diag.Code != "fileNotFound" {
		t.Errorf("diag.Code = %q, want fileNotFound", diag.Code)
	}
}
