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
package config

import (
	"path"
	"strings"
	"sync"

	"projectbuild.dev/tsbuild/fs"
)

// Entry is a cached parse result: presence of Config (as opposed to
// Diagnostic) is what distinguishes a parsed project from a parse failure.
type Entry struct {
	Config     *ParsedConfig
	Diagnostic *Diagnostic
}

// Cache provides a caching interface for parsed project configuration files.
// This allows the Graph Builder and Up-to-Date Evaluator to share a single
// parse per project, even across repeated evaluations.
//
// Unlike a cache of values that can fail to load with a Go error, an Entry
// already carries its own failure mode (a non-nil Diagnostic in place of
// Config) — Parse never returns a Go error, a fatal config problem is just
// another Entry. GetOrLoad's loader therefore returns a bare *Entry, not
// (*Entry, error): there is no second failure channel to thread through the
// once-per-key coordination below.
type Cache interface {
	// Get retrieves a cached entry by its canonical key.
	Get(key string) (*Entry, bool)

	// Set stores a parsed entry in the cache, keyed by canonical key.
	Set(key string, entry *Entry)

	// Invalidate removes a cached entry, called on Full reload of that project.
	Invalidate(key string)

	// GetOrLoad atomically retrieves from cache or loads using the provided
	// function. Only one goroutine executes loader for a given key; the rest
	// block on the same in-flight load and observe its result.
	GetOrLoad(key string, loader func() *Entry) *Entry
}

// pendingLoad coordinates one in-flight GetOrLoad call per key: every
// goroutine that arrives while a load is running waits on the same once
// rather than calling loader again.
type pendingLoad struct {
	entry *Entry
	once  sync.Once
}

// MemoryCache is a thread-safe in-memory implementation of Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	cache   map[string]*Entry
	loading sync.Map // map[string]*pendingLoad for in-flight loads
}

// NewMemoryCache creates a new in-memory cache for parsed configs.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		cache: make(map[string]*Entry),
	}
}

// Get retrieves a cached entry by its canonical key.
func (c *MemoryCache) Get(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	return entry, ok
}

// Set stores a parsed entry in the cache.
func (c *MemoryCache) Set(key string, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = entry
}

// Invalidate removes a cached entry and any in-flight loading state.
// Evicted only on Full invalidation, never on a Partial reload.
func (c *MemoryCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.cache, key)
	c.mu.Unlock()
	c.loading.Delete(key)
}

// GetOrLoad atomically retrieves from cache or loads using the provided
// function. Only one goroutine runs loader for a given key; others block on
// the same pendingLoad and share its result, successful or not — an Entry
// holding a Diagnostic is cached exactly like one holding a Config, since
// both are valid, final outcomes of parsing key once.
func (c *MemoryCache) GetOrLoad(key string, loader func() *Entry) *Entry {
	c.mu.RLock()
	if entry, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return entry
	}
	c.mu.RUnlock()

	actual, _ := c.loading.LoadOrStore(key, &pendingLoad{})
	pending := actual.(*pendingLoad)

	pending.once.Do(func() {
		pending.entry = loader()
		c.mu.Lock()
		c.cache[key] = pending.entry
		c.mu.Unlock()
	})

	return pending.entry
}

// PathCache canonicalizes project names into resolved, absolute config file
// paths and canonical (optionally case-folded) lookup keys, and owns the
// Cache of parsed configs keyed by that canonical key. This is the "Path &
// Config Cache" component: resolution is memoized independently of
// parsing, and parsing is delegated to Parse and memoized in turn.
type PathCache struct {
	fsys fs.FileSystem

	// caseInsensitiveKeys mirrors a case-insensitive host file system: two
	// resolved names differing only in case share one canonical key.
	caseInsensitiveKeys bool

	mu       sync.RWMutex
	resolved map[string]string // name -> resolved absolute path
	keys     map[string]string // resolved absolute path -> canonical key
	byKey    map[string]string // canonical key -> resolved absolute path

	configs Cache
}

// NewPathCache creates a Path & Config Cache backed by fsys.
func NewPathCache(fsys fs.FileSystem, caseInsensitiveKeys bool) *PathCache {
	return &PathCache{
		fsys:                fsys,
		caseInsensitiveKeys: caseInsensitiveKeys,
		resolved:            make(map[string]string),
		keys:                make(map[string]string),
		byKey:               make(map[string]string),
		configs:             NewMemoryCache(),
	}
}

// Resolve appends the standard config file name when name doesn't already
// name one, and memoizes the mapping from the name as given to the resolved
// absolute path.
func (pc *PathCache) Resolve(name string) string {
	pc.mu.RLock()
	if r, ok := pc.resolved[name]; ok {
		pc.mu.RUnlock()
		return r
	}
	pc.mu.RUnlock()

	resolved := resolveConfigPath(name)

	pc.mu.Lock()
	pc.resolved[name] = resolved
	pc.mu.Unlock()

	return resolved
}

// Key returns the canonical lookup key for a resolved name, case-folding it
// first if the host file system is case-insensitive.
func (pc *PathCache) Key(resolvedName string) string {
	pc.mu.RLock()
	if k, ok := pc.keys[resolvedName]; ok {
		pc.mu.RUnlock()
		return k
	}
	pc.mu.RUnlock()

	key := resolvedName
	if pc.caseInsensitiveKeys {
		key = strings.ToLower(key)
	}

	pc.mu.Lock()
	pc.keys[resolvedName] = key
	pc.byKey[key] = resolvedName
	pc.mu.Unlock()

	return key
}

// ResolvedPath returns the resolved absolute path most recently associated
// with canonical key via Key, so callers that only have a key (e.g. a
// project build order entry) can look up the resolved name Parse needs on
// a cache miss.
func (pc *PathCache) ResolvedPath(key string) (string, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	resolved, ok := pc.byKey[key]
	return resolved, ok
}

// Parse returns the parsed config (or fatal diagnostic) for the project
// identified by key, parsing and caching it on first access.
func (pc *PathCache) Parse(key, resolvedName string) (*ParsedConfig, *Diagnostic) {
	entry := pc.configs.GetOrLoad(key, func() *Entry {
		cfg, diag := Parse(pc.fsys, resolvedName)
		return &Entry{Config: cfg, Diagnostic: diag}
	})
	return entry.Config, entry.Diagnostic
}

// Invalidate evicts the cached parse for key. Called on Full reload.
func (pc *PathCache) Invalidate(key string) {
	pc.configs.Invalidate(key)
}

func resolveConfigPath(name string) string {
	if strings.HasSuffix(name, ".json") {
		return path.Clean(name)
	}
	return path.Join(name, DefaultConfigFileName)
}
