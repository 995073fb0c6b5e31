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

package driver

import (
	"io/fs"
	"sync"
	"time"

	tsfs "projectbuild.dev/tsbuild/fs"
)

// CachingFileSystem wraps a FileSystem with a scoped read cache, shared by
// every component the engine wires to the same instance (path cache,
// evaluator, compiler). Driver.Build brackets its run with Enable/Disable;
// outside that window every call passes straight through. Every access to
// the cache maps is guarded by a mutex.
type CachingFileSystem struct {
	inner tsfs.FileSystem

	mu      sync.Mutex
	enabled bool
	content map[string][]byte
	exists  map[string]bool
	isDir   map[string]bool
}

// NewCachingFileSystem wraps inner. The cache starts disabled.
func NewCachingFileSystem(inner tsfs.FileSystem) *CachingFileSystem {
	return &CachingFileSystem{inner: inner}
}

// Enable turns on caching. Calling it while already enabled is a no-op, so
// callers don't need to track whether a previous Disable happened.
func (c *CachingFileSystem) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		return
	}
	c.enabled = true
	c.content = make(map[string][]byte)
	c.exists = make(map[string]bool)
	c.isDir = make(map[string]bool)
}

// Disable turns off caching and discards everything cached, so a later
// Enable starts from a clean slate.
func (c *CachingFileSystem) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
	c.content = nil
	c.exists = nil
	c.isDir = nil
}

func (c *CachingFileSystem) invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	delete(c.content, name)
	delete(c.exists, name)
	delete(c.isDir, name)
}

func (c *CachingFileSystem) ReadFile(name string) ([]byte, error) {
	c.mu.Lock()
	if c.enabled {
		if data, ok := c.content[name]; ok {
			c.mu.Unlock()
			return data, nil
		}
	}
	c.mu.Unlock()

	data, err := c.inner.ReadFile(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.enabled {
		c.content[name] = data
		c.exists[name] = true
	}
	c.mu.Unlock()
	return data, nil
}

func (c *CachingFileSystem) Exists(path string) bool {
	c.mu.Lock()
	if c.enabled {
		if v, ok := c.exists[path]; ok {
			c.mu.Unlock()
			return v
		}
	}
	c.mu.Unlock()

	v := c.inner.Exists(path)
	c.mu.Lock()
	if c.enabled {
		c.exists[path] = v
	}
	c.mu.Unlock()
	return v
}

func (c *CachingFileSystem) IsDir(path string) bool {
	c.mu.Lock()
	if c.enabled {
		if v, ok := c.isDir[path]; ok {
			c.mu.Unlock()
			return v
		}
	}
	c.mu.Unlock()

	v := c.inner.IsDir(path)
	c.mu.Lock()
	if c.enabled {
		c.isDir[path] = v
	}
	c.mu.Unlock()
	return v
}

func (c *CachingFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	err := c.inner.WriteFile(name, data, perm)
	if err == nil {
		c.invalidate(name)
	}
	return err
}

func (c *CachingFileSystem) Remove(name string) error {
	err := c.inner.Remove(name)
	c.invalidate(name)
	return err
}

func (c *CachingFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	err := c.inner.MkdirAll(path, perm)
	c.invalidate(path)
	return err
}

func (c *CachingFileSystem) Chtimes(name string, atime, mtime time.Time) error {
	err := c.inner.Chtimes(name, atime, mtime)
	c.invalidate(name)
	return err
}

func (c *CachingFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	return c.inner.ReadDir(name)
}

func (c *CachingFileSystem) TempDir() string {
	return c.inner.TempDir()
}

func (c *CachingFileSystem) Stat(name string) (fs.FileInfo, error) {
	return c.inner.Stat(name)
}

func (c *CachingFileSystem) Open(name string) (fs.File, error) {
	return c.inner.Open(name)
}
