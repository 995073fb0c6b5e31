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
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"projectbuild.dev/tsbuild/fs"
)

// wildcardScanLimit bounds how many include-pattern roots are globbed
// concurrently, the errgroup equivalent of the sem := make(chan
// struct{}, N) pattern used elsewhere in this codebase's ancestry for
// fanning out over a package's dependencies.
const wildcardScanLimit = 4

// ResolvedInputs is the result of expanding a project's Files/Include/Exclude
// lists against the file system: the effective input file set plus every
// directory a wildcard was rooted under, so the watcher knows what to watch
// for new-file creation by the watch orchestrator.
type ResolvedInputs struct {
	Files         []string
	WildcardDirs  []string
	RequireInputs bool
}

// ExpandInputs computes the effective input file set for cfg: the explicit
// Files list plus every file under the project's directory matching Include
// and not matching Exclude, using doublestar glob syntax. Results are sorted
// for determinism.
func ExpandInputs(fsys fs.FileSystem, cfg *ParsedConfig) (*ResolvedInputs, error) {
	result := &ResolvedInputs{
		Files:         append([]string(nil), cfg.Files...),
		RequireInputs: cfg.RequireInputs,
	}

	if len(cfg.Include) == 0 {
		sort.Strings(result.Files)
		return result, nil
	}

	dir := path.Dir(cfg.ConfigFilePath)
	roots := wildcardRoots(dir, cfg.Include)
	result.WildcardDirs = roots

	matchesByRoot, err := scanWildcardRoots(fsys, roots)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(result.Files))
	for _, f := range result.Files {
		seen[f] = true
	}

	for _, matches := range matchesByRoot {
		for _, m := range matches {
			abs := "/" + strings.TrimPrefix(m, "/")
			if fsys.IsDir(abs) {
				continue
			}
			if !matchesAny(abs, dir, cfg.Include) {
				continue
			}
			if matchesAny(abs, dir, cfg.Exclude) {
				continue
			}
			if !seen[abs] {
				seen[abs] = true
				result.Files = append(result.Files, abs)
			}
		}
	}

	sort.Strings(result.Files)
	return result, nil
}

// scanWildcardRoots globs dir/**/* under each of roots, up to
// wildcardScanLimit directories at a time. Each goroutine writes only to
// its own slot in matchesByRoot, so the results need no further locking
// once errgroup.Wait returns.
func scanWildcardRoots(fsys fs.FileSystem, roots []string) ([][]string, error) {
	matchesByRoot := make([][]string, len(roots))

	g := new(errgroup.Group)
	g.SetLimit(wildcardScanLimit)
	for i, root := range roots {
		g.Go(func() error {
			matches, err := doublestar.Glob(asFS(fsys), strings.TrimPrefix(root, "/")+"/**/*")
			if err != nil {
				return err
			}
			matchesByRoot[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return matchesByRoot, nil
}

func matchesAny(absPath, baseDir string, patterns []string) bool {
	rel := strings.TrimPrefix(strings.TrimPrefix(absPath, baseDir), "/")
	for _, pat := range patterns {
		ok, err := doublestar.Match(pat, rel)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// wildcardRoots finds, for each include pattern, the fixed (non-glob)
// prefix directory it's rooted under, relative to the project's own
// directory, deduplicated and sorted so two patterns sharing a root (e.g.
// "src/**/*.ts" and "src/**/*.tsx") only ever get scanned once.
func wildcardRoots(dir string, includes []string) []string {
	seen := make(map[string]bool, len(includes))
	var roots []string
	for _, pat := range includes {
		fixed := dir
		for _, seg := range strings.Split(pat, "/") {
			if strings.ContainsAny(seg, "*?[{") {
				break
			}
			fixed = path.Join(fixed, seg)
		}
		if !seen[fixed] {
			seen[fixed] = true
			roots = append(roots, fixed)
		}
	}
	sort.Strings(roots)
	return roots
}

// asFS adapts a fs.FileSystem to doublestar's fs.FS requirement. Our
// FileSystem interface already embeds Open, ReadDir, and Stat with the
// signatures doublestar.GlobFS/ReadDirFS/StatFS expect.
func asFS(fsys fs.FileSystem) doublestarFS {
	return doublestarFS{fsys}
}

type doublestarFS struct {
	fs.FileSystem
}
