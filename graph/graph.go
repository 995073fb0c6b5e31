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

// Package graph computes the project build order: a three-color DFS over
// project references, leaves first, with cycle detection.
package graph

import (
	"fmt"
	"slices"
	"sync"

	"projectbuild.dev/tsbuild/config"
)

type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS path
	black              // fully processed
)

// Graph builds and memoizes the project build order by walking project
// references lazily through a config.PathCache. It also tracks, per
// project, which other projects reference it directly, so the driver can
// propagate invalidation downstream without recomputing the whole order.
type Graph struct {
	paths *config.PathCache

	mu sync.Mutex

	// references maps a project's canonical key to the canonical keys of
	// the projects it references, discovered during the last BuildOrder.
	references map[string][]string

	// dependents maps a project's canonical key to the canonical keys of
	// projects that reference it directly (the reverse of references).
	dependents map[string][]string

	order     []string
	orderKey  string // fingerprint of the root set the cached order was built for
	orderDone bool
}

// New creates a Graph Builder backed by paths.
func New(paths *config.PathCache) *Graph {
	return &Graph{
		paths:      paths,
		references: make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

// Invalidate clears the memoized build order. Called whenever a project's
// config cache entry is evicted by a Full reload.
func (g *Graph) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.order = nil
	g.orderDone = false
}

// Dependents returns the canonical keys of projects that directly reference
// project, as discovered by the most recent BuildOrder.
func (g *Graph) Dependents(project string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.dependents[project]...)
}

// TransitiveDependents returns every project that directly or indirectly
// references project, used to queue downstream rebuilds.
func (g *Graph) TransitiveDependents(project string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	visited := make(map[string]bool)
	queue := []string{project}
	var result []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependents[current] {
			if !visited[dep] {
				visited[dep] = true
				result = append(result, dep)
				queue = append(queue, dep)
			}
		}
	}
	slices.Sort(result)
	return result
}

// BuildOrder computes the build order rooted at roots: a three-color DFS
// post-order traversal of project references, leaves first. The result is
// memoized until Invalidate is called or a different root set is
// requested. Unresolvable references are treated as leaves rather than
// errors. A reference cycle produces a diagnostic unless the edge closing
// the cycle, or any reference on the current DFS path, is explicitly
// marked circular.
func (g *Graph) BuildOrder(roots []string) ([]string, []config.Diagnostic) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := fingerprint(roots)
	if g.orderDone && g.orderKey == key {
		return append([]string(nil), g.order...), nil
	}

	g.references = make(map[string][]string)
	g.dependents = make(map[string][]string)
	v := &visitor{
		graph: g,
		color: make(map[string]color),
	}
	for _, root := range roots {
		v.visit(root, false)
	}

	g.order = v.order
	g.orderKey = key
	g.orderDone = true

	return append([]string(nil), v.order...), v.diags
}

// BuildOrderFor recomputes the order restricted to project's transitive
// dependency closure. roots must be the same root set passed to the most
// recent BuildOrder call, so the full order and reference map are current.
// Returns an error if project isn't part of that order.
func (g *Graph) BuildOrderFor(roots []string, project string) ([]string, error) {
	full, _ := g.BuildOrder(roots)

	g.mu.Lock()
	defer g.mu.Unlock()

	if !slices.Contains(full, project) {
		return nil, fmt.Errorf("invalid project: %s", project)
	}

	closure := make(map[string]bool)
	queue := []string{project}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if closure[current] {
			continue
		}
		closure[current] = true
		queue = append(queue, g.references[current]...)
	}

	restricted := make([]string, 0, len(closure))
	for _, key := range full {
		if closure[key] {
			restricted = append(restricted, key)
		}
	}
	return restricted, nil
}

// visitor holds per-call DFS state; a Graph's memoized reference/dependent
// maps are rebuilt fresh on every BuildOrder call since references can
// change between builds.
type visitor struct {
	graph *Graph
	color map[string]color
	stack []string
	order []string
	diags []config.Diagnostic

	// circularDepth counts how many frames currently on stack were entered
	// via a reference explicitly marked circular. A back edge closing a
	// cycle is only diagnosed when this is zero and the closing edge itself
	// isn't marked circular: the spec's "path has already seen a reference
	// explicitly marked circular" suppression is path-wide, not limited to
	// the single edge that happens to land the back-edge hit.
	circularDepth int
}

func (v *visitor) visit(projectKey string, viaCircular bool) {
	switch v.color[projectKey] {
	case black:
		return
	case gray:
		if v.circularDepth == 0 {
			v.diags = append(v.diags, cycleDiagnostic(v.stack, projectKey))
		}
		return
	}

	v.color[projectKey] = gray
	v.stack = append(v.stack, projectKey)
	if viaCircular {
		v.circularDepth++
	}

	resolved := v.graph.paths.Resolve(projectKey)
	canonicalKey := v.graph.paths.Key(resolved)
	cfg, diag := v.graph.paths.Parse(canonicalKey, resolved)

	if diag != nil {
		// Unresolvable reference: treated as a leaf, not an error.
		v.finish(projectKey, viaCircular)
		return
	}

	refs := make([]string, 0, len(cfg.References))
	for _, ref := range cfg.References {
		refResolved := v.graph.paths.Resolve(ref.Path)
		refKey := v.graph.paths.Key(refResolved)
		refs = append(refs, refKey)

		v.graph.dependents[refKey] = appendUnique(v.graph.dependents[refKey], projectKey)

		switch v.color[refKey] {
		case gray:
			if !ref.Circular && v.circularDepth == 0 {
				v.diags = append(v.diags, cycleDiagnostic(v.stack, refKey))
			}
		case black:
			// already fully processed along another path
		default:
			v.visit(refKey, ref.Circular)
		}
	}
	v.graph.references[projectKey] = refs

	v.finish(projectKey, viaCircular)
}

func (v *visitor) finish(projectKey string, viaCircular bool) {
	v.color[projectKey] = black
	v.stack = v.stack[:len(v.stack)-1]
	v.order = append(v.order, projectKey)
	if viaCircular {
		v.circularDepth--
	}
}

func cycleDiagnostic(stack []string, closingKey string) config.Diagnostic {
	cycle := append(append([]string(nil), stack...), closingKey)
	return config.Diagnostic{
		File:    closingKey,
		Code:    "referenceCycle",
		Message: fmt.Sprintf("circular project reference: %v", cycle),
	}
}

func appendUnique(s []string, v string) []string {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}

func fingerprint(roots []string) string {
	sorted := append([]string(nil), roots...)
	slices.Sort(sorted)
	out := ""
	for _, r := range sorted {
		out += r + "\x00"
	}
	return out
}
