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
package status

import (
	"encoding/json"
	"sync"

	"projectbuild.dev/tsbuild/config"
	"projectbuild.dev/tsbuild/fs"
)

// Evaluator computes and memoizes the up-to-date Status of every project it
// is asked about, recursing into upstream references through the same
// memo so repeated evaluation within one build is O(projects), not
// O(projects × references).
type Evaluator struct {
	fsys    fs.FileSystem
	paths   *config.PathCache
	version string

	mu              sync.Mutex
	statuses        map[string]*Status
	forcedDeclDirty map[string]bool
}

// New creates an Evaluator. version is the engine's own compiler version,
// compared against each project's persisted build-info.
func New(fsys fs.FileSystem, paths *config.PathCache, version string) *Evaluator {
	return &Evaluator{
		fsys:            fsys,
		paths:           paths,
		version:         version,
		statuses:        make(map[string]*Status),
		forcedDeclDirty: make(map[string]bool),
	}
}

// Get returns the memoized status for key without evaluating, if any.
func (e *Evaluator) Get(key string) (*Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.statuses[key]
	if ok && s.Kind == ComputingUpstream {
		return nil, false
	}
	return s, ok
}

// Invalidate clears the memoized status for key, forcing the next
// Evaluate to recompute it.
func (e *Evaluator) Invalidate(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.statuses, key)
}

// ForceDeclChanged marks key's next Evaluate as having changed declaration
// content this build pass. A simulated clock that never advances except on
// explicit request can otherwise give an upstream's rewritten .d.ts and a
// same-pass downstream evaluation identical mtimes, making the rewrite
// invisible to the "upstream decl time After oldest output time" check
// below. The flag is consumed only by an evaluate() for key that reaches
// the up-to-date result (step 10); an evaluation that returns an earlier
// status leaves it set for the next one.
func (e *Evaluator) ForceDeclChanged(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forcedDeclDirty[key] = true
}

// Evaluate returns the up-to-date status of the project identified by key
// and resolvedName, using a cached entry if one exists.
func (e *Evaluator) Evaluate(key, resolvedName string) *Status {
	if cached, ok := e.Get(key); ok {
		return cached
	}
	return e.evaluate(key, resolvedName)
}

// evaluateUpstream is Evaluate but reports back whether key is currently
// being computed further up the same call stack, rather than recursing
// into it again.
func (e *Evaluator) evaluateUpstream(key, resolvedName string) (status *Status, cycle bool) {
	e.mu.Lock()
	if s, ok := e.statuses[key]; ok {
		if s.Kind == ComputingUpstream {
			e.mu.Unlock()
			return nil, true
		}
		e.mu.Unlock()
		return s, false
	}
	e.mu.Unlock()
	return e.evaluate(key, resolvedName), false
}

func (e *Evaluator) finalize(key string, s *Status) *Status {
	e.mu.Lock()
	e.statuses[key] = s
	e.mu.Unlock()
	return s
}

func (e *Evaluator) evaluate(key, resolvedName string) *Status {
	cfg, diag := e.paths.Parse(key, resolvedName)
	if diag != nil {
		return e.finalize(key, &Status{Kind: Unbuildable, Reason: diag.Message})
	}

	inputs, err := config.ExpandInputs(e.fsys, cfg)
	if err != nil {
		return e.finalize(key, &Status{Kind: Unbuildable, Reason: err.Error()})
	}

	newestInputTime := MinimumDate
	newestInputName := ""
	for _, f := range inputs.Files {
		info, err := e.fsys.Stat(f)
		if err != nil {
			return e.finalize(key, &Status{Kind: Unbuildable, Reason: "input file does not exist: " + f})
		}
		if !info.ModTime().Before(newestInputTime) {
			newestInputTime = info.ModTime()
			newestInputName = f
		}
	}

	// Step 2: container detection.
	if len(inputs.Files) == 0 {
		if cfg.RequireInputs {
			return e.finalize(key, &Status{Kind: Unbuildable, Reason: "project has no input files"})
		}
		return e.finalize(key, &Status{Kind: ContainerOnly})
	}

	// Step 3: outputs.
	outputs := config.ExpectedOutputs(cfg)
	oldestOutputTime := MaximumDate
	oldestOutputName := ""
	newestOutputTime := MinimumDate
	newestOutputName := ""
	newestDeclContentChangedTime := MinimumDate
	missingOutputName := ""
	isOutOfDateWithInputs := false

	for _, out := range outputs {
		info, statErr := e.fsys.Stat(out.Path)
		if statErr != nil {
			missingOutputName = out.Path
			break
		}
		mtime := info.ModTime()
		if out.IsDeclaration {
			// The driver leaves a byte-identical declaration unwritten, so its
			// mtime records the last content change rather than the last
			// build; it feeds only the decl-content time, not the staleness
			// checks below.
			if mtime.After(newestDeclContentChangedTime) {
				newestDeclContentChangedTime = mtime
			}
			continue
		}
		if mtime.Before(oldestOutputTime) {
			oldestOutputTime = mtime
			oldestOutputName = out.Path
		}
		if mtime.After(newestOutputTime) {
			newestOutputTime = mtime
			newestOutputName = out.Path
		}
		if mtime.Before(newestInputTime) {
			isOutOfDateWithInputs = true
			break
		}
	}

	// Step 4: upstream evaluation.
	usesPrepend := false
	pseudoUpToDate := false
	pseudoUpstreamName := ""

	if len(cfg.References) > 0 {
		e.mu.Lock()
		e.statuses[key] = &Status{Kind: ComputingUpstream}
		e.mu.Unlock()

		for _, ref := range cfg.References {
			refResolved := e.paths.Resolve(ref.Path)
			refKey := e.paths.Key(refResolved)

			upstream, cycle := e.evaluateUpstream(refKey, refResolved)
			if cycle {
				continue
			}
			if upstream.Kind == Unbuildable {
				return e.finalize(key, &Status{Kind: UpstreamBlocked, UpstreamName: refKey})
			}
			if !upstream.IsUpToDate() {
				return e.finalize(key, &Status{Kind: UpstreamOutOfDate, UpstreamName: refKey})
			}
			if missingOutputName != "" {
				continue
			}
			switch {
			case !upstream.NewestInputTime.After(oldestOutputTime):
				// upstream hasn't changed since our oldest output; no effect.
			case !upstream.NewestDeclContentChangedTime.After(oldestOutputTime):
				pseudoUpToDate = true
				pseudoUpstreamName = refKey
				if ref.Prepend {
					usesPrepend = true
				}
			default:
				return e.finalize(key, &Status{Kind: OutOfDateWithUpstream, OldestOutputName: oldestOutputName, UpstreamName: refKey})
			}
		}
	}

	// Step 5.
	if missingOutputName != "" {
		return e.finalize(key, &Status{Kind: OutputMissing, MissingOutputName: missingOutputName})
	}
	// Step 6.
	if isOutOfDateWithInputs {
		return e.finalize(key, &Status{Kind: OutOfDateWithSelf, OldestOutputName: oldestOutputName, NewestInputName: newestInputName})
	}

	// Step 7: config freshness, including the extends chain.
	configPaths := append([]string{cfg.ConfigFilePath}, cfg.ExtendedConfigPaths...)
	for _, p := range configPaths {
		info, statErr := e.fsys.Stat(p)
		if statErr != nil {
			continue
		}
		if info.ModTime().After(oldestOutputTime) {
			return e.finalize(key, &Status{Kind: OutOfDateWithSelf, OldestOutputName: oldestOutputName, NewestInputName: p})
		}
	}

	// Step 8: build-info version gate.
	if buildInfoPath := config.BuildInfoPath(cfg); buildInfoPath != "" {
		if data, readErr := e.fsys.ReadFile(buildInfoPath); readErr == nil {
			if recorded, ok := readBuildInfoVersion(data); ok && recorded != e.version {
				return e.finalize(key, &Status{Kind: TsVersionOutputOfDate, RecordedVersion: recorded})
			}
		}
	}

	// Step 9.
	if usesPrepend && pseudoUpToDate {
		return e.finalize(key, &Status{
			Kind:             OutOfDateWithPrepend,
			OldestOutputName: oldestOutputName,
			UpstreamName:     pseudoUpstreamName,
		})
	}

	// Step 10.
	kind := UpToDate
	if pseudoUpToDate {
		kind = UpToDateWithUpstreamTypes
	}

	e.mu.Lock()
	if e.forcedDeclDirty[key] {
		newestDeclContentChangedTime = MaximumDate
		delete(e.forcedDeclDirty, key)
	}
	e.mu.Unlock()

	return e.finalize(key, &Status{
		Kind:                         kind,
		NewestInputTime:              newestInputTime,
		NewestInputName:              newestInputName,
		NewestDeclContentChangedTime: newestDeclContentChangedTime,
		OldestOutputName:             oldestOutputName,
		NewestOutputTime:             newestOutputTime,
		NewestOutputName:             newestOutputName,
	})
}

func readBuildInfoVersion(data []byte) (string, bool) {
	var parsed struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil || parsed.Version == "" {
		return "", false
	}
	return parsed.Version, true
}
