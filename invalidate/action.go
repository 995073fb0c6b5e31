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
package invalidate

import (
	"context"
	"sync"

	"projectbuild.dev/tsbuild/status"
)

// Kind tags which of the three action handles a project needs.
type Kind int

const (
	// Build runs the full compiler pipeline.
	Build Kind = iota
	// UpdateBundle reuses persisted build-info to regenerate only
	// non-declaration outputs, emitting no program.
	UpdateBundle
	// UpdateOutputFileStamps only touches existing output files.
	UpdateOutputFileStamps
)

func (k Kind) String() string {
	switch k {
	case Build:
		return "Build"
	case UpdateBundle:
		return "UpdateBundle"
	case UpdateOutputFileStamps:
		return "UpdateOutputFileStamps"
	default:
		return "Unknown"
	}
}

// Action is a one-shot handle representing the work a project needs. It is
// modeled as a struct with a Kind tag and a single run closure rather than
// a class per kind, since a Build handle's closure is exactly what an
// UpdateBundle handle converts into when its build-info turns out to be
// unreadable.
type Action struct {
	Kind       Kind
	ProjectKey string

	mu   sync.Mutex
	done bool
	run  func(ctx context.Context) error
}

// New creates an action handle of the given kind. run performs the actual
// work and is invoked at most once, on the first call to Done.
func New(kind Kind, projectKey string, run func(ctx context.Context) error) *Action {
	return &Action{Kind: kind, ProjectKey: projectKey, run: run}
}

// Done performs the action's work if it hasn't already run, then reports
// any error. Calling Done more than once is safe and a no-op after the
// first call.
func (a *Action) Done(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return nil
	}
	a.done = true
	if a.run == nil {
		return nil
	}
	return a.run(ctx)
}

// Decision is the outcome of applying the dispatch rules to one project's
// status: either an action to run, or a reason to skip.
type Decision struct {
	Action     *Action
	Skip       bool
	SkipReason string
}

// DecideOptions carries the inputs needed to classify a status into an
// action, beyond the status itself.
type DecideOptions struct {
	Forced        bool
	EmptyInputs   bool
	ConfigErrored bool
	Incremental   bool
}

// Classify implements the dispatcher's per-status decision table, short of
// actually constructing the runnable Action (the caller supplies run
// closures once it knows which Kind was chosen, via New).
func Classify(s *status.Status, opts DecideOptions) (kind Kind, skip bool, skipReason string) {
	switch s.Kind {
	case status.UpToDate:
		if !opts.Forced {
			return 0, true, "up to date"
		}
	case status.UpToDateWithUpstreamTypes:
		if !opts.Forced {
			return UpdateOutputFileStamps, false, ""
		}
	case status.UpstreamBlocked:
		return 0, true, "blocked on upstream project errors"
	case status.ContainerOnly:
		return 0, true, "container project"
	}

	if needsBuild(s, opts) {
		return Build, false, ""
	}
	return UpdateBundle, false, ""
}

// needsBuild decides between a full Build and a lighter UpdateBundle: force
// mode, a status other than OutOfDateWithPrepend, an empty input list,
// config errors, or non-incremental options all force a full Build; only
// OutOfDateWithPrepend on an error-free incremental project yields an
// UpdateBundle instead.
func needsBuild(s *status.Status, opts DecideOptions) bool {
	if opts.Forced {
		return true
	}
	if s.Kind != status.OutOfDateWithPrepend {
		return true
	}
	if opts.EmptyInputs {
		return true
	}
	if opts.ConfigErrored {
		return true
	}
	if !opts.Incremental {
		return true
	}
	return false
}
