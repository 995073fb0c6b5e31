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

// Package compiler declares the host interface between the build driver and
// whatever actually turns a project's input files into its outputs. The
// driver never inspects a Program's internals; it only calls through this
// interface, so a real type-checking compiler can be dropped in without
// touching the driver, graph, or status packages.
package compiler

import (
	"projectbuild.dev/tsbuild/config"
)

// Stage names a point in the pipeline a diagnostic can be attached to. The
// driver checks ConfigFile, Options, Global, and Syntactic together and
// stops there if any are present, then checks Semantic as a second
// stop-point before attempting Emit at all; a DeclarationEmit diagnostic
// aborts the emit and rolls the program back to its pre-emit state.
type Stage int

const (
	ConfigFile Stage = iota
	Options
	Global
	Syntactic
	Semantic
	DeclarationEmit
)

func (s Stage) String() string {
	switch s {
	case ConfigFile:
		return "ConfigFile"
	case Options:
		return "Options"
	case Global:
		return "Global"
	case Syntactic:
		return "Syntactic"
	case Semantic:
		return "Semantic"
	case DeclarationEmit:
		return "DeclarationEmit"
	default:
		return "Unknown"
	}
}

// Diagnostic is a compiler-reported problem attached to a stage, as opposed
// to the config package's Diagnostic which describes a project that never
// made it to the compiler at all.
type Diagnostic struct {
	Stage   Stage
	File    string
	Message string
}

// EmittedFile is one file produced by a successful Emit call. The driver
// decides whether to actually write it to disk, comparing against what's
// already there when incremental output-stamp updates are in play.
type EmittedFile struct {
	Path          string
	Content       []byte
	IsDeclaration bool
}

// Program is a compiled project, as returned by a Builder. Its state can be
// snapshotted and restored around a risky emit, and must be released when
// the driver is done with it so a long-lived Builder can free resources tied
// to the old Program before creating its replacement.
type Program interface {
	// Diagnostics returns every diagnostic recorded at stage.
	Diagnostics(stage Stage) []Diagnostic

	// BackupState snapshots the program's internal state so a failed
	// declaration emit can be rolled back without re-running the whole
	// pipeline.
	BackupState()

	// RestoreState reverts to the most recent BackupState snapshot.
	RestoreState()

	// Emit produces the project's output files. A non-empty
	// DeclarationEmit diagnostic list means emittedFiles must be
	// discarded; the caller is expected to call RestoreState instead of
	// writing anything.
	Emit() (emittedFiles []EmittedFile, declDiagnostics []Diagnostic, err error)

	// Release frees any resources the program holds once the driver has
	// moved on, e.g. to let a long-lived Builder reuse an old Program as
	// the oldProgram argument to its next CreateProgram call and then
	// discard it.
	Release()
}

// Builder is the pipeline entry point: given a project's resolved
// configuration, it produces a Program. configErrors carries diagnostics
// the config parser already found (missing inputs, broken extends chains)
// so the Program can surface them uniformly through Diagnostics(ConfigFile)
// rather than the driver needing a separate code path for config failures.
//
// old, when non-nil, is the project's previous Program, offered back so an
// incremental implementation can reuse prior work; the reference
// implementation in this package ignores it beyond releasing it.
type Builder interface {
	CreateProgram(cfg *config.ParsedConfig, old Program, configErrors []config.Diagnostic) (Program, error)
}
