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

// Package config parses and caches project configuration files: the input
// file list, compiler options, and references to other projects that make
// up a single compilation unit.
package config

import (
	"encoding/json"
	"fmt"
)

// DefaultConfigFileName is appended to a bare directory path when resolving
// a project name that doesn't already name a config file.
const DefaultConfigFileName = "tsbuild.json"

// Diagnostic is a single fatal parse or validation error attached to a
// project instead of a successfully parsed config.
type Diagnostic struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.File, d.Code, d.Message)
}

// Reference is a directed edge from a project to one it depends on.
type Reference struct {
	Path     string `json:"path"`
	Prepend  bool   `json:"prepend,omitempty"`
	Circular bool   `json:"circular,omitempty"`
}

// rawReference accepts either a bare path string or a full object, matching
// the way upstream tsconfig-style files allow references to be written as
// plain strings when no flags are needed.
type rawReference struct {
	Path     string `json:"path"`
	Prepend  bool   `json:"prepend,omitempty"`
	Circular bool   `json:"circular,omitempty"`
}

func (r *Reference) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		r.Path = asString
		r.Prepend = false
		r.Circular = false
		return nil
	}
	var raw rawReference
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Path = raw.Path
	r.Prepend = raw.Prepend
	r.Circular = raw.Circular
	return nil
}

// CompilerOptions is the subset of compiler options the engine itself needs
// to read. Options it doesn't understand are preserved in Extra for the
// Program Builder to interpret.
type CompilerOptions struct {
	OutFile        string `json:"outFile,omitempty"`
	OutDir         string `json:"outDir,omitempty"`
	Declaration    bool   `json:"declaration,omitempty"`
	DeclarationDir string `json:"declarationDir,omitempty"`
	Composite      bool   `json:"composite,omitempty"`
	Incremental    bool   `json:"incremental,omitempty"`
	NoEmit         bool   `json:"noEmit,omitempty"`
	TsBuildInfoFile string `json:"tsBuildInfoFile,omitempty"`

	Extra map[string]any `json:"-"`
}

// UnmarshalJSON decodes the known fields normally and stashes every other
// key present in the object into Extra, so options the engine doesn't
// interpret itself still reach the Program Builder unchanged.
func (c *CompilerOptions) UnmarshalJSON(data []byte) error {
	type known struct {
		OutFile         string `json:"outFile,omitempty"`
		OutDir          string `json:"outDir,omitempty"`
		Declaration     bool   `json:"declaration,omitempty"`
		DeclarationDir  string `json:"declarationDir,omitempty"`
		Composite       bool   `json:"composite,omitempty"`
		Incremental     bool   `json:"incremental,omitempty"`
		NoEmit          bool   `json:"noEmit,omitempty"`
		TsBuildInfoFile string `json:"tsBuildInfoFile,omitempty"`
	}
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	c.OutFile = k.OutFile
	c.OutDir = k.OutDir
	c.Declaration = k.Declaration
	c.DeclarationDir = k.DeclarationDir
	c.Composite = k.Composite
	c.Incremental = k.Incremental
	c.NoEmit = k.NoEmit
	c.TsBuildInfoFile = k.TsBuildInfoFile

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, field := range []string{"outFile", "outDir", "declaration", "declarationDir", "composite", "incremental", "noEmit", "tsBuildInfoFile"} {
		delete(all, field)
	}
	if len(all) > 0 {
		c.Extra = all
	}
	return nil
}

// ParsedConfig is a successfully parsed project configuration: an explicit
// input file list, wildcard include/exclude patterns used to discover
// additional inputs, compiler options, and references to other projects.
type ParsedConfig struct {
	// ConfigFilePath is the resolved, absolute path this config was read from.
	ConfigFilePath string `json:"-"`

	// Files is the explicit list of input source files, resolved to
	// absolute paths.
	Files []string `json:"files,omitempty"`

	// Include/Exclude are glob patterns (doublestar syntax) used to expand
	// Files with files discovered under wildcard directories.
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`

	// Options holds the compiler options. Its presence (as opposed to a nil
	// *ParsedConfig alongside a Diagnostic) is what distinguishes a parsed
	// config from a parse failure at the call site.
	Options *CompilerOptions `json:"compilerOptions,omitempty"`

	// References lists other projects this project depends on.
	References []Reference `json:"references,omitempty"`

	// Extends names another config file whose settings this one inherits.
	// Used by the evaluator's config-freshness check (the extended file's
	// mtime also gates up-to-date-ness).
	Extends string `json:"extends,omitempty"`

	// ExtendedConfigPaths lists the resolved, absolute paths of every config
	// file in the `extends` chain, closest first. Populated by Parse.
	ExtendedConfigPaths []string `json:"-"`

	// RequireInputs, when true, means an empty Files/Include result is a
	// configuration error rather than a container project. Set from the
	// config's `requireInputs` key.
	RequireInputs bool `json:"requireInputs,omitempty"`
}

// IsComposite reports whether the project may be referenced by others and
// therefore emits declaration outputs and build-info.
func (c *ParsedConfig) IsComposite() bool {
	return c.Options != nil && c.Options.Composite
}

// IsIncremental reports whether the project's build-info enables bundle-only
// incremental updates.
func (c *ParsedConfig) IsIncremental() bool {
	return c.Options != nil && (c.Options.Incremental || c.Options.Composite)
}

// EmitsDeclarations reports whether the project produces .d.ts outputs.
// Composite projects always emit declarations since they are the only
// thing a downstream reference can depend on for its type information.
func (c *ParsedConfig) EmitsDeclarations() bool {
	return c.Options != nil && (c.Options.Declaration || c.Options.Composite)
}
