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
	"encoding/json"
	"path"

	"projectbuild.dev/tsbuild/fs"
)

// rawConfig mirrors ParsedConfig's JSON shape for unmarshaling before paths
// are resolved to absolute.
type rawConfig struct {
	Files         []string         `json:"files,omitempty"`
	Include       []string         `json:"include,omitempty"`
	Exclude       []string         `json:"exclude,omitempty"`
	Options       *CompilerOptions `json:"compilerOptions,omitempty"`
	References    []Reference      `json:"references,omitempty"`
	Extends       string           `json:"extends,omitempty"`
	RequireInputs bool             `json:"requireInputs,omitempty"`
}

// Parse reads and parses the project configuration file at resolvedPath.
// On success it returns a non-nil *ParsedConfig and a nil *Diagnostic; on
// any fatal error (missing file, malformed JSON, a broken extends chain) it
// returns a nil *ParsedConfig and a non-nil *Diagnostic. Presence of Options
// in the successful result is what downstream code treats as "this is a
// real config, not a parse failure".
func Parse(fsys fs.FileSystem, resolvedPath string) (*ParsedConfig, *Diagnostic) {
	return parse(fsys, resolvedPath, make(map[string]bool))
}

func parse(fsys fs.FileSystem, resolvedPath string, visiting map[string]bool) (*ParsedConfig, *Diagnostic) {
	if visiting[resolvedPath] {
		return nil, &Diagnostic{
			File:    resolvedPath,
			Code:    "circularExtends",
			Message: "circular 'extends' chain at " + resolvedPath,
		}
	}
	visiting[resolvedPath] = true

	data, err := fsys.ReadFile(resolvedPath)
	if err != nil {
		return nil, &Diagnostic{
			File:    resolvedPath,
			Code:    "fileNotFound",
			Message: err.Error(),
		}
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &Diagnostic{
			File:    resolvedPath,
			Code:    "parseError",
			Message: err.Error(),
		}
	}

	dir := path.Dir(resolvedPath)

	cfg := &ParsedConfig{
		ConfigFilePath: resolvedPath,
		Options:        raw.Options,
		RequireInputs:  raw.RequireInputs,
		Extends:        raw.Extends,
	}
	for _, f := range raw.Files {
		cfg.Files = append(cfg.Files, resolveRelative(dir, f))
	}
	cfg.Include = append([]string(nil), raw.Include...)
	cfg.Exclude = append([]string(nil), raw.Exclude...)

	for _, ref := range raw.References {
		resolved := ref
		resolved.Path = resolveConfigPath(resolveRelative(dir, ref.Path))
		cfg.References = append(cfg.References, resolved)
	}

	if raw.Extends != "" {
		extendedPath := resolveConfigPath(resolveRelative(dir, raw.Extends))
		extended, diag := parse(fsys, extendedPath, visiting)
		if diag != nil {
			return nil, &Diagnostic{
				File:    resolvedPath,
				Code:    "brokenExtends",
				Message: "extends " + extendedPath + ": " + diag.Message,
			}
		}
		cfg.Options = mergeOptions(extended.Options, cfg.Options)
		cfg.ExtendedConfigPaths = append(append([]string(nil), extended.ExtendedConfigPaths...), extendedPath)
	}

	if cfg.Options == nil {
		cfg.Options = &CompilerOptions{}
	}

	return cfg, nil
}

func resolveRelative(dir, p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Clean(path.Join(dir, p))
}

// mergeOptions layers override on top of base: any field explicitly set
// (non-zero) in override wins, otherwise base's value is kept. This mirrors
// how `extends` chains compose compiler options upstream-first.
func mergeOptions(base, override *CompilerOptions) *CompilerOptions {
	if base == nil {
		return override
	}
	if override == nil {
		copied := *base
		return &copied
	}

	merged := *base
	if override.OutFile != "" {
		merged.OutFile = override.OutFile
	}
	if override.OutDir != "" {
		merged.OutDir = override.OutDir
	}
	if override.Declaration {
		merged.Declaration = override.Declaration
	}
	if override.DeclarationDir != "" {
		merged.DeclarationDir = override.DeclarationDir
	}
	if override.Composite {
		merged.Composite = override.Composite
	}
	if override.Incremental {
		merged.Incremental = override.Incremental
	}
	if override.NoEmit {
		merged.NoEmit = override.NoEmit
	}
	if override.TsBuildInfoFile != "" {
		merged.TsBuildInfoFile = override.TsBuildInfoFile
	}
	if len(override.Extra) > 0 {
		if merged.Extra == nil {
			merged.Extra = make(map[string]any, len(override.Extra))
		}
		for k, v := range override.Extra {
			merged.Extra[k] = v
		}
	}
	return &merged
}
