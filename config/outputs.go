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
)

// OutputFile is one file the Program Builder is expected to produce for a
// project, as derived from its compiler options.
type OutputFile struct {
	Path          string
	IsDeclaration bool
}

// ExpectedOutputs enumerates the non-buildinfo outputs a project's options
// imply it will produce: bundle mode (outFile) yields at most two files,
// per-file mode (outDir) yields one (plus one declaration) per input.
func ExpectedOutputs(cfg *ParsedConfig) []OutputFile {
	if cfg.Options == nil || cfg.Options.NoEmit {
		return nil
	}
	dir := path.Dir(cfg.ConfigFilePath)
	emitsDecl := cfg.EmitsDeclarations()

	if cfg.Options.OutFile != "" {
		outFile := resolveRelative(dir, cfg.Options.OutFile)
		outs := []OutputFile{{Path: outFile}}
		if emitsDecl {
			outs = append(outs, OutputFile{Path: swapExt(outFile, ".d.ts"), IsDeclaration: true})
		}
		return outs
	}

	outs := make([]OutputFile, 0, len(cfg.Files)*2)
	for _, f := range cfg.Files {
		outs = append(outs, OutputsForFile(cfg, f)...)
	}
	return outs
}

// OutputsForFile enumerates the outputs implied by cfg's options for a
// single input file, in per-file (outDir) emit mode. Shared by
// ExpectedOutputs and the Program Builder, which needs the same mapping
// file-by-file as it emits.
func OutputsForFile(cfg *ParsedConfig, inputFile string) []OutputFile {
	dir := path.Dir(cfg.ConfigFilePath)
	outBase := dir
	if cfg.Options.OutDir != "" {
		outBase = resolveRelative(dir, cfg.Options.OutDir)
	}
	declBase := outBase
	if cfg.Options.DeclarationDir != "" {
		declBase = resolveRelative(dir, cfg.Options.DeclarationDir)
	}

	rel := strings.TrimPrefix(inputFile, dir+"/")
	outs := []OutputFile{{Path: path.Join(outBase, swapExt(rel, ".js"))}}
	if cfg.EmitsDeclarations() {
		outs = append(outs, OutputFile{Path: path.Join(declBase, swapExt(rel, ".d.ts")), IsDeclaration: true})
	}
	return outs
}

// BuildInfoPath returns the persisted build-info artifact path for cfg, or
// "" if the project is neither composite nor incremental and so has none.
func BuildInfoPath(cfg *ParsedConfig) string {
	if !cfg.IsComposite() && !cfg.IsIncremental() {
		return ""
	}
	dir := path.Dir(cfg.ConfigFilePath)
	if cfg.Options.TsBuildInfoFile != "" {
		return resolveRelative(dir, cfg.Options.TsBuildInfoFile)
	}
	base := dir
	if cfg.Options.OutFile != "" {
		base = path.Dir(resolveRelative(dir, cfg.Options.OutFile))
	} else if cfg.Options.OutDir != "" {
		base = resolveRelative(dir, cfg.Options.OutDir)
	}
	return path.Join(base, path.Base(cfg.ConfigFilePath)+".tsbuildinfo")
}

// IsOutputPath reports whether p would be produced by cfg's project, used by
// the watch orchestrator to classify wildcard-directory events: an output
// path is ignored rather than treated as a new input.
func IsOutputPath(cfg *ParsedConfig, p string) bool {
	if cfg.Options == nil || cfg.Options.NoEmit {
		return false
	}
	if !strings.HasSuffix(p, ".d.ts") {
		if strings.HasSuffix(p, ".ts") || strings.HasSuffix(p, ".tsx") {
			return false
		}
	}

	for _, out := range ExpectedOutputs(cfg) {
		if out.Path == p {
			return true
		}
	}
	if info := BuildInfoPath(cfg); info != "" && info == p {
		return true
	}

	dir := path.Dir(cfg.ConfigFilePath)
	if cfg.Options.DeclarationDir != "" && withinDir(p, resolveRelative(dir, cfg.Options.DeclarationDir)) {
		return true
	}
	if cfg.Options.OutDir != "" && withinDir(p, resolveRelative(dir, cfg.Options.OutDir)) {
		return true
	}

	for _, f := range cfg.Files {
		if f == p {
			return false
		}
	}
	return true
}

func withinDir(p, dir string) bool {
	return strings.HasPrefix(p, dir+"/")
}

func swapExt(p, newExt string) string {
	ext := path.Ext(p)
	if ext == "" {
		return p + newExt
	}
	return strings.TrimSuffix(p, ext) + newExt
}
