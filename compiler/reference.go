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

package compiler

import (
	"bytes"
	"sort"

	"projectbuild.dev/tsbuild/config"
	"projectbuild.dev/tsbuild/fs"
)

// semanticErrorMarker and declErrorMarker let fixtures force a diagnostic
// at a specific stage without a real parser: a source file containing the
// marker text is reported as broken at that stage. This keeps the reference
// implementation able to exercise the driver's per-stage stop points while
// staying out of the business of actually parsing anything.
const (
	semanticErrorMarker = "@ts-error"
	declErrorMarker     = "@decl-error"
)

// ReferenceBuilder is a Builder that does no real type checking: it treats
// each input file's bytes as its own emitted output, and derives a
// declaration file by keeping only lines that look like exported
// declarations. That's enough to exercise the driver's up-to-date and
// declaration-identity logic end to end without a real front end, which is
// explicitly out of scope for the engine itself.
type ReferenceBuilder struct {
	fsys fs.FileSystem
}

// NewReferenceBuilder creates a Builder backed by fsys.
func NewReferenceBuilder(fsys fs.FileSystem) *ReferenceBuilder {
	return &ReferenceBuilder{fsys: fsys}
}

func (b *ReferenceBuilder) CreateProgram(cfg *config.ParsedConfig, old Program, configErrors []config.Diagnostic) (Program, error) {
	if old != nil {
		old.Release()
	}

	prog := &referenceProgram{
		cfg:    cfg,
		fsys:   b.fsys,
		diags:  make(map[Stage][]Diagnostic),
		inputs: make(map[string][]byte),
	}

	for _, d := range configErrors {
		prog.diags[ConfigFile] = append(prog.diags[ConfigFile], Diagnostic{Stage: ConfigFile, File: d.File, Message: d.Message})
	}

	inputs, err := config.ExpandInputs(b.fsys, cfg)
	if err != nil {
		prog.diags[Syntactic] = append(prog.diags[Syntactic], Diagnostic{Stage: Syntactic, Message: err.Error()})
		return prog, nil
	}

	prog.order = append([]string(nil), inputs.Files...)
	sort.Strings(prog.order)
	for _, f := range prog.order {
		data, err := b.fsys.ReadFile(f)
		if err != nil {
			prog.diags[Syntactic] = append(prog.diags[Syntactic], Diagnostic{Stage: Syntactic, File: f, Message: err.Error()})
			continue
		}
		if bytes.Contains(data, []byte(semanticErrorMarker)) {
			prog.diags[Semantic] = append(prog.diags[Semantic], Diagnostic{Stage: Semantic, File: f, Message: "semantic error marker found"})
		}
		prog.inputs[f] = data
	}

	return prog, nil
}

type referenceProgram struct {
	cfg    *config.ParsedConfig
	fsys   fs.FileSystem
	diags  map[Stage][]Diagnostic
	order  []string
	inputs map[string][]byte
	backup map[string][]byte
}

func (p *referenceProgram) Diagnostics(stage Stage) []Diagnostic {
	return p.diags[stage]
}

func (p *referenceProgram) BackupState() {
	p.backup = make(map[string][]byte, len(p.inputs))
	for k, v := range p.inputs {
		p.backup[k] = v
	}
}

func (p *referenceProgram) RestoreState() {
	if p.backup == nil {
		return
	}
	p.inputs = p.backup
	p.backup = nil
}

func (p *referenceProgram) Release() {
	p.inputs = nil
	p.backup = nil
}

func (p *referenceProgram) Emit() ([]EmittedFile, []Diagnostic, error) {
	var declDiags []Diagnostic
	for _, f := range p.order {
		if bytes.Contains(p.inputs[f], []byte(declErrorMarker)) {
			declDiags = append(declDiags, Diagnostic{Stage: DeclarationEmit, File: f, Message: "declaration emit error marker found"})
		}
	}
	if len(declDiags) > 0 {
		return nil, declDiags, nil
	}

	if p.cfg.Options != nil && p.cfg.Options.OutFile != "" {
		return p.emitBundle(), nil, nil
	}
	return p.emitPerFile(), nil, nil
}

func (p *referenceProgram) emitBundle() []EmittedFile {
	outs := config.ExpectedOutputs(p.cfg)
	if len(outs) == 0 {
		return nil
	}

	var js, decl bytes.Buffer
	for _, f := range p.order {
		js.Write(p.inputs[f])
		js.WriteByte('\n')
		decl.Write(extractDeclaration(p.inputs[f]))
		decl.WriteByte('\n')
	}

	emitted := make([]EmittedFile, 0, len(outs))
	for _, out := range outs {
		if out.IsDeclaration {
			emitted = append(emitted, EmittedFile{Path: out.Path, Content: decl.Bytes(), IsDeclaration: true})
		} else {
			emitted = append(emitted, EmittedFile{Path: out.Path, Content: js.Bytes()})
		}
	}
	return emitted
}

func (p *referenceProgram) emitPerFile() []EmittedFile {
	var emitted []EmittedFile
	for _, f := range p.order {
		for _, out := range config.OutputsForFile(p.cfg, f) {
			if out.IsDeclaration {
				emitted = append(emitted, EmittedFile{Path: out.Path, Content: extractDeclaration(p.inputs[f]), IsDeclaration: true})
			} else {
				emitted = append(emitted, EmittedFile{Path: out.Path, Content: p.inputs[f]})
			}
		}
	}
	return emitted
}

// extractDeclaration approximates the part of a source file that affects a
// downstream project's type information: lines that mention "export". An
// edit confined to lines without "export" leaves the declaration content
// byte-identical, which is what lets the evaluator's declaration-identity
// check demote a downstream build to an output-stamp update instead of a
// real rebuild.
func extractDeclaration(content []byte) []byte {
	var out bytes.Buffer
	for _, line := range bytes.Split(content, []byte("\n")) {
		if bytes.Contains(line, []byte("export")) {
			out.Write(line)
			out.WriteByte('\n')
		}
	}
	return out.Bytes()
}
