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

// Package report renders driver output: per-project diagnostics, optional
// status lines, and a closing summary, via a structured slog.Logger rather
// than bare fmt.Printf so a caller can redirect build output to JSON, a
// file, or a higher log level without touching the driver.
package report

import (
	"log/slog"
	"sort"

	"projectbuild.dev/tsbuild/compiler"
	"projectbuild.dev/tsbuild/config"
)

// Reporter implements driver.Reporter over a slog.Logger. It also keeps its
// own record of every diagnostic seen so Summary can print a final count
// and Failed callers can ask "did anything fail" without re-deriving it
// from the logger's side effects.
type Reporter struct {
	log *slog.Logger

	configDiags   map[string][]config.Diagnostic
	compilerDiags map[string][]compiler.Diagnostic
}

// New creates a Reporter that writes through log. Pass slog.Default() for
// the ordinary CLI case.
func New(log *slog.Logger) *Reporter {
	return &Reporter{
		log:           log,
		configDiags:   make(map[string][]config.Diagnostic),
		compilerDiags: make(map[string][]compiler.Diagnostic),
	}
}

// RecordConfigDiagnostic logs and stores a fatal config-level diagnostic for
// projectKey.
func (r *Reporter) RecordConfigDiagnostic(projectKey string, diag config.Diagnostic) {
	r.configDiags[projectKey] = append(r.configDiags[projectKey], diag)
	r.log.Error("config error", "project", projectKey, "code", diag.Code, "message", diag.Message)
}

// RecordCompilerDiagnostics logs and stores the compiler-stage diagnostics
// produced while building projectKey.
func (r *Reporter) RecordCompilerDiagnostics(projectKey string, diags []compiler.Diagnostic) {
	r.compilerDiags[projectKey] = append(r.compilerDiags[projectKey], diags...)
	for _, d := range diags {
		r.log.Error("build error", "project", projectKey, "stage", d.Stage.String(), "file", d.File, "message", d.Message)
	}
}

// StatusLine logs a verbose-gated progress line for projectKey.
func (r *Reporter) StatusLine(projectKey string, message string) {
	r.log.Info(message, "project", projectKey)
}

// Summary logs one line for each project in order that has recorded
// diagnostics, followed by a totals line.
func (r *Reporter) Summary(order []string) {
	failed := 0
	for _, key := range order {
		n := len(r.configDiags[key]) + len(r.compilerDiags[key])
		if n == 0 {
			continue
		}
		failed++
		r.log.Warn("project has errors", "project", key, "count", n)
	}
	r.log.Info("build complete", "projects", len(order), "failed", failed)
}

// Failed reports whether any project has a recorded diagnostic.
func (r *Reporter) Failed() bool {
	for key := range r.configDiags {
		if len(r.configDiags[key]) > 0 {
			return true
		}
	}
	for key := range r.compilerDiags {
		if len(r.compilerDiags[key]) > 0 {
			return true
		}
	}
	return false
}

// Diagnostics returns every compiler diagnostic recorded for projectKey,
// sorted by stage, for callers that want the detail without re-parsing log
// output.
func (r *Reporter) Diagnostics(projectKey string) []compiler.Diagnostic {
	diags := append([]compiler.Diagnostic(nil), r.compilerDiags[projectKey]...)
	sort.Slice(diags, func(i, j int) bool { return diags[i].Stage < diags[j].Stage })
	return diags
}
