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

// Package status computes whether a project's on-disk outputs are up to
// date with respect to its inputs, upstream projects, and persisted
// build-info metadata.
package status

import "time"

// Kind tags the variant a Status holds. Modeled as a struct-with-Kind
// rather than an interface hierarchy: the evaluator only ever needs to
// switch on a handful of fields, never dispatch behavior per kind.
type Kind int

const (
	Unbuildable Kind = iota
	ContainerOnly
	UpToDate
	UpToDateWithUpstreamTypes
	OutOfDateWithPrepend
	OutputMissing
	OutOfDateWithSelf
	OutOfDateWithUpstream
	UpstreamOutOfDate
	UpstreamBlocked
	ComputingUpstream
	TsVersionOutputOfDate
)

func (k Kind) String() string {
	switch k {
	case Unbuildable:
		return "Unbuildable"
	case ContainerOnly:
		return "ContainerOnly"
	case UpToDate:
		return "UpToDate"
	case UpToDateWithUpstreamTypes:
		return "UpToDateWithUpstreamTypes"
	case OutOfDateWithPrepend:
		return "OutOfDateWithPrepend"
	case OutputMissing:
		return "OutputMissing"
	case OutOfDateWithSelf:
		return "OutOfDateWithSelf"
	case OutOfDateWithUpstream:
		return "OutOfDateWithUpstream"
	case UpstreamOutOfDate:
		return "UpstreamOutOfDate"
	case UpstreamBlocked:
		return "UpstreamBlocked"
	case ComputingUpstream:
		return "ComputingUpstream"
	case TsVersionOutputOfDate:
		return "TsVersionOutputOfDate"
	default:
		return "Unknown"
	}
}

// MinimumDate is the sentinel modification time of a file that doesn't
// exist: earlier than any real file time.
var MinimumDate = time.Time{}

// MaximumDate bounds the time lattice from above; used as the "oldest
// output time" sentinel when a project has no outputs to compare against.
var MaximumDate = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// Status is the up-to-date status of one project, a tagged union over Kind.
// Only the fields relevant to the current Kind are meaningful; this
// mirrors the action-handle design in the invalidate package rather than
// an interface-per-variant hierarchy (see design notes).
type Status struct {
	Kind Kind

	// Unbuildable
	Reason string

	// UpstreamBlocked, UpstreamOutOfDate, OutOfDateWithUpstream,
	// OutOfDateWithPrepend ("newerProjectName")
	UpstreamName string

	// UpToDate, UpToDateWithUpstreamTypes, OutOfDateWithSelf,
	// OutOfDateWithUpstream, OutOfDateWithPrepend
	OldestOutputName string
	NewestOutputName string
	NewestOutputTime time.Time

	NewestInputName string
	NewestInputTime time.Time

	NewestDeclContentChangedTime time.Time

	// OutputMissing
	MissingOutputName string

	// TsVersionOutputOfDate
	RecordedVersion string
}

// IsUpToDate reports whether s represents a buildable, current state: the
// two up-to-date variants (plain and the "pseudo" upstream-types one).
func (s *Status) IsUpToDate() bool {
	return s.Kind == UpToDate || s.Kind == UpToDateWithUpstreamTypes
}
