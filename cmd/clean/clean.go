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

// Package clean provides the clean command for tsbuild.
package clean

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"projectbuild.dev/tsbuild/driver"
	"projectbuild.dev/tsbuild/engine"
)

// Cmd is the clean command.
var Cmd = &cobra.Command{
	Use:   "clean [project...]",
	Short: "Remove the outputs of one or more TypeScript project references",
	Long: `Remove every output file and build-info file a project (and its
transitive project references) would produce, without running a build.

If no projects are given, cleans the project in the current directory.`,
	Example: `  # Clean the project in the current directory
  tsbuild clean

  # Clean specific projects
  tsbuild clean ./packages/core ./packages/cli`,
	RunE: run,
}

func run(cmd *cobra.Command, args []string) error {
	projects := args
	if len(projects) == 0 {
		projects = []string{"."}
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s := engine.New(driver.Options{}, log)
	if err := s.Clean(projects); err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	return nil
}
