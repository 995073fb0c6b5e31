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

// Package build provides the build command for tsbuild.
package build

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"projectbuild.dev/tsbuild/driver"
	"projectbuild.dev/tsbuild/engine"
)

// Cmd is the build command.
var Cmd = &cobra.Command{
	Use:   "build [project...]",
	Short: "Build one or more TypeScript project references",
	Long: `Build one or more TypeScript project references, following project
references and skipping projects already up to date.

If no projects are given, builds the project in the current directory.`,
	Example: `  # Build the project in the current directory
  tsbuild build

  # Build specific projects
  tsbuild build ./packages/core ./packages/cli

  # Force a full rebuild
  tsbuild build --force`,
	RunE: run,
}

func init() {
	Cmd.Flags().BoolP("force", "f", false, "Rebuild every project regardless of up-to-date status")
	Cmd.Flags().BoolP("dry", "d", false, "Print what would be built without writing anything")
	Cmd.Flags().BoolP("verbose", "v", false, "Print a status line for every project, not just failures")

	_ = viper.BindPFlag("force", Cmd.Flags().Lookup("force"))
	_ = viper.BindPFlag("dry", Cmd.Flags().Lookup("dry"))
	_ = viper.BindPFlag("verbose", Cmd.Flags().Lookup("verbose"))
}

func run(cmd *cobra.Command, args []string) error {
	projects := args
	if len(projects) == 0 {
		projects = []string{"."}
	}

	opts := driver.Options{
		Force:   viper.GetBool("force"),
		Dry:     viper.GetBool("dry"),
		Verbose: viper.GetBool("verbose"),
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	s := engine.New(opts, log)
	exit, err := s.Build(cmd.Context(), projects)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if exit != driver.Success {
		return fmt.Errorf("build finished with diagnostics (%s)", exit)
	}
	return nil
}
