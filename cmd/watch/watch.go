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

// Package watch provides the watch command for tsbuild.
package watch

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"projectbuild.dev/tsbuild/driver"
	"projectbuild.dev/tsbuild/engine"
)

// Cmd is the watch command.
var Cmd = &cobra.Command{
	Use:   "watch [project...]",
	Short: "Build one or more TypeScript project references and rebuild on change",
	Long: `Build one or more TypeScript project references, then watch their
config files and input files and rebuild whatever's affected on change.

If no projects are given, watches the project in the current directory.`,
	Example: `  # Watch the project in the current directory
  tsbuild watch

  # Watch specific projects
  tsbuild watch ./packages/core ./packages/cli`,
	RunE: run,
}

func init() {
	Cmd.Flags().BoolP("verbose", "v", false, "Print a status line for every rebuild, not just failures")
	_ = viper.BindPFlag("verbose", Cmd.Flags().Lookup("verbose"))
}

func run(cmd *cobra.Command, args []string) error {
	projects := args
	if len(projects) == 0 {
		projects = []string{"."}
	}

	opts := driver.Options{Verbose: viper.GetBool("verbose")}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s := engine.New(opts, log)
	if err := s.Watch(ctx, projects); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
