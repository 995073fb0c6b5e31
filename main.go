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

// Command tsbuild builds multi-project TypeScript-style project references
// incrementally, the way `tsc --build` does.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"projectbuild.dev/tsbuild/cmd/build"
	"projectbuild.dev/tsbuild/cmd/clean"
	"projectbuild.dev/tsbuild/cmd/version"
	"projectbuild.dev/tsbuild/cmd/watch"
)

var (
	cpuprofile     string
	cpuprofileFile *os.File
	rootCmd        = &cobra.Command{
		Use:   "tsbuild",
		Short: "Build multi-project TypeScript-style project references incrementally",
		Long:  `tsbuild builds a graph of project references, rebuilding only what's out of date.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cpuprofile != "" {
				f, err := os.Create(cpuprofile)
				if err != nil {
					return fmt.Errorf("could not create CPU profile: %w", err)
				}
				cpuprofileFile = f
				if err := pprof.StartCPUProfile(f); err != nil {
					closeErr := f.Close()
					return errors.Join(
						fmt.Errorf("could not start CPU profile: %w", err),
						closeErr,
					)
				}
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cpuprofileFile != nil {
				pprof.StopCPUProfile()
				if err := cpuprofileFile.Close(); err != nil {
					return fmt.Errorf("closing CPU profile: %w", err)
				}
			}
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cpuprofile, "cpuprofile", "", "Write CPU profile to file")

	rootCmd.AddCommand(build.Cmd)
	rootCmd.AddCommand(watch.Cmd)
	rootCmd.AddCommand(clean.Cmd)
	rootCmd.AddCommand(version.Cmd)
}

func main() {
	viper.AutomaticEnv()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
