// Copyright 2026 rtlforge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rtlforge/internal/config"
	"rtlforge/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var (
	configDir string
	settings  *config.Settings
	logCloser io.Closer
)

// flagKeys binds persistent flags to settings keys.
var flagKeys = map[string]string{
	"log-level": "log_level",
	"data-dir":  "data_dir",
	"keep":      "workspace.keep",
	"timeout":   "toolchain.timeout",
}

var rootCmd = &cobra.Command{
	Use:   "rtlforge",
	Short: "Hardware design repositories with toolchain-backed build jobs",
	Long: `rtlforge stores hardware design repositories (Verilog sources, testbenches,
constraints, firmware) and runs synthesis, simulation, compilation and
bitstream jobs against them with external EDA tools.

Tool output is mapped back onto repository entries, and generated artifacts
are stored in the repository's build and hex folders.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		// config init must work before a settings file exists.
		if cmd.Parent() != nil && cmd.Parent().Name() == "config" && cmd.Name() == "init" {
			return nil
		}

		s, err := config.Load(config.LoadOptions{
			ConfigDir: configDir,
			Flags:     cmd.Flags(),
			FlagKeys:  flagKeys,
		})
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		settings = s
		logCloser = logging.Setup(s)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("rtlforge version {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configDir, "config-dir", "", "settings directory (default $"+config.EnvConfigDir+" or ~/.rtlforge)")
	pf.String("log-level", "", "log level: trace, debug, info, warn, error, off")
	pf.String("data-dir", "", "directory holding the metadata database and blobs")
	pf.Bool("keep", false, "keep job workspaces for inspection")
	pf.Duration("timeout", 0, "wall-clock limit for one toolchain run")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
