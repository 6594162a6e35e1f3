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
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"rtlforge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage settings",
	Long: `Manage rtlforge settings.

Settings are read from the embedded defaults, then settings.yaml in the
config directory, then .env files, then RTLFORGE_* environment variables,
then command-line flags.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings file",
	Long: `Create the config directory and write settings.yaml with the defaults.
An existing settings file is left untouched.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	dir := configDir
	if dir == "" {
		dir = config.ConfigDir()
	}
	if _, err := os.Stat(config.SettingsPath(dir)); err == nil {
		fmt.Printf("Settings already exist at %s (not modified)\n", config.SettingsPath(dir))
		return nil
	}
	path, err := config.InitConfigDir(dir)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote default settings to %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return err
	}
	return enc.Close()
}
