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

// Package config loads rtlforge settings. Values are layered: embedded
// defaults, the settings file, .env files, RTLFORGE_* variables, flags.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"rtlforge/internal/artifacts"
)

// EnvConfigDir overrides the configuration directory.
const EnvConfigDir = "RTLFORGE_CONFIG_DIR"

// Settings is the full rtlforge configuration.
type Settings struct {
	DataDir       string `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days" yaml:"log_max_age_days"`
	LogCompress   bool   `mapstructure:"log_compress" yaml:"log_compress"`
	BusyTimeout   int    `mapstructure:"busy_timeout" yaml:"busy_timeout"`

	Content    ContentSettings    `mapstructure:"content" yaml:"content"`
	Toolchain  ToolchainSettings  `mapstructure:"toolchain" yaml:"toolchain"`
	Workspace  WorkspaceSettings  `mapstructure:"workspace" yaml:"workspace"`
	Reclaim    ReclaimSettings    `mapstructure:"reclaim" yaml:"reclaim"`
	Simulation SimulationSettings `mapstructure:"simulation" yaml:"simulation"`
}

// ContentSettings selects the blob backend.
type ContentSettings struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // fs or db
	Path    string `mapstructure:"path" yaml:"path"`
}

// ToolchainSettings names the external executables and the run timeout.
type ToolchainSettings struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Make       string        `mapstructure:"make" yaml:"make"`
	Yosys      string        `mapstructure:"yosys" yaml:"yosys"`
	Iverilog   string        `mapstructure:"iverilog" yaml:"iverilog"`
	VVP        string        `mapstructure:"vvp" yaml:"vvp"`
	Verilator  string        `mapstructure:"verilator" yaml:"verilator"`
	Nextpnr    string        `mapstructure:"nextpnr" yaml:"nextpnr"`
	Icepack    string        `mapstructure:"icepack" yaml:"icepack"`
	GCCPrefix  string        `mapstructure:"gcc_prefix" yaml:"gcc_prefix"`
	LibraryDir string        `mapstructure:"library_dir" yaml:"library_dir"`
}

// WorkspaceSettings controls job workspaces.
type WorkspaceSettings struct {
	Root           string `mapstructure:"root" yaml:"root"`
	ParallelWrites int    `mapstructure:"parallel_writes" yaml:"parallel_writes"`
	Keep           bool   `mapstructure:"keep" yaml:"keep"`
}

// ReclaimSettings controls the release queue and the sweeper.
type ReclaimSettings struct {
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	Retention   time.Duration `mapstructure:"retention" yaml:"retention"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BatchSize   int           `mapstructure:"batch_size" yaml:"batch_size"`
}

// SimulationSettings are defaults for simulation jobs.
type SimulationSettings struct {
	SimTime   int64 `mapstructure:"sim_time" yaml:"sim_time"`
	DumpDepth int   `mapstructure:"dump_depth" yaml:"dump_depth"`
}

// ConfigDir returns the configuration directory.
// Uses RTLFORGE_CONFIG_DIR if set, otherwise ~/.rtlforge.
func ConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rtlforge")
}

// SettingsPath returns the settings file path inside dir.
func SettingsPath(dir string) string {
	return filepath.Join(dir, "settings.yaml")
}

// LockPath returns the sweeper lock file path inside dir.
func LockPath(dir string) string {
	return filepath.Join(dir, "sweep.lock")
}

// ApplyDefaults fills zero-value fields with their defaults.
func (s *Settings) ApplyDefaults(configDir string) {
	if s.DataDir == "" {
		s.DataDir = filepath.Join(configDir, "data")
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.Content.Backend == "" {
		s.Content.Backend = "fs"
	}
	if s.Content.Path == "" {
		s.Content.Path = filepath.Join(s.DataDir, "blobs")
	}
	if s.Toolchain.Timeout <= 0 {
		s.Toolchain.Timeout = 2 * time.Minute
	}
	if s.Toolchain.Make == "" {
		s.Toolchain.Make = "make"
	}
	if s.Workspace.Root == "" {
		s.Workspace.Root = os.TempDir()
	}
	if s.Workspace.ParallelWrites <= 0 {
		s.Workspace.ParallelWrites = 8
	}
	if s.Reclaim.Interval <= 0 {
		s.Reclaim.Interval = 30 * time.Second
	}
	if s.Reclaim.Retention <= 0 {
		s.Reclaim.Retention = 7 * 24 * time.Hour
	}
	if s.Reclaim.MaxAttempts <= 0 {
		s.Reclaim.MaxAttempts = 8
	}
	if s.Reclaim.BatchSize <= 0 {
		s.Reclaim.BatchSize = 100
	}
	if s.Simulation.SimTime <= 0 {
		s.Simulation.SimTime = 100000
	}
}

// Validate rejects settings no component can run with.
func (s *Settings) Validate() error {
	switch s.Content.Backend {
	case "fs", "db":
	default:
		return fmt.Errorf("content.backend: unknown backend %q (want fs or db)", s.Content.Backend)
	}
	if s.Simulation.DumpDepth < 0 {
		return fmt.Errorf("simulation.dump_depth: must not be negative")
	}
	return nil
}

// MetaPath returns the metadata database path.
func (s *Settings) MetaPath() string {
	return filepath.Join(s.DataDir, "meta.db")
}

// LoadOptions controls Load.
type LoadOptions struct {
	// ConfigDir overrides ConfigDir().
	ConfigDir string
	// Flags maps flag names in FlagKeys to settings keys. Only flags the
	// user actually set take precedence over the other sources.
	Flags    *pflag.FlagSet
	FlagKeys map[string]string
}

// Load resolves the settings from every source.
func Load(opts LoadOptions) (*Settings, error) {
	dir := opts.ConfigDir
	if dir == "" {
		dir = ConfigDir()
	}

	// Missing .env files are fine.
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
		_ = godotenv.Load(filepath.Join(dir, envFile))
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(artifacts.GlobalSettings)); err != nil {
		return nil, fmt.Errorf("embedded settings: %w", err)
	}

	path := SettingsPath(dir)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("RTLFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range opts.FlagKeys {
			f := opts.Flags.Lookup(name)
			if f == nil {
				return nil, fmt.Errorf("unknown flag %q bound to %s", name, key)
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	s.ApplyDefaults(dir)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Defaults returns the embedded default settings.
func Defaults() (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &s); err != nil {
		return nil, fmt.Errorf("failed to parse embedded settings: %w", err)
	}
	return &s, nil
}

// InitConfigDir creates dir and writes the default settings file unless
// one already exists. Returns the settings file path.
func InitConfigDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	path := SettingsPath(dir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, artifacts.GlobalSettings, 0o600); err != nil {
			return "", fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return path, nil
}

// Save writes s to the settings file in dir.
func Save(dir string, s *Settings) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	header := []byte("# rtlforge settings\n# See: rtlforge config --help\n\n")
	return os.WriteFile(SettingsPath(dir), append(header, data...), 0o600)
}
