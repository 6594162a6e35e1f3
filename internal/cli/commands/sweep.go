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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"rtlforge/internal/config"
	"rtlforge/internal/reclaim"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Release superseded content and purge deleted entries",
	Long: `Drain the content release queue, then physically remove entries that were
deleted longer ago than reclaim.retention.

Only one sweep runs at a time; a concurrent sweep exits without doing
anything.

Examples:
  rtlforge sweep
  RTLFORGE_RECLAIM_RETENTION=1h rtlforge sweep`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close(ctx)

	released, err := a.releaser.Drain(ctx)
	if err != nil {
		return fmt.Errorf("release queue: %w", err)
	}

	dir := configDir
	if dir == "" {
		dir = config.ConfigDir()
	}
	sw := reclaim.NewSweeper(a.store, config.LockPath(dir), settings.Reclaim.Retention, settings.Reclaim.BatchSize)
	purged, err := sw.Sweep(ctx)
	if errors.Is(err, reclaim.ErrSweepLocked) {
		fmt.Println("Another sweep is running.")
		return nil
	}
	if err != nil {
		return err
	}

	// The purge queued the content of the removed entries.
	more, err := a.releaser.Drain(ctx)
	if err != nil {
		return fmt.Errorf("release queue: %w", err)
	}
	fmt.Printf("Released %d blobs, purged %d entries\n", released+more, purged)
	return nil
}
