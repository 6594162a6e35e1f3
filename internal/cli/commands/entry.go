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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rtlforge/internal/common"
	"rtlforge/internal/model"
	"rtlforge/internal/tree"
)

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Work with repository entries",
	Long: `Create, inspect, move, copy and delete entries of a repository.

Paths are slash separated and relative to the repository root. The handler
of a new file is inferred from its title unless --handler is given.

Examples:
  rtlforge entry mkdir alice/blinky rtl
  rtlforge entry put alice/blinky rtl/top.v ./top.v
  rtlforge entry cat alice/blinky rtl/top.v
  rtlforge entry mv alice/blinky rtl/top.v rtl/uart.v -- src
  rtlforge entry rm alice/blinky rtl -r`,
}

var entryLsCmd = &cobra.Command{
	Use:   "ls <owner>/<name> [path]",
	Short: "List a folder",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runEntryLs,
}

var entryMkdirCmd = &cobra.Command{
	Use:   "mkdir <owner>/<name> <path>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(2),
	RunE:  runEntryMkdir,
}

var entryPutCmd = &cobra.Command{
	Use:   "put <owner>/<name> <path> [local-file|-]",
	Short: "Create a file or replace its content",
	Long: `Create a file entry from a local file, or from stdin when the source is "-"
or omitted. An existing file at the path has its content replaced.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runEntryPut,
}

var entryCatCmd = &cobra.Command{
	Use:   "cat <owner>/<name> <path>",
	Short: "Print the content of a file",
	Args:  cobra.ExactArgs(2),
	RunE:  runEntryCat,
}

var entryMvCmd = &cobra.Command{
	Use:   "mv <owner>/<name> <path>... -- <folder>",
	Short: "Move entries into a folder",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runEntryMv,
}

var entryCpCmd = &cobra.Command{
	Use:   "cp <owner>/<name> <path>... -- <folder>",
	Short: "Copy entries into a folder",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runEntryCp,
}

var entryRenameCmd = &cobra.Command{
	Use:   "rename <owner>/<name> <path> <title>",
	Short: "Rename an entry",
	Args:  cobra.ExactArgs(3),
	RunE:  runEntryRename,
}

var entryRmCmd = &cobra.Command{
	Use:   "rm <owner>/<name> <path>",
	Short: "Delete an entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runEntryRm,
}

var entryIncludeCmd = &cobra.Command{
	Use:   "include <owner>/<name> <path> on|off",
	Short: "Include or exclude an entry from builds",
	Args:  cobra.ExactArgs(3),
	RunE:  runEntryInclude,
}

var (
	entryOverwrite bool
	entryForce     bool
	entryRecursive bool
	entryHandler   string
	entryReadOnly  bool
)

func init() {
	for _, c := range []*cobra.Command{entryPutCmd, entryMvCmd, entryCpCmd, entryRenameCmd} {
		c.Flags().BoolVar(&entryOverwrite, "overwrite", false, "replace a sibling with the same title")
	}
	for _, c := range []*cobra.Command{entryPutCmd, entryMvCmd, entryCpCmd, entryRenameCmd, entryRmCmd} {
		c.Flags().BoolVarP(&entryForce, "force", "f", false, "allow changes to protected entries and read-only folders")
	}
	entryRmCmd.Flags().BoolVarP(&entryRecursive, "recursive", "r", false, "delete a folder and everything in it")
	entryPutCmd.Flags().StringVar(&entryHandler, "handler", "", "entry handler (default: inferred from the title)")
	for _, c := range []*cobra.Command{entryPutCmd, entryMkdirCmd} {
		c.Flags().BoolVar(&entryReadOnly, "read-only", false, "create the entry read-only")
	}

	entryCmd.AddCommand(entryLsCmd, entryMkdirCmd, entryPutCmd, entryCatCmd, entryMvCmd,
		entryCpCmd, entryRenameCmd, entryRmCmd, entryIncludeCmd)
	rootCmd.AddCommand(entryCmd)
}

func treeOptions() tree.Options {
	return tree.Options{Overwrite: entryOverwrite, Force: entryForce}
}

func attrs(title string) (tree.Attrs, error) {
	a := tree.Attrs{Title: title}
	if entryHandler != "" {
		h, err := model.ParseHandler(entryHandler)
		if err != nil {
			return a, err
		}
		a.Handler = h
	}
	if entryReadOnly {
		a.Access = model.AccessRead
	}
	return a, nil
}

// withRepo opens the app and resolves args[0].
func withRepo(cmd *cobra.Command, args []string, fn func(ctx context.Context, a *app, repo *model.Repository) error) error {
	ctx := cmd.Context()
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close(ctx)
	repo, err := a.repository(ctx, args[0])
	if err != nil {
		return err
	}
	return fn(ctx, a, repo)
}

func runEntryLs(cmd *cobra.Command, args []string) error {
	return withRepo(cmd, args, func(ctx context.Context, a *app, repo *model.Repository) error {
		p := ""
		if len(args) > 1 {
			p = args[1]
		}
		dir, err := a.entry(ctx, repo, p)
		if err != nil {
			return err
		}
		children, err := a.tree.Children(ctx, dir.ID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TITLE\tHANDLER\tACCESS\tFLAGS\tUPDATED")
		for _, c := range children {
			title := c.Title
			if c.IsContainer() {
				title += "/"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", title, c.Handler, c.Access, flags(c), c.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	})
}

// flags renders the entry flags compactly: a anchor, g generated,
// x excluded, plus a non-ready state.
func flags(e *model.Entry) string {
	s := ""
	if e.Anchor {
		s += "a"
	}
	if e.Provenance == model.ProvenanceGenerated {
		s += "g"
	}
	if !e.Included {
		s += "x"
	}
	if e.State != model.StateReady {
		s += " " + string(e.State)
	}
	if s == "" {
		return "-"
	}
	return s
}

func runEntryMkdir(cmd *cobra.Command, args []string) error {
	return withRepo(cmd, args, func(ctx context.Context, a *app, repo *model.Repository) error {
		parent, err := a.entry(ctx, repo, common.ParentPath(args[1]))
		if err != nil {
			return err
		}
		at, err := attrs(common.BaseName(args[1]))
		if err != nil {
			return err
		}
		at.Handler = model.HandlerFolder
		e, err := a.tree.Create(ctx, parent.ID, at, nil, tree.Options{})
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (%s)\n", args[1], e.ID)
		return nil
	})
}

func runEntryPut(cmd *cobra.Command, args []string) error {
	var src io.Reader = os.Stdin
	if len(args) == 3 && args[2] != "-" {
		f, err := os.Open(args[2])
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}
	return withRepo(cmd, args, func(ctx context.Context, a *app, repo *model.Repository) error {
		existing, err := a.tree.Lookup(ctx, repo.ID, args[1])
		switch {
		case err == nil && !existing.IsContainer():
			if err := a.tree.SetContent(ctx, existing.ID, src, treeOptions()); err != nil {
				return err
			}
			fmt.Printf("Updated %s\n", args[1])
			return nil
		case err != nil && !errors.Is(err, common.ErrNotFound):
			return err
		}

		parent, err := a.entry(ctx, repo, common.ParentPath(args[1]))
		if err != nil {
			return err
		}
		at, err := attrs(common.BaseName(args[1]))
		if err != nil {
			return err
		}
		e, err := a.tree.Create(ctx, parent.ID, at, src, treeOptions())
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (%s, %s)\n", args[1], e.Handler, e.ID)
		return nil
	})
}

func runEntryCat(cmd *cobra.Command, args []string) error {
	return withRepo(cmd, args, func(ctx context.Context, a *app, repo *model.Repository) error {
		e, err := a.entry(ctx, repo, args[1])
		if err != nil {
			return err
		}
		rc, _, err := a.tree.ReadContent(ctx, e.ID)
		if err != nil {
			return err
		}
		defer rc.Close()
		_, err = io.Copy(os.Stdout, rc)
		return err
	})
}

// splitTarget separates the selected paths from the destination folder,
// which is always the last argument.
func splitTarget(args []string) (sources []string, folder string) {
	rest := args[1:]
	return rest[:len(rest)-1], rest[len(rest)-1]
}

func runBatch(cmd *cobra.Command, args []string, verb string, op func(ctx context.Context, t *tree.Tree, ids []string, target string) (*tree.BatchResult, error)) error {
	return withRepo(cmd, args, func(ctx context.Context, a *app, repo *model.Repository) error {
		sources, folder := splitTarget(args)
		target, err := a.entry(ctx, repo, folder)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(sources))
		names := make(map[string]string, len(sources))
		for _, p := range sources {
			e, err := a.entry(ctx, repo, p)
			if err != nil {
				return err
			}
			ids = append(ids, e.ID)
			names[e.ID] = p
		}
		res, err := op(ctx, a.tree, ids, target.ID)
		if err != nil {
			return err
		}
		for _, id := range res.Succeeded {
			fmt.Printf("%s %s -> %s\n", verb, names[id], folder)
		}
		for _, f := range res.Failed {
			fmt.Fprintf(os.Stderr, "failed: %s: %v\n", names[f.ID], f.Err)
		}
		if !res.OK() {
			return fmt.Errorf("%d of %d entries failed", len(res.Failed), len(ids))
		}
		return nil
	})
}

func runEntryMv(cmd *cobra.Command, args []string) error {
	return runBatch(cmd, args, "moved", func(ctx context.Context, t *tree.Tree, ids []string, target string) (*tree.BatchResult, error) {
		return t.MoveBatch(ctx, ids, target, treeOptions())
	})
}

func runEntryCp(cmd *cobra.Command, args []string) error {
	return runBatch(cmd, args, "copied", func(ctx context.Context, t *tree.Tree, ids []string, target string) (*tree.BatchResult, error) {
		return t.CopyBatch(ctx, ids, target, treeOptions())
	})
}

func runEntryRename(cmd *cobra.Command, args []string) error {
	return withRepo(cmd, args, func(ctx context.Context, a *app, repo *model.Repository) error {
		e, err := a.entry(ctx, repo, args[1])
		if err != nil {
			return err
		}
		_, err = a.tree.Rename(ctx, e.ID, args[2], treeOptions())
		return err
	})
}

func runEntryRm(cmd *cobra.Command, args []string) error {
	return withRepo(cmd, args, func(ctx context.Context, a *app, repo *model.Repository) error {
		e, err := a.entry(ctx, repo, args[1])
		if err != nil {
			return err
		}
		return a.tree.Delete(ctx, e.ID, tree.DeleteOptions{Recursive: entryRecursive, Force: entryForce})
	})
}

func runEntryInclude(cmd *cobra.Command, args []string) error {
	var included bool
	switch args[2] {
	case "on":
		included = true
	case "off":
	default:
		return fmt.Errorf("want on or off, got %q", args[2])
	}
	return withRepo(cmd, args, func(ctx context.Context, a *app, repo *model.Repository) error {
		e, err := a.entry(ctx, repo, args[1])
		if err != nil {
			return err
		}
		return a.tree.SetIncluded(ctx, e.ID, included)
	})
}
