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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rtlforge/internal/tree"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage repositories",
	Long: `Manage hardware design repositories.

Every repository starts with four folders: build and hex hold generated
artifacts (read-only), software holds firmware sources and ipcores holds
IP core references.

Examples:
  rtlforge repo init alice/blinky --top top
  rtlforge repo ls alice
  rtlforge repo top alice/blinky uart_top rtl/uart_top.v`,
}

var repoInitCmd = &cobra.Command{
	Use:   "init <owner>/<name>",
	Short: "Create a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoInit,
}

var repoLsCmd = &cobra.Command{
	Use:   "ls <owner>",
	Short: "List an owner's repositories",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoLs,
}

var repoTopCmd = &cobra.Command{
	Use:   "top <owner>/<name> <module> [path]",
	Short: "Set the top-level module",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runRepoTop,
}

var (
	repoTopModule string
	repoPrivate   bool
)

func init() {
	repoInitCmd.Flags().StringVar(&repoTopModule, "top", "", "top-level module name")
	repoInitCmd.Flags().BoolVar(&repoPrivate, "private", false, "mark the repository private")

	repoCmd.AddCommand(repoInitCmd, repoLsCmd, repoTopCmd)
	rootCmd.AddCommand(repoCmd)
}

func runRepoInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close(ctx)

	owner, name, err := splitRef(args[0])
	if err != nil {
		return err
	}
	repo, err := a.tree.InitRepository(ctx, owner, name, tree.RepoOptions{Private: repoPrivate, TopModule: repoTopModule})
	if err != nil {
		return err
	}
	fmt.Printf("Initialized repository %s/%s (#%d, %s)\n", repo.Owner, repo.Name, repo.Number, repo.ID)
	return nil
}

func runRepoLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close(ctx)

	repos, err := a.store.ListRepositories(ctx, args[0])
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		fmt.Println("No repositories.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tTOP\tCREATED")
	for _, r := range repos {
		top := r.TopModule
		if top == "" {
			top = "-"
		}
		fmt.Fprintf(w, "%d\t%s/%s\t%s\t%s\n", r.Number, r.Owner, r.Name, top, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runRepoTop(cmd *cobra.Command, args []string) error {
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
	var entryID string
	if len(args) == 3 {
		e, err := a.entry(ctx, repo, args[2])
		if err != nil {
			return err
		}
		entryID = e.ID
	}
	return a.tree.SetTopModule(ctx, repo.ID, args[1], entryID)
}
