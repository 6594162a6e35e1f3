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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"rtlforge/internal/diagnostics"
	"rtlforge/internal/jobs"
	"rtlforge/internal/model"
	"rtlforge/internal/toolchain"
	"rtlforge/internal/workspace"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Run toolchain jobs",
	Long: `Run synthesis, compilation, simulation and bitstream jobs.

Each job stages the selected subtree in a fresh workspace, runs the matching
toolchain through make, reports the diagnostics mapped back onto repository
entries and, on success, stores the produced artifacts as generated entries.

Arguments after the repository are entry paths: a folder selects the
subtree to build (default: the whole repository), a testbench selects what
to simulate.

Examples:
  rtlforge job synth alice/blinky
  rtlforge job sim alice/blinky tb/top_tb.v --sim-time 20000
  rtlforge job compile alice/blinky --target riscv32-unknown-elf
  rtlforge job bitstream alice/blinky --device up5k --package sg48 -o json`,
}

var jobOpts struct {
	jobs.Options
	format string
}

func newJobCmd(use, short string, kind workspace.Kind) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " <owner>/<name> [path...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, args, kind)
		},
	}
	f := c.Flags()
	f.StringVar(&jobOpts.TopModule, "top", "", "top-level module (default: the repository's)")
	f.StringVarP(&jobOpts.format, "output", "o", "text", "output format: text, json or yaml")
	switch kind {
	case workspace.KindSynthesis:
		f.StringVar(&jobOpts.Library, "library", "", "standard-cell liberty library")
	case workspace.KindSimulation:
		f.Int64Var(&jobOpts.SimTime, "sim-time", 0, "simulation time before $finish")
		f.IntVar(&jobOpts.DumpDepth, "dump-depth", 0, "$dumpvars depth (0 dumps everything)")
	case workspace.KindCompilation:
		f.StringVar(&jobOpts.Target, "target", "", "cross-compiler triple")
	case workspace.KindBitstream:
		f.StringVar(&jobOpts.Device, "device", "", "FPGA device (default hx8k)")
		f.StringVar(&jobOpts.Package, "package", "", "FPGA package (default ct256)")
	}
	return c
}

func init() {
	jobCmd.AddCommand(
		newJobCmd("synth", "Synthesize the design", workspace.KindSynthesis),
		newJobCmd("compile", "Compile the firmware", workspace.KindCompilation),
		newJobCmd("sim", "Simulate a testbench", workspace.KindSimulation),
		newJobCmd("bitstream", "Place, route and pack a bitstream", workspace.KindBitstream),
	)
	rootCmd.AddCommand(jobCmd)
}

// report is the machine-readable job summary.
type report struct {
	Kind        string                   `json:"kind" yaml:"kind"`
	OK          bool                     `json:"ok" yaml:"ok"`
	ExitCode    int                      `json:"exit_code" yaml:"exit_code"`
	Failure     string                   `json:"failure,omitempty" yaml:"failure,omitempty"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics" yaml:"diagnostics"`
	Artifacts   []string                 `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Workspace   string                   `json:"workspace,omitempty" yaml:"workspace,omitempty"`
}

func runJob(cmd *cobra.Command, args []string, kind workspace.Kind) error {
	return withRepo(cmd, args, func(ctx context.Context, a *app, repo *model.Repository) error {
		mat, err := workspace.NewMaterializer(a.store, a.blobs, workspace.Options{
			Tools:          settings.Toolchain,
			ParallelWrites: settings.Workspace.ParallelWrites,
		})
		if err != nil {
			return err
		}
		svc := jobs.NewService(a.tree, mat, toolchain.NewRunner(settings.Toolchain.Timeout), settings)
		defer svc.Close()

		var ids []string
		for _, p := range args[1:] {
			e, err := a.entry(ctx, repo, p)
			if err != nil {
				return err
			}
			ids = append(ids, e.ID)
		}

		res, err := svc.Run(ctx, jobs.Request{Kind: kind, RepositoryID: repo.ID, EntryIDs: ids, Options: jobOpts.Options})
		if err != nil {
			return err
		}
		rep := report{
			Kind:        string(res.Kind),
			OK:          res.OK(),
			ExitCode:    res.ExitCode,
			Diagnostics: res.Diagnostics,
			Workspace:   res.Workspace,
		}
		if res.Failure != nil {
			rep.Failure = res.Failure.Error()
		}
		for _, e := range res.Artifacts {
			rep.Artifacts = append(rep.Artifacts, e.Title)
		}
		if err := writeReport(os.Stdout, jobOpts.format, rep); err != nil {
			return err
		}
		return res.Failure
	})
}

func writeReport(w io.Writer, format string, rep report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	for _, d := range rep.Diagnostics {
		loc := d.File
		if loc == "" {
			loc = "-"
		} else if d.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, d.Line)
			if d.Column > 0 {
				loc = fmt.Sprintf("%s:%d", loc, d.Column)
			}
		}
		phase := ""
		if d.Phase != "" {
			phase = " [" + d.Phase + "]"
		}
		fmt.Fprintf(w, "%s: %s: %s%s\n", loc, d.Severity, d.Message, phase)
	}
	errs, warnings := diagnostics.Counts(rep.Diagnostics)
	status := "succeeded"
	if !rep.OK {
		status = "failed"
	}
	fmt.Fprintf(w, "%s %s: %d error(s), %d warning(s)\n", rep.Kind, status, errs, warnings)
	if len(rep.Artifacts) > 0 {
		fmt.Fprintf(w, "artifacts: %s\n", strings.Join(rep.Artifacts, ", "))
	}
	if rep.Workspace != "" {
		fmt.Fprintf(w, "workspace kept at %s\n", rep.Workspace)
	}
	return nil
}
