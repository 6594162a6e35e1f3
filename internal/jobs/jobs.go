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

// Package jobs runs synthesis, compilation, simulation and bitstream jobs:
// materialize the selected subtree, run the generated Makefile, map the
// tool output back onto entries and store the produced artifacts.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"rtlforge/internal/common"
	"rtlforge/internal/config"
	"rtlforge/internal/diagnostics"
	"rtlforge/internal/model"
	"rtlforge/internal/toolchain"
	"rtlforge/internal/tree"
	"rtlforge/internal/util"
	"rtlforge/internal/workspace"
)

// ToolRunner executes one command in a directory.
type ToolRunner interface {
	Run(ctx context.Context, argv []string, dir string) (*toolchain.Result, error)
}

// Options tune a single job. Zero values fall back to the repository and
// the settings.
type Options struct {
	Library   string
	TopModule string
	SimTime   int64
	DumpDepth int
	// Target is the cross-compiler triple for compilation jobs.
	Target  string
	Device  string
	Package string
}

// Request describes one job. EntryIDs select the subtree root (a folder)
// and, for simulations, the testbench; an empty list builds the whole
// repository.
type Request struct {
	Kind         workspace.Kind
	RepositoryID string
	EntryIDs     []string
	Options      Options
}

// Result is the outcome of a job that reached the tool.
type Result struct {
	Kind        workspace.Kind
	Diagnostics []diagnostics.Diagnostic
	// Artifacts are the generated entries stored by a successful run.
	Artifacts []*model.Entry
	ExitCode  int
	Duration  time.Duration
	// Failure is nil, ErrTimeout or ErrToolFailed.
	Failure error
	// Workspace is set when the workspace was kept for inspection.
	Workspace string
}

// OK reports whether the tool succeeded.
func (r *Result) OK() bool {
	return r.Failure == nil
}

// Service runs jobs.
type Service struct {
	tree         *tree.Tree
	materializer *workspace.Materializer
	runner       ToolRunner
	settings     *config.Settings

	remove func(*workspace.Workspace) error
	wg     sync.WaitGroup
}

// NewService wires a job service.
func NewService(t *tree.Tree, m *workspace.Materializer, runner ToolRunner, settings *config.Settings) *Service {
	return &Service{
		tree:         t,
		materializer: m,
		runner:       runner,
		settings:     settings,
		remove:       (*workspace.Workspace).Remove,
	}
}

// Close waits for background workspace cleanups.
func (s *Service) Close() error {
	s.wg.Wait()
	return nil
}

// Run executes one job. Errors are returned for requests that never reach
// the tool (bad targets, materialization failures, caller cancellation);
// tool failures and timeouts are reported through Result.Failure.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	repo, err := s.tree.Metadata().GetRepository(ctx, req.RepositoryID)
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", req.RepositoryID, err)
	}
	wreq, err := s.workspaceRequest(ctx, repo, req)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.New(s.settings.Workspace.Root, req.Kind)
	if err != nil {
		return nil, err
	}
	res := &Result{Kind: req.Kind}
	defer s.cleanup(ws, res)

	layout, err := s.materializer.Materialize(ctx, ws, wreq)
	if err != nil {
		return nil, err
	}

	argv := []string{s.settings.Toolchain.Make, "-f", workspace.Makefile, makeTarget(req.Kind)}
	logger := log.WithFields(log.Fields{"kind": req.Kind, "repository": repo.ID, "dir": ws.Dir})
	logger.Debug("jobs: running toolchain")

	out, runErr := s.runner.Run(ctx, argv, ws.Dir)
	switch {
	case runErr == nil:
	case errors.Is(runErr, common.ErrTimeout):
		res.Failure = runErr
	default:
		return nil, runErr
	}
	if out != nil {
		res.ExitCode = out.ExitCode
		res.Duration = out.Duration
		mapper := &diagnostics.Mapper{Default: defaultGrammar(req.Kind), Paths: layout.Paths}
		res.Diagnostics = mapper.Parse(out.Output())
	}
	if res.Failure == nil && res.ExitCode != 0 {
		res.Failure = fmt.Errorf("%s exited with status %d: %w", argv[0], res.ExitCode, common.ErrToolFailed)
	}
	if res.Failure != nil {
		errs, warnings := diagnostics.Counts(res.Diagnostics)
		logger.WithFields(log.Fields{"errors": errs, "warnings": warnings}).Infof("jobs: %v", res.Failure)
		return res, nil
	}

	artifacts, err := s.storeArtifacts(ctx, ws, repo, req.Kind, wreq, layout)
	res.Artifacts = artifacts
	if errors.Is(err, common.ErrToolFailed) {
		res.Failure = err
		logger.Infof("jobs: %v", err)
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	logger.WithField("artifacts", len(artifacts)).Info("jobs: finished")
	return res, nil
}

// workspaceRequest resolves the request targets against the repository.
func (s *Service) workspaceRequest(ctx context.Context, repo *model.Repository, req Request) (workspace.Request, error) {
	o := req.Options
	wreq := workspace.Request{
		Kind:         req.Kind,
		RepositoryID: repo.ID,
		RootID:       repo.RootID,
		Top:          o.TopModule,
		SimTime:      o.SimTime,
		DumpDepth:    o.DumpDepth,
		Library:      o.Library,
		Target:       o.Target,
		Device:       o.Device,
		Package:      o.Package,
	}
	if _, err := workspace.ParseKind(string(req.Kind)); err != nil {
		return wreq, err
	}
	if wreq.Top == "" {
		wreq.Top = repo.TopModule
	}
	if wreq.SimTime <= 0 {
		wreq.SimTime = s.settings.Simulation.SimTime
	}
	if wreq.DumpDepth <= 0 {
		wreq.DumpDepth = s.settings.Simulation.DumpDepth
	}

	for _, id := range req.EntryIDs {
		e, err := s.tree.Get(ctx, id)
		if err != nil {
			return wreq, err
		}
		if e.RepositoryID != repo.ID {
			return wreq, fmt.Errorf("entry %s is not in repository %s: %w", id, repo.ID, common.ErrNotFound)
		}
		switch {
		case e.IsContainer():
			wreq.RootID = e.ID
		case e.Handler == model.HandlerTestbench:
			wreq.Testbench = e.ID
		default:
			return wreq, fmt.Errorf("%s cannot be a job target: %w", e.Title, common.ErrNotAFolder)
		}
	}
	if req.Kind == workspace.KindSimulation && wreq.Testbench == "" {
		return wreq, fmt.Errorf("simulation needs a testbench: %w", common.ErrInvalidTestbench)
	}
	return wreq, nil
}

func makeTarget(k workspace.Kind) string {
	switch k {
	case workspace.KindSynthesis:
		return "synth"
	case workspace.KindCompilation:
		return "firmware"
	case workspace.KindSimulation:
		return "sim"
	case workspace.KindBitstream:
		return "pack"
	}
	return "all"
}

// defaultGrammar parses output outside any phase section.
func defaultGrammar(k workspace.Kind) *diagnostics.Grammar {
	switch k {
	case workspace.KindCompilation:
		return diagnostics.GCC
	case workspace.KindSimulation:
		return diagnostics.Icarus
	default:
		return diagnostics.Yosys
	}
}

// cleanup removes the workspace. A failed removal is retried in the
// background and never changes the job result.
func (s *Service) cleanup(ws *workspace.Workspace, res *Result) {
	if s.settings.Workspace.Keep {
		res.Workspace = ws.Dir
		log.WithField("dir", ws.Dir).Info("jobs: keeping workspace")
		return
	}
	err := s.remove(ws)
	if err == nil {
		return
	}
	log.WithField("dir", ws.Dir).Warnf("jobs: workspace removal failed, retrying: %v", err)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := context.Background()
		onRetry := func(n uint, err error) {
			log.WithField("dir", ws.Dir).Debugf("jobs: workspace removal attempt %d failed: %v", n+1, err)
		}
		if err := util.Retry(ctx, func() error { return s.remove(ws) }, util.CleanupRetryOptions(ctx, onRetry)...); err != nil {
			log.WithField("dir", ws.Dir).Errorf("jobs: giving up on workspace removal: %v", err)
		}
	}()
}
