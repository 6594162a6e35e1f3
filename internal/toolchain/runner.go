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

// Package toolchain runs external EDA tools under a wall-clock limit.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	log "github.com/sirupsen/logrus"

	"rtlforge/internal/common"
	"rtlforge/internal/util"
)

// DefaultWaitDelay bounds how long Run waits for output streams after the
// process group has been killed.
const DefaultWaitDelay = 2 * time.Second

// Result is the captured outcome of one run.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Output returns stdout followed by stderr.
func (r *Result) Output() []byte {
	out := make([]byte, 0, len(r.Stdout)+len(r.Stderr))
	out = append(out, r.Stdout...)
	return append(out, r.Stderr...)
}

// Runner executes commands. The timeout applies to every run.
type Runner struct {
	Timeout   time.Duration
	WaitDelay time.Duration
	// Env is appended to the inherited environment.
	Env []string
}

// NewRunner returns a runner with the given process-wide timeout.
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{Timeout: timeout, WaitDelay: DefaultWaitDelay}
}

// Run executes argv in dir and captures both streams to completion. A
// non-zero exit is reported in Result.ExitCode, not as an error. When the
// timeout expires the whole process group is killed and ErrTimeout is
// returned together with whatever output was captured.
func (r *Runner) Run(ctx context.Context, argv []string, dir string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command: %w", common.ErrToolNotFound)
	}

	runCtx := ctx
	cancel := func() {}
	if r.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
	}
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	util.NewProcessGroup(cmd)
	cmd.Cancel = func() error {
		return util.KillProcessGroup(cmd)
	}
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		ExitCode: -1,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	fields := log.Fields{"tool": argv[0], "dir": dir, "duration": res.Duration.Round(time.Millisecond)}
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", argv[0], common.ErrToolNotFound)
	case ctx.Err() != nil:
		// The caller gave up; not a timeout of the tool.
		log.WithFields(fields).Debug("toolchain: run cancelled")
		return res, ctx.Err()
	case runCtx.Err() != nil:
		log.WithFields(fields).Warnf("toolchain: killed after %s", r.Timeout)
		return res, fmt.Errorf("%s exceeded %s: %w", argv[0], r.Timeout, common.ErrTimeout)
	case errors.Is(err, exec.ErrWaitDelay):
		log.WithFields(fields).Warn("toolchain: output streams did not close after exit")
		return res, nil
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.WithFields(fields).WithField("exit_code", res.ExitCode).Debug("toolchain: non-zero exit")
			return res, nil
		}
		return nil, fmt.Errorf("failed to run %s: %w", argv[0], err)
	}
	log.WithFields(fields).Debug("toolchain: run finished")
	return res, nil
}
