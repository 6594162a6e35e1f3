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

// Package workspace projects a repository subtree onto an isolated
// directory for one build job and keeps the mapping between on-disk paths
// and entry identifiers.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"rtlforge/internal/common"
	"rtlforge/internal/model"
)

// Kind is the job kind a workspace is materialized for.
type Kind string

const (
	KindSynthesis   Kind = "synthesis"
	KindCompilation Kind = "compilation"
	KindSimulation  Kind = "simulation"
	KindBitstream   Kind = "bitstream"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSynthesis, KindCompilation, KindSimulation, KindBitstream:
		return k, nil
	}
	return "", fmt.Errorf("unknown job kind %q", s)
}

// Participates reports whether files of handler h are materialized for
// jobs of kind k. Containers always participate.
func (k Kind) Participates(h model.Handler) bool {
	switch h {
	case model.HandlerRoot, model.HandlerFolder:
		return true
	case model.HandlerVerilog, model.HandlerNetlist, model.HandlerIPRef:
		return k != KindCompilation
	case model.HandlerTestbench:
		return k == KindSynthesis || k == KindSimulation
	case model.HandlerHex:
		return k == KindSimulation
	case model.HandlerPCF, model.HandlerDCF:
		return k == KindBitstream
	case model.HandlerCSource, model.HandlerHeader, model.HandlerLinker, model.HandlerStartup:
		return k == KindCompilation
	case model.HandlerUnknown, model.HandlerText, model.HandlerFSM, model.HandlerSOC, model.HandlerSYS,
		model.HandlerSynthReport, model.HandlerTimingReport, model.HandlerVCD, model.HandlerObject,
		model.HandlerBinary:
		return false
	}
	panic(fmt.Sprintf("unhandled handler %d", int(h)))
}

// Workspace is a uniquely named scratch directory owned by one job.
type Workspace struct {
	Dir  string
	Kind Kind
	fs   billy.Filesystem
}

// New creates rtlforge-<kind>-<uuid> under root, or under the system
// temporary directory when root is empty.
func New(root string, kind Kind) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, fmt.Sprintf("rtlforge-%s-%s", kind, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w: %w", common.ErrWorkspace, err)
	}
	log.WithField("dir", dir).Debug("workspace: created")
	return &Workspace{Dir: dir, Kind: kind, fs: osfs.New(dir)}, nil
}

// FS returns a filesystem rooted at the workspace directory.
func (w *Workspace) FS() billy.Filesystem {
	return w.fs
}

// Abs returns the absolute path of a workspace-relative slash path.
func (w *Workspace) Abs(rel string) string {
	return filepath.Join(w.Dir, filepath.FromSlash(rel))
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w: %w", w.Dir, common.ErrWorkspace, err)
	}
	return nil
}
