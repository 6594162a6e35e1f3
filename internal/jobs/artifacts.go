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

package jobs

import (
	"context"
	"fmt"
	"path"

	log "github.com/sirupsen/logrus"

	"rtlforge/internal/common"
	"rtlforge/internal/model"
	"rtlforge/internal/tree"
	"rtlforge/internal/workspace"
)

// output is one file a successful job leaves in the dump directory.
type output struct {
	name    string
	handler model.Handler
	// anchor picks the destination folder.
	anchor func(r *model.Repository) string
	// consumed outputs stay included so later jobs pick them up.
	consumed bool
}

func buildAnchor(r *model.Repository) string { return r.BuildID }
func hexAnchor(r *model.Repository) string   { return r.HexID }

func outputs(k workspace.Kind, top, module string) []output {
	switch k {
	case workspace.KindSynthesis:
		return []output{
			{name: top + ".synth.rpt", handler: model.HandlerSynthReport, anchor: buildAnchor},
			{name: top + ".netlist.v", handler: model.HandlerNetlist, anchor: buildAnchor},
		}
	case workspace.KindCompilation:
		return []output{{name: "firmware.hex", handler: model.HandlerHex, anchor: hexAnchor, consumed: true}}
	case workspace.KindSimulation:
		return []output{{name: module + ".vcd", handler: model.HandlerVCD, anchor: buildAnchor}}
	case workspace.KindBitstream:
		return []output{
			{name: top + ".bin", handler: model.HandlerBinary, anchor: buildAnchor},
			{name: top + ".sta.rpt", handler: model.HandlerTimingReport, anchor: buildAnchor},
		}
	}
	return nil
}

// storeArtifacts copies the job outputs into the repository as generated,
// read-only entries, replacing the outputs of earlier runs.
func (s *Service) storeArtifacts(ctx context.Context, ws *workspace.Workspace, repo *model.Repository, k workspace.Kind, req workspace.Request, layout *workspace.Layout) ([]*model.Entry, error) {
	module := layout.Testbenches[req.Testbench]
	outs := outputs(k, req.Top, module)
	// All outputs must exist before any earlier artifact is replaced.
	for _, o := range outs {
		src := path.Join(workspace.DumpDir, o.name)
		if _, err := ws.FS().Stat(src); err != nil {
			log.WithField("file", src).Debugf("jobs: stat output: %v", err)
			return nil, fmt.Errorf("expected output %s is missing: %w", src, common.ErrToolFailed)
		}
	}

	var stored []*model.Entry
	for _, o := range outs {
		src := path.Join(workspace.DumpDir, o.name)
		f, err := ws.FS().Open(src)
		if err != nil {
			return stored, fmt.Errorf("failed to open %s: %w", src, err)
		}
		e, err := s.tree.Create(ctx, o.anchor(repo), tree.Attrs{
			Title:      o.name,
			Handler:    o.handler,
			Access:     model.AccessRead,
			Provenance: model.ProvenanceGenerated,
			Excluded:   !o.consumed,
		}, f, tree.Options{Overwrite: true, Force: true})
		f.Close()
		if err != nil {
			return stored, fmt.Errorf("failed to store %s: %w", o.name, err)
		}
		log.WithFields(log.Fields{"entry": e.ID, "title": e.Title}).Debug("jobs: stored artifact")
		stored = append(stored, e)
	}
	return stored, nil
}
