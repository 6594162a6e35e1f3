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

package workspace

import (
	"bytes"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/go-git/go-billy/v5/util"

	"rtlforge/internal/artifacts"
	"rtlforge/internal/common"
	"rtlforge/internal/config"
	"rtlforge/internal/model"
)

// Makefile is the name of the generated build file.
const Makefile = "Makefile"

// templateData feeds the embedded build templates.
type templateData struct {
	Top             string
	Sources         []string
	Testbench       string
	TestbenchModule string
	LibraryPath     string
	IncludeDirs     []string
	Linker          string
	Device          string
	Package         string
	Constraints     string
	Tools           config.ToolchainSettings
}

func parseTemplates() (*template.Template, error) {
	t, err := template.New("rtlforge").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(artifacts.Templates, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse build templates: %w", err)
	}
	return t, nil
}

// scripts lists the files rendered for each kind, template first.
func scripts(k Kind) [][2]string {
	switch k {
	case KindSynthesis:
		return [][2]string{{"synthesis.mk.tmpl", Makefile}, {"synth.ys.tmpl", "synth.ys"}}
	case KindCompilation:
		return [][2]string{{"compilation.mk.tmpl", Makefile}}
	case KindSimulation:
		return [][2]string{{"simulation.mk.tmpl", Makefile}}
	case KindBitstream:
		return [][2]string{{"bitstream.mk.tmpl", Makefile}, {"bitstream.ys.tmpl", "bitstream.ys"}}
	}
	return nil
}

func (p *planner) templateData() (*templateData, error) {
	req := p.req
	src := p.layout.Sources
	d := &templateData{
		Top:     req.Top,
		Device:  req.Device,
		Package: req.Package,
		Tools:   p.m.opts.Tools,
	}
	hdl := append(append([]string(nil), src[model.HandlerVerilog]...), src[model.HandlerNetlist]...)
	sort.Strings(hdl)

	switch req.Kind {
	case KindSynthesis, KindBitstream:
		if d.Top == "" {
			return nil, ErrNoTopModule
		}
		d.Sources = hdl
		if req.Library != "" {
			d.LibraryPath = libraryPath(p.m.opts.Tools.LibraryDir, req.Library)
		}
		if pcf := src[model.HandlerPCF]; len(pcf) > 0 {
			d.Constraints = pcf[0]
		}
		if req.Kind == KindBitstream {
			if d.Device == "" {
				d.Device = "hx8k"
			}
			if d.Package == "" {
				d.Package = "ct256"
			}
		}
	case KindSimulation:
		tb, ok := p.layout.Testbenches[req.Testbench]
		if !ok {
			return nil, fmt.Errorf("testbench %s is not part of the workspace: %w", req.Testbench, common.ErrInvalidTestbench)
		}
		d.Sources = hdl
		d.Testbench = p.layout.Files[req.Testbench]
		d.TestbenchModule = tb
	case KindCompilation:
		d.Sources = append(append([]string(nil), src[model.HandlerCSource]...), src[model.HandlerStartup]...)
		sort.Strings(d.Sources)
		dirs := map[string]bool{}
		for _, h := range src[model.HandlerHeader] {
			dirs[path.Dir(h)] = true
		}
		for dir := range dirs {
			d.IncludeDirs = append(d.IncludeDirs, dir)
		}
		sort.Strings(d.IncludeDirs)
		if ld := src[model.HandlerLinker]; len(ld) > 0 {
			d.Linker = ld[0]
		}
		if req.Target != "" {
			d.Tools.GCCPrefix = strings.TrimSuffix(req.Target, "-") + "-"
		}
	default:
		return nil, fmt.Errorf("unknown job kind %q", req.Kind)
	}
	return d, nil
}

func libraryPath(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if filepath.Ext(name) != ".lib" {
		name += ".lib"
	}
	return filepath.Join(dir, name)
}

// render writes the build scripts for kind into ws.
func (m *Materializer) render(ws *Workspace, layout *Layout, kind Kind, data *templateData) error {
	for _, s := range scripts(kind) {
		var buf bytes.Buffer
		if err := m.tmpl.ExecuteTemplate(&buf, s[0], data); err != nil {
			return fmt.Errorf("render %s: %w", s[0], err)
		}
		if err := util.WriteFile(ws.FS(), s[1], buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write %s: %w: %w", s[1], common.ErrWorkspace, err)
		}
		layout.Generated = append(layout.Generated, s[1])
	}
	return nil
}
