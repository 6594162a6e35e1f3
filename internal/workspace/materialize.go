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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"text/template"

	"github.com/go-git/go-billy/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"rtlforge/internal/common"
	"rtlforge/internal/config"
	"rtlforge/internal/content"
	"rtlforge/internal/model"
	"rtlforge/internal/tree"
)

// ErrNoTopModule is returned when a job needs a top module and none is set.
var ErrNoTopModule = errors.New("top module not set")

// DumpDir is the workspace directory tools write their outputs to.
const DumpDir = "out"

// Source is the metadata the materializer reads.
type Source interface {
	GetEntry(ctx context.Context, id string) (*model.Entry, error)
	FindEntries(ctx context.Context, q model.EntryQuery) ([]*model.Entry, error)
	FindContents(ctx context.Context, entryIDs []string) ([]*model.FileContent, error)
}

// Request selects what to materialize and how.
type Request struct {
	Kind         Kind
	RepositoryID string
	// RootID is the subtree to materialize; empty means the repository root.
	RootID string
	// Testbench is the entry id of the testbench to simulate.
	Testbench string
	Top       string
	SimTime   int64
	DumpDepth int
	// Library names a standard-cell liberty file under the library directory.
	Library string
	// Target is a cross-compiler triple such as riscv64-unknown-elf.
	Target  string
	Device  string
	Package string
}

// Options configure a Materializer.
type Options struct {
	Tools          config.ToolchainSettings
	ParallelWrites int
}

// Folder is a materialized folder.
type Folder struct {
	Abs string
	Rel string
}

// Layout describes a materialized workspace.
type Layout struct {
	Dir     string
	Folders map[string]Folder
	Files   map[string]string
	Paths   *PathMap
	// Testbenches maps testbench entry ids to their module names.
	Testbenches map[string]string
	// IPCores maps IP reference entry ids to the directory they expand into.
	IPCores map[string]string
	// Sources lists relative file paths per handler, sorted.
	Sources   map[model.Handler][]string
	Generated []string
}

// Materializer projects repository subtrees onto workspaces.
type Materializer struct {
	source Source
	blobs  content.Store
	opts   Options
	tmpl   *template.Template
}

// NewMaterializer returns a materializer reading from source and blobs.
func NewMaterializer(source Source, blobs content.Store, opts Options) (*Materializer, error) {
	if opts.ParallelWrites <= 0 {
		opts.ParallelWrites = 8
	}
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Materializer{source: source, blobs: blobs, opts: opts, tmpl: tmpl}, nil
}

type plannedFile struct {
	id      string
	rel     string
	handler model.Handler
	handle  content.Handle
	body    []byte // replaces the blob when set
}

type planner struct {
	m      *Materializer
	req    Request
	layout *Layout
	files  []plannedFile
	dirs   []string
}

// Materialize plans the whole workspace, validating every entry, and only
// then writes the files. A planning error leaves ws untouched; a write
// error may leave partial output, which the caller removes with ws.
func (m *Materializer) Materialize(ctx context.Context, ws *Workspace, req Request) (*Layout, error) {
	if req.Kind == "" {
		req.Kind = ws.Kind
	}
	p := &planner{
		m:   m,
		req: req,
		layout: &Layout{
			Dir:         ws.Dir,
			Folders:     make(map[string]Folder),
			Files:       make(map[string]string),
			Paths:       NewPathMap(ws.Dir),
			Testbenches: make(map[string]string),
			IPCores:     make(map[string]string),
			Sources:     make(map[model.Handler][]string),
		},
	}
	if err := p.planTree(ctx, req.RepositoryID, req.RootID, "", 0); err != nil {
		return nil, err
	}
	for h := range p.layout.Sources {
		sort.Strings(p.layout.Sources[h])
	}
	data, err := p.templateData()
	if err != nil {
		return nil, err
	}

	if err := m.write(ctx, ws, p); err != nil {
		return nil, err
	}
	if err := m.render(ws, p.layout, req.Kind, data); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"kind":    req.Kind,
		"dir":     ws.Dir,
		"files":   len(p.layout.Files),
		"folders": len(p.layout.Folders),
	}).Debug("workspace: materialized")
	return p.layout, nil
}

func (p *planner) addPath(id, rel string) error {
	if other, ok := p.layout.Paths.ByPath[common.NormalizePath(rel)]; ok && other != id {
		return fmt.Errorf("%s is claimed by two entries: %w", rel, common.ErrNameConflict)
	}
	p.layout.Paths.Add(id, rel)
	return nil
}

func (p *planner) addFolder(id, rel string) error {
	if err := p.addPath(id, rel); err != nil {
		return err
	}
	p.layout.Folders[id] = Folder{Abs: p.m.absPath(p.layout.Dir, rel), Rel: rel}
	if rel != "" {
		p.dirs = append(p.dirs, rel)
	}
	return nil
}

func (m *Materializer) absPath(dir, rel string) string {
	if rel == "" {
		return dir
	}
	return filepath.Join(dir, filepath.FromSlash(rel))
}

// planTree plans the subtree at rootID of repository repoID into the
// workspace directory base. depth counts the IP references followed.
func (p *planner) planTree(ctx context.Context, repoID, rootID, base string, depth int) error {
	arena, err := tree.LoadArena(ctx, p.m.source, repoID)
	if err != nil {
		return err
	}
	if rootID == "" {
		rootID = arena.RootID
	}
	root := arena.Get(rootID)
	if root == nil {
		return fmt.Errorf("subtree %s of repository %s: %w", rootID, repoID, common.ErrNotFound)
	}

	ids := arena.PreOrder(rootID)
	contents, err := p.m.source.FindContents(ctx, ids)
	if err != nil {
		return err
	}
	handles := make(map[string]content.Handle, len(contents))
	for _, c := range contents {
		handles[c.EntryID] = content.Handle(c.Handle)
	}

	// An excluded ancestor up to the repository root excludes the subtree.
	excluded := false
	for _, anc := range arena.Ancestors(rootID) {
		if !anc.Included {
			excluded = true
			break
		}
	}

	if !root.IsContainer() {
		if excluded {
			return nil
		}
		return p.planFile(ctx, root, path.Join(base, common.EncodeSegment(root.Title)), handles, depth)
	}
	if err := p.addFolder(root.ID, base); err != nil {
		return err
	}
	if excluded || !root.Included {
		return nil
	}

	matcher, err := p.loadIgnores(ctx, arena, rootID, handles)
	if err != nil {
		return err
	}

	// Every inclusion decision is made here, before any write.
	var visit func(id, decoded, rel string) error
	visit = func(id, decoded, rel string) error {
		for _, cid := range arena.Children[id] {
			c := arena.Get(cid)
			if !c.Included {
				continue
			}
			cdec := path.Join(decoded, c.Title)
			if matcher.isIgnored(cdec, c.IsContainer()) {
				continue
			}
			crel := path.Join(rel, common.EncodeSegment(c.Title))
			if c.IsContainer() {
				if err := p.addFolder(c.ID, crel); err != nil {
					return err
				}
				if err := visit(c.ID, cdec, crel); err != nil {
					return err
				}
				continue
			}
			if !p.req.Kind.Participates(c.Handler) {
				continue
			}
			if c.Handler == model.HandlerIPRef {
				if err := p.planIP(ctx, c, handles[c.ID], rel, depth); err != nil {
					return err
				}
				continue
			}
			if err := p.planFile(ctx, c, crel, handles, depth); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(rootID, "", base)
}

func (p *planner) loadIgnores(ctx context.Context, arena *tree.Arena, rootID string, handles map[string]content.Handle) (*ignoreMatcher, error) {
	m := &ignoreMatcher{}
	var walk func(id, decoded string) error
	walk = func(id, decoded string) error {
		for _, cid := range arena.Children[id] {
			c := arena.Get(cid)
			if c.IsContainer() {
				if err := walk(c.ID, path.Join(decoded, c.Title)); err != nil {
					return err
				}
				continue
			}
			if c.Title != IgnoreFile {
				continue
			}
			h, ok := handles[c.ID]
			if !ok {
				continue
			}
			body, err := p.m.blobs.Read(ctx, h)
			if err != nil {
				return fmt.Errorf("read %s: %w", IgnoreFile, err)
			}
			m.add(decoded, body)
		}
		return nil
	}
	return m, walk(rootID, "")
}

func (p *planner) planIP(ctx context.Context, ref *model.Entry, h content.Handle, rel string, depth int) error {
	if depth+1 > MaxIPDepth {
		return fmt.Errorf("IP reference %q at depth %d: %w", ref.Title, depth+1, common.ErrIPDepthExceeded)
	}
	if h == "" {
		return fmt.Errorf("IP reference %q has no content: %w", ref.Title, common.ErrInvalidIPReference)
	}
	body, err := p.m.blobs.Read(ctx, h)
	if err != nil {
		return err
	}
	manifest, err := ParseIPManifest(body)
	if err != nil {
		return fmt.Errorf("IP reference %q: %w", ref.Title, err)
	}
	dir := path.Join(rel, common.EncodeSegment(ipDirName(ref.Title)))
	p.layout.IPCores[ref.ID] = dir
	if manifest.Entry != "" {
		e, err := p.m.source.GetEntry(ctx, manifest.Entry)
		if err != nil || e.Deleted || e.RepositoryID != manifest.Repository {
			return fmt.Errorf("IP reference %q points at missing entry %s: %w", ref.Title, manifest.Entry, common.ErrInvalidIPReference)
		}
		if !e.IsContainer() {
			p.dirs = append(p.dirs, dir)
		}
	}
	return p.planTree(ctx, manifest.Repository, manifest.Entry, dir, depth+1)
}

func (p *planner) planFile(ctx context.Context, e *model.Entry, rel string, handles map[string]content.Handle, depth int) error {
	if e.Handler == model.HandlerIPRef {
		return p.planIP(ctx, e, handles[e.ID], path.Dir(rel), depth)
	}
	h, ok := handles[e.ID]
	if !ok {
		return fmt.Errorf("%q: %w", e.Title, common.ErrContentMissing)
	}
	f := plannedFile{id: e.ID, rel: rel, handler: e.Handler, handle: h}
	if e.Handler == model.HandlerTestbench {
		body, err := p.m.blobs.Read(ctx, h)
		if err != nil {
			return err
		}
		out, module, err := RewriteTestbench(string(body), TestbenchOptions{
			SimTime:   p.req.SimTime,
			DumpDepth: p.req.DumpDepth,
			DumpDir:   DumpDir,
		})
		if err != nil {
			return fmt.Errorf("testbench %q: %w", e.Title, err)
		}
		f.body = []byte(out)
		p.layout.Testbenches[e.ID] = module
	}
	if err := p.addPath(e.ID, rel); err != nil {
		return err
	}
	p.layout.Files[e.ID] = rel
	p.layout.Sources[e.Handler] = append(p.layout.Sources[e.Handler], rel)
	p.files = append(p.files, f)
	return nil
}

func (m *Materializer) write(ctx context.Context, ws *Workspace, p *planner) error {
	fs := ws.FS()
	dirs := append([]string(nil), p.dirs...)
	sort.Strings(dirs)
	for _, d := range dirs {
		if err := fs.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w: %w", d, common.ErrWorkspace, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.ParallelWrites)
	for _, f := range p.files {
		g.Go(func() error {
			return m.writeFile(gctx, fs, f)
		})
	}
	return g.Wait()
}

func (m *Materializer) writeFile(ctx context.Context, fs billy.Filesystem, f plannedFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := fs.OpenFile(f.rel, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w: %w", f.rel, common.ErrWorkspace, err)
	}
	defer out.Close()

	if f.body != nil {
		if _, err := out.Write(f.body); err != nil {
			return fmt.Errorf("write %s: %w: %w", f.rel, common.ErrWorkspace, err)
		}
		return out.Close()
	}
	rc, err := m.blobs.Open(ctx, f.handle)
	if err != nil {
		return fmt.Errorf("read content of %s: %w", f.rel, err)
	}
	defer rc.Close()
	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("write %s: %w: %w", f.rel, common.ErrWorkspace, err)
	}
	return out.Close()
}
