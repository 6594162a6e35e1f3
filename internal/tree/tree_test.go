package tree

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtlforge/internal/common"
	"rtlforge/internal/content"
	"rtlforge/internal/model"
	"rtlforge/internal/storage"
)

type fixture struct {
	tree  *Tree
	store *storage.Store
	blobs content.Store
	repo  *model.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "meta.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blobs := content.NewFSStore(memfs.New())
	tr := New(store, blobs)
	repo, err := tr.InitRepository(context.Background(), "alice", "blinky", RepoOptions{TopModule: "top"})
	require.NoError(t, err)
	return &fixture{tree: tr, store: store, blobs: blobs, repo: repo}
}

func (f *fixture) folder(t *testing.T, parentID, title string) *model.Entry {
	t.Helper()
	e, err := f.tree.Create(context.Background(), parentID, Attrs{Title: title, Handler: model.HandlerFolder}, nil, Options{})
	require.NoError(t, err)
	return e
}

func (f *fixture) file(t *testing.T, parentID, title, body string) *model.Entry {
	t.Helper()
	e, err := f.tree.Create(context.Background(), parentID, Attrs{Title: title}, strings.NewReader(body), Options{})
	require.NoError(t, err)
	return e
}

func (f *fixture) body(t *testing.T, id string) string {
	t.Helper()
	rc, _, err := f.tree.ReadContent(context.Background(), id)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestInitRepository(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	children, err := f.tree.Children(ctx, f.repo.RootID)
	require.NoError(t, err)
	var titles []string
	for _, c := range children {
		titles = append(titles, c.Title)
		assert.True(t, c.Anchor)
		assert.True(t, c.Protected())
	}
	assert.Equal(t, []string{BuildFolder, SoftwareFolder, HexFolder, IPCoresFolder}, titles)

	build, err := f.tree.Get(ctx, f.repo.BuildID)
	require.NoError(t, err)
	assert.Equal(t, model.AccessRead, build.Access)

	_, err = f.tree.InitRepository(ctx, "alice", "blinky", RepoOptions{})
	assert.ErrorIs(t, err, common.ErrRepoExists)

	other, err := f.tree.InitRepository(ctx, "alice", "uart", RepoOptions{})
	require.NoError(t, err)
	assert.Equal(t, f.repo.Number+1, other.Number)
}

func TestCreateAndReadBack(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	src := f.folder(t, f.repo.RootID, "src")
	body := "module top(input clk, output led);\nendmodule\n"
	top := f.file(t, src.ID, "top.v", body)
	assert.Equal(t, model.HandlerVerilog, top.Handler)

	arena, err := f.tree.Subtree(ctx, f.repo.RootID)
	require.NoError(t, err)
	// root, four anchors, src and top.v
	assert.Len(t, arena.Entries, 7)
	assert.Equal(t, "src/top.v", arena.Path(top.ID))

	assert.Equal(t, body, f.body(t, top.ID))

	got, err := f.tree.Lookup(ctx, f.repo.ID, "src/top.v")
	require.NoError(t, err)
	assert.Equal(t, top.ID, got.ID)
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	top := f.file(t, f.repo.RootID, "top.v", "")

	tests := []struct {
		name   string
		parent string
		attrs  Attrs
		body   io.Reader
		want   error
	}{
		{"empty title", f.repo.RootID, Attrs{Title: ""}, strings.NewReader(""), common.ErrInvalidTitle},
		{"dot title", f.repo.RootID, Attrs{Title: ".."}, strings.NewReader(""), common.ErrInvalidTitle},
		{"second root", f.repo.RootID, Attrs{Title: "r", Handler: model.HandlerRoot}, nil, common.ErrSingleRoot},
		{"missing parent", "nope", Attrs{Title: "a.v"}, strings.NewReader(""), common.ErrParentNotFound},
		{"file parent", top.ID, Attrs{Title: "a.v"}, strings.NewReader(""), common.ErrNotAFolder},
		{"folder with body", f.repo.RootID, Attrs{Title: "d", Handler: model.HandlerFolder}, strings.NewReader("x"), common.ErrFolderContent},
		{"file without body", f.repo.RootID, Attrs{Title: "b.v"}, nil, common.ErrContentRequired},
		{"build output", f.repo.RootID, Attrs{Title: "top.rpt", Handler: model.HandlerSynthReport}, strings.NewReader(""), common.ErrProtected},
		{"read-only anchor", f.repo.BuildID, Attrs{Title: "a.v"}, strings.NewReader(""), common.ErrReadOnly},
		{"duplicate title", f.repo.RootID, Attrs{Title: "top.v"}, strings.NewReader(""), common.ErrNameConflict},
	}
	for _, tt := range tests {
		_, err := f.tree.Create(ctx, tt.parent, tt.attrs, tt.body, Options{})
		assert.ErrorIs(t, err, tt.want, tt.name)
	}
}

func TestGeneratedOutputIntoReadOnlyFolder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	attrs := Attrs{Title: "top.synth.rpt", Handler: model.HandlerSynthReport, Provenance: model.ProvenanceGenerated}
	e, err := f.tree.Create(ctx, f.repo.BuildID, attrs, strings.NewReader("cells: 4"), Options{Force: true})
	require.NoError(t, err)
	assert.True(t, e.Protected())

	// Force does not open read-only folders to user content.
	_, err = f.tree.Create(ctx, f.repo.BuildID, Attrs{Title: "mine.v"}, strings.NewReader(""), Options{Force: true})
	assert.ErrorIs(t, err, common.ErrReadOnly)

	err = f.tree.Delete(ctx, e.ID, DeleteOptions{})
	assert.ErrorIs(t, err, common.ErrProtected)
}

func TestMoveConflictLeavesBothUnchanged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	a := f.file(t, f.repo.RootID, "a.v", "module a; endmodule")
	b := f.folder(t, f.repo.RootID, "b")
	clash := f.file(t, b.ID, "a.v", "module other; endmodule")

	_, err := f.tree.Move(ctx, a.ID, b.ID, Options{})
	require.ErrorIs(t, err, common.ErrNameConflict)

	gotA, err := f.tree.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, f.repo.RootID, gotA.ParentID)
	assert.Equal(t, "module a; endmodule", f.body(t, a.ID))

	gotClash, err := f.tree.Get(ctx, clash.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, gotClash.ParentID)
	assert.Equal(t, "module other; endmodule", f.body(t, clash.ID))
}

func TestMoveOverwrite(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	a := f.file(t, f.repo.RootID, "a.v", "new")
	b := f.folder(t, f.repo.RootID, "b")
	clash := f.file(t, b.ID, "a.v", "old")

	released := 0
	f.tree.OnRelease(func() { released++ })

	moved, err := f.tree.Move(ctx, a.ID, b.ID, Options{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, b.ID, moved.ParentID)
	assert.Equal(t, "new", f.body(t, a.ID))
	assert.Equal(t, 1, released)

	_, err = f.tree.Get(ctx, clash.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	n, err := f.store.PendingReleaseCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMoveRules(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	outer := f.folder(t, f.repo.RootID, "outer")
	inner := f.folder(t, outer.ID, "inner")

	_, err := f.tree.Move(ctx, outer.ID, inner.ID, Options{})
	assert.ErrorIs(t, err, common.ErrCycle)
	_, err = f.tree.Move(ctx, outer.ID, outer.ID, Options{})
	assert.ErrorIs(t, err, common.ErrCycle)

	_, err = f.tree.Move(ctx, f.repo.RootID, outer.ID, Options{})
	assert.ErrorIs(t, err, common.ErrRootImmutable)

	_, err = f.tree.Move(ctx, f.repo.SoftwareID, outer.ID, Options{})
	assert.ErrorIs(t, err, common.ErrProtected)

	_, err = f.tree.Move(ctx, inner.ID, f.repo.HexID, Options{})
	assert.ErrorIs(t, err, common.ErrReadOnly)

	// Moving within the same parent is a no-op.
	same, err := f.tree.Move(ctx, inner.ID, outer.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, inner.Ordinal, same.Ordinal)
}

func TestRename(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	a := f.file(t, f.repo.RootID, "a.v", "")
	f.file(t, f.repo.RootID, "b.v", "")

	_, err := f.tree.Rename(ctx, a.ID, "b.v", Options{})
	assert.ErrorIs(t, err, common.ErrNameConflict)
	_, err = f.tree.Rename(ctx, a.ID, "", Options{})
	assert.ErrorIs(t, err, common.ErrInvalidTitle)
	_, err = f.tree.Rename(ctx, f.repo.BuildID, "out", Options{})
	assert.ErrorIs(t, err, common.ErrProtected)

	got, err := f.tree.Rename(ctx, a.ID, "alu.v", Options{})
	require.NoError(t, err)
	assert.Equal(t, "alu.v", got.Title)
}

func TestCopyDuplicatesContent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	lib := f.folder(t, f.repo.RootID, "lib")
	alu := f.file(t, lib.ID, "alu.v", "module alu; endmodule")
	sub := f.folder(t, lib.ID, "sub")
	f.file(t, sub.ID, "mux.v", "module mux; endmodule")
	dst := f.folder(t, f.repo.RootID, "dst")

	cp, err := f.tree.Copy(ctx, lib.ID, dst.ID, Options{})
	require.NoError(t, err)
	assert.NotEqual(t, lib.ID, cp.ID)

	arena, err := f.tree.Subtree(ctx, cp.ID)
	require.NoError(t, err)
	assert.Len(t, arena.Entries, 4)

	copied := arena.Child(cp.ID, "alu.v")
	require.NotNil(t, copied)
	assert.Equal(t, "module alu; endmodule", f.body(t, copied.ID))

	orig, err := f.store.GetContent(ctx, alu.ID)
	require.NoError(t, err)
	dup, err := f.store.GetContent(ctx, copied.ID)
	require.NoError(t, err)
	assert.NotEqual(t, orig.Handle, dup.Handle)
	assert.Equal(t, orig.SHA256, dup.SHA256)

	_, err = f.tree.Copy(ctx, lib.ID, sub.ID, Options{})
	assert.ErrorIs(t, err, common.ErrCycle)

	d, err := f.tree.Duplicate(ctx, alu.ID, "alu_copy.v")
	require.NoError(t, err)
	assert.Equal(t, lib.ID, d.ParentID)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	dir := f.folder(t, f.repo.RootID, "dir")
	f.file(t, dir.ID, "a.v", "a")
	f.file(t, dir.ID, "b.v", "b")

	err := f.tree.Delete(ctx, dir.ID, DeleteOptions{})
	require.ErrorIs(t, err, common.ErrNotEmpty)

	require.NoError(t, f.tree.Delete(ctx, dir.ID, DeleteOptions{Recursive: true}))
	_, err = f.tree.Lookup(ctx, f.repo.ID, "dir/a.v")
	assert.ErrorIs(t, err, common.ErrNotFound)

	n, err := f.store.PendingReleaseCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.ErrorIs(t, f.tree.Delete(ctx, f.repo.RootID, DeleteOptions{Recursive: true, Force: true}), common.ErrRootImmutable)
	assert.ErrorIs(t, f.tree.Delete(ctx, f.repo.IPCoresID, DeleteOptions{}), common.ErrProtected)
}

// Soft-deleted siblings never block a title: the uniqueness index only
// covers live rows.
func TestCreateDeleteCreateReusesTitle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	first := f.file(t, f.repo.RootID, "top.v", "v1")
	require.NoError(t, f.tree.Delete(ctx, first.ID, DeleteOptions{}))
	second := f.file(t, f.repo.RootID, "top.v", "v2")
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "v2", f.body(t, second.ID))

	require.NoError(t, f.tree.Delete(ctx, second.ID, DeleteOptions{}))
	f.file(t, f.repo.RootID, "top.v", "v3")
}

func TestOverwriteFailureKeepsOriginal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	gen, err := f.tree.Create(ctx, f.repo.RootID,
		Attrs{Title: "regs.h", Provenance: model.ProvenanceGenerated},
		strings.NewReader("#define A 1"), Options{})
	require.NoError(t, err)

	// The replacement body is written first, then the commit is refused.
	_, err = f.tree.Create(ctx, f.repo.RootID, Attrs{Title: "regs.h"}, strings.NewReader("#define A 2"), Options{Overwrite: true})
	require.ErrorIs(t, err, common.ErrProtected)

	assert.Equal(t, "#define A 1", f.body(t, gen.ID))
	n, err := f.store.PendingReleaseCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "unused replacement body is queued for release")
}

func TestSetContent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	top := f.file(t, f.repo.RootID, "top.v", "old")
	require.NoError(t, f.tree.SetContent(ctx, top.ID, strings.NewReader("new"), Options{}))
	assert.Equal(t, "new", f.body(t, top.ID))

	n, err := f.store.PendingReleaseCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = f.tree.SetContent(ctx, f.repo.BuildID, strings.NewReader("x"), Options{})
	assert.ErrorIs(t, err, common.ErrFolderContent)
}

func TestEntryFlags(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	top := f.file(t, f.repo.RootID, "top.v", "")
	require.NoError(t, f.tree.SetIncluded(ctx, top.ID, false))
	require.NoError(t, f.tree.SetState(ctx, top.ID, model.StateFailed))
	assert.Error(t, f.tree.SetState(ctx, top.ID, model.State("done")))

	got, err := f.tree.Get(ctx, top.ID)
	require.NoError(t, err)
	assert.False(t, got.Included)
	assert.Equal(t, model.StateFailed, got.State)

	require.NoError(t, f.tree.SetAccess(ctx, top.ID, model.AccessRead, false))
	err = f.tree.SetContent(ctx, top.ID, strings.NewReader("x"), Options{})
	assert.ErrorIs(t, err, common.ErrReadOnly)

	require.NoError(t, f.tree.SetTopModule(ctx, f.repo.ID, "top", top.ID))
	repo, err := f.store.GetRepository(ctx, f.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, top.ID, repo.TopEntryID)
}

func TestBatchNameCollision(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	sub := f.folder(t, f.repo.RootID, "sub")
	x1 := f.file(t, f.repo.RootID, "x.v", "")
	x2 := f.file(t, sub.ID, "x.v", "")
	y := f.file(t, sub.ID, "y.v", "")
	target := f.folder(t, f.repo.RootID, "target")

	_, err := f.tree.MoveBatch(ctx, []string{x1.ID, x2.ID}, target.ID, Options{})
	require.ErrorIs(t, err, common.ErrNameCollision)

	res, err := f.tree.MoveBatch(ctx, []string{x1.ID, y.ID}, target.ID, Options{})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.ElementsMatch(t, []string{x1.ID, y.ID}, res.Succeeded)
}

func TestBatchNestedSelection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	dir := f.folder(t, f.repo.RootID, "dir")
	deep := f.folder(t, dir.ID, "deep")
	leaf := f.file(t, deep.ID, "leaf.v", "")
	target := f.folder(t, f.repo.RootID, "target")

	_, err := f.tree.CopyBatch(ctx, []string{dir.ID, leaf.ID}, target.ID, Options{})
	assert.ErrorIs(t, err, common.ErrNestedSelection)
}

func TestBatchCollectsFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	a := f.file(t, f.repo.RootID, "a.v", "")
	b := f.file(t, f.repo.RootID, "b.v", "")
	target := f.folder(t, f.repo.RootID, "target")
	f.file(t, target.ID, "a.v", "")

	res, err := f.tree.MoveBatch(ctx, []string{a.ID, b.ID}, target.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, a.ID, res.Failed[0].ID)
	assert.ErrorIs(t, res.Failed[0], common.ErrNameConflict)
}

// Sibling titles stay unique under any sequence of operations.
func TestSiblingTitlesStayUnique(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	folders := []string{f.repo.RootID, f.folder(t, f.repo.RootID, "f0").ID, f.folder(t, f.repo.RootID, "f1").ID}
	titles := []string{"a.v", "b.v", "c.v", "d"}
	var ids []string

	for i := 0; i < 150; i++ {
		title := titles[rng.Intn(len(titles))]
		parent := folders[rng.Intn(len(folders))]
		opts := Options{Overwrite: rng.Intn(3) == 0}
		switch op := rng.Intn(5); {
		case op == 0 || len(ids) == 0:
			var body io.Reader = bytes.NewReader([]byte(title))
			attrs := Attrs{Title: title}
			if title == "d" {
				body, attrs.Handler = nil, model.HandlerFolder
			}
			if e, err := f.tree.Create(ctx, parent, attrs, body, opts); err == nil {
				ids = append(ids, e.ID)
				if e.IsContainer() {
					folders = append(folders, e.ID)
				}
			}
		case op == 1:
			_, _ = f.tree.Move(ctx, ids[rng.Intn(len(ids))], parent, opts)
		case op == 2:
			if e, err := f.tree.Copy(ctx, ids[rng.Intn(len(ids))], parent, opts); err == nil {
				ids = append(ids, e.ID)
			}
		case op == 3:
			_, _ = f.tree.Rename(ctx, ids[rng.Intn(len(ids))], title, opts)
		default:
			_ = f.tree.Delete(ctx, ids[rng.Intn(len(ids))], DeleteOptions{Recursive: true})
		}

		arena, err := LoadArena(ctx, f.store, f.repo.ID)
		require.NoError(t, err)
		for parentID, kids := range arena.Children {
			seen := map[string]bool{}
			for _, k := range kids {
				title := arena.Get(k).Title
				require.False(t, seen[title], fmt.Sprintf("step %d: %q twice under %s", i, title, parentID))
				seen[title] = true
			}
		}
	}
}

func TestMoveOverwriteOntoAncestor(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	a := f.folder(t, f.repo.RootID, "a")
	x := f.folder(t, a.ID, "x")
	inner := f.file(t, x.ID, "x", "payload")

	_, err := f.tree.Move(ctx, inner.ID, a.ID, Options{Overwrite: true})
	require.ErrorIs(t, err, common.ErrCycle)

	got, err := f.tree.Get(ctx, inner.ID)
	require.NoError(t, err)
	assert.Equal(t, x.ID, got.ParentID)
	assert.Equal(t, "payload", f.body(t, inner.ID))

	_, err = f.tree.Get(ctx, x.ID)
	require.NoError(t, err)

	n, err := f.store.PendingReleaseCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCopyOfGeneratedEntryIsUserAuthored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	attrs := Attrs{Title: "top.synth.rpt", Handler: model.HandlerSynthReport, Provenance: model.ProvenanceGenerated}
	rpt, err := f.tree.Create(ctx, f.repo.BuildID, attrs, strings.NewReader("cells: 4"), Options{Force: true})
	require.NoError(t, err)
	dst := f.folder(t, f.repo.RootID, "reports")

	cp, err := f.tree.Copy(ctx, rpt.ID, dst.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceUser, cp.Provenance)
	assert.False(t, cp.Protected())
	assert.Equal(t, "cells: 4", f.body(t, cp.ID))

	require.NoError(t, f.tree.Delete(ctx, cp.ID, DeleteOptions{}))
}
