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

// Package tree implements the repository entry tree: creation, moves,
// copies, renames, deletes and content replacement, with the tree
// invariants enforced in the same transaction as the change.
//
// Content bodies are always written before the metadata commit that
// points at them, and superseded bodies are queued for release inside
// that commit. A failed operation therefore never destroys existing
// content, and content is never freed while live metadata refers to it.
package tree

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"rtlforge/internal/common"
	"rtlforge/internal/content"
	"rtlforge/internal/model"
)

// Metadata is the metadata store the tree runs against.
type Metadata interface {
	GetRepository(ctx context.Context, id string) (*model.Repository, error)
	FindRepository(ctx context.Context, owner, name string) (*model.Repository, error)
	GetEntry(ctx context.Context, id string) (*model.Entry, error)
	FindEntries(ctx context.Context, q model.EntryQuery) ([]*model.Entry, error)
	GetContent(ctx context.Context, entryID string) (*model.FileContent, error)
	Update(ctx context.Context, fn func(ctx context.Context, tx model.MetaTx) error) error
}

// Options control conflict and protection handling.
type Options struct {
	// Overwrite replaces a live sibling with the same title.
	Overwrite bool
	// Force allows changes to protected entries and read-only folders.
	Force bool
}

// DeleteOptions control Delete.
type DeleteOptions struct {
	Recursive bool
	Force     bool
}

// Attrs are the caller-settable attributes of a new entry. Zero values
// select the defaults: handler inferred from the title, read-write,
// user-authored, included, ready.
type Attrs struct {
	Title      string
	Handler    model.Handler
	Access     model.Access
	Provenance model.Provenance
	Anchor     bool
	Excluded   bool
	State      model.State
}

func (a Attrs) withDefaults() Attrs {
	if a.Handler == model.HandlerUnknown {
		a.Handler = model.HandlerForTitle(a.Title)
	}
	if a.Access == "" {
		a.Access = model.AccessWrite
	}
	if a.Provenance == "" {
		a.Provenance = model.ProvenanceUser
	}
	if a.State == "" {
		a.State = model.StateReady
	}
	return a
}

// Tree is the entry tree service.
type Tree struct {
	meta    Metadata
	blobs   content.Store
	now     func() time.Time
	release func()
}

// New returns a tree over meta and blobs.
func New(meta Metadata, blobs content.Store) *Tree {
	return &Tree{meta: meta, blobs: blobs, now: time.Now}
}

// OnRelease registers fn to be called after a commit queued content for
// release, typically to kick the releaser.
func (t *Tree) OnRelease(fn func()) {
	t.release = fn
}

// Content returns the content store.
func (t *Tree) Content() content.Store {
	return t.blobs
}

// Metadata returns the metadata store.
func (t *Tree) Metadata() Metadata {
	return t.meta
}

func (t *Tree) notifyRelease() {
	if t.release != nil {
		t.release()
	}
}

// discard queues blobs that never became reachable.
func (t *Tree) discard(ctx context.Context, infos ...content.Info) {
	handles := make([]string, 0, len(infos))
	for _, i := range infos {
		if i.Handle != "" {
			handles = append(handles, string(i.Handle))
		}
	}
	if len(handles) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	err := t.meta.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		return tx.EnqueueRelease(ctx, handles...)
	})
	if err != nil {
		log.WithError(err).WithField("handles", len(handles)).Warn("tree: failed to queue unused content")
		return
	}
	t.notifyRelease()
}

func childScope(parentID string) string {
	return "children:" + parentID
}

type entryGetter interface {
	GetEntry(ctx context.Context, id string) (*model.Entry, error)
}

// live returns an entry that exists and is not soft-deleted.
func live(ctx context.Context, r entryGetter, id string) (*model.Entry, error) {
	e, err := r.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Deleted {
		return nil, fmt.Errorf("entry %s: %w", id, common.ErrNotFound)
	}
	return e, nil
}

// ancestry returns e's ancestors from its parent up to the root.
func ancestry(ctx context.Context, r entryGetter, e *model.Entry) ([]*model.Entry, error) {
	var chain []*model.Entry
	for cur := e; cur.ParentID != ""; {
		if len(chain) > 4096 {
			return nil, fmt.Errorf("entry %s: parent chain does not terminate: %w", e.ID, common.ErrCycle)
		}
		p, err := r.GetEntry(ctx, cur.ParentID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
		cur = p
	}
	return chain, nil
}

// checkParent validates parentID as the destination for new or moved
// children. Read-only folders along the chain reject the change unless
// force is set.
func checkParent(ctx context.Context, r entryGetter, parentID string, force bool) (*model.Entry, error) {
	parent, err := r.GetEntry(ctx, parentID)
	if err != nil || parent.Deleted {
		return nil, fmt.Errorf("parent %s: %w", parentID, common.ErrParentNotFound)
	}
	if !parent.IsContainer() {
		return nil, fmt.Errorf("parent %s (%s): %w", parent.Title, parent.Handler, common.ErrNotAFolder)
	}
	if parent.Access == model.AccessNone {
		return nil, fmt.Errorf("parent %s: %w", parent.Title, common.ErrNoAccess)
	}
	if force {
		return parent, nil
	}
	if parent.Access == model.AccessRead {
		return nil, fmt.Errorf("parent %s: %w", parent.Title, common.ErrReadOnly)
	}
	chain, err := ancestry(ctx, r, parent)
	if err != nil {
		return nil, err
	}
	for _, anc := range chain {
		if anc.Access == model.AccessRead {
			return nil, fmt.Errorf("folder %s: %w", anc.Title, common.ErrReadOnly)
		}
	}
	return parent, nil
}

// colliding returns the live child of parentID titled title, if any.
func colliding(ctx context.Context, tx model.MetaTx, repositoryID, parentID, title string) (*model.Entry, error) {
	found, err := tx.FindEntries(ctx, model.EntryQuery{RepositoryID: repositoryID, ParentID: parentID, Title: title, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

// resolveConflict enforces sibling uniqueness for an incoming entry titled
// title under parent. self is the existing entry being moved or renamed,
// nil for new entries. With Overwrite the colliding subtree is soft-deleted
// in tx; the caller writes the incoming entry in the same tx.
func (t *Tree) resolveConflict(ctx context.Context, tx model.MetaTx, parent *model.Entry, title string, self *model.Entry, opts Options) (bool, error) {
	other, err := colliding(ctx, tx, parent.RepositoryID, parent.ID, title)
	if err != nil || other == nil {
		return false, err
	}
	if self != nil && other.ID == self.ID {
		return false, nil
	}
	if !opts.Overwrite {
		return false, fmt.Errorf("%q in %s: %w", title, parent.Title, common.ErrNameConflict)
	}
	if other.Protected() && !opts.Force {
		return false, fmt.Errorf("%q: %w", title, common.ErrProtected)
	}
	if self != nil && other.IsContainer() {
		// Replacing an ancestor would delete self along with it.
		chain, err := ancestry(ctx, tx, self)
		if err != nil {
			return false, err
		}
		for _, anc := range chain {
			if anc.ID == other.ID {
				return false, fmt.Errorf("%q would replace its own ancestor %q: %w", self.Title, other.Title, common.ErrCycle)
			}
		}
	}
	return true, t.deleteSubtree(ctx, tx, other)
}

// deleteSubtree soft-deletes e and its descendants children-first and
// queues their content for release.
func (t *Tree) deleteSubtree(ctx context.Context, tx model.MetaTx, e *model.Entry) error {
	ids := []string{e.ID}
	if e.IsContainer() {
		arena, err := LoadArena(ctx, tx, e.RepositoryID)
		if err != nil {
			return err
		}
		ids = arena.PostOrder(e.ID)
	}
	contents, err := tx.FindContents(ctx, ids)
	if err != nil {
		return err
	}
	if err := tx.SoftDeleteEntries(ctx, ids, t.now()); err != nil {
		return err
	}
	handles := make([]string, 0, len(contents))
	for _, c := range contents {
		handles = append(handles, c.Handle)
	}
	return tx.EnqueueRelease(ctx, handles...)
}
