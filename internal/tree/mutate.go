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

package tree

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"rtlforge/internal/common"
	"rtlforge/internal/content"
	"rtlforge/internal/model"
)

// checkMutable rejects changes to the root, and to protected entries
// unless forced.
func checkMutable(e *model.Entry, force bool) error {
	if e.IsRoot() {
		return common.ErrRootImmutable
	}
	if e.Protected() && !force {
		return fmt.Errorf("%q: %w", e.Title, common.ErrProtected)
	}
	return nil
}

// Move reparents an entry. Moving a folder into its own subtree fails
// with ErrCycle. With Overwrite a same-titled entry in the target is
// replaced in the same commit that moves the entry.
func (t *Tree) Move(ctx context.Context, entryID, targetParentID string, opts Options) (*model.Entry, error) {
	var moved *model.Entry
	var replaced bool
	err := t.meta.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		e, err := live(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if err := checkMutable(e, opts.Force); err != nil {
			return err
		}
		target, err := checkParent(ctx, tx, targetParentID, opts.Force)
		if err != nil {
			return err
		}
		if target.RepositoryID != e.RepositoryID {
			return fmt.Errorf("target %s is in another repository: %w", targetParentID, common.ErrParentNotFound)
		}
		if e.ParentID == target.ID {
			moved = e
			return nil
		}
		if err := checkNotInside(ctx, tx, e, target); err != nil {
			return err
		}
		if !opts.Force {
			if _, err := checkParent(ctx, tx, e.ParentID, false); err != nil {
				return err
			}
		}
		if replaced, err = t.resolveConflict(ctx, tx, target, e.Title, e, opts); err != nil {
			return err
		}
		if e.Ordinal, err = tx.NextSequence(ctx, childScope(target.ID)); err != nil {
			return err
		}
		e.ParentID = target.ID
		e.UpdatedAt = t.now()
		moved = e
		return tx.UpdateEntry(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	if replaced {
		t.notifyRelease()
	}
	return moved, nil
}

// checkNotInside fails with ErrCycle if target is e or one of its descendants.
func checkNotInside(ctx context.Context, r entryGetter, e, target *model.Entry) error {
	if !e.IsContainer() {
		return nil
	}
	if target.ID == e.ID {
		return fmt.Errorf("%q: %w", e.Title, common.ErrCycle)
	}
	chain, err := ancestry(ctx, r, target)
	if err != nil {
		return err
	}
	for _, anc := range chain {
		if anc.ID == e.ID {
			return fmt.Errorf("%q into %q: %w", e.Title, target.Title, common.ErrCycle)
		}
	}
	return nil
}

// Rename changes an entry's title.
func (t *Tree) Rename(ctx context.Context, entryID, newTitle string, opts Options) (*model.Entry, error) {
	if !common.ValidTitle(newTitle) {
		return nil, fmt.Errorf("%q: %w", newTitle, common.ErrInvalidTitle)
	}
	var renamed *model.Entry
	var replaced bool
	err := t.meta.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		e, err := live(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if err := checkMutable(e, opts.Force); err != nil {
			return err
		}
		if e.Title == newTitle {
			renamed = e
			return nil
		}
		parent, err := checkParent(ctx, tx, e.ParentID, opts.Force)
		if err != nil {
			return err
		}
		if replaced, err = t.resolveConflict(ctx, tx, parent, newTitle, e, opts); err != nil {
			return err
		}
		e.Title = newTitle
		e.UpdatedAt = t.now()
		renamed = e
		return tx.UpdateEntry(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	if replaced {
		t.notifyRelease()
	}
	return renamed, nil
}

// Copy deep-copies an entry into targetParentID. Every copied file gets
// its own new blob; blobs are never shared between entries.
func (t *Tree) Copy(ctx context.Context, entryID, targetParentID string, opts Options) (*model.Entry, error) {
	src, err := live(ctx, t.meta, entryID)
	if err != nil {
		return nil, err
	}
	return t.copyInto(ctx, src, targetParentID, src.Title, opts)
}

// Duplicate copies an entry next to itself under a new title.
func (t *Tree) Duplicate(ctx context.Context, entryID, newTitle string) (*model.Entry, error) {
	if !common.ValidTitle(newTitle) {
		return nil, fmt.Errorf("%q: %w", newTitle, common.ErrInvalidTitle)
	}
	src, err := live(ctx, t.meta, entryID)
	if err != nil {
		return nil, err
	}
	return t.copyInto(ctx, src, src.ParentID, newTitle, Options{})
}

func (t *Tree) copyInto(ctx context.Context, src *model.Entry, targetParentID, title string, opts Options) (*model.Entry, error) {
	if src.IsRoot() {
		return nil, common.ErrRootImmutable
	}
	target, err := checkParent(ctx, t.meta, targetParentID, opts.Force)
	if err != nil {
		return nil, err
	}
	if target.RepositoryID == src.RepositoryID {
		if err := checkNotInside(ctx, t.meta, src, target); err != nil {
			return nil, err
		}
	}

	arena, err := LoadArena(ctx, t.meta, src.RepositoryID)
	if err != nil {
		return nil, err
	}
	nodes := arena.PreOrder(src.ID)

	// Duplicate every body before touching metadata.
	blobs := make(map[string]content.Info, len(nodes))
	written := make([]content.Info, 0, len(nodes))
	for _, id := range nodes {
		n := arena.Get(id)
		if n.IsContainer() {
			continue
		}
		fc, err := t.meta.GetContent(ctx, id)
		if err != nil {
			t.discard(ctx, written...)
			return nil, fmt.Errorf("copy %q: %w", n.Title, err)
		}
		info, err := content.Copy(ctx, t.blobs, content.Handle(fc.Handle), n.Title)
		if err != nil {
			t.discard(ctx, written...)
			return nil, fmt.Errorf("copy %q: %w", n.Title, err)
		}
		blobs[id] = info
		written = append(written, info)
	}

	now := t.now()
	idMap := make(map[string]string, len(nodes))
	var top *model.Entry
	var replaced bool
	err = t.meta.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		target, err := checkParent(ctx, tx, targetParentID, opts.Force)
		if err != nil {
			return err
		}
		if replaced, err = t.resolveConflict(ctx, tx, target, title, nil, opts); err != nil {
			return err
		}
		for _, id := range nodes {
			n := arena.Get(id)
			c := n.Clone()
			c.ID = uuid.NewString()
			c.RepositoryID = target.RepositoryID
			c.Anchor = false
			c.Provenance = model.ProvenanceUser
			c.CreatedAt, c.UpdatedAt = now, now
			if id == src.ID {
				c.ParentID = target.ID
				c.Title = title
			} else {
				c.ParentID = idMap[n.ParentID]
			}
			idMap[id] = c.ID
			if c.Ordinal, err = tx.NextSequence(ctx, childScope(c.ParentID)); err != nil {
				return err
			}
			if err := tx.InsertEntry(ctx, c); err != nil {
				return err
			}
			if info, ok := blobs[id]; ok {
				if err := tx.PutContent(ctx, &model.FileContent{
					EntryID:   c.ID,
					Handle:    string(info.Handle),
					Size:      info.Size,
					SHA256:    info.SHA256,
					UpdatedAt: now,
				}); err != nil {
					return err
				}
			}
			if id == src.ID {
				top = c
			}
		}
		return nil
	})
	if err != nil {
		t.discard(ctx, written...)
		return nil, err
	}
	if replaced {
		t.notifyRelease()
	}
	log.WithFields(log.Fields{"source": src.ID, "copy": top.ID, "entries": len(nodes)}).Debug("tree: copied subtree")
	return top, nil
}

// Delete soft-deletes an entry. A folder with live children needs
// Recursive; its subtree is then deleted children-first in one commit.
// Content is queued for release in that commit and freed afterwards.
func (t *Tree) Delete(ctx context.Context, entryID string, opts DeleteOptions) error {
	err := t.meta.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		e, err := live(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if err := checkMutable(e, opts.Force); err != nil {
			return err
		}
		if _, err := checkParent(ctx, tx, e.ParentID, opts.Force); err != nil {
			return err
		}
		if e.IsContainer() {
			arena, err := LoadArena(ctx, tx, e.RepositoryID)
			if err != nil {
				return err
			}
			if len(arena.Children[e.ID]) > 0 && !opts.Recursive {
				return fmt.Errorf("%q: %w", e.Title, common.ErrNotEmpty)
			}
			if !opts.Force {
				for _, id := range arena.PreOrder(e.ID) {
					if d := arena.Get(id); d.Protected() {
						return fmt.Errorf("%q contains %q: %w", e.Title, d.Title, common.ErrProtected)
					}
				}
			}
		}
		return t.deleteSubtree(ctx, tx, e)
	})
	if err != nil {
		return err
	}
	t.notifyRelease()
	log.WithField("entry", entryID).Debug("tree: deleted entry")
	return nil
}

// SetIncluded toggles whether an entry takes part in builds.
func (t *Tree) SetIncluded(ctx context.Context, entryID string, included bool) error {
	return t.updateEntry(ctx, entryID, func(e *model.Entry) error {
		if e.IsRoot() {
			return common.ErrRootImmutable
		}
		e.Included = included
		return nil
	})
}

// SetState sets an entry's lifecycle state.
func (t *Tree) SetState(ctx context.Context, entryID string, state model.State) error {
	if _, err := model.ParseState(string(state)); err != nil {
		return err
	}
	return t.updateEntry(ctx, entryID, func(e *model.Entry) error {
		e.State = state
		return nil
	})
}

// SetAccess sets an entry's access level.
func (t *Tree) SetAccess(ctx context.Context, entryID string, access model.Access, force bool) error {
	if !access.Valid() {
		return fmt.Errorf("invalid access level %q", access)
	}
	return t.updateEntry(ctx, entryID, func(e *model.Entry) error {
		if err := checkMutable(e, force); err != nil {
			return err
		}
		e.Access = access
		return nil
	})
}

func (t *Tree) updateEntry(ctx context.Context, entryID string, fn func(e *model.Entry) error) error {
	return t.meta.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		e, err := live(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
		e.UpdatedAt = t.now()
		return tx.UpdateEntry(ctx, e)
	})
}

// SetContent replaces an entry's body. The new blob is written first and
// the superseded one is queued for release when the change commits.
func (t *Tree) SetContent(ctx context.Context, entryID string, body io.Reader, opts Options) error {
	e, err := live(ctx, t.meta, entryID)
	if err != nil {
		return err
	}
	if e.IsContainer() {
		return fmt.Errorf("%q: %w", e.Title, common.ErrFolderContent)
	}
	if e.Provenance == model.ProvenanceGenerated && !opts.Force {
		return fmt.Errorf("%q: %w", e.Title, common.ErrProtected)
	}
	if e.Access != model.AccessWrite && !opts.Force {
		return fmt.Errorf("%q: %w", e.Title, common.ErrReadOnly)
	}

	blob, err := content.Put(ctx, t.blobs, e.Title, body)
	if err != nil {
		return err
	}
	err = t.meta.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		e, err := live(ctx, tx, entryID)
		if err != nil {
			return err
		}
		now := t.now()
		old, err := tx.GetContent(ctx, e.ID)
		if err != nil && common.KindOf(err) != common.KindMissing {
			return err
		}
		if err := tx.PutContent(ctx, &model.FileContent{
			EntryID:   e.ID,
			Handle:    string(blob.Handle),
			Size:      blob.Size,
			SHA256:    blob.SHA256,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		e.UpdatedAt = now
		if err := tx.UpdateEntry(ctx, e); err != nil {
			return err
		}
		if old != nil {
			return tx.EnqueueRelease(ctx, old.Handle)
		}
		return nil
	})
	if err != nil {
		t.discard(ctx, blob)
		return err
	}
	t.notifyRelease()
	return nil
}
