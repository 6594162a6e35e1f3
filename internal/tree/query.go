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

	"rtlforge/internal/common"
	"rtlforge/internal/content"
	"rtlforge/internal/model"
)

// Get returns a live entry.
func (t *Tree) Get(ctx context.Context, id string) (*model.Entry, error) {
	return live(ctx, t.meta, id)
}

// Children returns the live children of a folder in creation order.
func (t *Tree) Children(ctx context.Context, parentID string) ([]*model.Entry, error) {
	parent, err := live(ctx, t.meta, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsContainer() {
		return nil, fmt.Errorf("%q: %w", parent.Title, common.ErrNotAFolder)
	}
	return t.meta.FindEntries(ctx, model.EntryQuery{RepositoryID: parent.RepositoryID, ParentID: parent.ID})
}

// Lookup resolves a slash path of titles below the repository root.
// An empty path returns the root.
func (t *Tree) Lookup(ctx context.Context, repositoryID, p string) (*model.Entry, error) {
	arena, err := LoadArena(ctx, t.meta, repositoryID)
	if err != nil {
		return nil, err
	}
	cur := arena.Get(arena.RootID)
	if cur == nil {
		return nil, fmt.Errorf("repository %s has no root: %w", repositoryID, common.ErrNotFound)
	}
	for _, part := range common.SplitPath(p) {
		next := arena.Child(cur.ID, part)
		if next == nil {
			return nil, fmt.Errorf("%s: %w", p, common.ErrNotFound)
		}
		cur = next
	}
	return cur, nil
}

// Subtree returns an arena of id and its live descendants.
func (t *Tree) Subtree(ctx context.Context, id string) (*Arena, error) {
	e, err := live(ctx, t.meta, id)
	if err != nil {
		return nil, err
	}
	arena, err := LoadArena(ctx, t.meta, e.RepositoryID)
	if err != nil {
		return nil, err
	}
	return arena.Sub(id)
}

// ReadContent opens the body of a file entry.
func (t *Tree) ReadContent(ctx context.Context, id string) (io.ReadCloser, *model.FileContent, error) {
	e, err := live(ctx, t.meta, id)
	if err != nil {
		return nil, nil, err
	}
	if e.IsContainer() {
		return nil, nil, fmt.Errorf("%q: %w", e.Title, common.ErrFolderContent)
	}
	if e.Access == model.AccessNone {
		return nil, nil, fmt.Errorf("%q: %w", e.Title, common.ErrNoAccess)
	}
	fc, err := t.meta.GetContent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := t.blobs.Open(ctx, content.Handle(fc.Handle))
	if err != nil {
		return nil, nil, err
	}
	return rc, fc, nil
}
