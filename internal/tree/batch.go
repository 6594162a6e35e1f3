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

	log "github.com/sirupsen/logrus"

	"rtlforge/internal/common"
)

// ItemError is the failure of one item of a batch.
type ItemError struct {
	ID  string
	Err error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.ID, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// BatchResult reports every item of a batch as succeeded or failed.
type BatchResult struct {
	Succeeded []string
	Failed    []ItemError
}

// OK reports whether every item succeeded.
func (r *BatchResult) OK() bool {
	return len(r.Failed) == 0
}

// MoveBatch moves every entry in ids into target. The batch is rejected as a
// whole on a title collision or a nested selection; otherwise each item is
// moved on its own and failures do not stop the rest.
func (t *Tree) MoveBatch(ctx context.Context, ids []string, targetParentID string, opts Options) (*BatchResult, error) {
	return t.runBatch(ctx, ids, func(ctx context.Context, id string) error {
		_, err := t.Move(ctx, id, targetParentID, opts)
		return err
	})
}

// CopyBatch copies every entry in ids into target, with the same batch
// rules as MoveBatch.
func (t *Tree) CopyBatch(ctx context.Context, ids []string, targetParentID string, opts Options) (*BatchResult, error) {
	return t.runBatch(ctx, ids, func(ctx context.Context, id string) error {
		_, err := t.Copy(ctx, id, targetParentID, opts)
		return err
	})
}

func (t *Tree) runBatch(ctx context.Context, ids []string, op func(ctx context.Context, id string) error) (*BatchResult, error) {
	if err := t.checkSelection(ctx, ids); err != nil {
		return nil, err
	}
	res := &BatchResult{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, ItemError{ID: id, Err: err})
			continue
		}
		if err := op(ctx, id); err != nil {
			res.Failed = append(res.Failed, ItemError{ID: id, Err: err})
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	if !res.OK() {
		log.WithFields(log.Fields{"succeeded": len(res.Succeeded), "failed": len(res.Failed)}).Warn("tree: batch finished with failures")
	}
	return res, nil
}

// checkSelection rejects duplicate titles and selections where one entry
// lies inside another.
func (t *Tree) checkSelection(ctx context.Context, ids []string) error {
	titles := make(map[string]string, len(ids))
	byRepo := make(map[string][]string)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("entry %s selected twice: %w", id, common.ErrNameCollision)
		}
		seen[id] = true
		e, err := live(ctx, t.meta, id)
		if err != nil {
			return err
		}
		if prev, ok := titles[e.Title]; ok {
			return fmt.Errorf("%q selected as %s and %s: %w", e.Title, prev, id, common.ErrNameCollision)
		}
		titles[e.Title] = id
		byRepo[e.RepositoryID] = append(byRepo[e.RepositoryID], id)
	}
	for repoID, sel := range byRepo {
		if len(sel) < 2 {
			continue
		}
		arena, err := LoadArena(ctx, t.meta, repoID)
		if err != nil {
			return err
		}
		for _, a := range sel {
			for _, b := range sel {
				if a != b && arena.IsAncestor(a, b) {
					return fmt.Errorf("%s contains %s: %w", a, b, common.ErrNestedSelection)
				}
			}
		}
	}
	return nil
}
