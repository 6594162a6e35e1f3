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

// Anchor folder titles.
const (
	BuildFolder    = "build"
	SoftwareFolder = "software"
	HexFolder      = "hex"
	IPCoresFolder  = "ipcores"
)

// RepoOptions are the settable attributes of a new repository.
type RepoOptions struct {
	Private   bool
	TopModule string
}

// InitRepository creates a repository with its root and the four anchor
// folders. Build output folders are read-only to users.
func (t *Tree) InitRepository(ctx context.Context, owner, name string, opts RepoOptions) (*model.Repository, error) {
	if !common.ValidTitle(name) || owner == "" {
		return nil, fmt.Errorf("repository %q/%q: %w", owner, name, common.ErrInvalidTitle)
	}
	now := t.now()
	repo := &model.Repository{
		ID:         uuid.NewString(),
		Owner:      owner,
		Name:       name,
		Private:    opts.Private,
		TopModule:  opts.TopModule,
		RootID:     uuid.NewString(),
		BuildID:    uuid.NewString(),
		SoftwareID: uuid.NewString(),
		HexID:      uuid.NewString(),
		IPCoresID:  uuid.NewString(),
		CreatedAt:  now,
	}
	anchors := []struct {
		id     string
		title  string
		access model.Access
	}{
		{repo.BuildID, BuildFolder, model.AccessRead},
		{repo.SoftwareID, SoftwareFolder, model.AccessWrite},
		{repo.HexID, HexFolder, model.AccessRead},
		{repo.IPCoresID, IPCoresFolder, model.AccessWrite},
	}

	err := t.meta.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		n, err := tx.NextSequence(ctx, "repositories:"+owner)
		if err != nil {
			return err
		}
		repo.Number = n
		if err := tx.InsertRepository(ctx, repo); err != nil {
			return err
		}
		root := &model.Entry{
			ID:           repo.RootID,
			RepositoryID: repo.ID,
			Title:        name,
			Handler:      model.HandlerRoot,
			Access:       model.AccessWrite,
			Provenance:   model.ProvenanceGenerated,
			Anchor:       true,
			Included:     true,
			State:        model.StateReady,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.InsertEntry(ctx, root); err != nil {
			return err
		}
		for _, a := range anchors {
			ord, err := tx.NextSequence(ctx, childScope(root.ID))
			if err != nil {
				return err
			}
			if err := tx.InsertEntry(ctx, &model.Entry{
				ID:           a.id,
				RepositoryID: repo.ID,
				ParentID:     root.ID,
				Title:        a.title,
				Handler:      model.HandlerFolder,
				Access:       a.access,
				Provenance:   model.ProvenanceGenerated,
				Anchor:       true,
				Included:     true,
				State:        model.StateReady,
				Ordinal:      ord,
				CreatedAt:    now,
				UpdatedAt:    now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"repository": repo.ID, "owner": owner, "name": name}).Info("tree: repository initialized")
	return repo, nil
}

// SetTopModule designates the top-level module of a repository.
func (t *Tree) SetTopModule(ctx context.Context, repositoryID, module, entryID string) error {
	return t.meta.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		repo, err := tx.GetRepository(ctx, repositoryID)
		if err != nil {
			return err
		}
		if entryID != "" {
			e, err := live(ctx, tx, entryID)
			if err != nil {
				return err
			}
			if e.RepositoryID != repositoryID {
				return fmt.Errorf("entry %s is not in repository %s: %w", entryID, repositoryID, common.ErrNotFound)
			}
		}
		repo.TopModule = module
		repo.TopEntryID = entryID
		return tx.UpdateRepository(ctx, repo)
	})
}

// Create adds an entry under parentID. Containers take a nil body; every
// other handler requires one (an empty reader is an empty file).
func (t *Tree) Create(ctx context.Context, parentID string, attrs Attrs, body io.Reader, opts Options) (*model.Entry, error) {
	attrs = attrs.withDefaults()
	if !common.ValidTitle(attrs.Title) {
		return nil, fmt.Errorf("%q: %w", attrs.Title, common.ErrInvalidTitle)
	}
	if attrs.Handler == model.HandlerRoot {
		return nil, common.ErrSingleRoot
	}
	if !attrs.Access.Valid() {
		return nil, fmt.Errorf("invalid access level %q", attrs.Access)
	}
	generated := attrs.Provenance == model.ProvenanceGenerated
	if !attrs.Handler.UserCreatable() && !generated {
		return nil, fmt.Errorf("%s entries are build outputs: %w", attrs.Handler, common.ErrProtected)
	}
	if attrs.Handler.IsContainer() && body != nil {
		return nil, common.ErrFolderContent
	}
	if !attrs.Handler.IsContainer() && body == nil {
		return nil, common.ErrContentRequired
	}
	// Only generated entries may bypass a read-only parent.
	force := opts.Force && generated

	// Fail fast before writing any content.
	if _, err := checkParent(ctx, t.meta, parentID, force); err != nil {
		return nil, err
	}

	var blob content.Info
	if body != nil {
		var err error
		if blob, err = content.Put(ctx, t.blobs, attrs.Title, body); err != nil {
			return nil, err
		}
	}

	now := t.now()
	e := &model.Entry{
		ID:         uuid.NewString(),
		ParentID:   parentID,
		Title:      attrs.Title,
		Handler:    attrs.Handler,
		Access:     attrs.Access,
		Provenance: attrs.Provenance,
		Anchor:     attrs.Anchor,
		Included:   !attrs.Excluded,
		State:      attrs.State,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	var replaced bool
	err := t.meta.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		parent, err := checkParent(ctx, tx, parentID, force)
		if err != nil {
			return err
		}
		e.RepositoryID = parent.RepositoryID
		if replaced, err = t.resolveConflict(ctx, tx, parent, e.Title, nil, opts); err != nil {
			return err
		}
		if e.Ordinal, err = tx.NextSequence(ctx, childScope(parentID)); err != nil {
			return err
		}
		if err := tx.InsertEntry(ctx, e); err != nil {
			return err
		}
		if body == nil {
			return nil
		}
		return tx.PutContent(ctx, &model.FileContent{
			EntryID:   e.ID,
			Handle:    string(blob.Handle),
			Size:      blob.Size,
			SHA256:    blob.SHA256,
			UpdatedAt: now,
		})
	})
	if err != nil {
		t.discard(ctx, blob)
		return nil, err
	}
	if replaced {
		t.notifyRelease()
	}
	log.WithFields(log.Fields{"entry": e.ID, "title": e.Title, "handler": e.Handler}).Debug("tree: created entry")
	return e, nil
}
