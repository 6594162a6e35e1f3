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

package storage

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"rtlforge/internal/model"
)

// Bun ORM models for the rtlforge metadata tables.
// Times are stored as Unix milliseconds.

// SchemaInfoModel represents the schema_info table
type SchemaInfoModel struct {
	bun.BaseModel `bun:"table:schema_info"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// RepositoryModel represents the repositories table
type RepositoryModel struct {
	bun.BaseModel `bun:"table:repositories"`

	ID         string `bun:"id,pk"`
	Owner      string `bun:"owner,notnull"`
	Name       string `bun:"name,notnull"`
	Private    bool   `bun:"private,notnull"`
	Number     int64  `bun:"number,notnull"`
	TopModule  string `bun:"top_module,notnull"`
	TopEntryID string `bun:"top_entry_id,notnull"`
	RootID     string `bun:"root_id,notnull"`
	BuildID    string `bun:"build_id,notnull"`
	SoftwareID string `bun:"software_id,notnull"`
	HexID      string `bun:"hex_id,notnull"`
	IPCoresID  string `bun:"ipcores_id,notnull"`
	CreatedAt  int64  `bun:"created_at,notnull"`
}

// EntryModel represents the entries table
type EntryModel struct {
	bun.BaseModel `bun:"table:entries"`

	ID           string `bun:"id,pk"`
	RepositoryID string `bun:"repository_id,notnull"`
	ParentID     string `bun:"parent_id,notnull"`
	Title        string `bun:"title,notnull"`
	Handler      string `bun:"handler,notnull"`
	Access       string `bun:"access,notnull"`
	Provenance   string `bun:"provenance,notnull"`
	Anchor       bool   `bun:"anchor,notnull"`
	Included     bool   `bun:"included,notnull"`
	State        string `bun:"state,notnull"`
	Ordinal      int64  `bun:"ordinal,notnull"`
	Deleted      bool   `bun:"deleted,notnull"`
	DeletedAt    int64  `bun:"deleted_at,notnull"`
	CreatedAt    int64  `bun:"created_at,notnull"`
	UpdatedAt    int64  `bun:"updated_at,notnull"`
}

// FileContentModel represents the file_contents table
type FileContentModel struct {
	bun.BaseModel `bun:"table:file_contents"`

	EntryID   string `bun:"entry_id,pk"`
	Handle    string `bun:"handle,notnull"`
	Size      int64  `bun:"size,notnull"`
	SHA256    string `bun:"sha256,notnull"`
	UpdatedAt int64  `bun:"updated_at,notnull"`
}

// SequenceModel represents the sequences table
type SequenceModel struct {
	bun.BaseModel `bun:"table:sequences"`

	Scope string `bun:"scope,pk"`
	Value int64  `bun:"value,notnull"`
}

// PendingReleaseModel represents the pending_releases table
type PendingReleaseModel struct {
	bun.BaseModel `bun:"table:pending_releases"`

	Handle        string `bun:"handle,pk"`
	Attempts      int    `bun:"attempts,notnull"`
	LastError     string `bun:"last_error,notnull"`
	NextAttemptAt int64  `bun:"next_attempt_at,notnull"`
	CreatedAt     int64  `bun:"created_at,notnull"`
}

// BlobModel represents the blobs table
type BlobModel struct {
	bun.BaseModel `bun:"table:blobs"`

	Handle    string `bun:"handle,pk"`
	Name      string `bun:"name,notnull"`
	Size      int64  `bun:"size,notnull"`
	CreatedAt int64  `bun:"created_at,notnull"`
}

// BlobChunkModel represents the blob_chunks table
type BlobChunkModel struct {
	bun.BaseModel `bun:"table:blob_chunks"`

	Handle   string `bun:"handle,pk"`
	ChunkIdx int    `bun:"chunk_idx,pk"`
	Data     []byte `bun:"data,notnull"`
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// ToEntry converts an EntryModel to a model.Entry
func (m *EntryModel) ToEntry() (*model.Entry, error) {
	h, err := model.ParseHandler(m.Handler)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", m.ID, err)
	}
	st, err := model.ParseState(m.State)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", m.ID, err)
	}
	return &model.Entry{
		ID:           m.ID,
		RepositoryID: m.RepositoryID,
		ParentID:     m.ParentID,
		Title:        m.Title,
		Handler:      h,
		Access:       model.Access(m.Access),
		Provenance:   model.Provenance(m.Provenance),
		Anchor:       m.Anchor,
		Included:     m.Included,
		State:        st,
		Ordinal:      m.Ordinal,
		Deleted:      m.Deleted,
		DeletedAt:    fromMillis(m.DeletedAt),
		CreatedAt:    fromMillis(m.CreatedAt),
		UpdatedAt:    fromMillis(m.UpdatedAt),
	}, nil
}

// EntryModelFromEntry converts a model.Entry to an EntryModel
func EntryModelFromEntry(e *model.Entry) *EntryModel {
	return &EntryModel{
		ID:           e.ID,
		RepositoryID: e.RepositoryID,
		ParentID:     e.ParentID,
		Title:        e.Title,
		Handler:      e.Handler.String(),
		Access:       string(e.Access),
		Provenance:   string(e.Provenance),
		Anchor:       e.Anchor,
		Included:     e.Included,
		State:        string(e.State),
		Ordinal:      e.Ordinal,
		Deleted:      e.Deleted,
		DeletedAt:    toMillis(e.DeletedAt),
		CreatedAt:    toMillis(e.CreatedAt),
		UpdatedAt:    toMillis(e.UpdatedAt),
	}
}

// ToRepository converts a RepositoryModel to a model.Repository
func (m *RepositoryModel) ToRepository() *model.Repository {
	return &model.Repository{
		ID:         m.ID,
		Owner:      m.Owner,
		Name:       m.Name,
		Private:    m.Private,
		Number:     m.Number,
		TopModule:  m.TopModule,
		TopEntryID: m.TopEntryID,
		RootID:     m.RootID,
		BuildID:    m.BuildID,
		SoftwareID: m.SoftwareID,
		HexID:      m.HexID,
		IPCoresID:  m.IPCoresID,
		CreatedAt:  fromMillis(m.CreatedAt),
	}
}

// RepositoryModelFromRepository converts a model.Repository to a RepositoryModel
func RepositoryModelFromRepository(r *model.Repository) *RepositoryModel {
	return &RepositoryModel{
		ID:         r.ID,
		Owner:      r.Owner,
		Name:       r.Name,
		Private:    r.Private,
		Number:     r.Number,
		TopModule:  r.TopModule,
		TopEntryID: r.TopEntryID,
		RootID:     r.RootID,
		BuildID:    r.BuildID,
		SoftwareID: r.SoftwareID,
		HexID:      r.HexID,
		IPCoresID:  r.IPCoresID,
		CreatedAt:  toMillis(r.CreatedAt),
	}
}

// ToFileContent converts a FileContentModel to a model.FileContent
func (m *FileContentModel) ToFileContent() *model.FileContent {
	return &model.FileContent{
		EntryID:   m.EntryID,
		Handle:    m.Handle,
		Size:      m.Size,
		SHA256:    m.SHA256,
		UpdatedAt: fromMillis(m.UpdatedAt),
	}
}

// ToPendingRelease converts a PendingReleaseModel to a model.PendingRelease
func (m *PendingReleaseModel) ToPendingRelease() *model.PendingRelease {
	return &model.PendingRelease{
		Handle:        m.Handle,
		Attempts:      m.Attempts,
		LastError:     m.LastError,
		NextAttemptAt: fromMillis(m.NextAttemptAt),
		CreatedAt:     fromMillis(m.CreatedAt),
	}
}
