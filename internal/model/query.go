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

package model

import (
	"context"
	"time"
)

// EntryQuery filters entries. Zero-valued fields do not filter, except that
// deleted entries are excluded unless IncludeDeleted is set.
type EntryQuery struct {
	RepositoryID   string
	ParentID       string
	Title          string
	Handlers       []Handler
	Included       *bool
	IncludeDeleted bool
	OnlyDeleted    bool
	DeletedBefore  time.Time
	Limit          int
}

// MetaTx is the transactional writer handed out by a metadata store.
// Everything done through one MetaTx commits or rolls back together.
type MetaTx interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
	GetEntry(ctx context.Context, id string) (*Entry, error)
	FindEntries(ctx context.Context, q EntryQuery) ([]*Entry, error)
	InsertEntry(ctx context.Context, e *Entry) error
	UpdateEntry(ctx context.Context, e *Entry) error
	SoftDeleteEntries(ctx context.Context, ids []string, at time.Time) error
	GetRepository(ctx context.Context, id string) (*Repository, error)
	InsertRepository(ctx context.Context, r *Repository) error
	UpdateRepository(ctx context.Context, r *Repository) error
	GetContent(ctx context.Context, entryID string) (*FileContent, error)
	FindContents(ctx context.Context, entryIDs []string) ([]*FileContent, error)
	PutContent(ctx context.Context, c *FileContent) error
	EnqueueRelease(ctx context.Context, handles ...string) error
}
