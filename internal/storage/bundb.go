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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"rtlforge/internal/common"
	"rtlforge/internal/model"
	"rtlforge/internal/util"
)

// txn implements model.MetaTx over a bun transaction.
type txn struct {
	idb bun.IDB
}

var _ model.MetaTx = (*txn)(nil)

func (t *txn) NextSequence(ctx context.Context, scope string) (int64, error) {
	return nextSequenceWith(t.idb, ctx, scope)
}

func (t *txn) GetEntry(ctx context.Context, id string) (*model.Entry, error) {
	return getEntryWith(t.idb, ctx, id)
}

func (t *txn) FindEntries(ctx context.Context, q model.EntryQuery) ([]*model.Entry, error) {
	return findEntriesWith(t.idb, ctx, q)
}

func (t *txn) InsertEntry(ctx context.Context, e *model.Entry) error {
	_, err := t.idb.NewInsert().Model(EntryModelFromEntry(e)).Exec(ctx)
	return mapConstraint(err)
}

func (t *txn) UpdateEntry(ctx context.Context, e *model.Entry) error {
	res, err := t.idb.NewUpdate().Model(EntryModelFromEntry(e)).WherePK().Exec(ctx)
	if err != nil {
		return mapConstraint(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entry %s: %w", e.ID, common.ErrNotFound)
	}
	return nil
}

func (t *txn) SoftDeleteEntries(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	ms := toMillis(at)
	_, err := t.idb.NewUpdate().
		Model((*EntryModel)(nil)).
		Set("deleted = ?", true).
		Set("deleted_at = ?", ms).
		Set("updated_at = ?", ms).
		Where("id IN (?)", bun.In(ids)).
		Where("deleted = ?", false).
		Exec(ctx)
	return err
}

func (t *txn) GetRepository(ctx context.Context, id string) (*model.Repository, error) {
	return getRepositoryWith(t.idb, ctx, id)
}

func (t *txn) InsertRepository(ctx context.Context, r *model.Repository) error {
	_, err := t.idb.NewInsert().Model(RepositoryModelFromRepository(r)).Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s/%s: %w", r.Owner, r.Name, common.ErrRepoExists)
	}
	return err
}

func (t *txn) UpdateRepository(ctx context.Context, r *model.Repository) error {
	res, err := t.idb.NewUpdate().Model(RepositoryModelFromRepository(r)).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("repository %s: %w", r.ID, common.ErrNotFound)
	}
	return nil
}

func (t *txn) GetContent(ctx context.Context, entryID string) (*model.FileContent, error) {
	return getContentWith(t.idb, ctx, entryID)
}

func (t *txn) FindContents(ctx context.Context, entryIDs []string) ([]*model.FileContent, error) {
	return findContentsWith(t.idb, ctx, entryIDs)
}

func (t *txn) PutContent(ctx context.Context, c *model.FileContent) error {
	_, err := t.idb.NewInsert().
		Model(&FileContentModel{
			EntryID:   c.EntryID,
			Handle:    c.Handle,
			Size:      c.Size,
			SHA256:    c.SHA256,
			UpdatedAt: toMillis(c.UpdatedAt),
		}).
		On("CONFLICT (entry_id) DO UPDATE").
		Set("handle = EXCLUDED.handle").
		Set("size = EXCLUDED.size").
		Set("sha256 = EXCLUDED.sha256").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (t *txn) EnqueueRelease(ctx context.Context, handles ...string) error {
	return enqueueReleaseWith(t.idb, ctx, handles...)
}

// --- Query helpers shared by Store and txn ---

func nextSequenceWith(idb bun.IDB, ctx context.Context, scope string) (int64, error) {
	var value int64
	err := idb.NewRaw(
		`INSERT INTO sequences (scope, value) VALUES (?, 1)
		 ON CONFLICT (scope) DO UPDATE SET value = value + 1
		 RETURNING value`, scope).Scan(ctx, &value)
	if err != nil {
		return 0, fmt.Errorf("sequence %s: %w", scope, err)
	}
	return value, nil
}

func getEntryWith(idb bun.IDB, ctx context.Context, id string) (*model.Entry, error) {
	var m EntryModel
	err := idb.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.ToEntry()
}

func findEntriesWith(idb bun.IDB, ctx context.Context, q model.EntryQuery) ([]*model.Entry, error) {
	var rows []EntryModel
	sel := idb.NewSelect().Model(&rows)
	if q.RepositoryID != "" {
		sel = sel.Where("repository_id = ?", q.RepositoryID)
	}
	if q.ParentID != "" {
		sel = sel.Where("parent_id = ?", q.ParentID)
	}
	if q.Title != "" {
		sel = sel.Where("title = ?", q.Title)
	}
	if len(q.Handlers) > 0 {
		names := make([]string, len(q.Handlers))
		for i, h := range q.Handlers {
			names[i] = h.String()
		}
		sel = sel.Where("handler IN (?)", bun.In(names))
	}
	if q.Included != nil {
		sel = sel.Where("included = ?", *q.Included)
	}
	switch {
	case q.OnlyDeleted:
		sel = sel.Where("deleted = ?", true)
	case !q.IncludeDeleted:
		sel = sel.Where("deleted = ?", false)
	}
	if !q.DeletedBefore.IsZero() {
		sel = sel.Where("deleted_at < ?", toMillis(q.DeletedBefore))
	}
	sel = sel.Order("parent_id ASC", "ordinal ASC", "id ASC")
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}

	entries := make([]*model.Entry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].ToEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func getRepositoryWith(idb bun.IDB, ctx context.Context, id string) (*model.Repository, error) {
	var m RepositoryModel
	err := idb.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.ToRepository(), nil
}

func getContentWith(idb bun.IDB, ctx context.Context, entryID string) (*model.FileContent, error) {
	var m FileContentModel
	err := idb.NewSelect().Model(&m).Where("entry_id = ?", entryID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content of %s: %w", entryID, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.ToFileContent(), nil
}

func findContentsWith(idb bun.IDB, ctx context.Context, entryIDs []string) ([]*model.FileContent, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	var rows []FileContentModel
	if err := idb.NewSelect().Model(&rows).Where("entry_id IN (?)", bun.In(entryIDs)).Order("entry_id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*model.FileContent, len(rows))
	for i := range rows {
		out[i] = rows[i].ToFileContent()
	}
	return out, nil
}

func enqueueReleaseWith(idb bun.IDB, ctx context.Context, handles ...string) error {
	now := time.Now().UnixMilli()
	for _, h := range handles {
		if h == "" {
			continue
		}
		_, err := idb.NewInsert().
			Model(&PendingReleaseModel{Handle: h, NextAttemptAt: now, CreatedAt: now}).
			On("CONFLICT (handle) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("enqueue release %s: %w", h, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// mapConstraint turns index violations on entries into tree errors.
func mapConstraint(err error) error {
	if !isUniqueViolation(err) {
		return err
	}
	if strings.Contains(err.Error(), "entries.title") {
		return fmt.Errorf("%w: %v", common.ErrNameConflict, err)
	}
	if strings.Contains(err.Error(), "entries.repository_id") {
		return fmt.Errorf("%w: %v", common.ErrSingleRoot, err)
	}
	return err
}

// --- Store read API ---

// GetEntry returns one entry, deleted or not.
func (s *Store) GetEntry(ctx context.Context, id string) (*model.Entry, error) {
	return getEntryWith(s.bun, ctx, id)
}

// FindEntries runs a filtered entry query. Deleted rows are excluded unless
// the query asks for them.
func (s *Store) FindEntries(ctx context.Context, q model.EntryQuery) ([]*model.Entry, error) {
	return findEntriesWith(s.bun, ctx, q)
}

// GetRepository returns a repository by id.
func (s *Store) GetRepository(ctx context.Context, id string) (*model.Repository, error) {
	return getRepositoryWith(s.bun, ctx, id)
}

// FindRepository returns a repository by owner and name.
func (s *Store) FindRepository(ctx context.Context, owner, name string) (*model.Repository, error) {
	var m RepositoryModel
	err := s.bun.NewSelect().Model(&m).Where("owner = ?", owner).Where("name = ?", name).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository %s/%s: %w", owner, name, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.ToRepository(), nil
}

// ListRepositories returns an owner's repositories ordered by number.
func (s *Store) ListRepositories(ctx context.Context, owner string) ([]*model.Repository, error) {
	var rows []RepositoryModel
	if err := s.bun.NewSelect().Model(&rows).Where("owner = ?", owner).Order("number ASC").Scan(ctx); err != nil {
		return nil, err
	}
	repos := make([]*model.Repository, len(rows))
	for i := range rows {
		repos[i] = rows[i].ToRepository()
	}
	return repos, nil
}

// GetContent returns the content record of an entry.
func (s *Store) GetContent(ctx context.Context, entryID string) (*model.FileContent, error) {
	return getContentWith(s.bun, ctx, entryID)
}

// FindContents returns the content records of the given entries.
func (s *Store) FindContents(ctx context.Context, entryIDs []string) ([]*model.FileContent, error) {
	return findContentsWith(s.bun, ctx, entryIDs)
}

// --- Release queue ---

// DueReleases returns up to limit pending releases whose next attempt is due.
func (s *Store) DueReleases(ctx context.Context, now time.Time, limit int) ([]*model.PendingRelease, error) {
	var rows []PendingReleaseModel
	sel := s.bun.NewSelect().Model(&rows).
		Where("next_attempt_at <= ?", toMillis(now)).
		Order("next_attempt_at ASC", "handle ASC")
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*model.PendingRelease, len(rows))
	for i := range rows {
		out[i] = rows[i].ToPendingRelease()
	}
	return out, nil
}

// PendingReleaseCount returns the number of queued releases.
func (s *Store) PendingReleaseCount(ctx context.Context) (int, error) {
	return s.bun.NewSelect().Model((*PendingReleaseModel)(nil)).Count(ctx)
}

// EnqueueRelease queues handles for deletion outside any tree transaction.
func (s *Store) EnqueueRelease(ctx context.Context, handles ...string) error {
	return util.Retry(ctx, func() error {
		return enqueueReleaseWith(s.bun, ctx, handles...)
	}, util.MetadataRetryOptions(ctx)...)
}

// RescheduleRelease records a failed attempt.
func (s *Store) RescheduleRelease(ctx context.Context, handle string, attempts int, lastErr string, next time.Time) error {
	return util.Retry(ctx, func() error {
		_, err := s.bun.NewUpdate().
			Model((*PendingReleaseModel)(nil)).
			Set("attempts = ?", attempts).
			Set("last_error = ?", lastErr).
			Set("next_attempt_at = ?", toMillis(next)).
			Where("handle = ?", handle).
			Exec(ctx)
		return err
	}, util.MetadataRetryOptions(ctx)...)
}

// DeleteRelease removes a handle from the queue.
func (s *Store) DeleteRelease(ctx context.Context, handle string) error {
	return util.Retry(ctx, func() error {
		_, err := s.bun.NewDelete().Model((*PendingReleaseModel)(nil)).Where("handle = ?", handle).Exec(ctx)
		return err
	}, util.MetadataRetryOptions(ctx)...)
}

// PurgeEntries physically removes soft-deleted entries and their content
// records, queueing the content handles for release. Live entries are
// never touched.
func (s *Store) PurgeEntries(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return util.RetryWithResult(ctx, func() (int, error) {
		var purged int
		err := s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			purged, err = purgeWith(tx, ctx, ids)
			return err
		})
		return purged, err
	}, util.MetadataRetryOptions(ctx)...)
}

func purgeWith(idb bun.IDB, ctx context.Context, ids []string) (int, error) {
	var dead []string
	if err := idb.NewSelect().Model((*EntryModel)(nil)).Column("id").
		Where("id IN (?)", bun.In(ids)).Where("deleted = ?", true).
		Scan(ctx, &dead); err != nil {
		return 0, err
	}
	if len(dead) == 0 {
		return 0, nil
	}

	var handles []string
	if err := idb.NewSelect().Model((*FileContentModel)(nil)).Column("handle").
		Where("entry_id IN (?)", bun.In(dead)).
		Scan(ctx, &handles); err != nil {
		return 0, err
	}
	if err := enqueueReleaseWith(idb, ctx, handles...); err != nil {
		return 0, err
	}
	if _, err := idb.NewDelete().Model((*FileContentModel)(nil)).Where("entry_id IN (?)", bun.In(dead)).Exec(ctx); err != nil {
		return 0, err
	}
	if _, err := idb.NewDelete().Model((*EntryModel)(nil)).Where("id IN (?)", bun.In(dead)).Exec(ctx); err != nil {
		return 0, err
	}
	return len(dead), nil
}

// --- Blob tables for the database-backed content store ---

// WriteBlob stores a blob's chunks in one transaction.
func (s *Store) WriteBlob(ctx context.Context, handle, name string, chunks [][]byte) error {
	var size int64
	for _, c := range chunks {
		size += int64(len(c))
	}
	return util.Retry(ctx, func() error {
		return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			blob := &BlobModel{Handle: handle, Name: name, Size: size, CreatedAt: time.Now().UnixMilli()}
			if _, err := tx.NewInsert().Model(blob).Exec(ctx); err != nil {
				return err
			}
			for i, data := range chunks {
				chunk := &BlobChunkModel{Handle: handle, ChunkIdx: i, Data: data}
				if _, err := tx.NewInsert().Model(chunk).Exec(ctx); err != nil {
					return err
				}
			}
			return nil
		})
	}, util.MetadataRetryOptions(ctx)...)
}

// ReadBlob returns a blob's chunks in order.
func (s *Store) ReadBlob(ctx context.Context, handle string) ([][]byte, error) {
	ok, err := s.HasBlob(ctx, handle)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", handle, common.ErrContentMissing)
	}
	var rows []BlobChunkModel
	if err := s.bun.NewSelect().Model(&rows).Where("handle = ?", handle).Order("chunk_idx ASC").Scan(ctx); err != nil {
		return nil, err
	}
	chunks := make([][]byte, len(rows))
	for i := range rows {
		chunks[i] = rows[i].Data
	}
	return chunks, nil
}

// HasBlob reports whether a blob is stored.
func (s *Store) HasBlob(ctx context.Context, handle string) (bool, error) {
	return s.bun.NewSelect().Model((*BlobModel)(nil)).Where("handle = ?", handle).Exists(ctx)
}

// DeleteBlob removes a blob. Missing blobs are not an error.
func (s *Store) DeleteBlob(ctx context.Context, handle string) error {
	return util.Retry(ctx, func() error {
		return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewDelete().Model((*BlobChunkModel)(nil)).Where("handle = ?", handle).Exec(ctx); err != nil {
				return err
			}
			_, err := tx.NewDelete().Model((*BlobModel)(nil)).Where("handle = ?", handle).Exec(ctx)
			return err
		})
	}, util.MetadataRetryOptions(ctx)...)
}
