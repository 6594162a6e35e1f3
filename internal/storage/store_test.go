package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtlforge/internal/common"
	"rtlforge/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "meta.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newEntry(repo, parent, title string, h model.Handler) *model.Entry {
	now := time.Now()
	return &model.Entry{
		ID:           title + "-" + parent,
		RepositoryID: repo,
		ParentID:     parent,
		Title:        title,
		Handler:      h,
		Access:       model.AccessWrite,
		Provenance:   model.ProvenanceUser,
		Included:     true,
		State:        model.StateReady,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestOpenReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "meta.db")
	s, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, 0)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	stmts := splitStatements("-- comment\nCREATE TABLE a (x INT);\n\nCREATE TABLE b (\n  y INT\n);\nSELECT 1")
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (x INT);", stmts[0])
	assert.Equal(t, "SELECT 1", stmts[2])
}

func TestGetBusyTimeout(t *testing.T) {
	assert.Equal(t, DefaultBusyTimeout, GetBusyTimeout(0))
	assert.Equal(t, 500, GetBusyTimeout(500))
	t.Setenv(EnvBusyTimeout, "1234")
	assert.Equal(t, 1234, GetBusyTimeout(500))
}

func TestNextSequence(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	var got []int64
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
			v, err := tx.NextSequence(ctx, "children:p")
			got = append(got, v)
			return err
		}))
	}
	assert.Equal(t, []int64{1, 2, 3}, got)

	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		v, err := tx.NextSequence(ctx, "children:q")
		assert.Equal(t, int64(1), v)
		return err
	}))
}

func TestEntryRoundTripAndFilters(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	root := newEntry("r1", "", "", model.HandlerRoot)
	src := newEntry("r1", root.ID, "src", model.HandlerFolder)
	top := newEntry("r1", src.ID, "top.v", model.HandlerVerilog)
	top.Included = false
	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		for _, e := range []*model.Entry{root, src, top} {
			if err := tx.InsertEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	got, err := s.GetEntry(ctx, top.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HandlerVerilog, got.Handler)
	assert.Equal(t, "top.v", got.Title)
	assert.False(t, got.Included)

	all, err := s.FindEntries(ctx, model.EntryQuery{RepositoryID: "r1"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	yes := true
	included, err := s.FindEntries(ctx, model.EntryQuery{RepositoryID: "r1", Included: &yes})
	require.NoError(t, err)
	assert.Len(t, included, 2)

	verilog, err := s.FindEntries(ctx, model.EntryQuery{Handlers: []model.Handler{model.HandlerVerilog}})
	require.NoError(t, err)
	require.Len(t, verilog, 1)

	_, err = s.GetEntry(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestLiveTitleIndex(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	a := newEntry("r1", "p", "x.v", model.HandlerVerilog)
	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		return tx.InsertEntry(ctx, a)
	}))

	dup := newEntry("r1", "p", "x.v", model.HandlerVerilog)
	dup.ID = "other"
	err := s.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		return tx.InsertEntry(ctx, dup)
	})
	assert.ErrorIs(t, err, common.ErrNameConflict)

	// Soft-deleted rows do not hold on to their title.
	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		if err := tx.SoftDeleteEntries(ctx, []string{a.ID}, time.Now()); err != nil {
			return err
		}
		return tx.InsertEntry(ctx, dup)
	}))

	deleted, err := s.FindEntries(ctx, model.EntryQuery{ParentID: "p", OnlyDeleted: true})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, a.ID, deleted[0].ID)
	assert.False(t, deleted[0].DeletedAt.IsZero())
}

func TestSingleRootIndex(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		return tx.InsertEntry(ctx, newEntry("r1", "", "", model.HandlerRoot))
	}))
	second := newEntry("r1", "", "again", model.HandlerRoot)
	err := s.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		return tx.InsertEntry(ctx, second)
	})
	assert.ErrorIs(t, err, common.ErrSingleRoot)
}

func TestTransactionRollback(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	e := newEntry("r1", "p", "a.v", model.HandlerVerilog)
	err := s.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		if err := tx.InsertEntry(ctx, e); err != nil {
			return err
		}
		if err := tx.EnqueueRelease(ctx, "h1"); err != nil {
			return err
		}
		return common.ErrCycle
	})
	require.ErrorIs(t, err, common.ErrCycle)

	_, err = s.GetEntry(ctx, e.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	n, err := s.PendingReleaseCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepositoryUniqueness(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	r := &model.Repository{ID: "r1", Owner: "ada", Name: "cpu", Number: 1, CreatedAt: time.Now()}
	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		return tx.InsertRepository(ctx, r)
	}))
	dup := *r
	dup.ID = "r2"
	err := s.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		return tx.InsertRepository(ctx, &dup)
	})
	assert.ErrorIs(t, err, common.ErrRepoExists)

	got, err := s.FindRepository(ctx, "ada", "cpu")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)

	repos, err := s.ListRepositories(ctx, "ada")
	require.NoError(t, err)
	assert.Len(t, repos, 1)
}

func TestContentAndReleaseQueue(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		if err := tx.PutContent(ctx, &model.FileContent{EntryID: "e1", Handle: "h1", Size: 3}); err != nil {
			return err
		}
		return tx.PutContent(ctx, &model.FileContent{EntryID: "e1", Handle: "h2", Size: 5})
	}))
	c, err := s.GetContent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "h2", c.Handle)
	assert.Equal(t, int64(5), c.Size)

	require.NoError(t, s.EnqueueRelease(ctx, "h1", "h1", ""))
	due, err := s.DueReleases(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "h1", due[0].Handle)

	next := time.Now().Add(time.Hour)
	require.NoError(t, s.RescheduleRelease(ctx, "h1", 1, "boom", next))
	due, err = s.DueReleases(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, s.DeleteRelease(ctx, "h1"))
	n, err := s.PendingReleaseCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPurgeEntries(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	dead := newEntry("r1", "p", "old.v", model.HandlerVerilog)
	live := newEntry("r1", "p", "new.v", model.HandlerVerilog)
	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx model.MetaTx) error {
		for _, e := range []*model.Entry{dead, live} {
			if err := tx.InsertEntry(ctx, e); err != nil {
				return err
			}
		}
		if err := tx.PutContent(ctx, &model.FileContent{EntryID: dead.ID, Handle: "hd"}); err != nil {
			return err
		}
		return tx.SoftDeleteEntries(ctx, []string{dead.ID}, time.Now())
	}))

	n, err := s.PurgeEntries(ctx, []string{dead.ID, live.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetEntry(ctx, dead.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.GetEntry(ctx, live.ID)
	assert.NoError(t, err)

	due, err := s.DueReleases(ctx, time.Now().Add(time.Second), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "hd", due[0].Handle)
}

func TestBlobs(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteBlob(ctx, "b1", "top.v", [][]byte{[]byte("mod"), []byte("ule")}))
	ok, err := s.HasBlob(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, ok)

	chunks, err := s.ReadBlob(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("mod"), []byte("ule")}, chunks)

	require.NoError(t, s.DeleteBlob(ctx, "b1"))
	require.NoError(t, s.DeleteBlob(ctx, "b1"))
	_, err = s.ReadBlob(ctx, "b1")
	assert.ErrorIs(t, err, common.ErrContentMissing)
}
