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

package reclaim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"rtlforge/internal/model"
)

// ErrSweepLocked is returned when another process holds the sweep lock.
var ErrSweepLocked = errors.New("another sweep is in progress")

// Purger finds and physically removes soft-deleted entries.
type Purger interface {
	FindEntries(ctx context.Context, q model.EntryQuery) ([]*model.Entry, error)
	PurgeEntries(ctx context.Context, ids []string) (int, error)
}

// Sweeper purges entries soft-deleted longer ago than the retention window.
type Sweeper struct {
	store     Purger
	lockPath  string
	retention time.Duration
	batchSize int
	now       func() time.Time
}

// NewSweeper returns a sweeper guarded by the lock file at lockPath.
func NewSweeper(store Purger, lockPath string, retention time.Duration, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{store: store, lockPath: lockPath, retention: retention, batchSize: batchSize, now: time.Now}
}

// Sweep purges in batches until nothing old enough is left and returns the
// number of entries removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	lock := flock.New(s.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return 0, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !locked {
		return 0, ErrSweepLocked
	}
	defer lock.Unlock()

	cutoff := s.now().Add(-s.retention)
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		dead, err := s.store.FindEntries(ctx, model.EntryQuery{OnlyDeleted: true, DeletedBefore: cutoff, Limit: s.batchSize})
		if err != nil {
			return total, err
		}
		if len(dead) == 0 {
			break
		}
		ids := make([]string, len(dead))
		for i, e := range dead {
			ids[i] = e.ID
		}
		n, err := s.store.PurgeEntries(ctx, ids)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			break
		}
	}
	if total > 0 {
		log.WithFields(log.Fields{"purged": total, "cutoff": cutoff.Format(time.RFC3339)}).Info("reclaim: swept deleted entries")
	}
	return total, nil
}
