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

// Package reclaim frees storage that tree operations have orphaned: the
// Releaser drains the pending release queue and the Sweeper purges entries
// that have been soft-deleted for longer than the retention window.
package reclaim

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"rtlforge/internal/config"
	"rtlforge/internal/content"
	"rtlforge/internal/model"
	"rtlforge/internal/util"
)

// Queue is the persistent release queue.
type Queue interface {
	DueReleases(ctx context.Context, now time.Time, limit int) ([]*model.PendingRelease, error)
	RescheduleRelease(ctx context.Context, handle string, attempts int, lastErr string, next time.Time) error
	DeleteRelease(ctx context.Context, handle string) error
}

const (
	baseRetryDelay = time.Second
	maxRetryDelay  = time.Hour
)

// Releaser deletes queued blobs in the background.
type Releaser struct {
	queue Queue
	blobs content.Store
	cfg   config.ReclaimSettings
	now   func() time.Time

	kick   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu serializes drains.
	mu sync.Mutex
}

// NewReleaser returns a stopped releaser.
func NewReleaser(queue Queue, blobs content.Store, cfg config.ReclaimSettings) *Releaser {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Releaser{
		queue: queue,
		blobs: blobs,
		cfg:   cfg,
		now:   time.Now,
		kick:  make(chan struct{}, 1),
	}
}

// Start runs the drain loop until Stop or ctx is done.
func (r *Releaser) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		util.Every(ctx, r.cfg.Interval, r.kick, func(ctx context.Context) {
			if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("reclaim: drain failed")
			}
		})
	}()
}

// Stop ends the drain loop and waits for it.
func (r *Releaser) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Kick asks for a drain without waiting for the next interval.
func (r *Releaser) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Drain processes every due release once and returns how many blobs were
// deleted. Per-blob failures are rescheduled, not returned.
func (r *Releaser) Drain(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	released := 0
	for {
		due, err := r.queue.DueReleases(ctx, r.now(), r.cfg.BatchSize)
		if err != nil {
			return released, err
		}
		if len(due) == 0 {
			return released, nil
		}
		for _, p := range due {
			if err := ctx.Err(); err != nil {
				return released, err
			}
			ok, err := r.release(ctx, p)
			if err != nil {
				return released, err
			}
			if ok {
				released++
			}
		}
		if len(due) < r.cfg.BatchSize {
			return released, nil
		}
	}
}

// release deletes one blob. It returns a queue error only; blob store
// failures are recorded on the queue row.
func (r *Releaser) release(ctx context.Context, p *model.PendingRelease) (bool, error) {
	h := content.Handle(p.Handle)
	err := h.Validate()
	if err == nil {
		err = util.Retry(ctx, func() error {
			return r.blobs.Delete(ctx, h)
		}, util.BlobRetryOptions(ctx)...)
	}
	if err == nil {
		log.WithField("handle", p.Handle).Debug("reclaim: released blob")
		return true, r.queue.DeleteRelease(ctx, p.Handle)
	}

	attempts := p.Attempts + 1
	fields := log.Fields{"handle": p.Handle, "attempts": attempts}
	if attempts >= r.cfg.MaxAttempts {
		log.WithError(err).WithFields(fields).Error("reclaim: giving up on blob")
		return false, r.queue.DeleteRelease(ctx, p.Handle)
	}
	next := r.now().Add(util.Backoff(baseRetryDelay, maxRetryDelay, attempts))
	log.WithError(err).WithFields(fields).Warnf("reclaim: release failed, next attempt at %s", next.Format(time.RFC3339))
	return false, r.queue.RescheduleRelease(ctx, p.Handle, attempts, err.Error(), next)
}
