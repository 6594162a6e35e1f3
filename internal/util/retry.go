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

// Package util holds the retry, process and polling helpers shared by the
// metadata store, the release queue and the job runner.
package util

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// MetadataRetryOptions retry a metadata transaction that lost the SQLite
// write lock to another writer. Any other error fails on the first attempt.
func MetadataRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(300 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsDatabaseLocked),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
}

// BlobRetryOptions retry a content store call. The release queue uses them
// for each delete before it reschedules the handle.
func BlobRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
}

// CleanupRetryOptions retry removal of a job workspace after the first
// attempt failed. onRetry is told about every failed attempt.
func CleanupRetryOptions(ctx context.Context, onRetry func(n uint, err error)) []retry.Option {
	return []retry.Option{
		retry.Attempts(5),
		retry.Delay(250 * time.Millisecond),
		retry.MaxDelay(5 * time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(onRetry),
		retry.Context(ctx),
	}
}

// Retry runs fn until it succeeds or opts give up, and returns the last
// error. Without opts it uses BlobRetryOptions.
func Retry(ctx context.Context, fn func() error, opts ...retry.Option) error {
	if len(opts) == 0 {
		opts = BlobRetryOptions(ctx)
	}
	return retry.Do(fn, opts...)
}

// RetryWithResult is Retry for functions that return a value, such as a
// purge that reports how many rows it removed.
func RetryWithResult[T any](ctx context.Context, fn func() (T, error), opts ...retry.Option) (T, error) {
	if len(opts) == 0 {
		opts = BlobRetryOptions(ctx)
	}
	return retry.DoWithData(fn, opts...)
}

// IsDatabaseLocked reports whether err is SQLite/libsql lock contention.
func IsDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// Backoff doubles base once per attempt, capped at max. The release queue
// uses it to push back a handle that keeps failing.
func Backoff(base, max time.Duration, attempts int) time.Duration {
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
