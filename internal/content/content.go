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

// Package content stores immutable file bodies addressed by opaque handles.
package content

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"rtlforge/internal/common"
)

// Handle identifies one stored blob. It carries no path semantics.
type Handle string

// NewHandle allocates a fresh handle.
func NewHandle() Handle {
	return Handle(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Validate rejects handles that could not have come from NewHandle.
func (h Handle) Validate() error {
	if len(h) != 32 {
		return fmt.Errorf("%q: %w", string(h), common.ErrInvalidHandle)
	}
	for _, c := range h {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return fmt.Errorf("%q: %w", string(h), common.ErrInvalidHandle)
		}
	}
	return nil
}

func (h Handle) String() string { return string(h) }

// Store is a blob store. Writes become visible only on Commit.
type Store interface {
	// Create opens a streaming sink for a new blob. name is advisory.
	Create(ctx context.Context, name string) (Writer, error)
	// Read returns the whole body, or ErrContentMissing.
	Read(ctx context.Context, h Handle) ([]byte, error)
	// Open streams the body, or fails with ErrContentMissing.
	Open(ctx context.Context, h Handle) (io.ReadCloser, error)
	Exists(ctx context.Context, h Handle) (bool, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, h Handle) error
}

// Writer is the sink returned by Store.Create.
type Writer interface {
	io.Writer
	// Commit durably stores the body and returns its handle.
	Commit() (Handle, error)
	// Abort discards everything written so far.
	Abort() error
}

// Info describes a committed blob.
type Info struct {
	Handle Handle
	Size   int64
	SHA256 string
}

// Put streams r into a new blob. On any error nothing is left behind.
func Put(ctx context.Context, s Store, name string, r io.Reader) (Info, error) {
	w, err := s.Create(ctx, name)
	if err != nil {
		return Info{}, err
	}
	sum := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, sum), r)
	if err != nil {
		_ = w.Abort()
		return Info{}, fmt.Errorf("write %s: %w", name, err)
	}
	h, err := w.Commit()
	if err != nil {
		return Info{}, fmt.Errorf("commit %s: %w", name, err)
	}
	return Info{Handle: h, Size: n, SHA256: hex.EncodeToString(sum.Sum(nil))}, nil
}

// PutBytes is Put for an in-memory body.
func PutBytes(ctx context.Context, s Store, name string, body []byte) (Info, error) {
	return Put(ctx, s, name, bytes.NewReader(body))
}

// Copy duplicates a blob under a new handle.
func Copy(ctx context.Context, s Store, h Handle, name string) (Info, error) {
	rc, err := s.Open(ctx, h)
	if err != nil {
		return Info{}, err
	}
	defer rc.Close()
	return Put(ctx, s, name, rc)
}
