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

package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	log "github.com/sirupsen/logrus"

	"rtlforge/internal/common"
)

const tmpDir = "tmp"

// FSStore keeps blobs as files in a billy filesystem, sharded by the
// first two characters of the handle.
type FSStore struct {
	fs billy.Filesystem
}

var _ Store = (*FSStore)(nil)

// NewFSStore wraps an existing filesystem.
func NewFSStore(fs billy.Filesystem) *FSStore {
	return &FSStore{fs: fs}
}

// OpenFSStore opens a store rooted at dir on the local disk.
func OpenFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("content dir: %w", err)
	}
	return NewFSStore(osfs.New(dir)), nil
}

func (s *FSStore) blobPath(h Handle) string {
	return path.Join(string(h[:2]), string(h[2:]))
}

func (s *FSStore) Create(ctx context.Context, name string) (Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.fs.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrWorkspace, err)
	}
	f, err := s.fs.TempFile(tmpDir, "blob-")
	if err != nil {
		return nil, fmt.Errorf("create blob for %s: %w", name, err)
	}
	return &fsWriter{store: s, f: f, name: name}, nil
}

func (s *FSStore) Read(ctx context.Context, h Handle) ([]byte, error) {
	rc, err := s.Open(ctx, h)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *FSStore) Open(ctx context.Context, h Handle) (io.ReadCloser, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(s.blobPath(h))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", h, common.ErrContentMissing)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *FSStore) Exists(ctx context.Context, h Handle) (bool, error) {
	if err := h.Validate(); err != nil {
		return false, err
	}
	_, err := s.fs.Stat(s.blobPath(h))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *FSStore) Delete(ctx context.Context, h Handle) error {
	if err := h.Validate(); err != nil {
		return err
	}
	err := s.fs.Remove(s.blobPath(h))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

type fsWriter struct {
	store *FSStore
	f     billy.File
	name  string
	done  bool
}

func (w *fsWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, os.ErrClosed
	}
	return w.f.Write(p)
}

func (w *fsWriter) Commit() (Handle, error) {
	if w.done {
		return "", os.ErrClosed
	}
	w.done = true
	tmp := w.f.Name()

	// osfs files are *os.File underneath and can be synced; memfs cannot.
	if syncer, ok := w.f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			w.f.Close()
			w.store.fs.Remove(tmp)
			return "", fmt.Errorf("sync %s: %w", w.name, err)
		}
	}
	if err := w.f.Close(); err != nil {
		w.store.fs.Remove(tmp)
		return "", fmt.Errorf("close %s: %w", w.name, err)
	}

	h := NewHandle()
	dst := w.store.blobPath(h)
	if err := w.store.fs.MkdirAll(path.Dir(dst), 0o755); err != nil {
		w.store.fs.Remove(tmp)
		return "", err
	}
	if err := w.store.fs.Rename(tmp, dst); err != nil {
		w.store.fs.Remove(tmp)
		return "", fmt.Errorf("publish %s: %w", w.name, err)
	}
	log.WithFields(log.Fields{"handle": h, "name": w.name}).Trace("content: committed blob")
	return h, nil
}

func (w *fsWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	tmp := w.f.Name()
	w.f.Close()
	err := w.store.fs.Remove(tmp)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
