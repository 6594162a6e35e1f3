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
	"bytes"
	"context"
	"io"
	"os"
)

// ChunkSize is the chunk size used by DBStore.
const ChunkSize = 16384

// BlobTable is the chunked blob storage a DBStore writes through.
type BlobTable interface {
	WriteBlob(ctx context.Context, handle, name string, chunks [][]byte) error
	ReadBlob(ctx context.Context, handle string) ([][]byte, error)
	HasBlob(ctx context.Context, handle string) (bool, error)
	DeleteBlob(ctx context.Context, handle string) error
}

// DBStore keeps blobs as chunks inside the metadata database. A blob's
// chunks are written in one transaction, so partial bodies never appear.
type DBStore struct {
	table BlobTable
}

var _ Store = (*DBStore)(nil)

// NewDBStore returns a store over table.
func NewDBStore(table BlobTable) *DBStore {
	return &DBStore{table: table}
}

func (s *DBStore) Create(ctx context.Context, name string) (Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &dbWriter{ctx: ctx, store: s, name: name}, nil
}

func (s *DBStore) Read(ctx context.Context, h Handle) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	chunks, err := s.table.ReadBlob(ctx, string(h))
	if err != nil {
		return nil, err
	}
	return bytes.Join(chunks, nil), nil
}

func (s *DBStore) Open(ctx context.Context, h Handle) (io.ReadCloser, error) {
	body, err := s.Read(ctx, h)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (s *DBStore) Exists(ctx context.Context, h Handle) (bool, error) {
	if err := h.Validate(); err != nil {
		return false, err
	}
	return s.table.HasBlob(ctx, string(h))
}

func (s *DBStore) Delete(ctx context.Context, h Handle) error {
	if err := h.Validate(); err != nil {
		return err
	}
	return s.table.DeleteBlob(ctx, string(h))
}

type dbWriter struct {
	ctx    context.Context
	store  *DBStore
	name   string
	chunks [][]byte
	done   bool
}

func (w *dbWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, os.ErrClosed
	}
	n := len(p)
	for len(p) > 0 {
		if len(w.chunks) == 0 || len(w.chunks[len(w.chunks)-1]) == ChunkSize {
			w.chunks = append(w.chunks, make([]byte, 0, ChunkSize))
		}
		last := &w.chunks[len(w.chunks)-1]
		take := min(ChunkSize-len(*last), len(p))
		*last = append(*last, p[:take]...)
		p = p[take:]
	}
	return n, nil
}

func (w *dbWriter) Commit() (Handle, error) {
	if w.done {
		return "", os.ErrClosed
	}
	w.done = true
	h := NewHandle()
	if err := w.store.table.WriteBlob(w.ctx, string(h), w.name, w.chunks); err != nil {
		return "", err
	}
	w.chunks = nil
	return h, nil
}

func (w *dbWriter) Abort() error {
	w.done = true
	w.chunks = nil
	return nil
}
