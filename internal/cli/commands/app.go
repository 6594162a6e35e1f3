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

package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"rtlforge/internal/config"
	"rtlforge/internal/content"
	"rtlforge/internal/model"
	"rtlforge/internal/reclaim"
	"rtlforge/internal/storage"
	"rtlforge/internal/tree"
)

// app holds the services one command invocation works with.
type app struct {
	store    *storage.Store
	blobs    content.Store
	tree     *tree.Tree
	releaser *reclaim.Releaser
}

func openApp() (*app, error) {
	if err := os.MkdirAll(settings.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.Open(settings.MetaPath(), settings.BusyTimeout)
	if err != nil {
		return nil, err
	}
	blobs, err := openContent(settings, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	a := &app{
		store:    store,
		blobs:    blobs,
		tree:     tree.New(store, blobs),
		releaser: reclaim.NewReleaser(store, blobs, settings.Reclaim),
	}
	return a, nil
}

func openContent(s *config.Settings, store *storage.Store) (content.Store, error) {
	switch s.Content.Backend {
	case "db":
		return content.NewDBStore(store), nil
	case "fs":
		return content.OpenFSStore(s.Content.Path)
	}
	return nil, fmt.Errorf("unknown content backend %q", s.Content.Backend)
}

// close releases content superseded during this invocation before the
// database is closed. Leftovers stay queued for the next run.
func (a *app) close(ctx context.Context) {
	if n, err := a.releaser.Drain(ctx); err != nil {
		log.Warnf("release queue: %v", err)
	} else if n > 0 {
		log.Debugf("released %d blobs", n)
	}
	if err := a.store.Close(); err != nil {
		log.Warnf("failed to close metadata store: %v", err)
	}
}

func splitRef(ref string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(ref, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("repository %q: want owner/name", ref)
	}
	return owner, name, nil
}

// repository resolves an owner/name reference.
func (a *app) repository(ctx context.Context, ref string) (*model.Repository, error) {
	owner, name, err := splitRef(ref)
	if err != nil {
		return nil, err
	}
	return a.store.FindRepository(ctx, owner, name)
}

// entry resolves a slash path inside a repository. The empty path is the root.
func (a *app) entry(ctx context.Context, repo *model.Repository, p string) (*model.Entry, error) {
	return a.tree.Lookup(ctx, repo.ID, p)
}
