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

package tree

import (
	"context"
	"fmt"

	"rtlforge/internal/common"
	"rtlforge/internal/model"
)

// entryFinder is satisfied by both Metadata and model.MetaTx.
type entryFinder interface {
	FindEntries(ctx context.Context, q model.EntryQuery) ([]*model.Entry, error)
}

// Arena holds every live entry of one repository, loaded in a single query,
// with a parent to children index. Walks never go back to the store.
type Arena struct {
	Entries  map[string]*model.Entry
	Children map[string][]string // ordered by ordinal
	RootID   string
}

// LoadArena loads the live entries of a repository.
func LoadArena(ctx context.Context, r entryFinder, repositoryID string) (*Arena, error) {
	entries, err := r.FindEntries(ctx, model.EntryQuery{RepositoryID: repositoryID})
	if err != nil {
		return nil, err
	}
	return NewArena(entries), nil
}

// NewArena indexes entries. The input order of siblings is kept, so
// callers should pass entries sorted by ordinal.
func NewArena(entries []*model.Entry) *Arena {
	a := &Arena{
		Entries:  make(map[string]*model.Entry, len(entries)),
		Children: make(map[string][]string),
	}
	for _, e := range entries {
		a.Entries[e.ID] = e
		if e.ParentID == "" {
			a.RootID = e.ID
			continue
		}
		a.Children[e.ParentID] = append(a.Children[e.ParentID], e.ID)
	}
	return a
}

// Get returns an entry or nil.
func (a *Arena) Get(id string) *model.Entry {
	return a.Entries[id]
}

// PreOrder returns id and its descendants, parents before children.
func (a *Arena) PreOrder(id string) []string {
	var out []string
	var walk func(string)
	walk = func(n string) {
		out = append(out, n)
		for _, c := range a.Children[n] {
			walk(c)
		}
	}
	if _, ok := a.Entries[id]; ok {
		walk(id)
	}
	return out
}

// PostOrder returns id and its descendants, children before parents.
func (a *Arena) PostOrder(id string) []string {
	var out []string
	var walk func(string)
	walk = func(n string) {
		for _, c := range a.Children[n] {
			walk(c)
		}
		out = append(out, n)
	}
	if _, ok := a.Entries[id]; ok {
		walk(id)
	}
	return out
}

// IsAncestor reports whether anc is a strict ancestor of id.
func (a *Arena) IsAncestor(anc, id string) bool {
	e := a.Entries[id]
	for depth := 0; e != nil && depth <= len(a.Entries); depth++ {
		if e.ParentID == anc {
			return true
		}
		e = a.Entries[e.ParentID]
	}
	return false
}

// Ancestors returns the chain from the root down to id's parent.
func (a *Arena) Ancestors(id string) []*model.Entry {
	var chain []*model.Entry
	e := a.Entries[id]
	for depth := 0; e != nil && e.ParentID != "" && depth <= len(a.Entries); depth++ {
		p := a.Entries[e.ParentID]
		if p == nil {
			break
		}
		chain = append(chain, p)
		e = p
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Path returns the decoded slash path of id relative to the root.
func (a *Arena) Path(id string) string {
	e := a.Entries[id]
	if e == nil || e.ParentID == "" {
		return ""
	}
	parts := make([]string, 0, 8)
	for _, anc := range a.Ancestors(id) {
		if anc.ParentID != "" {
			parts = append(parts, anc.Title)
		}
	}
	parts = append(parts, e.Title)
	return common.JoinPath(parts...)
}

// Child returns the live child of parent titled title, or nil.
func (a *Arena) Child(parent, title string) *model.Entry {
	for _, c := range a.Children[parent] {
		if e := a.Entries[c]; e.Title == title {
			return e
		}
	}
	return nil
}

// Sub returns an arena restricted to id and its descendants.
func (a *Arena) Sub(id string) (*Arena, error) {
	if _, ok := a.Entries[id]; !ok {
		return nil, fmt.Errorf("entry %s: %w", id, common.ErrNotFound)
	}
	ids := a.PreOrder(id)
	entries := make([]*model.Entry, 0, len(ids))
	for _, n := range ids {
		entries = append(entries, a.Entries[n])
	}
	sub := &Arena{
		Entries:  make(map[string]*model.Entry, len(entries)),
		Children: make(map[string][]string),
		RootID:   id,
	}
	for _, e := range entries {
		sub.Entries[e.ID] = e
		if e.ID != id {
			sub.Children[e.ParentID] = append(sub.Children[e.ParentID], e.ID)
		}
	}
	return sub, nil
}
