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

package workspace

import (
	"path/filepath"
	"sort"
	"strings"

	"rtlforge/internal/common"
)

// PathMap maps entry identifiers to workspace-relative slash paths and
// back. Paths are the encoded on-disk form.
type PathMap struct {
	ByID   map[string]string
	ByPath map[string]string
	dir    string
}

// NewPathMap returns an empty map for a workspace rooted at dir.
func NewPathMap(dir string) *PathMap {
	return &PathMap{ByID: make(map[string]string), ByPath: make(map[string]string), dir: dir}
}

// Add records that entry id lives at rel.
func (m *PathMap) Add(id, rel string) {
	rel = common.NormalizePath(rel)
	m.ByID[id] = rel
	m.ByPath[rel] = id
}

// PathOf returns the relative path of an entry.
func (m *PathMap) PathOf(id string) (string, bool) {
	p, ok := m.ByID[id]
	return p, ok
}

// Resolve maps a path as printed by a tool back to an entry id. Absolute
// paths inside the workspace and "./" prefixes are accepted.
func (m *PathMap) Resolve(p string) (string, bool) {
	id, ok := m.ByPath[m.Relative(p)]
	return id, ok
}

// Relative strips the workspace prefix from p and normalizes it.
func (m *PathMap) Relative(p string) string {
	p = strings.TrimSpace(p)
	if m.dir != "" && filepath.IsAbs(p) {
		if rel, err := filepath.Rel(m.dir, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
	}
	return common.NormalizePath(filepath.ToSlash(p))
}

// Paths returns every mapped path in sorted order.
func (m *PathMap) Paths() []string {
	out := make([]string, 0, len(m.ByPath))
	for p := range m.ByPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
