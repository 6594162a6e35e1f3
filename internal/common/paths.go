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

package common

import (
	"net/url"
	"path"
	"strings"
)

// EncodeSegment percent-encodes an entry title so it is always a single
// path segment on disk, whatever characters the title contains.
func EncodeSegment(title string) string {
	s := url.PathEscape(title)
	// PathEscape leaves these alone, but they are meaningful to shells and make.
	r := strings.NewReplacer("$", "%24", "&", "%26", "+", "%2B", ":", "%3A", "=", "%3D", "@", "%40")
	return r.Replace(s)
}

// DecodeSegment reverses EncodeSegment.
func DecodeSegment(segment string) (string, error) {
	return url.PathUnescape(segment)
}

// ValidTitle reports whether title can name an entry.
func ValidTitle(title string) bool {
	switch title {
	case "", ".", "..":
		return false
	}
	return !strings.ContainsRune(title, 0)
}

// NormalizePath cleans a slash path, removing leading/trailing slashes and "./"
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// SplitPath splits a path into its components
func SplitPath(p string) []string {
	p = NormalizePath(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// JoinPath joins path components
func JoinPath(parts ...string) string {
	return NormalizePath(path.Join(parts...))
}

// ParentPath returns the parent directory of a path
func ParentPath(p string) string {
	p = NormalizePath(p)
	if p == "" {
		return ""
	}
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}

// BaseName returns the base name of a path
func BaseName(p string) string {
	p = NormalizePath(p)
	if p == "" {
		return ""
	}
	return path.Base(p)
}
