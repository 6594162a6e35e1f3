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
	"context"
	"errors"
)

// Tree shape errors
var (
	ErrNotFound        = errors.New("not found")
	ErrParentNotFound  = errors.New("parent not found")
	ErrNotAFolder      = errors.New("not a folder")
	ErrNameConflict    = errors.New("name conflict")
	ErrSingleRoot      = errors.New("repository already has a root")
	ErrNameCollision   = errors.New("selected entries share a title")
	ErrNestedSelection = errors.New("selection contains an entry and its ancestor")
	ErrInvalidTitle    = errors.New("invalid title")
	ErrNotEmpty        = errors.New("folder not empty")
	ErrCycle           = errors.New("cannot move a folder into its own subtree")
	ErrContentRequired = errors.New("entry requires content")
	ErrFolderContent   = errors.New("folders cannot carry content")
	ErrRepoExists      = errors.New("repository already exists")
)

// Permission errors
var (
	ErrReadOnly      = errors.New("parent folder is read-only")
	ErrNoAccess      = errors.New("entry is not readable")
	ErrProtected     = errors.New("entry is protected")
	ErrRootImmutable = errors.New("root entry cannot be changed")
)

// Content errors
var (
	ErrContentMissing = errors.New("content missing")
	ErrInvalidHandle  = errors.New("invalid content handle")
)

// Materialization errors
var (
	ErrIPDepthExceeded    = errors.New("ip reference depth exceeded")
	ErrInvalidIPReference = errors.New("invalid ip reference")
	ErrForbiddenDirective = errors.New("forbidden directive in testbench")
	ErrInvalidTestbench   = errors.New("invalid testbench")
	ErrWorkspace          = errors.New("workspace failure")
)

// Toolchain errors
var (
	ErrTimeout      = errors.New("tool timed out")
	ErrToolFailed   = errors.New("tool reported failure")
	ErrToolNotFound = errors.New("tool executable not found")
)

// Kind groups errors by how callers should react to them.
type Kind int

const (
	// KindUnknown is any error not produced by this module
	KindUnknown Kind = iota
	// KindStructural is a tree invariant violation, never retried
	KindStructural
	// KindPermission is an access-level violation, never retried
	KindPermission
	// KindMissing is a reference to something that does not exist
	KindMissing
	// KindResource is a local workspace or storage failure
	KindResource
	// KindTool is a tool-reported failure, returned as structured output
	KindTool
	// KindTimeout is a forced termination after the wall-clock limit
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindStructural:
		return "structural"
	case KindPermission:
		return "permission"
	case KindMissing:
		return "missing"
	case KindResource:
		return "resource"
	case KindTool:
		return "tool"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindTimeout, []error{ErrTimeout, context.DeadlineExceeded}},
	{KindTool, []error{ErrToolFailed, ErrToolNotFound}},
	{KindPermission, []error{ErrReadOnly, ErrNoAccess, ErrProtected, ErrRootImmutable}},
	{KindMissing, []error{ErrNotFound, ErrParentNotFound, ErrContentMissing, ErrInvalidHandle}},
	{KindResource, []error{ErrWorkspace}},
	{KindStructural, []error{
		ErrNotAFolder, ErrNameConflict, ErrSingleRoot, ErrNameCollision, ErrNestedSelection,
		ErrInvalidTitle, ErrNotEmpty, ErrCycle, ErrContentRequired, ErrFolderContent, ErrRepoExists,
		ErrIPDepthExceeded, ErrInvalidIPReference, ErrForbiddenDirective, ErrInvalidTestbench,
	}},
}

// KindOf classifies err. Wrapped errors are unwrapped with errors.Is.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindUnknown
}

// Retryable reports whether offering a retry makes sense. Only timeouts qualify.
func Retryable(err error) bool {
	return KindOf(err) == KindTimeout
}
