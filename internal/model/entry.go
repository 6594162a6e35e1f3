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

// Package model holds the repository data model shared by the metadata
// store, the entry tree and the build pipeline.
package model

import (
	"fmt"
	"time"
)

// Access is the access level of an entry.
type Access string

const (
	AccessNone  Access = "none"
	AccessRead  Access = "read"
	AccessWrite Access = "write"
)

// Valid reports whether a is one of the defined levels.
func (a Access) Valid() bool {
	switch a {
	case AccessNone, AccessRead, AccessWrite:
		return true
	}
	return false
}

// Provenance records who authored an entry.
type Provenance string

const (
	ProvenanceUser      Provenance = "user"
	ProvenanceGenerated Provenance = "generated"
)

// State is the lifecycle state of an entry.
type State string

const (
	StateReady   State = "ready"
	StatePending State = "pending"
	StateFailed  State = "failed"
)

// ParseState validates a state name.
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StateReady, StatePending, StateFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown state %q", s)
}

// Entry is a node in a repository tree.
type Entry struct {
	ID           string
	RepositoryID string
	ParentID     string // empty only for the root
	Title        string
	Handler      Handler
	Access       Access
	Provenance   Provenance
	Anchor       bool
	Included     bool
	State        State
	Ordinal      int64
	Deleted      bool
	DeletedAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsRoot reports whether e is the repository root.
func (e *Entry) IsRoot() bool {
	return e.Handler == HandlerRoot
}

// IsContainer reports whether e holds children.
func (e *Entry) IsContainer() bool {
	return e.Handler.IsContainer()
}

// Protected reports whether e needs an explicit override to be moved,
// renamed or deleted.
func (e *Entry) Protected() bool {
	return e.Anchor || e.Provenance == ProvenanceGenerated
}

// Clone returns a shallow copy.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

// Repository is a named, owned container of one entry tree.
type Repository struct {
	ID         string
	Owner      string
	Name       string
	Private    bool
	Number     int64
	TopModule  string
	TopEntryID string
	RootID     string
	BuildID    string
	SoftwareID string
	HexID      string
	IPCoresID  string
	CreatedAt  time.Time
}

// FileContent links one entry to one blob.
type FileContent struct {
	EntryID   string
	Handle    string
	Size      int64
	SHA256    string
	UpdatedAt time.Time
}

// PendingRelease is a blob waiting for deferred deletion.
type PendingRelease struct {
	Handle        string
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
}
