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

package diagnostics

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

var phaseMarker = regexp.MustCompile(`^@@(BEGIN|END) ([A-Za-z0-9_-]+)@@$`)

// Section is a slice of a multiplexed stream belonging to one phase. Lines
// outside any marker pair have an empty Phase.
type Section struct {
	Phase string
	Lines []string
}

// SplitPhases slices a stream on the @@BEGIN name@@ / @@END name@@ markers
// written by the build templates. An unterminated section runs to the end
// of the stream.
func SplitPhases(stream []byte) []Section {
	var out []Section
	cur := Section{}
	flush := func() {
		if len(cur.Lines) > 0 {
			out = append(out, cur)
		}
	}
	sc := bufio.NewScanner(bytes.NewReader(stream))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if m := phaseMarker.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			if m[1] == "BEGIN" {
				cur = Section{Phase: m[2]}
			} else {
				cur = Section{}
			}
			continue
		}
		cur.Lines = append(cur.Lines, line)
	}
	flush()
	return out
}

// Resolver maps tool file tokens to entries. *workspace.PathMap
// implements it.
type Resolver interface {
	Resolve(path string) (string, bool)
	Relative(path string) string
}

// Mapper parses the output of one job.
type Mapper struct {
	// Default parses lines outside any phase and phases without a grammar.
	Default *Grammar
	Paths   Resolver
}

// Parse extracts the diagnostics of stream. It is deterministic: the same
// input always yields the same list.
func (m *Mapper) Parse(stream []byte) []Diagnostic {
	var out []Diagnostic
	for _, sec := range SplitPhases(stream) {
		g := ForPhase(sec.Phase)
		if g == nil {
			g = m.Default
		}
		if g == nil {
			continue
		}
		for _, line := range sec.Lines {
			d, ok := g.parseLine(line)
			if !ok {
				continue
			}
			d.Phase = sec.Phase
			m.resolve(&d)
			out = append(out, d)
		}
	}
	return elideBanner(out)
}

func (m *Mapper) resolve(d *Diagnostic) {
	if d.File == "" || m.Paths == nil {
		return
	}
	if id, ok := m.Paths.Resolve(d.File); ok {
		d.EntryID = id
	}
	d.File = m.Paths.Relative(d.File)
}

// elideBanner drops a trailing generic failure banner when an earlier
// diagnostic already reports an error. A banner that is the only result
// is kept.
func elideBanner(ds []Diagnostic) []Diagnostic {
	n := len(ds)
	if n < 2 || !ds[n-1].banner {
		return ds
	}
	for _, d := range ds[:n-1] {
		if d.Severity == SeverityError && !d.banner {
			return ds[:n-1]
		}
	}
	return ds
}

// Errors returns the error diagnostics of ds.
func Errors(ds []Diagnostic) []Diagnostic {
	var out []Diagnostic
	for _, d := range ds {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// Counts returns the number of errors and warnings in ds.
func Counts(ds []Diagnostic) (errs, warnings int) {
	for _, d := range ds {
		switch d.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warnings++
		}
	}
	return errs, warnings
}
