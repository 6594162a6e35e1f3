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

// Package diagnostics turns raw tool output into diagnostics addressed to
// repository entries.
package diagnostics

import (
	"regexp"
	"strconv"
	"strings"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one message extracted from tool output. EntryID is empty
// when File could not be resolved to an entry.
type Diagnostic struct {
	Severity Severity `json:"severity" yaml:"severity"`
	EntryID  string   `json:"entry_id,omitempty" yaml:"entry_id,omitempty"`
	File     string   `json:"file,omitempty" yaml:"file,omitempty"`
	Line     int      `json:"line,omitempty" yaml:"line,omitempty"`
	Column   int      `json:"column,omitempty" yaml:"column,omitempty"`
	Phase    string   `json:"phase,omitempty" yaml:"phase,omitempty"`
	Message  string   `json:"message" yaml:"message"`

	banner bool
}

// Grammar is a line-oriented parser for one tool family.
type Grammar struct {
	Name string
	// candidate selects the lines that are diagnostics at all.
	candidate *regexp.Regexp
	// patterns are tried in order; the first match wins.
	patterns []pattern
	ignore   []*regexp.Regexp
	banners  []*regexp.Regexp
}

// pattern extracts fields through the named groups file, line, col, sev
// and msg. A fixed severity overrides the sev group.
type pattern struct {
	re       *regexp.Regexp
	severity Severity
}

var (
	warningLike = regexp.MustCompile(`(?i)\b(warn(ing)?s?|deprecated|unused|ignor(ed|ing)|obsolete|implicit(ly)?)\b`)

	makeBanners = []*regexp.Regexp{
		regexp.MustCompile(`^make(\[\d+\])?: \*\*\* .*Error \d+`),
	}
)

func newGrammar(name, candidate string, patterns []pattern, ignore, banners []string) *Grammar {
	g := &Grammar{Name: name, candidate: regexp.MustCompile(candidate), patterns: patterns}
	for _, s := range ignore {
		g.ignore = append(g.ignore, regexp.MustCompile(s))
	}
	g.banners = append(g.banners, makeBanners...)
	for _, s := range banners {
		g.banners = append(g.banners, regexp.MustCompile(s))
	}
	return g
}

func p(re string) pattern {
	return pattern{re: regexp.MustCompile(re)}
}

func pSev(re string, s Severity) pattern {
	return pattern{re: regexp.MustCompile(re), severity: s}
}

// parseLine returns the diagnostic of one line, if any.
func (g *Grammar) parseLine(line string) (Diagnostic, bool) {
	line = strings.TrimRight(line, " \t\r")
	if strings.TrimSpace(line) == "" {
		return Diagnostic{}, false
	}
	for _, re := range g.ignore {
		if re.MatchString(line) {
			return Diagnostic{}, false
		}
	}
	for _, re := range g.banners {
		if re.MatchString(line) {
			return Diagnostic{Severity: SeverityError, Message: strings.TrimSpace(line), banner: true}, true
		}
	}
	if !g.candidate.MatchString(line) {
		return Diagnostic{}, false
	}
	for _, pt := range g.patterns {
		m := pt.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		d := Diagnostic{Severity: pt.severity}
		var sev string
		for i, name := range pt.re.SubexpNames() {
			switch name {
			case "file":
				d.File = m[i]
			case "line":
				d.Line, _ = strconv.Atoi(m[i])
			case "col":
				d.Column, _ = strconv.Atoi(m[i])
			case "sev":
				sev = m[i]
			case "msg":
				d.Message = strings.TrimSpace(m[i])
			}
		}
		if d.Message == "" {
			d.Message = strings.TrimSpace(line)
		}
		if d.Severity == "" {
			d.Severity = severityOf(sev, line)
		}
		return d, true
	}
	return Diagnostic{Severity: classify(line), Message: strings.TrimSpace(line)}, true
}

// severityOf maps a tool's severity word, falling back to the keyword
// heuristic for unknown words.
func severityOf(word, line string) Severity {
	switch strings.ToLower(strings.TrimSpace(word)) {
	case "error", "fatal error", "fatal", "sorry", "internal error":
		return SeverityError
	case "warning":
		return SeverityWarning
	case "note", "info":
		return SeverityInfo
	}
	return classify(line)
}

// classify is the fallback for lines no pattern understood.
func classify(line string) Severity {
	if warningLike.MatchString(line) {
		return SeverityWarning
	}
	return SeverityError
}
