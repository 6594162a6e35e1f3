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
	"fmt"
	"regexp"
	"strings"

	"rtlforge/internal/common"
)

var (
	stopDirective = regexp.MustCompile(`\$stop\b`)
	moduleDecl    = regexp.MustCompile(`\bmodule\s+([A-Za-z_][A-Za-z0-9_$]*)`)
	endModule     = regexp.MustCompile(`\bendmodule\b`)
)

// StripComments removes // and /* */ comments from Verilog source. String
// literals are copied through untouched. Newlines inside block comments are
// kept so line numbers do not shift.
func StripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString {
			b.WriteByte(c)
			switch c {
			case '\\':
				if i+1 < len(src) {
					i++
					b.WriteByte(src[i])
				}
			case '"', '\n':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			i += 2
			for i < len(src) && !(src[i] == '*' && i+1 < len(src) && src[i+1] == '/') {
				if src[i] == '\n' {
					b.WriteByte('\n')
				}
				i++
			}
			i++ // skip the closing '/'
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// blankStrings replaces the contents of string literals with spaces,
// keeping every offset and newline, so keyword matches never land inside
// a literal.
func blankStrings(code string) string {
	b := []byte(code)
	inString := false
	for i := 0; i < len(b); i++ {
		c := b[i]
		if !inString {
			inString = c == '"'
			continue
		}
		switch c {
		case '\\':
			b[i] = ' '
			if i+1 < len(b) && b[i+1] != '\n' {
				i++
				b[i] = ' '
			}
		case '"', '\n':
			inString = false
		default:
			b[i] = ' '
		}
	}
	return string(b)
}

// TestbenchOptions parameterize the injected simulation harness.
type TestbenchOptions struct {
	SimTime   int64
	DumpDepth int
	// DumpDir is the workspace-relative directory the VCD is written to.
	DumpDir string
}

// RewriteTestbench strips comments, rejects $stop and injects a bounded
// run with a VCD dump before the single endmodule. It returns the rewritten
// source and the testbench module name.
func RewriteTestbench(src string, opts TestbenchOptions) (string, string, error) {
	code := StripComments(src)
	bare := blankStrings(code)
	if loc := stopDirective.FindStringIndex(bare); loc != nil {
		line := strings.Count(code[:loc[0]], "\n") + 1
		return "", "", fmt.Errorf("$stop at line %d: %w", line, common.ErrForbiddenDirective)
	}

	decls := moduleDecl.FindAllStringSubmatch(bare, -1)
	ends := endModule.FindAllStringIndex(bare, -1)
	if len(decls) != 1 || len(ends) != 1 {
		return "", "", fmt.Errorf("found %d module and %d endmodule keywords, want one each: %w",
			len(decls), len(ends), common.ErrInvalidTestbench)
	}
	module := decls[0][1]

	vcd := module + ".vcd"
	if opts.DumpDir != "" {
		vcd = opts.DumpDir + "/" + vcd
	}
	var inject strings.Builder
	fmt.Fprintf(&inject, "initial begin\n")
	fmt.Fprintf(&inject, "  $dumpfile(%q);\n", vcd)
	fmt.Fprintf(&inject, "  $dumpvars(%d, %s);\n", opts.DumpDepth, module)
	fmt.Fprintf(&inject, "  #%d $finish;\n", opts.SimTime)
	fmt.Fprintf(&inject, "end\n")

	at := ends[0][0]
	return code[:at] + inject.String() + code[at:], module, nil
}
