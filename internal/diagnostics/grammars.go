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

// file tokens: no whitespace or colon
const fileTok = `(?P<file>[^\s:][^\s:]*)`

// GCC covers the cross compiler, the assembler and the linker.
var GCC = newGrammar("gcc",
	`(?i)(error|warning|note|undefined reference|multiple definition|cannot find|:\d+:)|^\S*(gcc|cc1|as|ld|objcopy): `,
	[]pattern{
		p(`^` + fileTok + `:(?P<line>\d+):(?P<col>\d+): (?P<sev>fatal error|error|warning|note): (?P<msg>.*)$`),
		p(`^` + fileTok + `:(?P<line>\d+): (?i:(?P<sev>fatal error|error|warning|note)): (?P<msg>.*)$`),
		pSev(`^` + fileTok + `:\(.*\): (?P<msg>(undefined reference|multiple definition) .*)$`, SeverityError),
		pSev(`^` + fileTok + `:(?P<line>\d+): (?P<msg>(undefined reference|multiple definition) .*)$`, SeverityError),
		p(`^\S*ld(\.bfd)?: ((?P<sev>error|warning): )?(?P<msg>.*)$`),
		p(`^\S*(gcc|cc1|as|objcopy): ((?P<sev>fatal error|error|warning): )?(?P<msg>.*)$`),
	},
	[]string{
		`: In function `,
		`: in function [` + "`" + `']`,
		`: In file included from `,
		`^In file included from `,
		`^\s+from \S+:\d+`,
		`: Assembler messages:$`,
		`^\s*\d* \|`,
		`^\s+\^`,
		`^compilation terminated\.$`,
	},
	[]string{
		`^collect2: error: ld returned \d+ exit status$`,
	},
)

// Yosys covers logic synthesis; nextpnr and icepack share its conventions.
var Yosys = newGrammar("yosys",
	`(?i)^(\S+:\d+: )?(error|warning)\b`,
	[]pattern{
		p(`^` + fileTok + `:(?P<line>\d+): (?P<sev>ERROR|Warning|WARNING): (?P<msg>.*)$`),
		p(`^(?P<sev>ERROR|Warning|WARNING): (?P<msg>.*?` + fileTok + `:(?P<line>\d+)(\.(?P<col>\d+)(-\d+\.\d+)?)?\b.*)$`),
		p(`^(?P<sev>ERROR|Warning|WARNING): (?P<msg>.*)$`),
	},
	[]string{
		`^Warning: Replacing memory `,
		`^Info: `,
	},
	[]string{
		`^ERROR: Exiting due to errors\.?$`,
		`^ERROR: Loading design failed\.?$`,
	},
)

// Icarus covers the iverilog elaborator.
var Icarus = newGrammar("icarus",
	`^\S+:\d+:|(?i)\b(error|warning|sorry)\b`,
	[]pattern{
		p(`^` + fileTok + `:(?P<line>\d+): (?P<sev>error|warning|sorry): (?P<msg>.*)$`),
		pSev(`^` + fileTok + `:(?P<line>\d+):\s+: (?P<msg>.*)$`, SeverityInfo),
		pSev(`^` + fileTok + `:(?P<line>\d+): (?P<msg>syntax error)$`, SeverityError),
		p(`^` + fileTok + `:(?P<line>\d+): (?P<msg>.*)$`),
	},
	[]string{
		`^\s*$`,
	},
	[]string{
		`^\d+ error\(s\) during elaboration\.$`,
		`^Elaboration failed$`,
		`^I give up\.$`,
	},
)

// VVP covers the simulation runtime.
var VVP = newGrammar("vvp",
	`(?i)^(error|warning|fatal|info)\b|^\S+:\d+: \$(finish|stop)`,
	[]pattern{
		p(`^(?P<sev>ERROR|WARNING|FATAL|INFO): ` + fileTok + `:(?P<line>\d+): ?(?P<msg>.*)$`),
		pSev(`^` + fileTok + `:(?P<line>\d+): (?P<msg>\$finish called .*)$`, SeverityInfo),
		p(`^(?P<sev>ERROR|WARNING|FATAL|INFO): (?P<msg>.*)$`),
	},
	[]string{
		`^VCD info: `,
		`^\s+Time: \d+`,
	},
	nil,
)

// Verilator covers lint and validation.
var Verilator = newGrammar("verilator",
	`^%(Error|Warning)`,
	[]pattern{
		p(`^%(?P<sev>Error|Warning)(-[A-Z0-9_]+)?: ` + fileTok + `:(?P<line>\d+):((?P<col>\d+):)? (?P<msg>.*)$`),
		p(`^%(?P<sev>Error|Warning)(-[A-Z0-9_]+)?: (?P<msg>.*)$`),
	},
	[]string{
		`^\s+: \.\.\. `,
		`^\s*\d* \|`,
		`^\s+\^`,
		`^%Warning-[A-Z0-9_]+: \.\.\. Use "/\* verilator lint_off`,
	},
	[]string{
		`^%Error: Exiting due to \d+ (error|warning)\(s\)$`,
	},
)

var phaseGrammars = map[string]*Grammar{
	"lint":      Verilator,
	"synth":     Yosys,
	"pnr":       Yosys,
	"pack":      Yosys,
	"elaborate": Icarus,
	"simulate":  VVP,
	"compile":   GCC,
	"objcopy":   GCC,
}

// ForPhase returns the grammar of a template phase, or nil.
func ForPhase(phase string) *Grammar {
	return phaseGrammars[phase]
}
