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

package model

import (
	"fmt"
	"path"
	"strings"
)

// Handler is the type tag of an entry. The set is closed: adding a handler
// means extending every switch in this file.
type Handler int

const (
	HandlerUnknown Handler = iota
	HandlerRoot
	HandlerFolder
	HandlerText
	HandlerVerilog
	HandlerTestbench
	HandlerNetlist
	HandlerIPRef
	HandlerFSM
	HandlerSOC
	HandlerSYS
	HandlerCSource
	HandlerHeader
	HandlerLinker
	HandlerStartup
	HandlerPCF
	HandlerDCF
	HandlerSynthReport
	HandlerTimingReport
	HandlerVCD
	HandlerObject
	HandlerHex
	HandlerBinary

	handlerCount
)

// AllHandlers returns every handler in declaration order.
func AllHandlers() []Handler {
	hs := make([]Handler, 0, handlerCount)
	for h := HandlerUnknown; h < handlerCount; h++ {
		hs = append(hs, h)
	}
	return hs
}

// String returns the stable name stored in the database.
func (h Handler) String() string {
	switch h {
	case HandlerUnknown:
		return "unknown"
	case HandlerRoot:
		return "root"
	case HandlerFolder:
		return "folder"
	case HandlerText:
		return "text"
	case HandlerVerilog:
		return "verilog"
	case HandlerTestbench:
		return "testbench"
	case HandlerNetlist:
		return "netlist"
	case HandlerIPRef:
		return "ipref"
	case HandlerFSM:
		return "fsm"
	case HandlerSOC:
		return "soc"
	case HandlerSYS:
		return "sys"
	case HandlerCSource:
		return "csrc"
	case HandlerHeader:
		return "hsrc"
	case HandlerLinker:
		return "linker"
	case HandlerStartup:
		return "startup"
	case HandlerPCF:
		return "pcf"
	case HandlerDCF:
		return "dcf"
	case HandlerSynthReport:
		return "synthreport"
	case HandlerTimingReport:
		return "stareport"
	case HandlerVCD:
		return "vcd"
	case HandlerObject:
		return "object"
	case HandlerHex:
		return "hex"
	case HandlerBinary:
		return "binary"
	}
	return fmt.Sprintf("handler(%d)", int(h))
}

// ParseHandler is the inverse of String.
func ParseHandler(s string) (Handler, error) {
	for _, h := range AllHandlers() {
		if h.String() == s {
			return h, nil
		}
	}
	return HandlerUnknown, fmt.Errorf("unknown handler %q", s)
}

// IsContainer reports whether entries of this handler hold children instead of content.
func (h Handler) IsContainer() bool {
	switch h {
	case HandlerRoot, HandlerFolder:
		return true
	case HandlerUnknown, HandlerText, HandlerVerilog, HandlerTestbench, HandlerNetlist,
		HandlerIPRef, HandlerFSM, HandlerSOC, HandlerSYS, HandlerCSource, HandlerHeader,
		HandlerLinker, HandlerStartup, HandlerPCF, HandlerDCF, HandlerSynthReport,
		HandlerTimingReport, HandlerVCD, HandlerObject, HandlerHex, HandlerBinary:
		return false
	}
	panic(fmt.Sprintf("unhandled handler %d", int(h)))
}

// UserCreatable reports whether a user may create this handler directly.
// Build outputs only come from jobs.
func (h Handler) UserCreatable() bool {
	switch h {
	case HandlerFolder, HandlerText, HandlerVerilog, HandlerTestbench, HandlerNetlist,
		HandlerIPRef, HandlerFSM, HandlerSOC, HandlerSYS, HandlerCSource, HandlerHeader,
		HandlerLinker, HandlerStartup, HandlerPCF, HandlerDCF, HandlerUnknown:
		return true
	case HandlerRoot, HandlerSynthReport, HandlerTimingReport, HandlerVCD, HandlerObject,
		HandlerHex, HandlerBinary:
		return false
	}
	panic(fmt.Sprintf("unhandled handler %d", int(h)))
}

// IsText reports whether the content is human-editable source text.
func (h Handler) IsText() bool {
	switch h {
	case HandlerText, HandlerVerilog, HandlerTestbench, HandlerNetlist, HandlerIPRef,
		HandlerFSM, HandlerSOC, HandlerSYS, HandlerCSource, HandlerHeader, HandlerLinker,
		HandlerStartup, HandlerPCF, HandlerDCF, HandlerSynthReport, HandlerTimingReport,
		HandlerHex:
		return true
	case HandlerUnknown, HandlerRoot, HandlerFolder, HandlerVCD, HandlerObject, HandlerBinary:
		return false
	}
	panic(fmt.Sprintf("unhandled handler %d", int(h)))
}

// Extension is the default file extension used when a title has none.
func (h Handler) Extension() string {
	switch h {
	case HandlerVerilog, HandlerTestbench, HandlerNetlist:
		return ".v"
	case HandlerIPRef:
		return ".ip"
	case HandlerFSM:
		return ".fsm"
	case HandlerSOC:
		return ".soc"
	case HandlerSYS:
		return ".sys"
	case HandlerCSource:
		return ".c"
	case HandlerHeader:
		return ".h"
	case HandlerLinker:
		return ".ld"
	case HandlerStartup:
		return ".S"
	case HandlerPCF:
		return ".pcf"
	case HandlerDCF:
		return ".dcf"
	case HandlerSynthReport, HandlerTimingReport:
		return ".rpt"
	case HandlerVCD:
		return ".vcd"
	case HandlerObject:
		return ".o"
	case HandlerHex:
		return ".hex"
	case HandlerBinary:
		return ".bin"
	case HandlerText:
		return ".txt"
	case HandlerUnknown, HandlerRoot, HandlerFolder:
		return ""
	}
	panic(fmt.Sprintf("unhandled handler %d", int(h)))
}

// HandlerForTitle infers a handler from a file title. Testbenches are
// recognised by the conventional _tb suffix.
func HandlerForTitle(title string) Handler {
	ext := path.Ext(title)
	base := strings.TrimSuffix(title, ext)
	switch strings.ToLower(ext) {
	case ".v", ".sv":
		if strings.HasSuffix(base, "_tb") || strings.HasPrefix(base, "tb_") {
			return HandlerTestbench
		}
		return HandlerVerilog
	case ".ip":
		return HandlerIPRef
	case ".fsm":
		return HandlerFSM
	case ".soc":
		return HandlerSOC
	case ".sys":
		return HandlerSYS
	case ".c":
		return HandlerCSource
	case ".h":
		return HandlerHeader
	case ".ld", ".lds":
		return HandlerLinker
	case ".s":
		return HandlerStartup
	case ".pcf":
		return HandlerPCF
	case ".dcf":
		return HandlerDCF
	case ".vcd":
		return HandlerVCD
	case ".o":
		return HandlerObject
	case ".hex":
		return HandlerHex
	case ".bin":
		return HandlerBinary
	case ".txt", ".md":
		return HandlerText
	}
	return HandlerUnknown
}
