package diagnostics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtlforge/internal/workspace"
)

func newPaths() *workspace.PathMap {
	m := workspace.NewPathMap("/tmp/rtlforge-synthesis-1")
	m.Add("e-top", "rtl/top.v")
	m.Add("e-tb", "top_tb.v")
	m.Add("e-main", "software/main.c")
	m.Add("e-crt0", "software/crt0.S")
	return m
}

func stream(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func TestSplitPhases(t *testing.T) {
	t.Parallel()

	secs := SplitPhases(stream(
		"preamble",
		"@@BEGIN lint@@",
		"%Warning-UNUSED: rtl/top.v:3:8: Signal is not used: 'x'",
		"@@END lint@@",
		"@@BEGIN synth@@",
		"ERROR: syntax error",
	))
	require.Len(t, secs, 3)
	assert.Equal(t, "", secs[0].Phase)
	assert.Equal(t, []string{"preamble"}, secs[0].Lines)
	assert.Equal(t, "lint", secs[1].Phase)
	assert.Equal(t, "synth", secs[2].Phase, "unterminated section runs to the end")
	assert.Equal(t, []string{"ERROR: syntax error"}, secs[2].Lines)
}

func TestGCC(t *testing.T) {
	t.Parallel()
	m := &Mapper{Default: GCC, Paths: newPaths()}

	ds := m.Parse(stream(
		"@@BEGIN compile@@",
		"software/main.c: In function 'main':",
		"software/main.c:4:12: error: expected ';' before 'return'",
		"    4 |   int x = 1",
		"      |            ^",
		"software/main.c:2:5: warning: unused variable 'y' [-Wunused-variable]",
		"software/crt0.S: Assembler messages:",
		"software/crt0.S:3: Error: unrecognized opcode `jx main'",
		"/usr/lib/gcc/riscv64-unknown-elf/13/ld: main.o: in function `main':",
		"main.c:(.text+0x10): undefined reference to `uart_init'",
		"riscv64-unknown-elf-ld: cannot find -lfoo",
		"collect2: error: ld returned 1 exit status",
		"@@END compile@@",
		"make: *** [Makefile:14: firmware] Error 1",
	))

	require.Len(t, ds, 6, "%+v", ds)
	assert.Equal(t, Diagnostic{Severity: SeverityError, EntryID: "e-main", File: "software/main.c", Line: 4, Column: 12, Phase: "compile", Message: "expected ';' before 'return'"}, ds[0])
	assert.Equal(t, SeverityWarning, ds[1].Severity)
	assert.Equal(t, 2, ds[1].Line)
	assert.Equal(t, "e-crt0", ds[2].EntryID)
	assert.Equal(t, SeverityError, ds[2].Severity)
	assert.Equal(t, 3, ds[2].Line)

	// main.c is not a workspace path: kept, but unlinked.
	assert.Equal(t, "main.c", ds[3].File)
	assert.Empty(t, ds[3].EntryID)
	assert.Contains(t, ds[3].Message, "undefined reference to `uart_init'")

	assert.Equal(t, "cannot find -lfoo", ds[4].Message)
	assert.Equal(t, "collect2: error: ld returned 1 exit status", ds[5].Message)
}

func TestYosys(t *testing.T) {
	t.Parallel()
	m := &Mapper{Default: Yosys, Paths: newPaths()}

	ds := m.Parse(stream(
		"@@BEGIN synth@@",
		"Warning: Identifier `\\clk_div' is implicitly declared at rtl/top.v:12.",
		"rtl/top.v:20: ERROR: syntax error, unexpected TOK_ENDMODULE",
		"@@END synth@@",
	))
	require.Len(t, ds, 2)
	assert.Equal(t, SeverityWarning, ds[0].Severity)
	assert.Equal(t, "e-top", ds[0].EntryID)
	assert.Equal(t, 12, ds[0].Line)
	assert.Equal(t, Diagnostic{Severity: SeverityError, EntryID: "e-top", File: "rtl/top.v", Line: 20, Phase: "synth", Message: "syntax error, unexpected TOK_ENDMODULE"}, ds[1])
}

func TestYosysAbsolutePath(t *testing.T) {
	t.Parallel()
	m := &Mapper{Default: Yosys, Paths: newPaths()}

	ds := m.Parse(stream("ERROR: Parser error in line /tmp/rtlforge-synthesis-1/rtl/top.v:7: syntax error"))
	require.Len(t, ds, 1)
	assert.Equal(t, "e-top", ds[0].EntryID)
	assert.Equal(t, "rtl/top.v", ds[0].File)
	assert.Equal(t, 7, ds[0].Line)
}

func TestIcarusAndVVP(t *testing.T) {
	t.Parallel()
	m := &Mapper{Default: Icarus, Paths: newPaths()}

	ds := m.Parse(stream(
		"@@BEGIN elaborate@@",
		"rtl/top.v:9: error: Unknown module type: uart",
		"rtl/top.v:5:      : It was declared here as a net.",
		"top_tb.v:14: warning: Port 3 (rst) of top expects 1 bits, got 2.",
		"rtl/top.v:30: syntax error",
		"rtl/top.v:31: port led is unused",
		"2 error(s) during elaboration.",
		"@@END elaborate@@",
		"@@BEGIN simulate@@",
		"VCD info: dumpfile out/top_tb.vcd opened for output.",
		"ERROR: top_tb.v:22: $readmemh: Unable to open firmware.hex for reading.",
		"top_tb.v:40: $finish called at 1000 (1s)",
		"@@END simulate@@",
	))
	require.Len(t, ds, 8, "%+v", ds)
	assert.Equal(t, SeverityError, ds[0].Severity)
	assert.Equal(t, "Unknown module type: uart", ds[0].Message)
	assert.Equal(t, SeverityInfo, ds[1].Severity)
	assert.Equal(t, SeverityWarning, ds[2].Severity)
	assert.Equal(t, "e-tb", ds[2].EntryID)
	assert.Equal(t, SeverityError, ds[3].Severity)
	assert.Equal(t, "syntax error", ds[3].Message)
	assert.Equal(t, SeverityWarning, ds[4].Severity, "keyword fallback")
	assert.Equal(t, "2 error(s) during elaboration.", ds[5].Message, "banner is not last")

	assert.Equal(t, "simulate", ds[6].Phase)
	assert.Equal(t, SeverityError, ds[6].Severity)
	assert.Equal(t, 22, ds[6].Line)
	assert.Equal(t, SeverityInfo, ds[7].Severity)
}

func TestVerilator(t *testing.T) {
	t.Parallel()
	m := &Mapper{Default: Verilator, Paths: newPaths()}

	ds := m.Parse(stream(
		"@@BEGIN lint@@",
		"%Warning-UNUSED: rtl/top.v:3:8: Signal is not used: 'dbg'",
		"                 : ... note: In instance 'top'",
		"    3 |   wire dbg;",
		"      |        ^~~",
		"%Warning-UNUSED: ... Use \"/* verilator lint_off UNUSED */\" and lint_on around source to disable this message.",
		"%Error: rtl/lib.v:10:1: Cannot find file containing module: 'fifo'",
		"%Error: Exiting due to 1 error(s)",
		"@@END lint@@",
	))
	require.Len(t, ds, 2, "%+v", ds)
	assert.Equal(t, Diagnostic{Severity: SeverityWarning, EntryID: "e-top", File: "rtl/top.v", Line: 3, Column: 8, Phase: "lint", Message: "Signal is not used: 'dbg'"}, ds[0])
	assert.Equal(t, SeverityError, ds[1].Severity)
	assert.Equal(t, "rtl/lib.v", ds[1].File)
	assert.Empty(t, ds[1].EntryID)
}

func TestBannerElision(t *testing.T) {
	t.Parallel()
	m := &Mapper{Default: Yosys}
	banner := "make: *** [Makefile:9: synth] Error 1"

	ds := m.Parse(stream("ERROR: Module `\\fifo' is not part of the design.", banner))
	require.Len(t, ds, 1)
	assert.NotEqual(t, banner, ds[0].Message)

	ds = m.Parse(stream(banner))
	require.Len(t, ds, 1, "a lone banner is never dropped")
	assert.Equal(t, banner, ds[0].Message)
	assert.Equal(t, SeverityError, ds[0].Severity)

	ds = m.Parse(stream("Warning: wire x is used but has no driver.", banner))
	require.Len(t, ds, 2, "kept when no earlier error")

	ds = m.Parse(stream("ERROR: Exiting due to errors.", banner))
	require.Len(t, ds, 2, "an earlier banner does not count as a specific error")
}

func TestParseIsDeterministic(t *testing.T) {
	t.Parallel()
	m := &Mapper{Default: GCC, Paths: newPaths()}
	in := stream(
		"@@BEGIN lint@@",
		"%Error: rtl/top.v:1:1: x",
		"@@END lint@@",
		"@@BEGIN compile@@",
		"software/main.c:1:1: error: y",
		"@@END compile@@",
	)
	first := m.Parse(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Parse(in))
	}
	errs, warns := Counts(first)
	assert.Equal(t, 2, errs)
	assert.Zero(t, warns)
	assert.Len(t, Errors(first), 2)
}
