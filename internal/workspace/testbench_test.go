package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtlforge/internal/common"
)

func TestStripComments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"line", "a // b\nc", "a \nc"},
		{"block keeps lines", "a /* b\nc */ d", "a \n  d"},
		{"string with slashes", `$display("//x /*y*/");`, `$display("//x /*y*/");`},
		{"escaped quote", `"a\"//b" // c`, `"a\"//b" `},
		{"unterminated block", "a /* b", "a  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripComments(tt.in))
		})
	}
}

func TestRewriteTestbench(t *testing.T) {
	t.Parallel()
	opts := TestbenchOptions{SimTime: 1000, DumpDepth: 0}

	out, module, err := RewriteTestbench("module tb;\n  // $stop in a comment is fine\n  reg clk;\nendmodule\n", opts)
	require.NoError(t, err)
	assert.Equal(t, "tb", module)
	assert.Contains(t, out, "initial begin\n  $dumpfile(\"tb.vcd\");\n  $dumpvars(0, tb);\n  #1000 $finish;\nend\nendmodule")

	_, _, err = RewriteTestbench("module tb;\ninitial $stop;\nendmodule", opts)
	assert.ErrorIs(t, err, common.ErrForbiddenDirective)

	_, _, err = RewriteTestbench("module a;\nendmodule\nmodule b;\nendmodule", opts)
	assert.ErrorIs(t, err, common.ErrInvalidTestbench)

	_, _, err = RewriteTestbench("wire x;", opts)
	assert.ErrorIs(t, err, common.ErrInvalidTestbench)

	// $stopped is a different identifier
	_, _, err = RewriteTestbench("module tb;\nreg $stopped;\nendmodule", opts)
	assert.NoError(t, err)

	// Keywords inside string literals are text.
	src := "module tb;\ninitial $display(\"$stop \\\" module x endmodule\");\nendmodule\n"
	out, module, err = RewriteTestbench(src, opts)
	require.NoError(t, err)
	assert.Equal(t, "tb", module)
	assert.Contains(t, out, `$display("$stop \" module x endmodule");`)
}

func TestBlankStrings(t *testing.T) {
	t.Parallel()

	in := `a "b\"c" d` + "\n\"e"
	got := blankStrings(in)
	assert.Len(t, got, len(in))
	assert.Equal(t, `a "    " d`+"\n\" ", got)
}

func TestParseIPManifest(t *testing.T) {
	t.Parallel()

	m, err := ParseIPManifest([]byte("repository: r1\nentry: e1\n"))
	require.NoError(t, err)
	assert.Equal(t, "r1", m.Repository)
	assert.Equal(t, "e1", m.Entry)

	_, err = ParseIPManifest([]byte("entry: e1\n"))
	assert.ErrorIs(t, err, common.ErrInvalidIPReference)
	_, err = ParseIPManifest([]byte(":::"))
	assert.ErrorIs(t, err, common.ErrInvalidIPReference)
}
