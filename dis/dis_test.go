package dis

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/emerald-lang/emerald/compiler"
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/op"
	"github.com/emerald-lang/emerald/parser"
	"github.com/emerald-lang/emerald/symbols"
)

func compileFunction(t *testing.T, src, name string, argc int) *symbols.ScriptFunction {
	t.Helper()
	root, err := parser.Parse(context.Background(), src, "test.em")
	require.Nil(t, err)
	unit, err := compiler.Compile(root, compiler.Config{Filename: "test.em", Logger: zerolog.Nop()})
	require.Nil(t, err)
	fn := unit.Lookup(names.MustParsePath(name)).Functions.GetFirstFitting(argc)
	require.NotNil(t, fn)
	return fn.Script
}

func TestFunctionDisassembly(t *testing.T) {
	color.NoColor = true
	fn := compileFunction(t, "function f() { return 1 + 2 * 3; }", "f", 0)
	instructions, err := Disassemble(fn)
	require.Nil(t, err)

	var buf bytes.Buffer
	Print(instructions, &buf)
	expected := strings.TrimSpace(`
+--------+------+------------------+----------+------+
| OFFSET | LINE |      OPCODE      | OPERANDS | INFO |
+--------+------+------------------+----------+------+
|      0 |    1 | LOAD_NUMBER      |      0 0 | 7    |
|      1 |    1 | RETURN           |        0 |      |
|      2 |    1 | RETURN_UNDEFINED |          |      |
+--------+------+------------------+----------+------+
`)
	require.Equal(t, expected+"\n", buf.String())
}

func TestDescribeReferences(t *testing.T) {
	fn := compileFunction(t, `
object P { var x = 0; }
var total = 0;
function g(a) { return a; }
function f(n) {
	var p = new P;
	p.x = 5;
	var s = "s";
	total = g(n);
	while (n > 0) { n--; }
	return p;
}`, "f", 1)
	instructions, err := Disassemble(fn)
	require.Nil(t, err)

	info := map[op.Code]string{}
	offsets := map[int]bool{}
	for _, ins := range instructions {
		if _, ok := info[ins.Code]; !ok {
			info[ins.Code] = ins.Info
		}
		offsets[ins.Offset] = true
	}
	require.Equal(t, "P", info[op.PushObjectDefault])
	require.Equal(t, `"s"`, info[op.LoadString])
	require.Equal(t, ".x", info[op.StoreProperty])
	require.Equal(t, "g/1", info[op.CallFunction])
	require.Equal(t, "total", info[op.StoreSymbol])
	require.True(t, strings.HasPrefix(info[op.Jump], "-> "))

	// Data words are folded into the instruction they belong to.
	for _, ins := range instructions {
		if op.GetInfo(ins.Code).Words == 2 {
			require.False(t, offsets[ins.Offset+1])
		}
	}
}

func TestInvalidCode(t *testing.T) {
	fn := &symbols.ScriptFunction{Name: "broken", Code: []op.Instruction{op.New(op.Code(200), 0, 0, 0)}}
	_, err := Disassemble(fn)
	require.EqualError(t, err, "broken: invalid opcode 200 at offset 0")

	fn.Code = []op.Instruction{op.New(op.CallFunction, 0, 0, 0)}
	_, err = Disassemble(fn)
	require.EqualError(t, err, "broken: truncated instruction at offset 0")
}
