package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emerald-lang/emerald/ast"
	"github.com/emerald-lang/emerald/errz"
	"github.com/emerald-lang/emerald/token"
)

func parse(t *testing.T, src string) *ast.Node {
	t.Helper()
	root, err := Parse(context.Background(), src, "test.em")
	require.Nil(t, err)
	require.Equal(t, ast.Unit, root.Type)
	return root
}

func parseRaw(t *testing.T, src string) *ast.Node {
	t.Helper()
	table, err := DefaultTable()
	require.Nil(t, err)
	root, err := New(table, WithOptimize(false)).Parse(context.Background(), src, "test.em")
	require.Nil(t, err)
	return root
}

// sexpr renders a compact form of an expression tree.
func sexpr(n *ast.Node) string {
	switch n.Type {
	case ast.Number, ast.String, ast.Boolean, ast.Identifier:
		return strings.TrimSpace(strings.TrimPrefix(n.String(), n.Type.String()))
	case ast.Operator, ast.CompoundAssign, ast.Unary:
		parts := []string{n.Str}
		for _, c := range n.Children {
			parts = append(parts, sexpr(c))
		}
		return "(" + strings.Join(parts, " ") + ")"
	}
	parts := []string{n.Type.String()}
	if n.Str != "" {
		parts = append(parts, n.Str)
	}
	for _, c := range n.Children {
		parts = append(parts, sexpr(c))
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func TestConstantFolding(t *testing.T) {
	root := parse(t, "1 + 2 * 3;")
	require.Len(t, root.Children, 1)
	stmt := root.Children[0]
	require.Equal(t, ast.Number, stmt.Type)
	require.Equal(t, 7.0, stmt.Num)
	require.Empty(t, stmt.Children)
}

func TestPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a + b * c;", "(+ a (* b c))"},
		{"a * b + c;", "(+ (* a b) c)"},
		{"a - b - c;", "(- (- a b) c)"},
		{"-a + b;", "(+ (- a) b)"},
		{"a * -b;", "(* a (- b))"},
		{"a - -b;", "(- a (- b))"},
		{"!a == b;", "(== (! a) b)"},
		{"a < b == c < d;", "(== (< a b) (< c d))"},
		{"a && b || c;", "(|| (&& a b) c)"},
		{"a || b && c;", "(|| a (&& b c))"},
		{"a = b = c + 1;", "(Assign a (Assign b (+ c 1)))"},
		{"x += y * 2;", "(+= x (* y 2))"},
		{"c ? a : b ? d : e;", "(Conditional c a (Conditional b d e))"},
		{"x = c ? a + 1 : b;", "(Assign x (Conditional c (+ a 1) b))"},
		{"a++ + b;", "(+ (PostInc a) b)"},
		{"++a[0];", "(PreInc (Index a 0))"},
		{"-f(x);", "(- (Call f x))"},
		{"a.b.c(1)[2];", "(Index (Call (Property c (Property b a)) 1) 2)"},
		{"f(a, b + 1)(2);", "(Call (Call f a (+ b 1)) 2)"},
		{"x = [1, [2, 3], []];", "(Assign x (Array 1 (Array 2 3) (Array)))"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			root := parse(t, tt.input)
			require.Len(t, root.Children, 1)
			require.Equal(t, tt.expected, sexpr(root.Children[0]))
		})
	}
}

func TestPipeDesugaring(t *testing.T) {
	root := parse(t, "a |> f(1) |> g;")
	require.Equal(t, "(Call g (Call f a 1))", sexpr(root.Children[0]))

	raw := parseRaw(t, "a |> g;")
	require.Equal(t, ast.Pipe, raw.Children[0].Type)
}

func TestDeclarations(t *testing.T) {
	src := `
using Util.Text;
namespace Geometry.Shapes {
	object Point { var x = 0; var y: number = 1; }
	public function area(w, h: number): number {
		return w * h;
	}
	function helper() {}
}
const limit: number = 3;
`
	root := parse(t, src)
	require.Len(t, root.Children, 3)

	using := root.Children[0]
	require.Equal(t, ast.Using, using.Type)
	require.Equal(t, "(Property Text Util)", sexpr(using.Children[0]))

	ns := root.Children[1]
	require.Equal(t, ast.Namespace, ns.Type)
	require.Len(t, ns.Children, 4)
	require.Equal(t, "(Property Shapes Geometry)", sexpr(ns.Children[0]))

	obj := ns.Children[1]
	require.Equal(t, ast.ObjectDecl, obj.Type)
	require.Equal(t, "Point", obj.Str)
	require.Len(t, obj.Children, 2)
	require.Equal(t, ast.VarDecl, obj.Children[1].Type)
	require.Equal(t, ast.TypeRef, obj.Children[1].Children[0].Type)

	fn := ns.Children[2]
	require.Equal(t, ast.PublicFunction, fn.Type)
	require.Equal(t, "area", fn.Str)
	require.Len(t, fn.Children, 3)
	params := fn.Children[0]
	require.Equal(t, ast.ParamList, params.Type)
	require.Len(t, params.Children, 2)
	require.Equal(t, "h", params.Children[1].Str)
	require.Equal(t, ast.TypeRef, fn.Children[1].Type)
	require.Equal(t, ast.Scope, fn.Children[2].Type)

	helper := ns.Children[3]
	require.Equal(t, ast.Function, helper.Type)
	require.Empty(t, helper.Children[0].Children)

	c := root.Children[2]
	require.Equal(t, ast.ConstDecl, c.Type)
	require.Equal(t, "limit", c.Str)
}

func TestStatements(t *testing.T) {
	src := `
function g() {
	for (var i = 0; i < 10; i++) {
		if (i == 5) { break; }
		continue;
	}
	while (x) { x -= 1; }
	for (;;) {}
	if (a) { return 1; } else if (b) { return 2; } else { return; }
	;
}
`
	root := parse(t, src)
	body := root.Children[0].Children[1]
	require.Equal(t, ast.Scope, body.Type)
	require.Len(t, body.Children, 5)

	loop := body.Children[0]
	require.Equal(t, ast.For, loop.Type)
	require.Len(t, loop.Children, 4)
	require.Equal(t, ast.VarDecl, loop.Children[0].Type)
	require.Equal(t, ast.PostInc, loop.Children[2].Type)

	empty := body.Children[2]
	require.Equal(t, ast.For, empty.Type)
	for _, c := range empty.Children[:3] {
		require.Equal(t, ast.Empty, c.Type)
	}

	ifs := body.Children[3]
	require.Equal(t, ast.If, ifs.Type)
	require.Len(t, ifs.Children, 3)
	require.Equal(t, ast.If, ifs.Children[2].Type)

	require.Equal(t, ast.Empty, body.Children[4].Type)
}

func TestDeadCodePruned(t *testing.T) {
	root := parse(t, "function f() { return 1; x = 2; y = 3; }")
	body := root.Children[0].Children[1]
	require.Len(t, body.Children, 1)
	require.Equal(t, ast.Return, body.Children[0].Type)
}

func TestObjectConstruction(t *testing.T) {
	root := parse(t, "f(new A.B { x = 1, y = 2 }); new C;")
	require.Equal(t, "(Call f (New (Property B A) (Init x 1) (Init y 2)))", sexpr(root.Children[0]))
	require.Equal(t, "(New C)", sexpr(root.Children[1]))
}

func TestLiterals(t *testing.T) {
	root := parse(t, `0x1F; 2.5e1; "hi\n"; true; false; undefined;`)
	require.Equal(t, 31.0, root.Children[0].Num)
	require.Equal(t, 25.0, root.Children[1].Num)
	require.Equal(t, "hi\n", root.Children[2].Str)
	require.True(t, root.Children[3].Bool)
	require.False(t, root.Children[4].Bool)
	require.Equal(t, ast.Undefined, root.Children[5].Type)
}

func TestEmptyUnit(t *testing.T) {
	root := parse(t, "  // nothing here\n")
	require.Empty(t, root.Children)
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		input  string
		line   int
		column int
		token  string
	}{
		{"var x = ;", 1, 9, ";"},
		{"var = 1;", 1, 5, "="},
		{"f(1,);", 1, 5, ")"},
		{"x = 1", 1, 6, ""},
		{"function f( { }", 1, 13, "{"},
		{"if (x) y;", 1, 8, "y"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(context.Background(), tt.input, "bad.em")
			require.NotNil(t, err)
			var e *errz.Error
			require.True(t, errors.As(err, &e))
			require.Equal(t, errz.ErrSyntax, e.Kind)
			require.Equal(t, "bad.em", e.Location.Filename)
			require.Equal(t, tt.line, e.Location.Line)
			require.Equal(t, tt.column, e.Location.Column)
			require.Equal(t, tt.token, e.Token)
			require.NotEmpty(t, e.Expected)
		})
	}
}

func TestLexErrorPropagates(t *testing.T) {
	_, err := Parse(context.Background(), `var s = "open;`, "bad.em")
	var e *errz.Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, errz.ErrSyntax, e.Kind)
}

func TestMaxDepth(t *testing.T) {
	table, err := DefaultTable()
	require.Nil(t, err)
	p := New(table, WithMaxDepth(16))
	_, err = p.Parse(context.Background(), strings.Repeat("(", 40)+"1"+strings.Repeat(")", 40)+";", "deep.em")
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "nesting too deep")
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Parse(ctx, "x;", "x.em")
	require.ErrorIs(t, err, context.Canceled)
}

func TestPrecedenceTable(t *testing.T) {
	plus, ok := LookupPrecedence(token.PLUS)
	require.True(t, ok)
	star, _ := LookupPrecedence(token.STAR)
	require.Less(t, plus.Level, star.Level)
	call, _ := LookupPrecedence(token.LPAREN)
	require.True(t, call.Binding)
	require.Greater(t, call.Level, prefixPrecedence.Level)
	_, ok = LookupPrecedence(token.SEMICOLON)
	require.False(t, ok)
}
