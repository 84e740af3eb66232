package ast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emerald-lang/emerald/token"
)

func op(kind token.Kind, l, r *Node) *Node {
	n := New(Operator, 1, 1)
	n.Token = kind
	n.Add(l, r)
	return n
}

func ident(name string) *Node {
	n := New(Identifier, 1, 1)
	n.Str = name
	return n
}

func TestFoldArithmetic(t *testing.T) {
	// 1 + 2 * 3, built bottom-up the way the parser reduces it.
	product := Optimize(op(token.STAR, NewNumber(2, 1), NewNumber(3, 1)))
	sum := Optimize(op(token.PLUS, NewNumber(1, 1), product))
	require.Equal(t, Number, sum.Type)
	require.Equal(t, 7.0, sum.Num)
	require.Empty(t, sum.Children)
}

func TestFoldOperators(t *testing.T) {
	tests := []struct {
		name     string
		node     *Node
		expected *Node
	}{
		{"sub", op(token.MINUS, NewNumber(5, 1), NewNumber(8, 1)), NewNumber(-3, 1)},
		{"mod", op(token.PERCENT, NewNumber(7, 1), NewNumber(4, 1)), NewNumber(3, 1)},
		{"epsilon", op(token.EQ, NewNumber(0.30000001, 1), NewNumber(0.3, 1)), NewBoolean(true, 1)},
		{"lt", op(token.LT, NewNumber(1, 1), NewNumber(2, 1)), NewBoolean(true, 1)},
		{"concat", op(token.PLUS, NewString("ab", 1), NewString("cd", 1)), NewString("abcd", 1)},
		{"string eq", op(token.NOT_EQ, NewString("a", 1), NewString("a", 1)), NewBoolean(false, 1)},
		{"and", op(token.AND, NewBoolean(true, 1), NewNumber(0, 1)), NewNumber(0, 1)},
		{"and falsy left", op(token.AND, NewNumber(0, 1), NewBoolean(true, 1)), NewNumber(0, 1)},
		{"and truthy", op(token.AND, NewNumber(1, 1), NewString("y", 1)), NewString("y", 1)},
		{"or", op(token.OR, NewNumber(0, 1), NewString("x", 1)), NewString("x", 1)},
		{"or truthy left", op(token.OR, NewNumber(4, 1), NewBoolean(false, 1)), NewNumber(4, 1)},
		{"or empty string", op(token.OR, NewString("", 1), NewBoolean(false, 1)), NewBoolean(false, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Optimize(tt.node)
			require.Equal(t, tt.expected.Type, got.Type)
			require.Equal(t, tt.expected.Num, got.Num)
			require.Equal(t, tt.expected.Str, got.Str)
			require.Equal(t, tt.expected.Bool, got.Bool)
		})
	}
}

func TestNoFold(t *testing.T) {
	div := op(token.SLASH, NewNumber(1, 1), NewNumber(0, 1))
	require.Same(t, div, Optimize(div))

	mixed := op(token.PLUS, NewNumber(1, 1), ident("x"))
	require.Same(t, mixed, Optimize(mixed))

	typeMix := op(token.STAR, NewString("a", 1), NewNumber(2, 1))
	require.Same(t, typeMix, Optimize(typeMix))
}

func TestFoldUnary(t *testing.T) {
	neg := New(Unary, 1, 1)
	neg.Token = token.MINUS
	neg.Add(NewNumber(4, 1))
	got := Optimize(neg)
	require.Equal(t, Number, got.Type)
	require.Equal(t, -4.0, got.Num)

	not := New(Unary, 1, 1)
	not.Token = token.BANG
	not.Add(NewString("", 1))
	got = Optimize(not)
	require.Equal(t, Boolean, got.Type)
	require.True(t, got.Bool)
}

func TestPruneScope(t *testing.T) {
	scope := New(Scope, 1, 1)
	scope.Add(ident("a"), New(Return, 2, 1), ident("dead"), New(Break, 4, 1))
	got := Optimize(scope)
	require.Len(t, got.Children, 2)
	require.Equal(t, Return, got.Children[1].Type)

	loop := New(Scope, 1, 1)
	loop.Add(New(Continue, 1, 1), ident("dead"))
	require.Len(t, Optimize(loop).Children, 1)
}

func TestConstantConditional(t *testing.T) {
	cond := New(Conditional, 1, 1)
	cond.Add(NewBoolean(false, 1), ident("yes"), ident("no"))
	got := Optimize(cond)
	require.Equal(t, "no", got.Str)

	dynamic := New(Conditional, 1, 1)
	dynamic.Add(ident("c"), ident("yes"), ident("no"))
	require.Same(t, dynamic, Optimize(dynamic))
}

func TestPipe(t *testing.T) {
	// a |> f(b) |> g
	f := New(Call, 1, 1)
	f.Add(ident("f"), ident("b"))
	inner := New(Pipe, 1, 1)
	inner.Add(ident("a"), f)
	first := Optimize(inner)
	require.Equal(t, Call, first.Type)
	require.Equal(t, []string{"f", "a", "b"}, []string{first.Children[0].Str, first.Children[1].Str, first.Children[2].Str})

	outer := New(Pipe, 1, 1)
	outer.Add(first, ident("g"))
	second := Optimize(outer)
	require.Equal(t, Call, second.Type)
	require.Equal(t, "g", second.Children[0].Str)
	require.Same(t, first, second.Children[1])
}

func TestLookupNodeType(t *testing.T) {
	nt, ok := LookupNodeType("Conditional")
	require.True(t, ok)
	require.Equal(t, Conditional, nt)
	nt, ok = LookupNodeType("New")
	require.True(t, ok)
	require.Equal(t, NewObject, nt)
	require.Equal(t, "New", New(NewObject, 1, 1).Type.String())
	_, ok = LookupNodeType("Nope")
	require.False(t, ok)
}

func TestString(t *testing.T) {
	n := op(token.PLUS, NewNumber(1, 1), ident("x"))
	require.Equal(t, "Operator PLUS\n  Number 1\n  Identifier x\n", n.String())
}
