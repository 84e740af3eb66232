package ast

import (
	"math"
	"strings"

	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/token"
)

// Optimize simplifies a freshly synthesized node and returns its replacement.
// The parser calls it on every node it builds, so children are always
// optimized before their parents.
//
// Literal operator subtrees are folded, statements following an
// unconditional jump inside a scope are dropped, conditionals with constant
// conditions collapse to the taken branch and pipe chains become calls.
func Optimize(n *Node) *Node {
	if n == nil {
		return nil
	}
	switch n.Type {
	case Operator:
		if folded := foldBinary(n); folded != nil {
			return folded
		}
	case Unary:
		if folded := foldUnary(n); folded != nil {
			return folded
		}
	case Scope:
		pruneScope(n)
	case Conditional:
		if len(n.Children) == 3 {
			if cond, ok := n.Children[0].Truthy(); ok {
				if cond {
					return n.Children[1]
				}
				return n.Children[2]
			}
		}
	case Pipe:
		return desugarPipe(n)
	}
	return n
}

func pruneScope(n *Node) {
	for i, stmt := range n.Children {
		switch stmt.Type {
		case Return, Break, Continue:
			n.Children = n.Children[:i+1]
			return
		}
	}
}

// desugarPipe rewrites `a |> f(b)` into `f(a, b)` and `a |> f` into `f(a)`.
func desugarPipe(n *Node) *Node {
	if len(n.Children) != 2 {
		return n
	}
	left, right := n.Children[0], n.Children[1]
	switch right.Type {
	case Call:
		args := make([]*Node, 0, len(right.Children)+1)
		args = append(args, right.Children[0], left)
		args = append(args, right.Children[1:]...)
		right.Children = args
		return right
	case Identifier, Property:
		call := New(Call, right.Line, right.Column)
		call.Add(right, left)
		return call
	}
	return n
}

func foldUnary(n *Node) *Node {
	if len(n.Children) != 1 || !n.Children[0].IsLiteral() {
		return nil
	}
	operand := n.Children[0]
	switch n.Token {
	case token.MINUS:
		if operand.Type == Number {
			return NewNumber(-operand.Num, n.Line)
		}
	case token.BANG:
		if truth, ok := operand.Truthy(); ok {
			return NewBoolean(!truth, n.Line)
		}
	}
	return nil
}

func foldBinary(n *Node) *Node {
	if len(n.Children) != 2 {
		return nil
	}
	l, r := n.Children[0], n.Children[1]
	if !l.IsLiteral() || !r.IsLiteral() {
		return nil
	}
	line := n.Line
	switch n.Token {
	case token.AND, token.OR:
		// The value is the operand that decides, as at run time.
		lt, _ := l.Truthy()
		if lt == (n.Token == token.OR) {
			return l
		}
		return r
	}
	if l.Type == Number && r.Type == Number {
		a, b := l.Num, r.Num
		switch n.Token {
		case token.PLUS:
			return NewNumber(a+b, line)
		case token.MINUS:
			return NewNumber(a-b, line)
		case token.STAR:
			return NewNumber(a*b, line)
		case token.SLASH:
			if b == 0 {
				return nil
			}
			return NewNumber(a/b, line)
		case token.PERCENT:
			if b == 0 {
				return nil
			}
			return NewNumber(math.Mod(a, b), line)
		case token.EQ:
			return NewBoolean(object.NumbersEqual(a, b), line)
		case token.NOT_EQ:
			return NewBoolean(!object.NumbersEqual(a, b), line)
		case token.LT:
			return NewBoolean(a < b, line)
		case token.LT_EQ:
			return NewBoolean(a <= b, line)
		case token.GT:
			return NewBoolean(a > b, line)
		case token.GT_EQ:
			return NewBoolean(a >= b, line)
		}
		return nil
	}
	if l.Type == String && r.Type == String {
		a, b := l.Str, r.Str
		switch n.Token {
		case token.PLUS:
			return NewString(a+b, line)
		case token.EQ:
			return NewBoolean(a == b, line)
		case token.NOT_EQ:
			return NewBoolean(a != b, line)
		case token.LT:
			return NewBoolean(strings.Compare(a, b) < 0, line)
		case token.LT_EQ:
			return NewBoolean(strings.Compare(a, b) <= 0, line)
		case token.GT:
			return NewBoolean(strings.Compare(a, b) > 0, line)
		case token.GT_EQ:
			return NewBoolean(strings.Compare(a, b) >= 0, line)
		}
		return nil
	}
	if l.Type == Boolean && r.Type == Boolean {
		switch n.Token {
		case token.EQ:
			return NewBoolean(l.Bool == r.Bool, line)
		case token.NOT_EQ:
			return NewBoolean(l.Bool != r.Bool, line)
		}
	}
	return nil
}
