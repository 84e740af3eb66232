// Package parser turns Emerald source text into an abstract syntax tree.
//
// The parser is a table-driven shift/reduce engine. It keeps three parallel
// stacks: parser states, frames pairing a symbol with the AST node built for
// it, and the pending operators that carry precedence. Decide cells in the
// parse table are settled with the static table in precedence.go.
package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/emerald-lang/emerald/ast"
	"github.com/emerald-lang/emerald/errz"
	"github.com/emerald-lang/emerald/grammar"
	"github.com/emerald-lang/emerald/internal/lexer"
	"github.com/emerald-lang/emerald/token"
)

// DefaultMaxDepth is the default limit on the parser stack height.
const DefaultMaxDepth = 10000

// Option is a configuration function for a Parser.
type Option func(*Parser)

// WithMaxDepth limits the parser stack height. Deeper input is rejected
// with a syntax error.
func WithMaxDepth(depth int) Option {
	return func(p *Parser) {
		p.maxDepth = depth
	}
}

// WithOptimize enables or disables running ast.Optimize on every
// synthesized node. It is enabled by default.
func WithOptimize(enabled bool) Option {
	return func(p *Parser) {
		p.optimize = enabled
	}
}

// Parser drives a parse table. It holds no per-parse state and may be used
// from several goroutines at once.
type Parser struct {
	table    *grammar.Table
	maxDepth int
	optimize bool
}

// New returns a parser for table.
func New(table *grammar.Table, options ...Option) *Parser {
	p := &Parser{table: table, maxDepth: DefaultMaxDepth, optimize: true}
	for _, opt := range options {
		opt(p)
	}
	return p
}

var (
	defaultOnce  sync.Once
	defaultTable *grammar.Table
	defaultErr   error
)

// DefaultTable returns the table for the embedded grammar, building it on
// first use.
func DefaultTable() (*grammar.Table, error) {
	defaultOnce.Do(func() {
		var g *grammar.Grammar
		if g, defaultErr = grammar.Default(); defaultErr == nil {
			defaultTable, defaultErr = g.Build(zerolog.Nop())
		}
	})
	return defaultTable, defaultErr
}

// Parse parses src with the embedded grammar.
func Parse(ctx context.Context, src, filename string, options ...Option) (*ast.Node, error) {
	table, err := DefaultTable()
	if err != nil {
		return nil, err
	}
	return New(table, options...).Parse(ctx, src, filename)
}

type frame struct {
	kind    token.Kind
	node    *ast.Node
	literal string
	pos     token.Position
}

type pendingOp struct {
	prec Precedence
	kind token.Kind
	at   int // frame index of the operator token
}

type run struct {
	*Parser
	ctx      context.Context
	src      string
	filename string
	lex      *lexer.Lexer
	states   []int
	frames   []frame
	ops      []pendingOp
}

// Parse parses one compilation unit. A single syntax error fails the whole
// unit; there is no recovery.
func (p *Parser) Parse(ctx context.Context, src, filename string) (*ast.Node, error) {
	r := &run{
		Parser:   p,
		ctx:      ctx,
		src:      src,
		filename: filename,
		lex:      lexer.New(src, filename),
		states:   []int{0},
	}
	return r.parse()
}

func (r *run) parse() (*ast.Node, error) {
	tok, err := r.lex.Next()
	if err != nil {
		return nil, err
	}
	for steps := 0; ; steps++ {
		if steps&255 == 0 {
			if err := r.ctx.Err(); err != nil {
				return nil, err
			}
		}
		state := r.states[len(r.states)-1]
		action := r.table.Action(state, tok.Kind)
		kind := action.Kind
		if kind == grammar.Decide {
			if kind, err = r.decide(action, tok); err != nil {
				return nil, err
			}
		}
		switch kind {
		case grammar.Accept:
			if len(r.frames) != 1 || r.frames[0].node == nil {
				return nil, fmt.Errorf("parser accepted with %d frames", len(r.frames))
			}
			return r.frames[0].node, nil
		case grammar.Shift:
			if len(r.frames) >= r.maxDepth {
				return nil, r.errorAt(tok, "nesting too deep", nil)
			}
			r.shift(tok, int(action.Shift))
			if tok, err = r.lex.Next(); err != nil {
				return nil, err
			}
		case grammar.Reduce:
			if err := r.reduce(int(action.Reduce), tok); err != nil {
				return nil, err
			}
		default:
			return nil, r.unexpected(tok, state)
		}
	}
}

// decide settles a shift/reduce cell. The pending operator is the top of
// the operator stack when it lies inside the handle of the candidate
// reduction; without one, or without a table entry for either side, the
// parser shifts.
func (r *run) decide(action grammar.Action, tok token.Token) (grammar.ActionKind, error) {
	rule := r.table.Rule(int(action.Reduce))
	handleStart := len(r.frames) - len(rule.Right)
	if len(r.ops) == 0 {
		return grammar.Shift, nil
	}
	pending := r.ops[len(r.ops)-1]
	if pending.at < handleStart {
		return grammar.Shift, nil
	}
	incoming, ok := LookupPrecedence(tok.Kind)
	if !ok {
		return grammar.Shift, nil
	}
	switch {
	case pending.prec.Level > incoming.Level:
		return grammar.Reduce, nil
	case pending.prec.Level < incoming.Level:
		return grammar.Shift, nil
	}
	switch incoming.Assoc {
	case Left:
		return grammar.Reduce, nil
	case Right:
		return grammar.Shift, nil
	}
	return grammar.Error, r.errorAt(tok, fmt.Sprintf("operator %s is not associative", describe(tok)), nil)
}

func (r *run) shift(tok token.Token, next int) {
	if prec, ok := LookupPrecedence(tok.Kind); ok && !prec.Binding {
		if tok.Kind == token.MINUS && !r.afterOperand() {
			prec = prefixPrecedence
		}
		r.ops = append(r.ops, pendingOp{prec: prec, kind: tok.Kind, at: len(r.frames)})
	}
	r.frames = append(r.frames, frame{kind: tok.Kind, literal: tok.Literal, pos: tok.Pos})
	r.states = append(r.states, next)
}

// afterOperand reports whether the symbol on top of the stack is a complete
// expression, which makes a following MINUS binary.
func (r *run) afterOperand() bool {
	return len(r.frames) > 0 && r.frames[len(r.frames)-1].kind == token.Expr
}

func (r *run) reduce(index int, lookahead token.Token) error {
	rule := r.table.Rule(index)
	n := len(rule.Right)
	if n > len(r.frames) {
		return fmt.Errorf("rule %s reduces %d frames, stack holds %d", rule, n, len(r.frames))
	}
	handle := r.frames[len(r.frames)-n:]
	pos := lookahead.Pos
	if n > 0 {
		pos = handle[0].pos
	}
	node, err := r.build(rule, handle, pos)
	if err != nil {
		return err
	}
	if node != nil && r.optimize {
		node = ast.Optimize(node)
	}

	r.frames = r.frames[:len(r.frames)-n]
	r.states = r.states[:len(r.states)-n]
	for len(r.ops) > 0 && r.ops[len(r.ops)-1].at >= len(r.frames) {
		r.ops = r.ops[:len(r.ops)-1]
	}

	goTo := r.table.Action(r.states[len(r.states)-1], rule.Left)
	if goTo.Kind != grammar.Shift {
		return fmt.Errorf("no goto for %s from state %d", rule.Left, r.states[len(r.states)-1])
	}
	r.frames = append(r.frames, frame{kind: rule.Left, node: node, pos: pos})
	r.states = append(r.states, int(goTo.Shift))
	return nil
}

// build shapes the node for one reduction: it reuses the merge child when
// the rule names one, otherwise synthesizes a node of the rule's type, and
// otherwise passes the single child through.
func (r *run) build(rule grammar.Rule, handle []frame, pos token.Position) (*ast.Node, error) {
	data := rule.Data
	merge := -1
	if data.Merge != token.None {
		for i, f := range handle {
			if f.kind == data.Merge {
				merge = i
				break
			}
		}
	}

	var result *ast.Node
	switch {
	case merge >= 0 && handle[merge].node != nil:
		result = handle[merge].node
		if data.Node != ast.NoNode {
			result.Type = data.Node
			result.Line, result.Column = pos.Line, pos.Column
		}
		var before, after []*ast.Node
		for i, f := range handle {
			if f.node == nil || i == merge {
				continue
			}
			if i < merge {
				before = append(before, f.node)
			} else {
				after = append(after, f.node)
			}
		}
		if len(before) > 0 {
			result.Children = append(before, result.Children...)
		}
		result.Children = append(result.Children, after...)
	case data.Node != ast.NoNode:
		result = ast.New(data.Node, pos.Line, pos.Column)
		for _, f := range handle {
			if f.node != nil {
				result.Add(f.node)
			}
		}
	default:
		for _, f := range handle {
			if f.node == nil {
				continue
			}
			if result != nil {
				return nil, fmt.Errorf("rule %s passes through more than one node", rule)
			}
			result = f.node
		}
	}

	if data.Data != token.None && result != nil {
		for _, f := range handle {
			if f.kind == data.Data {
				if err := r.capture(result, f); err != nil {
					return nil, err
				}
				break
			}
		}
	}
	return result, nil
}

// capture stores the literal of a data token as the node payload.
func (r *run) capture(n *ast.Node, f frame) error {
	n.Token = f.kind
	switch n.Type {
	case ast.Number:
		v, err := parseNumber(f.literal)
		if err != nil {
			return r.errorAt(token.Token{Kind: f.kind, Literal: f.literal, Pos: f.pos},
				fmt.Sprintf("invalid number literal %q", f.literal), nil)
		}
		n.Num = v
	case ast.Boolean:
		n.Bool = f.kind == token.TRUE
	default:
		n.Str = f.literal
	}
	n.Line, n.Column = f.pos.Line, f.pos.Column
	return nil
}

func parseNumber(lit string) (float64, error) {
	if strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") {
		v, err := strconv.ParseUint(lit[2:], 16, 64)
		return float64(v), err
	}
	return strconv.ParseFloat(lit, 64)
}

func describe(tok token.Token) string {
	switch tok.Kind {
	case token.EOF:
		return "end of file"
	case token.IDENT, token.NUMBER:
		return fmt.Sprintf("%s %s", strings.ToLower(tok.Kind.String()), tok.Literal)
	case token.STRING:
		return fmt.Sprintf("string %q", tok.Literal)
	}
	if tok.Literal != "" {
		return fmt.Sprintf("%q", tok.Literal)
	}
	return tok.Kind.String()
}

func (r *run) unexpected(tok token.Token, state int) error {
	expected := r.table.Expected(state)
	names := make([]string, len(expected))
	for i, k := range expected {
		names[i] = k.String()
	}
	return r.errorAt(tok, "unexpected "+describe(tok), names)
}

func (r *run) errorAt(tok token.Token, msg string, expected []string) error {
	err := errz.SyntaxErrorf(errz.SourceLocation{
		Filename: r.filename,
		Line:     tok.Pos.Line,
		Column:   tok.Pos.Column,
		Source:   errz.LineOf(r.src, tok.Pos.Line),
	}, "%s", msg)
	err.Token = tok.Literal
	err.Expected = expected
	return err
}
