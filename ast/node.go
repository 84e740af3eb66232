// Package ast defines the syntax tree produced by the parser.
//
// Nodes are generic: a node type, an optional literal payload and an ordered
// list of children. The grammar description decides which node type each
// production synthesizes, so the tree shape follows the grammar file rather
// than a fixed set of Go structs.
package ast

import (
	"fmt"
	"strings"

	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/token"
)

// NodeType identifies the kind of an AST node.
type NodeType uint8

const (
	NoNode NodeType = iota
	Unit
	Declarations
	Namespace
	Using
	Function
	PublicFunction
	ParamList
	Param
	TypeRef
	ObjectDecl
	FieldList
	VarDecl
	ConstDecl
	Scope
	If
	While
	For
	Return
	Break
	Continue
	Empty
	Assign
	CompoundAssign
	Operator
	Unary
	Conditional
	Call
	ExprList
	Index
	Property
	Identifier
	Number
	String
	Boolean
	Undefined
	Array
	NewObject
	InitList
	Init
	PreInc
	PreDec
	PostInc
	PostDec
	Pipe
)

var nodeTypeNames = [...]string{
	NoNode:         "None",
	Unit:           "Unit",
	Declarations:   "Declarations",
	Namespace:      "Namespace",
	Using:          "Using",
	Function:       "Function",
	PublicFunction: "PublicFunction",
	ParamList:      "ParamList",
	Param:          "Param",
	TypeRef:        "TypeRef",
	ObjectDecl:     "ObjectDecl",
	FieldList:      "FieldList",
	VarDecl:        "VarDecl",
	ConstDecl:      "ConstDecl",
	Scope:          "Scope",
	If:             "If",
	While:          "While",
	For:            "For",
	Return:         "Return",
	Break:          "Break",
	Continue:       "Continue",
	Empty:          "Empty",
	Assign:         "Assign",
	CompoundAssign: "CompoundAssign",
	Operator:       "Operator",
	Unary:          "Unary",
	Conditional:    "Conditional",
	Call:           "Call",
	ExprList:       "ExprList",
	Index:          "Index",
	Property:       "Property",
	Identifier:     "Identifier",
	Number:         "Number",
	String:         "String",
	Boolean:        "Boolean",
	Undefined:      "Undefined",
	Array:          "Array",
	NewObject:      "New",
	InitList:       "InitList",
	Init:           "Init",
	PreInc:         "PreInc",
	PreDec:         "PreDec",
	PostInc:        "PostInc",
	PostDec:        "PostDec",
	Pipe:           "Pipe",
}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return fmt.Sprintf("NodeType(%d)", uint8(t))
}

// LookupNodeType returns the node type with the given grammar name.
func LookupNodeType(name string) (NodeType, bool) {
	for i, n := range nodeTypeNames {
		if n == name {
			return NodeType(i), true
		}
	}
	return NoNode, false
}

// Node is one syntax tree node. A node owns its children exclusively.
type Node struct {
	Type     NodeType
	Token    token.Kind // operator or data token captured by the grammar
	Str      string
	Num      float64
	Bool     bool
	Children []*Node
	Line     int
	Column   int

	// VarType is the static type inferred by the compiler.
	VarType object.Kind
	// Symbol is the compiler's binding for this node, once resolved.
	Symbol any
}

// New returns a node of the given type at a source position.
func New(typ NodeType, line, column int) *Node {
	return &Node{Type: typ, Line: line, Column: column}
}

// NewNumber returns a number literal node.
func NewNumber(v float64, line int) *Node {
	return &Node{Type: Number, Num: v, Line: line}
}

// NewString returns a string literal node.
func NewString(s string, line int) *Node {
	return &Node{Type: String, Str: s, Line: line}
}

// NewBoolean returns a boolean literal node.
func NewBoolean(b bool, line int) *Node {
	return &Node{Type: Boolean, Bool: b, Line: line}
}

// Add appends children.
func (n *Node) Add(children ...*Node) {
	n.Children = append(n.Children, children...)
}

// Child returns child i or nil.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// IsLiteral reports whether the node is a constant literal.
func (n *Node) IsLiteral() bool {
	switch n.Type {
	case Number, String, Boolean, Undefined:
		return true
	}
	return false
}

// Truthy returns the truth value of a literal node.
func (n *Node) Truthy() (bool, bool) {
	switch n.Type {
	case Number:
		return n.Num != 0, true
	case String:
		return n.Str != "", true
	case Boolean:
		return n.Bool, true
	case Undefined:
		return false, true
	}
	return false, false
}

// LiteralKind returns the runtime kind of a literal node.
func (n *Node) LiteralKind() object.Kind {
	switch n.Type {
	case Number:
		return object.NumberKind
	case String:
		return object.StringKind
	case Boolean:
		return object.BooleanKind
	}
	return object.UndefinedKind
}

// Walk calls fn for n and every descendant in depth-first pre-order. Returning
// false from fn skips the node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// String renders the tree as an indented outline.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b, 0)
	return b.String()
}

func (n *Node) write(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.Type.String())
	if label := n.label(); label != "" {
		b.WriteString(" ")
		b.WriteString(label)
	}
	b.WriteString("\n")
	for _, c := range n.Children {
		c.write(b, depth+1)
	}
}

func (n *Node) label() string {
	switch n.Type {
	case Number:
		return object.FormatNumber(n.Num)
	case String:
		return fmt.Sprintf("%q", n.Str)
	case Boolean:
		return fmt.Sprintf("%t", n.Bool)
	case Operator, Unary, CompoundAssign:
		return n.Token.String()
	}
	return n.Str
}

// ToMap converts the tree into nested maps suitable for JSON encoding.
func (n *Node) ToMap() map[string]any {
	m := map[string]any{
		"type": n.Type.String(),
		"line": n.Line,
	}
	switch n.Type {
	case Number:
		m["value"] = n.Num
	case Boolean:
		m["value"] = n.Bool
	case String:
		m["value"] = n.Str
	default:
		if n.Str != "" {
			m["name"] = n.Str
		}
	}
	if n.Token != token.None {
		m["token"] = n.Token.String()
	}
	if len(n.Children) > 0 {
		children := make([]any, len(n.Children))
		for i, c := range n.Children {
			children[i] = c.ToMap()
		}
		m["children"] = children
	}
	return m
}
