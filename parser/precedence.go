package parser

import "github.com/emerald-lang/emerald/token"

// Associativity decides equal-precedence ties.
type Associativity uint8

const (
	NonAssoc Associativity = iota
	Left
	Right
)

// Precedence levels, lowest first.
const (
	_ int = iota
	ASSIGN  // = += -= ...
	PIPE    // |>
	TERNARY // ? :
	OR      // ||
	AND     // &&
	EQUALS  // == !=
	COMPARE // < <= > >=
	SUM     // + -
	PRODUCT // * / %
	PREFIX  // -X !X ++X
	CALL    // f(x) a[i] a.b
)

// Precedence is one entry of the operator table.
type Precedence struct {
	Level int
	Assoc Associativity
	// Binding operators only ever decide as the incoming token; they are
	// never pending on the operator stack.
	Binding bool
}

var precedences = map[token.Kind]Precedence{
	token.ASSIGN:         {ASSIGN, Right, false},
	token.PLUS_ASSIGN:    {ASSIGN, Right, false},
	token.MINUS_ASSIGN:   {ASSIGN, Right, false},
	token.STAR_ASSIGN:    {ASSIGN, Right, false},
	token.SLASH_ASSIGN:   {ASSIGN, Right, false},
	token.PERCENT_ASSIGN: {ASSIGN, Right, false},
	token.PIPE:           {PIPE, Left, false},
	token.QUESTION:       {TERNARY, Right, false},
	token.COLON:          {TERNARY, Right, false},
	token.OR:             {OR, Left, false},
	token.AND:            {AND, Left, false},
	token.EQ:             {EQUALS, Left, false},
	token.NOT_EQ:         {EQUALS, Left, false},
	token.LT:             {COMPARE, Left, false},
	token.LT_EQ:          {COMPARE, Left, false},
	token.GT:             {COMPARE, Left, false},
	token.GT_EQ:          {COMPARE, Left, false},
	token.PLUS:           {SUM, Left, false},
	token.MINUS:          {SUM, Left, false},
	token.STAR:           {PRODUCT, Left, false},
	token.SLASH:          {PRODUCT, Left, false},
	token.PERCENT:        {PRODUCT, Left, false},
	token.BANG:           {PREFIX, Right, false},
	token.INC:            {PREFIX, Right, false},
	token.DEC:            {PREFIX, Right, false},
	token.LPAREN:         {CALL, Left, true},
	token.LBRACKET:       {CALL, Left, true},
	token.DOT:            {CALL, Left, true},
}

// prefixPrecedence applies to a MINUS that starts an operand.
var prefixPrecedence = Precedence{PREFIX, Right, false}

// LookupPrecedence returns the table entry for k.
func LookupPrecedence(k token.Kind) (Precedence, bool) {
	p, ok := precedences[k]
	return p, ok
}
