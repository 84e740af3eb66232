// Package token defines the terminal and non-terminal kinds shared by the
// lexer, the grammar builder and the parser.
//
// Terminals occupy the low range of Kind values and non-terminals the high
// range starting at NonTerminalBase, so classifying a kind is a single
// comparison.
package token

import "fmt"

// Kind identifies a terminal or non-terminal grammar symbol.
type Kind uint8

// None marks the empty string (epsilon) in First/Follow sets and empty
// placeholders on the parser stack. It is neither a terminal nor a
// non-terminal.
const None Kind = 0

// Terminals
const (
	EOF Kind = iota + 1
	IDENT
	NUMBER
	STRING

	// Keywords
	VAR
	CONST
	FUNCTION
	PUBLIC
	NAMESPACE
	USING
	OBJECT
	NEW
	IF
	ELSE
	WHILE
	FOR
	RETURN
	BREAK
	CONTINUE
	TRUE
	FALSE
	UNDEFINED

	// Operators and punctuation
	PLUS
	MINUS
	STAR
	SLASH
	PERCENT
	ASSIGN
	PLUS_ASSIGN
	MINUS_ASSIGN
	STAR_ASSIGN
	SLASH_ASSIGN
	PERCENT_ASSIGN
	EQ
	NOT_EQ
	LT
	LT_EQ
	GT
	GT_EQ
	AND
	OR
	BANG
	INC
	DEC
	QUESTION
	COLON
	SEMICOLON
	COMMA
	DOT
	LPAREN
	RPAREN
	LBRACKET
	RBRACKET
	LBRACE
	RBRACE
	PIPE

	lastTerminal
)

// NonTerminalBase is the first non-terminal kind.
const NonTerminalBase Kind = 128

// Non-terminals
const (
	Start Kind = NonTerminalBase + iota // augmented axiom
	Unit
	DeclList
	Decl
	FunctionDecl
	Params
	ParamList
	Param
	TypeRef
	Path
	NamespaceDecl
	UsingDecl
	ObjectDecl
	FieldList
	VarDecl
	VarCore
	StmtList
	Stmt
	Block
	IfStmt
	WhileStmt
	ForStmt
	ForInit
	OptExpr
	Expr
	ExprList
	InitList
	Init

	lastNonTerminal
)

// Count is the number of Kind values a parse table row must cover.
const Count = int(lastNonTerminal)

// IsTerminal reports whether k is a terminal.
func IsTerminal(k Kind) bool { return k > None && k < NonTerminalBase }

// IsNonTerminal reports whether k is a non-terminal.
func IsNonTerminal(k Kind) bool { return k >= NonTerminalBase }

var kindNames = map[Kind]string{
	None:           "None",
	EOF:            "EOF",
	IDENT:          "IDENT",
	NUMBER:         "NUMBER",
	STRING:         "STRING",
	VAR:            "VAR",
	CONST:          "CONST",
	FUNCTION:       "FUNCTION",
	PUBLIC:         "PUBLIC",
	NAMESPACE:      "NAMESPACE",
	USING:          "USING",
	OBJECT:         "OBJECT",
	NEW:            "NEW",
	IF:             "IF",
	ELSE:           "ELSE",
	WHILE:          "WHILE",
	FOR:            "FOR",
	RETURN:         "RETURN",
	BREAK:          "BREAK",
	CONTINUE:       "CONTINUE",
	TRUE:           "TRUE",
	FALSE:          "FALSE",
	UNDEFINED:      "UNDEFINED",
	PLUS:           "PLUS",
	MINUS:          "MINUS",
	STAR:           "STAR",
	SLASH:          "SLASH",
	PERCENT:        "PERCENT",
	ASSIGN:         "ASSIGN",
	PLUS_ASSIGN:    "PLUS_ASSIGN",
	MINUS_ASSIGN:   "MINUS_ASSIGN",
	STAR_ASSIGN:    "STAR_ASSIGN",
	SLASH_ASSIGN:   "SLASH_ASSIGN",
	PERCENT_ASSIGN: "PERCENT_ASSIGN",
	EQ:             "EQ",
	NOT_EQ:         "NOT_EQ",
	LT:             "LT",
	LT_EQ:          "LT_EQ",
	GT:             "GT",
	GT_EQ:          "GT_EQ",
	AND:            "AND",
	OR:             "OR",
	BANG:           "BANG",
	INC:            "INC",
	DEC:            "DEC",
	QUESTION:       "QUESTION",
	COLON:          "COLON",
	SEMICOLON:      "SEMICOLON",
	COMMA:          "COMMA",
	DOT:            "DOT",
	LPAREN:         "LPAREN",
	RPAREN:         "RPAREN",
	LBRACKET:       "LBRACKET",
	RBRACKET:       "RBRACKET",
	LBRACE:         "LBRACE",
	RBRACE:         "RBRACE",
	PIPE:           "PIPE",
	Start:          "Start",
	Unit:           "Unit",
	DeclList:       "DeclList",
	Decl:           "Decl",
	FunctionDecl:   "FunctionDecl",
	Params:         "Params",
	ParamList:      "ParamList",
	Param:          "Param",
	TypeRef:        "TypeRef",
	Path:           "Path",
	NamespaceDecl:  "NamespaceDecl",
	UsingDecl:      "UsingDecl",
	ObjectDecl:     "ObjectDecl",
	FieldList:      "FieldList",
	VarDecl:        "VarDecl",
	VarCore:        "VarCore",
	StmtList:       "StmtList",
	Stmt:           "Stmt",
	Block:          "Block",
	IfStmt:         "IfStmt",
	WhileStmt:      "WhileStmt",
	ForStmt:        "ForStmt",
	ForInit:        "ForInit",
	OptExpr:        "OptExpr",
	Expr:           "Expr",
	ExprList:       "ExprList",
	InitList:       "InitList",
	Init:           "Init",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Lookup returns the kind with the given grammar name.
func Lookup(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	return k, ok
}

var keywords = map[string]Kind{
	"var":       VAR,
	"const":     CONST,
	"function":  FUNCTION,
	"public":    PUBLIC,
	"namespace": NAMESPACE,
	"using":     USING,
	"object":    OBJECT,
	"new":       NEW,
	"if":        IF,
	"else":      ELSE,
	"while":     WHILE,
	"for":       FOR,
	"return":    RETURN,
	"break":     BREAK,
	"continue":  CONTINUE,
	"true":      TRUE,
	"false":     FALSE,
	"undefined": UNDEFINED,
}

// LookupIdentifier classifies an identifier as a keyword or IDENT.
func LookupIdentifier(ident string) Kind {
	if k, ok := keywords[ident]; ok {
		return k
	}
	return IDENT
}

// Position is a 1-indexed location in a source file.
type Position struct {
	File   string
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is one lexed terminal.
type Token struct {
	Kind    Kind
	Literal string
	Pos     Position
}
