// Package op defines the opcodes and the packed instruction format shared by
// the compiler and the virtual machine.
//
// An Instruction is one 32-bit word:
//
//	bits  0-7   opcode
//	bits  8-15  target register
//	bits 16-23  first operand register  \ or one 16-bit immediate
//	bits 24-31  second operand register /
//
// Opcodes that need a wider immediate next to register operands are followed
// by a data word whose opcode is Noop; its upper 24 bits carry the value.
package op

import "fmt"

// Code is an opcode.
type Code uint8

const (
	// Noop does nothing. It also tags the data word of two-word instructions.
	Noop Code = 0

	// Loads
	LoadNumber    Code = 1  // target <- numbers[param]
	LoadString    Code = 2  // target <- strings[param]
	LoadBool      Code = 3  // target <- param != 0
	LoadUndefined Code = 4  // target <- undefined
	Move          Code = 5  // target <- in1
	LoadSymbol    Code = 6  // target <- globals[param]
	StoreSymbol   Code = 7  // globals[param] <- target
	LoadFunction  Code = 8  // target <- function object for functions[data]

	// Arithmetic
	Add    Code = 10
	Sub    Code = 11
	Mul    Code = 12
	Div    Code = 13
	Mod    Code = 14
	Negate Code = 15 // target <- -in1
	Not    Code = 16 // target <- !in1

	// Comparison
	Equal        Code = 20
	NotEqual     Code = 21
	Less         Code = 22
	LessEqual    Code = 23
	Greater      Code = 24
	GreaterEqual Code = 25

	// In-place update of a register
	Increment Code = 30
	Decrement Code = 31

	// Control flow. Relative offsets count from the jump's own index.
	Jump        Code = 40 // ip += sparam
	JumpIfFalse Code = 41 // if !target { ip += sparam }
	JumpIfTrue  Code = 42 // if target { ip += sparam }
	JumpTo      Code = 43 // ip = param

	// Calls
	CallFunction    Code = 50 // target <- functions[data](in1 .. in1+in2-1)
	CallSymbol      Code = 51 // target <- register[data](in1 .. in1+in2-1)
	Return          Code = 52 // return target
	ReturnUndefined Code = 53

	// Containers and objects
	NewArray          Code = 60 // target <- [in1 .. in1+in2-1]
	LoadIndex         Code = 61 // target <- in1[in2]
	StoreIndex        Code = 62 // in1[in2] <- target
	LoadProperty      Code = 63 // target <- in1.properties[data]
	StoreProperty     Code = 64 // in1.properties[data] <- target
	PushObjectDefault Code = 65 // target <- new types[param]
)

// Format describes how an opcode uses the operand bits.
type Format uint8

const (
	FormatNone   Format = iota
	FormatA             // target only
	FormatAB            // target, in1
	FormatABC           // target, in1, in2
	FormatAP            // target, param
	FormatP             // param only
	FormatAData         // target + data word
	FormatABData        // target, in1 + data word
	FormatABCData       // target, in1, in2 + data word
)

// Info contains information about an opcode.
type Info struct {
	Code   Code
	Name   string
	Format Format
	Words  int
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op     Code
		name   string
		format Format
	}
	ops := []opInfo{
		{Noop, "NOOP", FormatNone},
		{LoadNumber, "LOAD_NUMBER", FormatAP},
		{LoadString, "LOAD_STRING", FormatAP},
		{LoadBool, "LOAD_BOOL", FormatAP},
		{LoadUndefined, "LOAD_UNDEFINED", FormatA},
		{Move, "MOVE", FormatAB},
		{LoadSymbol, "LOAD_SYMBOL", FormatAP},
		{StoreSymbol, "STORE_SYMBOL", FormatAP},
		{LoadFunction, "LOAD_FUNCTION", FormatAData},
		{Add, "ADD", FormatABC},
		{Sub, "SUB", FormatABC},
		{Mul, "MUL", FormatABC},
		{Div, "DIV", FormatABC},
		{Mod, "MOD", FormatABC},
		{Negate, "NEGATE", FormatAB},
		{Not, "NOT", FormatAB},
		{Equal, "EQUAL", FormatABC},
		{NotEqual, "NOT_EQUAL", FormatABC},
		{Less, "LESS", FormatABC},
		{LessEqual, "LESS_EQUAL", FormatABC},
		{Greater, "GREATER", FormatABC},
		{GreaterEqual, "GREATER_EQUAL", FormatABC},
		{Increment, "INCREMENT", FormatA},
		{Decrement, "DECREMENT", FormatA},
		{Jump, "JUMP", FormatP},
		{JumpIfFalse, "JUMP_IF_FALSE", FormatAP},
		{JumpIfTrue, "JUMP_IF_TRUE", FormatAP},
		{JumpTo, "JUMP_TO", FormatP},
		{CallFunction, "CALL_FUNCTION", FormatABCData},
		{CallSymbol, "CALL_SYMBOL", FormatABCData},
		{Return, "RETURN", FormatA},
		{ReturnUndefined, "RETURN_UNDEFINED", FormatNone},
		{NewArray, "NEW_ARRAY", FormatABC},
		{LoadIndex, "LOAD_INDEX", FormatABC},
		{StoreIndex, "STORE_INDEX", FormatABC},
		{LoadProperty, "LOAD_PROPERTY", FormatABData},
		{StoreProperty, "STORE_PROPERTY", FormatABData},
		{PushObjectDefault, "PUSH_OBJECT_DEFAULT", FormatAP},
	}
	for _, o := range ops {
		words := 1
		switch o.format {
		case FormatAData, FormatABData, FormatABCData:
			words = 2
		}
		infos[o.op] = Info{Code: o.op, Name: o.name, Format: o.format, Words: words}
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(op Code) Info {
	return infos[op]
}

func (c Code) String() string {
	if name := infos[c].Name; name != "" {
		return name
	}
	return fmt.Sprintf("OP_%d", uint8(c))
}

// MaxWide is the largest value a data word can carry.
const MaxWide = 1<<24 - 1

// Instruction is one packed bytecode word.
type Instruction uint32

// New packs an instruction with register operands.
func New(code Code, target, in1, in2 uint8) Instruction {
	return Instruction(uint32(code) | uint32(target)<<8 | uint32(in1)<<16 | uint32(in2)<<24)
}

// NewParam packs an instruction with a 16-bit immediate.
func NewParam(code Code, target uint8, param uint16) Instruction {
	return Instruction(uint32(code) | uint32(target)<<8 | uint32(param)<<16)
}

// NewJump packs a relative jump with a signed offset.
func NewJump(code Code, target uint8, offset int16) Instruction {
	return NewParam(code, target, uint16(offset))
}

// Data packs a Noop-tagged data word carrying v.
func Data(v uint32) Instruction {
	return Instruction(v << 8)
}

// Code returns the opcode.
func (i Instruction) Code() Code { return Code(i) }

// Target returns the target register.
func (i Instruction) Target() uint8 { return uint8(i >> 8) }

// In1 returns the first operand register.
func (i Instruction) In1() uint8 { return uint8(i >> 16) }

// In2 returns the second operand register.
func (i Instruction) In2() uint8 { return uint8(i >> 24) }

// Param returns the 16-bit immediate.
func (i Instruction) Param() uint16 { return uint16(i >> 16) }

// SParam returns the 16-bit immediate as a signed offset.
func (i Instruction) SParam() int16 { return int16(i >> 16) }

// Wide returns the value of a data word.
func (i Instruction) Wide() uint32 { return uint32(i) >> 8 }

// WithParam returns i with its immediate replaced.
func (i Instruction) WithParam(param uint16) Instruction {
	return Instruction(uint32(i)&0xFFFF | uint32(param)<<16)
}
