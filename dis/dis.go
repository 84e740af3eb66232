// Package dis renders compiled functions as readable listings.
package dis

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/emerald-lang/emerald/internal/table"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/op"
	"github.com/emerald-lang/emerald/symbols"
)

// Instruction is one decoded instruction.
type Instruction struct {
	Offset   int
	Line     int
	Code     op.Code
	Name     string
	Operands []int
	Info     string
}

// Disassemble decodes the code of fn.
func Disassemble(fn *symbols.ScriptFunction) ([]Instruction, error) {
	var out []Instruction
	for ip := 0; ip < len(fn.Code); {
		ins := fn.Code[ip]
		info := op.GetInfo(ins.Code())
		if info.Name == "" {
			return nil, fmt.Errorf("%s: invalid opcode %d at offset %d", fn.Name, ins.Code(), ip)
		}
		if ip+info.Words > len(fn.Code) {
			return nil, fmt.Errorf("%s: truncated instruction at offset %d", fn.Name, ip)
		}
		d := Instruction{Offset: ip, Line: fn.Line(ip), Code: ins.Code(), Name: info.Name}
		data := -1
		if info.Words == 2 {
			data = int(fn.Code[ip+1].Wide())
		}
		switch info.Format {
		case op.FormatA:
			d.Operands = []int{int(ins.Target())}
		case op.FormatAB:
			d.Operands = []int{int(ins.Target()), int(ins.In1())}
		case op.FormatABC:
			d.Operands = []int{int(ins.Target()), int(ins.In1()), int(ins.In2())}
		case op.FormatAP:
			d.Operands = []int{int(ins.Target()), param(ins)}
		case op.FormatP:
			d.Operands = []int{param(ins)}
		case op.FormatAData:
			d.Operands = []int{int(ins.Target()), data}
		case op.FormatABData:
			d.Operands = []int{int(ins.Target()), int(ins.In1()), data}
		case op.FormatABCData:
			d.Operands = []int{int(ins.Target()), int(ins.In1()), int(ins.In2()), data}
		}
		d.Info = describe(fn, ip, ins, data)
		out = append(out, d)
		ip += info.Words
	}
	return out, nil
}

func param(ins op.Instruction) int {
	switch ins.Code() {
	case op.Jump, op.JumpIfFalse, op.JumpIfTrue:
		return int(ins.SParam())
	}
	return int(ins.Param())
}

func first(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func candidates[T interface{ String() string }](ps []T) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

// describe resolves the pool or table entry an instruction refers to.
func describe(fn *symbols.ScriptFunction, ip int, ins op.Instruction, data int) string {
	p := int(ins.Param())
	switch ins.Code() {
	case op.LoadNumber:
		if p < len(fn.Numbers) {
			return object.FormatNumber(fn.Numbers[p])
		}
	case op.LoadString:
		if p < len(fn.Strings) {
			return strconv.Quote(fn.Strings[p])
		}
	case op.LoadBool:
		return strconv.FormatBool(p != 0)
	case op.LoadSymbol, op.StoreSymbol:
		if p < len(fn.Globals) {
			return first(candidates(fn.Globals[p].Candidates))
		}
	case op.PushObjectDefault:
		if p < len(fn.Types) {
			return first(candidates(fn.Types[p].Candidates))
		}
	case op.LoadFunction, op.CallFunction:
		if data >= 0 && data < len(fn.Functions) {
			ref := &fn.Functions[data]
			return fmt.Sprintf("%s/%d", first(candidates(ref.Candidates)), ref.ArgCount)
		}
	case op.LoadProperty, op.StoreProperty:
		if data >= 0 && data < len(fn.Properties) {
			return "." + fn.Properties[data].Name.String()
		}
	case op.Jump, op.JumpIfFalse, op.JumpIfTrue:
		return fmt.Sprintf("-> %d", ip+int(ins.SParam()))
	case op.JumpTo:
		return fmt.Sprintf("-> %d", p)
	}
	return ""
}

// Print writes instructions as a table.
func Print(instructions []Instruction, w io.Writer) {
	t := table.NewTable(w)
	t.WithHeader([]string{"OFFSET", "LINE", "OPCODE", "OPERANDS", "INFO"})
	t.WithColumnAlignment([]table.Alignment{
		table.AlignRight,
		table.AlignRight,
		table.AlignLeft,
		table.AlignRight,
		table.AlignLeft,
	})
	t.WithHeaderAlignment([]table.Alignment{
		table.AlignCenter,
		table.AlignCenter,
		table.AlignCenter,
		table.AlignCenter,
		table.AlignCenter,
	})
	opcode := color.New(color.FgYellow).SprintFunc()
	for _, ins := range instructions {
		operands := make([]string, len(ins.Operands))
		for i, o := range ins.Operands {
			operands[i] = strconv.Itoa(o)
		}
		t.Append([]string{
			strconv.Itoa(ins.Offset),
			strconv.Itoa(ins.Line),
			opcode(ins.Name),
			strings.Join(operands, " "),
			ins.Info,
		})
	}
	t.Render()
}

// Function writes the listing of fn under a heading.
func Function(fn *symbols.ScriptFunction, w io.Writer) error {
	instructions, err := Disassemble(fn)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s (args %d, registers %d)\n", fn.Name, fn.ArgCount, fn.RegisterCount)
	Print(instructions, w)
	return nil
}
