package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emerald-lang/emerald/builtins"
	"github.com/emerald-lang/emerald/compiler"
	"github.com/emerald-lang/emerald/dis"
	"github.com/emerald-lang/emerald/internal/logging"
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/parser"
	"github.com/emerald-lang/emerald/symbols"
)

func newDisCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dis [file]",
		Short: "Disassemble compiled code without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, code, err := getCode(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			unit, err := compileOnly(name, code, logging.NewConsole(cmd.ErrOrStderr(), cfg.Levels, false))
			if err != nil {
				return err
			}
			fn, _ := cmd.Flags().GetString("func")
			return disassemble(cmd.OutOrStdout(), unit, fn)
		},
	}
	cmd.Flags().StringP("code", "c", "", "code to disassemble")
	cmd.Flags().Bool("stdin", false, "read code from stdin")
	cmd.Flags().String("func", "", "function to disassemble")
	return cmd
}

// compileOnly compiles code against the intrinsics without registering or
// running it.
func compileOnly(name, code string, sinks logging.Sinks) (*symbols.Unit, error) {
	root, err := parser.Parse(context.Background(), code, name)
	if err != nil {
		return nil, err
	}
	globals := symbols.NewTable()
	if err := builtins.Register(globals); err != nil {
		return nil, err
	}
	return compiler.Compile(root, compiler.Config{
		Filename: name,
		Source:   code,
		Globals:  globals,
		Logger:   sinks.Compile,
	})
}

// disassemble prints the overloads of fn, or the top-level code followed
// by every function of the unit when fn is empty.
func disassemble(w io.Writer, unit *symbols.Unit, fn string) error {
	if fn != "" {
		path, err := names.ParsePath(fn)
		if err != nil {
			return err
		}
		sym := unit.Lookup(path)
		if sym == nil || sym.Functions == nil {
			return fmt.Errorf("function %q not found", fn)
		}
		return functions(w, sym)
	}
	if err := dis.Function(unit.Init, w); err != nil {
		return err
	}
	for _, p := range unit.Order {
		if sym := unit.Symbols[p]; sym.Functions != nil {
			if err := functions(w, sym); err != nil {
				return err
			}
		}
	}
	return nil
}

func functions(w io.Writer, sym *symbols.Symbol) error {
	for _, def := range sym.Functions.Definitions() {
		if def.Script == nil {
			continue
		}
		fmt.Fprintln(w)
		if err := dis.Function(def.Script, w); err != nil {
			return err
		}
	}
	return nil
}
