package main

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emerald-lang/emerald/bytecode"
)

func newCompileCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <file>...",
		Short: "Compile scripts into a library",
		Long: `Compile scripts and export them as one library file, or with --split
as one library file per script. Top-level code runs once while compiling,
in the order the files are given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			split, _ := cmd.Flags().GetString("split")
			if out == "" && split == "" {
				out = "out" + bytecode.Extension
			}
			env, err := newEnvironment(v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer env.Close()

			var failed *multierror.Error
			for _, path := range args {
				if err := env.Compile(path).Err(); err != nil {
					failed = multierror.Append(failed, fmt.Errorf("%s: %w", path, err))
				}
			}
			if err := failed.ErrorOrNil(); err != nil {
				return err
			}
			if split != "" {
				if err := env.ExportUnits(split); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d libraries to %s\n", len(args), split)
			}
			if out != "" {
				if err := env.Export(out); err != nil {
					return err
				}
				lib := env.Machine().Library()
				stats := lib.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d symbols, %d functions, %d instructions\n",
					out, stats.Symbols, stats.Functions, stats.Instructions)
			}
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", "", "library file to write")
	cmd.Flags().String("split", "", "directory for one library per script")
	return cmd
}

func newLoadCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <library> [-- args...]",
		Short: "Load a compiled library and optionally call a function",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var callArgs []string
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				args, callArgs = args[:dash], args[dash:]
			}
			if len(args) != 1 {
				return fmt.Errorf("expected one library, got %d", len(args))
			}
			env, err := newEnvironment(v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer env.Close()

			value, err := env.LoadLibrary(args[0])
			if err != nil {
				return err
			}
			if fn, _ := cmd.Flags().GetString("call"); fn != "" {
				if value, err = callFunction(env, fn, callArgs); err != nil {
					return err
				}
			}
			return printResult(cmd, v, value)
		},
	}
	cmd.Flags().String("call", "", "function to call after loading")
	cmd.Flags().StringP("output", "o", "", "output format (json or text)")
	return cmd
}
