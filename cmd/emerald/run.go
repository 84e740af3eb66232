package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runScript compiles the input, which runs its top-level code, and prints
// either what that code returned or the result of --call. Arguments after
// "--" are passed to the called function.
func runScript(cmd *cobra.Command, v *viper.Viper, args []string) error {
	var callArgs []string
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		args, callArgs = args[:dash], args[dash:]
	}
	if len(args) > 1 {
		return fmt.Errorf("expected one file, got %d", len(args))
	}
	name, code, err := getCode(cmd, args)
	if err != nil {
		return err
	}
	env, err := newEnvironment(v, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer env.Close()

	result := env.CompileString(name, code)
	if err := result.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	value := result.Value()
	if fn, _ := cmd.Flags().GetString("call"); fn != "" {
		if value, err = callFunction(env, fn, callArgs); err != nil {
			return err
		}
	}
	return printResult(cmd, v, value)
}
