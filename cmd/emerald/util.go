package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hokaccha/go-prettyjson"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emerald-lang/emerald"
	"github.com/emerald-lang/emerald/config"
)

var outputFormatsCompletion = []string{"json", "text"}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// loadConfig decodes the settings in v, flags included.
func loadConfig(v *viper.Viper) (config.Config, error) {
	cfg, err := config.FromViper(v)
	if err != nil {
		return cfg, err
	}
	if n := v.GetInt("threads"); n > 0 {
		cfg.ParserThreads, cfg.RunnerThreads = n, n
	}
	return cfg, nil
}

// newEnvironment starts an environment that logs to stderr.
func newEnvironment(v *viper.Viper, stderr io.Writer) (*emerald.Environment, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	colored := !v.GetBool("no-color")
	if f, ok := stderr.(*os.File); !ok || !isTerminal(f) {
		colored = false
	}
	return emerald.New(emerald.WithConfig(cfg), emerald.WithConsole(stderr, colored))
}

// getCode returns the code to run. There are three possibilities:
//  1. --code <code>
//  2. --stdin
//  3. a path as args[0]
//
// The name identifies the unit in diagnostics.
func getCode(cmd *cobra.Command, args []string) (name, code string, err error) {
	codeSet := cmd.Flags().Changed("code")
	stdinSet := cmd.Flags().Changed("stdin")
	pathSet := len(args) > 0
	n := 0
	for _, set := range []bool{codeSet, stdinSet, pathSet} {
		if set {
			n++
		}
	}
	switch {
	case n > 1:
		return "", "", errors.New("multiple input sources specified")
	case n == 0:
		return "", "", errors.New("no input: pass a file, --code or --stdin")
	case stdinSet:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", err
		}
		return "stdin", string(data), nil
	case pathSet:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", err
		}
		return args[0], string(data), nil
	}
	code, _ = cmd.Flags().GetString("code")
	return "code", code, nil
}

// parseArgs converts command line words into script values. Words that
// parse as numbers or booleans become those; the rest are strings.
func parseArgs(words []string) []emerald.Value {
	out := make([]emerald.Value, len(words))
	for i, w := range words {
		if f, err := strconv.ParseFloat(w, 64); err == nil {
			out[i] = emerald.Number(f)
		} else if b, err := strconv.ParseBool(w); err == nil {
			out[i] = emerald.Bool(b)
		} else {
			out[i] = emerald.String(w)
		}
	}
	return out
}

// callFunction runs name with args and returns its result.
func callFunction(env *emerald.Environment, name string, args []string) (emerald.Value, error) {
	h, ok := env.Function(name)
	if !ok {
		return emerald.Undefined, fmt.Errorf("function %q not found", name)
	}
	return env.Result(env.Call(h, parseArgs(args)...)), nil
}

func plain(v emerald.Value) any {
	switch v.Kind() {
	case emerald.NumberKind:
		return v.AsNumber()
	case emerald.BooleanKind:
		return v.AsBool()
	case emerald.StringKind:
		return v.AsString()
	case emerald.ExternalKind:
		return v.String()
	}
	return nil
}

// getOutput renders a result. Undefined prints nothing unless JSON output
// was asked for.
func getOutput(v emerald.Value, format string, colored bool) (string, error) {
	switch strings.ToLower(format) {
	case "":
		if v.IsUndefined() {
			return "", nil
		}
		return v.String(), nil
	case "json":
		return getJSON(plain(v), colored)
	case "text":
		return v.String(), nil
	}
	return "", fmt.Errorf("unknown output format: %s", format)
}

func getJSON(x any, colored bool) (string, error) {
	var data []byte
	var err error
	if colored {
		data, err = prettyjson.Marshal(x)
	} else {
		data, err = json.MarshalIndent(x, "", "  ")
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// colorOutput reports whether stdout gets colored output.
func colorOutput(cmd *cobra.Command, v *viper.Viper) bool {
	if v.GetBool("no-color") {
		return false
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && isTerminal(f)
}

func printResult(cmd *cobra.Command, v *viper.Viper, result emerald.Value) error {
	format, _ := cmd.Flags().GetString("output")
	out, err := getOutput(result, format, colorOutput(cmd, v))
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Fprintln(cmd.OutOrStdout(), out)
	}
	return nil
}
