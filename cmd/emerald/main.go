package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emerald-lang/emerald/config"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var red = color.New(color.FgRed).SprintFunc()

// newRootCmd builds the command tree around settings held in v.
func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "emerald [file] [-- args...]",
		Short:         "Compile and run Emerald scripts",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if path := v.GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("config: %w", err)
				}
			}
			if v.GetBool("no-color") {
				color.NoColor = true
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, v, args)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "settings file (yaml, toml or json)")
	pf.Bool("no-color", false, "disable colored output")
	pf.String("log-compile", "", "compile diagnostics level")
	pf.String("log-runtime", "", "runtime diagnostics level")
	pf.String("log-print", "", "script output level")
	pf.Int("threads", 0, "size of each worker pool")
	pf.String("grammar", "", "grammar description replacing the built-in grammar")
	pf.String("cache-dir", "", "directory for cached parse tables")
	for key, name := range map[string]string{
		"config":      "config",
		"no-color":    "no-color",
		"log.compile": "log-compile",
		"log.runtime": "log-runtime",
		"log.print":   "log-print",
		"threads":     "threads",
		"grammar":     "grammar",
		"cache_dir":   "cache-dir",
	} {
		_ = v.BindPFlag(key, pf.Lookup(name))
	}

	f := root.Flags()
	f.StringP("code", "c", "", "code to run")
	f.Bool("stdin", false, "read code from stdin")
	f.String("call", "", "function to call after loading")
	f.StringP("output", "o", "", "output format (json or text)")
	_ = root.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return outputFormatsCompletion, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newCompileCmd(v),
		newLoadCmd(v),
		newDisCmd(v),
		newASTCmd(v),
		newGrammarCmd(v),
		newVersionCmd(),
	)
	return root
}

func main() {
	v := config.New()
	if err := newRootCmd(v).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		os.Exit(1)
	}
}
