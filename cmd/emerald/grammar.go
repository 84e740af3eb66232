package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emerald-lang/emerald/bytecode"
	"github.com/emerald-lang/emerald/grammar"
	"github.com/emerald-lang/emerald/internal/logging"
)

type grammarReport struct {
	Grammar   string `json:"grammar"`
	States    int    `json:"states"`
	Rules     int    `json:"rules"`
	Decides   int    `json:"decides"`
	Conflicts int    `json:"conflicts"`
	Cache     string `json:"cache,omitempty"`
}

func newGrammarCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grammar <file>",
		Short: "Build the parse table of a grammar description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			src, err := grammar.ReadSource(args[0])
			if err != nil {
				return err
			}
			var cache string
			if cfg.CacheDir != "" {
				if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
					return err
				}
				base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
				cache = filepath.Join(cfg.CacheDir, base+".table")
			}
			sinks := logging.NewConsole(cmd.ErrOrStderr(), cfg.Levels, false)
			t, err := grammar.BuildCached(src, cache, sinks.Compile)
			if err != nil {
				return err
			}
			report := grammarReport{
				Grammar:   args[0],
				States:    t.States(),
				Rules:     len(t.Rules()),
				Decides:   t.Decides(),
				Conflicts: t.Conflicts(),
				Cache:     cache,
			}
			format, _ := cmd.Flags().GetString("output")
			if format == "json" {
				out, err := getJSON(report, colorOutput(cmd, v))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d states, %d rules, %d decides, %d conflicts\n",
				report.Grammar, report.States, report.Rules, report.Decides, report.Conflicts)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "output format (json or text)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("output")
			if format == "json" {
				info := map[string]string{"version": version, "commit": commit, "date": date}
				out, err := getJSON(info, false)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "emerald %s (%s, %s), library format %d\n",
				version, commit, date, bytecode.FormatVersion)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "output format (json or text)")
	return cmd
}
