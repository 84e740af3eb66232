package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emerald-lang/emerald/parser"
)

func newASTCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ast [file]",
		Short: "Print the syntax tree of a script",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, code, err := getCode(cmd, args)
			if err != nil {
				return err
			}
			raw, _ := cmd.Flags().GetBool("raw")
			root, err := parser.Parse(context.Background(), code, name, parser.WithOptimize(!raw))
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("output")
			switch format {
			case "", "text":
				fmt.Fprint(cmd.OutOrStdout(), root.String())
			case "json":
				out, err := getJSON(root.ToMap(), colorOutput(cmd, v))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
			default:
				return fmt.Errorf("unknown output format: %s", format)
			}
			return nil
		},
	}
	cmd.Flags().StringP("code", "c", "", "code to parse")
	cmd.Flags().Bool("stdin", false, "read code from stdin")
	cmd.Flags().Bool("raw", false, "skip folding and desugaring")
	cmd.Flags().StringP("output", "o", "", "output format (json or text)")
	return cmd
}
