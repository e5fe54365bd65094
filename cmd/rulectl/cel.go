package main

import (
	"fmt"

	"github.com/liamcoop/eligibility/celexport"
	"github.com/liamcoop/eligibility/expr"
	"github.com/spf13/cobra"
)

var celFlags struct {
	check bool
}

var celCmd = &cobra.Command{
	Use:   "cel <rule>",
	Short: "Export a rule as a CEL expression",
	Long: `Translate a rule into Common Expression Language source.

With --check the expression is also compiled with every attribute declared
as dyn, which confirms it type-checks to a boolean.

Examples:
  rulectl cel "age > 30 AND NOT department = 'HR'"
  rulectl cel --check --format json "score >= 4.5"`,
	Args: cobra.ExactArgs(1),
	RunE: exportCEL,
}

func init() {
	rootCmd.AddCommand(celCmd)

	celCmd.Flags().BoolVar(&celFlags.check, "check", false, "compile the expression to verify it")
}

func exportCEL(cmd *cobra.Command, args []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	tree, err := expr.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", expr.KindOf(err), err)
	}

	src, err := celexport.Translate(tree)
	if err != nil {
		return err
	}
	if celFlags.check {
		if _, err := celexport.Compile(tree); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return writeJSON(out, map[string]any{
			"expression": src,
			"variables":  expr.Attributes(tree),
		})
	}
	fmt.Fprintln(out, src)
	return nil
}
