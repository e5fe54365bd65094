package main

import (
	"fmt"
	"strings"

	"github.com/liamcoop/eligibility/expr"
	"github.com/spf13/cobra"
)

var combineFlags struct {
	op string
}

var combineCmd = &cobra.Command{
	Use:   "combine <rule> [rule...]",
	Short: "Combine rules under AND or OR",
	Long: `Combine rule strings under one logical operator and print the result.

Each rule is parsed on its own, so a syntax error names the rule it came
from. The combined rule string wraps every source in parentheses.

Examples:
  rulectl combine --op AND "age > 30" "salary > 50000"
  rulectl combine "dept = 'Sales'" "dept = 'Marketing'" --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: combineRules,
}

func init() {
	rootCmd.AddCommand(combineCmd)

	combineCmd.Flags().StringVar(&combineFlags.op, "op", "OR", "logical operator: AND, OR")
}

func combineRules(cmd *cobra.Command, args []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	op, err := expr.ParseLogicalOp(combineFlags.op)
	if err != nil {
		return err
	}

	trees := make([]expr.Node, len(args))
	for i, s := range args {
		tree, err := expr.Parse(s)
		if err != nil {
			return fmt.Errorf("rule %d: %s: %w", i+1, expr.KindOf(err), err)
		}
		trees[i] = tree
	}

	combined, err := expr.Combine(op, trees...)
	if err != nil {
		return err
	}

	if outputFormat == "text" {
		fmt.Fprintf(cmd.OutOrStdout(), "rule: (%s)\n", strings.Join(args, ") "+string(op)+" ("))
	}
	return printTree(cmd, combined)
}
