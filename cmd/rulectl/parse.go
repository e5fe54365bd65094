package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/liamcoop/eligibility/expr"
	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse <rule>",
	Short: "Parse a rule and print its tree",
	Long: `Parse a rule string and print its tree.

Text output shows the tree indented one level per node; JSON output is the
same encoding the rule store uses.

Examples:
  rulectl parse "a = 1 AND b = 2 AND c = 3"
  rulectl parse --format json "NOT (x > 0 OR y = 'n')"`,
	Args: cobra.ExactArgs(1),
	RunE: parseRule,
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

func parseRule(cmd *cobra.Command, args []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	tree, err := expr.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", expr.KindOf(err), err)
	}
	return printTree(cmd, tree)
}

func printTree(cmd *cobra.Command, tree expr.Node) error {
	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		data, err := expr.EncodeJSON(tree)
		if err != nil {
			return err
		}
		return writeJSON(out, json.RawMessage(data))
	}

	var sb strings.Builder
	writeTree(&sb, tree, 0)
	fmt.Fprint(out, sb.String())
	fmt.Fprintf(out, "attributes: %s\n", strings.Join(expr.Attributes(tree), ", "))
	fmt.Fprintf(out, "nodes: %d\n", expr.Size(tree))
	return nil
}

func writeTree(sb *strings.Builder, n expr.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n := n.(type) {
	case *expr.Comparison:
		fmt.Fprintf(sb, "%s%s %s %s\n", indent, n.Attribute, n.Op, formatLiteral(n.Value))
	case *expr.Logical:
		fmt.Fprintf(sb, "%s%s\n", indent, n.Op)
		for _, child := range n.Children {
			writeTree(sb, child, depth+1)
		}
	case *expr.Not:
		fmt.Fprintf(sb, "%sNOT\n", indent)
		writeTree(sb, n.Child, depth+1)
	}
}

func formatLiteral(l expr.Literal) string {
	switch l.Kind {
	case expr.StringLiteral:
		if strings.Contains(l.Text, "'") {
			return `"` + l.Text + `"`
		}
		return "'" + l.Text + "'"
	case expr.BoolLiteral:
		return strings.ToUpper(fmt.Sprint(l.Bool))
	default:
		return fmt.Sprint(l.Number)
	}
}
