package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "rulectl",
	Short: "rulectl - parse, combine and evaluate eligibility rules",
	Long: `rulectl works with eligibility rule strings directly, without a server.

Rules compare record attributes against literals and join the comparisons
with AND, OR, NOT and parentheses:

  (age > 30 AND department = 'Sales') OR NOT active = FALSE`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "text", "output format: text, json")
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func checkFormat() error {
	switch outputFormat {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("unsupported format %q (use text or json)", outputFormat)
}
