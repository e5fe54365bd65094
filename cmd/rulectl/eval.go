package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/liamcoop/eligibility/expr"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var evalFlags struct {
	data string
}

var evalCmd = &cobra.Command{
	Use:   "eval <rule>",
	Short: "Evaluate a rule against data records",
	Long: `Evaluate a rule against one or more data records.

The data file holds either a single mapping or a list of mappings, in YAML
or JSON. Use "-" to read from standard input. Each record is evaluated on its
own; the command fails if any evaluation fails.

Examples:
  # Evaluate a single record
  echo '{age: 35, department: Sales}' | rulectl eval "age > 30" --data -

  # Evaluate a list of records as JSON output
  rulectl eval "age > 30 OR salary > 50000" --data people.yaml --format json`,
	Args: cobra.ExactArgs(1),
	RunE: evalRule,
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringVarP(&evalFlags.data, "data", "d", "", "YAML or JSON file with records, - for stdin (required)")
	_ = evalCmd.MarkFlagRequired("data")
}

type evalResult struct {
	Index  int            `json:"index"`
	Result bool           `json:"result"`
	Error  string         `json:"error,omitempty"`
	Kind   expr.ErrorKind `json:"kind,omitempty"`
}

func evalRule(cmd *cobra.Command, args []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	tree, err := expr.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", expr.KindOf(err), err)
	}

	raw, err := readData(cmd.InOrStdin(), evalFlags.data)
	if err != nil {
		return err
	}
	records, err := decodeRecords(raw)
	if err != nil {
		return err
	}

	results := make([]evalResult, len(records))
	failed := 0
	for i, rec := range records {
		matched, err := expr.Evaluate(tree, rec)
		results[i] = evalResult{Index: i, Result: matched}
		if err != nil {
			failed++
			results[i].Error = err.Error()
			results[i].Kind = expr.KindOf(err)
		}
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		if err := writeJSON(out, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(out, "[%d] error (%s): %s\n", r.Index, r.Kind, r.Error)
				continue
			}
			fmt.Fprintf(out, "[%d] %t\n", r.Index, r.Result)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d evaluations failed", failed, len(records))
	}
	return nil
}

func readData(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	return data, nil
}

// decodeRecords accepts a single mapping or a list of mappings. JSON input is
// valid YAML, so one decoder serves both.
func decodeRecords(data []byte) ([]expr.Record, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}

	switch v := doc.(type) {
	case map[string]any:
		return []expr.Record{v}, nil
	case []any:
		records := make([]expr.Record, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("record %d is %T, want a mapping", i, item)
			}
			records[i] = m
		}
		if len(records) == 0 {
			return nil, errors.New("data holds no records")
		}
		return records, nil
	case nil:
		return nil, errors.New("data holds no records")
	default:
		return nil, fmt.Errorf("data is %T, want a mapping or a list of mappings", doc)
	}
}
