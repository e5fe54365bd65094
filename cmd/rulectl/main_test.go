package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/liamcoop/eligibility/expr"
)

// runRulectl executes the root command with args and returns its output.
// Flag variables are reset first because cobra keeps them between runs.
func runRulectl(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	outputFormat = "text"
	evalFlags.data = ""
	combineFlags.op = "OR"
	celFlags.check = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	return path
}

func TestParseText(t *testing.T) {
	out, err := runRulectl(t, "", "parse", "a = 1 AND (b = 'x' OR NOT c = TRUE)")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := `AND
  a = 1
  OR
    b = 'x'
    NOT
      c = TRUE
attributes: a, b, c
nodes: 6
`
	if out != want {
		t.Errorf("parse output:\n%s\nwant:\n%s", out, want)
	}
}

func TestParseJSON(t *testing.T) {
	out, err := runRulectl(t, "", "parse", "--format", "json", "age > 30")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	tree, err := expr.DecodeJSON([]byte(out))
	if err != nil {
		t.Fatalf("DecodeJSON() failed: %v\n%s", err, out)
	}
	if c, ok := tree.(*expr.Comparison); !ok || c.Attribute != "age" {
		t.Errorf("decoded tree = %#v", tree)
	}
}

func TestParseError(t *testing.T) {
	_, err := runRulectl(t, "", "parse", "age >> 30")
	if err == nil || !strings.Contains(err.Error(), "syntax_error") {
		t.Errorf("parse error = %v, want syntax_error", err)
	}
}

func TestEvalFromFile(t *testing.T) {
	data := writeFile(t, "people.yaml", `
- {age: 35, department: Sales}
- age: 25
  department: Sales
- department: Sales
`)
	out, err := runRulectl(t, "", "eval", "age > 30 AND department = 'Sales'", "--data", data)
	if err == nil || !strings.Contains(err.Error(), "1 of 3 evaluations failed") {
		t.Errorf("eval error = %v, want one failure", err)
	}
	for _, want := range []string{"[0] true", "[1] false", "[2] error (missing_attribute)"} {
		if !strings.Contains(out, want) {
			t.Errorf("eval output missing %q:\n%s", want, out)
		}
	}
}

func TestEvalStdinJSON(t *testing.T) {
	out, err := runRulectl(t, `{"age": "41", "vip": true}`, "eval", "--format", "json", "--data", "-", "age > 40 AND vip = TRUE")
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	var results []evalResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(results) != 1 || !results[0].Result {
		t.Errorf("results = %+v, want one match", results)
	}
}

func TestDecodeRecords(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    int
		wantErr bool
	}{
		{"mapping", "a: 1", 1, false},
		{"list", "[{a: 1}, {a: 2}]", 2, false},
		{"json", `[{"a": 1}]`, 1, false},
		{"empty", "", 0, true},
		{"empty list", "[]", 0, true},
		{"scalar", "42", 0, true},
		{"list of scalars", "[1, 2]", 0, true},
		{"malformed", "a: [", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRecords([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeRecords() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("decodeRecords() returned %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestCombine(t *testing.T) {
	out, err := runRulectl(t, "", "combine", "--op", "and", "age > 30", "salary > 50000 OR bonus = TRUE")
	if err != nil {
		t.Fatalf("combine failed: %v", err)
	}
	if !strings.HasPrefix(out, "rule: (age > 30) AND (salary > 50000 OR bonus = TRUE)\nAND\n") {
		t.Errorf("combine output:\n%s", out)
	}

	_, err = runRulectl(t, "", "combine", "a = 1", "b >")
	if err == nil || !strings.Contains(err.Error(), "rule 2") {
		t.Errorf("combine error = %v, want error naming rule 2", err)
	}

	_, err = runRulectl(t, "", "combine", "--op", "XOR", "a = 1")
	if err == nil {
		t.Error("combine with XOR succeeded")
	}
}

func TestCEL(t *testing.T) {
	out, err := runRulectl(t, "", "cel", "--check", "age > 30 AND NOT department = 'HR'")
	if err != nil {
		t.Fatalf("cel failed: %v", err)
	}
	if got, want := strings.TrimSpace(out), `age > 30.0 && !(department == "HR")`; got != want {
		t.Errorf("cel output = %q, want %q", got, want)
	}

	if _, err := runRulectl(t, "", "cel", "null = 1"); err == nil {
		t.Error("cel with reserved attribute succeeded")
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := runRulectl(t, "", "parse", "--format", "xml", "a = 1"); err == nil {
		t.Error("parse --format xml succeeded")
	}
}
