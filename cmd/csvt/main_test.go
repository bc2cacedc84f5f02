package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const users = `name,age,city
Alice,30,NY
Bob,17,LA
Charlie,35,NY
Diana,28,SF
`

func setup(t *testing.T, conf string) (dir string) {
	t.Helper()
	dir = t.TempDir()
	files := map[string]string{"users.csv": users, "conf.yaml": conf}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		conf     string
		args     []string
		expected string
	}{
		{
			name: "row mode",
			conf: `
entity_filter: "age >= 18"
cols:
  age: {type: int, order: -1}
  city: {visible: false}
`,
			expected: "name,age\nCharlie,35\nAlice,30\nDiana,28\n",
		},
		{
			name: "aggregate mode",
			conf: `
default_col: {visible: false}
cols:
  city: {visible: true, order: 1}
  age: {type: int, agg: sum, rename: total, visible: true}
new_cols:
  - {id: n, formula: "1", agg: count, visible: true}
`,
			expected: "city,total,n\nLA,17,1\nNY,65,2\nSF,28,1\n",
		},
		{
			name:     "limit",
			conf:     `cols: {city: {visible: false}}`,
			args:     []string{"-limit", "2"},
			expected: "name,age\nAlice,30\nBob,17\n",
		},
		{
			name:     "output delimiter",
			conf:     `cols: {city: {visible: false}, age: {filter: "it == '17'"}}`,
			args:     []string{"-out-delimiter", ";"},
			expected: "name;age\nBob;17\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setup(t, tt.conf)
			out := filepath.Join(dir, "out.csv")
			args := append([]string{"-log-level", "error", "-config", filepath.Join(dir, "conf.yaml")}, tt.args...)
			args = append(args, filepath.Join(dir, "users.csv"), out)

			var stderr bytes.Buffer
			if code := run(args, &stderr); code != 0 {
				t.Fatalf("exit code %d: %s", code, stderr.String())
			}
			got, err := os.ReadFile(out)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.expected {
				t.Errorf("expected\n%s\ngot\n%s", tt.expected, got)
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	dir := setup(t, `cols: {age: {filter: "it >"}}`)
	conf := filepath.Join(dir, "conf.yaml")
	in := filepath.Join(dir, "users.csv")
	out := filepath.Join(dir, "out.csv")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing config", []string{in, out}, "usage"},
		{"missing output", []string{"-config", conf, in}, "usage"},
		{"bad expression", []string{"-config", conf, in, out}, "cols.age.filter"},
		{"missing config file", []string{"-config", filepath.Join(dir, "nope.yaml"), in, out}, "config error"},
		{"bad delimiter", []string{"-config", filepath.Join(dir, "conf.yaml"), "-delimiter", ";;", in, out}, "-delimiter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			args := append([]string{"-log-level", "error"}, tt.args...)
			if code := run(args, &stderr); code != 1 {
				t.Fatalf("expected exit code 1, got %d", code)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Errorf("expected %q in %q", tt.want, stderr.String())
			}
		})
	}
}

func TestRunFailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	conf := filepath.Join(dir, "conf.yaml")
	out := filepath.Join(dir, "out.csv")
	files := map[string]string{in: "a\n1\n2\noops\n4\n", conf: "cols: {a: {type: int}}"}
	for name, data := range files {
		if err := os.WriteFile(name, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var stderr bytes.Buffer
	if code := run([]string{"-log-level", "error", "-config", conf, in, out}, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "oops") {
		t.Errorf("expected the bad value in %q", stderr.String())
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("expected no output file, got %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected only the input files to remain, got %d entries", len(entries))
	}
}

func TestRunMissingInput(t *testing.T) {
	dir := setup(t, `{}`)
	var stderr bytes.Buffer
	code := run([]string{"-log-level", "error", "-config", filepath.Join(dir, "conf.yaml"),
		filepath.Join(dir, "nope.csv"), filepath.Join(dir, "out.csv")}, &stderr)
	if code != 1 || !strings.Contains(stderr.String(), "load error") {
		t.Errorf("expected load error, got %d %q", code, stderr.String())
	}
}
