package loader

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	goavro "github.com/linkedin/goavro/v2"
	parquet "github.com/parquet-go/parquet-go"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readAll(t *testing.T, src Source) [][]string {
	t.Helper()
	var rows [][]string
	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			return rows
		}
		if err != nil {
			t.Fatal(err)
		}
		rows = append(rows, row)
	}
}

func open(t *testing.T, path string, opts Options) Source {
	t.Helper()
	src, err := Open(path, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

func TestCSV(t *testing.T) {
	path := writeFile(t, "in.csv", []byte("\ufeffname,age\nAlice,30\nBob\n\"C, D\",1,extra\n"))
	src := open(t, path, Options{})

	if got := src.Header(); !reflect.DeepEqual(got, []string{"name", "age"}) {
		t.Fatalf("unexpected header %q", got)
	}
	want := [][]string{{"Alice", "30"}, {"Bob"}, {"C, D", "1", "extra"}}
	if got := readAll(t, src); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestCSVDelimiterAndTSV(t *testing.T) {
	src := open(t, writeFile(t, "in.txt", []byte("a;b\n1;2\n")), Options{Delimiter: ';'})
	if got := readAll(t, src); !reflect.DeepEqual(got, [][]string{{"1", "2"}}) {
		t.Errorf("unexpected rows %q", got)
	}

	src = open(t, writeFile(t, "in.tsv", []byte("a\tb\n1\t2\n")), Options{})
	if got := src.Header(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("unexpected header %q", got)
	}
}

func TestCSVEncoding(t *testing.T) {
	// "café" in ISO-8859-1
	path := writeFile(t, "in.csv", []byte("name\ncaf\xe9\n"))
	src := open(t, path, Options{Encoding: "latin1"})
	rows := readAll(t, src)
	if len(rows) != 1 || rows[0][0] != "café" {
		t.Errorf("expected café, got %q", rows)
	}

	if _, err := Open(path, Options{Encoding: "no-such-charset"}); err == nil {
		t.Error("expected unknown encoding error")
	}
}

func TestCSVEmpty(t *testing.T) {
	src := open(t, writeFile(t, "in.csv", nil), Options{})
	if src.Header() != nil {
		t.Errorf("expected no header, got %q", src.Header())
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestCSVMalformed(t *testing.T) {
	src := open(t, writeFile(t, "in.csv", []byte("a\nx\"y\n")), Options{})
	if _, err := src.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	for _, name := range []string{"x.csv", "x.jsonl", "x.avro", "x.parquet"} {
		if _, err := Open(filepath.Join(t.TempDir(), name), Options{}); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestJSONL(t *testing.T) {
	data := strings.Join([]string{
		`{"name": "Alice", "age": 30, "tags": ["a", "b"], "ok": true}`,
		``,
		`{"age": 2.50, "name": null, "other": 1}`,
		`{"name": "Bob \"B\""}`,
	}, "\n")
	src := open(t, writeFile(t, "in.jsonl", []byte(data)), Options{})

	if got := src.Header(); !reflect.DeepEqual(got, []string{"name", "age", "tags", "ok"}) {
		t.Fatalf("unexpected header %q", got)
	}
	want := [][]string{
		{"Alice", "30", `["a","b"]`, "true"},
		{"", "2.50", "", ""},
		{`Bob "B"`, "", "", ""},
	}
	if got := readAll(t, src); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestJSONLInvalidLine(t *testing.T) {
	src := open(t, writeFile(t, "in.jsonl", []byte("{\"a\": 1}\n[1, 2]\n")), Options{})
	_, err := src.Next()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Next(); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected error on line 2, got %v", err)
	}
}

func TestAvro(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.avro")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W: f,
		Schema: `{"type": "record", "name": "user", "fields": [
			{"name": "name", "type": "string"},
			{"name": "age", "type": "int"},
			{"name": "score", "type": "double"},
			{"name": "city", "type": ["null", "string"]}
		]}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = w.Append([]any{
		map[string]any{"name": "Alice", "age": 30, "score": 1.5, "city": goavro.Union("string", "NY")},
		map[string]any{"name": "Bob", "age": 25, "score": 2.0, "city": nil},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	src := open(t, path, Options{})
	if got := src.Header(); !reflect.DeepEqual(got, []string{"name", "age", "score", "city"}) {
		t.Fatalf("unexpected header %q", got)
	}
	want := [][]string{{"Alice", "30", "1.5", "NY"}, {"Bob", "25", "2.0", ""}}
	if got := readAll(t, src); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

type parquetUser struct {
	Name string  `parquet:"name"`
	Age  int32   `parquet:"age"`
	City *string `parquet:"city,optional"`
}

func TestParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.parquet")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	ny := "NY"
	w := parquet.NewGenericWriter[parquetUser](f)
	users := []parquetUser{{"Alice", 30, &ny}, {"Bob", 25, nil}, {"Charlie", 35, &ny}}
	if _, err := w.Write(users); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	src := open(t, path, Options{})
	if got := src.Header(); !reflect.DeepEqual(got, []string{"name", "age", "city"}) {
		t.Fatalf("unexpected header %q", got)
	}
	want := [][]string{{"Alice", "30", "NY"}, {"Bob", "25", ""}, {"Charlie", "35", "NY"}}
	if got := readAll(t, src); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in   string
		want rune
		err  bool
	}{
		{"", 0, false},
		{",", ',', false},
		{`\t`, '\t', false},
		{"tab", '\t', false},
		{";", ';', false},
		{";;", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDelimiter(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseDelimiter(%q) = %q, %v", tt.in, got, err)
		}
	}
}
