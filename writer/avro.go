package writer

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	goavro "github.com/linkedin/goavro/v2"
	"github.com/razeghi71/csvt/table"
)

const avroBlockSize = 1000

// avroSink writes an Avro object container file. Every column becomes a
// ["null", "string"] field since a column's type may vary between rows;
// names are sanitized to valid Avro names.
type avroSink struct {
	dst     io.WriteCloser
	ocfw    *goavro.OCFWriter
	fields  []string
	pending []any
}

// NewAvro writes Avro OCF to dst. Close closes dst.
func NewAvro(dst io.WriteCloser) Sink {
	return &avroSink{dst: dst}
}

// AvroSchema returns the record schema used for columns, along with the
// field name chosen for each column.
func AvroSchema(columns []string) (string, []string, error) {
	type field struct {
		Name    string   `json:"name"`
		Type    []string `json:"type"`
		Default any      `json:"default"`
	}
	names := avroNames(columns)
	fields := make([]field, len(columns))
	for i := range columns {
		fields[i] = field{Name: names[i], Type: []string{"null", "string"}}
	}
	schema, err := json.Marshal(map[string]any{
		"type":   "record",
		"name":   "row",
		"fields": fields,
	})
	if err != nil {
		return "", nil, err
	}
	return string(schema), names, nil
}

func (s *avroSink) WriteHeader(columns []string) error {
	schema, names, err := AvroSchema(columns)
	if err != nil {
		return fmt.Errorf("cannot build Avro schema: %w", err)
	}
	ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               s.dst,
		Schema:          schema,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		return fmt.Errorf("cannot create Avro writer: %w", err)
	}
	s.ocfw = ocfw
	s.fields = names
	return nil
}

func (s *avroSink) WriteRow(values []table.Value) error {
	if s.ocfw == nil {
		return fmt.Errorf("avro: row written before header")
	}
	rec := make(map[string]any, len(s.fields))
	for i, name := range s.fields {
		if i >= len(values) || values[i].IsNull() {
			rec[name] = nil
			continue
		}
		rec[name] = goavro.Union("string", values[i].AsString())
	}
	s.pending = append(s.pending, rec)
	if len(s.pending) >= avroBlockSize {
		return s.flush()
	}
	return nil
}

func (s *avroSink) flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.ocfw.Append(s.pending); err != nil {
		return fmt.Errorf("error writing Avro block: %w", err)
	}
	s.pending = s.pending[:0]
	return nil
}

func (s *avroSink) Close() error {
	var err error
	if s.ocfw != nil {
		err = s.flush()
	}
	if cerr := s.dst.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("error closing Avro output: %w", cerr)
	}
	return err
}

// avroNames maps column names to unique names matching
// [A-Za-z_][A-Za-z0-9_]*.
func avroNames(columns []string) []string {
	names := make([]string, len(columns))
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		var b strings.Builder
		for j, r := range c {
			switch {
			case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
				b.WriteRune(r)
			case r >= '0' && r <= '9':
				if j == 0 {
					b.WriteByte('_')
				}
				b.WriteRune(r)
			default:
				b.WriteByte('_')
			}
		}
		name := b.String()
		if name == "" {
			name = "_"
		}
		base := name
		for n := 1; seen[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		seen[name] = true
		names[i] = name
	}
	return names
}
