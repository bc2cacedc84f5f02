package writer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/razeghi71/csvt/table"
)

// jsonlSink writes one object per row with keys in header order. Numbers
// and booleans keep their JSON type; decimals, dates and datetimes are
// written as strings.
type jsonlSink struct {
	dst  io.WriteCloser
	w    *bufio.Writer
	keys [][]byte
}

// NewJSONL writes JSON lines to dst. Close closes dst.
func NewJSONL(dst io.WriteCloser) Sink {
	return &jsonlSink{dst: dst, w: bufio.NewWriterSize(dst, 64*1024)}
}

func (s *jsonlSink) WriteHeader(columns []string) error {
	s.keys = make([][]byte, len(columns))
	for i, c := range columns {
		b, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("error encoding column %q: %w", c, err)
		}
		s.keys[i] = b
	}
	return nil
}

func (s *jsonlSink) WriteRow(values []table.Value) error {
	s.w.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			s.w.WriteByte(',')
		}
		s.w.Write(k)
		s.w.WriteByte(':')
		var v table.Value
		if i < len(values) {
			v = values[i]
		}
		b, err := json.Marshal(v.Interface())
		if err != nil {
			return fmt.Errorf("error encoding %s: %w", k, err)
		}
		s.w.Write(b)
	}
	s.w.WriteByte('}')
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("error writing JSONL row: %w", err)
	}
	return nil
}

func (s *jsonlSink) Close() error {
	err := s.w.Flush()
	if cerr := s.dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("error writing JSONL: %w", err)
	}
	return nil
}
