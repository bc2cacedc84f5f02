package writer

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/razeghi71/csvt/loader"
	"github.com/razeghi71/csvt/table"
	"golang.org/x/text/transform"
)

type csvSink struct {
	dst    io.WriteCloser
	buf    *bufio.Writer
	enc    io.WriteCloser
	w      *csv.Writer
	record []string
}

// NewCSV writes delimited text to dst, encoded as opts.Encoding. Nulls are
// written as empty cells. Close closes dst.
func NewCSV(dst io.WriteCloser, opts Options) (Sink, error) {
	enc, err := loader.LookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriterSize(dst, 64*1024)
	encoded := transform.NewWriter(buf, enc.NewEncoder())
	w := csv.NewWriter(encoded)
	if opts.Delimiter != 0 {
		w.Comma = opts.Delimiter
	}
	return &csvSink{dst: dst, buf: buf, enc: encoded, w: w}, nil
}

func (s *csvSink) WriteHeader(columns []string) error {
	if err := s.w.Write(columns); err != nil {
		return fmt.Errorf("error writing CSV header: %w", err)
	}
	return nil
}

func (s *csvSink) WriteRow(values []table.Value) error {
	s.record = s.record[:0]
	for _, v := range values {
		s.record = append(s.record, v.AsString())
	}
	if err := s.w.Write(s.record); err != nil {
		return fmt.Errorf("error writing CSV row: %w", err)
	}
	return nil
}

func (s *csvSink) Close() error {
	s.w.Flush()
	err := s.w.Error()
	if cerr := s.enc.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if ferr := s.buf.Flush(); err == nil && ferr != nil {
		err = ferr
	}
	if cerr := s.dst.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("error writing CSV: %w", err)
	}
	return nil
}
