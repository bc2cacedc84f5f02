package loader

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

type csvSource struct {
	f      *os.File
	r      *csv.Reader
	header []string
	line   int
}

func openCSV(path string, opts Options) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	src, err := newCSVSource(f, opts)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot read CSV header from %s: %w", path, err)
	}
	src.f = f
	return src, nil
}

// NewCSV reads delimited text from r. Rows may be shorter or longer than
// the header.
func NewCSV(r io.Reader, opts Options) (Source, error) {
	return newCSVSource(r, opts)
}

func newCSVSource(r io.Reader, opts Options) (*csvSource, error) {
	in, err := decode(bufio.NewReaderSize(r, 64*1024), opts.Encoding)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(in)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1

	src := &csvSource{r: reader}
	header, err := reader.Read()
	switch {
	case errors.Is(err, io.EOF):
		// empty input: no header, no rows
	case err != nil:
		return nil, err
	default:
		src.header = header
		src.line = 1
	}
	return src, nil
}

func (s *csvSource) Header() []string { return s.header }

func (s *csvSource) Next() ([]string, error) {
	if s.header == nil {
		return nil, io.EOF
	}
	record, err := s.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("error reading CSV row %d: %w", s.line+1, err)
	}
	s.line++
	return record, nil
}

func (s *csvSource) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}
