// Package writer creates output sinks for transformed rows.
package writer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/razeghi71/csvt/table"
)

// Sink receives the output header once, then every row. Close flushes and
// releases the destination.
type Sink interface {
	WriteHeader(columns []string) error
	WriteRow(values []table.Value) error
	Close() error
}

// Options configures text outputs. A zero Delimiter means ',' and an empty
// Encoding means UTF-8.
type Options struct {
	Delimiter rune
	Encoding  string
}

// Stdout is the path that selects standard output.
const Stdout = "-"

// Create picks a sink by file extension: .jsonl and .avro have their own
// writers, anything else is written as delimited text. Stdout always gets
// delimited text.
//
// Files are written to a temporary file in the same directory and renamed
// over path only when the sink closes cleanly. Pass a failed sink to Abort
// to discard it and leave path untouched.
func Create(path string, opts Options) (Sink, error) {
	if path == Stdout {
		return NewCSV(nopCloser{os.Stdout}, opts)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".tsv" && opts.Delimiter == 0 {
		opts.Delimiter = '\t'
	}

	f, err := createTemp(path)
	if err != nil {
		return nil, fmt.Errorf("cannot create %s: %w", path, err)
	}
	dst := nopCloser{f}
	var sink Sink
	switch ext {
	case ".jsonl", ".ndjson":
		sink = NewJSONL(dst)
	case ".avro":
		sink = NewAvro(dst)
	default:
		sink, err = NewCSV(dst, opts)
	}
	if err != nil {
		f.discard()
		return nil, err
	}
	return &fileSink{Sink: sink, file: f}, nil
}

// Abort releases a sink whose output should not be kept. Files created by
// Create are removed; other sinks are just closed.
func Abort(s Sink) error {
	if fs, ok := s.(*fileSink); ok {
		return fs.abort()
	}
	return s.Close()
}

type fileSink struct {
	Sink
	file *tempFile
}

func (s *fileSink) Close() error {
	if err := s.Sink.Close(); err != nil {
		s.file.discard()
		return err
	}
	return s.file.commit()
}

func (s *fileSink) abort() error {
	s.Sink.Close()
	return s.file.discard()
}

// tempFile is written next to its final path so that commit is a rename
// on the same file system.
type tempFile struct {
	*os.File
	path string
}

func createTemp(path string) (*tempFile, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &tempFile{File: f, path: path}, nil
}

func (f *tempFile) commit() error {
	if err := f.File.Close(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("cannot write %s: %w", f.path, err)
	}
	if err := os.Rename(f.Name(), f.path); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("cannot write %s: %w", f.path, err)
	}
	return nil
}

func (f *tempFile) discard() error {
	f.File.Close()
	if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
