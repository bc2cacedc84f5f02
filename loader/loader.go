// Package loader opens input files as streams of raw rows.
package loader

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Source yields a header followed by raw rows. Next returns io.EOF once the
// input is exhausted. Cells are returned as text; typing them is the job of
// the transformation.
type Source interface {
	Header() []string
	Next() ([]string, error)
	Close() error
}

// Options configures text inputs. A zero Delimiter means ',' (or '\t' for
// .tsv files) and an empty Encoding means UTF-8.
type Options struct {
	Delimiter rune
	Encoding  string
}

// Open picks a source by file extension: .jsonl, .avro and .parquet have
// their own readers, anything else is read as delimited text.
func Open(path string, opts Options) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jsonl", ".ndjson":
		return openJSONL(path, opts)
	case ".avro":
		return openAvro(path)
	case ".parquet":
		return openParquet(path)
	case ".tsv":
		if opts.Delimiter == 0 {
			opts.Delimiter = '\t'
		}
	}
	src, err := openCSV(path, opts)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// ParseDelimiter turns a flag value such as "," or "\t" into a rune. An
// empty string yields 0, the default.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case `\t`, "tab":
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r[0], nil
}
