package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// jsonlSource reads one JSON object per line. The header is the key order
// of the first object; keys first seen later are ignored.
type jsonlSource struct {
	f       *os.File
	scanner *bufio.Scanner
	header  []string
	pending map[string]string
	lineNum int
}

func openJSONL(path string, opts Options) (*jsonlSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	in, err := decode(f, opts.Encoding)
	if err != nil {
		f.Close()
		return nil, err
	}
	src := &jsonlSource{f: f, scanner: bufio.NewScanner(in)}
	src.scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	keys, cells, err := src.object()
	if err != nil && err != io.EOF {
		f.Close()
		return nil, err
	}
	src.header = keys
	src.pending = cells
	return src, nil
}

func (s *jsonlSource) Header() []string { return s.header }

func (s *jsonlSource) Next() ([]string, error) {
	cells := s.pending
	s.pending = nil
	if cells == nil {
		var err error
		if _, cells, err = s.object(); err != nil {
			return nil, err
		}
	}
	row := make([]string, len(s.header))
	for i, k := range s.header {
		row[i] = cells[k]
	}
	return row, nil
}

func (s *jsonlSource) Close() error { return s.f.Close() }

// object decodes the next non-blank line, keeping the key order.
func (s *jsonlSource) object() ([]string, map[string]string, error) {
	for s.scanner.Scan() {
		s.lineNum++
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		keys, cells, err := decodeObject(line)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid JSON on line %d: %w", s.lineNum, err)
		}
		return keys, cells, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("error reading JSONL: %w", err)
	}
	return nil, nil, io.EOF
}

func decodeObject(line []byte) ([]string, map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected an object")
	}
	var keys []string
	cells := make(map[string]string)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		if _, dup := cells[key]; !dup {
			keys = append(keys, key)
		}
		cells[key] = jsonCell(raw)
	}
	return keys, cells, nil
}

// jsonCell renders a JSON value as a raw cell: strings unquoted, null empty,
// numbers verbatim and nested values as compact JSON.
func jsonCell(raw json.RawMessage) string {
	switch {
	case len(raw) == 0 || string(raw) == "null":
		return ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case raw[0] == '{' || raw[0] == '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err == nil {
			return buf.String()
		}
	}
	return string(raw)
}
